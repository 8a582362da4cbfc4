package moisture

import "time"

// FaultDetector flags raw probe readings too low to come from a powered probe.
type FaultDetector struct {
	ThresholdMV int
}

func (f FaultDetector) Check(mv int) error {
	if mv < f.ThresholdMV {
		return &SensorFault{Millivolts: mv, Threshold: f.ThresholdMV}
	}
	return nil
}

// CountdownFor returns how many cycles of period fit in maxSilence.
func CountdownFor(maxSilence, period time.Duration) int {
	if period <= 0 {
		return 0
	}
	return int(maxSilence / period)
}

// ShouldReport compares previous and candidate in whole units of granularity.
// A change, or a countdown that has reached zero, reports and resets the
// countdown to countdownInit. Otherwise the countdown goes down by one.
func ShouldReport(previous, candidate, countdown, countdownInit, granularity int) (bool, int) {
	if candidate/granularity != previous/granularity || countdown <= 0 {
		return true, countdownInit
	}
	return false, countdown - 1
}

// ReportPolicy decides when a value is worth publishing.
type ReportPolicy struct {
	countdownInit int
	countdown     int
	granularity   int
	publishStep   int
	maxValue      int

	previous int
	known    bool
}

// NewReportPolicy returns a policy comparing values at granularity, forcing a
// report after countdownInit quiet cycles and publishing values rounded to
// publishStep, never above maxValue.
func NewReportPolicy(countdownInit, granularity, publishStep, maxValue int) *ReportPolicy {
	if granularity < 1 {
		granularity = 1
	}
	if publishStep < 1 {
		publishStep = 1
	}
	return &ReportPolicy{
		countdownInit: countdownInit,
		countdown:     countdownInit,
		granularity:   granularity,
		publishStep:   publishStep,
		maxValue:      maxValue,
	}
}

// Evaluate returns whether candidate should be published and the value to
// publish. The compared value follows every candidate, published or not.
func (p *ReportPolicy) Evaluate(candidate int) (bool, int) {
	var report bool
	if !p.known {
		report, p.countdown = true, p.countdownInit
	} else {
		report, p.countdown = ShouldReport(p.previous, candidate, p.countdown, p.countdownInit, p.granularity)
	}
	p.previous = candidate
	p.known = true
	if !report {
		return false, 0
	}
	return true, p.round(candidate)
}

func (p *ReportPolicy) round(v int) int {
	if p.publishStep > 1 {
		v = (v + p.publishStep/2) / p.publishStep * p.publishStep
	}
	if p.maxValue > 0 && v > p.maxValue {
		v = p.maxValue
	}
	return v
}

// Force makes the next evaluation report regardless of change.
func (p *ReportPolicy) Force() {
	p.countdown = 0
}

func (p *ReportPolicy) Countdown() int {
	return p.countdown
}

// Previous returns the last candidate evaluated.
func (p *ReportPolicy) Previous() (int, bool) {
	return p.previous, p.known
}
