/*
soil-moisture-node - Measurement scheduling.
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package moisture

import (
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
)

var sleepFn = time.Sleep

// State of the measurement cycle.
type State int

const (
	Idle State = iota
	Measuring
	Cooldown
	FaultRetry
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Measuring:
		return "measuring"
	case Cooldown:
		return "cooldown"
	case FaultRetry:
		return "fault-retry"
	}
	return "unknown"
}

// Hardware the scheduler drives.
type Hardware struct {
	Reader AnalogReader
	Power  ProbePower
	LED    Indicator
}

// Timing of the measurement cycle.
type Timing struct {
	Interval          time.Duration
	FirstInterval     time.Duration
	FaultRetry        time.Duration
	JoinPoll          time.Duration
	Settle            time.Duration
	StabilityInterval time.Duration
	StabilityReads    int
	StabilityDeltaMV  int
}

// Scheduler runs the probe cycle. It is a step function: each call to Tick
// does one phase of work and returns how long to wait before the next call.
// Only SetJoined and Joined may be called from other goroutines.
type Scheduler struct {
	hw        Hardware
	timing    Timing
	faults    FaultDetector
	moisture  *Pipeline
	battery   *BatteryMonitor
	publisher attribute.Publisher
	metrics   *Metrics

	joined     atomic.Bool
	state      State
	ledOn      bool
	firstCycle bool

	last      *Result
	lastFault error
	lastCycle time.Time
}

func NewScheduler(hw Hardware, settings *Settings, publisher attribute.Publisher, metrics *Metrics) *Scheduler {
	if hw.LED == nil {
		hw.LED = noIndicator{}
	}
	return &Scheduler{
		hw:        hw,
		timing:    settings.Timing,
		faults:    FaultDetector{ThresholdMV: settings.FaultThresholdMV},
		moisture:  settings.moisturePipeline(),
		battery:   NewBatteryMonitor(hw.Reader, settings.batteryPipeline(), publisher, metrics),
		publisher: publisher,
		metrics:   metrics,
		state:     Idle,
	}
}

// SetJoined records whether the node is joined to the network.
func (s *Scheduler) SetJoined(joined bool) {
	s.joined.Store(joined)
	s.metrics.setJoined(joined)
}

func (s *Scheduler) Joined() bool {
	return s.joined.Load()
}

// Tick runs the next phase of the cycle. While not joined it blinks the LED
// and polls at the join interval. Once joined it takes a measurement.
func (s *Scheduler) Tick() time.Duration {
	if !s.joined.Load() {
		if s.state != Idle {
			log.Info("Left network, waiting to rejoin")
			s.state = Idle
		}
		s.ledOn = !s.ledOn
		s.hw.LED.SetLED(s.ledOn)
		return s.timing.JoinPoll
	}
	return s.MeasureMoisture()
}

// MeasureMoisture runs one probe measurement and returns the delay before
// the next call to Tick.
func (s *Scheduler) MeasureMoisture() time.Duration {
	if s.state == Idle && s.joined.Load() {
		s.start()
	}
	next := s.measure()
	if !s.joined.Load() {
		s.state = Idle
		return s.timing.JoinPoll
	}
	return next
}

// start leaves Idle after a join. The first report is forced.
func (s *Scheduler) start() {
	log.Info("Joined network, starting measurements")
	s.ledOn = false
	s.hw.LED.SetLED(false)
	s.firstCycle = true
	s.moisture.Policy().Force()
}

func (s *Scheduler) measure() time.Duration {
	s.state = Measuring
	s.lastCycle = time.Now()

	raw, err := s.sampleProbe()
	if err == nil {
		s.metrics.reading(ProbeChannel, raw)
		err = s.faults.Check(raw)
	}
	if err != nil {
		log.Errorf("Probe measurement failed: %v", err)
		s.lastFault = err
		s.metrics.fault(ProbeChannel, err)
		s.metrics.cycle(ProbeChannel, "fault")
		s.state = FaultRetry
		return s.timing.FaultRetry
	}
	s.lastFault = nil

	previous, _ := s.moisture.Policy().Previous()
	res := s.moisture.Process(raw)
	s.last = &res
	log.Infof("Mean %d mV, humidity %d (previous %d)", res.Filtered, res.Smoothed, previous)

	if res.Report {
		if _, err := s.battery.Measure(); err != nil {
			log.Errorf("Battery measurement failed: %v", err)
		}
		log.Infof("Updating humidity value: %d%%", res.Published/100)
		s.publisher.PublishAttribute(attribute.RelativeHumidity, attribute.MeasuredValue, res.Published)
		s.metrics.cycle(ProbeChannel, "reported")
	} else {
		s.metrics.cycle(ProbeChannel, "unchanged")
	}

	s.state = Cooldown
	if s.firstCycle {
		s.firstCycle = false
		if s.timing.FirstInterval > 0 {
			s.moisture.Policy().Force()
			return s.timing.FirstInterval
		}
	}
	return s.timing.Interval
}

// sampleProbe powers the probe, waits for it to settle and re-reads until
// two consecutive readings agree. The probe is always left unpowered.
func (s *Scheduler) sampleProbe() (int, error) {
	s.hw.LED.SetLED(true)
	s.hw.Power.SetProbePower(true)
	defer func() {
		s.hw.Power.SetProbePower(false)
		s.hw.LED.SetLED(false)
		s.ledOn = false
	}()

	sleepFn(s.timing.Settle)
	mv, err := s.hw.Reader.ReadMillivolts(ProbeChannel)
	if err != nil {
		return 0, err
	}
	if s.timing.StabilityReads > 0 {
		sleepFn(s.timing.StabilityInterval)
	}
	for i := 0; i < s.timing.StabilityReads; i++ {
		previous := mv
		mv, err = s.hw.Reader.ReadMillivolts(ProbeChannel)
		if err != nil {
			return 0, err
		}
		log.Debugf("Probe reading %d mV (previous %d mV)", mv, previous)
		if abs(mv-previous) <= s.timing.StabilityDeltaMV {
			break
		}
		sleepFn(s.timing.StabilityInterval)
	}
	return mv, nil
}

// MeasureBattery takes a battery reading outside the probe cycle.
func (s *Scheduler) MeasureBattery() (BatteryReading, error) {
	return s.battery.Measure()
}

func (s *Scheduler) State() State {
	return s.state
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
