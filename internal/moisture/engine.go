package moisture

import (
	"context"
	"time"
)

type requestKind int

const (
	requestMoisture requestKind = iota
	requestBattery
	requestStatus
)

type request struct {
	kind     requestKind
	response chan Status
}

// Status is a snapshot of the engine.
type Status struct {
	State     string          `json:"state"`
	Joined    bool            `json:"joined"`
	Moisture  *Result         `json:"moisture,omitempty"`
	Battery   *BatteryReading `json:"battery,omitempty"`
	Fault     string          `json:"fault,omitempty"`
	LastCycle time.Time       `json:"lastCycle"`
	NextCycle time.Time       `json:"nextCycle"`
	Countdown int             `json:"countdown"`
}

// Engine owns the scheduler and runs it on a single goroutine. Manual
// measurements and status requests are queued to that goroutine.
type Engine struct {
	sched           *Scheduler
	batteryInterval time.Duration
	requests        chan request
	nextCycle       time.Time
}

func NewEngine(sched *Scheduler, batteryInterval time.Duration) *Engine {
	return &Engine{
		sched:           sched,
		batteryInterval: batteryInterval,
		requests:        make(chan request, 20),
	}
}

// Run measures the battery, then drives the scheduler until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	log.Info("Starting measurement engine")
	if _, err := e.sched.MeasureBattery(); err != nil {
		log.Errorf("Battery measurement failed: %v", err)
	}

	timer := time.NewTimer(e.schedule(e.sched.Tick()))
	defer timer.Stop()

	var batteryTick <-chan time.Time
	if e.batteryInterval > 0 {
		ticker := time.NewTicker(e.batteryInterval)
		defer ticker.Stop()
		batteryTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping measurement engine")
			return ctx.Err()
		case <-timer.C:
			timer.Reset(e.schedule(e.sched.Tick()))
		case <-batteryTick:
			if _, err := e.sched.MeasureBattery(); err != nil {
				log.Errorf("Battery measurement failed: %v", err)
			}
		case req := <-e.requests:
			switch req.kind {
			case requestMoisture:
				log.Info("Running requested moisture measurement")
				timer.Stop()
				timer.Reset(e.schedule(e.sched.MeasureMoisture()))
			case requestBattery:
				log.Info("Running requested battery measurement")
				if _, err := e.sched.MeasureBattery(); err != nil {
					log.Errorf("Battery measurement failed: %v", err)
				}
			}
			req.response <- e.status()
		}
	}
}

func (e *Engine) schedule(d time.Duration) time.Duration {
	e.nextCycle = time.Now().Add(d)
	return d
}

func (e *Engine) status() Status {
	s := e.sched
	st := Status{
		State:     s.State().String(),
		Joined:    s.Joined(),
		LastCycle: s.lastCycle,
		NextCycle: e.nextCycle,
		Countdown: s.moisture.Policy().Countdown(),
	}
	if s.last != nil {
		last := *s.last
		st.Moisture = &last
	}
	if b, ok := s.battery.Last(); ok {
		st.Battery = &b
	}
	if s.lastFault != nil {
		st.Fault = s.lastFault.Error()
	}
	return st
}

func (e *Engine) do(ctx context.Context, kind requestKind) (Status, error) {
	req := request{kind: kind, response: make(chan Status, 1)}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-req.response:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// MeasureMoisture runs a probe measurement now and restarts the cycle timer.
func (e *Engine) MeasureMoisture(ctx context.Context) (Status, error) {
	return e.do(ctx, requestMoisture)
}

// MeasureBattery runs a battery measurement now.
func (e *Engine) MeasureBattery(ctx context.Context) (Status, error) {
	return e.do(ctx, requestBattery)
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	return e.do(ctx, requestStatus)
}

// SetJoined is safe to call from any goroutine. It takes effect at the next
// phase boundary.
func (e *Engine) SetJoined(joined bool) {
	e.sched.SetJoined(joined)
}

func (e *Engine) Joined() bool {
	return e.sched.Joined()
}
