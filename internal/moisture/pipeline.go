package moisture

// Pipeline carries one channel's readings from raw millivolts to a
// publishable value: moving average, calibration, smoothing and the
// report decision.
type Pipeline struct {
	average *MovingAverage
	curve   Curve
	smooth  *Exponential
	policy  *ReportPolicy
}

// Result is the outcome of processing one raw reading.
type Result struct {
	Raw       int  `json:"raw"`
	Filtered  int  `json:"filtered"`
	Mapped    int  `json:"mapped"`
	Smoothed  int  `json:"smoothed"`
	Report    bool `json:"report"`
	Published int  `json:"published,omitempty"`
}

func NewPipeline(depth int, curve Curve, bias int, policy *ReportPolicy) *Pipeline {
	return &Pipeline{
		average: NewMovingAverage(depth),
		curve:   curve,
		smooth:  NewExponential(bias),
		policy:  policy,
	}
}

// Process must only be given readings that passed the fault check.
func (p *Pipeline) Process(raw int) Result {
	r := Result{Raw: raw}
	r.Filtered = p.average.Push(raw)
	r.Mapped = p.curve.Map(r.Filtered)
	r.Smoothed = p.smooth.Update(r.Mapped)
	r.Report, r.Published = p.policy.Evaluate(r.Smoothed)
	return r
}

func (p *Pipeline) Average() *MovingAverage {
	return p.average
}

func (p *Pipeline) Policy() *ReportPolicy {
	return p.policy
}
