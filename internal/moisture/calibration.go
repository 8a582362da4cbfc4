package moisture

// Curve maps a filtered millivolt reading onto 0..FullScale by clamped linear
// interpolation. The span is divided into Resolution steps, truncating, and
// each step is worth FullScale/Resolution output units.
// Curves can only be made with NewCurve so the span is always positive.
type Curve struct {
	minInput   int
	maxInput   int
	invert     bool
	resolution int
	fullScale  int
}

// NewCurve validates and returns a calibration curve. An inverted curve gives
// FullScale at minInput, as for a capacitive probe reading higher when drier.
func NewCurve(minInput, maxInput int, invert bool, resolution, fullScale int) (Curve, error) {
	if minInput >= maxInput {
		return Curve{}, NewConfigError("calibration min %d mV must be below max %d mV", minInput, maxInput)
	}
	if resolution <= 0 {
		return Curve{}, NewConfigError("calibration resolution must be positive, got %d", resolution)
	}
	if fullScale < resolution || fullScale%resolution != 0 {
		return Curve{}, NewConfigError("calibration full scale %d is not a multiple of resolution %d", fullScale, resolution)
	}
	return Curve{
		minInput:   minInput,
		maxInput:   maxInput,
		invert:     invert,
		resolution: resolution,
		fullScale:  fullScale,
	}, nil
}

// MoistureCurve maps probe millivolts to hundredths of a percent of relative
// humidity, in whole percent steps.
func MoistureCurve(minMV, maxMV int) (Curve, error) {
	return NewCurve(minMV, maxMV, true, 100, 10000)
}

// BatteryCurve maps battery millivolts to half percent of capacity remaining.
func BatteryCurve(emptyMV, fullMV int) (Curve, error) {
	return NewCurve(emptyMV, fullMV, false, 200, 200)
}

func (c Curve) Map(mv int) int {
	atMin, atMax := 0, c.fullScale
	if c.invert {
		atMin, atMax = atMax, atMin
	}
	if mv <= c.minInput {
		return atMin
	}
	if mv >= c.maxInput {
		return atMax
	}
	steps := (mv - c.minInput) * c.resolution / (c.maxInput - c.minInput)
	if c.invert {
		steps = c.resolution - steps
	}
	return steps * (c.fullScale / c.resolution)
}

func (c Curve) FullScale() int {
	return c.fullScale
}
