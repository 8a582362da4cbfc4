package moisture

// MovingAverage is a fixed depth box filter over raw millivolt samples.
// The running sum always equals the sum of the buffer.
type MovingAverage struct {
	buf         []int
	sum         int
	cursor      int
	initialized bool
}

func NewMovingAverage(depth int) *MovingAverage {
	if depth < 1 {
		depth = 1
	}
	return &MovingAverage{buf: make([]int, depth)}
}

// Push adds a sample and returns the truncated mean of the last depth samples.
// The first sample fills the whole buffer so there is no start up ramp.
func (m *MovingAverage) Push(sample int) int {
	n := len(m.buf)
	if !m.initialized {
		for i := range m.buf {
			m.buf[i] = sample
		}
		m.sum = sample * n
		m.cursor = 0
		m.initialized = true
		return sample
	}
	m.sum -= m.buf[m.cursor]
	m.buf[m.cursor] = sample
	m.sum += sample
	m.cursor = (m.cursor + 1) % n
	return m.sum / n
}

func (m *MovingAverage) Sum() int {
	return m.sum
}

func (m *MovingAverage) Depth() int {
	return len(m.buf)
}

func (m *MovingAverage) Initialized() bool {
	return m.initialized
}

// Exponential is a single pole low pass filter, 3/4 weight on history.
type Exponential struct {
	bias  int
	value int
	known bool
}

// NewExponential returns a filter adding bias before the divide by 4.
// A bias of 0 truncates, 2 rounds to nearest.
func NewExponential(bias int) *Exponential {
	return &Exponential{bias: bias}
}

func (e *Exponential) Update(in int) int {
	if !e.known {
		e.value = in
		e.known = true
		return in
	}
	e.value = (3*e.value + in + e.bias) / 4
	return e.value
}

// Value returns the last output, false until the first update.
func (e *Exponential) Value() (int, bool) {
	return e.value, e.known
}
