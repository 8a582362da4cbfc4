package i2c

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

var noSleepFn = func(d time.Duration) {}

type failingBus struct {
	failures int
	calls    int
	busyPin  gpio.PinIO
	levels   []gpio.Level
}

func (b *failingBus) String() string { return "failing" }

func (b *failingBus) SetSpeed(f physic.Frequency) error { return nil }

func (b *failingBus) Tx(addr uint16, w, r []byte) error {
	b.calls++
	if b.busyPin != nil {
		b.levels = append(b.levels, b.busyPin.Read())
	}
	if b.calls <= b.failures {
		return errors.New("nack")
	}
	for i := range r {
		r[i] = byte(i + 1)
	}
	return nil
}

func TestTxReadsConversion(t *testing.T) {
	bus := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x48, W: []byte{0x00}, R: []byte{0x25, 0x88}},
	}}
	s := newService(bus, nil)

	data, err := s.Tx(0x48, []byte{0x00}, 2, 100)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x25, 0x88}, data)
}

func TestTxRetries(t *testing.T) {
	sleepFn = noSleepFn
	bus := &failingBus{failures: txRetries}
	s := newService(bus, nil)

	data, err := s.Tx(0x48, []byte{0x01}, 2, 100)
	require.Nil(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, txRetries+1, bus.calls)
}

func TestTxGivesUp(t *testing.T) {
	sleepFn = noSleepFn
	bus := &failingBus{failures: txRetries + 1}
	s := newService(bus, nil)

	_, err := s.Tx(0x48, []byte{0x01}, 2, 100)
	require.NotNil(t, err)
	assert.Equal(t, "org.cacophony.i2c.ErrorUsingI2CBus", err.Name)
}

func TestBusyPinHeldDuringTransaction(t *testing.T) {
	sleepFn = noSleepFn
	pin := &gpiotest.Pin{N: "GPIO13", L: gpio.Low}
	bus := &failingBus{busyPin: pin}
	s := newService(bus, pin)

	_, err := s.Tx(0x48, []byte{0x01}, 2, 100)
	require.Nil(t, err)
	assert.Equal(t, []gpio.Level{gpio.High}, bus.levels)
}

func TestBusyPinTimeout(t *testing.T) {
	sleepFn = noSleepFn
	pin := &gpiotest.Pin{N: "GPIO13", L: gpio.High}
	bus := &failingBus{}
	s := newService(bus, pin)

	_, err := s.Tx(0x48, []byte{0x01}, 2, 0)
	require.NotNil(t, err)
	assert.Equal(t, "org.cacophony.i2c.BusyTimeout", err.Name)
	assert.Equal(t, 0, bus.calls)
}
