package attribute

import (
	"errors"
	"testing"

	"github.com/godbus/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signal struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type fakeEmitter struct {
	signals []signal
	err     error
}

func (e *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	e.signals = append(e.signals, signal{path: path, name: name, values: values})
	return e.err
}

func TestSignalPublisher(t *testing.T) {
	conn := &fakeEmitter{}
	p := &SignalPublisher{conn: conn}

	p.PublishAttribute(RelativeHumidity, MeasuredValue, 7700)

	require.Len(t, conn.signals, 1)
	s := conn.signals[0]
	assert.Equal(t, dbus.ObjectPath("/org/cacophony/SoilMoisture"), s.path)
	assert.Equal(t, "org.cacophony.SoilMoisture.Attribute", s.name)
	assert.Equal(t, []interface{}{uint16(0x0405), uint16(0), int32(7700)}, s.values)
}

func TestSignalPublisherErrorIsNotFatal(t *testing.T) {
	p := &SignalPublisher{conn: &fakeEmitter{err: errors.New("bus closed")}}
	require.NotPanics(t, func() {
		p.PublishAttribute(PowerConfig, BatteryVoltage, 27)
	})
}
