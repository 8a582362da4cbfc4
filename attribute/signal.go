package attribute

import (
	"github.com/godbus/dbus"
)

const (
	signalPath = dbus.ObjectPath("/org/cacophony/SoilMoisture")
	signalName = "org.cacophony.SoilMoisture.Attribute"
)

type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// SignalPublisher broadcasts every published attribute as a D-Bus signal so
// other services on the device (comms, display) can follow the readings.
type SignalPublisher struct {
	conn emitter
}

func NewSignalPublisher() (*SignalPublisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return &SignalPublisher{conn: conn}, nil
}

func (p *SignalPublisher) PublishAttribute(cluster Cluster, id ID, value int) {
	if err := p.conn.Emit(signalPath, signalName, uint16(cluster), uint16(id), int32(value)); err != nil {
		log.Errorf("Failed to emit attribute signal: %v", err)
	}
}
