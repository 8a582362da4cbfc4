package moisture

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.SoilMoisture"
	dbusPath = "/org/cacophony/SoilMoisture"

	requestTimeout = 30 * time.Second
)

type service struct {
	engine *Engine
}

func startService(engine *Engine) error {
	log.Info("Starting soil moisture service")
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{engine: engine}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

/*
dbus-send --system --print-reply --dest=org.cacophony.SoilMoisture /org/cacophony/SoilMoisture \
org.cacophony.SoilMoisture.MeasureMoisture
*/

// MeasureMoisture runs a probe measurement and returns the smoothed humidity
// in hundredths of a percent.
func (s service) MeasureMoisture() (int32, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	st, err := s.engine.MeasureMoisture(ctx)
	if err != nil {
		return 0, makeDbusError("MeasureMoisture", err)
	}
	if st.Fault != "" {
		return 0, makeDbusError("MeasureMoisture", errors.New(st.Fault))
	}
	if st.Moisture == nil {
		return 0, makeDbusError("MeasureMoisture", errors.New("no moisture reading"))
	}
	return int32(st.Moisture.Smoothed), nil
}

// MeasureBattery returns the filtered battery millivolts and the capacity in
// half percent.
func (s service) MeasureBattery() (int32, int32, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	st, err := s.engine.MeasureBattery(ctx)
	if err != nil {
		return 0, 0, makeDbusError("MeasureBattery", err)
	}
	if st.Battery == nil {
		return 0, 0, makeDbusError("MeasureBattery", errors.New("no battery reading"))
	}
	return int32(st.Battery.Millivolts), int32(st.Battery.Percent), nil
}

func (s service) SetJoined(joined bool) *dbus.Error {
	log.Infof("Join state set to %t over D-Bus", joined)
	s.engine.SetJoined(joined)
	return nil
}

// Status returns the engine status as JSON.
func (s service) Status() (string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	st, err := s.engine.Status(ctx)
	if err != nil {
		return "", makeDbusError("Status", err)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", makeDbusError("Status", err)
	}
	return string(raw), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
