package moisture

import (
	"errors"
	"fmt"
)

// SensorFault is an implausible raw reading, taken as a disconnected probe or
// an unpowered probe rail rather than as a very dry reading.
type SensorFault struct {
	Millivolts int
	Threshold  int
}

func (e *SensorFault) Error() string {
	return fmt.Sprintf("probe disconnected: %d mV is below %d mV", e.Millivolts, e.Threshold)
}

// DriverError is a failed read at the ADC layer.
type DriverError struct {
	Channel Channel
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("failed to read %s channel: %v", e.Channel, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// ConfigError is an invalid setting found at start up.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func NewConfigError(format string, a ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, a...)}
}

func faultKind(err error) string {
	var sensorFault *SensorFault
	var driverErr *DriverError
	switch {
	case errors.As(err, &sensorFault):
		return "disconnected"
	case errors.As(err, &driverErr):
		return "driver"
	}
	return "unknown"
}
