/*
soil-moisture-node - Probe and battery hardware.
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
	"fmt"

	"github.com/TheCacophonyProject/soil-moisture-node/ads1115"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Channel is a logical analog input.
type Channel int

const (
	ProbeChannel Channel = iota
	BatteryChannel
)

func (c Channel) String() string {
	switch c {
	case ProbeChannel:
		return "probe"
	case BatteryChannel:
		return "battery"
	}
	return fmt.Sprintf("channel-%d", int(c))
}

// AnalogReader returns a calibrated reading in millivolts. A read takes one
// conversion time and never returns a value after an error.
type AnalogReader interface {
	ReadMillivolts(ch Channel) (int, error)
}

// ProbePower switches the excitation rail of the probe.
type ProbePower interface {
	SetProbePower(on bool)
}

// Indicator is the status LED.
type Indicator interface {
	SetLED(on bool)
}

// ADCReader reads logical channels from an ADS1115. Each channel has its own
// input and a multiplier for any resistor divider in front of it.
type ADCReader struct {
	dev         *ads1115.Dev
	inputs      map[Channel]int
	multipliers map[Channel]int
}

func NewADCReader(dev *ads1115.Dev, probeInput, batteryInput, batteryDivider int) *ADCReader {
	if batteryDivider < 1 {
		batteryDivider = 1
	}
	return &ADCReader{
		dev:         dev,
		inputs:      map[Channel]int{ProbeChannel: probeInput, BatteryChannel: batteryInput},
		multipliers: map[Channel]int{ProbeChannel: 1, BatteryChannel: batteryDivider},
	}
}

func (r *ADCReader) ReadMillivolts(ch Channel) (int, error) {
	input, ok := r.inputs[ch]
	if !ok {
		return 0, &DriverError{Channel: ch, Err: fmt.Errorf("no ADC input for channel")}
	}
	mv, err := r.dev.ReadMillivolts(input)
	if err != nil {
		return 0, &DriverError{Channel: ch, Err: err}
	}
	return mv * r.multipliers[ch], nil
}

func outputPin(name string) (gpio.PinIO, error) {
	log.Debugf("Initializing pin '%s'", name)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO pin %s not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, err
	}
	return pin, nil
}

func level(on bool) gpio.Level {
	if on {
		return gpio.High
	}
	return gpio.Low
}

// GPIOPower drives the probe rail from a GPIO pin, high is on.
type GPIOPower struct {
	pin gpio.PinIO
}

// NewGPIOPower opens the pin and leaves the probe off.
func NewGPIOPower(pinName string) (*GPIOPower, error) {
	pin, err := outputPin(pinName)
	if err != nil {
		return nil, err
	}
	return &GPIOPower{pin: pin}, nil
}

func (p *GPIOPower) SetProbePower(on bool) {
	if err := p.pin.Out(level(on)); err != nil {
		log.Errorf("Failed to set probe power pin %s: %v", p.pin, err)
	}
}

// GPIOIndicator drives the status LED from a GPIO pin, high is lit.
type GPIOIndicator struct {
	pin gpio.PinIO
}

func NewGPIOIndicator(pinName string) (*GPIOIndicator, error) {
	pin, err := outputPin(pinName)
	if err != nil {
		return nil, err
	}
	return &GPIOIndicator{pin: pin}, nil
}

func (l *GPIOIndicator) SetLED(on bool) {
	if err := l.pin.Out(level(on)); err != nil {
		log.Errorf("Failed to set LED pin %s: %v", l.pin, err)
	}
}

type noIndicator struct{}

func (noIndicator) SetLED(bool) {}
