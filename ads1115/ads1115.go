/*
soil-moisture-node - Measures soil moisture and battery health
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

// Package ads1115 makes single-shot conversions on a TI ADS1115 through the
// shared i2c service.
package ads1115

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/soil-moisture-node/i2crequest"
)

const (
	DefaultAddress = 0x48

	regConversion = 0x00
	regConfig     = 0x01

	configOS       = 1 << 15
	configMuxBase  = 0x4 << 12 // AINx against GND
	configPGA4096  = 0x1 << 9  // +-4.096V, 125uV per bit
	configSingle   = 1 << 8
	configDR128    = 0x4 << 5
	configNoComp   = 0x3
	fullScaleMilli = 4096

	conversionWait = 9 * time.Millisecond
	maxPolls       = 5
	txTimeoutMs    = 1000
)

var log = logging.NewLogger("info")

var sleepFn = time.Sleep

var ErrNotReady = errors.New("ads1115 conversion was not ready")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	log = l
}

// Dev is one ADS1115 on the bus.
type Dev struct {
	Address byte
}

// New returns a Dev at the given address, using DefaultAddress when it is zero.
func New(address byte) *Dev {
	if address == 0 {
		address = DefaultAddress
	}
	return &Dev{Address: address}
}

func configWord(channel int) uint16 {
	return configOS | configMuxBase | uint16(channel&0x3)<<12 | configPGA4096 | configSingle | configDR128 | configNoComp
}

// ReadMillivolts starts a single-shot conversion on the single-ended input
// channel (0-3) and returns the result in millivolts. Readings below ground
// are reported as 0.
func (d *Dev) ReadMillivolts(channel int) (int, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("invalid ads1115 channel %d", channel)
	}

	word := configWord(channel)
	if _, err := i2crequest.Tx(d.Address, []byte{regConfig, byte(word >> 8), byte(word)}, 0, txTimeoutMs); err != nil {
		return 0, fmt.Errorf("failed to start conversion: %w", err)
	}

	ready := false
	for range maxPolls {
		sleepFn(conversionWait)
		status, err := i2crequest.Tx(d.Address, []byte{regConfig}, 2, txTimeoutMs)
		if err != nil {
			return 0, err
		}
		if len(status) != 2 {
			return 0, fmt.Errorf("config register length: %d", len(status))
		}
		// OS bit reads back as 1 once the device is idle again.
		if status[0]&0x80 != 0 {
			ready = true
			break
		}
		log.Debug("ADS1115 conversion is not yet ready")
	}
	if !ready {
		return 0, ErrNotReady
	}

	raw, err := i2crequest.Tx(d.Address, []byte{regConversion}, 2, txTimeoutMs)
	if err != nil {
		return 0, err
	}
	if len(raw) != 2 {
		return 0, fmt.Errorf("conversion register length: %d", len(raw))
	}

	value := int(int16(uint16(raw[0])<<8 | uint16(raw[1])))
	mv := value * fullScaleMilli / 32768
	if mv < 0 {
		mv = 0
	}
	log.Debugf("ADS1115 0x%X channel %d: raw %d, %d mV", d.Address, channel, value, mv)
	return mv, nil
}

// Present checks that something answers at the device address.
func (d *Dev) Present() (bool, error) {
	return i2crequest.CheckAddress(d.Address, txTimeoutMs)
}
