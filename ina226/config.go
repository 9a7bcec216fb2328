// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Configuration register layout.
//
//	 15   14  13  12   11   10    9      8       7       6      5      4      3      2     1     0
//	RST   -   -   -  AVG2 AVG1 AVG0 VBUSCT2 VBUSCT1 VBUSCT0 VSHCT2 VSHCT1 VSHCT0 MODE3 MODE2 MODE1
const (
	configReset uint16 = 1 << 15

	avgShift     = 9
	busCTShift   = 6
	shuntCTShift = 3
	fieldMask    = 0x07
)

// Averaging selects how many samples the chip averages per conversion.
type Averaging uint16

const (
	Avg1 Averaging = iota // power-on default
	Avg4
	Avg16
	Avg64
	Avg128
	Avg256
	Avg512
	Avg1024
)

var averagingCounts = [...]int{1, 4, 16, 64, 128, 256, 512, 1024}

// Count returns the number of samples averaged.
func (a Averaging) Count() int {
	if int(a) >= len(averagingCounts) {
		return 0
	}
	return averagingCounts[a]
}

func (a Averaging) String() string {
	if c := a.Count(); c != 0 {
		return fmt.Sprintf("%d samples", c)
	}
	return fmt.Sprintf("Averaging(%d)", uint16(a))
}

// ConversionTime selects the ADC conversion time for one channel.
type ConversionTime uint16

const (
	CT140us ConversionTime = iota
	CT204us
	CT332us
	CT588us
	CT1100us // power-on default
	CT2116us
	CT4156us
	CT8244us
)

var conversionTimes = [...]time.Duration{
	140 * time.Microsecond,
	204 * time.Microsecond,
	332 * time.Microsecond,
	588 * time.Microsecond,
	1100 * time.Microsecond,
	2116 * time.Microsecond,
	4156 * time.Microsecond,
	8244 * time.Microsecond,
}

// Duration returns the conversion time, or 0 for an invalid value.
func (c ConversionTime) Duration() time.Duration {
	if int(c) >= len(conversionTimes) {
		return 0
	}
	return conversionTimes[c]
}

func (c ConversionTime) String() string {
	if d := c.Duration(); d != 0 {
		return d.String()
	}
	return fmt.Sprintf("ConversionTime(%d)", uint16(c))
}

// ConversionTimeFromDuration returns the ConversionTime matching d exactly.
func ConversionTimeFromDuration(d time.Duration) (ConversionTime, error) {
	for i, ct := range conversionTimes {
		if ct == d {
			return ConversionTime(i), nil
		}
	}
	return 0, fmt.Errorf("ina226: unsupported conversion time %s", d)
}

// AveragingFromCount returns the Averaging matching n samples exactly.
func AveragingFromCount(n int) (Averaging, error) {
	for i, c := range averagingCounts {
		if c == n {
			return Averaging(i), nil
		}
	}
	return 0, fmt.Errorf("ina226: unsupported averaging count %d", n)
}

// Mode is the operating mode field of the configuration register.
type Mode uint16

const (
	ModePowerDown Mode = iota
	ModeShuntTriggered
	ModeBusTriggered
	ModeShuntBusTriggered
	ModeADCOff
	ModeShuntContinuous
	ModeBusContinuous
	ModeShuntBusContinuous // power-on default
)

// Logger is what the driver logs to. *zap.SugaredLogger and golog loggers
// satisfy it.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Opts holds the configuration options for the device.
type Opts struct {
	// Averaging, BusConversionTime, ShuntConversionTime and Mode are written
	// to the configuration register on Reset.
	Averaging           Averaging
	BusConversionTime   ConversionTime
	ShuntConversionTime ConversionTime
	Mode                Mode
	// ShuntResistance is restored on every Reset. 0 means
	// DefaultShuntResistance.
	ShuntResistance physic.ElectricResistance
	// DatasheetScaling selects the datasheet LSBs of 1.25mV for the bus and
	// 2.5µV for the shunt. By default both are ten times smaller, matching
	// the readings of deployed Mongoose OS firmware.
	DatasheetScaling bool
	// Logger receives detection, reset and raw register messages. nil
	// discards them.
	Logger Logger
}

const (
	// DefaultAddress is the address with A0 and A1 tied to GND.
	DefaultAddress i2c.Addr = 0x40
	// DefaultShuntResistance gives ±819.2mA full scale with the 81.92mV
	// shunt range.
	DefaultShuntResistance = 100 * physic.MilliOhm
)

// DefaultOpts continuously converts both channels with one sample of
// 1.1ms each.
var DefaultOpts = Opts{
	Averaging:           Avg1,
	BusConversionTime:   CT1100us,
	ShuntConversionTime: CT1100us,
	Mode:                ModeShuntBusContinuous,
	ShuntResistance:     DefaultShuntResistance,
}

var errInvalidOpts = errors.New("ina226: invalid options")

// configWord returns the configuration register value for o.
func (o *Opts) configWord() (uint16, error) {
	if uint16(o.Averaging) > fieldMask {
		return 0, fmt.Errorf("%w: averaging %d", errInvalidOpts, o.Averaging)
	}
	if uint16(o.BusConversionTime) > fieldMask {
		return 0, fmt.Errorf("%w: bus conversion time %d", errInvalidOpts, o.BusConversionTime)
	}
	if uint16(o.ShuntConversionTime) > fieldMask {
		return 0, fmt.Errorf("%w: shunt conversion time %d", errInvalidOpts, o.ShuntConversionTime)
	}
	if uint16(o.Mode) > fieldMask {
		return 0, fmt.Errorf("%w: mode %d", errInvalidOpts, o.Mode)
	}
	v := uint16(o.Averaging) << avgShift
	v |= uint16(o.BusConversionTime) << busCTShift
	v |= uint16(o.ShuntConversionTime) << shuntCTShift
	v |= uint16(o.Mode)
	return v, nil
}

// cycle is the time one conversion of both channels takes.
func (o *Opts) cycle() time.Duration {
	return (o.BusConversionTime.Duration() + o.ShuntConversionTime.Duration()) * time.Duration(o.Averaging.Count())
}

func nopLogger() Logger {
	return zap.NewNop().Sugar()
}
