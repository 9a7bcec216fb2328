// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/mmr"
	"periph.io/x/conn/v3/physic"
)

const (
	regConfig         uint8 = 0x00 // CONFIGURATION REGISTER (R/W)
	regShuntVoltage   uint8 = 0x01 // SHUNT VOLTAGE REGISTER (R)
	regBusVoltage     uint8 = 0x02 // BUS VOLTAGE REGISTER (R)
	regPower          uint8 = 0x03 // POWER REGISTER (R), unused
	regCurrent        uint8 = 0x04 // CURRENT REGISTER (R), unused
	regCalibration    uint8 = 0x05 // CALIBRATION REGISTER (R/W), unused
	regManufacturerID uint8 = 0xFE // MANUFACTURER ID REGISTER (R)
	regDieID          uint8 = 0xFF // DIE ID REGISTER (R)

	manufacturerTI uint16 = 0x5449 // "TI"
	dieIDINA226    uint16 = 0x2260
	dieIDMask      uint16 = 0xfff0

	// The chip needs this long after a configuration write.
	settleDelay = 2 * time.Millisecond

	// Scaling of the Mongoose OS driver, a tenth of the datasheet LSB.
	busVoltageLSB   = 125 * physic.MicroVolt
	shuntVoltageLSB = 250 * physic.NanoVolt

	datasheetBusVoltageLSB   = 1250 * physic.MicroVolt
	datasheetShuntVoltageLSB = 2500 * physic.NanoVolt

	// readSentinel is what the original transport returned on a failed
	// read. A register reading of 0xffff is still treated as a failure.
	readSentinel int16 = -1
)

var (
	// ErrNilBus is returned by NewI2C when no bus is given.
	ErrNilBus = errors.New("ina226: nil i2c bus")
	// ErrNotDetected is returned by NewI2C when the id registers don't match
	// an INA226.
	ErrNotDetected = errors.New("ina226: device is not an INA226")
	// ErrInvalidReading is returned when a voltage register reads 0xffff.
	ErrInvalidReading = errors.New("ina226: register read returned 0xffff")
	// ErrInvalidShuntResistance is returned by Current when the shunt
	// resistance is zero.
	ErrInvalidShuntResistance = errors.New("ina226: shunt resistance is zero")
	// ErrClosed is returned by any operation on a closed or nil Dev.
	ErrClosed = errors.New("ina226: device is closed")
)

// PowerMonitor is one set of readings.
type PowerMonitor struct {
	Shunt   physic.ElectricPotential
	Voltage physic.ElectricPotential
	Current physic.ElectricCurrent
	Power   physic.Power
}

func (p PowerMonitor) String() string {
	return fmt.Sprintf("Bus: %s, Shunt: %s, Current: %s, Power: %s", p.Voltage, p.Shunt, p.Current, p.Power)
}

// Dev is a handle to an initialized INA226.
type Dev struct {
	d     *i2c.Dev
	m     mmr.Dev8
	opts  Opts
	log   Logger
	shunt physic.ElectricResistance

	mu       sync.Mutex
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewI2C probes for an INA226 at addr on b, resets it and configures it from
// opts. The Opts can be nil, in which case DefaultOpts is used.
//
// No handle is returned if the probe or the reset fails.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if b == nil {
		return nil, ErrNilBus
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.ShuntResistance == 0 {
		o.ShuntResistance = DefaultShuntResistance
	}
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
	if _, err := o.configWord(); err != nil {
		return nil, err
	}

	c := &i2c.Dev{Bus: b, Addr: addr}
	m := mmr.Dev8{Conn: c, Order: binary.BigEndian}
	if err := detect(&m); err != nil {
		o.Logger.Errorf("I2C 0x%02x is not an INA226: %v", addr, err)
		return nil, err
	}

	d := &Dev{d: c, m: m, opts: o, log: o.Logger}
	if err := d.Reset(); err != nil {
		o.Logger.Infof("could not reset INA226 at I2C 0x%02x: %v", addr, err)
		return nil, err
	}
	o.Logger.Infof("INA226 initialized at I2C 0x%02x", addr)
	return d, nil
}

// detect compares the id registers with the values an INA226 reports. A
// chip with the same values at the same address passes as well.
func detect(m *mmr.Dev8) error {
	manID, err := m.ReadUint16(regManufacturerID)
	if err != nil {
		return fmt.Errorf("ina226: reading manufacturer id %w", err)
	}
	dieID, err := m.ReadUint16(regDieID)
	if err != nil {
		return fmt.Errorf("ina226: reading die id %w", err)
	}
	if manID != manufacturerTI || dieID&dieIDMask != dieIDINA226 {
		return fmt.Errorf("%w: manufacturer id 0x%04x, die id 0x%04x", ErrNotDetected, manID, dieID)
	}
	return nil
}

// Reset soft-resets the chip, writes the configuration from Opts and
// restores the configured shunt resistance.
//
// A failed write aborts the sequence and may leave the chip partially
// configured.
func (d *Dev) Reset() error {
	if d == nil {
		return ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return ErrClosed
	}
	if err := d.m.WriteUint16(regConfig, configReset); err != nil {
		return fmt.Errorf("ina226: reset %w", err)
	}
	time.Sleep(settleDelay)

	cfg, err := d.opts.configWord()
	if err != nil {
		return err
	}
	if err := d.m.WriteUint16(regConfig, cfg); err != nil {
		return fmt.Errorf("ina226: writing configuration %w", err)
	}
	time.Sleep(settleDelay)

	d.shunt = d.opts.ShuntResistance
	return nil
}

// BusVoltage returns the voltage on the VBUS pin.
func (d *Dev) BusVoltage() (physic.ElectricPotential, error) {
	if d == nil {
		return 0, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busVoltage()
}

// ShuntVoltage returns the voltage across the shunt resistor.
func (d *Dev) ShuntVoltage() (physic.ElectricPotential, error) {
	if d == nil {
		return 0, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shuntVoltage()
}

// Current returns the shunt voltage divided by the shunt resistance.
func (d *Dev) Current() (physic.ElectricCurrent, error) {
	if d == nil {
		return 0, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.shuntVoltage()
	if err != nil {
		return 0, err
	}
	return d.current(v)
}

// Sense reads the shunt and bus voltages and derives current and power.
func (d *Dev) Sense() (PowerMonitor, error) {
	if d == nil {
		return PowerMonitor{}, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var p PowerMonitor
	var err error
	if p.Shunt, err = d.shuntVoltage(); err != nil {
		return p, err
	}
	if p.Voltage, err = d.busVoltage(); err != nil {
		return p, err
	}
	if p.Current, err = d.current(p.Shunt); err != nil {
		return p, err
	}
	// nV * nA overflows int64 above a few amps at 40V.
	p.Power = physic.Power(math.Round(float64(p.Voltage) * float64(p.Current) / float64(physic.Volt)))
	return p, nil
}

// SenseContinuous calls Sense every interval and sends the result on the
// returned channel. Failed readings are dropped. Call Halt to stop; the
// channel is closed once it has.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan PowerMonitor, error) {
	if d == nil {
		return nil, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return nil, ErrClosed
	}
	if d.shutdown != nil {
		return nil, errors.New("ina226: SenseContinuous already running")
	}
	if cycle := d.opts.cycle(); interval < cycle {
		return nil, fmt.Errorf("ina226: interval %s is shorter than the conversion cycle %s", interval, cycle)
	}

	stop := make(chan struct{})
	d.shutdown = stop
	ch := make(chan PowerMonitor, 16)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				p, err := d.Sense()
				if err != nil {
					d.log.Debugf("ina226: dropped reading: %v", err)
					continue
				}
				select {
				case ch <- p:
				case <-stop:
					return
				}
			}
		}
	}()
	return ch, nil
}

// Halt stops a running SenseContinuous. Implements conn.Resource.
func (d *Dev) Halt() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	stop := d.shutdown
	d.shutdown = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

// Close halts the device and releases the bus. Every later call returns
// ErrClosed. Closing a nil or closed Dev does nothing.
func (d *Dev) Close() error {
	if d == nil {
		return nil
	}
	if err := d.Halt(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.d = nil
	d.m.Conn = nil
	return nil
}

// SetShuntResistance sets the resistance used by Current. The value is not
// validated: zero makes Current fail and a negative value inverts its sign.
func (d *Dev) SetShuntResistance(r physic.ElectricResistance) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shunt = r
}

// ShuntResistance returns the resistance used by Current.
func (d *Dev) ShuntResistance() physic.ElectricResistance {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shunt
}

// ManufacturerID returns the manufacturer id register, 0x5449 for TI.
func (d *Dev) ManufacturerID() (uint16, error) {
	return d.readRegister(regManufacturerID)
}

// DieID returns the die id register. The upper 12 bits are the device id
// and the lower 4 the die revision.
func (d *Dev) DieID() (uint16, error) {
	return d.readRegister(regDieID)
}

// Configuration returns the raw configuration register.
func (d *Dev) Configuration() (uint16, error) {
	return d.readRegister(regConfig)
}

func (d *Dev) String() string {
	if d == nil {
		return "ina226{closed}"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return "ina226{closed}"
	}
	return fmt.Sprintf("ina226{%s}", d.d)
}

func (d *Dev) readRegister(reg uint8) (uint16, error) {
	if d == nil {
		return 0, ErrClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return 0, ErrClosed
	}
	v, err := d.m.ReadUint16(reg)
	if err != nil {
		return 0, fmt.Errorf("ina226: reading register 0x%02x %w", reg, err)
	}
	return v, nil
}

// readSigned reads a signed voltage register. d.mu must be held.
func (d *Dev) readSigned(reg uint8) (int16, error) {
	if d.d == nil {
		return 0, ErrClosed
	}
	v, err := d.m.ReadUint16(reg)
	if err != nil {
		return 0, fmt.Errorf("ina226: reading register 0x%02x %w", reg, err)
	}
	raw := int16(v)
	if raw == readSentinel {
		return 0, ErrInvalidReading
	}
	return raw, nil
}

func (d *Dev) busVoltage() (physic.ElectricPotential, error) {
	raw, err := d.readSigned(regBusVoltage)
	if err != nil {
		return 0, err
	}
	d.log.Debugf("Vbus = %d", raw)
	lsb := busVoltageLSB
	if d.opts.DatasheetScaling {
		lsb = datasheetBusVoltageLSB
	}
	return physic.ElectricPotential(raw) * lsb, nil
}

func (d *Dev) shuntVoltage() (physic.ElectricPotential, error) {
	raw, err := d.readSigned(regShuntVoltage)
	if err != nil {
		return 0, err
	}
	d.log.Debugf("Vshunt = %d", raw)
	lsb := shuntVoltageLSB
	if d.opts.DatasheetScaling {
		lsb = datasheetShuntVoltageLSB
	}
	return physic.ElectricPotential(raw) * lsb, nil
}

// current applies Ohm's law in nano units. |v| stays below 2^27 nV so
// v*1e9 fits in an int64.
func (d *Dev) current(v physic.ElectricPotential) (physic.ElectricCurrent, error) {
	if d.shunt == 0 {
		return 0, ErrInvalidShuntResistance
	}
	i := physic.ElectricCurrent(int64(v) * int64(physic.Ohm) / int64(d.shunt))
	d.log.Debugf("Rshunt=%s, Vshunt=%s, Ishunt=%s", d.shunt, v, i)
	return i, nil
}

var _ conn.Resource = &Dev{}
