// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ina226

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const addr = uint16(DefaultAddress)

// word encodes a register value the way the chip sends it.
func word(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

// probeOps answers the identity probe.
func probeOps(manID, dieID uint16) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{regManufacturerID}, R: word(manID)},
		{Addr: addr, W: []byte{regDieID}, R: word(dieID)},
	}
}

// initOps is the full create sequence for configuration word cfg.
func initOps(cfg uint16) []i2ctest.IO {
	ops := probeOps(0x5449, 0x2260)
	return append(ops,
		i2ctest.IO{Addr: addr, W: []byte{regConfig, 0x80, 0x00}}, // soft reset
		i2ctest.IO{Addr: addr, W: append([]byte{regConfig}, word(cfg)...)},
	)
}

func readOp(reg uint8, raw int16) i2ctest.IO {
	return i2ctest.IO{Addr: addr, W: []byte{reg}, R: word(uint16(raw))}
}

func getDev(t *testing.T, opts *Opts, ops ...i2ctest.IO) (*Dev, *i2ctest.Playback) {
	t.Helper()
	cfg := uint16(0x0127)
	if opts != nil {
		var err error
		if cfg, err = opts.configWord(); err != nil {
			t.Fatal(err)
		}
	}
	pb := &i2ctest.Playback{Ops: append(initOps(cfg), ops...), DontPanic: true}
	dev, err := NewI2C(pb, addr, opts)
	if err != nil {
		t.Fatal(err)
	}
	return dev, pb
}

func TestNewI2C(t *testing.T) {
	pb := &i2ctest.Playback{Ops: initOps(0x0127), DontPanic: true}
	record := &i2ctest.Record{Bus: pb}
	dev, err := NewI2C(record, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
	if len(record.Ops) != 4 {
		t.Errorf("expected 4 transactions, got %#v", record.Ops)
	}
	if r := dev.ShuntResistance(); r != 100*physic.MilliOhm {
		t.Errorf("shunt resistance %s, expected 100mΩ", r)
	}
	if s := dev.String(); len(s) == 0 {
		t.Error("invalid String() result")
	} else {
		t.Log(s)
	}
}

func TestNewI2CNilBus(t *testing.T) {
	dev, err := NewI2C(nil, addr, nil)
	if !errors.Is(err, ErrNilBus) {
		t.Errorf("expected ErrNilBus, got %v", err)
	}
	if dev != nil {
		t.Error("handle returned for nil bus")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		manID, dieID uint16
		ok           bool
	}{
		{0x5449, 0x2260, true},
		{0x5449, 0x226f, true}, // die revision is ignored
		{0x5448, 0x2260, false},
		{0x5449, 0x2270, false},
		{0x5449, 0x2240, false},
		{0x0000, 0x0000, false},
		{0xffff, 0xffff, false},
	}
	for _, test := range tests {
		ops := probeOps(test.manID, test.dieID)
		if test.ok {
			ops = initOps(0x0127)
			ops[0].R = word(test.manID)
			ops[1].R = word(test.dieID)
		}
		pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
		dev, err := NewI2C(pb, addr, nil)
		if test.ok {
			if err != nil || dev == nil {
				t.Errorf("0x%04x/0x%04x: unexpected error %v", test.manID, test.dieID, err)
			}
		} else {
			if !errors.Is(err, ErrNotDetected) {
				t.Errorf("0x%04x/0x%04x: expected ErrNotDetected, got %v", test.manID, test.dieID, err)
			}
			if dev != nil {
				t.Errorf("0x%04x/0x%04x: handle returned", test.manID, test.dieID)
			}
		}
		if err := pb.Close(); err != nil {
			t.Errorf("0x%04x/0x%04x: %v", test.manID, test.dieID, err)
		}
	}
}

func TestDetectReadError(t *testing.T) {
	// Nothing answers.
	pb := &i2ctest.Playback{DontPanic: true}
	dev, err := NewI2C(pb, addr, nil)
	if err == nil || dev != nil {
		t.Fatalf("expected failure, got dev=%v err=%v", dev, err)
	}
	if errors.Is(err, ErrNotDetected) {
		t.Error("transport failure reported as a mismatch")
	}
}

// TestResetFailure fails each write of the reset sequence in turn.
func TestResetFailure(t *testing.T) {
	full := initOps(0x0127)
	opts := DefaultOpts
	opts.Logger = zaptest.NewLogger(t).Sugar()
	for n := 2; n < len(full); n++ {
		pb := &i2ctest.Playback{Ops: full[:n], DontPanic: true}
		dev, err := NewI2C(pb, addr, &opts)
		if err == nil {
			t.Errorf("%d ops: expected error", n)
		}
		if dev != nil {
			t.Errorf("%d ops: handle returned after failed reset", n)
		}
	}
}

func TestOptsConfigWord(t *testing.T) {
	tests := []struct {
		opts Opts
		want uint16
	}{
		{DefaultOpts, 0x0127},
		{Opts{Averaging: Avg16, BusConversionTime: CT140us, ShuntConversionTime: CT8244us, Mode: ModeBusContinuous}, 0x043e},
		{Opts{Averaging: Avg1024, BusConversionTime: CT8244us, ShuntConversionTime: CT8244us, Mode: ModeShuntBusContinuous}, 0x0fff},
		{Opts{Mode: ModePowerDown}, 0x0000},
	}
	for _, test := range tests {
		got, err := test.opts.configWord()
		if err != nil {
			t.Error(err)
			continue
		}
		if got != test.want {
			t.Errorf("configWord() = 0x%04x, expected 0x%04x", got, test.want)
		}
	}

	bad := []Opts{
		{Averaging: 8},
		{BusConversionTime: 9},
		{ShuntConversionTime: 0xffff},
		{Mode: 8},
	}
	for _, o := range bad {
		if _, err := o.configWord(); err == nil {
			t.Errorf("%#v: expected error", o)
		}
		if _, err := NewI2C(&i2ctest.Playback{DontPanic: true}, addr, &o); err == nil {
			t.Errorf("%#v: NewI2C accepted invalid options", o)
		}
	}
}

func TestEnums(t *testing.T) {
	if c := Avg128.Count(); c != 128 {
		t.Errorf("Avg128.Count() = %d", c)
	}
	if c := Averaging(8).Count(); c != 0 {
		t.Errorf("Averaging(8).Count() = %d", c)
	}
	if d := CT1100us.Duration(); d != 1100*time.Microsecond {
		t.Errorf("CT1100us.Duration() = %s", d)
	}
	if s := CT2116us.String(); s != "2.116ms" {
		t.Errorf("CT2116us.String() = %q", s)
	}
	if ct, err := ConversionTimeFromDuration(588 * time.Microsecond); err != nil || ct != CT588us {
		t.Errorf("ConversionTimeFromDuration(588µs) = %v, %v", ct, err)
	}
	if _, err := ConversionTimeFromDuration(time.Millisecond); err == nil {
		t.Error("ConversionTimeFromDuration(1ms) did not fail")
	}
	if a, err := AveragingFromCount(64); err != nil || a != Avg64 {
		t.Errorf("AveragingFromCount(64) = %v, %v", a, err)
	}
	if _, err := AveragingFromCount(3); err == nil {
		t.Error("AveragingFromCount(3) did not fail")
	}
	if cycle := DefaultOpts.cycle(); cycle != 2200*time.Microsecond {
		t.Errorf("default cycle %s", cycle)
	}
}

func TestBusVoltage(t *testing.T) {
	tests := []struct {
		raw       int16
		datasheet bool
		want      physic.ElectricPotential
	}{
		{8000, false, physic.Volt},
		{8000, true, 10 * physic.Volt},
		{1, false, 125 * physic.MicroVolt},
		{1, true, 1250 * physic.MicroVolt},
		{0, false, 0},
		{-8, true, -10 * physic.MilliVolt},
		{32767, true, 40958750 * physic.MicroVolt},
	}
	for _, test := range tests {
		opts := DefaultOpts
		opts.DatasheetScaling = test.datasheet
		dev, pb := getDev(t, &opts, readOp(regBusVoltage, test.raw))
		v, err := dev.BusVoltage()
		if err != nil {
			t.Error(err)
		} else if v != test.want {
			t.Errorf("raw %d datasheet=%t: got %s, expected %s", test.raw, test.datasheet, v, test.want)
		}
		if err := pb.Close(); err != nil {
			t.Error(err)
		}
	}
}

func TestShuntVoltage(t *testing.T) {
	tests := []struct {
		raw       int16
		datasheet bool
		want      physic.ElectricPotential
	}{
		{4000, false, physic.MilliVolt},
		{4000, true, 10 * physic.MilliVolt},
		{-4000, true, -10 * physic.MilliVolt},
		{1, false, 250 * physic.NanoVolt},
		{-32768, true, -81920 * physic.MicroVolt},
	}
	for _, test := range tests {
		opts := DefaultOpts
		opts.DatasheetScaling = test.datasheet
		dev, pb := getDev(t, &opts, readOp(regShuntVoltage, test.raw))
		v, err := dev.ShuntVoltage()
		if err != nil {
			t.Error(err)
		} else if v != test.want {
			t.Errorf("raw %d datasheet=%t: got %s, expected %s", test.raw, test.datasheet, v, test.want)
		}
		if err := pb.Close(); err != nil {
			t.Error(err)
		}
	}
}

func TestCurrent(t *testing.T) {
	tests := []struct {
		raw       int16
		datasheet bool
		shunt     physic.ElectricResistance
		want      physic.ElectricCurrent
	}{
		// 1mV across 100mΩ.
		{4000, false, 100 * physic.MilliOhm, 10 * physic.MilliAmpere},
		{4000, true, 100 * physic.MilliOhm, 100 * physic.MilliAmpere},
		{-4000, true, 100 * physic.MilliOhm, -100 * physic.MilliAmpere},
		{4000, true, 2 * physic.MilliOhm, 5 * physic.Ampere},
		{3, true, 3 * physic.Ohm, 2500 * physic.NanoAmpere},
		// No clamping beyond the full scale range.
		{32767, true, physic.MilliOhm, 81917500 * physic.MicroAmpere},
	}
	for _, test := range tests {
		opts := DefaultOpts
		opts.DatasheetScaling = test.datasheet
		dev, pb := getDev(t, &opts, readOp(regShuntVoltage, test.raw))
		dev.SetShuntResistance(test.shunt)
		i, err := dev.Current()
		if err != nil {
			t.Errorf("raw %d: Current() failed on a successful reading: %v", test.raw, err)
		} else if i != test.want {
			t.Errorf("raw %d shunt %s: got %s, expected %s", test.raw, test.shunt, i, test.want)
		}
		if err := pb.Close(); err != nil {
			t.Error(err)
		}
	}
}

func TestSentinel(t *testing.T) {
	dev, pb := getDev(t, nil,
		readOp(regBusVoltage, -1),
		readOp(regShuntVoltage, -1),
		readOp(regShuntVoltage, -1),
		readOp(regShuntVoltage, -1),
	)
	if _, err := dev.BusVoltage(); !errors.Is(err, ErrInvalidReading) {
		t.Errorf("BusVoltage: expected ErrInvalidReading, got %v", err)
	}
	if _, err := dev.ShuntVoltage(); !errors.Is(err, ErrInvalidReading) {
		t.Errorf("ShuntVoltage: expected ErrInvalidReading, got %v", err)
	}
	if _, err := dev.Current(); !errors.Is(err, ErrInvalidReading) {
		t.Errorf("Current: expected ErrInvalidReading, got %v", err)
	}
	if _, err := dev.Sense(); !errors.Is(err, ErrInvalidReading) {
		t.Errorf("Sense: expected ErrInvalidReading, got %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestReadError(t *testing.T) {
	dev, _ := getDev(t, nil)
	// The playback has run out of operations.
	if _, err := dev.BusVoltage(); err == nil {
		t.Error("BusVoltage: expected error")
	}
	if _, err := dev.Current(); err == nil {
		t.Error("Current: expected error")
	}
}

func TestShuntResistance(t *testing.T) {
	dev, pb := getDev(t, nil,
		readOp(regShuntVoltage, 4000),
		readOp(regShuntVoltage, 4000),
	)
	dev.SetShuntResistance(50 * physic.MilliOhm)
	dev.SetShuntResistance(20 * physic.MilliOhm)
	if r := dev.ShuntResistance(); r != 20*physic.MilliOhm {
		t.Errorf("got %s, expected 20mΩ", r)
	}

	dev.SetShuntResistance(0)
	if _, err := dev.Current(); !errors.Is(err, ErrInvalidShuntResistance) {
		t.Errorf("expected ErrInvalidShuntResistance, got %v", err)
	}

	dev.SetShuntResistance(-100 * physic.MilliOhm)
	if i, err := dev.Current(); err != nil {
		t.Error(err)
	} else if i != -10*physic.MilliAmpere {
		t.Errorf("got %s, expected -10mA", i)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestReset(t *testing.T) {
	opts := DefaultOpts
	opts.ShuntResistance = 10 * physic.MilliOhm
	dev, pb := getDev(t, &opts, initOps(0x0127)[2:]...)
	dev.SetShuntResistance(physic.Ohm)
	if err := dev.Reset(); err != nil {
		t.Fatal(err)
	}
	if r := dev.ShuntResistance(); r != 10*physic.MilliOhm {
		t.Errorf("Reset() left shunt resistance at %s", r)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestIDs(t *testing.T) {
	dev, pb := getDev(t, nil,
		i2ctest.IO{Addr: addr, W: []byte{regManufacturerID}, R: word(0x5449)},
		i2ctest.IO{Addr: addr, W: []byte{regDieID}, R: word(0x2261)},
		i2ctest.IO{Addr: addr, W: []byte{regConfig}, R: word(0x4127)},
	)
	if id, err := dev.ManufacturerID(); err != nil || id != 0x5449 {
		t.Errorf("ManufacturerID() = 0x%04x, %v", id, err)
	}
	if id, err := dev.DieID(); err != nil || id != 0x2261 {
		t.Errorf("DieID() = 0x%04x, %v", id, err)
	}
	if cfg, err := dev.Configuration(); err != nil || cfg != 0x4127 {
		t.Errorf("Configuration() = 0x%04x, %v", cfg, err)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestSense(t *testing.T) {
	dev, pb := getDev(t, nil,
		readOp(regShuntVoltage, 4000), // 1mV
		readOp(regBusVoltage, 9600),   // 1.2V
	)
	p, err := dev.Sense()
	if err != nil {
		t.Fatal(err)
	}
	want := PowerMonitor{
		Shunt:   physic.MilliVolt,
		Voltage: 1200 * physic.MilliVolt,
		Current: 10 * physic.MilliAmpere,
		Power:   12 * physic.MilliWatt,
	}
	if p != want {
		t.Errorf("got %s, expected %s", p, want)
	}
	if err := pb.Close(); err != nil {
		t.Error(err)
	}
}

func TestSenseContinuous(t *testing.T) {
	readings := []int16{400, 800, 1200}
	var ops []i2ctest.IO
	for _, raw := range readings {
		ops = append(ops, readOp(regShuntVoltage, raw), readOp(regBusVoltage, 4000))
	}
	dev, _ := getDev(t, nil, ops...)

	if _, err := dev.SenseContinuous(time.Millisecond); err == nil {
		t.Error("SenseContinuous() accepted an interval shorter than a conversion")
	}
	ch, err := dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SenseContinuous(5 * time.Millisecond); err == nil {
		t.Error("expected an error for concurrent SenseContinuous")
	}
	for i, raw := range readings {
		select {
		case p := <-ch:
			want := physic.ElectricCurrent(raw) * 2500 * physic.NanoAmpere
			if p.Current != want {
				t.Errorf("reading %d: got %s, expected %s", i, p.Current, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a reading")
		}
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
	// The channel is closed after Halt.
	for range ch {
	}
	if err := dev.Halt(); err != nil {
		t.Error(err)
	}
}

func TestClose(t *testing.T) {
	dev, _ := getDev(t, nil)
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if _, err := dev.BusVoltage(); !errors.Is(err, ErrClosed) {
		t.Errorf("BusVoltage after Close: expected ErrClosed, got %v", err)
	}
	if _, err := dev.SenseContinuous(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("SenseContinuous after Close: expected ErrClosed, got %v", err)
	}
	if err := dev.Reset(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after Close: expected ErrClosed, got %v", err)
	}
	if s := dev.String(); s != "ina226{closed}" {
		t.Errorf("String() = %q", s)
	}

	var nilDev *Dev
	if err := nilDev.Close(); err != nil {
		t.Errorf("Close on nil Dev: %v", err)
	}
	if _, err := nilDev.Current(); !errors.Is(err, ErrClosed) {
		t.Errorf("Current on nil Dev: expected ErrClosed, got %v", err)
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	opts := DefaultOpts
	opts.Logger = zap.New(core).Sugar()

	pb := &i2ctest.Playback{Ops: append(initOps(0x0127), readOp(regBusVoltage, 42)), DontPanic: true}
	dev, err := NewI2C(pb, addr, &opts)
	if err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessage("INA226 initialized at I2C 0x40").Len(); n != 1 {
		t.Errorf("expected the initialization message, got %v", logs.All())
	}
	if _, err := dev.BusVoltage(); err != nil {
		t.Fatal(err)
	}
	if n := logs.FilterMessage("Vbus = 42").Len(); n != 1 {
		t.Errorf("expected the raw register message, got %v", logs.All())
	}

	pb = &i2ctest.Playback{Ops: probeOps(0x1234, 0x5678), DontPanic: true}
	if _, err := NewI2C(pb, addr, &opts); !errors.Is(err, ErrNotDetected) {
		t.Errorf("expected ErrNotDetected, got %v", err)
	}
	errs := logs.FilterLevelExact(zap.ErrorLevel).FilterMessageSnippet("I2C 0x40 is not an INA226")
	if errs.Len() != 1 {
		t.Errorf("expected the detection error, got %v", logs.All())
	}

	// The probe passes, the soft reset write is missing.
	pb = &i2ctest.Playback{Ops: probeOps(0x5449, 0x2260), DontPanic: true}
	if _, err := NewI2C(pb, addr, &opts); err == nil {
		t.Error("expected the reset to fail")
	}
	infos := logs.FilterLevelExact(zap.InfoLevel).FilterMessageSnippet("could not reset INA226 at I2C 0x40")
	if infos.Len() != 1 {
		t.Errorf("expected the reset failure at info level, got %v", logs.All())
	}
}
