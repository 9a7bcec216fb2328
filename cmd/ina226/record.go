// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/ina226/ina226"
	"github.com/fxamacker/cbor/v2"
	"periph.io/x/conn/v3/physic"
)

// Sample is one recorded reading. Values are in nano units.
type Sample struct {
	Time      time.Time `cbor:"1,keyasint"`
	ShuntNV   int64     `cbor:"2,keyasint"`
	BusNV     int64     `cbor:"3,keyasint"`
	CurrentNA int64     `cbor:"4,keyasint"`
	PowerNW   int64     `cbor:"5,keyasint"`
}

func newSample(t time.Time, p ina226.PowerMonitor) Sample {
	return Sample{
		Time:      t,
		ShuntNV:   int64(p.Shunt),
		BusNV:     int64(p.Voltage),
		CurrentNA: int64(p.Current),
		PowerNW:   int64(p.Power),
	}
}

// PowerMonitor returns the reading of s.
func (s Sample) PowerMonitor() ina226.PowerMonitor {
	return ina226.PowerMonitor{
		Shunt:   physic.ElectricPotential(s.ShuntNV),
		Voltage: physic.ElectricPotential(s.BusNV),
		Current: physic.ElectricCurrent(s.CurrentNA),
		Power:   physic.Power(s.PowerNW),
	}
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}
}

// Recorder appends samples to a CBOR stream, one item per sample.
type Recorder struct {
	enc *cbor.Encoder
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// Write appends s.
func (r *Recorder) Write(s Sample) error {
	return r.enc.Encode(s)
}

// ReadSamples decodes every sample in r.
func ReadSamples(r io.Reader) ([]Sample, error) {
	dec := cbor.NewDecoder(r)
	var out []Sample
	for {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, s)
	}
}
