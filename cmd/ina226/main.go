// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ina226 samples an INA226 power monitor.
//
// Usage:
//
//	ina226 [flags]
//
// Flags:
//
//	-config string    YAML configuration file
//	-bus string       I²C bus to use
//	-addr uint        I²C address (default 0x40)
//	-shunt float      shunt resistance in Ω (default 0.1)
//	-avg int          samples averaged per conversion (default 1)
//	-ct int           conversion time in µs (default 1100)
//	-datasheet        use the datasheet voltage scaling
//	-n int            number of samples, 0 to run until interrupted (default 10)
//	-interval dur     time between samples (default 1s)
//	-gauge            show the current as a bar
//	-max float        gauge full scale in A (default 0.8192)
//	-record string    append samples as CBOR to this file
//	-png string       draw the samples to this PNG file
//	-v                verbose logging
//
// Flags override the values of the configuration file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/GermanBionicSystems/ina226/gauge"
	"github.com/GermanBionicSystems/ina226/ina226"
	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// sensor is the part of *ina226.Dev the sampling loop uses.
type sensor interface {
	SenseContinuous(interval time.Duration) (<-chan ina226.PowerMonitor, error)
	Halt() error
}

// collect reads n samples from s, or until ctx is done when n is 0, and
// passes each to each.
func collect(ctx context.Context, s sensor, n int, interval time.Duration, each func(Sample) error) (samples []Sample, err error) {
	ch, err := s.SenseContinuous(interval)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(s.Halt))
	for n == 0 || len(samples) < n {
		select {
		case <-ctx.Done():
			return samples, nil
		case p, ok := <-ch:
			if !ok {
				return samples, nil
			}
			smp := newSample(time.Now(), p)
			samples = append(samples, smp)
			if err := each(smp); err != nil {
				return samples, err
			}
		}
	}
	return samples, nil
}

func mainImpl(args []string) (err error) {
	cfg, verbose, err := parseArgs(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := golog.NewLogger("ina226")
	if verbose {
		logger = golog.NewDevelopmentLogger("ina226")
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts.Logger = logger

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(bus))

	dev, err := ina226.NewI2C(bus, cfg.Address, opts)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(dev))
	logger.Debugf("using %s", dev)

	var out []func(Sample) error
	if cfg.Record != "" {
		f, ferr := os.OpenFile(cfg.Record, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr != nil {
			return ferr
		}
		defer multierr.AppendInvoke(&err, multierr.Close(f))
		out = append(out, NewRecorder(f).Write)
	}
	if cfg.Gauge {
		g := gauge.New(&gauge.Opts{X: 40})
		defer multierr.AppendInvoke(&err, multierr.Invoke(g.Halt))
		full := cfg.MaxCurrent()
		out = append(out, func(s Sample) error {
			return g.ShowCurrent(s.PowerMonitor().Current, full)
		})
	} else {
		out = append(out, printer(os.Stdout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	samples, err := collect(ctx, dev, cfg.Samples, cfg.Interval, func(s Sample) error {
		for _, f := range out {
			if err := f(s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Infof("collected %d samples", len(samples))
	if cfg.Plot != "" {
		return SavePlot(cfg.Plot, samples)
	}
	return nil
}

func printer(w io.Writer) func(Sample) error {
	return func(s Sample) error {
		_, err := fmt.Fprintf(w, "%s %s\n", s.Time.Format(time.RFC3339), s.PowerMonitor())
		return err
	}
}

func main() {
	if err := mainImpl(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ina226: %s.\n", err)
		os.Exit(1)
	}
}
