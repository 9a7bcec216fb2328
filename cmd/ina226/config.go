// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/GermanBionicSystems/ina226/ina226"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Config is the sampler configuration. It can be loaded from a YAML file and
// overridden with flags.
type Config struct {
	Bus              string        `yaml:"bus"`
	Address          uint16        `yaml:"address"`
	ShuntOhms        float64       `yaml:"shunt_ohms"`
	Averaging        int           `yaml:"averaging"`
	ConversionTimeUS int           `yaml:"conversion_time_us"`
	DatasheetScaling bool          `yaml:"datasheet_scaling"`
	Samples          int           `yaml:"samples"`
	Interval         time.Duration `yaml:"interval"`
	MaxCurrentAmps   float64       `yaml:"max_current_amps"`
	Gauge            bool          `yaml:"gauge"`
	Record           string        `yaml:"record"`
	Plot             string        `yaml:"plot"`
}

// DefaultConfig matches ina226.DefaultOpts.
func DefaultConfig() Config {
	return Config{
		Address:          uint16(ina226.DefaultAddress),
		ShuntOhms:        0.1,
		Averaging:        1,
		ConversionTimeUS: 1100,
		Samples:          10,
		Interval:         time.Second,
		MaxCurrentAmps:   0.8192,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.ShuntOhms == 0 {
		return errors.New("shunt resistance must not be zero")
	}
	if c.Address > 0x7f {
		return fmt.Errorf("invalid 7 bit address 0x%x", c.Address)
	}
	if _, err := ina226.AveragingFromCount(c.Averaging); err != nil {
		return err
	}
	if _, err := ina226.ConversionTimeFromDuration(time.Duration(c.ConversionTimeUS) * time.Microsecond); err != nil {
		return err
	}
	if c.Samples < 0 {
		return errors.New("samples must not be negative")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.Gauge && c.MaxCurrentAmps <= 0 {
		return errors.New("the gauge needs a positive max current")
	}
	return nil
}

// Options converts the configuration to driver options.
func (c *Config) Options() (*ina226.Opts, error) {
	avg, err := ina226.AveragingFromCount(c.Averaging)
	if err != nil {
		return nil, err
	}
	ct, err := ina226.ConversionTimeFromDuration(time.Duration(c.ConversionTimeUS) * time.Microsecond)
	if err != nil {
		return nil, err
	}
	opts := ina226.DefaultOpts
	opts.Averaging = avg
	opts.BusConversionTime = ct
	opts.ShuntConversionTime = ct
	opts.ShuntResistance = ohms(c.ShuntOhms)
	opts.DatasheetScaling = c.DatasheetScaling
	return &opts, nil
}

// MaxCurrent is the gauge full scale.
func (c Config) MaxCurrent() physic.ElectricCurrent {
	return physic.ElectricCurrent(c.MaxCurrentAmps * float64(physic.Ampere))
}

func ohms(v float64) physic.ElectricResistance {
	return physic.ElectricResistance(v * float64(physic.Ohm))
}

// parseArgs loads the -config file if any, then applies the flags that were
// set explicitly.
func parseArgs(args []string) (cfg Config, verbose bool, err error) {
	fs := flag.NewFlagSet("ina226", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	fl := DefaultConfig()
	fs.StringVar(&fl.Bus, "bus", fl.Bus, "I²C bus to use")
	addr := i2c.Addr(fl.Address)
	fs.Var(&addr, "addr", "I²C address of the INA226")
	fs.Float64Var(&fl.ShuntOhms, "shunt", fl.ShuntOhms, "shunt resistance in Ω")
	fs.IntVar(&fl.Averaging, "avg", fl.Averaging, "samples averaged per conversion")
	fs.IntVar(&fl.ConversionTimeUS, "ct", fl.ConversionTimeUS, "conversion time in µs")
	fs.BoolVar(&fl.DatasheetScaling, "datasheet", fl.DatasheetScaling, "use the datasheet voltage scaling")
	fs.IntVar(&fl.Samples, "n", fl.Samples, "number of samples, 0 to run until interrupted")
	fs.DurationVar(&fl.Interval, "interval", fl.Interval, "time between samples")
	fs.Float64Var(&fl.MaxCurrentAmps, "max", fl.MaxCurrentAmps, "gauge full scale in A")
	fs.BoolVar(&fl.Gauge, "gauge", fl.Gauge, "show the current as a bar")
	fs.StringVar(&fl.Record, "record", fl.Record, "append samples as CBOR to this file")
	fs.StringVar(&fl.Plot, "png", fl.Plot, "draw the samples to this PNG file")
	fs.BoolVar(&verbose, "v", false, "verbose logging")
	if err = fs.Parse(args); err != nil {
		return cfg, verbose, err
	}
	if fs.NArg() != 0 {
		return cfg, verbose, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	fl.Address = uint16(addr)

	cfg = DefaultConfig()
	if *configPath != "" {
		if cfg, err = LoadConfig(*configPath); err != nil {
			return cfg, verbose, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bus":
			cfg.Bus = fl.Bus
		case "addr":
			cfg.Address = fl.Address
		case "shunt":
			cfg.ShuntOhms = fl.ShuntOhms
		case "avg":
			cfg.Averaging = fl.Averaging
		case "ct":
			cfg.ConversionTimeUS = fl.ConversionTimeUS
		case "datasheet":
			cfg.DatasheetScaling = fl.DatasheetScaling
		case "n":
			cfg.Samples = fl.Samples
		case "interval":
			cfg.Interval = fl.Interval
		case "max":
			cfg.MaxCurrentAmps = fl.MaxCurrentAmps
		case "gauge":
			cfg.Gauge = fl.Gauge
		case "record":
			cfg.Record = fl.Record
		case "png":
			cfg.Plot = fl.Plot
		}
	})
	return cfg, verbose, nil
}
