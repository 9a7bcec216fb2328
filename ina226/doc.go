// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ina226 controls a Texas Instruments INA226 bus voltage and shunt
// current monitor over an I²C bus.
//
// The driver detects the chip by its manufacturer and die id registers,
// soft-resets it and configures continuous shunt and bus conversion. Current
// is derived in software from the shunt voltage and the configured shunt
// resistance; the on-chip calibration, current and power registers are left
// alone.
//
// Detection compares the id registers against their documented values. Other
// chips that answer at the same address with the same values are accepted as
// well.
//
// # Datasheet
//
// https://www.ti.com/lit/ds/symlink/ina226.pdf
package ina226
