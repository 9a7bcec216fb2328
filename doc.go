// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ina226 is a container for the INA226 power monitor driver and its
// tools.
//
// The driver lives in the ina226 subpackage. gauge renders a reading on an
// ANSI terminal and cmd/ina226 samples a device from the command line.
package ina226
