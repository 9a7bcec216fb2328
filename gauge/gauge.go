// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gauge implements a 1D display.Drawer that shows a reading as a bar
// on a terminal using ANSI color codes.
//
// It is used by cmd/ina226 to show the current through the shunt relative to
// the full scale current.
package gauge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
)

var (
	colorOff     = color.NRGBA{A: 255}
	colorLow     = color.NRGBA{G: 200, A: 255}
	colorMid     = color.NRGBA{R: 230, G: 200, A: 255}
	colorHigh    = color.NRGBA{R: 230, A: 255}
	colorReverse = color.NRGBA{B: 230, A: 255}
)

// Opts represents the options available for this display.
type Opts struct {
	// X is the number of cells.
	X       int
	Palette *ansi256.Palette
	// Out defaults to a colorable stdout.
	Out io.Writer

	_ struct{}
}

// Dev is a terminal bar gauge.
type Dev struct {
	w       io.Writer
	l       int
	palette ansi256.Palette

	pixels []byte
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.Out
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{
		w:       w,
		l:       opts.X,
		palette: *p,
		pixels:  make([]byte, 3*opts.X),
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("Gauge{%d}", d.l)
}

// Halt implements conn.Resource.
//
// It ends the line and resets the terminal colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Show fills the gauge to fraction of its length. The bar turns from green
// to yellow to red as it fills; a negative fraction is drawn in blue.
// Fractions beyond ±1 fill the whole gauge.
func (d *Dev) Show(fraction float64) error {
	reverse := fraction < 0
	fraction = math.Min(math.Abs(fraction), 1)
	n := int(math.Round(fraction * float64(d.l)))
	for i := 0; i < d.l; i++ {
		c := colorOff
		if i < n {
			switch {
			case reverse:
				c = colorReverse
			case i*100 >= d.l*85:
				c = colorHigh
			case i*100 >= d.l*60:
				c = colorMid
			default:
				c = colorLow
			}
		}
		d.pixels[3*i] = c.R
		d.pixels[3*i+1] = c.G
		d.pixels[3*i+2] = c.B
	}
	_, err := d.refresh()
	return err
}

// ShowCurrent shows i relative to the full scale current.
func (d *Dev) ShowCurrent(i, full physic.ElectricCurrent) error {
	if full == 0 {
		return errors.New("gauge: full scale current is zero")
	}
	return d.Show(float64(i) / float64(full))
}

// Write accepts a stream of raw RGB pixels and writes it to the console.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("gauge: invalid RGB stream length")
	}
	copy(d.pixels, pixels)
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	deltaX3 := 3 * (r.Min.X - srcR.Min.X)
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		r16, g16, b16, _ := src.At(sX, srcR.Min.Y).RGBA()
		dX3 := 3*sX + deltaX3
		d.pixels[dX3] = byte(r16 >> 8)
		d.pixels[dX3+1] = byte(g16 >> 8)
		d.pixels[dX3+2] = byte(b16 >> 8)
	}
	_, err := d.refresh()
	return err
}

func (d *Dev) refresh() (int, error) {
	// Redraw on the same line.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < len(d.pixels)/3; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
