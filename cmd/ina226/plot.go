// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

const plotPadding = 40.0

// trace is one plotted series.
type trace struct {
	label   string
	values  []float64
	r, g, b float64
	format  func(float64) string
}

// Plot draws the bus voltage over the top half and the current over the
// bottom half of a w×h image.
func Plot(samples []Sample, w, h int) (image.Image, error) {
	if len(samples) < 2 {
		return nil, errors.New("need at least 2 samples to plot")
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	volts := make([]float64, len(samples))
	amps := make([]float64, len(samples))
	for i, s := range samples {
		volts[i] = float64(s.BusNV)
		amps[i] = float64(s.CurrentNA)
	}

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: 12}))

	half := float64(h) / 2
	drawTrace(dc, trace{
		label:  "bus voltage",
		values: volts,
		b:      0.8,
		format: func(v float64) string { return physic.ElectricPotential(v).String() },
	}, 0, half)
	drawTrace(dc, trace{
		label:  "current",
		values: amps,
		r:      0.8,
		format: func(v float64) string { return physic.ElectricCurrent(v).String() },
	}, half, half)

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(samples[0].Time.Format("15:04:05"), plotPadding, float64(h)-4, 0, 0)
	dc.DrawStringAnchored(samples[len(samples)-1].Time.Format("15:04:05"), float64(w)-plotPadding, float64(h)-4, 1, 0)
	return dc.Image(), nil
}

// SavePlot writes Plot's output to a PNG file.
func SavePlot(path string, samples []Sample) error {
	img, err := Plot(samples, 800, 480)
	if err != nil {
		return err
	}
	return gg.SavePNG(path, img)
}

func drawTrace(dc *gg.Context, t trace, top, height float64) {
	lo, hi := bounds(t.values)
	x0, x1 := plotPadding, float64(dc.Width())-plotPadding
	y0, y1 := top+plotPadding/2, top+height-plotPadding/2

	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
	dc.Stroke()

	dc.SetRGB(t.r, t.g, t.b)
	dc.SetLineWidth(2)
	step := (x1 - x0) / float64(len(t.values)-1)
	for i, v := range t.values {
		x := x0 + float64(i)*step
		y := y1 - (v-lo)/(hi-lo)*(y1-y0)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	dc.SetRGB(0, 0, 0)
	dc.DrawString(t.label+" max "+t.format(hi), x0, y0-4)
	dc.DrawString("min "+t.format(lo), x0, y1+14)
}

// bounds returns the range of values, widened when all values are equal.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}
