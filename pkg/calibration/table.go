// Calibration tables for the quantizer host
//
// Maps semantic pitch units to hardware DAC codes using piecewise-linear
// interpolation over measured calibration points, compensating for
// per-unit hardware variance.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibration

import (
	"fmt"
	"sort"

	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
)

// CodeMax is the largest representable DAC code (16-bit unsigned).
const CodeMax = 65535

// Point is one measured (pitch, code) pair.
type Point struct {
	Pitch pitch.Unit
	Code  uint16
}

// Table is an immutable calibration table for one channel. Inputs between
// points interpolate linearly; inputs beyond either end extrapolate with
// the slope of the nearest segment and clamp to the representable code
// range instead of wrapping.
type Table struct {
	points []Point
}

// NewTable validates and builds a table. At least two points are required,
// pitches must be strictly increasing and codes strictly increasing so
// that pitch-to-code stays monotonic and injective.
func NewTable(points []Point) (*Table, error) {
	if len(points) < 2 {
		return nil, errors.ConfigValidationError("calibration", "points",
			fmt.Sprintf("need at least 2 points, got %d", len(points)))
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pitch < sorted[j].Pitch })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Pitch == sorted[i-1].Pitch {
			return nil, errors.ConfigValidationError("calibration", "points",
				fmt.Sprintf("duplicate point at pitch %d", sorted[i].Pitch))
		}
		if sorted[i].Code <= sorted[i-1].Code {
			return nil, errors.ConfigValidationError("calibration", "points",
				fmt.Sprintf("code not increasing at pitch %d", sorted[i].Pitch))
		}
	}
	return &Table{points: sorted}, nil
}

// Default returns the ideal table for an uncalibrated channel: octave
// points spread evenly over the 10-octave, 16-bit output range. The
// calibration procedure replaces it with measured values.
func Default() *Table {
	const octaves = 10
	points := make([]Point, octaves+1)
	for i := 0; i <= octaves; i++ {
		code := int64(i) * CodeMax / octaves
		points[i] = Point{Pitch: pitch.Unit(i) * pitch.Octave, Code: uint16(code)}
	}
	t, err := NewTable(points)
	if err != nil {
		panic("calibration: bad default table: " + err.Error())
	}
	return t
}

// Points returns a copy of the table's points.
func (t *Table) Points() []Point {
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// CodeFor maps a pitch to a hardware code. clamped reports that the
// extrapolated value fell outside the representable code range and was
// pinned to it; a code is always produced.
func (t *Table) CodeFor(p pitch.Unit) (code uint16, clamped bool) {
	pts := t.points
	// Index of the segment whose upper point is the first at or above p.
	hi := sort.Search(len(pts), func(i int) bool { return pts[i].Pitch >= p })
	switch {
	case hi == 0:
		hi = 1
	case hi == len(pts):
		hi = len(pts) - 1
	}
	lo := hi - 1

	dp := int64(pts[hi].Pitch - pts[lo].Pitch)
	dc := int64(pts[hi].Code) - int64(pts[lo].Code)
	off := int64(p - pts[lo].Pitch)

	v := int64(pts[lo].Code) + roundDiv(off*dc, dp)
	if v < 0 {
		return 0, true
	}
	if v > CodeMax {
		return CodeMax, true
	}
	return uint16(v), false
}

// roundDiv divides rounding to nearest, symmetric around zero.
func roundDiv(a, b int64) int64 {
	if b < 0 {
		a, b = -a, -b
	}
	if a >= 0 {
		return (a + b/2) / b
	}
	return (a - b/2) / b
}
