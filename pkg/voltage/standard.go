// Voltage standard policy for the quantizer host
//
// The original hardware selects its voltage standard with compile-time
// flags; here the standard is a runtime-constructed policy chosen from a
// closed set of variants and validated at startup, so every variant is
// testable from one build.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package voltage

import (
	"fmt"

	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
)

// Standard selects one of the supported voltage conventions.
type Standard int

const (
	// VoltPerOctave is the Eurorack 1 V/octave standard.
	VoltPerOctave Standard = iota

	// BuchlaNonOctaval is the Buchla 1.2 V per span convention, usable
	// with non-octaval scale spans.
	BuchlaNonOctaval

	// Buchla4U is the Buchla convention on Northernlight 4U hardware,
	// whose output range is unipolar 0..+10 V instead of -3..+6 V.
	Buchla4U
)

// String returns the display name of the standard.
func (s Standard) String() string {
	switch s {
	case VoltPerOctave:
		return "1V/oct"
	case BuchlaNonOctaval:
		return "buchla"
	case Buchla4U:
		return "buchla-4u"
	default:
		return fmt.Sprintf("standard(%d)", int(s))
	}
}

// ParseStandard parses a config-file standard name.
func ParseStandard(name string) (Standard, error) {
	switch name {
	case "1V/oct", "1v/oct", "standard":
		return VoltPerOctave, nil
	case "buchla":
		return BuchlaNonOctaval, nil
	case "buchla-4u", "buchla_4u":
		return Buchla4U, nil
	default:
		return 0, errors.ConfigValidationError("standard", "mode",
			fmt.Sprintf("unknown voltage standard '%s'", name))
	}
}

// Buchla span voltage is 1.2 V against the Eurorack 1 V octave; the
// multiplier is carried as the Q14 rational 19661/16384, the form the
// hardware DAC path uses.
const (
	buchlaScaleNum = 19661
	buchlaScaleDen = 16384
)

// rangeOffset4U shifts the 4U build's unipolar 0..+10 V range against the
// Eurorack -3..+6 V range.
const rangeOffset4U = 3 * pitch.Octave

// Support mirrors the original build-time feature selection. Hardware
// without the voltage-scaling output stage cannot honor Buchla scaling, so
// requesting it is a fatal configuration conflict, not a degraded mode.
type Support struct {
	// VoltageScaling enables non-octaval span scaling.
	VoltageScaling bool
}

// Policy is the active voltage standard: the span length, the
// code-per-unit scale factor and the raw-sample transform it implies.
// A Policy is immutable; the host swaps policies only between cycles.
type Policy struct {
	standard Standard
	span     pitch.Unit
}

// NewPolicy validates the requested standard against hardware support and
// returns the policy. span is the pitch-axis period to decompose against;
// zero selects the standard octave.
func NewPolicy(std Standard, span pitch.Unit, sup Support) (*Policy, error) {
	if span == 0 {
		span = pitch.Octave
	}
	if span < 0 {
		return nil, errors.ConfigValidationError("standard", "span",
			fmt.Sprintf("span must be positive, got %d", span))
	}
	switch std {
	case VoltPerOctave:
		if span != pitch.Octave {
			return nil, errors.ConfigConflictError(
				"non-octaval span requires the buchla standard")
		}
	case BuchlaNonOctaval, Buchla4U:
		if !sup.VoltageScaling {
			return nil, errors.ConfigConflictError(fmt.Sprintf(
				"standard '%s' requires voltage scaling support", std))
		}
	default:
		return nil, errors.ConfigValidationError("standard", "mode",
			fmt.Sprintf("unknown voltage standard %d", int(std)))
	}
	return &Policy{standard: std, span: span}, nil
}

// Standard returns the active variant.
func (p *Policy) Standard() Standard { return p.standard }

// Span returns the pitch-axis period for span decomposition.
func (p *Policy) Span() pitch.Unit { return p.span }

// CodeScale returns the code-per-unit scale factor as a rational num/den.
func (p *Policy) CodeScale() (num, den int32) {
	switch p.standard {
	case BuchlaNonOctaval, Buchla4U:
		return buchlaScaleNum, buchlaScaleDen
	default:
		return 1, 1
	}
}

// CodeOffset returns the fixed pitch offset applied on the way to the DAC,
// nonzero only for the 4U hardware range.
func (p *Policy) CodeOffset() pitch.Unit {
	if p.standard == Buchla4U {
		return rangeOffset4U
	}
	return 0
}

// Normalize converts a raw input sample to a pitch unit under this
// standard. Raw samples are fixed point with 1536 counts per volt-octave;
// the Buchla variants stretch one span over 1.2 V, so the same voltage
// travel covers proportionally less pitch. The transform is the exact
// inverse of the output path: the fixed range shift comes off first, then
// the span stretch, so a voltage the module emits normalizes back to the
// pitch that produced it.
func (p *Policy) Normalize(raw int32) pitch.Unit {
	u := pitch.Unit(raw) - p.CodeOffset()
	num, den := p.CodeScale()
	if num != den {
		u = u.MulRatio(den, num)
	}
	return u
}
