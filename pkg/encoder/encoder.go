// Package encoder turns quantized pitch decisions into hardware DAC codes.
// An Encoder is a pure function of its inputs and the channel's current
// calibration snapshot; it holds no per-cycle state, so it is testable in
// isolation from the quantizer engine.
package encoder

import (
	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

// Encoder encodes one channel's decisions.
type Encoder struct {
	channel int
	scale   *scale.Scale
	policy  *voltage.Policy
	cal     *calibration.Store

	// transpose is applied before encoding: whole octaves plus
	// semitones, the two per-channel shifts the panel exposes.
	transpose pitch.Unit
}

// New creates an encoder for one channel.
func New(channel int, sc *scale.Scale, pol *voltage.Policy, cal *calibration.Store) *Encoder {
	return &Encoder{channel: channel, scale: sc, policy: pol, cal: cal}
}

// SetScale installs a new scale table.
func (en *Encoder) SetScale(sc *scale.Scale) { en.scale = sc }

// SetPolicy installs a new voltage standard policy.
func (en *Encoder) SetPolicy(pol *voltage.Policy) { en.policy = pol }

// SetTranspose sets the per-channel output shift.
func (en *Encoder) SetTranspose(octaves, semitones int) {
	en.transpose = pitch.Unit(octaves)*pitch.Octave + pitch.FromSemitones(semitones)
}

// Transpose returns the current output shift.
func (en *Encoder) Transpose() pitch.Unit { return en.transpose }

// Encode maps a quantized decision to a hardware code. A code is always
// returned; err is either an OutOfRange programming error (degree outside
// the scale) or a CodeClamped diagnostic when calibration extrapolation
// hit the edge of the representable code range.
func (en *Encoder) Encode(spanIndex, degree int) (uint16, error) {
	off, err := en.scale.Offset(degree)
	if err != nil {
		return 0, err
	}

	u := pitch.Unit(spanIndex)*en.policy.Span() + off + en.transpose

	// Standard-specific output transform: span stretch first, then the
	// fixed range shift.
	num, den := en.policy.CodeScale()
	if num != den {
		u = u.MulRatio(num, den)
	}
	u += en.policy.CodeOffset()

	code, clamped := en.cal.Load().CodeFor(u)
	if clamped {
		return code, errors.CodeClampedError(en.channel, code)
	}
	return code, nil
}
