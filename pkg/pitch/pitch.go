// Package pitch defines the fixed-point pitch representation shared by the
// quantizer core. One semitone is 128 units, so one octave is 1536; this is
// fine enough that a single unit resolves below one 16-bit DAC code step
// across the full 10-octave output range.
package pitch

import "fmt"

// Unit is a position along the pitch axis in 1/128 semitone steps,
// independent of any hardware voltage range.
type Unit int32

const (
	// Semitone is one equal-tempered semitone.
	Semitone Unit = 128

	// Octave is twelve semitones.
	Octave Unit = 12 * Semitone
)

// FromSemitones converts a whole semitone count to pitch units.
func FromSemitones(n int) Unit {
	return Unit(n) * Semitone
}

// Semitones returns the pitch rounded down to whole semitones.
func (u Unit) Semitones() int {
	return int(floorDiv(int32(u), int32(Semitone)))
}

// Decompose splits a pitch into a span index and the position inside that
// span. Floor semantics, so negative pitches land in negative spans with a
// non-negative position: Decompose(-1, Octave) is (-1, Octave-1).
func (u Unit) Decompose(span Unit) (spanIndex int, pos Unit) {
	if span <= 0 {
		return 0, 0
	}
	q := floorDiv(int32(u), int32(span))
	return int(q), u - Unit(q)*Unit(span)
}

// MulRatio scales a pitch by num/den, rounding to nearest.
func (u Unit) MulRatio(num, den int32) Unit {
	if den == 0 {
		return u
	}
	v := int64(u) * int64(num)
	if v >= 0 {
		return Unit((v + int64(den)/2) / int64(den))
	}
	return Unit((v - int64(den)/2) / int64(den))
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats the pitch as the nearest note name with octave number,
// e.g. "C4" or "F#2". Used by diagnostics and the calibration CLI only; the
// processing path never formats pitches.
func (u Unit) NoteName() string {
	st := int32(u) + int32(Semitone)/2
	n := floorDiv(st, int32(Semitone))
	deg := n - 12*floorDiv(n, 12)
	oct := floorDiv(n, 12)
	return fmt.Sprintf("%s%d", noteNames[deg], oct)
}

// String formats the pitch in semitones for logs.
func (u Unit) String() string {
	return fmt.Sprintf("%.3fst", float64(u)/float64(Semitone))
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
