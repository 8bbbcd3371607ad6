// Package scale defines musical scale tables: ordered pitch-class offsets
// inside a repeating span. Tables are read every processing cycle and edited
// only by the settings/UI collaborator; edits that would break the table
// invariants are rejected and the prior table is retained.
package scale

import (
	"fmt"

	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
)

// Scale is an ordered, non-empty set of pitch-class offsets within a span.
// Invariants: offsets strictly increasing, first offset 0, span > last
// offset. A Scale is immutable once built; edits return a new Scale.
type Scale struct {
	name    string
	span    pitch.Unit
	offsets []pitch.Unit
}

// New builds a scale after validating the table invariants.
func New(name string, span pitch.Unit, offsets []pitch.Unit) (*Scale, error) {
	if err := validate(name, span, offsets); err != nil {
		return nil, err
	}
	s := &Scale{name: name, span: span, offsets: make([]pitch.Unit, len(offsets))}
	copy(s.offsets, offsets)
	return s, nil
}

func validate(name string, span pitch.Unit, offsets []pitch.Unit) error {
	if len(offsets) == 0 {
		return errors.InvalidScaleError(name, "scale has no degrees")
	}
	if offsets[0] != 0 {
		return errors.InvalidScaleError(name, fmt.Sprintf("first offset is %d, must be 0", offsets[0]))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return errors.InvalidScaleError(name,
				fmt.Sprintf("offset %d (%d) not above offset %d (%d)", i, offsets[i], i-1, offsets[i-1]))
		}
	}
	if span <= offsets[len(offsets)-1] {
		return errors.InvalidScaleError(name,
			fmt.Sprintf("span %d not above last offset %d", span, offsets[len(offsets)-1]))
	}
	return nil
}

// Name returns the scale's display name.
func (s *Scale) Name() string { return s.name }

// Span returns the pitch-axis period after which the offsets repeat.
func (s *Scale) Span() pitch.Unit { return s.span }

// DegreeCount returns the number of degrees in the scale.
func (s *Scale) DegreeCount() int { return len(s.offsets) }

// Offset returns the pitch offset of a degree.
func (s *Scale) Offset(index int) (pitch.Unit, error) {
	if index < 0 || index >= len(s.offsets) {
		return 0, errors.OutOfRangeError("degree", index, len(s.offsets))
	}
	return s.offsets[index], nil
}

// Offsets returns a copy of the offset table.
func (s *Scale) Offsets() []pitch.Unit {
	out := make([]pitch.Unit, len(s.offsets))
	copy(out, s.offsets)
	return out
}

// NearestDegree returns the degree whose offset is closest to pos, with ties
// broken toward the lower degree. pos is a position inside one span; the
// wraparound candidate (degree 0 of the following span) is the quantizer
// engine's concern, not the table's.
func (s *Scale) NearestDegree(pos pitch.Unit) (int, pitch.Unit) {
	best := 0
	bestDist := absUnit(pos - s.offsets[0])
	for i := 1; i < len(s.offsets); i++ {
		d := absUnit(pos - s.offsets[i])
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, s.offsets[best]
}

// InsertOffset returns a new scale with an added degree, or fails with
// InvalidScale if the result would violate the table invariants.
func (s *Scale) InsertOffset(off pitch.Unit) (*Scale, error) {
	next := make([]pitch.Unit, 0, len(s.offsets)+1)
	inserted := false
	for _, o := range s.offsets {
		if !inserted && off < o {
			next = append(next, off)
			inserted = true
		}
		next = append(next, o)
	}
	if !inserted {
		next = append(next, off)
	}
	return New(s.name, s.span, next)
}

// RemoveOffset returns a new scale without the given degree.
func (s *Scale) RemoveOffset(index int) (*Scale, error) {
	if index < 0 || index >= len(s.offsets) {
		return nil, errors.OutOfRangeError("degree", index, len(s.offsets))
	}
	next := make([]pitch.Unit, 0, len(s.offsets)-1)
	next = append(next, s.offsets[:index]...)
	next = append(next, s.offsets[index+1:]...)
	return New(s.name, s.span, next)
}

// ReplaceOffset returns a new scale with one degree moved.
func (s *Scale) ReplaceOffset(index int, off pitch.Unit) (*Scale, error) {
	if index < 0 || index >= len(s.offsets) {
		return nil, errors.OutOfRangeError("degree", index, len(s.offsets))
	}
	next := make([]pitch.Unit, len(s.offsets))
	copy(next, s.offsets)
	next[index] = off
	return New(s.name, s.span, next)
}

func absUnit(u pitch.Unit) pitch.Unit {
	if u < 0 {
		return -u
	}
	return u
}
