package quantizer

import (
	"testing"

	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

func stdPolicy(t *testing.T) *voltage.Policy {
	t.Helper()
	p, err := voltage.NewPolicy(voltage.VoltPerOctave, 0, voltage.Support{})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return p
}

func TestProcessMajorScaleScenario(t *testing.T) {
	// 6.4 semitones is between F (5) and G (7) and closer to G.
	e := New(scale.Preset("major"), stdPolicy(t), 0)
	f := 6.4 * float64(pitch.Semitone)
	d := e.Process(int32(f))
	if d.SpanIndex != 0 || d.Degree != 4 {
		t.Errorf("Process(6.4st) = (span %d, degree %d), want (0, 4)", d.SpanIndex, d.Degree)
	}
	if d.Pitch != pitch.FromSemitones(7) {
		t.Errorf("quantized pitch = %d, want %d", d.Pitch, pitch.FromSemitones(7))
	}
}

func TestProcessSpanDecomposition(t *testing.T) {
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)

	d := e.Process(int32(2*pitch.Octave + pitch.FromSemitones(3)))
	if d.SpanIndex != 2 || d.Degree != 3 {
		t.Errorf("got (span %d, degree %d), want (2, 3)", d.SpanIndex, d.Degree)
	}
}

func TestProcessNegativeInput(t *testing.T) {
	// Floor, not truncating, decomposition: one semitone below zero is
	// degree 11 of span -1.
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	d := e.Process(int32(-pitch.Semitone))
	if d.SpanIndex != -1 || d.Degree != 11 {
		t.Errorf("Process(-1st) = (span %d, degree %d), want (-1, 11)", d.SpanIndex, d.Degree)
	}
	if d.Pitch != -pitch.Semitone {
		t.Errorf("quantized pitch = %d, want %d", d.Pitch, -pitch.Semitone)
	}
}

func TestProcessSpanEdgeRoundsUp(t *testing.T) {
	// Just below a span boundary the nearest degree is the next span's
	// first, not this span's last.
	e := New(scale.Preset("major"), stdPolicy(t), 0)
	d := e.Process(int32(pitch.Octave - 20))
	if d.SpanIndex != 1 || d.Degree != 0 {
		t.Errorf("near-edge decision = (span %d, degree %d), want (1, 0)", d.SpanIndex, d.Degree)
	}
}

func TestHysteresisHoldsThroughJitter(t *testing.T) {
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)

	// Settle on D (degree 2). The D/D# boundary sits at 2.5 semitones.
	d := e.Process(int32(pitch.FromSemitones(2)))
	if d.Degree != 2 {
		t.Fatalf("settled on degree %d, want 2", d.Degree)
	}

	boundary := int32(pitch.FromSemitones(2) + pitch.Semitone/2)
	for i := 0; i < 50; i++ {
		jitter := int32(i%2*20 - 10) // within the +/-16 unit guard
		d = e.Process(boundary + jitter)
		if d.Degree != 2 {
			t.Fatalf("cycle %d: jitter within guard moved degree to %d", i, d.Degree)
		}
	}

	// Crossing the boundary by more than the guard does transition.
	d = e.Process(boundary + int32(DefaultGuard) + 1)
	if d.Degree != 3 {
		t.Errorf("past-guard input held degree %d, want 3", d.Degree)
	}
}

func TestHysteresisReleasesDownward(t *testing.T) {
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	e.Process(int32(pitch.FromSemitones(3)))

	boundary := int32(pitch.FromSemitones(2) + pitch.Semitone/2)
	// Hovering just below the boundary stays settled on D#.
	d := e.Process(boundary - 5)
	if d.Degree != 3 {
		t.Fatalf("hover moved degree to %d, want 3", d.Degree)
	}
	// Clearly below the guard band transitions to D.
	d = e.Process(boundary - int32(DefaultGuard) - 1)
	if d.Degree != 2 {
		t.Errorf("past-guard input held degree %d, want 2", d.Degree)
	}
}

func TestHysteresisSkipsForFarJumps(t *testing.T) {
	// The guard only applies between adjacent degrees; a leap follows
	// immediately.
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	e.Process(int32(pitch.FromSemitones(2)))
	d := e.Process(int32(pitch.FromSemitones(9)))
	if d.Degree != 9 {
		t.Errorf("leap landed on degree %d, want 9", d.Degree)
	}
}

func TestHysteresisAcrossSpanBoundary(t *testing.T) {
	// B and the next octave's C are adjacent global degrees; the guard
	// applies across the span edge too.
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	d := e.Process(int32(pitch.FromSemitones(11)))
	if d.SpanIndex != 0 || d.Degree != 11 {
		t.Fatalf("settle = (span %d, degree %d), want (0, 11)", d.SpanIndex, d.Degree)
	}

	boundary := int32(pitch.FromSemitones(11) + pitch.Semitone/2)
	d = e.Process(boundary + 5)
	if d.SpanIndex != 0 || d.Degree != 11 {
		t.Errorf("within-guard input moved to (span %d, degree %d)", d.SpanIndex, d.Degree)
	}
	d = e.Process(boundary + int32(DefaultGuard) + 1)
	if d.SpanIndex != 1 || d.Degree != 0 {
		t.Errorf("past-guard input = (span %d, degree %d), want (1, 0)", d.SpanIndex, d.Degree)
	}
}

func TestSetScaleDropsSettledState(t *testing.T) {
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)

	// Park right at a boundary and settle low via the tie break.
	boundary := int32(pitch.FromSemitones(2) + pitch.Semitone/2)
	e.Process(int32(pitch.FromSemitones(2)))
	d := e.Process(boundary + 5)
	if d.Degree != 2 {
		t.Fatalf("expected guard hold on degree 2, got %d", d.Degree)
	}

	// After a scale change the engine re-evaluates from raw input; the
	// same sample is no longer held by stale state.
	e.SetScale(scale.Preset("chromatic"))
	d = e.Process(boundary + 5)
	if d.Degree != 3 {
		t.Errorf("post-change decision = %d, want fresh nearest 3", d.Degree)
	}
}

func TestSetScaleSmallerTable(t *testing.T) {
	// Shrinking the scale must not let a stale degree index leak out of
	// range.
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	e.Process(int32(pitch.FromSemitones(11)))

	e.SetScale(scale.Preset("octave"))
	d := e.Process(int32(pitch.FromSemitones(11)))
	if d.Degree != 0 || d.SpanIndex != 1 {
		t.Errorf("decision = (span %d, degree %d), want (1, 0)", d.SpanIndex, d.Degree)
	}
}

func TestSetPolicyAppliesNextCycle(t *testing.T) {
	e := New(scale.Preset("chromatic"), stdPolicy(t), 0)
	d := e.Process(int32(pitch.Octave))
	if d.SpanIndex != 1 {
		t.Fatalf("1V/oct span index = %d, want 1", d.SpanIndex)
	}

	fourU, err := voltage.NewPolicy(voltage.Buchla4U, 0, voltage.Support{VoltageScaling: true})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	e.SetPolicy(fourU)

	// The very next cycle normalizes under the new standard with no
	// carry-over from the previous span decomposition.
	d = e.Process(int32(pitch.Octave))
	want := fourU.Normalize(int32(pitch.Octave))
	wantSpan, _ := want.Decompose(fourU.Span())
	if d.SpanIndex != wantSpan {
		t.Errorf("post-switch span index = %d, want %d", d.SpanIndex, wantSpan)
	}
}

func TestProcessIdempotentWhenSettled(t *testing.T) {
	e := New(scale.Preset("minor pentatonic"), stdPolicy(t), 0)
	for _, raw := range []int32{0, 700, 1490, -333, 4000} {
		d1 := e.Process(raw)
		d2 := e.Process(raw)
		if d1 != d2 {
			t.Errorf("Process(%d) unstable: %+v then %+v", raw, d1, d2)
		}
	}
}

func TestMonotonicDecisions(t *testing.T) {
	// Increasing input never lowers the quantized pitch.
	for _, name := range []string{"chromatic", "major", "blues", "whole tone"} {
		e := New(scale.Preset(name), stdPolicy(t), 0)
		last := pitch.Unit(-1 << 30)
		for raw := int32(-2 * int32(pitch.Octave)); raw < 4*int32(pitch.Octave); raw += 23 {
			d := e.Process(raw)
			if d.Pitch < last {
				t.Fatalf("%s: pitch decreased at raw %d: %d < %d", name, raw, d.Pitch, last)
			}
			last = d.Pitch
		}
	}
}
