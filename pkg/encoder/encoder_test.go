package encoder

import (
	"testing"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/quantizer"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

func newStdEncoder(t *testing.T, sc *scale.Scale) *Encoder {
	t.Helper()
	pol, err := voltage.NewPolicy(voltage.VoltPerOctave, 0, voltage.Support{})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	return New(0, sc, pol, calibration.NewStore(nil))
}

func TestEncodeBasic(t *testing.T) {
	en := newStdEncoder(t, scale.Preset("chromatic"))

	zero, err := en.Encode(0, 0)
	if err != nil {
		t.Fatalf("Encode(0, 0) failed: %v", err)
	}
	if zero != 0 {
		t.Errorf("Encode(0, 0) = %d, want 0", zero)
	}

	// One octave up on the default table is exactly one tenth of range.
	oct, err := en.Encode(1, 0)
	if err != nil {
		t.Fatalf("Encode(1, 0) failed: %v", err)
	}
	if oct != calibration.CodeMax/10 {
		t.Errorf("Encode(1, 0) = %d, want %d", oct, calibration.CodeMax/10)
	}
}

func TestEncodeDegreeOutOfRange(t *testing.T) {
	en := newStdEncoder(t, scale.Preset("major"))
	if _, err := en.Encode(0, 7); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("Encode(0, 7) on a 7-degree scale: expected OUT_OF_RANGE, got %v", err)
	}
}

func TestEncodeClampsFarInput(t *testing.T) {
	en := newStdEncoder(t, scale.Preset("chromatic"))

	code, err := en.Encode(50, 0)
	if !errors.Is(err, errors.ErrCodeClamped) {
		t.Fatalf("Encode(50 octaves up): expected CODE_CLAMPED, got %v", err)
	}
	if code != calibration.CodeMax {
		t.Errorf("clamped code = %d, want %d", code, calibration.CodeMax)
	}

	code, err = en.Encode(-50, 0)
	if !errors.Is(err, errors.ErrCodeClamped) {
		t.Fatalf("Encode(50 octaves down): expected CODE_CLAMPED, got %v", err)
	}
	if code != 0 {
		t.Errorf("clamped code = %d, want 0 (never wraps)", code)
	}
}

func TestEncodeTranspose(t *testing.T) {
	en := newStdEncoder(t, scale.Preset("chromatic"))
	base, _ := en.Encode(2, 0)

	en.SetTranspose(1, 0)
	up, _ := en.Encode(2, 0)
	if up <= base {
		t.Errorf("octave transpose did not raise code: %d <= %d", up, base)
	}

	en.SetTranspose(0, 0)
	flat, _ := en.Encode(2, 0)
	if flat != base {
		t.Errorf("cleared transpose = %d, want %d", flat, base)
	}
}

func TestEncodeUsesCalibrationSnapshot(t *testing.T) {
	sc := scale.Preset("chromatic")
	pol, _ := voltage.NewPolicy(voltage.VoltPerOctave, 0, voltage.Support{})
	store := calibration.NewStore(nil)
	en := New(0, sc, pol, store)

	before, _ := en.Encode(1, 0)

	// A swapped table takes effect on the next encode.
	tbl, err := calibration.NewTable([]calibration.Point{
		{Pitch: 0, Code: 100},
		{Pitch: 10 * pitch.Octave, Code: 50100},
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	store.Swap(tbl)

	after, _ := en.Encode(1, 0)
	if after == before {
		t.Error("swapped calibration table had no effect")
	}
	if after != 5100 {
		t.Errorf("Encode(1, 0) on swapped table = %d, want 5100", after)
	}
}

func TestEncodeStandardSwitch(t *testing.T) {
	// Switching from 1V/oct to Buchla 4U changes both the span scaling
	// and the fixed range offset on the very next encode.
	sc := scale.Preset("chromatic")
	std, _ := voltage.NewPolicy(voltage.VoltPerOctave, 0, voltage.Support{})
	fourU, _ := voltage.NewPolicy(voltage.Buchla4U, 0, voltage.Support{VoltageScaling: true})
	en := New(0, sc, std, calibration.NewStore(nil))

	before, _ := en.Encode(1, 0)

	en.SetPolicy(fourU)
	after, _ := en.Encode(1, 0)

	// One octave stretches by 1.2 (to 1843 units) and shifts up three
	// octaves before the calibration lookup.
	want, _ := calibration.Default().CodeFor(1843 + 3*pitch.Octave)
	if after != want {
		t.Errorf("4U Encode(1, 0) = %d, want %d", after, want)
	}
	if after == before {
		t.Error("standard switch had no effect on encoding")
	}
}

func TestQuantizeEncodeMonotonic(t *testing.T) {
	// End to end: increasing raw input never decreases the output code.
	sc := scale.Preset("major")
	pol, _ := voltage.NewPolicy(voltage.VoltPerOctave, 0, voltage.Support{})
	eng := quantizer.New(sc, pol, 0)
	en := New(0, sc, pol, calibration.NewStore(nil))

	var last uint16
	for raw := int32(0); raw < 6*int32(pitch.Octave); raw += 31 {
		d := eng.Process(raw)
		code, err := en.Encode(d.SpanIndex, d.Degree)
		if err != nil {
			t.Fatalf("Encode failed at raw %d: %v", raw, err)
		}
		if code < last {
			t.Fatalf("code decreased at raw %d: %d < %d", raw, code, last)
		}
		last = code
	}
}
