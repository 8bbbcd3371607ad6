package host

import (
	"io"
	"testing"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/config"
	"cvquant-go/pkg/driver"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/log"
	"cvquant-go/pkg/metrics"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetWriter(io.Discard)
	return l
}

func newTestController(t *testing.T, cfgText string) (*Controller, *driver.Sim) {
	t.Helper()
	cfg, err := config.LoadString(cfgText)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	settings, err := config.ParseSettings(cfg)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}
	sim := driver.NewSim(settings.Channels)
	c, err := New(settings, sim, quietLogger(), metrics.NewHostMetrics())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, sim
}

const basicConfig = `
[host]
channels: 2

[channel 0]
scale: chromatic

[channel 1]
scale: major
`

func TestRunCycle(t *testing.T) {
	c, sim := newTestController(t, basicConfig)

	sim.SetSample(0, int32(pitch.FromSemitones(9))) // A0
	sim.SetSample(1, int32(pitch.Octave))           // C1
	if err := c.RunCycle(); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	st := c.Status()
	if st.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", st.Cycles)
	}
	if st.Channels[0].Degree != 9 || st.Channels[0].Note != "A0" {
		t.Errorf("channel 0 status = %+v", st.Channels[0])
	}
	if st.Channels[1].SpanIndex != 1 || st.Channels[1].Degree != 0 {
		t.Errorf("channel 1 status = %+v", st.Channels[1])
	}

	codes := sim.LastCodes()
	if len(codes) != 2 || codes[0] == 0 {
		t.Errorf("codes = %v", codes)
	}
	// ideal default table: one octave = one tenth of the code range
	if codes[1] != calibration.CodeMax/10 {
		t.Errorf("channel 1 code = %d, want %d", codes[1], calibration.CodeMax/10)
	}
}

func TestStartupConflictIsFatal(t *testing.T) {
	cfg, _ := config.LoadString(basicConfig)
	settings, err := config.ParseSettings(cfg)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}
	// Force a conflicting standard past settings validation to prove the
	// controller re-checks before the loop starts.
	settings.Standard = voltage.Buchla4U
	settings.Support = voltage.Support{}

	if _, err := New(settings, driver.NewSim(2), quietLogger(), metrics.NewHostMetrics()); !errors.Is(err, errors.ErrConfigConflict) {
		t.Errorf("expected CONFIG_CONFLICT, got %v", err)
	}
}

func TestScaleChangeAppliesAtBoundary(t *testing.T) {
	c, sim := newTestController(t, basicConfig)
	sim.SetSample(0, int32(pitch.FromSemitones(1))) // C#

	if err := c.RunCycle(); err != nil {
		t.Fatal(err)
	}
	if got := c.Status().Channels[0].Degree; got != 1 {
		t.Fatalf("chromatic degree = %d, want 1", got)
	}

	if err := c.SetChannelScale(0, scale.Preset("major")); err != nil {
		t.Fatalf("SetChannelScale failed: %v", err)
	}
	// The queued swap lands on the next cycle: C# snaps to a major degree.
	if err := c.RunCycle(); err != nil {
		t.Fatal(err)
	}
	st := c.Status().Channels[0]
	if st.Scale != "major" {
		t.Errorf("scale = %q, want major", st.Scale)
	}
	if st.Degree != 0 && st.Degree != 1 {
		t.Errorf("degree = %d, want 0 (C) or 1 (D)", st.Degree)
	}
}

func TestStandardSwitchNextCycle(t *testing.T) {
	cfgText := basicConfig + "\n[standard]\nvoltage_scaling: true\n"
	c, sim := newTestController(t, cfgText)
	// Off the chromatic grid of both standards, so the snapped output
	// voltage differs once the 1.2 stretch is in effect.
	sim.SetSample(0, 4000)

	if err := c.RunCycle(); err != nil {
		t.Fatal(err)
	}
	first := sim.LastCodes()[0]

	if err := c.SetStandard(voltage.Buchla4U, 0); err != nil {
		t.Fatalf("SetStandard failed: %v", err)
	}
	if err := c.RunCycle(); err != nil {
		t.Fatal(err)
	}

	st := c.Status()
	if st.Standard != "buchla-4u" {
		t.Errorf("standard = %q, want buchla-4u", st.Standard)
	}
	if second := sim.LastCodes()[0]; second == first {
		t.Error("standard switch did not change the output code")
	}
}

func TestStandardSwitchConflictRejectedUpFront(t *testing.T) {
	// Support flags are fixed at startup; a runtime request for an
	// unsupported standard fails immediately and queues nothing.
	c, _ := newTestController(t, basicConfig)
	if err := c.SetStandard(voltage.BuchlaNonOctaval, 0); !errors.Is(err, errors.ErrConfigConflict) {
		t.Errorf("expected CONFIG_CONFLICT, got %v", err)
	}
}

func TestStartupRejectsMismatchedScaleSpan(t *testing.T) {
	// The engine decomposes against the policy span; a chromatic scale
	// built for the octave cannot pair with a non-octaval standard.
	cfgText := `
[host]
channels: 1

[standard]
mode: buchla
voltage_scaling: true
span: 1700

[channel 0]
scale: chromatic
`
	cfg, err := config.LoadString(cfgText)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	settings, err := config.ParseSettings(cfg)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}
	if _, err := New(settings, driver.NewSim(1), quietLogger(), metrics.NewHostMetrics()); !errors.Is(err, errors.ErrConfigConflict) {
		t.Errorf("expected CONFIG_CONFLICT, got %v", err)
	}
}

func TestScaleEditRejectsMismatchedSpan(t *testing.T) {
	c, _ := newTestController(t, basicConfig)

	wide, err := scale.New("wide", 2*pitch.Octave, []pitch.Unit{0, pitch.Octave})
	if err != nil {
		t.Fatalf("scale.New failed: %v", err)
	}
	if err := c.SetChannelScale(0, wide); !errors.Is(err, errors.ErrConfigConflict) {
		t.Errorf("expected CONFIG_CONFLICT, got %v", err)
	}
}

func TestStandardSwitchKeepsSpan(t *testing.T) {
	c, _ := newTestController(t, basicConfig)

	// Restating the configured span is fine; changing it is not.
	if err := c.SetStandard(voltage.VoltPerOctave, int(pitch.Octave)); err != nil {
		t.Fatalf("SetStandard with matching span failed: %v", err)
	}
	if err := c.SetStandard(voltage.VoltPerOctave, 1700); !errors.Is(err, errors.ErrConfigConflict) {
		t.Errorf("expected CONFIG_CONFLICT, got %v", err)
	}
}

func TestCalibrationSwapAtBoundary(t *testing.T) {
	c, sim := newTestController(t, basicConfig)
	sim.SetSample(0, int32(pitch.Octave))

	c.RunCycle()
	before := sim.LastCodes()[0]

	tbl, err := calibration.NewTable([]calibration.Point{
		{Pitch: 0, Code: 1000},
		{Pitch: 10 * pitch.Octave, Code: 61000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SwapCalibration(0, tbl); err != nil {
		t.Fatalf("SwapCalibration failed: %v", err)
	}
	c.RunCycle()
	after := sim.LastCodes()[0]
	if after == before {
		t.Error("calibration swap had no effect")
	}
	if after != 7000 {
		t.Errorf("post-swap code = %d, want 7000", after)
	}
}

func TestClampDiagnosticKeepsRunning(t *testing.T) {
	c, sim := newTestController(t, basicConfig)
	hm := c.metrics

	// 40 octaves up: encoder clamps, loop keeps producing output.
	sim.SetSample(0, 40*int32(pitch.Octave))
	if err := c.RunCycle(); err != nil {
		t.Fatalf("RunCycle failed on clamped output: %v", err)
	}
	if got := sim.LastCodes()[0]; got != calibration.CodeMax {
		t.Errorf("clamped code = %d, want %d", got, calibration.CodeMax)
	}
	if hm.CodeClamped.Get(metrics.ChannelLabels(0)) != 1 {
		t.Error("clamp diagnostic counter not incremented")
	}
}

func TestMutatorBoundsChecks(t *testing.T) {
	c, _ := newTestController(t, basicConfig)
	if err := c.SetChannelScale(5, scale.Preset("major")); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("expected OUT_OF_RANGE, got %v", err)
	}
	if err := c.SetTranspose(-1, 0, 0); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("expected OUT_OF_RANGE, got %v", err)
	}
	if err := c.SwapCalibration(0, nil); err == nil {
		t.Error("nil calibration table accepted")
	}
}

func TestLookupScale(t *testing.T) {
	c, _ := newTestController(t, basicConfig)

	if _, err := c.LookupScale("major"); err != nil {
		t.Fatalf("preset lookup failed: %v", err)
	}
	if _, err := c.LookupScale("no-such-scale"); !errors.Is(err, errors.ErrInvalidScale) {
		t.Errorf("expected InvalidScale, got %v", err)
	}
}

func TestCalibrationAccessor(t *testing.T) {
	c, _ := newTestController(t, basicConfig)

	tbl, err := c.Calibration(0)
	if err != nil {
		t.Fatalf("Calibration failed: %v", err)
	}
	if len(tbl.Points()) == 0 {
		t.Error("expected a default table")
	}
	if _, err := c.Calibration(5); !errors.Is(err, errors.ErrOutOfRange) {
		t.Errorf("expected OutOfRange, got %v", err)
	}
}

func TestTransposeApplied(t *testing.T) {
	c, sim := newTestController(t, basicConfig)
	sim.SetSample(0, int32(pitch.Octave))

	c.RunCycle()
	before := sim.LastCodes()[0]

	c.SetTranspose(0, 1, 0)
	c.RunCycle()
	after := sim.LastCodes()[0]
	if after <= before {
		t.Errorf("octave transpose did not raise code: %d <= %d", after, before)
	}
}
