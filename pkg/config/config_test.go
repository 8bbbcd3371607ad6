package config

import (
	"testing"

	"cvquant-go/pkg/errors"
)

func TestLoadString(t *testing.T) {
	data := `
[host]
tick_rate: 500
channels: 2
log_level: debug   # comment after value

[standard]
mode: 1V/oct

[channel 0]
scale: major
guard = 24
`

	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}

	if !cfg.HasSection("host") || !cfg.HasSection("channel 0") {
		t.Fatal("expected sections missing")
	}
	if cfg.HasSection("nope") {
		t.Error("phantom section")
	}

	host, err := cfg.GetSection("host")
	if err != nil {
		t.Fatalf("GetSection failed: %v", err)
	}
	if v, _ := host.GetInt("tick_rate"); v != 500 {
		t.Errorf("tick_rate = %d, want 500", v)
	}
	if v, _ := host.Get("log_level"); v != "debug" {
		t.Errorf("log_level = %q, want debug", v)
	}

	// '=' separator works too
	ch, _ := cfg.GetSection("channel 0")
	if v, _ := ch.GetInt("guard"); v != 24 {
		t.Errorf("guard = %d, want 24", v)
	}

	// missing option with fallback
	if v, _ := host.GetInt("missing", 7); v != 7 {
		t.Error("fallback not applied")
	}
	// missing option without fallback
	if _, err := host.Get("missing"); !errors.Is(err, errors.ErrConfigOption) {
		t.Errorf("expected CONFIG_OPTION, got %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"orphan: 1",      // option before any section
		"[s]\nnosep",     // missing separator
		"[]\n",           // empty header
		"[s]\n: value\n", // empty key
	}
	for _, data := range cases {
		if _, err := LoadString(data); err == nil {
			t.Errorf("LoadString(%q) accepted malformed input", data)
		}
	}
}

func TestAutosaveLinesParse(t *testing.T) {
	data := `
[host]
channels: 1

#*# [calibration 0]
#*# points: 0:0, 1536:6553
`
	cfg, err := LoadString(data)
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sec, err := cfg.GetSection("calibration 0")
	if err != nil {
		t.Fatalf("autosave section not parsed: %v", err)
	}
	if v, _ := sec.Get("points"); v != "0:0, 1536:6553" {
		t.Errorf("points = %q", v)
	}
}

func TestSectionsWithPrefix(t *testing.T) {
	cfg, err := LoadString("[scale a]\noffsets: 0\n[scale b]\noffsets: 0\n[host]\n")
	if err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	got := cfg.SectionsWithPrefix("scale ")
	if len(got) != 2 || got[0].Name() != "scale a" || got[1].Name() != "scale b" {
		t.Errorf("SectionsWithPrefix = %v", got)
	}
}

func TestGetIntList(t *testing.T) {
	cfg, _ := LoadString("[s]\nvals: 0, 128, 256\nbad: 1, x\n")
	sec, _ := cfg.GetSection("s")
	vals, err := sec.GetIntList("vals")
	if err != nil {
		t.Fatalf("GetIntList failed: %v", err)
	}
	if len(vals) != 3 || vals[2] != 256 {
		t.Errorf("vals = %v", vals)
	}
	if _, err := sec.GetIntList("bad"); !errors.Is(err, errors.ErrConfigValidation) {
		t.Errorf("expected CONFIG_VALIDATION, got %v", err)
	}
}

func TestGetBool(t *testing.T) {
	cfg, _ := LoadString("[s]\na: true\nb: off\nc: maybe\n")
	sec, _ := cfg.GetSection("s")
	if v, _ := sec.GetBool("a"); !v {
		t.Error("a should be true")
	}
	if v, _ := sec.GetBool("b"); v {
		t.Error("b should be false")
	}
	if _, err := sec.GetBool("c"); !errors.Is(err, errors.ErrConfigValidation) {
		t.Errorf("expected CONFIG_VALIDATION, got %v", err)
	}
}
