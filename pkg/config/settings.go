package config

import (
	"fmt"
	"strconv"
	"strings"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

// ChannelSettings is one channel's configuration.
type ChannelSettings struct {
	Scale              string
	Guard              pitch.Unit
	TransposeOctaves   int
	TransposeSemitones int
}

// Settings is the parsed, validated host configuration. The host builds
// its engines from a Settings snapshot at startup; later edits arrive
// through the API and are applied between cycles.
type Settings struct {
	TickRate    int
	Channels    int
	LogLevel    string
	APIAddr     string
	MetricsAddr string
	Device      string

	Support  voltage.Support
	Standard voltage.Standard
	Span     pitch.Unit

	Scales       map[string]*scale.Scale
	Channel      []ChannelSettings
	Calibrations map[int]*calibration.Table
}

// LoadSettings loads and validates the settings file.
func LoadSettings(path string) (*Settings, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ParseSettings(cfg)
}

// ParseSettings builds validated settings from a parsed config.
func ParseSettings(cfg *Config) (*Settings, error) {
	s := &Settings{
		TickRate:     1000,
		Channels:     4,
		LogLevel:     "info",
		Scales:       make(map[string]*scale.Scale),
		Calibrations: make(map[int]*calibration.Table),
	}

	if host, err := cfg.GetSection("host"); err == nil {
		if s.TickRate, err = host.GetInt("tick_rate", s.TickRate); err != nil {
			return nil, err
		}
		if s.Channels, err = host.GetInt("channels", s.Channels); err != nil {
			return nil, err
		}
		if s.LogLevel, err = host.Get("log_level", s.LogLevel); err != nil {
			return nil, err
		}
		if s.APIAddr, err = host.Get("api_addr", ""); err != nil {
			return nil, err
		}
		if s.MetricsAddr, err = host.Get("metrics_addr", ""); err != nil {
			return nil, err
		}
		if s.Device, err = host.Get("device", ""); err != nil {
			return nil, err
		}
	}
	if s.TickRate <= 0 {
		return nil, errors.ConfigValidationError("host", "tick_rate", "must be positive")
	}
	if s.Channels < 1 || s.Channels > 8 {
		return nil, errors.ConfigValidationError("host", "channels", "must be 1..8")
	}

	if err := s.parseStandard(cfg); err != nil {
		return nil, err
	}
	if err := s.parseScales(cfg); err != nil {
		return nil, err
	}
	if err := s.parseChannels(cfg); err != nil {
		return nil, err
	}
	if err := s.parseCalibrations(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) parseStandard(cfg *Config) error {
	s.Standard = voltage.VoltPerOctave
	s.Span = pitch.Octave

	sec, err := cfg.GetSection("standard")
	if err != nil {
		return nil
	}
	mode, err := sec.Get("mode", "1V/oct")
	if err != nil {
		return err
	}
	if s.Standard, err = voltage.ParseStandard(mode); err != nil {
		return err
	}
	scaling, err := sec.GetBool("voltage_scaling", false)
	if err != nil {
		return err
	}
	s.Support = voltage.Support{VoltageScaling: scaling}
	span, err := sec.GetInt("span", int(pitch.Octave))
	if err != nil {
		return err
	}
	s.Span = pitch.Unit(span)

	// Conflicts surface now, before any engine is built.
	if _, err := voltage.NewPolicy(s.Standard, s.Span, s.Support); err != nil {
		return err
	}
	return nil
}

func (s *Settings) parseScales(cfg *Config) error {
	for _, sec := range cfg.SectionsWithPrefix("scale ") {
		name := strings.TrimSpace(strings.TrimPrefix(sec.Name(), "scale "))
		if name == "" {
			return errors.ConfigValidationError(sec.Name(), "", "scale name missing")
		}
		offs, err := sec.GetIntList("offsets")
		if err != nil {
			return err
		}
		span, err := sec.GetInt("span", int(pitch.Octave))
		if err != nil {
			return err
		}
		units := make([]pitch.Unit, len(offs))
		for i, o := range offs {
			units[i] = pitch.Unit(o)
		}
		sc, err := scale.New(name, pitch.Unit(span), units)
		if err != nil {
			return err
		}
		s.Scales[name] = sc
	}
	return nil
}

func (s *Settings) parseChannels(cfg *Config) error {
	s.Channel = make([]ChannelSettings, s.Channels)
	for i := range s.Channel {
		s.Channel[i] = ChannelSettings{Scale: "chromatic"}
	}
	for _, sec := range cfg.SectionsWithPrefix("channel ") {
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sec.Name(), "channel ")))
		if err != nil || idx < 0 || idx >= s.Channels {
			return errors.ConfigValidationError(sec.Name(), "",
				fmt.Sprintf("channel index must be 0..%d", s.Channels-1))
		}
		ch := &s.Channel[idx]
		if ch.Scale, err = sec.Get("scale", ch.Scale); err != nil {
			return err
		}
		if s.ScaleFor(ch.Scale) == nil {
			return errors.ConfigValidationError(sec.Name(), "scale",
				fmt.Sprintf("unknown scale %q", ch.Scale))
		}
		guard, err := sec.GetInt("guard", 0)
		if err != nil {
			return err
		}
		if guard < 0 {
			return errors.ConfigValidationError(sec.Name(), "guard", "must be >= 0")
		}
		ch.Guard = pitch.Unit(guard)
		if ch.TransposeOctaves, err = sec.GetInt("transpose_octaves", 0); err != nil {
			return err
		}
		if ch.TransposeSemitones, err = sec.GetInt("transpose_semitones", 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Settings) parseCalibrations(cfg *Config) error {
	for _, sec := range cfg.SectionsWithPrefix("calibration ") {
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(sec.Name(), "calibration ")))
		if err != nil || idx < 0 || idx >= s.Channels {
			return errors.ConfigValidationError(sec.Name(), "",
				fmt.Sprintf("channel index must be 0..%d", s.Channels-1))
		}
		raw, err := sec.Get("points")
		if err != nil {
			return err
		}
		tbl, err := ParsePoints(sec.Name(), raw)
		if err != nil {
			return err
		}
		s.Calibrations[idx] = tbl
	}
	return nil
}

// ParsePoints parses "pitch:code, pitch:code, ..." into a table.
func ParsePoints(section, raw string) (*calibration.Table, error) {
	var points []calibration.Point
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pc := strings.SplitN(part, ":", 2)
		if len(pc) != 2 {
			return nil, errors.ConfigValidationError(section, "points",
				fmt.Sprintf("malformed point %q", part))
		}
		p, err := strconv.Atoi(strings.TrimSpace(pc[0]))
		if err != nil {
			return nil, errors.ConfigValidationError(section, "points",
				fmt.Sprintf("bad pitch in %q", part))
		}
		c, err := strconv.Atoi(strings.TrimSpace(pc[1]))
		if err != nil || c < 0 || c > calibration.CodeMax {
			return nil, errors.ConfigValidationError(section, "points",
				fmt.Sprintf("bad code in %q", part))
		}
		points = append(points, calibration.Point{Pitch: pitch.Unit(p), Code: uint16(c)})
	}
	return calibration.NewTable(points)
}

// FormatPoints renders a calibration table in the settings file's point
// syntax, the inverse of the points option parser.
func FormatPoints(tbl *calibration.Table) string {
	pts := tbl.Points()
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = fmt.Sprintf("%d:%d", p.Pitch, p.Code)
	}
	return strings.Join(parts, ", ")
}

// ScaleFor resolves a scale name against user scales first, then the
// preset bank.
func (s *Settings) ScaleFor(name string) *scale.Scale {
	if sc, ok := s.Scales[name]; ok {
		return sc
	}
	return scale.Preset(name)
}
