// Package config loads and saves the host settings file: host options,
// the active voltage standard, user scales, channel assignments and the
// calibration autosave block written back by the calibration procedure.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cvquant-go/pkg/errors"
)

// autosavePrefix marks lines maintained by the calibration writeback; they
// parse as regular config but are rewritten as a block on save.
const autosavePrefix = "#*#"

// Config is a parsed settings file: named sections of key/value options.
type Config struct {
	sections map[string]*Section
	order    []string
}

// Section is one named option group.
type Section struct {
	name     string
	options  map[string]string
	order    []string
	autosave bool
}

// Load reads a settings file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigSection, fmt.Sprintf("unable to open %s", path))
	}
	defer f.Close()

	return parse(bufio.NewScanner(f))
}

// LoadString parses settings from a string.
func LoadString(data string) (*Config, error) {
	return parse(bufio.NewScanner(strings.NewReader(data)))
}

func parse(scanner *bufio.Scanner) (*Config, error) {
	c := &Config{sections: make(map[string]*Section)}
	var cur *Section
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		autosave := false

		if strings.HasPrefix(line, autosavePrefix) {
			line = strings.TrimSpace(line[len(autosavePrefix):])
			autosave = true
			if line == "" {
				continue
			}
		} else if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, errors.New(errors.ErrConfigSection,
					fmt.Sprintf("empty section header at line %d", lineNum))
			}
			cur = c.addSection(name)
			cur.autosave = autosave
			continue
		}

		if cur == nil {
			return nil, errors.New(errors.ErrConfigOption,
				fmt.Sprintf("option outside any section at line %d", lineNum))
		}

		sep := strings.IndexAny(line, ":=")
		if sep < 0 {
			return nil, errors.New(errors.ErrConfigOption,
				fmt.Sprintf("malformed option at line %d: %q", lineNum, line))
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key == "" {
			return nil, errors.New(errors.ErrConfigOption,
				fmt.Sprintf("empty option name at line %d", lineNum))
		}
		if _, ok := cur.options[key]; !ok {
			cur.order = append(cur.order, key)
		}
		cur.options[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigSection, "read failed")
	}
	return c, nil
}

func (c *Config) addSection(name string) *Section {
	if s, ok := c.sections[name]; ok {
		return s
	}
	s := &Section{name: name, options: make(map[string]string)}
	c.sections[name] = s
	c.order = append(c.order, name)
	return s
}

// HasSection reports whether the section exists.
func (c *Config) HasSection(name string) bool {
	_, ok := c.sections[name]
	return ok
}

// GetSection returns a section or a CONFIG_SECTION error.
func (c *Config) GetSection(name string) (*Section, error) {
	s, ok := c.sections[name]
	if !ok {
		return nil, errors.ConfigSectionError(name)
	}
	return s, nil
}

// SectionNames returns section names in file order.
func (c *Config) SectionNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// SectionsWithPrefix returns sections whose name starts with prefix, in
// file order. Used for the "[scale x]" and "[channel N]" groups.
func (c *Config) SectionsWithPrefix(prefix string) []*Section {
	var out []*Section
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			out = append(out, c.sections[name])
		}
	}
	return out
}

// Name returns the section name.
func (s *Section) Name() string { return s.name }

// HasOption reports whether the option is present.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[option]
	return ok
}

// Get returns an option value; the fallback is used when absent.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	v, ok := s.options[option]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return "", errors.ConfigOptionError(s.name, option)
	}
	return v, nil
}

// GetInt returns an integer option.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.options[option]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errors.ConfigOptionError(s.name, option)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.ConfigValidationError(s.name, option,
			fmt.Sprintf("not an integer: %q", v))
	}
	return n, nil
}

// GetBool returns a boolean option.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.options[option]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, errors.ConfigOptionError(s.name, option)
	}
	switch strings.ToLower(v) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, errors.ConfigValidationError(s.name, option,
		fmt.Sprintf("not a boolean: %q", v))
}

// GetIntList returns a comma-separated integer list option.
func (s *Section) GetIntList(option string, fallback ...[]int) ([]int, error) {
	v, ok := s.options[option]
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return nil, errors.ConfigOptionError(s.name, option)
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.ConfigValidationError(s.name, option,
				fmt.Sprintf("not an integer: %q", p))
		}
		out = append(out, n)
	}
	return out, nil
}
