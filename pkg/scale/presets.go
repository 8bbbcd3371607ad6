package scale

import "cvquant-go/pkg/pitch"

// Preset scale bank. Offsets are in semitones within one octave; the
// constructor scales them to pitch units.
var presetDefs = []struct {
	name      string
	semitones []int
}{
	{"chromatic", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	{"major", []int{0, 2, 4, 5, 7, 9, 11}},
	{"natural minor", []int{0, 2, 3, 5, 7, 8, 10}},
	{"harmonic minor", []int{0, 2, 3, 5, 7, 8, 11}},
	{"melodic minor", []int{0, 2, 3, 5, 7, 9, 11}},
	{"dorian", []int{0, 2, 3, 5, 7, 9, 10}},
	{"phrygian", []int{0, 1, 3, 5, 7, 8, 10}},
	{"lydian", []int{0, 2, 4, 6, 7, 9, 11}},
	{"mixolydian", []int{0, 2, 4, 5, 7, 9, 10}},
	{"locrian", []int{0, 1, 3, 5, 6, 8, 10}},
	{"major pentatonic", []int{0, 2, 4, 7, 9}},
	{"minor pentatonic", []int{0, 3, 5, 7, 10}},
	{"blues", []int{0, 3, 5, 6, 7, 10}},
	{"whole tone", []int{0, 2, 4, 6, 8, 10}},
	{"octave", []int{0}},
}

var presets map[string]*Scale

func init() {
	presets = make(map[string]*Scale, len(presetDefs))
	for _, def := range presetDefs {
		offsets := make([]pitch.Unit, len(def.semitones))
		for i, st := range def.semitones {
			offsets[i] = pitch.FromSemitones(st)
		}
		s, err := New(def.name, pitch.Octave, offsets)
		if err != nil {
			panic("scale: bad preset " + def.name + ": " + err.Error())
		}
		presets[def.name] = s
	}
}

// Preset returns a built-in scale by name, or nil if unknown.
func Preset(name string) *Scale {
	return presets[name]
}

// PresetNames returns the names of the built-in scales in bank order.
func PresetNames() []string {
	names := make([]string, len(presetDefs))
	for i, def := range presetDefs {
		names[i] = def.name
	}
	return names
}
