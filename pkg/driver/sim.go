package driver

import "sync"

// Sim is an in-process driver for tests and the simulator CLI: the input
// side replays programmed samples, the output side captures written codes.
type Sim struct {
	mu      sync.Mutex
	samples []int32
	codes   []uint16
	history [][]uint16
}

// NewSim creates a simulated driver with the given channel count.
func NewSim(channels int) *Sim {
	return &Sim{
		samples: make([]int32, channels),
		codes:   make([]uint16, channels),
	}
}

// SetSample programs the raw input for one channel; it is returned on
// every following ReadSamples until changed.
func (s *Sim) SetSample(channel int, raw int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel >= 0 && channel < len(s.samples) {
		s.samples[channel] = raw
	}
}

// ReadSamples implements SampleSource.
func (s *Sim) ReadSamples(samples []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(samples, s.samples)
	return nil
}

// WriteCodes implements CodeSink.
func (s *Sim) WriteCodes(codes []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.codes, codes)
	snap := make([]uint16, len(codes))
	copy(snap, codes)
	s.history = append(s.history, snap)
	return nil
}

// LastCodes returns the most recently written codes.
func (s *Sim) LastCodes() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.codes))
	copy(out, s.codes)
	return out
}

// History returns every written code vector in order.
func (s *Sim) History() [][]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]uint16, len(s.history))
	copy(out, s.history)
	return out
}

// Close implements Driver.
func (s *Sim) Close() error { return nil }
