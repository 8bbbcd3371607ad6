// Package driver defines the hardware collaborator contracts: a sample
// source that delivers one raw input sample per channel per cycle and a
// code sink that accepts one DAC code per channel per cycle. The host core
// never talks to hardware directly; it only sees these interfaces.
package driver

// SampleSource supplies raw input samples. ReadSamples fills one sample
// per channel; len(samples) is the channel count and never varies after
// startup.
type SampleSource interface {
	ReadSamples(samples []int32) error
}

// CodeSink accepts hardware output codes, one per channel per cycle.
type CodeSink interface {
	WriteCodes(codes []uint16) error
}

// Driver is a full input+output hardware connection.
type Driver interface {
	SampleSource
	CodeSink
	Close() error
}
