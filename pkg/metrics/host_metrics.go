package metrics

import "fmt"

// HostMetrics bundles the quantizer host's metrics on one registry.
type HostMetrics struct {
	registry *Registry

	// Cycles counts processing loop ticks.
	Cycles *Counter

	// DegreeChanges counts emitted degree transitions per channel.
	DegreeChanges *Counter

	// CodeClamped counts calibration extrapolations pinned to the code
	// range, per channel.
	CodeClamped *Counter

	// ScaleEditsRejected counts edits that failed validation.
	ScaleEditsRejected *Counter

	// LastCode holds the most recent hardware code per channel.
	LastCode *Gauge

	// ActiveStandard holds the numeric id of the active voltage standard.
	ActiveStandard *Gauge
}

// NewHostMetrics creates the host metric set on a fresh registry.
func NewHostMetrics() *HostMetrics {
	hm := &HostMetrics{
		registry:           NewRegistry(),
		Cycles:             NewCounter("quantizer_cycles_total", "Processing loop ticks"),
		DegreeChanges:      NewCounter("quantizer_degree_changes_total", "Quantized degree transitions"),
		CodeClamped:        NewCounter("quantizer_code_clamped_total", "Output codes pinned to the DAC range"),
		ScaleEditsRejected: NewCounter("quantizer_scale_edits_rejected_total", "Scale edits that failed validation"),
		LastCode:           NewGauge("quantizer_last_code", "Most recent hardware code"),
		ActiveStandard:     NewGauge("quantizer_active_standard", "Active voltage standard id"),
	}
	for _, m := range []Metric{
		hm.Cycles, hm.DegreeChanges, hm.CodeClamped,
		hm.ScaleEditsRejected, hm.LastCode, hm.ActiveStandard,
	} {
		if err := hm.registry.Register(m); err != nil {
			panic("metrics: " + err.Error())
		}
	}
	return hm
}

// Registry returns the underlying registry for the scrape server.
func (hm *HostMetrics) Registry() *Registry { return hm.registry }

// ChannelLabels returns the label set for a channel.
func ChannelLabels(channel int) Labels {
	return Labels{"channel": fmt.Sprintf("%d", channel)}
}
