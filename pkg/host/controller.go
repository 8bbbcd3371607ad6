// Control loop for the quantizer host
//
// One cooperative pass per tick: read raw samples, quantize, encode,
// write hardware codes. Configuration mutations (scale edits, standard
// switches, calibration swaps) are queued and applied only at cycle
// boundaries, so a sample is never torn across two scaling regimes and
// the loop itself needs no locks on the hot path.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/config"
	"cvquant-go/pkg/driver"
	"cvquant-go/pkg/encoder"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/log"
	"cvquant-go/pkg/metrics"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/quantizer"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

// channel bundles one output channel's engine, encoder and calibration.
type channel struct {
	engine  *quantizer.Engine
	encoder *encoder.Encoder
	cal     *calibration.Store

	settled  bool
	decision quantizer.Decision
}

// ChannelStatus is one channel's snapshot for the UI collaborator.
type ChannelStatus struct {
	Scale     string `json:"scale"`
	SpanIndex int    `json:"span_index"`
	Degree    int    `json:"degree"`
	Note      string `json:"note"`
	Code      uint16 `json:"code"`
}

// Status is the host snapshot served by the control API.
type Status struct {
	Standard string          `json:"standard"`
	Cycles   uint64          `json:"cycles"`
	Channels []ChannelStatus `json:"channels"`
}

// Controller owns the processing loop and all channel state.
type Controller struct {
	logger  *log.Logger
	metrics *metrics.HostMetrics
	drv     driver.Driver

	policy   *voltage.Policy
	support  voltage.Support
	span     pitch.Unit
	channels []*channel

	scaleFor func(string) *scale.Scale

	tick    time.Duration
	pending chan func()

	samples []int32
	codes   []uint16
	cycles  uint64

	statusMu sync.RWMutex
	status   Status
}

// New builds a controller from validated settings. Configuration
// conflicts (a Buchla standard without voltage scaling support) surface
// here, before the loop ever starts.
func New(settings *config.Settings, drv driver.Driver, logger *log.Logger, hm *metrics.HostMetrics) (*Controller, error) {
	policy, err := voltage.NewPolicy(settings.Standard, settings.Span, settings.Support)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		logger:   logger,
		metrics:  hm,
		drv:      drv,
		policy:   policy,
		support:  settings.Support,
		span:     policy.Span(),
		scaleFor: settings.ScaleFor,
		tick:     time.Second / time.Duration(settings.TickRate),
		pending:  make(chan func(), 64),
		samples:  make([]int32, settings.Channels),
		codes:    make([]uint16, settings.Channels),
	}

	for i := 0; i < settings.Channels; i++ {
		cs := settings.Channel[i]
		sc := settings.ScaleFor(cs.Scale)
		if sc == nil {
			return nil, errors.ConfigValidationError(fmt.Sprintf("channel %d", i), "scale",
				fmt.Sprintf("unknown scale %q", cs.Scale))
		}
		// The engine decomposes against the policy span, so a scale
		// built for a different span would skew every degree position.
		if sc.Span() != policy.Span() {
			return nil, errors.ConfigConflictError(fmt.Sprintf(
				"channel %d: scale %q has span %d but the %s standard uses span %d",
				i, sc.Name(), sc.Span(), policy.Standard(), policy.Span()))
		}
		store := calibration.NewStore(settings.Calibrations[i])
		en := encoder.New(i, sc, policy, store)
		en.SetTranspose(cs.TransposeOctaves, cs.TransposeSemitones)
		c.channels = append(c.channels, &channel{
			engine:  quantizer.New(sc, policy, cs.Guard),
			encoder: en,
			cal:     store,
		})
	}

	hm.ActiveStandard.Set(nil, int64(policy.Standard()))
	c.updateStatus()
	logger.Info("controller ready: %d channels, %s standard, %v tick",
		settings.Channels, policy.Standard(), c.tick)
	return c, nil
}

// Channels returns the channel count.
func (c *Controller) Channels() int { return len(c.channels) }

// Run drives the processing loop until the context is canceled. Driver
// errors terminate the loop; recoverable diagnostics do not.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RunCycle(); err != nil {
				return err
			}
		}
	}
}

// RunCycle executes exactly one processing cycle. Pending configuration
// updates are drained first, so every mutation lands on a cycle boundary.
func (c *Controller) RunCycle() error {
	c.drainPending()

	if err := c.drv.ReadSamples(c.samples); err != nil {
		return err
	}

	for i, ch := range c.channels {
		d := ch.engine.Process(c.samples[i])
		if !ch.settled || d != ch.decision {
			c.metrics.DegreeChanges.Inc(metrics.ChannelLabels(i))
		}
		ch.decision = d
		ch.settled = true

		code, err := ch.encoder.Encode(d.SpanIndex, d.Degree)
		if err != nil {
			if !errors.IsRecoverable(err) {
				return err
			}
			c.metrics.CodeClamped.Inc(metrics.ChannelLabels(i))
			c.logger.WithField("channel", i).Debug("output clamped to %d", code)
		}
		c.codes[i] = code
		c.metrics.LastCode.Set(metrics.ChannelLabels(i), int64(code))
	}

	if err := c.drv.WriteCodes(c.codes); err != nil {
		return err
	}

	c.cycles++
	c.metrics.Cycles.Inc(nil)
	c.updateStatus()
	return nil
}

// drainPending applies every queued configuration update.
func (c *Controller) drainPending() {
	for {
		select {
		case fn := <-c.pending:
			fn()
		default:
			return
		}
	}
}

// updateStatus publishes the post-cycle snapshot for API readers.
func (c *Controller) updateStatus() {
	st := Status{
		Standard: c.policy.Standard().String(),
		Cycles:   c.cycles,
		Channels: make([]ChannelStatus, len(c.channels)),
	}
	for i, ch := range c.channels {
		st.Channels[i] = ChannelStatus{
			Scale:     ch.engine.Scale().Name(),
			SpanIndex: ch.decision.SpanIndex,
			Degree:    ch.decision.Degree,
			Note:      ch.decision.Pitch.NoteName(),
			Code:      c.codes[i],
		}
	}
	c.statusMu.Lock()
	c.status = st
	c.statusMu.Unlock()
}

// Status returns the latest committed snapshot.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// apply queues a mutation for the next cycle boundary.
func (c *Controller) apply(fn func()) {
	c.pending <- fn
}

// SetChannelScale swaps one channel's scale table at the next boundary.
// The engine drops its settled state and re-evaluates from raw input.
func (c *Controller) SetChannelScale(ch int, sc *scale.Scale) error {
	if ch < 0 || ch >= len(c.channels) {
		c.metrics.ScaleEditsRejected.Inc(nil)
		return errors.OutOfRangeError("channel", ch, len(c.channels))
	}
	if sc == nil {
		c.metrics.ScaleEditsRejected.Inc(nil)
		return errors.InvalidScaleError("", "no scale given")
	}
	if sc.Span() != c.span {
		c.metrics.ScaleEditsRejected.Inc(nil)
		return errors.ConfigConflictError(fmt.Sprintf(
			"scale %q has span %d but the active standard uses span %d",
			sc.Name(), sc.Span(), c.span))
	}
	c.apply(func() {
		c.channels[ch].engine.SetScale(sc)
		c.channels[ch].encoder.SetScale(sc)
		c.logger.WithField("channel", ch).Info("scale changed to %q", sc.Name())
	})
	return nil
}

// SetStandard switches the voltage standard at the next boundary. The
// policy is validated now, against the support flags fixed at startup, so
// a conflicting request fails before it is queued. The span is fixed for
// the life of the process: every channel's scale was validated against
// it, so a span change here would desynchronize them. span <= 0 keeps
// the current span.
func (c *Controller) SetStandard(std voltage.Standard, span int) error {
	if span <= 0 {
		span = int(c.span)
	}
	if pitch.Unit(span) != c.span {
		return errors.ConfigConflictError(fmt.Sprintf(
			"span is fixed at startup: have %d, requested %d", c.span, span))
	}
	policy, err := voltage.NewPolicy(std, pitch.Unit(span), c.support)
	if err != nil {
		return err
	}
	c.apply(func() {
		c.policy = policy
		for _, ch := range c.channels {
			ch.engine.SetPolicy(policy)
			ch.encoder.SetPolicy(policy)
		}
		c.metrics.ActiveStandard.Set(nil, int64(std))
		c.logger.Info("voltage standard changed to %s", std)
	})
	return nil
}

// SetTranspose sets a channel's output shift at the next boundary.
func (c *Controller) SetTranspose(ch, octaves, semitones int) error {
	if ch < 0 || ch >= len(c.channels) {
		return errors.OutOfRangeError("channel", ch, len(c.channels))
	}
	c.apply(func() {
		c.channels[ch].encoder.SetTranspose(octaves, semitones)
	})
	return nil
}

// LookupScale resolves a scale name against the user scales loaded at
// startup, then the preset bank.
func (c *Controller) LookupScale(name string) (*scale.Scale, error) {
	sc := c.scaleFor(name)
	if sc == nil {
		c.metrics.ScaleEditsRejected.Inc(nil)
		return nil, errors.InvalidScaleError(name, "unknown scale")
	}
	return sc, nil
}

// Calibration returns a channel's current calibration table.
func (c *Controller) Calibration(ch int) (*calibration.Table, error) {
	if ch < 0 || ch >= len(c.channels) {
		return nil, errors.OutOfRangeError("channel", ch, len(c.channels))
	}
	return c.channels[ch].cal.Load(), nil
}

// SwapCalibration atomically replaces a channel's calibration table at
// the next boundary.
func (c *Controller) SwapCalibration(ch int, tbl *calibration.Table) error {
	if ch < 0 || ch >= len(c.channels) {
		return errors.OutOfRangeError("channel", ch, len(c.channels))
	}
	if tbl == nil {
		return errors.ConfigValidationError("calibration", "points", "no table given")
	}
	c.apply(func() {
		c.channels[ch].cal.Swap(tbl)
		c.logger.WithField("channel", ch).Info("calibration table replaced")
	})
	return nil
}
