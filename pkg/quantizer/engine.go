// Quantizer engine for the quantizer host
//
// Maps normalized input pitch onto the nearest degree of the active scale,
// with a hysteresis guard band so input noise hovering near a note
// boundary cannot chatter the output between adjacent degrees.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package quantizer

import (
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

// DefaultGuard is the hysteresis guard margin: 1/8 semitone past the
// boundary between two adjacent degrees before the output follows.
const DefaultGuard pitch.Unit = 16

// Decision is one quantized pitch decision: the span the input landed in
// and the scale degree chosen inside it.
type Decision struct {
	SpanIndex int
	Degree    int

	// Pitch is the absolute quantized pitch the decision resolves to.
	Pitch pitch.Unit
}

// Engine quantizes one channel's input. The state is owned by exactly one
// channel and mutated every processing cycle; it is never persisted and
// re-settles from the first sample after a restart or a config change.
type Engine struct {
	scale  *scale.Scale
	policy *voltage.Policy
	guard  pitch.Unit

	// Settled state: the global degree the output currently holds.
	// settled is false right after init or a scale/standard change, so
	// the next cycle re-evaluates from raw input instead of trusting a
	// degree index that may no longer exist.
	settled bool
	held    int
}

// New creates an engine for one channel. guard <= 0 selects DefaultGuard.
func New(sc *scale.Scale, pol *voltage.Policy, guard pitch.Unit) *Engine {
	if guard <= 0 {
		guard = DefaultGuard
	}
	return &Engine{scale: sc, policy: pol, guard: guard}
}

// Scale returns the active scale table.
func (e *Engine) Scale() *scale.Scale { return e.scale }

// Policy returns the active voltage standard policy.
func (e *Engine) Policy() *voltage.Policy { return e.policy }

// SetScale installs a new scale table and drops the settled state.
func (e *Engine) SetScale(sc *scale.Scale) {
	e.scale = sc
	e.settled = false
}

// SetPolicy installs a new voltage standard and drops the settled state.
func (e *Engine) SetPolicy(pol *voltage.Policy) {
	e.policy = pol
	e.settled = false
}

// Process runs one quantization cycle on a raw input sample.
func (e *Engine) Process(raw int32) Decision {
	u := e.policy.Normalize(raw)
	winner := e.nearestGlobal(u)

	if e.settled && winner != e.held {
		if diff := winner - e.held; diff == 1 || diff == -1 {
			// Adjacent degree: only follow once the input has moved
			// past the shared boundary by more than the guard margin.
			lo, hi := e.held, winner
			if diff < 0 {
				lo, hi = winner, e.held
			}
			boundary := (e.globalOffset(lo) + e.globalOffset(hi)) / 2
			if diff > 0 && u <= boundary+e.guard {
				winner = e.held
			} else if diff < 0 && u >= boundary-e.guard {
				winner = e.held
			}
		}
	}

	e.held = winner
	e.settled = true

	n := e.scale.DegreeCount()
	si := floorDivInt(winner, n)
	return Decision{
		SpanIndex: si,
		Degree:    winner - si*n,
		Pitch:     e.globalOffset(winner),
	}
}

// nearestGlobal finds the global degree whose offset is closest to u,
// ties toward the lower degree. The in-span nearest misses the case where
// the input sits near a span edge and the true nearest is the first degree
// of the next span (or the last of the previous), so both neighbors of the
// in-span winner compete as well.
func (e *Engine) nearestGlobal(u pitch.Unit) int {
	si, pos := u.Decompose(e.policy.Span())
	idx, _ := e.scale.NearestDegree(pos)
	g := si*e.scale.DegreeCount() + idx

	best, bestDist := g-1, absUnit(u-e.globalOffset(g-1))
	for _, cand := range []int{g, g + 1} {
		if d := absUnit(u - e.globalOffset(cand)); d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

// globalOffset resolves a global degree to its absolute pitch.
func (e *Engine) globalOffset(g int) pitch.Unit {
	n := e.scale.DegreeCount()
	si := floorDivInt(g, n)
	off, err := e.scale.Offset(g - si*n)
	if err != nil {
		// Unreachable: g-si*n is always within [0, n).
		panic(err)
	}
	return pitch.Unit(si)*e.policy.Span() + off
}

func floorDivInt(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func absUnit(u pitch.Unit) pitch.Unit {
	if u < 0 {
		return -u
	}
	return u
}
