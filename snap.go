package main

import "math"

// SnapState is a NavigationState plus the release velocity in px/ms.
type SnapState struct {
	NavigationState
	Velocity float64
}

type SnapConfig struct {
	DecayFactor         float64 // per-frame momentum retention, in [0, 1)
	TransitionThreshold float64 // fraction of spread height past a boundary
}

func defaultSnapConfig() SnapConfig {
	return SnapConfig{DecayFactor: 0.95, TransitionThreshold: 0.3}
}

type SnapKind int

const (
	SnapNone SnapKind = iota
	SnapTo
	SnapTransition
)

type SnapResult struct {
	Kind      SnapKind
	TargetY   float64   // SnapTo
	Direction Direction // SnapTransition
}

// Offsets closer than this to the target need no settle animation.
const snapTolerance = 5.0

// calculateSnapTarget decides where a released scroll settles. The resting
// point follows an exponential decay of the release velocity; momentum that
// carries well past a boundary moves to the neighbouring spread.
func calculateSnapTarget(state SnapState, cfg SnapConfig) SnapResult {
	predictedEnd := state.PanY
	if cfg.DecayFactor < 1 {
		predictedEnd += state.Velocity * 1000 / (1 - cfg.DecayFactor)
	}

	if state.SpreadHeight <= state.ViewportHeight {
		return snapTo(state.PanY, (state.ViewportHeight-state.SpreadHeight)/2)
	}

	top := 0.0
	bottom := bottomBoundary(state.SpreadHeight, state.ViewportHeight)
	threshold := cfg.TransitionThreshold * state.SpreadHeight

	if predictedEnd > top+threshold && !state.atFirstSpread() {
		return SnapResult{Kind: SnapTransition, Direction: DirectionPrev}
	}
	if predictedEnd < bottom-threshold && !state.atLastSpread() {
		return SnapResult{Kind: SnapTransition, Direction: DirectionNext}
	}

	var target float64
	switch {
	case predictedEnd > top:
		target = top
	case predictedEnd < bottom:
		target = bottom
	case predictedEnd-bottom < top-predictedEnd:
		target = bottom
	default:
		target = top
	}
	return snapTo(state.PanY, target)
}

func snapTo(current, target float64) SnapResult {
	if math.Abs(current-target) < snapTolerance {
		return SnapResult{}
	}
	return SnapResult{Kind: SnapTo, TargetY: target}
}

// EasingFunc maps animation progress in [0, 1] to eased progress.
type EasingFunc func(t float64) float64

func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

// interpolateWithEasing returns the value between start and end at progress,
// eased by fn (easeOutCubic when nil). Progress is clamped to [0, 1].
func interpolateWithEasing(start, end, progress float64, fn EasingFunc) float64 {
	if fn == nil {
		fn = easeOutCubic
	}
	progress = max(0, min(1, progress))
	return start + (end-start)*fn(progress)
}
