package main

// NavigationState is the live position within the spread sequence,
// measured every frame.
type NavigationState struct {
	CurrentSpreadIndex int
	TotalSpreads       int
	PanY               float64
	SpreadHeight       float64
	ViewportHeight     float64
}

func (s NavigationState) atFirstSpread() bool { return s.CurrentSpreadIndex <= 0 }
func (s NavigationState) atLastSpread() bool  { return s.CurrentSpreadIndex >= s.TotalSpreads-1 }

type Direction int

const (
	DirectionPrev Direction = iota
	DirectionNext
)

func (d Direction) String() string {
	if d == DirectionNext {
		return "next"
	}
	return "prev"
}

type Edge int

const (
	EdgeFirst Edge = iota
	EdgeLast
)

type NavActionKind int

const (
	NavNone NavActionKind = iota
	NavPan
	NavJumpSpread
	NavJumpEdge
	NavVolume
)

// NavAction is the outcome of one navigation input.
type NavAction struct {
	Kind      NavActionKind
	DeltaY    float64   // NavPan
	Direction Direction // NavJumpSpread, NavVolume
	Edge      Edge      // NavJumpEdge
}

// Transition hysteresis as a fraction of the spread height.
const panTransitionBand = 0.1

// handleNavigationKey maps a key name to a navigation action. Paging past
// either end of the volume escapes to the adjacent volume.
func handleNavigationKey(key string, state NavigationState, panStep float64) NavAction {
	switch key {
	case "ArrowUp":
		return NavAction{Kind: NavPan, DeltaY: panStep}
	case "ArrowDown", "Space":
		return NavAction{Kind: NavPan, DeltaY: -panStep}
	case "PageUp":
		if !state.atFirstSpread() {
			return NavAction{Kind: NavJumpSpread, Direction: DirectionPrev}
		}
		return NavAction{Kind: NavVolume, Direction: DirectionPrev}
	case "PageDown":
		if !state.atLastSpread() {
			return NavAction{Kind: NavJumpSpread, Direction: DirectionNext}
		}
		return NavAction{Kind: NavVolume, Direction: DirectionNext}
	case "Home":
		if state.atFirstSpread() {
			return NavAction{}
		}
		return NavAction{Kind: NavJumpEdge, Edge: EdgeFirst}
	case "End":
		if state.atLastSpread() {
			return NavAction{}
		}
		return NavAction{Kind: NavJumpEdge, Edge: EdgeLast}
	default:
		return NavAction{}
	}
}

// PanTransition moves the reader to a neighbouring spread.
type PanTransition struct {
	NewSpreadIndex int
	Direction      Direction
}

// checkPanTransition reports whether panning to newPanY has gone far enough
// past a boundary to move to the neighbouring spread.
func checkPanTransition(state NavigationState, newPanY float64) (PanTransition, bool) {
	band := panTransitionBand * state.SpreadHeight
	bottom := bottomBoundary(state.SpreadHeight, state.ViewportHeight)

	if newPanY < bottom-band && !state.atLastSpread() {
		return PanTransition{NewSpreadIndex: state.CurrentSpreadIndex + 1, Direction: DirectionNext}, true
	}
	if newPanY > band && !state.atFirstSpread() {
		return PanTransition{NewSpreadIndex: state.CurrentSpreadIndex - 1, Direction: DirectionPrev}, true
	}
	return PanTransition{}, false
}

// bottomBoundary is the lowest pan offset that still fills the viewport.
func bottomBoundary(spreadHeight, viewportHeight float64) float64 {
	return min(0, viewportHeight-spreadHeight)
}

// clampPanY keeps the spread inside the viewport. A spread that fits is
// always centered regardless of the requested offset.
func clampPanY(panY, spreadHeight, viewportHeight float64) float64 {
	if spreadHeight <= viewportHeight {
		return (viewportHeight - spreadHeight) / 2
	}
	return max(bottomBoundary(spreadHeight, viewportHeight), min(0, panY))
}
