package main

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// MouseSettings contains mouse-specific configuration
type MouseSettings struct {
	WheelSensitivity float64 `json:"wheel_sensitivity" mapstructure:"wheel_sensitivity"`
	WheelInverted    bool    `json:"wheel_inverted" mapstructure:"wheel_inverted"`
	DragThreshold    int     `json:"drag_threshold" mapstructure:"drag_threshold"` // pixels
	EnableDragPan    bool    `json:"enable_drag_pan" mapstructure:"enable_drag_pan"`
}

// GetDefaultMouseSettings returns the default mouse settings
func GetDefaultMouseSettings() MouseSettings {
	return MouseSettings{
		WheelSensitivity: 1.0,
		DragThreshold:    5,
		EnableDragPan:    true,
	}
}

const (
	// Wheel ticks are converted to pixels with this factor.
	wheelPixelsPerTick = 60.0

	// A wheel gesture ends after this much idle time and snaps like a
	// drag release.
	wheelIdleTimeout = 150 * time.Millisecond

	// Velocity samples are smoothed with this weight for the newest sample.
	velocitySmoothing = 0.6
)

// dragTracker follows one pointer drag and estimates its release velocity.
type dragTracker struct {
	active   bool
	panning  bool
	startY   float64
	lastY    float64
	lastTime time.Time
	velocity float64 // px/ms
}

func (d *dragTracker) begin(y float64, now time.Time) {
	*d = dragTracker{active: true, startY: y, lastY: y, lastTime: now}
}

// move records the pointer at y and returns the delta since the last
// sample. The delta is zero until the pointer leaves the threshold.
func (d *dragTracker) move(y float64, now time.Time, threshold float64) float64 {
	if !d.active {
		return 0
	}
	if !d.panning {
		if abs(y-d.startY) < threshold {
			return 0
		}
		d.panning = true
	}
	dy := y - d.lastY
	if dt := now.Sub(d.lastTime).Milliseconds(); dt > 0 {
		sample := dy / float64(dt)
		d.velocity = velocitySmoothing*sample + (1-velocitySmoothing)*d.velocity
		d.lastTime = now
	}
	d.lastY = y
	return dy
}

// end finishes the drag, reporting whether it panned and its velocity.
func (d *dragTracker) end() (float64, bool) {
	panned := d.panning
	v := d.velocity
	*d = dragTracker{}
	return v, panned
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MouseHandler turns drags and wheel motion into pan gestures.
type MouseHandler struct {
	settings  MouseSettings
	drag      dragTracker
	lastWheel time.Time
	wheeling  bool
	now       func() time.Time
}

// NewMouseHandler creates a new MouseHandler
func NewMouseHandler(settings MouseSettings) *MouseHandler {
	return &MouseHandler{settings: settings, now: time.Now}
}

// UpdateSettings updates the mouse settings
func (m *MouseHandler) UpdateSettings(settings MouseSettings) {
	m.settings = settings
}

// HandleMouse processes mouse input for the current frame
func (m *MouseHandler) HandleMouse(inputActions InputActions) bool {
	now := m.now()
	processed := false

	if m.settings.EnableDragPan {
		_, y := ebiten.CursorPosition()
		processed = m.handleDrag(inputActions, float64(y), now,
			inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft),
			ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft))
	}

	_, wheelY := ebiten.Wheel()
	return m.handleWheel(inputActions, wheelY, now) || processed
}

func (m *MouseHandler) handleDrag(inputActions InputActions, y float64, now time.Time, justPressed, pressed bool) bool {
	switch {
	case justPressed:
		m.drag.begin(y, now)
		return false
	case pressed && m.drag.active:
		dy := m.drag.move(y, now, float64(m.settings.DragThreshold))
		if dy == 0 {
			return false
		}
		inputActions.PanByDelta(dy, true)
		return true
	case !pressed && m.drag.active:
		velocity, panned := m.drag.end()
		if !panned {
			return false
		}
		inputActions.ReleasePan(velocity)
		return true
	}
	return false
}

func (m *MouseHandler) handleWheel(inputActions InputActions, wheelY float64, now time.Time) bool {
	if wheelY != 0 {
		if m.settings.WheelInverted {
			wheelY = -wheelY
		}
		inputActions.PanByDelta(wheelY*m.settings.WheelSensitivity*wheelPixelsPerTick, true)
		m.lastWheel = now
		m.wheeling = true
		return true
	}
	if m.wheeling && now.Sub(m.lastWheel) >= wheelIdleTimeout {
		m.wheeling = false
		inputActions.ReleasePan(0)
		return true
	}
	return false
}
