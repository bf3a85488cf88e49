package main

import (
	"time"
)

const (
	// Overlay message display duration
	overlayMessageDuration = 2 * time.Second
)

// RenderState provides read-only access to game state for the renderer
type RenderState interface {
	IsFullscreen() bool
	IsShowingInfo() bool
	IsRightToLeft() bool
	IsContinuous() bool

	// Rendering data
	GetSpread(i int) (PageSpread, bool)
	GetSpreadLayout(i int) spreadLayout
	GetCurrentSpreadIndex() int
	GetPanY() float64
	GetPageBitmap(pageIndex int) Bitmap
	GetPageCanvas(pageIndex int) (Bitmap, bool)
	GetPagePath(pageIndex int) string
	GetPageError(pageIndex int) string

	// UI state
	GetOverlayMessage() string
	GetOverlayMessageTime() time.Time
	GetInfoLines() []string
	GetFontSize() float64
}

// InputActions provides action methods for the input handler
type InputActions interface {
	// Application control
	Exit()

	// Display toggles
	ToggleInfo()
	ToggleFullscreen()

	// Settings
	CycleViewMode()
	ToggleReadingDirection()
	ToggleContinuous()
	ToggleCover()
	ToggleBreakpoint()

	// Navigation
	Navigate(navKey string)
	PanByDelta(deltaY float64, dragging bool)
	ReleasePan(velocity float64)

	// Messages
	ShowOverlayMessage(message string)

	GetTotalPagesCount() int
}
