package main

import (
	"time"
)

// ReaderSettings are the view options of an open reader.
type ReaderSettings struct {
	ViewMode              ViewMode
	RightToLeft           bool
	HasCover              bool
	Continuous            bool
	AutoDetectBreakpoints bool
	PanStep               float64
	Snap                  SnapConfig
	SnapDuration          time.Duration
	CacheBehind           int
	CacheAhead            int
	DecodeWorkers         int
	Canvas                CanvasCacheOptions
}

func readerSettingsFromConfig(c Config) ReaderSettings {
	mode, err := parseViewMode(c.PageViewMode)
	if err != nil {
		mode = ViewModeAuto
	}
	return ReaderSettings{
		ViewMode:              mode,
		RightToLeft:           c.RightToLeft,
		HasCover:              c.HasCover,
		Continuous:            c.ContinuousScroll,
		AutoDetectBreakpoints: c.AutoDetectBreakpoints,
		PanStep:               c.PanStep,
		Snap:                  c.SnapConfig(),
		SnapDuration:          time.Duration(c.SnapDurationMs) * time.Millisecond,
		CacheBehind:           c.CacheBehind,
		CacheAhead:            c.CacheAhead,
		DecodeWorkers:         c.DecodeWorkers,
		Canvas:                c.CanvasCacheOptions(),
	}
}

// settleAnimation eases the pan offset towards a snap target.
type settleAnimation struct {
	from, to float64
	start    time.Time
	duration time.Duration
}

// Reader drives one open volume: it regroups spreads when inputs change,
// applies navigation actions and keeps the caches aligned with the current
// spread. It is not safe for concurrent use; the frame loop owns it.
type Reader struct {
	settings ReaderSettings
	cache    *ImageCache
	canvases *CanvasCache

	files       map[string]File
	pages       []Page
	breakpoints *BreakpointSet
	spreads     []PageSpread
	spreadPages [][]int

	viewportW float64
	viewportH float64
	current   int
	panY      float64
	velocity  float64
	anim      *settleAnimation
	now       func() time.Time

	onPageChange        func(page, total int)
	onVolumeNav         func(Direction)
	onBreakpointsChange func([]int)
}

// NewReader creates a reader using cache for decoded pages. canvases may be
// nil when continuous mode is never used.
func NewReader(settings ReaderSettings, cache *ImageCache, canvases *CanvasCache) *Reader {
	r := &Reader{
		settings:    settings,
		cache:       cache,
		canvases:    canvases,
		breakpoints: NewBreakpointSet(),
		now:         time.Now,
	}
	r.applyCacheWindow()
	return r
}

// OnPageChange registers the progress callback, called with the 1-indexed
// first page of the current spread whenever the spread changes.
func (r *Reader) OnPageChange(fn func(page, total int)) { r.onPageChange = fn }

// OnVolumeNav registers the callback for paging past either end.
func (r *Reader) OnVolumeNav(fn func(Direction)) { r.onVolumeNav = fn }

// OnBreakpointsChange registers the callback receiving the explicit
// breakpoints after they are seeded or toggled, for persistence.
func (r *Reader) OnBreakpointsChange(fn func([]int)) { r.onBreakpointsChange = fn }

// Open loads a volume. A nil breakpoints slice marks a volume never opened
// before, which is scanned for breakpoints when auto detection is enabled;
// an empty slice is a saved choice of no breakpoints.
func (r *Reader) Open(files map[string]File, pages []Page, breakpoints []int, startPage int) {
	r.cache.Cleanup()
	if r.canvases != nil {
		r.canvases.Invalidate()
	}

	r.files = files
	r.pages = pages
	r.breakpoints = NewBreakpointSet(breakpoints...)
	if breakpoints == nil && r.settings.AutoDetectBreakpoints {
		detected := detectSpreadBreakpoints(pages)
		r.breakpoints = NewBreakpointSet(detected...)
		logger.Info().Ints("breakpoints", detected).Int("pages", len(pages)).Msg("detected spread breakpoints")
		r.notifyBreakpoints()
	}
	r.current = -1
	r.regroup(startPage)
}

// Close releases every cached bitmap of the volume.
func (r *Reader) Close() {
	r.cache.Cleanup()
	if r.canvases != nil {
		r.canvases.Invalidate()
	}
	r.files = nil
	r.pages = nil
	r.spreads = nil
	r.spreadPages = nil
}

func (r *Reader) Pages() []Page                { return r.pages }
func (r *Reader) Spreads() []PageSpread        { return r.spreads }
func (r *Reader) Settings() ReaderSettings     { return r.settings }
func (r *Reader) CurrentSpreadIndex() int      { return r.current }
func (r *Reader) PanY() float64                { return r.panY }
func (r *Reader) Breakpoints() []int           { return r.breakpoints.Indices() }
func (r *Reader) ImageCache() *ImageCache      { return r.cache }
func (r *Reader) CanvasCache() *CanvasCache    { return r.canvases }
func (r *Reader) Animating() bool              { return r.anim != nil }
func (r *Reader) ViewportSize() (w, h float64) { return r.viewportW, r.viewportH }

// CurrentSpread returns the spread on screen.
func (r *Reader) CurrentSpread() (PageSpread, bool) {
	return r.spreadAt(r.current)
}

func (r *Reader) spreadAt(i int) (PageSpread, bool) {
	if i < 0 || i >= len(r.spreads) {
		return PageSpread{}, false
	}
	return r.spreads[i], true
}

// CurrentPage returns the 0-based index of the first page on screen.
func (r *Reader) CurrentPage() int {
	s, ok := r.CurrentSpread()
	if !ok {
		return 0
	}
	return s.PageIndices[0]
}

// SpreadLayout returns the on-screen size of spread i.
func (r *Reader) SpreadLayout(i int) spreadLayout {
	s, ok := r.spreadAt(i)
	if !ok {
		return spreadLayout{}
	}
	return layoutSpread(s, r.viewportW, r.viewportH, r.settings.Continuous)
}

// NavigationState measures the current position.
func (r *Reader) NavigationState() NavigationState {
	return NavigationState{
		CurrentSpreadIndex: r.current,
		TotalSpreads:       len(r.spreads),
		PanY:               r.panY,
		SpreadHeight:       r.SpreadLayout(r.current).Height,
		ViewportHeight:     r.viewportH,
	}
}

func (r *Reader) isPortrait() bool {
	return isPortraitOrientation(int(r.viewportW), int(r.viewportH))
}

// SetViewport updates the live window size. Crossing between portrait and
// landscape regroups auto mode; a width change invalidates canvases.
func (r *Reader) SetViewport(w, h float64) {
	if w == r.viewportW && h == r.viewportH {
		return
	}
	wasPortrait := r.isPortrait()
	widthChanged := w != r.viewportW
	r.viewportW, r.viewportH = w, h

	if widthChanged && r.canvases != nil {
		r.canvases.Invalidate()
	}
	if r.settings.ViewMode == ViewModeAuto && wasPortrait != r.isPortrait() && len(r.pages) > 0 {
		r.regroup(r.CurrentPage())
		return
	}
	r.panY = r.clampPan(r.panY)
	r.updateCaches()
}

func (r *Reader) SetViewMode(m ViewMode) {
	if m == r.settings.ViewMode {
		return
	}
	r.settings.ViewMode = m
	r.regroup(r.CurrentPage())
}

func (r *Reader) SetRightToLeft(rtl bool) {
	r.settings.RightToLeft = rtl
}

func (r *Reader) SetHasCover(hasCover bool) {
	if hasCover == r.settings.HasCover {
		return
	}
	r.settings.HasCover = hasCover
	r.regroup(r.CurrentPage())
}

// SetContinuous switches between paged and continuous presentation.
func (r *Reader) SetContinuous(continuous bool) {
	if continuous == r.settings.Continuous {
		return
	}
	r.settings.Continuous = continuous
	if r.canvases != nil {
		r.canvases.Invalidate()
	}
	r.applyCacheWindow()
	r.anim = nil
	r.panY = r.restingPan(r.current, DirectionNext)
	r.updateCaches()
}

// ApplySettings replaces the settings, regrouping only when grouping inputs
// changed.
func (r *Reader) ApplySettings(s ReaderSettings) {
	regroup := s.ViewMode != r.settings.ViewMode || s.HasCover != r.settings.HasCover
	continuous := s.Continuous != r.settings.Continuous
	r.settings = s
	r.applyCacheWindow()
	if s.DecodeWorkers > 0 {
		r.cache.SetWorkers(s.DecodeWorkers)
	}
	if r.canvases != nil {
		r.canvases.SetOptions(s.Canvas)
		if continuous {
			r.canvases.Invalidate()
		}
	}
	if regroup && len(r.pages) > 0 {
		r.regroup(r.CurrentPage())
		return
	}
	r.updateCaches()
}

// ToggleBreakpoint flips the explicit breakpoint at page and regroups.
// Wide spreads stay single either way. It reports whether page is now
// displayed as a forced single page.
func (r *Reader) ToggleBreakpoint(page int) bool {
	if page < 0 || page >= len(r.pages) {
		return false
	}
	if isWideSpread(r.pages[page]) {
		return true
	}
	forced := r.breakpoints.Toggle(page)
	r.notifyBreakpoints()
	r.regroup(r.CurrentPage())
	return forced
}

func (r *Reader) notifyBreakpoints() {
	if r.onBreakpointsChange != nil {
		r.onBreakpointsChange(r.breakpoints.Indices())
	}
}

// HandleKey applies a navigation key. Unknown keys are ignored.
func (r *Reader) HandleKey(key string) NavAction {
	action := handleNavigationKey(key, r.NavigationState(), r.settings.PanStep)
	switch action.Kind {
	case NavPan:
		r.PanBy(action.DeltaY, false)
	case NavJumpSpread:
		if action.Direction == DirectionNext {
			r.MoveToSpread(r.current + 1)
		} else {
			r.MoveToSpread(r.current - 1)
		}
	case NavJumpEdge:
		if action.Edge == EdgeFirst {
			r.MoveToSpread(0)
		} else {
			r.MoveToSpread(len(r.spreads) - 1)
		}
	case NavVolume:
		logger.Info().Stringer("direction", action.Direction).Msg("volume boundary reached")
		if r.onVolumeNav != nil {
			r.onVolumeNav(action.Direction)
		}
	}
	return action
}

// PanBy moves the spread by dy pixels. Dragging leaves the offset unclamped
// so the release can snap or carry on to the next spread; other input is
// clamped. Crossing the transition band moves to the neighbouring spread.
func (r *Reader) PanBy(dy float64, dragging bool) {
	if len(r.spreads) == 0 {
		return
	}
	r.anim = nil
	state := r.NavigationState()
	newPan := r.panY + dy

	if t, ok := checkPanTransition(state, newPan-r.centerOffset(r.current)); ok {
		carried := newPan
		if t.Direction == DirectionNext {
			carried += state.SpreadHeight
		} else {
			carried -= r.SpreadLayout(t.NewSpreadIndex).Height
		}
		r.MoveToSpread(t.NewSpreadIndex)
		if r.settings.Continuous && dragging {
			r.panY = carried
		}
		return
	}

	if dragging {
		r.panY = newPan
		return
	}
	r.panY = r.clampPan(newPan)
}

// Release ends a drag with the given velocity in px/ms and starts the
// settle animation or spread transition.
func (r *Reader) Release(velocity float64) SnapResult {
	if len(r.spreads) == 0 {
		return SnapResult{}
	}
	r.velocity = velocity
	// Snap targets are absolute offsets: a spread that fits is settled at
	// its centered position, a taller one at an edge.
	state := r.NavigationState()
	result := calculateSnapTarget(SnapState{NavigationState: state, Velocity: velocity}, r.settings.Snap)

	switch result.Kind {
	case SnapTo:
		r.animateTo(result.TargetY)
	case SnapTransition:
		if result.Direction == DirectionNext {
			r.MoveToSpread(r.current + 1)
		} else {
			r.MoveToSpread(r.current - 1)
		}
	}
	r.velocity = 0
	return result
}

// centerOffset is the resting offset of a spread that fits the viewport.
// Pan transitions are measured relative to it.
func (r *Reader) centerOffset(i int) float64 {
	h := r.SpreadLayout(i).Height
	if h <= r.viewportH {
		return (r.viewportH - h) / 2
	}
	return 0
}

func (r *Reader) animateTo(target float64) {
	if r.settings.SnapDuration <= 0 {
		r.panY = target
		r.anim = nil
		return
	}
	r.anim = &settleAnimation{
		from:     r.panY,
		to:       target,
		start:    r.now(),
		duration: r.settings.SnapDuration,
	}
}

// Tick advances the settle animation and refreshes the canvas cache. It
// reports whether the pan offset changed.
func (r *Reader) Tick() bool {
	if r.settings.Continuous {
		r.updateCanvases()
	}
	if r.anim == nil {
		return false
	}
	progress := float64(r.now().Sub(r.anim.start)) / float64(r.anim.duration)
	r.panY = interpolateWithEasing(r.anim.from, r.anim.to, progress, easeOutCubic)
	if progress >= 1 {
		r.panY = r.anim.to
		r.anim = nil
	}
	return true
}

// JumpToPage shows the spread holding the 1-indexed page.
func (r *Reader) JumpToPage(page int) {
	if idx := findSpreadForPage(r.spreads, page-1); idx >= 0 {
		r.MoveToSpread(idx)
	}
}

// MoveToSpread makes spread n current. The cache windows are recomputed for
// n before any load is issued. Out-of-range requests are ignored.
func (r *Reader) MoveToSpread(n int) {
	if n < 0 || n >= len(r.spreads) {
		return
	}
	from := r.current
	r.anim = nil
	r.current = n
	dir := DirectionNext
	if n < from {
		dir = DirectionPrev
	}
	r.panY = r.restingPan(n, dir)
	r.updateCaches()

	if n != from && r.onPageChange != nil {
		r.onPageChange(getSpreadFirstPage(r.spreads[n]), len(r.pages))
	}
}

// restingPan is where a spread rests when entered: its top when moving
// forward, its bottom when moving back.
func (r *Reader) restingPan(i int, dir Direction) float64 {
	h := r.SpreadLayout(i).Height
	if dir == DirectionPrev {
		return clampPanY(bottomBoundary(h, r.viewportH), h, r.viewportH)
	}
	return clampPanY(0, h, r.viewportH)
}

func (r *Reader) clampPan(panY float64) float64 {
	return clampPanY(panY, r.SpreadLayout(r.current).Height, r.viewportH)
}

// regroup recomputes spreads from scratch and keeps page visible.
func (r *Reader) regroup(page int) {
	explicit := r.breakpoints.Clone()
	if r.settings.HasCover {
		explicit.Add(0)
	}
	r.spreads = groupPagesIntoSpreads(r.pages, r.settings.ViewMode, r.settings.RightToLeft, r.isPortrait(), explicit.Indices())
	r.spreadPages = spreadPageIndices(r.spreads)
	if r.canvases != nil {
		r.canvases.Invalidate()
	}

	target := findSpreadForPage(r.spreads, page)
	if target < 0 {
		target = 0
	}
	if len(r.spreads) == 0 {
		r.current = 0
		r.panY = 0
		return
	}
	r.current = -1
	r.MoveToSpread(target)
}

func (r *Reader) applyCacheWindow() {
	behind, ahead := r.settings.CacheBehind, r.settings.CacheAhead
	if r.settings.Continuous {
		// Canvases are rendered from decoded pages, so decode at least the
		// canvas preload window.
		span := 2 * (r.settings.Canvas.PreloadBuffer + 1)
		behind = max(behind, span)
		ahead = max(ahead, span+1)
	}
	r.cache.SetWindow(behind, ahead)
}

func (r *Reader) updateCaches() {
	if len(r.spreads) == 0 {
		return
	}
	r.cache.UpdateCache(r.files, r.pages, r.CurrentPage())
	if r.settings.Continuous {
		r.updateCanvases()
	}
}

func (r *Reader) updateCanvases() {
	if r.canvases == nil || len(r.spreads) == 0 {
		return
	}
	r.canvases.Update(r.spreadPages, r.current, r.CurrentPage())
}
