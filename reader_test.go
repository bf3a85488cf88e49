package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReaderSettings() ReaderSettings {
	return ReaderSettings{
		ViewMode:     ViewModeDual,
		RightToLeft:  true,
		PanStep:      100,
		Snap:         defaultSnapConfig(),
		SnapDuration: 200 * time.Millisecond,
		CacheBehind:  2,
		CacheAhead:   3,
		Canvas:       CanvasCacheOptions{MaxCachedPages: 6, PreloadBuffer: 1},
	}
}

// newTestReader returns a reader in a 1600x1000 landscape viewport. Dual
// spreads of portrait pages exactly fill its height.
func newTestReader(t *testing.T, settings ReaderSettings) (*Reader, *fakeDecoder) {
	t.Helper()
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, settings.CacheBehind, settings.CacheAhead, 2)
	t.Cleanup(cache.Close)

	r := NewReader(settings, cache, nil)
	r.SetViewport(1600, 1000)
	return r, dec
}

// openTestVolume opens n portrait pages with wide spreads at wideAt.
func openTestVolume(r *Reader, n int, wideAt ...int) {
	files, pages := testVolume(n)
	for _, i := range wideAt {
		pages[i].Width = 1600
	}
	r.Open(files, pages, nil, 0)
}

func spreadIndices(r *Reader) [][]int {
	return spreadPageIndices(r.Spreads())
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestReaderOpenDetectsBreakpoints(t *testing.T) {
	settings := testReaderSettings()
	settings.AutoDetectBreakpoints = true
	r, _ := newTestReader(t, settings)

	var saved []int
	var page, total int
	r.OnBreakpointsChange(func(b []int) { saved = b })
	r.OnPageChange(func(p, n int) { page, total = p, n })

	openTestVolume(r, 10, 5)

	assert.Equal(t, []int{0, 5}, saved)
	assert.Equal(t, []int{0, 5}, r.Breakpoints())
	assert.Equal(t, [][]int{{0}, {1, 2}, {3, 4}, {5}, {6, 7}, {8, 9}}, spreadIndices(r))
	assert.Equal(t, 0, r.CurrentSpreadIndex())
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, total)
}

func TestReaderOpenKeepsSavedBreakpoints(t *testing.T) {
	settings := testReaderSettings()
	settings.AutoDetectBreakpoints = true
	r, _ := newTestReader(t, settings)

	called := false
	r.OnBreakpointsChange(func([]int) { called = true })

	files, pages := testVolume(6)
	r.Open(files, pages, []int{3}, 4)

	assert.False(t, called)
	assert.Equal(t, []int{3}, r.Breakpoints())
	assert.Equal(t, [][]int{{0, 1}, {2}, {3}, {4, 5}}, spreadIndices(r))
	assert.Equal(t, 3, r.CurrentSpreadIndex(), "start page stays visible")
}

func TestReaderHandleKey(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())

	var pages []int
	var volumes []Direction
	r.OnPageChange(func(p, _ int) { pages = append(pages, p) })
	r.OnVolumeNav(func(d Direction) { volumes = append(volumes, d) })

	openTestVolume(r, 10)
	require.Len(t, r.Spreads(), 5)

	r.HandleKey("PageDown")
	assert.Equal(t, 1, r.CurrentSpreadIndex())
	r.HandleKey("End")
	assert.Equal(t, 4, r.CurrentSpreadIndex())

	action := r.HandleKey("PageDown")
	assert.Equal(t, NavVolume, action.Kind)
	assert.Equal(t, 4, r.CurrentSpreadIndex())

	r.HandleKey("Home")
	action = r.HandleKey("PageUp")
	assert.Equal(t, NavVolume, action.Kind)

	assert.Equal(t, []int{1, 3, 9, 1}, pages)
	assert.Equal(t, []Direction{DirectionNext, DirectionPrev}, volumes)
}

func TestReaderEmptyVolume(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	var volumes []Direction
	r.OnVolumeNav(func(d Direction) { volumes = append(volumes, d) })

	r.Open(map[string]File{}, nil, nil, 0)

	assert.Empty(t, r.Spreads())
	assert.Equal(t, 0, r.CurrentPage())
	r.PanBy(-500, true)
	assert.Equal(t, 0.0, r.PanY())
	assert.Equal(t, SnapResult{}, r.Release(1))

	r.HandleKey("PageDown")
	assert.Equal(t, []Direction{DirectionNext}, volumes)
}

func TestReaderToggleBreakpoint(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	var saved []int
	r.OnBreakpointsChange(func(b []int) { saved = b })
	openTestVolume(r, 10, 8)

	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8}, {9}}, spreadIndices(r))

	assert.True(t, r.ToggleBreakpoint(1))
	assert.Equal(t, []int{1}, saved)
	assert.Equal(t, [][]int{{0}, {1}, {2, 3}, {4, 5}, {6, 7}, {8}, {9}}, spreadIndices(r))

	assert.True(t, r.ToggleBreakpoint(8), "wide spreads stay single")
	assert.Equal(t, []int{1}, r.Breakpoints())

	assert.False(t, r.ToggleBreakpoint(1))
	assert.Empty(t, saved)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8}, {9}}, spreadIndices(r))

	assert.False(t, r.ToggleBreakpoint(-1))
	assert.False(t, r.ToggleBreakpoint(10))
}

func TestReaderToggleBreakpointKeepsPageVisible(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	openTestVolume(r, 10)
	r.JumpToPage(6)
	require.Equal(t, []int{4, 5}, r.Spreads()[r.CurrentSpreadIndex()].PageIndices)

	r.ToggleBreakpoint(3)

	s, ok := r.CurrentSpread()
	require.True(t, ok)
	assert.Contains(t, s.PageIndices, 4)
}

func TestReaderSetHasCover(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	openTestVolume(r, 6)

	r.SetHasCover(true)
	assert.Equal(t, [][]int{{0}, {1, 2}, {3, 4}, {5}}, spreadIndices(r))
	assert.Empty(t, r.Breakpoints(), "the cover is not an explicit breakpoint")

	r.SetHasCover(false)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4, 5}}, spreadIndices(r))
}

func TestReaderViewModes(t *testing.T) {
	settings := testReaderSettings()
	settings.ViewMode = ViewModeAuto
	r, _ := newTestReader(t, settings)
	openTestVolume(r, 10)
	assert.Len(t, r.Spreads(), 5)

	r.JumpToPage(5)
	require.Equal(t, 2, r.CurrentSpreadIndex())

	r.SetViewport(800, 1200)
	assert.Len(t, r.Spreads(), 10)
	assert.Equal(t, 4, r.CurrentSpreadIndex())

	r.SetViewport(1600, 1000)
	assert.Len(t, r.Spreads(), 5)
	assert.Equal(t, 2, r.CurrentSpreadIndex())

	r.SetViewMode(ViewModeSingle)
	assert.Len(t, r.Spreads(), 10)
	r.SetViewMode(ViewModeDual)
	assert.Len(t, r.Spreads(), 5)
}

func TestReaderApplySettings(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	openTestVolume(r, 6)

	s := r.Settings()
	s.PanStep = 50
	r.ApplySettings(s)
	assert.Len(t, r.Spreads(), 3)
	assert.Equal(t, 50.0, r.Settings().PanStep)

	s.HasCover = true
	r.ApplySettings(s)
	assert.Len(t, r.Spreads(), 4)
}

func TestReaderPanBy(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	openTestVolume(r, 10)
	// Each spread is 1000px tall in a 1000px viewport; the transition band
	// is 100px.

	r.PanBy(-50, true)
	assert.Equal(t, -50.0, r.PanY(), "drag overscroll is not clamped")
	assert.Equal(t, 0, r.CurrentSpreadIndex())

	r.PanBy(-60, true)
	assert.Equal(t, 1, r.CurrentSpreadIndex())
	assert.InDelta(t, 0, r.PanY(), 1e-9)

	r.PanBy(-50, false)
	assert.InDelta(t, 0, r.PanY(), 1e-9, "keyboard panning is clamped")

	r.PanBy(110, true)
	assert.Equal(t, 0, r.CurrentSpreadIndex())

	r.PanBy(300, true)
	assert.Equal(t, 0, r.CurrentSpreadIndex(), "nothing before the first spread")
	assert.Equal(t, 300.0, r.PanY())
}

func TestReaderContinuousPanCarriesOffset(t *testing.T) {
	settings := testReaderSettings()
	settings.Continuous = true
	r, _ := newTestReader(t, settings)
	openTestVolume(r, 10)
	// Fit to width: spreads are 1200px tall, bottom boundary -200 and the
	// transition band 120px.
	require.Equal(t, 1200.0, r.SpreadLayout(0).Height)

	r.PanBy(-300, true)
	assert.Equal(t, 0, r.CurrentSpreadIndex())

	r.PanBy(-30, true)
	assert.Equal(t, 1, r.CurrentSpreadIndex())
	assert.Equal(t, 870.0, r.PanY())
}

func TestReaderReleaseAnimatesSnap(t *testing.T) {
	settings := testReaderSettings()
	settings.Continuous = true
	r, _ := newTestReader(t, settings)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r.now = clock.now
	openTestVolume(r, 10)

	r.PanBy(-300, true)
	result := r.Release(0)
	assert.Equal(t, SnapResult{Kind: SnapTo, TargetY: -200}, result)
	assert.True(t, r.Animating())
	assert.Equal(t, -300.0, r.PanY())

	clock.advance(100 * time.Millisecond)
	assert.True(t, r.Tick())
	assert.InDelta(t, -212.5, r.PanY(), 1e-9)

	clock.advance(150 * time.Millisecond)
	assert.True(t, r.Tick())
	assert.Equal(t, -200.0, r.PanY())
	assert.False(t, r.Animating())
	assert.False(t, r.Tick())
}

func TestReaderReleaseTransitions(t *testing.T) {
	settings := testReaderSettings()
	settings.Continuous = true
	r, _ := newTestReader(t, settings)
	openTestVolume(r, 10)

	r.PanBy(-150, true)
	result := r.Release(-0.05)

	assert.Equal(t, SnapResult{Kind: SnapTransition, Direction: DirectionNext}, result)
	assert.Equal(t, 1, r.CurrentSpreadIndex())
	assert.Equal(t, 0.0, r.PanY())
	assert.False(t, r.Animating())
}

func TestReaderReleaseWithoutAnimation(t *testing.T) {
	settings := testReaderSettings()
	settings.SnapDuration = 0
	r, _ := newTestReader(t, settings)
	openTestVolume(r, 10)

	r.PanBy(60, true)
	r.Release(0)

	assert.InDelta(t, 0, r.PanY(), 1e-9)
	assert.False(t, r.Animating())
}

func TestReaderJumpToPage(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	var pages []int
	r.OnPageChange(func(p, _ int) { pages = append(pages, p) })
	openTestVolume(r, 10)

	r.JumpToPage(8)
	assert.Equal(t, 3, r.CurrentSpreadIndex())
	assert.Equal(t, 6, r.CurrentPage())

	r.JumpToPage(99)
	r.JumpToPage(0)
	assert.Equal(t, 3, r.CurrentSpreadIndex())

	r.JumpToPage(7)
	assert.Equal(t, []int{1, 7}, pages, "staying on the same spread is not a page change")
}

func TestReaderKeepsDecodeWindowAroundCurrentPage(t *testing.T) {
	r, _ := newTestReader(t, testReaderSettings())
	openTestVolume(r, 12)
	cache := r.ImageCache()

	waitDecoded(t, cache, 0, 1, 2, 3)
	assert.Equal(t, []int{0, 1, 2, 3}, sortedIndices(cache))

	r.MoveToSpread(3)
	waitDecoded(t, cache, 4, 5, 6, 7, 8, 9)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, sortedIndices(cache))

	r.Close()
	assert.Empty(t, cache.CachedIndices())
	assert.Empty(t, r.Spreads())
}

func TestReaderContinuousWidensDecodeWindow(t *testing.T) {
	settings := testReaderSettings()
	settings.Continuous = true
	r, _ := newTestReader(t, settings)
	openTestVolume(r, 20)

	// The decode window grows to cover the canvas preload window.
	waitDecoded(t, r.ImageCache(), 0, 1, 2, 3, 4, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, sortedIndices(r.ImageCache()))
}

func TestReaderReleaseKeepsShortSpreadCentered(t *testing.T) {
	settings := testReaderSettings()
	settings.SnapDuration = 0
	r, _ := newTestReader(t, settings)
	// Dual spreads are 1200px tall in a 1400px viewport and rest 100px down.
	r.SetViewport(1600, 1400)
	openTestVolume(r, 10)
	require.InDelta(t, 1200, r.SpreadLayout(0).Height, 1e-9)
	require.InDelta(t, 100, r.PanY(), 1e-9)

	assert.Equal(t, SnapResult{}, r.Release(0), "an idle release leaves a centered spread alone")
	assert.InDelta(t, 100, r.PanY(), 1e-9)

	r.PanBy(20, true)
	assert.InDelta(t, 120, r.PanY(), 1e-9)
	r.Release(0)
	assert.InDelta(t, 100, r.PanY(), 1e-9)

	r.PanBy(-60, true)
	r.Release(-0.5)
	assert.Equal(t, 0, r.CurrentSpreadIndex(), "short spreads settle instead of transitioning")
	assert.InDelta(t, 100, r.PanY(), 1e-9)

	r.MoveToSpread(1)
	r.Release(0)
	assert.InDelta(t, 100, r.PanY(), 1e-9)
}

func TestReaderReopenKeepsClearedBreakpoints(t *testing.T) {
	settings := testReaderSettings()
	settings.AutoDetectBreakpoints = true
	r, _ := newTestReader(t, settings)

	var saved []int
	r.OnBreakpointsChange(func(b []int) { saved = b })
	files, pages := testVolume(10)
	pages[5].Width = 1600

	r.Open(files, pages, nil, 0)
	require.Equal(t, []int{0, 5}, saved)

	r.ToggleBreakpoint(0)
	require.NotNil(t, saved)
	require.Empty(t, saved)

	r.Open(files, pages, saved, 0)
	assert.Empty(t, r.Breakpoints(), "a cleared volume is not detected again")
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4}, {5}, {6, 7}, {8, 9}}, spreadIndices(r))
}

func TestReaderApplySettingsReloadsCacheOptions(t *testing.T) {
	settings := testReaderSettings()
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, settings.CacheBehind, settings.CacheAhead, 2)
	t.Cleanup(cache.Close)
	renderer := &fakeCanvasRenderer{ready: map[int]bool{}, canvases: map[int]*fakeBitmap{}}
	canvases := NewCanvasCache(settings.Canvas, renderer.render)
	r := NewReader(settings, cache, canvases)

	next := settings
	next.DecodeWorkers = 4
	next.Canvas = CanvasCacheOptions{MaxCachedPages: 10, PreloadBuffer: 3}
	r.ApplySettings(next)

	assert.Equal(t, next.Canvas, r.CanvasCache().opts)
	assert.Equal(t, 4, r.ImageCache().Workers())

	// Zero leaves the worker count alone.
	next.DecodeWorkers = 0
	r.ApplySettings(next)
	assert.Equal(t, 4, r.ImageCache().Workers())
}
