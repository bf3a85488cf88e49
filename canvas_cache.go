package main

import (
	"slices"
	"sort"
)

// CanvasCacheOptions bounds the pre-rendered canvas cache.
type CanvasCacheOptions struct {
	MaxCachedPages int
	PreloadBuffer  int // spreads kept on each side of the current one
}

// CacheUpdate is the work computed by updateCacheStrategy.
type CacheUpdate struct {
	ToEvict []int
	ToLoad  []int
}

func pageDistance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// sortByDistance orders indices by ascending distance from center, keeping
// the relative order of equally distant indices.
func sortByDistance(indices []int, center int) []int {
	sorted := slices.Clone(indices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pageDistance(sorted[i], center) < pageDistance(sorted[j], center)
	})
	return sorted
}

// getPagesToEvict returns the cached pages beyond the maxCachedPages closest
// to centerIndex.
func getPagesToEvict(cachedIndices []int, centerIndex, maxCachedPages int) []int {
	if len(cachedIndices) <= maxCachedPages {
		return []int{}
	}
	sorted := sortByDistance(cachedIndices, centerIndex)
	return sorted[max(0, maxCachedPages):]
}

// getPagesToLoad returns the needed pages that are not cached, closest to
// centerIndex first, limited to the free cache slots.
func getPagesToLoad(neededIndices, cachedIndices []int, centerIndex, maxCachedPages int) []int {
	cached := toSet(cachedIndices)
	var missing []int
	for _, idx := range neededIndices {
		if !cached[idx] {
			missing = append(missing, idx)
		}
	}
	slots := max(0, maxCachedPages-len(cachedIndices))
	sorted := sortByDistance(missing, centerIndex)
	return sorted[:min(slots, len(sorted))]
}

// getPreloadPageIndices returns the page indices of the spreads within
// preloadBuffer of currentSpreadIndex.
func getPreloadPageIndices(spreadPageIndices [][]int, currentSpreadIndex, preloadBuffer int) []int {
	if len(spreadPageIndices) == 0 {
		return []int{}
	}
	lo := max(0, currentSpreadIndex-preloadBuffer)
	hi := min(len(spreadPageIndices)-1, currentSpreadIndex+preloadBuffer)

	indices := []int{}
	for s := lo; s <= hi; s++ {
		indices = append(indices, spreadPageIndices[s]...)
	}
	return indices
}

// updateCacheStrategy decides which canvases to drop and which to render so
// that the spreads around currentSpreadIndex are cached without exceeding
// MaxCachedPages. Needed pages are never evicted while an unneeded one can
// go instead.
func updateCacheStrategy(cached []int, spreadPageIndices [][]int, currentSpreadIndex, centerPage int, opts CanvasCacheOptions) CacheUpdate {
	limit := opts.MaxCachedPages
	needed := getPreloadPageIndices(spreadPageIndices, currentSpreadIndex, opts.PreloadBuffer)
	neededSet := toSet(needed)
	cachedSet := toSet(cached)

	var uncached []int
	for _, idx := range needed {
		if !cachedSet[idx] {
			uncached = append(uncached, idx)
		}
	}
	if len(uncached) == 0 {
		return CacheUpdate{
			ToEvict: getPagesToEvict(cached, centerPage, limit),
			ToLoad:  []int{},
		}
	}
	uncached = sortByDistance(uncached, centerPage)

	needToEvict := max(0, len(cached)+min(len(uncached), limit)-limit)

	var candidates []int
	for _, idx := range cached {
		if !neededSet[idx] {
			candidates = append(candidates, idx)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return pageDistance(candidates[i], centerPage) > pageDistance(candidates[j], centerPage)
	})
	toEvict := slices.Clone(candidates[:min(needToEvict, len(candidates))])

	// A cache that is already over the limit with only needed pages left
	// gives up its furthest needed pages.
	if overflow := len(cached) - len(toEvict) - limit; overflow > 0 {
		var kept []int
		for _, idx := range cached {
			if neededSet[idx] {
				kept = append(kept, idx)
			}
		}
		kept = sortByDistance(kept, centerPage)
		toEvict = append(toEvict, kept[len(kept)-overflow:]...)
	}

	slots := max(0, limit-(len(cached)-len(toEvict)))
	toLoad := uncached[:min(slots, len(uncached))]

	return CacheUpdate{
		ToEvict: toEvict,
		ToLoad:  slices.Clone(toLoad),
	}
}

func toSet(indices []int) map[int]bool {
	set := make(map[int]bool, len(indices))
	for _, idx := range indices {
		set[idx] = true
	}
	return set
}

// CanvasRenderer produces the canvas for one page, reporting false when the
// page's source bitmap is not available yet.
type CanvasRenderer func(pageIndex int) (Bitmap, bool)

// CanvasCache keeps pre-rendered page canvases for the continuous reader,
// applying updateCacheStrategy on every update.
type CanvasCache struct {
	opts     CanvasCacheOptions
	render   CanvasRenderer
	canvases map[int]Bitmap
}

func NewCanvasCache(opts CanvasCacheOptions, render CanvasRenderer) *CanvasCache {
	return &CanvasCache{
		opts:     opts,
		render:   render,
		canvases: make(map[int]Bitmap),
	}
}

// SetOptions changes the cache bounds. Canvases over the new limit are
// evicted on the next update.
func (c *CanvasCache) SetOptions(opts CanvasCacheOptions) {
	c.opts = opts
}

// Update evicts and renders canvases for the given position. Pages whose
// source is not decoded yet are skipped and retried on the next update.
func (c *CanvasCache) Update(spreadPageIndices [][]int, currentSpreadIndex, centerPage int) CacheUpdate {
	plan := updateCacheStrategy(c.Indices(), spreadPageIndices, currentSpreadIndex, centerPage, c.opts)
	for _, idx := range plan.ToEvict {
		c.evict(idx)
	}
	for _, idx := range plan.ToLoad {
		canvas, ok := c.render(idx)
		if !ok {
			continue
		}
		c.canvases[idx] = canvas
	}
	if len(plan.ToEvict) > 0 || len(plan.ToLoad) > 0 {
		debugLog("canvas cache: evict %v load %v (cached %d)", plan.ToEvict, plan.ToLoad, len(c.canvases))
	}
	return plan
}

// Get returns the canvas for pageIndex if it is cached.
func (c *CanvasCache) Get(pageIndex int) (Bitmap, bool) {
	canvas, ok := c.canvases[pageIndex]
	return canvas, ok
}

// Indices returns the cached page indices in ascending order.
func (c *CanvasCache) Indices() []int {
	indices := make([]int, 0, len(c.canvases))
	for idx := range c.canvases {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// Invalidate drops every canvas, e.g. after a resize changes the render
// scale.
func (c *CanvasCache) Invalidate() {
	for idx := range c.canvases {
		c.evict(idx)
	}
}

func (c *CanvasCache) evict(idx int) {
	if canvas, ok := c.canvases[idx]; ok {
		canvas.Release()
		delete(c.canvases, idx)
	}
}
