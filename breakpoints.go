package main

import (
	"math"

	"github.com/RoaringBitmap/roaring"
)

const (
	// Wide spreads in the first pages are dust cover inserts and are not
	// trusted as parity anchors.
	dustCoverZone = 4

	// Pages further than this fraction from the typical width are stray
	// inserts and do not count towards pairing parity.
	typicalWidthTolerance = 0.5

	widthBucket = 10
)

// BreakpointSet holds the page indices forced to display as single pages.
type BreakpointSet struct {
	bm *roaring.Bitmap
}

// NewBreakpointSet creates a set holding the given page indices.
// Negative indices are ignored.
func NewBreakpointSet(indices ...int) *BreakpointSet {
	s := &BreakpointSet{bm: roaring.New()}
	for _, i := range indices {
		s.Add(i)
	}
	return s
}

func (s *BreakpointSet) Add(i int) {
	if i >= 0 {
		s.bm.Add(uint32(i))
	}
}

func (s *BreakpointSet) Remove(i int) {
	if i >= 0 {
		s.bm.Remove(uint32(i))
	}
}

func (s *BreakpointSet) Contains(i int) bool {
	return i >= 0 && s.bm.Contains(uint32(i))
}

// Toggle flips membership of i and reports whether it is now a member.
func (s *BreakpointSet) Toggle(i int) bool {
	if i < 0 {
		return false
	}
	if s.bm.CheckedAdd(uint32(i)) {
		return true
	}
	s.bm.Remove(uint32(i))
	return false
}

func (s *BreakpointSet) Len() int {
	return int(s.bm.GetCardinality())
}

// Indices returns the members in ascending order.
func (s *BreakpointSet) Indices() []int {
	values := s.bm.ToArray()
	indices := make([]int, len(values))
	for i, v := range values {
		indices[i] = int(v)
	}
	return indices
}

// Clone returns an independent copy of the set.
func (s *BreakpointSet) Clone() *BreakpointSet {
	return &BreakpointSet{bm: s.bm.Clone()}
}

// detectSpreadBreakpoints infers which pages must be shown alone so that
// dual-page pairing lines up with the wide spreads of the volume. It is
// run once when a volume is first opened.
func detectSpreadBreakpoints(pages []Page) []int {
	breakpoints := NewBreakpointSet()
	reference := -1
	for i, p := range pages {
		if !isWideSpread(p) {
			continue
		}
		breakpoints.Add(i)
		if reference < 0 && i >= dustCoverZone {
			reference = i
		}
	}
	if breakpoints.Len() == 0 {
		return []int{}
	}

	dustCover := isWideSpread(pages[0])
	if dustCover && len(pages) > 1 {
		breakpoints.Add(1)
	}

	if reference < 0 {
		return breakpoints.Indices()
	}

	contentStart := 0
	for contentStart < len(pages) && isWideSpread(pages[contentStart]) {
		contentStart++
	}
	if dustCover && contentStart < 2 {
		contentStart = 2
	}

	typical := typicalPageWidth(pages)
	pairable := 0
	for i := contentStart; i < reference; i++ {
		if isWideSpread(pages[i]) {
			continue
		}
		if withinTypicalWidth(pages[i], typical) {
			pairable++
		}
	}

	if pairable%2 == 1 && contentStart < reference {
		debugLog("inferred cover at page %d (%d pairable pages before spread %d)",
			contentStart, pairable, reference)
		breakpoints.Add(contentStart)
	}

	return breakpoints.Indices()
}

// typicalPageWidth returns the most common width among non-wide pages,
// bucketed to the nearest 10px. Ties keep the bucket seen first.
func typicalPageWidth(pages []Page) float64 {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, p := range pages {
		if isWideSpread(p) {
			continue
		}
		bucket := int(math.Round(float64(p.Width)/widthBucket)) * widthBucket
		counts[bucket]++
		if counts[bucket] > bestCount {
			best, bestCount = bucket, counts[bucket]
		}
	}
	return float64(best)
}

func withinTypicalWidth(p Page, typical float64) bool {
	if typical == 0 {
		return true
	}
	return math.Abs(float64(p.Width)-typical)/typical <= typicalWidthTolerance
}
