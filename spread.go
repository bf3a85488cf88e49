package main

import "fmt"

// ViewMode selects how pages are paired into spreads.
type ViewMode string

const (
	ViewModeSingle ViewMode = "single"
	ViewModeDual   ViewMode = "dual"
	ViewModeAuto   ViewMode = "auto" // single in portrait, dual in landscape
)

func parseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewModeSingle, ViewModeDual, ViewModeAuto:
		return ViewMode(s), nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// next cycles single -> dual -> auto.
func (m ViewMode) next() ViewMode {
	switch m {
	case ViewModeSingle:
		return ViewModeDual
	case ViewModeDual:
		return ViewModeAuto
	default:
		return ViewModeSingle
	}
}

type SpreadKind int

const (
	SpreadSingle SpreadKind = iota
	SpreadDual
)

func (k SpreadKind) String() string {
	if k == SpreadDual {
		return "dual"
	}
	return "single"
}

// PageSpread is one or two pages displayed together. PageIndices are always
// ascending; reading direction only affects on-screen placement.
type PageSpread struct {
	Kind        SpreadKind
	Pages       []Page
	PageIndices []int
}

// VisualOrder returns the page indices from left to right on screen.
func (s PageSpread) VisualOrder(rightToLeft bool) []int {
	if !rightToLeft || len(s.PageIndices) < 2 {
		return s.PageIndices
	}
	return []int{s.PageIndices[1], s.PageIndices[0]}
}

// groupPagesIntoSpreads partitions pages into spreads. Wide-spread pages are
// always forced single in addition to the given breakpoints.
func groupPagesIntoSpreads(pages []Page, mode ViewMode, rightToLeft, isPortrait bool, breakpoints []int) []PageSpread {
	spreads := make([]PageSpread, 0, len(pages))

	if mode == ViewModeSingle || (mode == ViewModeAuto && isPortrait) {
		for i, p := range pages {
			spreads = append(spreads, singleSpread(i, p))
		}
		return spreads
	}

	forced := NewBreakpointSet(breakpoints...)
	for i, p := range pages {
		if isWideSpread(p) {
			forced.Add(i)
		}
	}

	for i := 0; i < len(pages); {
		switch {
		case forced.Contains(i), i+1 >= len(pages), forced.Contains(i + 1):
			spreads = append(spreads, singleSpread(i, pages[i]))
			i++
		default:
			spreads = append(spreads, PageSpread{
				Kind:        SpreadDual,
				Pages:       []Page{pages[i], pages[i+1]},
				PageIndices: []int{i, i + 1},
			})
			i += 2
		}
	}
	return spreads
}

func singleSpread(i int, p Page) PageSpread {
	return PageSpread{
		Kind:        SpreadSingle,
		Pages:       []Page{p},
		PageIndices: []int{i},
	}
}

// findSpreadForPage returns the index of the spread holding pageIndex, or -1.
func findSpreadForPage(spreads []PageSpread, pageIndex int) int {
	for i, s := range spreads {
		for _, idx := range s.PageIndices {
			if idx == pageIndex {
				return i
			}
		}
	}
	return -1
}

// getSpreadFirstPage returns the 1-indexed number of the spread's first page.
func getSpreadFirstPage(s PageSpread) int {
	if len(s.PageIndices) == 0 {
		return 0
	}
	return s.PageIndices[0] + 1
}

// getSpreadPageNumbers returns the 1-indexed page numbers of the spread.
func getSpreadPageNumbers(s PageSpread) []int {
	numbers := make([]int, len(s.PageIndices))
	for i, idx := range s.PageIndices {
		numbers[i] = idx + 1
	}
	return numbers
}

// spreadPageIndices flattens spreads into the shape used by the canvas
// cache strategy.
func spreadPageIndices(spreads []PageSpread) [][]int {
	out := make([][]int, len(spreads))
	for i, s := range spreads {
		out[i] = s.PageIndices
	}
	return out
}
