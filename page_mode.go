package main

import "sort"

const (
	// Pages wider than this aspect ratio already contain two joined pages.
	wideSpreadAspectRatio = 1.2

	// Allowed deviation from the median width for a page to count as normal.
	normalWidthTolerance = 0.15
)

// isWideSpread reports whether the page image is a two-page scan.
func isWideSpread(p Page) bool {
	if p.Height <= 0 {
		return false
	}
	return float64(p.Width)/float64(p.Height) > wideSpreadAspectRatio
}

// calculateMedianPageWidth returns the median width of portrait pages,
// falling back to all pages when the volume has no portrait page.
func calculateMedianPageWidth(pages []Page) float64 {
	var widths []int
	for _, p := range pages {
		if p.Height > p.Width {
			widths = append(widths, p.Width)
		}
	}
	if len(widths) == 0 {
		for _, p := range pages {
			widths = append(widths, p.Width)
		}
	}
	if len(widths) == 0 {
		return 0
	}

	sort.Ints(widths)
	mid := len(widths) / 2
	if len(widths)%2 == 0 {
		return float64(widths[mid-1]+widths[mid]) / 2
	}
	return float64(widths[mid])
}

// isNormalWidth reports whether the page width is within tolerance of the
// median. A zero median carries no signal and accepts every page.
func isNormalWidth(p Page, median float64) bool {
	if median == 0 {
		return true
	}
	deviation := (float64(p.Width) - median) / median
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation <= normalWidthTolerance
}

// isPortraitOrientation reports whether the viewport is taller than wide.
func isPortraitOrientation(viewportWidth, viewportHeight int) bool {
	return viewportWidth <= viewportHeight
}
