package main

// spreadLayout is the on-screen size of a spread. Pages of a dual spread are
// scaled to a common height and placed side by side.
type spreadLayout struct {
	Scale  float64   // applied to the common page height
	Width  float64   // total displayed width
	Height float64   // displayed height
	Widths []float64 // displayed width of each page, in PageIndices order
}

// layoutSpread fits a spread into the viewport. With fitWidth the spread
// fills the viewport width and may be taller than the viewport.
func layoutSpread(s PageSpread, viewportWidth, viewportHeight float64, fitWidth bool) spreadLayout {
	common := 0.0
	for _, p := range s.Pages {
		common = max(common, float64(p.Height))
	}
	if common == 0 || viewportWidth <= 0 || viewportHeight <= 0 {
		return spreadLayout{Widths: make([]float64, len(s.Pages))}
	}

	natural := make([]float64, len(s.Pages))
	combined := 0.0
	for i, p := range s.Pages {
		if p.Height > 0 {
			natural[i] = float64(p.Width) * common / float64(p.Height)
		}
		combined += natural[i]
	}
	if combined == 0 {
		return spreadLayout{Widths: natural}
	}

	scale := viewportWidth / combined
	if !fitWidth {
		scale = min(scale, viewportHeight/common)
	}

	widths := make([]float64, len(natural))
	for i, w := range natural {
		widths[i] = w * scale
	}
	return spreadLayout{
		Scale:  scale,
		Width:  combined * scale,
		Height: common * scale,
		Widths: widths,
	}
}
