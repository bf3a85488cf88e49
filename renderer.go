package main

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
)

// Common colors used in rendering
var (
	colorWhite       = color.RGBA{255, 255, 255, 255}
	colorPlaceholder = color.RGBA{40, 40, 40, 255}

	// Background colors for semi-transparent overlays
	bgColorLight = color.RGBA{0, 0, 0, 128}
	bgColorDark  = color.RGBA{0, 0, 0, 200}
)

// Renderer handles all drawing operations
type Renderer struct {
	renderState RenderState
	errorImages map[string]*ebiten.Image
}

// NewRenderer creates a new Renderer
func NewRenderer(renderState RenderState) *Renderer {
	return &Renderer{
		renderState: renderState,
		errorImages: make(map[string]*ebiten.Image),
	}
}

// Draw renders the current frame
func (r *Renderer) Draw(screen *ebiten.Image) {
	screen.Clear()

	current := r.renderState.GetCurrentSpreadIndex()
	if _, ok := r.renderState.GetSpread(current); !ok {
		return
	}

	if r.renderState.IsContinuous() {
		r.drawContinuous(screen, current)
	} else {
		r.drawSpread(screen, current, r.renderState.GetPanY(), false)
	}

	if r.renderState.IsShowingInfo() {
		r.drawInfoDisplay(screen)
	}

	if r.renderState.GetOverlayMessage() != "" && time.Since(r.renderState.GetOverlayMessageTime()) < overlayMessageDuration {
		r.drawOverlayMessage(screen)
	}
}

// drawContinuous draws the current spread at the pan offset with its
// neighbours stacked above and below until the viewport is covered.
func (r *Renderer) drawContinuous(screen *ebiten.Image, current int) {
	screenH := float64(screen.Bounds().Dy())
	top := r.renderState.GetPanY()

	y := top
	for i := current; y < screenH; i++ {
		if _, ok := r.renderState.GetSpread(i); !ok {
			break
		}
		r.drawSpread(screen, i, y, true)
		y += r.renderState.GetSpreadLayout(i).Height
	}

	y = top
	for i := current - 1; y > 0; i-- {
		if _, ok := r.renderState.GetSpread(i); !ok {
			break
		}
		y -= r.renderState.GetSpreadLayout(i).Height
		r.drawSpread(screen, i, y, true)
	}
}

// drawSpread draws spread i with its top edge at y, centered horizontally.
func (r *Renderer) drawSpread(screen *ebiten.Image, i int, y float64, useCanvas bool) {
	spread, ok := r.renderState.GetSpread(i)
	if !ok {
		return
	}
	layout := r.renderState.GetSpreadLayout(i)
	if layout.Height <= 0 {
		return
	}

	x := (float64(screen.Bounds().Dx()) - layout.Width) / 2
	for _, pageIndex := range spread.VisualOrder(r.renderState.IsRightToLeft()) {
		w := layout.Widths[positionOf(spread.PageIndices, pageIndex)]
		r.drawPage(screen, pageIndex, x, y, w, layout.Height, useCanvas)
		x += w
	}
}

func positionOf(indices []int, pageIndex int) int {
	for i, idx := range indices {
		if idx == pageIndex {
			return i
		}
	}
	return 0
}

// drawPage draws one page into the given box, preferring a pre-rendered
// canvas, then the decoded bitmap, then a placeholder.
func (r *Renderer) drawPage(screen *ebiten.Image, pageIndex int, x, y, w, h float64, useCanvas bool) {
	if useCanvas {
		if canvas, ok := r.renderState.GetPageCanvas(pageIndex); ok {
			if img := imageOf(canvas); img != nil {
				r.drawScaled(screen, img, x, y, w, h)
				return
			}
		}
	}

	if img := imageOf(r.renderState.GetPageBitmap(pageIndex)); img != nil {
		r.drawScaled(screen, img, x, y, w, h)
		return
	}

	if msg := r.renderState.GetPageError(pageIndex); msg != "" {
		r.drawScaled(screen, r.errorImage(pageIndex, int(w), int(h), msg), x, y, w, h)
		return
	}

	DrawFilledRect(screen, x, y, w, h, colorPlaceholder)
}

func (r *Renderer) drawScaled(screen, img *ebiten.Image, x, y, w, h float64) {
	iw, ih := img.Bounds().Dx(), img.Bounds().Dy()
	if iw == 0 || ih == 0 {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(w/float64(iw), h/float64(ih))
	op.GeoM.Translate(x, y)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(img, op)
}

// errorImage returns the placeholder for a failed page, created once per
// page and size.
func (r *Renderer) errorImage(pageIndex, w, h int, msg string) *ebiten.Image {
	key := fmt.Sprintf("%d:%dx%d", pageIndex, w, h)
	if img, ok := r.errorImages[key]; ok {
		return img
	}
	img := CreateErrorImage(w, h, r.renderState.GetPagePath(pageIndex), msg)
	r.errorImages[key] = img
	return img
}

// ResetErrorImages drops the cached placeholders, e.g. after a volume change.
func (r *Renderer) ResetErrorImages() {
	for key, img := range r.errorImages {
		img.Deallocate()
		delete(r.errorImages, key)
	}
}

func (r *Renderer) font() *text.GoTextFace {
	return &text.GoTextFace{
		Source: globalFontSource,
		Size:   r.renderState.GetFontSize(),
	}
}

func (r *Renderer) drawInfoDisplay(screen *ebiten.Image) {
	if globalFontSource == nil {
		return
	}
	infoFont := r.font()
	infoText := strings.Join(r.renderState.GetInfoLines(), "\n")
	lineSpacing := r.renderState.GetFontSize() * 1.3

	textWidth, textHeight := text.Measure(infoText, infoFont, lineSpacing)

	// Bottom right corner
	padding := 10.0
	textX := float64(screen.Bounds().Dx()) - textWidth - padding
	textY := float64(screen.Bounds().Dy()) - textHeight - padding

	bgPadding := 5.0
	DrawFilledRect(screen, textX-bgPadding, textY-bgPadding, textWidth+bgPadding*2, textHeight+bgPadding*2, bgColorLight)

	op := &text.DrawOptions{}
	op.GeoM.Translate(textX, textY)
	op.ColorScale.ScaleWithColor(colorWhite)
	op.LineSpacing = lineSpacing
	text.Draw(screen, infoText, infoFont, op)
}

func (r *Renderer) drawOverlayMessage(screen *ebiten.Image) {
	if globalFontSource == nil {
		return
	}
	messageFont := r.font()
	message := r.renderState.GetOverlayMessage()

	textWidth, textHeight := text.Measure(message, messageFont, 0)

	// Center of screen
	padding := 20.0
	boxWidth := textWidth + padding*2
	boxHeight := textHeight + padding*2
	boxX := (float64(screen.Bounds().Dx()) - boxWidth) / 2
	boxY := (float64(screen.Bounds().Dy()) - boxHeight) / 2

	DrawFilledRect(screen, boxX, boxY, boxWidth, boxHeight, bgColorDark)
	DrawText(screen, message, messageFont, boxX+padding, boxY+padding, colorWhite)
}
