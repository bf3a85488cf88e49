package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"
)

// Global font source for overlays and error images
var globalFontSource *text.GoTextFaceSource

// InitGraphics initializes the global font source for text rendering
func InitGraphics() error {
	s, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		return err
	}
	globalFontSource = s
	return nil
}

// ebitenBitmap is a decoded page or canvas held on the GPU.
type ebitenBitmap struct {
	img *ebiten.Image
}

func (b *ebitenBitmap) Size() (int, int) {
	return b.img.Bounds().Dx(), b.img.Bounds().Dy()
}

// Release frees the GPU memory immediately instead of waiting for GC.
func (b *ebitenBitmap) Release() {
	b.img.Deallocate()
}

// imageOf returns the ebiten image behind a bitmap, or nil.
func imageOf(b Bitmap) *ebiten.Image {
	if eb, ok := b.(*ebitenBitmap); ok {
		return eb.img
	}
	return nil
}

// decodeEbitenBitmap is the Decoder used by the ImageCache.
func decodeEbitenBitmap(ctx context.Context, f File) (Bitmap, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ebitenBitmap{img: ebiten.NewImageFromImage(img)}, nil
}

// renderCanvas draws src scaled to width into a new image.
func renderCanvas(src *ebiten.Image, width float64) *ebiten.Image {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	if sw == 0 || width <= 0 {
		return nil
	}
	scale := width / float64(sw)
	canvas := ebiten.NewImage(max(1, int(width+0.5)), max(1, int(float64(sh)*scale+0.5)))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.Filter = ebiten.FilterLinear
	canvas.DrawImage(src, op)
	return canvas
}

// DrawText draws text with specified position and color
func DrawText(screen *ebiten.Image, textString string, font *text.GoTextFace, x, y float64, textColor color.RGBA) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(textColor)
	text.Draw(screen, textString, font, op)
}

// DrawFilledRect draws filled rectangles with float64 coordinates
func DrawFilledRect(screen *ebiten.Image, x, y, w, h float64, bgColor color.RGBA) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), bgColor, false)
}

func drawBorder(img *ebiten.Image, width, height int, c color.RGBA) {
	w, h := float64(width), float64(height)
	DrawFilledRect(img, 0, 0, w, 3, c)
	DrawFilledRect(img, 0, h-3, w, 3, c)
	DrawFilledRect(img, 0, 0, 3, h, c)
	DrawFilledRect(img, w-3, 0, 3, h, c)
}

// CreateErrorImage creates a placeholder for a page that could not be shown
func CreateErrorImage(width, height int, filename, errorMsg string) *ebiten.Image {
	if width <= 0 || height <= 0 {
		width, height = 400, 300
	}

	white := color.RGBA{255, 255, 255, 255}
	errorImg := ebiten.NewImage(width, height)
	errorImg.Fill(color.RGBA{120, 30, 30, 255})
	drawBorder(errorImg, width, height, white)

	if globalFontSource == nil {
		return errorImg
	}

	errorFont := &text.GoTextFace{
		Source: globalFontSource,
		Size:   20.0,
	}

	fileText := "File: " + filepath.Base(filename)
	reasonText := "Reason: " + errorMsg

	// Rough estimate: 10px per character
	maxChars := (width - 20) / 10
	fileText = truncateText(fileText, maxChars)
	reasonText = truncateText(reasonText, maxChars)

	DrawText(errorImg, "ERROR", errorFont, 10, 30, white)
	DrawText(errorImg, fileText, errorFont, 10, 60, white)
	DrawText(errorImg, reasonText, errorFont, 10, 90, white)

	return errorImg
}

// truncateText shortens s to at most maxChars characters.
func truncateText(s string, maxChars int) string {
	runes := []rune(s)
	if maxChars < 4 || len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars-3]) + "..."
}

// renderPageCanvas pre-renders a page at the width it is drawn with in the
// current layout. It reports false while the page is still decoding.
func renderPageCanvas(r *Reader, pageIndex int) (Bitmap, bool) {
	src := imageOf(r.ImageCache().GetBitmapSync(pageIndex))
	if src == nil {
		return nil, false
	}
	spreadIndex := findSpreadForPage(r.Spreads(), pageIndex)
	spread, ok := r.spreadAt(spreadIndex)
	if !ok {
		return nil, false
	}
	layout := r.SpreadLayout(spreadIndex)
	canvas := renderCanvas(src, layout.Widths[positionOf(spread.PageIndices, pageIndex)])
	if canvas == nil {
		return nil, false
	}
	return &ebitenBitmap{img: canvas}, true
}
