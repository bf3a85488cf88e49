package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNoPages is returned when a volume yields no displayable pages.
var ErrNoPages = errors.New("volume has no pages")

// Block is one OCR text region of a page.
type Block struct {
	Box      [4]float64 `json:"box"` // xmin, ymin, xmax, ymax
	Vertical bool       `json:"vertical"`
	FontSize float64    `json:"font_size"`
	Lines    []string   `json:"lines"`
}

// Page is a single scanned page. Pages are identified by their index within
// the volume; Path is only a hint used to align image files.
type Page struct {
	Version string  `json:"version,omitempty"`
	Width   int     `json:"img_width"`
	Height  int     `json:"img_height"`
	Path    string  `json:"img_path"`
	Blocks  []Block `json:"blocks"`
}

// MokuroVolume is the OCR document produced for one volume.
type MokuroVolume struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Volume  string `json:"volume"`
	Pages   []Page `json:"pages"`
}

func parseMokuro(r io.Reader) (*MokuroVolume, error) {
	var vol MokuroVolume
	if err := json.NewDecoder(r).Decode(&vol); err != nil {
		return nil, fmt.Errorf("decoding mokuro document: %w", err)
	}
	if len(vol.Pages) == 0 {
		return nil, ErrNoPages
	}
	return &vol, nil
}

func loadMokuro(path string) (*MokuroVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vol, err := parseMokuro(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

// pagesFromFiles builds block-less pages from image headers when no OCR
// document is available.
func pagesFromFiles(files map[string]File, strategy SortStrategy) ([]Page, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		if isSupportedExt(name) {
			names = append(names, name)
		}
	}
	names = strategy.Sort(names)

	pages := make([]Page, 0, len(names))
	for _, name := range names {
		w, h, err := readImageSize(files[name])
		if err != nil {
			logger.Warn().Err(err).Str("path", name).Msg("skipping unreadable image")
			continue
		}
		pages = append(pages, Page{Width: w, Height: h, Path: name})
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

func readImageSize(f File) (int, int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, fmt.Errorf("reading header of %s: %w", f.Name(), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Volume is an opened volume: its file source and page list.
type Volume struct {
	Path   string
	Title  string
	Source VolumeSource
	Pages  []Page
}

// Close releases the volume's file source.
func (v *Volume) Close() error {
	return v.Source.Close()
}

// mokuroPathFor returns the OCR document stored next to a volume,
// "<volume>.mokuro", or "" when there is none.
func mokuroPathFor(volumePath string) string {
	clean := strings.TrimSuffix(volumePath, string(filepath.Separator))
	candidates := []string{clean + ".mokuro"}
	if ext := filepath.Ext(clean); ext != "" {
		candidates = append(candidates, strings.TrimSuffix(clean, ext)+".mokuro")
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// openVolume opens the volume at path. Pages come from mokuroPath, or from
// the OCR document next to the volume, or else from the image headers.
func openVolume(path, mokuroPath string, cfg Config) (*Volume, error) {
	source, err := openVolumeSource(path, cfg.FileCacheSize)
	if err != nil {
		return nil, err
	}

	vol := &Volume{
		Path:   path,
		Title:  filepath.Base(path),
		Source: source,
	}

	if mokuroPath == "" {
		mokuroPath = mokuroPathFor(path)
	}
	if mokuroPath != "" {
		doc, err := loadMokuro(mokuroPath)
		if err == nil && len(doc.Pages) > 0 {
			if doc.Title != "" {
				vol.Title = doc.Title
			}
			vol.Pages = doc.Pages
			logger.Info().Str("mokuro", mokuroPath).Int("pages", len(doc.Pages)).Msg("loaded OCR document")
			return vol, nil
		}
		logger.Warn().Err(err).Str("mokuro", mokuroPath).Msg("ignoring OCR document")
	}

	vol.Pages, err = pagesFromFiles(source.Files(), GetSortStrategy(cfg.SortMethod))
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}
