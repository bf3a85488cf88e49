package main

import (
	"path"
	"strings"
)

// matchStrategy derives a lookup key from a path. A strategy either aligns
// every page or is rejected as a whole.
type matchStrategy struct {
	name string
	key  func(p string) string
}

var matchStrategies = []matchStrategy{
	{"exact path", normalizePath},
	{"basename", func(p string) string { return path.Base(normalizePath(p)) }},
	{"path without extension", func(p string) string { return trimExt(normalizePath(p)) }},
	{"basename without extension", func(p string) string { return trimExt(path.Base(normalizePath(p))) }},
}

func normalizePath(p string) string {
	return strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./")
}

func trimExt(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}

// matchFilesToPages aligns files to page order. The first strategy that
// matches every page wins; natural file order is the last resort and may
// leave trailing pages without a file.
func matchFilesToPages(files map[string]File, pages []Page) []File {
	aligned, strategy := alignFiles(files, pages)
	if len(pages) > 0 {
		logger.Info().
			Str("strategy", strategy).
			Int("pages", len(pages)).
			Int("files", len(files)).
			Msg("aligned page files")
	}
	return aligned
}

func alignFiles(files map[string]File, pages []Page) ([]File, string) {
	for _, s := range matchStrategies {
		if aligned, ok := alignByKey(files, pages, s.key); ok {
			return aligned, s.name
		}
	}
	return alignByOrder(files, pages), "natural order"
}

func alignByKey(files map[string]File, pages []Page, key func(string) string) ([]File, bool) {
	index := make(map[string]File, len(files))
	for name, f := range files {
		k := key(name)
		if _, dup := index[k]; dup {
			return nil, false
		}
		index[k] = f
	}

	aligned := make([]File, len(pages))
	for i, p := range pages {
		f, ok := index[key(p.Path)]
		if !ok {
			return nil, false
		}
		aligned[i] = f
	}
	return aligned, true
}

func alignByOrder(files map[string]File, pages []Page) []File {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	names = (&NaturalSortStrategy{}).Sort(names)

	aligned := make([]File, len(pages))
	for i := range pages {
		if i < len(names) {
			aligned[i] = files[names[i]]
		}
	}
	return aligned
}
