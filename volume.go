package main

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/sevenzip"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nwaples/rardecode"
)

var (
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrEntryNotFound      = errors.New("entry not found")
)

// File is an opaque handle to one encoded page image.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// VolumeSource supplies the image files of one volume keyed by path.
type VolumeSource interface {
	Files() map[string]File
	Close() error
}

func isArchiveExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".cbz", ".rar", ".cbr", ".7z", ".cb7":
		return true
	default:
		return false
	}
}

func isSupportedExt(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif":
		return true
	default:
		return false
	}
}

// openVolumeSource opens a directory or archive. Archive entries are read
// through a bounded cache of raw bytes so that repeated decodes of the same
// page do not rescan the archive.
func openVolumeSource(p string, cacheSize int) (VolumeSource, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return openDirSource(p)
	}

	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".cbz":
		return openZipSource(p)
	case ".rar", ".cbr":
		return openArchiveSource(p, cacheSize, listRarEntries, readRarEntry, nil)
	case ".7z", ".cb7":
		r, err := sevenzip.OpenReader(p)
		if err != nil {
			return nil, err
		}
		return openArchiveSource(p, cacheSize,
			func(string) ([]string, error) { return list7zEntries(r), nil },
			func(_ string, entry string) ([]byte, error) { return read7zEntry(r, entry) },
			r)
	default:
		return nil, fmt.Errorf("%s: %w", p, ErrUnsupportedArchive)
	}
}

// Directory

type dirFile struct {
	root string
	name string
}

func (f dirFile) Name() string { return f.name }

func (f dirFile) Open() (io.ReadCloser, error) {
	return os.Open(filepath.Join(f.root, filepath.FromSlash(f.name)))
}

type dirSource struct {
	files map[string]File
}

func openDirSource(root string) (*dirSource, error) {
	files := make(map[string]File)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSupportedExt(p) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		files[name] = dirFile{root: root, name: name}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return &dirSource{files: files}, nil
}

func (s *dirSource) Files() map[string]File { return s.files }
func (s *dirSource) Close() error           { return nil }

// Zip entries support concurrent reads, so they are opened directly.

type zipFile struct {
	f *zip.File
}

func (z zipFile) Name() string                 { return z.f.Name }
func (z zipFile) Open() (io.ReadCloser, error) { return z.f.Open() }

type zipSource struct {
	r     *zip.ReadCloser
	files map[string]File
}

func openZipSource(archivePath string) (*zipSource, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	files := make(map[string]File)
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && isSupportedExt(f.Name) {
			files[f.Name] = zipFile{f: f}
		}
	}
	return &zipSource{r: r, files: files}, nil
}

func (s *zipSource) Files() map[string]File { return s.files }
func (s *zipSource) Close() error           { return s.r.Close() }

// Rar and 7z readers are sequential, so entry reads are serialized and
// their bytes kept in an LRU.

type archiveSource struct {
	path   string
	read   func(archivePath, entry string) ([]byte, error)
	closer io.Closer
	cache  *lru.Cache[string, []byte]
	mu     sync.Mutex
	files  map[string]File
}

type archiveEntry struct {
	src  *archiveSource
	name string
}

func (e archiveEntry) Name() string { return e.name }

func (e archiveEntry) Open() (io.ReadCloser, error) {
	data, err := e.src.readEntry(e.name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func openArchiveSource(
	archivePath string,
	cacheSize int,
	list func(archivePath string) ([]string, error),
	read func(archivePath, entry string) ([]byte, error),
	closer io.Closer,
) (*archiveSource, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	names, err := list(archivePath)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	s := &archiveSource{
		path:   archivePath,
		read:   read,
		closer: closer,
		cache:  cache,
		files:  make(map[string]File, len(names)),
	}
	for _, name := range names {
		s.files[name] = archiveEntry{src: s, name: name}
	}
	return s, nil
}

func (s *archiveSource) readEntry(name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		return data, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.cache.Get(name); ok {
		return data, nil
	}
	data, err := s.read(s.path, name)
	if err != nil {
		return nil, err
	}
	s.cache.Add(name, data)
	debugLog("archive read %s (cache: %d entries)", name, s.cache.Len())
	return data, nil
}

func (s *archiveSource) Files() map[string]File { return s.files }

func (s *archiveSource) Close() error {
	s.cache.Purge()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func listRarEntries(archivePath string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := rardecode.NewReader(f, "")
	if err != nil {
		return nil, err
	}

	var names []string
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !header.IsDir && isSupportedExt(header.Name) {
			names = append(names, header.Name)
		}
	}
	return names, nil
}

func readRarEntry(archivePath, entryPath string) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := rardecode.NewReader(f, "")
	if err != nil {
		return nil, err
	}

	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Name == entryPath {
			return io.ReadAll(r)
		}
	}
	return nil, fmt.Errorf("%s in %s: %w", entryPath, archivePath, ErrEntryNotFound)
}

func list7zEntries(r *sevenzip.ReadCloser) []string {
	var names []string
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && isSupportedExt(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names
}

func read7zEntry(r *sevenzip.ReadCloser, entryPath string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != entryPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s: %w", entryPath, ErrEntryNotFound)
}
