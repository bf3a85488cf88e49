package main

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/sourcegraph/conc"
)

// Bitmap is a decoded page image. Its pixel memory is not reclaimed until
// Release is called.
type Bitmap interface {
	Size() (width, height int)
	Release()
}

// Decoder turns an encoded page file into a bitmap. It runs off the frame
// loop and may be called concurrently for different pages.
type Decoder func(ctx context.Context, f File) (Bitmap, error)

var errEmptyDecode = errors.New("decoder returned no bitmap")

// cachedImage is either decoded (bitmap set) or pending (done still open).
type cachedImage struct {
	bitmap  Bitmap
	pending bool
	done    chan struct{}
	result  Bitmap // what waiters receive once done is closed
}

// ImageCacheStats reports decode activity.
type ImageCacheStats struct {
	Cached    int
	Pending   int
	Decoded   int
	Failed    int
	Discarded int
}

// ImageCache keeps a sliding window of decoded pages around the current
// page. At most one decode runs per page index. A page that leaves the window
// while decoding keeps its decode in flight; it is picked up again if the
// page returns before it finishes and released otherwise.
type ImageCache struct {
	decode Decoder
	behind int
	ahead  int
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	entries  map[int]*cachedImage
	inflight map[int]*cachedImage // evicted while pending
	files    []File
	filesID  uintptr
	pagesID  *Page
	pagesLen int
	failures map[int]error
	stats    ImageCacheStats
}

// NewImageCache creates a cache keeping behind pages before and ahead pages
// after the current one, decoding with at most workers goroutines.
func NewImageCache(decode Decoder, behind, ahead, workers int) *ImageCache {
	if behind < 0 {
		behind = 0
	}
	if ahead < 0 {
		ahead = 0
	}
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ImageCache{
		decode:   decode,
		behind:   behind,
		ahead:    ahead,
		sem:      make(chan struct{}, workers),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[int]*cachedImage),
		inflight: make(map[int]*cachedImage),
		failures: make(map[int]error),
	}
}

// SetWindow changes the preload window. It takes effect on the next
// UpdateCache call.
func (c *ImageCache) SetWindow(behind, ahead int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.behind = max(0, behind)
	c.ahead = max(0, ahead)
}

// SetWorkers changes how many decodes may run at once. Decodes already
// started keep the limit they were started under.
func (c *ImageCache) SetWorkers(workers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	workers = max(1, workers)
	if workers != cap(c.sem) {
		c.sem = make(chan struct{}, workers)
	}
}

// Workers returns the decode concurrency limit.
func (c *ImageCache) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cap(c.sem)
}

// UpdateCache moves the window to currentIndex. A new file map or page list
// flushes the cache and realigns files to pages. Decodes are started in the
// background and UpdateCache never waits for them.
func (c *ImageCache) UpdateCache(files map[string]File, pages []Page, currentIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.volumeChangedLocked(files, pages) {
		c.releaseAllLocked()
		c.files = matchFilesToPages(files, pages)
		c.filesID = reflect.ValueOf(files).Pointer()
		c.pagesLen = len(pages)
		c.pagesID = nil
		if len(pages) > 0 {
			c.pagesID = &pages[0]
		}
	}
	if len(c.files) == 0 {
		return
	}

	lo := max(0, currentIndex-c.behind)
	hi := min(len(c.files)-1, currentIndex+c.ahead)

	for idx, e := range c.entries {
		if idx < lo || idx > hi {
			c.evictLocked(idx, e)
		}
	}
	for idx := lo; idx <= hi; idx++ {
		if _, ok := c.entries[idx]; ok {
			continue
		}
		if c.files[idx] == nil {
			continue
		}
		if c.reattachLocked(idx) != nil {
			continue
		}
		c.startDecodeLocked(idx)
	}
}

func (c *ImageCache) volumeChangedLocked(files map[string]File, pages []Page) bool {
	if reflect.ValueOf(files).Pointer() != c.filesID || len(pages) != c.pagesLen {
		return true
	}
	if len(pages) == 0 {
		return c.pagesID != nil
	}
	return &pages[0] != c.pagesID
}

// GetBitmapSync returns the decoded bitmap for index, or nil if it is not
// decoded yet. It never blocks on a decode.
func (c *ImageCache) GetBitmapSync(index int) Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[index]; ok && !e.pending {
		return e.bitmap
	}
	return nil
}

// GetBitmap waits for the bitmap at index, starting a decode if none is in
// flight. A nil bitmap with a nil error means the page could not be decoded
// or was evicted before its decode finished.
func (c *ImageCache) GetBitmap(ctx context.Context, index int) (Bitmap, error) {
	c.mu.Lock()
	e, ok := c.entries[index]
	if !ok {
		if index < 0 || index >= len(c.files) || c.files[index] == nil {
			c.mu.Unlock()
			return nil, nil
		}
		if e = c.reattachLocked(index); e == nil {
			e = c.startDecodeLocked(index)
		}
	}
	if !e.pending {
		bmp := e.bitmap
		c.mu.Unlock()
		return bmp, nil
	}
	done := e.done
	c.mu.Unlock()

	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return e.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FileAt returns the file aligned to page index, or nil when the page has
// no file.
func (c *ImageCache) FileAt(index int) File {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.files) {
		return nil
	}
	return c.files[index]
}

// Failure returns the error of the last failed decode of index. It is
// cleared when a later decode of the page succeeds.
func (c *ImageCache) Failure(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[index]
}

// Stats returns a snapshot of cache counters.
func (c *ImageCache) Stats() ImageCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	for _, e := range c.entries {
		if e.pending {
			stats.Pending++
		} else {
			stats.Cached++
		}
	}
	return stats
}

// CachedIndices returns the page indices that are decoded or decoding.
func (c *ImageCache) CachedIndices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	indices := make([]int, 0, len(c.entries))
	for idx := range c.entries {
		indices = append(indices, idx)
	}
	return indices
}

// Cleanup releases every decoded bitmap and forgets the volume. Decodes
// still in flight are discarded when they finish.
func (c *ImageCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseAllLocked()
	c.files = nil
	c.filesID = 0
	c.pagesID = nil
	c.pagesLen = 0
}

// Close cleans up, cancels pending decodes and waits for decode goroutines
// to exit.
func (c *ImageCache) Close() {
	c.Cleanup()
	c.cancel()
	c.wg.Wait()
}

func (c *ImageCache) startDecodeLocked(index int) *cachedImage {
	e := &cachedImage{pending: true, done: make(chan struct{})}
	c.entries[index] = e
	f := c.files[index]
	sem := c.sem
	c.wg.Go(func() {
		c.runDecode(index, f, e, sem)
	})
	return e
}

// reattachLocked moves a decode still in flight for index back into the
// window. It returns nil when there is none.
func (c *ImageCache) reattachLocked(index int) *cachedImage {
	e, ok := c.inflight[index]
	if !ok {
		return nil
	}
	delete(c.inflight, index)
	c.entries[index] = e
	debugLog("page %d back in window, reusing its decode", index)
	return e
}

// dropIfStale abandons the decode of e when its page has left the window.
// It reports whether the decode was dropped.
func (c *ImageCache) dropIfStale(index int, e *cachedImage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[index] == e {
		return false
	}
	if c.inflight[index] == e {
		delete(c.inflight, index)
	}
	c.stats.Discarded++
	e.pending = false
	e.result = nil
	debugLog("skipped decode of page %d, no longer in window", index)
	return true
}

func (c *ImageCache) runDecode(index int, f File, e *cachedImage, sem chan struct{}) {
	defer close(e.done)

	if c.dropIfStale(index, e) {
		return
	}

	var bmp Bitmap
	var err error
	select {
	case sem <- struct{}{}:
		if c.dropIfStale(index, e) {
			<-sem
			return
		}
		bmp, err = c.decode(c.ctx, f)
		<-sem
		if err == nil && bmp == nil {
			err = errEmptyDecode
		}
	case <-c.ctx.Done():
		err = c.ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.entries[index] == e
	if !current && c.inflight[index] == e {
		delete(c.inflight, index)
	}
	switch {
	case err != nil:
		c.stats.Failed++
		if current {
			delete(c.entries, index)
		}
		if !errors.Is(err, context.Canceled) {
			if current {
				c.failures[index] = err
			}
			logger.Warn().Err(err).Int("page", index).Str("path", f.Name()).Msg("page decode failed")
		}
	case !current:
		c.stats.Discarded++
		bmp.Release()
		bmp = nil
		debugLog("discarded stale decode of page %d", index)
	default:
		c.stats.Decoded++
		delete(c.failures, index)
		e.bitmap = bmp
		debugLog("decoded page %d (cache: %d entries)", index, len(c.entries))
	}
	e.pending = false
	e.result = bmp
}

func (c *ImageCache) evictLocked(index int, e *cachedImage) {
	delete(c.entries, index)
	if e.pending {
		c.inflight[index] = e
		return
	}
	if e.bitmap != nil {
		e.bitmap.Release()
		e.bitmap = nil
		e.result = nil
	}
}

func (c *ImageCache) releaseAllLocked() {
	for idx, e := range c.entries {
		c.evictLocked(idx, e)
	}
	c.entries = make(map[int]*cachedImage)
	c.inflight = make(map[int]*cachedImage)
	c.failures = make(map[int]error)
}
