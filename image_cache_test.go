package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	name string
	data []byte
}

func (f *memFile) Name() string { return f.name }

func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeBitmap struct {
	name     string
	released atomic.Bool
}

func (b *fakeBitmap) Size() (int, int) { return 800, 1200 }
func (b *fakeBitmap) Release()         { b.released.Store(true) }

// fakeDecoder records decode calls. Decodes of gated names block until the
// gate is opened.
type fakeDecoder struct {
	mu      sync.Mutex
	calls   map[string]int
	gates   map[string]chan struct{}
	fail    map[string]bool
	bitmaps map[string][]*fakeBitmap
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		calls:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
		fail:    make(map[string]bool),
		bitmaps: make(map[string][]*fakeBitmap),
	}
}

func (d *fakeDecoder) gate(name string) func() {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gates[name] = ch
	d.mu.Unlock()
	return func() { close(ch) }
}

func (d *fakeDecoder) decode(ctx context.Context, f File) (Bitmap, error) {
	d.mu.Lock()
	d.calls[f.Name()]++
	gate := d.gates[f.Name()]
	fail := d.fail[f.Name()]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("corrupt image")
	}

	b := &fakeBitmap{name: f.Name()}
	d.mu.Lock()
	d.bitmaps[f.Name()] = append(d.bitmaps[f.Name()], b)
	d.mu.Unlock()
	return b, nil
}

func (d *fakeDecoder) callCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

func (d *fakeDecoder) made(name string) []*fakeBitmap {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeBitmap{}, d.bitmaps[name]...)
}

// testVolume returns n pages named p0.png..p{n-1}.png and their files.
func testVolume(n int) (map[string]File, []Page) {
	files := make(map[string]File, n)
	pages := make([]Page, n)
	for i := range pages {
		name := fmt.Sprintf("p%d.png", i)
		files[name] = &memFile{name: name}
		pages[i] = Page{Width: 800, Height: 1200, Path: name}
	}
	return files, pages
}

func sortedIndices(c *ImageCache) []int {
	indices := c.CachedIndices()
	sort.Ints(indices)
	return indices
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func waitDecoded(t *testing.T, c *ImageCache, indices ...int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, i := range indices {
			if c.GetBitmapSync(i) == nil {
				return false
			}
		}
		return true
	}, waitFor, tick)
}

func TestImageCacheWindow(t *testing.T) {
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, 1, 2, 4)
	defer cache.Close()
	files, pages := testVolume(10)

	cache.UpdateCache(files, pages, 5)
	assert.Equal(t, []int{4, 5, 6, 7}, sortedIndices(cache))
	waitDecoded(t, cache, 4, 5, 6, 7)

	cache.UpdateCache(files, pages, 0)
	assert.Equal(t, []int{0, 1, 2}, sortedIndices(cache))
	for _, name := range []string{"p4.png", "p5.png", "p6.png", "p7.png"} {
		require.Len(t, dec.made(name), 1)
		assert.True(t, dec.made(name)[0].released.Load(), "%s must be released on eviction", name)
	}

	cache.UpdateCache(files, pages, 9)
	assert.Equal(t, []int{8, 9}, sortedIndices(cache), "window is clamped to the volume")
}

func TestImageCacheRepeatedUpdateIsIdempotent(t *testing.T) {
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, 1, 1, 2)
	defer cache.Close()
	files, pages := testVolume(5)

	for range 5 {
		cache.UpdateCache(files, pages, 2)
	}
	waitDecoded(t, cache, 1, 2, 3)
	cache.UpdateCache(files, pages, 2)

	for _, name := range []string{"p1.png", "p2.png", "p3.png"} {
		assert.Equal(t, 1, dec.callCount(name))
	}
}

func TestImageCacheCoalescesDecodes(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p0.png")
	cache := NewImageCache(dec.decode, 0, 0, 2)
	defer cache.Close()
	files, pages := testVolume(3)

	cache.UpdateCache(files, pages, 0)
	cache.UpdateCache(files, pages, 0)

	results := make(chan Bitmap, 3)
	for range 3 {
		go func() {
			b, err := cache.GetBitmap(context.Background(), 0)
			assert.NoError(t, err)
			results <- b
		}()
	}
	assert.Nil(t, cache.GetBitmapSync(0), "pending decode is not ready")

	open()
	var first Bitmap
	for range 3 {
		b := <-results
		require.NotNil(t, b)
		if first == nil {
			first = b
		}
		assert.Same(t, first, b)
	}
	assert.Equal(t, 1, dec.callCount("p0.png"))
}

func TestImageCacheDiscardsStaleDecode(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p5.png")
	cache := NewImageCache(dec.decode, 0, 0, 2)
	defer cache.Close()
	files, pages := testVolume(10)

	cache.UpdateCache(files, pages, 5)
	require.Eventually(t, func() bool { return dec.callCount("p5.png") == 1 }, waitFor, tick)
	cache.UpdateCache(files, pages, 0)
	open()

	require.Eventually(t, func() bool { return cache.Stats().Discarded == 1 }, waitFor, tick)
	assert.Nil(t, cache.GetBitmapSync(5))
	require.Len(t, dec.made("p5.png"), 1)
	assert.True(t, dec.made("p5.png")[0].released.Load())
	assert.Equal(t, []int{0}, sortedIndices(cache))
}

func TestImageCacheReusesDecodeWhenPageReturns(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p5.png")
	cache := NewImageCache(dec.decode, 0, 0, 2)
	defer cache.Close()
	files, pages := testVolume(10)

	cache.UpdateCache(files, pages, 5)
	require.Eventually(t, func() bool { return dec.callCount("p5.png") == 1 }, waitFor, tick)
	cache.UpdateCache(files, pages, 0)
	cache.UpdateCache(files, pages, 5)
	assert.Equal(t, []int{5}, sortedIndices(cache))
	open()

	waitDecoded(t, cache, 5)
	assert.Equal(t, 1, dec.callCount("p5.png"))
	require.Len(t, dec.made("p5.png"), 1)
	assert.False(t, dec.made("p5.png")[0].released.Load())
	assert.Same(t, dec.made("p5.png")[0], cache.GetBitmapSync(5))
	assert.Zero(t, cache.Stats().Discarded)
}

func TestImageCacheGetBitmapJoinsEvictedDecode(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p5.png")
	cache := NewImageCache(dec.decode, 0, 0, 2)
	defer cache.Close()
	files, pages := testVolume(10)

	cache.UpdateCache(files, pages, 5)
	require.Eventually(t, func() bool { return dec.callCount("p5.png") == 1 }, waitFor, tick)
	cache.UpdateCache(files, pages, 0)

	result := make(chan Bitmap, 1)
	go func() {
		b, err := cache.GetBitmap(context.Background(), 5)
		assert.NoError(t, err)
		result <- b
	}()
	require.Eventually(t, func() bool { return slices.Contains(cache.CachedIndices(), 5) }, waitFor, tick)
	open()

	b := <-result
	require.NotNil(t, b)
	assert.Equal(t, 1, dec.callCount("p5.png"))
}

func TestImageCacheSkipsQueuedDecodesThatLeftWindow(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p0.png")
	cache := NewImageCache(dec.decode, 0, 0, 1)
	defer cache.Close()
	files, pages := testVolume(5)

	// p0 holds the only worker while p1 queues behind it and leaves the
	// window before a worker frees up.
	cache.UpdateCache(files, pages, 0)
	require.Eventually(t, func() bool { return dec.callCount("p0.png") == 1 }, waitFor, tick)
	cache.UpdateCache(files, pages, 1)
	cache.UpdateCache(files, pages, 2)
	open()

	waitDecoded(t, cache, 2)
	require.Eventually(t, func() bool { return cache.Stats().Discarded == 2 }, waitFor, tick)
	assert.Zero(t, dec.callCount("p1.png"))
	assert.Equal(t, []int{2}, sortedIndices(cache))
}

func TestImageCacheSetWorkersAppliesToNewDecodes(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p0.png")
	defer open()
	cache := NewImageCache(dec.decode, 0, 0, 1)
	defer cache.Close()
	files, pages := testVolume(3)

	cache.UpdateCache(files, pages, 0)
	require.Eventually(t, func() bool { return dec.callCount("p0.png") == 1 }, waitFor, tick)

	cache.SetWorkers(2)
	assert.Equal(t, 2, cache.Workers())

	// p0 still holds the old single slot.
	b, err := cache.GetBitmap(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, b)

	cache.SetWorkers(0)
	assert.Equal(t, 1, cache.Workers())
}

func TestImageCacheFailureIsRetriedOnNextUpdate(t *testing.T) {
	dec := newFakeDecoder()
	dec.fail["p1.png"] = true
	cache := NewImageCache(dec.decode, 1, 1, 2)
	defer cache.Close()
	files, pages := testVolume(3)

	cache.UpdateCache(files, pages, 1)
	require.Eventually(t, func() bool { return cache.Stats().Failed == 1 }, waitFor, tick)
	waitDecoded(t, cache, 0, 2)
	assert.NotContains(t, cache.CachedIndices(), 1)
	assert.Error(t, cache.Failure(1))
	assert.NoError(t, cache.Failure(0))

	dec.mu.Lock()
	dec.fail["p1.png"] = false
	dec.mu.Unlock()

	cache.UpdateCache(files, pages, 1)
	waitDecoded(t, cache, 1)
	assert.Equal(t, 2, dec.callCount("p1.png"))
	assert.NoError(t, cache.Failure(1))
}

func TestImageCacheGetBitmap(t *testing.T) {
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, 0, 0, 2)
	defer cache.Close()
	files, pages := testVolume(5)

	b, err := cache.GetBitmap(context.Background(), 0)
	assert.NoError(t, err)
	assert.Nil(t, b, "no volume yet")

	cache.UpdateCache(files, pages, 0)
	b, err = cache.GetBitmap(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "p3.png", b.(*fakeBitmap).name)
	assert.Same(t, b, cache.GetBitmapSync(3))

	b, err = cache.GetBitmap(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestImageCacheGetBitmapHonorsContext(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p0.png")
	defer open()
	cache := NewImageCache(dec.decode, 0, 0, 1)
	defer cache.Close()
	files, pages := testVolume(1)
	cache.UpdateCache(files, pages, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	b, err := cache.GetBitmap(ctx, 0)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestImageCacheLimitsConcurrentDecodes(t *testing.T) {
	dec := newFakeDecoder()
	open := dec.gate("p0.png")
	cache := NewImageCache(dec.decode, 0, 1, 1)
	defer cache.Close()
	files, pages := testVolume(2)

	cache.UpdateCache(files, pages, 0)
	require.Eventually(t, func() bool { return dec.callCount("p0.png") == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return dec.callCount("p1.png") > 0 }, 50*time.Millisecond, tick)

	open()
	waitDecoded(t, cache, 0, 1)
}

func TestImageCacheVolumeSwitchFlushes(t *testing.T) {
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, 0, 1, 2)
	defer cache.Close()
	files, pages := testVolume(3)

	cache.UpdateCache(files, pages, 0)
	waitDecoded(t, cache, 0, 1)
	old := dec.made("p0.png")[0]

	files2, pages2 := testVolume(3)
	cache.UpdateCache(files2, pages2, 0)
	assert.True(t, old.released.Load())
	waitDecoded(t, cache, 0, 1)
	assert.Equal(t, 2, dec.callCount("p0.png"))
}

func TestImageCacheCleanup(t *testing.T) {
	dec := newFakeDecoder()
	cache := NewImageCache(dec.decode, 1, 1, 2)
	defer cache.Close()
	files, pages := testVolume(3)

	cache.UpdateCache(files, pages, 1)
	waitDecoded(t, cache, 0, 1, 2)
	assert.NotNil(t, cache.FileAt(1))

	cache.Cleanup()
	assert.Empty(t, cache.CachedIndices())
	assert.Nil(t, cache.FileAt(1))
	for _, name := range []string{"p0.png", "p1.png", "p2.png"} {
		assert.True(t, dec.made(name)[0].released.Load())
	}
	assert.Equal(t, 3, cache.Stats().Decoded)
}

func TestImageCacheCloseCancelsPendingDecodes(t *testing.T) {
	dec := newFakeDecoder()
	dec.gate("p0.png")
	cache := NewImageCache(dec.decode, 0, 0, 1)
	files, pages := testVolume(1)
	cache.UpdateCache(files, pages, 0)
	require.Eventually(t, func() bool { return dec.callCount("p0.png") == 1 }, waitFor, tick)

	done := make(chan struct{})
	go func() {
		cache.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not wait for the cancelled decode")
	}
}
