package clip

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidquest/core"
	"vidquest/media"
)

// countingStore counts extractions so coalescing can be asserted.
type countingStore struct {
	duration   float64
	extractErr error
	delay      time.Duration
	extracts   atomic.Int64
}

func (s *countingStore) Duration(ctx context.Context, path string) (float64, error) {
	return s.duration, nil
}

func (s *countingStore) ExtractClip(ctx context.Context, path string, start, end float64, outPath string) error {
	s.extracts.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.extractErr != nil {
		return s.extractErr
	}
	return os.WriteFile(outPath, []byte("clip-bytes"), 0644)
}

func (s *countingStore) ExtractFrame(ctx context.Context, path string, timestamp float64, outPath string) error {
	return os.WriteFile(outPath, []byte("frame-bytes"), 0644)
}

func (s *countingStore) SampleFrames(ctx context.Context, path string, intervalSec float64, outDir string) error {
	return nil
}

func newTestSynthesizer(t *testing.T, store *countingStore) *Synthesizer {
	t.Helper()

	videoDir := t.TempDir()
	videoPath := filepath.Join(videoDir, "v1.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video-bytes"), 0644))

	lib := media.NewLibrary(videoDir, store)
	_, err := lib.Register(context.Background(), "v1", videoPath, 5)
	require.NoError(t, err)

	cache, err := NewCache(t.TempDir(), 0, 0)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	return NewSynthesizer(lib, store, cache, 0.5, 5*time.Second)
}

func TestSnap(t *testing.T) {
	assert.Equal(t, 10.0, Snap(10.2, 0.5))
	assert.Equal(t, 10.5, Snap(10.3, 0.5))
	assert.Equal(t, 15.0, Snap(15.1, 0.5))
	assert.Equal(t, 10.2, Snap(10.2, 0), "zero granularity leaves input alone")
}

func TestNearDuplicateRangesShareFingerprint(t *testing.T) {
	a := Fingerprint("v1", Snap(10, 0.5), Snap(15, 0.5))
	b := Fingerprint("v1", Snap(10.2, 0.5), Snap(15.1, 0.5))
	assert.Equal(t, a, b)

	c := Fingerprint("v1", Snap(10, 0.5), Snap(16, 0.5))
	assert.NotEqual(t, a, c)
	d := Fingerprint("v2", Snap(10, 0.5), Snap(15, 0.5))
	assert.NotEqual(t, a, d)
}

func TestSynthesizeCachesByFingerprint(t *testing.T) {
	store := &countingStore{duration: 100}
	s := newTestSynthesizer(t, store)

	first, err := s.Synthesize(context.Background(), "v1", 10, 15)
	require.NoError(t, err)
	assert.FileExists(t, first.Path)

	// Snaps to the same range: served from cache, no second extraction.
	second, err := s.Synthesize(context.Background(), "v1", 10.2, 15.1)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, int64(1), store.extracts.Load())
}

func TestSynthesizeCountsOneMissPerSynthesis(t *testing.T) {
	store := &countingStore{duration: 100}
	s := newTestSynthesizer(t, store)

	_, err := s.Synthesize(context.Background(), "v1", 10, 15)
	require.NoError(t, err)

	stats := s.cache.Stats()
	assert.Equal(t, int64(1), stats.Misses, "one synthesis is one miss")
	assert.Zero(t, stats.Hits)

	_, err = s.Synthesize(context.Background(), "v1", 10, 15)
	require.NoError(t, err)

	stats = s.cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestSynthesizeCoalescesConcurrentRequests(t *testing.T) {
	store := &countingStore{duration: 100, delay: 50 * time.Millisecond}
	s := newTestSynthesizer(t, store)

	const callers = 8
	var wg sync.WaitGroup
	artifacts := make([]core.ClipArtifact, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			artifacts[i], errs[i] = s.Synthesize(context.Background(), "v1", 10, 15)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, artifacts[0].Fingerprint, artifacts[i].Fingerprint)
	}
	assert.Equal(t, int64(1), store.extracts.Load(), "concurrent callers must share one extraction")
}

func TestSynthesizeClampsToAssetDuration(t *testing.T) {
	store := &countingStore{duration: 30}
	s := newTestSynthesizer(t, store)

	artifact, err := s.Synthesize(context.Background(), "v1", 25, 90)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint("v1", 25, 30), artifact.Fingerprint)
}

func TestSynthesizeRejectsEmptyRange(t *testing.T) {
	store := &countingStore{duration: 30}
	s := newTestSynthesizer(t, store)

	_, err := s.Synthesize(context.Background(), "v1", 50, 60)
	var invalid *core.InvalidQueryError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, store.extracts.Load())
}

func TestSynthesizeUnknownVideo(t *testing.T) {
	store := &countingStore{duration: 30}
	s := newTestSynthesizer(t, store)

	_, err := s.Synthesize(context.Background(), "missing", 0, 10)
	assert.ErrorIs(t, err, core.ErrVideoNotFound)
}

func TestSynthesizeFailureIsNotCached(t *testing.T) {
	store := &countingStore{duration: 100}
	s := newTestSynthesizer(t, store)

	store.extractErr = assert.AnError
	_, err := s.Synthesize(context.Background(), "v1", 10, 15)
	var extractErr *core.MediaExtractionError
	require.ErrorAs(t, err, &extractErr)

	// Recovered source: the next request retries instead of serving the failure.
	store.extractErr = nil
	artifact, err := s.Synthesize(context.Background(), "v1", 10, 15)
	require.NoError(t, err)
	assert.FileExists(t, artifact.Path)
	assert.Equal(t, int64(2), store.extracts.Load())
}

func TestSynthesizeAbandonedCallerDoesNotCancelExtraction(t *testing.T) {
	store := &countingStore{duration: 100, delay: 100 * time.Millisecond}
	s := newTestSynthesizer(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Synthesize(ctx, "v1", 10, 15)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared extraction finished anyway and populated the cache.
	assert.Eventually(t, func() bool {
		fp := Fingerprint("v1", 10, 15)
		_, ok := s.cache.Get(fp)
		return ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), store.extracts.Load())
}
