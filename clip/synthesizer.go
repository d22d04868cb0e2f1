package clip

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"vidquest/core"
	"vidquest/media"
)

// Synthesizer produces cached, content-addressed clips. Concurrent requests
// for the same fingerprint coalesce onto one in-flight extraction; unrelated
// fingerprints proceed in parallel.
type Synthesizer struct {
	lib   *media.Library
	store media.Store
	cache *Cache

	snapSec        float64
	extractTimeout time.Duration

	group singleflight.Group
}

func NewSynthesizer(lib *media.Library, store media.Store, cache *Cache, snapSec float64, extractTimeout time.Duration) *Synthesizer {
	return &Synthesizer{
		lib:            lib,
		store:          store,
		cache:          cache,
		snapSec:        snapSec,
		extractTimeout: extractTimeout,
	}
}

// Synthesize returns the clip artifact for the requested range. The range
// is snapped to the configured granularity first, then clamped to the
// asset's duration; requests past the end clamp rather than fail. On a
// cache miss exactly one extraction runs per fingerprint; every concurrent
// caller receives the same artifact. A caller whose context is cancelled
// stops waiting, but the shared extraction completes and populates the
// cache for the remaining waiters.
func (s *Synthesizer) Synthesize(ctx context.Context, videoID string, start, end float64) (core.ClipArtifact, error) {
	asset, err := s.lib.Get(videoID)
	if err != nil {
		return core.ClipArtifact{}, err
	}

	start = Snap(start, s.snapSec)
	end = Snap(end, s.snapSec)
	if start < 0 {
		start = 0
	}
	if asset.DurationSec > 0 && end > asset.DurationSec {
		end = asset.DurationSec
	}
	if end <= start {
		return core.ClipArtifact{}, &core.InvalidQueryError{
			Reason: fmt.Sprintf("empty clip range [%.1f, %.1f] for %s", start, end, videoID),
		}
	}

	fp := Fingerprint(videoID, start, end)
	if artifact, ok := s.cache.Get(fp); ok {
		return artifact, nil
	}

	ch := s.group.DoChan(fp, func() (interface{}, error) {
		return s.extract(asset, fp, start, end)
	})

	select {
	case <-ctx.Done():
		// Abandon the wait; the extraction keeps running for other
		// waiters and still publishes to the cache.
		return core.ClipArtifact{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.ClipArtifact{}, res.Err
		}
		return res.Val.(core.ClipArtifact), nil
	}
}

// extract runs under singleflight: one invocation per fingerprint at a
// time. It deliberately uses its own deadline rather than any caller's
// context so an abandoning caller cannot cancel work shared with others.
func (s *Synthesizer) extract(asset *core.VideoAsset, fp string, start, end float64) (core.ClipArtifact, error) {
	// A second chance after losing a Get/DoChan race. Unmetered: the
	// caller's lookup already counted this synthesis as a miss.
	if artifact, ok := s.cache.peek(fp); ok {
		return artifact, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.extractTimeout)
	defer cancel()

	outPath := s.cache.PathFor(fp)
	tmpPath := outPath + ".tmp"
	if err := s.store.ExtractClip(ctx, asset.Path, start, end, tmpPath); err != nil {
		os.Remove(tmpPath)
		return core.ClipArtifact{}, &core.MediaExtractionError{VideoID: asset.ID, Err: err}
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return core.ClipArtifact{}, &core.MediaExtractionError{VideoID: asset.ID, Err: err}
	}

	artifact, err := s.cache.Put(fp, outPath)
	if err != nil {
		return core.ClipArtifact{}, &core.MediaExtractionError{VideoID: asset.ID, Err: err}
	}
	return artifact, nil
}
