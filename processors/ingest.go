package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"vidquest/core"
	"vidquest/media"
	"vidquest/storage"
)

// IngestConfig carries the ingest-side tunables.
type IngestConfig struct {
	FrameIntervalSec float64
	MaxChunkSec      float64
	SilenceGapSec    float64
	FrameDir         string
	ExtractTimeout   time.Duration
}

// IngestStep records the outcome of one pipeline stage.
type IngestStep struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "ok", "failed", "skipped"
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// IngestResult is the full report for one video.
type IngestResult struct {
	VideoID    string                 `json:"video_id"`
	Steps      []IngestStep           `json:"steps"`
	CueCount   int                    `json:"cue_count"`
	ChunkCount int                    `json:"chunk_count"`
	Indexed    int                    `json:"indexed"`
	Failed     []storage.ChunkFailure `json:"failed,omitempty"`
}

// Ingestor drives the offline pipeline: register the asset, parse its
// subtitles, sample frames, segment and index.
type Ingestor struct {
	lib     *media.Library
	store   media.Store
	indexer *storage.Indexer
	cfg     IngestConfig
}

func NewIngestor(lib *media.Library, store media.Store, indexer *storage.Indexer, cfg IngestConfig) *Ingestor {
	return &Ingestor{lib: lib, store: store, indexer: indexer, cfg: cfg}
}

// Ingest runs every stage and reports per-step outcomes. Frame sampling is
// best effort: if it fails the chunks are indexed without frame paths.
func (in *Ingestor) Ingest(ctx context.Context, videoID, videoPath, subtitlePath string) (*IngestResult, error) {
	result := &IngestResult{VideoID: videoID}

	step := func(name string, fn func() error) error {
		started := time.Now()
		err := fn()
		s := IngestStep{Name: name, Status: "ok", Duration: time.Since(started).Round(time.Millisecond).String()}
		if err != nil {
			s.Status = "failed"
			s.Error = err.Error()
		}
		result.Steps = append(result.Steps, s)
		return err
	}

	var asset *core.VideoAsset
	if err := step("register", func() error {
		path := videoPath
		if path == "" {
			resolved, err := in.lib.Resolve(videoID)
			if err != nil {
				return err
			}
			path = resolved
		}
		a, err := in.lib.Register(ctx, videoID, path, in.cfg.FrameIntervalSec)
		if err != nil {
			return err
		}
		asset = a
		return nil
	}); err != nil {
		return result, err
	}

	var cues []core.SubtitleCue
	if err := step("subtitles", func() error {
		parsed, err := ParseSubtitleFile(videoID, subtitlePath)
		if err != nil {
			return err
		}
		cues = parsed
		result.CueCount = len(cues)
		return nil
	}); err != nil {
		return result, err
	}

	var frames []core.FrameSample
	if err := step("frames", func() error {
		sampled, err := in.sampleFrames(ctx, asset)
		if err != nil {
			return err
		}
		frames = sampled
		return nil
	}); err != nil {
		// Chunks without frames are still searchable.
		log.Printf("ingest %s: frame sampling failed, continuing without frames: %v", videoID, err)
	}

	var chunks []core.TranscriptChunk
	if err := step("segment", func() error {
		segCfg := SegmenterConfig{MaxChunkSec: in.cfg.MaxChunkSec, SilenceGapSec: in.cfg.SilenceGapSec}
		segmented, err := Segment(asset, cues, frames, segCfg)
		if err != nil {
			return err
		}
		chunks = segmented
		result.ChunkCount = len(chunks)
		return nil
	}); err != nil {
		return result, err
	}

	if err := step("index", func() error {
		report, err := in.indexer.Index(ctx, chunks)
		result.Indexed = report.Indexed
		result.Failed = report.Failed
		return err
	}); err != nil {
		return result, err
	}

	log.Printf("ingest %s: %d cues -> %d chunks, %d indexed, %d failed",
		videoID, result.CueCount, result.ChunkCount, result.Indexed, len(result.Failed))
	return result, nil
}

// sampleFrames extracts stills at the configured interval and reconstructs
// their timestamps from ffmpeg's sequential file names.
func (in *Ingestor) sampleFrames(ctx context.Context, asset *core.VideoAsset) ([]core.FrameSample, error) {
	if in.cfg.FrameIntervalSec <= 0 {
		return nil, nil
	}
	outDir := filepath.Join(in.cfg.FrameDir, asset.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	if in.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.ExtractTimeout)
		defer cancel()
	}
	if err := in.store.SampleFrames(ctx, asset.Path, in.cfg.FrameIntervalSec, outDir); err != nil {
		return nil, err
	}

	return enumerateFrames(asset.ID, outDir, in.cfg.FrameIntervalSec)
}

// enumerateFrames maps 00001.jpg, 00002.jpg, ... back to timestamps. With
// one frame every interval, frame n sits at (n-1)*interval.
func enumerateFrames(videoID, dir string, intervalSec float64) ([]core.FrameSample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []core.FrameSample
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".jpg"))
		if err != nil {
			continue
		}
		frames = append(frames, core.FrameSample{
			VideoID:      videoID,
			TimestampSec: float64(n-1) * intervalSec,
			Path:         filepath.Join(dir, name),
		})
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames produced under %s", dir)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].TimestampSec < frames[j].TimestampSec })
	return frames, nil
}
