package core

import (
	"fmt"
	"time"
)

// VideoAsset describes a registered source video. Assets are immutable once
// registered; re-registering the same ID returns the original record.
type VideoAsset struct {
	ID               string  `json:"id"`
	Path             string  `json:"path"`
	DurationSec      float64 `json:"duration_sec"`
	FrameIntervalSec float64 `json:"frame_interval_sec"`
}

// SubtitleCue is one raw timed-text cue, as parsed from a VTT or SRT file.
type SubtitleCue struct {
	VideoID string  `json:"video_id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// FrameSample is a single still frame sampled at a fixed interval.
type FrameSample struct {
	VideoID      string  `json:"video_id"`
	TimestampSec float64 `json:"timestamp_sec"`
	Path         string  `json:"path"`
}

// TranscriptChunk is the atomic retrieval unit: one or more contiguous cues
// merged into a time-bounded span of transcript text, with the frame sampled
// nearest to the chunk midpoint attached.
type TranscriptChunk struct {
	ID        string  `json:"id"`
	VideoID   string  `json:"video_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	FramePath string  `json:"frame_path,omitempty"`
}

func (c TranscriptChunk) Duration() float64 { return c.End - c.Start }

// ChunkID derives a stable identifier from the video and chunk start time.
// Re-segmenting the same video yields the same IDs, so a re-ingest
// supersedes the previous vectors instead of accumulating next to them.
func ChunkID(videoID string, start float64) string {
	return fmt.Sprintf("%s_%.2f", videoID, start)
}

// SearchResult is one ranked retrieval hit. It lives only for the duration
// of a single query.
type SearchResult struct {
	ChunkID   string  `json:"chunk_id"`
	VideoID   string  `json:"video_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	FramePath string  `json:"frame_path,omitempty"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
}

// ClipArtifact is a cached, content-addressed clip file. The struct is a
// value: a caller holding one keeps a usable reference even after the cache
// evicts the fingerprint.
type ClipArtifact struct {
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Query status values. A degraded result is still a valid result; the
// Degraded list names the parts that are missing.
const (
	StatusComplete = "complete"
	StatusDegraded = "degraded"
)

// QueryResult is the assembled response for one query.
type QueryResult struct {
	QueryID   string         `json:"query_id"`
	Query     string         `json:"query"`
	Answer    string         `json:"answer"`
	Results   []SearchResult `json:"results"`
	Clip      *ClipArtifact  `json:"clip,omitempty"`
	Status    string         `json:"status"`
	Degraded  []string       `json:"degraded,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// QueryOptions are the caller-tunable knobs for a single query.
type QueryOptions struct {
	TopK        int     `json:"top_k"`
	MinScore    float64 `json:"min_score"`
	IncludeClip bool    `json:"include_clip"`
}

func DefaultQueryOptions() QueryOptions {
	return QueryOptions{TopK: 5, MinScore: 0.3, IncludeClip: true}
}

// Validate enforces the caller parameter contract.
func (o QueryOptions) Validate() error {
	if o.TopK < 1 {
		return &InvalidQueryError{Reason: fmt.Sprintf("top_k must be >= 1, got %d", o.TopK)}
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return &InvalidQueryError{Reason: fmt.Sprintf("min_score must be in [0,1], got %g", o.MinScore)}
	}
	return nil
}
