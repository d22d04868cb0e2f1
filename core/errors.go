package core

import (
	"errors"
	"fmt"
)

// MalformedInputError reports bad ingestion data. It is fatal to the single
// item it names, never to the surrounding batch.
type MalformedInputError struct {
	Index  int
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input at cue %d: %s", e.Index, e.Reason)
}

// InvalidQueryError reports bad caller parameters. Fatal to the query and
// reported back to the caller.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// MediaExtractionError means clip synthesis failed (corrupt source,
// unsupported codec, ffmpeg failure). The query continues without a clip.
type MediaExtractionError struct {
	VideoID string
	Err     error
}

func (e *MediaExtractionError) Error() string {
	return fmt.Sprintf("media extraction failed for %s: %v", e.VideoID, e.Err)
}

func (e *MediaExtractionError) Unwrap() error { return e.Err }

// GenerationError means answer composition failed or timed out. The query
// returns results and clip without an answer, flagged as degraded.
type GenerationError struct {
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("generation timed out: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrRetrievalTimeout means the nearest-neighbor service was too slow. The
// query degrades to empty results and continues.
var ErrRetrievalTimeout = errors.New("vector search timed out")

// ErrVideoNotFound means no registered asset matches the requested video ID.
var ErrVideoNotFound = errors.New("video not found")
