package processors

import (
	"fmt"
	"math"
	"strings"

	"vidquest/core"
)

// SegmenterConfig bounds chunk growth. MaxChunkSec caps a chunk's duration;
// SilenceGapSec closes a chunk when the pause before the next cue exceeds it.
type SegmenterConfig struct {
	MaxChunkSec   float64
	SilenceGapSec float64
}

// Segment merges time-ordered cues into transcript chunks and attaches the
// frame sampled nearest to each chunk's midpoint. No cues yields an empty
// result, not an error. Non-monotonic cue timestamps are rejected with a
// MalformedInputError naming the offending cue; no repair is attempted.
func Segment(video *core.VideoAsset, cues []core.SubtitleCue, frames []core.FrameSample, cfg SegmenterConfig) ([]core.TranscriptChunk, error) {
	if len(cues) == 0 {
		return nil, nil
	}
	if cfg.MaxChunkSec <= 0 {
		return nil, fmt.Errorf("max chunk duration must be positive, got %g", cfg.MaxChunkSec)
	}

	for i, cue := range cues {
		if cue.End < cue.Start {
			return nil, &core.MalformedInputError{Index: i, Reason: fmt.Sprintf("end %.3f before start %.3f", cue.End, cue.Start)}
		}
		if i > 0 && cue.Start < cues[i-1].Start {
			return nil, &core.MalformedInputError{Index: i, Reason: fmt.Sprintf("start %.3f before previous start %.3f", cue.Start, cues[i-1].Start)}
		}
	}

	var chunks []core.TranscriptChunk
	var texts []string
	chunkStart := cues[0].Start
	chunkEnd := cues[0].End

	flush := func() {
		text := strings.Join(strings.Fields(strings.Join(texts, " ")), " ")
		start := math.Max(chunkStart, 0)
		end := chunkEnd
		if video.DurationSec > 0 && end > video.DurationSec {
			end = video.DurationSec
		}
		// A lone cue longer than the budget still has to respect it.
		if end-start > cfg.MaxChunkSec {
			end = start + cfg.MaxChunkSec
		}
		if end <= start {
			end = start + 0.001
		}
		chunks = append(chunks, core.TranscriptChunk{
			ID:        core.ChunkID(video.ID, start),
			VideoID:   video.ID,
			Start:     start,
			End:       end,
			Text:      text,
			FramePath: nearestFrame(frames, (start+end)/2),
		})
		texts = nil
	}

	for i, cue := range cues {
		if i == 0 {
			texts = append(texts, cue.Text)
			continue
		}
		gap := cue.Start - cues[i-1].End
		overBudget := cue.End-chunkStart > cfg.MaxChunkSec
		if overBudget || (cfg.SilenceGapSec > 0 && gap > cfg.SilenceGapSec) {
			flush()
			chunkStart = cue.Start
			// Overlapping rollup cues must not produce overlapping chunks.
			if prev := chunks[len(chunks)-1].End; chunkStart < prev {
				chunkStart = prev
			}
			chunkEnd = cue.End
			texts = append(texts, cue.Text)
			continue
		}
		texts = append(texts, cue.Text)
		if cue.End > chunkEnd {
			chunkEnd = cue.End
		}
	}
	flush()

	return chunks, nil
}

// nearestFrame picks the sample closest to the midpoint; ties go to the
// earlier timestamp.
func nearestFrame(frames []core.FrameSample, midpoint float64) string {
	best := ""
	bestDist := math.Inf(1)
	bestTS := math.Inf(1)
	for _, f := range frames {
		dist := math.Abs(f.TimestampSec - midpoint)
		if dist < bestDist || (dist == bestDist && f.TimestampSec < bestTS) {
			best = f.Path
			bestDist = dist
			bestTS = f.TimestampSec
		}
	}
	return best
}
