package clip

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
)

// Snap rounds t to the nearest multiple of granularity. Near-duplicate
// requests land on the same snapped range and therefore the same cache key.
func Snap(t, granularity float64) float64 {
	if granularity <= 0 {
		return t
	}
	return math.Round(t/granularity) * granularity
}

// Fingerprint derives the content-addressed cache key for a clip request.
// Inputs are expected to be snapped already; the key is stable across
// processes and restarts.
func Fingerprint(videoID string, start, end float64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%.3f:%.3f", videoID, start, end)))
	return hex.EncodeToString(sum[:])
}
