package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"vidquest/core"
)

var supportedFormats = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// Library is the registry of video assets. Registration probes the source
// once; the resulting VideoAsset is immutable.
type Library struct {
	root  string
	store Store

	mu     sync.RWMutex
	assets map[string]*core.VideoAsset
}

func NewLibrary(root string, store Store) *Library {
	return &Library{
		root:   root,
		store:  store,
		assets: make(map[string]*core.VideoAsset),
	}
}

// Register validates the source file, probes its duration and records the
// asset. Registering an already-known ID returns the existing asset
// unchanged; assets are never mutated in place.
func (l *Library) Register(ctx context.Context, videoID, path string, frameIntervalSec float64) (*core.VideoAsset, error) {
	l.mu.RLock()
	existing, ok := l.assets[videoID]
	l.mu.RUnlock()
	if ok {
		return existing, nil
	}

	if err := validateFile(path); err != nil {
		return nil, err
	}

	dur, err := l.store.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}

	asset := &core.VideoAsset{
		ID:               videoID,
		Path:             path,
		DurationSec:      dur,
		FrameIntervalSec: frameIntervalSec,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.assets[videoID]; ok {
		return existing, nil
	}
	l.assets[videoID] = asset
	return asset, nil
}

// Get returns the asset for videoID, or core.ErrVideoNotFound.
func (l *Library) Get(videoID string) (*core.VideoAsset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.assets[videoID]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrVideoNotFound, videoID)
}

// Remove drops an asset from the registry. Chunks already indexed for it
// are the index's concern, not the library's.
func (l *Library) Remove(videoID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.assets, videoID)
}

// Resolve searches the library root for a media file named after videoID.
func (l *Library) Resolve(videoID string) (string, error) {
	var found string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if base == videoID && supportedFormats[strings.ToLower(filepath.Ext(name))] {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: no media file for %s under %s", core.ErrVideoNotFound, videoID, l.root)
	}
	return found, nil
}

func validateFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedFormats[ext] {
		return fmt.Errorf("unsupported video format %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("video file not accessible: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("video file is empty: %s", path)
	}
	return nil
}
