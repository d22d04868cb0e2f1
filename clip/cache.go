package clip

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vidquest/core"
)

// Cache is the content-addressed clip artifact store: a directory of clip
// files plus a JSON index, bounded by total size and entry age.
//
// Artifacts are returned by value. Evicting a fingerprint unlinks the file
// and drops the index entry, but a response that already opened the file
// keeps a valid descriptor until it closes it, so eviction never corrupts
// an in-flight response.
type Cache struct {
	dir      string
	maxBytes int64
	maxAge   time.Duration

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	size    int64

	metrics CacheMetrics

	ticker *time.Ticker
	done   chan struct{}
}

type cacheEntry struct {
	Artifact    core.ClipArtifact `json:"artifact"`
	LastAccess  time.Time         `json:"last_access"`
	AccessCount int64             `json:"access_count"`
}

// CacheMetrics are cumulative counters since process start.
type CacheMetrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// CacheStats is a point-in-time snapshot for the stats endpoint.
type CacheStats struct {
	CacheMetrics
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

const indexFileName = "clip_index.json"

// NewCache loads any existing index from dir and starts the cleanup task.
func NewCache(dir string, maxBytes int64, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		maxAge:   maxAge,
		entries:  make(map[string]*cacheEntry),
		done:     make(chan struct{}),
	}
	c.loadIndex()

	c.ticker = time.NewTicker(10 * time.Minute)
	go func() {
		for {
			select {
			case <-c.ticker.C:
				c.evict()
			case <-c.done:
				return
			}
		}
	}()

	return c, nil
}

func (c *Cache) loadIndex() {
	data, err := os.ReadFile(filepath.Join(c.dir, indexFileName))
	if err != nil {
		return
	}
	var entries map[string]*cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("clip cache: failed to parse index: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, e := range entries {
		if _, err := os.Stat(e.Artifact.Path); err == nil {
			c.entries[fp] = e
			c.size += e.Artifact.SizeBytes
		}
	}
	log.Printf("clip cache: loaded %d entries, %d MB", len(c.entries), c.size/1024/1024)
}

func (c *Cache) saveIndex() {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		log.Printf("clip cache: failed to marshal index: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.dir, indexFileName), data, 0644); err != nil {
		log.Printf("clip cache: failed to save index: %v", err)
	}
}

// Get returns the artifact for a fingerprint if present.
func (c *Cache) Get(fingerprint string) (core.ClipArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		c.metrics.Misses++
		return core.ClipArtifact{}, false
	}
	e.LastAccess = time.Now()
	e.AccessCount++
	c.metrics.Hits++
	return e.Artifact, true
}

// peek looks up a fingerprint without touching access metadata or the
// hit/miss counters. Used for the second-chance check inside an in-flight
// extraction, which already counted its miss.
func (c *Cache) peek(fingerprint string) (core.ClipArtifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return core.ClipArtifact{}, false
	}
	return e.Artifact, true
}

// PathFor returns where the clip file for a fingerprint belongs on disk.
func (c *Cache) PathFor(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".mp4")
}

// Put publishes a completed artifact. The entry becomes visible to readers
// atomically: the file is fully written before the index learns about it.
func (c *Cache) Put(fingerprint, path string) (core.ClipArtifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return core.ClipArtifact{}, err
	}

	artifact := core.ClipArtifact{
		Fingerprint: fingerprint,
		Path:        path,
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now(),
	}

	c.mu.Lock()
	if prev, ok := c.entries[fingerprint]; ok {
		c.size -= prev.Artifact.SizeBytes
	}
	c.entries[fingerprint] = &cacheEntry{Artifact: artifact, LastAccess: time.Now(), AccessCount: 1}
	c.size += artifact.SizeBytes
	c.mu.Unlock()

	c.evict()
	c.saveIndex()
	return artifact, nil
}

// evict removes expired entries, then least-recently-used entries until the
// cache is under its size bound.
func (c *Cache) evict() {
	now := time.Now()
	var removed []string

	c.mu.Lock()
	if c.maxAge > 0 {
		for fp, e := range c.entries {
			if now.Sub(e.Artifact.CreatedAt) > c.maxAge {
				removed = append(removed, e.Artifact.Path)
				c.size -= e.Artifact.SizeBytes
				delete(c.entries, fp)
				c.metrics.Evictions++
			}
		}
	}
	if c.maxBytes > 0 && c.size > c.maxBytes {
		type aged struct {
			fp   string
			last time.Time
		}
		order := make([]aged, 0, len(c.entries))
		for fp, e := range c.entries {
			order = append(order, aged{fp, e.LastAccess})
		}
		sort.Slice(order, func(i, j int) bool { return order[i].last.Before(order[j].last) })
		for _, a := range order {
			if c.size <= c.maxBytes {
				break
			}
			e := c.entries[a.fp]
			removed = append(removed, e.Artifact.Path)
			c.size -= e.Artifact.SizeBytes
			delete(c.entries, a.fp)
			c.metrics.Evictions++
		}
	}
	c.mu.Unlock()

	// Unlink outside the lock. Open descriptors held by in-flight
	// responses stay readable after the unlink.
	for _, path := range removed {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("clip cache: failed to remove %s: %v", path, err)
		}
	}
}

// Stats snapshots the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		CacheMetrics: c.metrics,
		Entries:      len(c.entries),
		SizeBytes:    c.size,
	}
}

// Close stops the cleanup task and persists the index.
func (c *Cache) Close() {
	c.ticker.Stop()
	close(c.done)
	c.saveIndex()
}
