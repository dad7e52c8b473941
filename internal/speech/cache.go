package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hbenali/friday/internal/logger"
)

// Cache is a thread-safe content-addressed store for rendered speech
// artifacts. The key is sha256 over (voice, rate, volume, text), so any
// change of voice parameters misses until the same combination recurs.
// Values are paths to WAV files under the cache directory; an in-memory
// index avoids repeated stat calls for hot entries.
//
// Entries are never evicted. A long session with many distinct phrases
// grows the directory without bound; keeping hits stable for repeated
// phrases was judged more important than bounding disk use.
type Cache struct {
	mu        sync.RWMutex
	index     map[string]string // key -> artifact path
	dir       string            // empty disables the disk layer entirely
	diskWrite bool              // when false, existing files are read but nothing new is stored
	log       *logger.Logger
	hits      int64
	misses    int64
}

// NewCache creates an artifact cache rooted at dir. When diskWrite is
// false, artifacts already on disk from previous runs are still served.
func NewCache(dir string, diskWrite bool, log *logger.Logger) *Cache {
	c := &Cache{
		index:     make(map[string]string),
		dir:       dir,
		diskWrite: diskWrite,
		log:       log,
	}
	if dir != "" && diskWrite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("cache: creating %s: %v", dir, err)
		}
	}
	return c
}

// Get returns the artifact path for (text, params) and true on a hit.
func (c *Cache) Get(text string, params VoiceParams) (string, bool) {
	key := Key(text, params)

	c.mu.RLock()
	path, ok := c.index[key]
	c.mu.RUnlock()

	if !ok && c.dir != "" {
		// Warm start: artifact may exist from a previous run.
		candidate := c.artifactPath(key)
		if _, err := os.Stat(candidate); err == nil {
			path, ok = candidate, true
		}
	}

	c.mu.Lock()
	if ok {
		c.index[key] = path
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if ok {
		c.log.Debug("cache hit: %s -> %s", truncate(text, 40), filepath.Base(path))
	}
	return path, ok
}

// Put stores rendered audio for (text, params) and returns the artifact
// path. With the disk layer disabled it writes to the OS temp directory
// so the caller still gets a playable file for this process lifetime.
func (c *Cache) Put(text string, params VoiceParams, wav []byte) (string, error) {
	key := Key(text, params)

	var path string
	if c.dir != "" && c.diskWrite {
		path = c.artifactPath(key)
	} else {
		path = filepath.Join(os.TempDir(), "friday-"+key[:16]+".wav")
	}
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("cache: writing artifact: %w", err)
	}

	c.mu.Lock()
	c.index[key] = path
	n := len(c.index)
	c.mu.Unlock()

	c.log.Debug("cache store: %s (%d bytes, %d entries)", truncate(text, 40), len(wav), n)
	return path, nil
}

// Has reports whether an artifact exists for (text, params).
func (c *Cache) Has(text string, params VoiceParams) bool {
	key := Key(text, params)
	c.mu.RLock()
	_, ok := c.index[key]
	c.mu.RUnlock()
	if ok {
		return true
	}
	if c.dir == "" {
		return false
	}
	_, err := os.Stat(c.artifactPath(key))
	return err == nil
}

// Len returns the number of indexed entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Clear drops the in-memory index and counters. Disk artifacts survive.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.index = make(map[string]string)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Key derives the cache key for (text, params). Pure: the same inputs
// always produce the same key.
func Key(text string, params VoiceParams) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%.3f|%s", params.Voice, params.Rate, params.Volume, text)))
	return hex.EncodeToString(h[:])
}

func (c *Cache) artifactPath(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
