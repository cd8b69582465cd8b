package analyze

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	tt "github.com/gnolang/absint/internal/types"
)

const cacheFileName = "absint_cache.gob"

type cacheEntry struct {
	// Hash covers the file content and the configuration it was analyzed
	// with.
	Hash      string
	Issues    []tt.Issue
	CreatedAt time.Time
}

// Cache keeps the issues of analyzed files across runs. An entry is valid
// while the file content and the engine configuration are unchanged.
type Cache struct {
	dir     string
	maxAge  time.Duration
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache opens the cache stored in dir, creating the directory if
// needed. A zero maxAge keeps entries forever.
func NewCache(dir string, maxAge time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &Cache{dir: dir, maxAge: maxAge, entries: make(map[string]cacheEntry)}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return c, nil
}

func (c *Cache) path() string { return filepath.Join(c.dir, cacheFileName) }

func (c *Cache) load() error {
	f, err := os.Open(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&c.entries)
}

// Save writes the cache back to its directory.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Create(c.path())
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(c.entries); err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	return nil
}

func (c *Cache) get(filename, hash string) ([]tt.Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[filename]
	if !ok {
		return nil, false
	}
	if entry.Hash != hash || (c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge) {
		delete(c.entries, filename)
		return nil, false
	}
	return entry.Issues, true
}

func (c *Cache) set(filename, hash string, issues []tt.Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[filename] = cacheEntry{Hash: hash, Issues: issues, CreatedAt: time.Now()}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func contentHash(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
