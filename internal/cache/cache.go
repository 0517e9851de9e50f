package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

type entry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

// Cache is a JSON file cache for imagery results. Entries older than maxAge,
// unreadable or failing their checksum are treated as misses.
type Cache[T any] struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// New creates a cache in dir. A zero maxAge never expires entries.
func New[T any](dir string, maxAge time.Duration) *Cache[T] {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("cache: could not create %s: %v", dir, err)
	}
	return &Cache[T]{dir: dir, maxAge: maxAge, now: time.Now}
}

// Key derives a stable cache key from the given parts.
func Key(parts ...any) string {
	h := sha1.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v_", p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache[T]) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return zero, false
	}

	var e entry[T]
	if err := json.Unmarshal(data, &e); err != nil {
		return zero, false
	}
	if e.Checksum != checksum(e.Data) {
		return zero, false
	}
	if c.maxAge > 0 && c.now().Sub(e.CreatedAt) > c.maxAge {
		return zero, false
	}
	return e.Data, true
}

// Set writes the entry atomically via a temp file and rename.
func (c *Cache[T]) Set(key string, data T) error {
	e := entry[T]{
		Data:      data,
		CreatedAt: c.now(),
		Checksum:  checksum(data),
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Each writer gets its own temp file; concurrent Sets of one key race
	// only on the rename, and the last one wins.
	f, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		log.Printf("cache: chmod %s: %v", filepath.Base(tmp), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// Prune removes expired and unreadable entries and returns how many were
// deleted. With a zero maxAge only unreadable entries go.
func (c *Cache[T]) Prune() (int, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e struct {
			CreatedAt time.Time `json:"created_at"`
		}
		stale := json.Unmarshal(data, &e) != nil ||
			(c.maxAge > 0 && c.now().Sub(e.CreatedAt) > c.maxAge)
		if !stale {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	return removed, nil
}

func checksum[T any](data T) string {
	b, _ := json.Marshal(data)
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
