package stats

import (
	"context"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"
)

// Key identifies the raw array statistics were computed from. Size and ModTime
// invalidate entries when the file is rewritten.
type Key struct {
	Path         string
	InternalPath string
	Size         int64
	ModTime      time.Time
}

// KeyFor builds a Key from the file's current metadata. The path is stored in
// NFC form so decomposed names from some filesystems map to the same entry.
func KeyFor(path, internalPath string) (Key, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Key{}, err
	}
	return Key{
		Path:         norm.NFC.String(path),
		InternalPath: internalPath,
		Size:         info.Size(),
		ModTime:      info.ModTime().UTC().Truncate(time.Second),
	}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s@%d/%d", k.Path, k.InternalPath, k.Size, k.ModTime.Unix())
}

// Cache stores computed statistics.
type Cache interface {
	Get(ctx context.Context, key Key) (Stats, bool, error)
	Put(ctx context.Context, key Key, s Stats) error
}

// LRUCache keeps recent statistics in memory and reads through to an optional
// backing cache.
type LRUCache struct {
	entries *lru.Cache[Key, Stats]
	backing Cache
}

// NewLRUCache creates a cache holding up to size entries. backing may be nil.
func NewLRUCache(size int, backing Cache) (*LRUCache, error) {
	if size <= 0 {
		size = 128
	}
	entries, err := lru.New[Key, Stats](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{entries: entries, backing: backing}, nil
}

func (c *LRUCache) Get(ctx context.Context, key Key) (Stats, bool, error) {
	if s, ok := c.entries.Get(key); ok {
		return s, true, nil
	}
	if c.backing == nil {
		return Stats{}, false, nil
	}
	s, ok, err := c.backing.Get(ctx, key)
	if err != nil || !ok {
		return Stats{}, false, err
	}
	c.entries.Add(key, s)
	return s, true, nil
}

func (c *LRUCache) Put(ctx context.Context, key Key, s Stats) error {
	c.entries.Add(key, s)
	if c.backing != nil {
		return c.backing.Put(ctx, key, s)
	}
	return nil
}

// Len is the number of entries held in memory.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}
