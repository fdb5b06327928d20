package provider

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

func init() {
	RegisterCache("lru", newLRUCache)
}

// lruCache wraps hashicorp/golang-lru/v2, the same library the teacher's
// scanner.Scanner uses for its gitignore-matcher cache, lifted here to a
// registry-wide Cache capability (spec §4.1).
type lruCache struct {
	inner *lru.Cache[string, []byte]
}

func newLRUCache(cfg map[string]string) (Cache, error) {
	size := 1000
	if v := cfg["size"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &lruCache{inner: c}, nil
}

func (c *lruCache) Get(key string) ([]byte, bool) { return c.inner.Get(key) }
func (c *lruCache) Put(key string, value []byte)  { c.inner.Add(key, value) }
func (c *lruCache) Len() int                      { return c.inner.Len() }
