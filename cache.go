package zonalstats

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	Path  string
	Token uint64 // hash of file size and modification time
}

// GeometryCache keeps parsed vector layers keyed by path. An entry is
// reloaded when the file size or modification time changes. It is safe
// for concurrent use; cached layers are shared and must not be modified.
type GeometryCache struct {
	mu      sync.Mutex
	layers  *lru.Cache[cacheKey, *VectorLayer]
	metrics *Metrics
	load    func(path string) (*VectorLayer, error)
}

// NewGeometryCache returns a cache holding at most size layers. A size
// below one keeps a single layer.
func NewGeometryCache(size int, m *Metrics) *GeometryCache {
	if size < 1 {
		size = 1
	}
	layers, _ := lru.New[cacheKey, *VectorLayer](size)
	return &GeometryCache{layers: layers, metrics: m, load: LoadVector}
}

// Load returns the layer at path, reading it on a miss.
func (c *GeometryCache) Load(path string) (*VectorLayer, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DataSourceError{Source: path, Err: err}
	}
	key := cacheKey{Path: path, Token: fileToken(info)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if layer, ok := c.layers.Get(key); ok {
		c.metrics.cacheLookup(true)
		return layer, nil
	}
	c.metrics.cacheLookup(false)

	layer, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.removePath(path)
	c.layers.Add(key, layer)
	return layer, nil
}

// Retain drops every layer whose path is not in paths.
func (c *GeometryCache) Retain(paths []string) {
	keep := make(map[string]bool, len(paths))
	for _, p := range paths {
		keep[filepath.Clean(p)] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.layers.Keys() {
		if !keep[k.Path] {
			c.layers.Remove(k)
		}
	}
}

// Purge drops every layer.
func (c *GeometryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers.Purge()
}

// Len returns the number of cached layers.
func (c *GeometryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers.Len()
}

func (c *GeometryCache) removePath(path string) {
	for _, k := range c.layers.Keys() {
		if k.Path == path {
			c.layers.Remove(k)
		}
	}
}

func fileToken(info os.FileInfo) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
	return xxhash.Sum64(buf[:])
}
