// Package assets handles asset lookup, loading and caching.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/config"
	"github.com/Faultbox/sb6go/internal/logger"
	"github.com/Faultbox/sb6go/pkg/formats"
)

// ErrNotFound is returned when no search path holds the requested asset.
var ErrNotFound = errors.New("asset not found")

// Manager resolves asset names against a list of directories.
type Manager struct {
	roots []string
	cache *Cache // nil when caching is disabled
	mu    sync.RWMutex
	log   *zap.Logger
}

// NewManager creates a manager from the asset configuration. Search paths
// that do not exist are skipped with a warning.
func NewManager(cfg config.AssetsConfig) *Manager {
	m := &Manager{
		log: logger.Named("assets"),
	}
	if cfg.Cache {
		m.cache = NewCache()
	}

	for _, path := range cfg.SearchPaths {
		if err := m.AddSearchPath(path); err != nil {
			m.log.Warn("skipping search path", zap.String("path", path), zap.Error(err))
		}
	}
	return m
}

// AddSearchPath adds a directory to the manager.
// Paths are searched in reverse order (last added = highest priority).
func (m *Manager) AddSearchPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("adding search path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding search path %s: not a directory", path)
	}

	m.mu.Lock()
	m.roots = append(m.roots, path)
	m.mu.Unlock()

	m.log.Debug("search path added", zap.String("path", path))
	return nil
}

// SearchPaths returns the configured directories in priority order, lowest first.
func (m *Manager) SearchPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.roots...)
}

// Resolve returns the on-disk path for name. Absolute names are used as-is.
func (m *Manager) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return name, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.roots) - 1; i >= 0; i-- {
		path := filepath.Join(m.roots[i], filepath.FromSlash(name))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load reads the raw bytes of an asset.
func (m *Manager) Load(name string) ([]byte, error) {
	if m.cache != nil {
		if data, ok := m.cache.Get(name); ok {
			return data, nil
		}
	}

	path, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", formats.ErrIO, path, err)
	}

	if m.cache != nil {
		m.cache.Set(name, data)
	}
	m.log.Debug("asset loaded", zap.String("name", name), zap.String("path", path), zap.Int("bytes", len(data)))
	return data, nil
}

// LoadKTX loads and decodes a KTX texture.
func (m *Manager) LoadKTX(name string) (*formats.KTXImage, error) {
	data, err := m.Load(name)
	if err != nil {
		return nil, err
	}

	img, err := formats.ParseKTX(data)
	if err != nil {
		m.log.Warn("KTX decode failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	m.log.Info("texture decoded",
		zap.String("name", name),
		zap.Stringer("target", img.Target()),
		zap.Uint32("width", img.Header.PixelWidth),
		zap.Uint32("height", img.Header.PixelHeight),
		zap.Uint32("levels", img.Header.MipLevels),
		zap.Bool("swapped", img.Header.Swapped()),
	)
	return img, nil
}

// LoadModel loads and decodes an SBM6 mesh.
func (m *Manager) LoadModel(name string) (*formats.SBM, error) {
	data, err := m.Load(name)
	if err != nil {
		return nil, err
	}

	model, err := formats.ParseSBM(data)
	if err != nil {
		m.log.Warn("SBM decode failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	m.log.Info("model decoded",
		zap.String("name", name),
		zap.Int("chunks", len(model.Chunks)),
		zap.Int("attributes", len(model.Attributes)),
		zap.Uint32("vertices", model.VertexData.TotalVertices),
		zap.Bool("indexed", model.IndexData != nil),
		zap.Int("sub_objects", model.NumSubObjects()),
	)
	return model, nil
}

// CacheStats returns cache hits and misses; both are zero without a cache.
func (m *Manager) CacheStats() (hits, misses int) {
	if m.cache == nil {
		return 0, 0
	}
	return m.cache.Stats()
}

// Close drops all search paths and cached data.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots = nil
	if m.cache != nil {
		m.cache.Clear()
	}
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
