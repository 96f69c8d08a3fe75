package io

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lrucache "github.com/hashicorp/golang-lru"
	"github.com/mirareader/mira-pool/utils"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
)

const (
	diskCacheEntryNumMax int = 1024 * 1024
)

// DiskCacheEntry is an encoded image kept on local disk
type DiskCacheEntry struct {
	key          string
	size         int
	creationTime time.Time
	filePath     string
}

func newDiskCacheEntry(cache *DiskCache, key string, data []byte) (*DiskCacheEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "newDiskCacheEntry",
	})

	filePath := filepath.Join(cache.GetRootPath(), utils.HashData(key))

	logger.Debugf("Writing image cache to %s", filePath)
	err := atomic.WriteFile(filePath, bytes.NewReader(data))
	if err != nil {
		logger.WithError(err).Errorf("failed to write image cache %s", filePath)
		return nil, err
	}

	return &DiskCacheEntry{
		key:          key,
		size:         len(data),
		creationTime: time.Now(),
		filePath:     filePath,
	}, nil
}

// GetKey returns the key
func (entry *DiskCacheEntry) GetKey() string {
	return entry.key
}

// GetSize returns data size in bytes
func (entry *DiskCacheEntry) GetSize() int {
	return entry.size
}

// GetCreationTime returns creation time
func (entry *DiskCacheEntry) GetCreationTime() time.Time {
	return entry.creationTime
}

// GetData reads data from disk
func (entry *DiskCacheEntry) GetData() ([]byte, error) {
	return os.ReadFile(entry.filePath)
}

func (entry *DiskCacheEntry) deleteDataFile() error {
	err := os.Remove(entry.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// DiskCache keeps encoded images on disk, bounded by total bytes
type DiskCache struct {
	sizeCap   int64
	totalSize int64
	rootPath  string
	cache     *lrucache.Cache
	mutex     sync.Mutex
}

// NewDiskCache creates a new DiskCache
func NewDiskCache(sizeCap int64, rootPath string) (*DiskCache, error) {
	err := os.MkdirAll(rootPath, 0755)
	if err != nil {
		return nil, err
	}

	diskCache := &DiskCache{
		sizeCap:  sizeCap,
		rootPath: rootPath,
	}

	lruCache, err := lrucache.NewWithEvict(diskCacheEntryNumMax, diskCache.onEvicted)
	if err != nil {
		return nil, err
	}

	diskCache.cache = lruCache
	return diskCache, nil
}

// Release deletes all entries and the cache dir
func (cache *DiskCache) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "Release",
	})

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	logger.Info("Deleting all image cache entries")
	cache.cache.Purge()
	cache.totalSize = 0

	logger.Infof("Deleting cache files and directory %s", cache.rootPath)
	os.RemoveAll(cache.rootPath)
}

// GetSizeCap returns max size in bytes
func (cache *DiskCache) GetSizeCap() int64 {
	return cache.sizeCap
}

// GetRootPath returns the cache dir
func (cache *DiskCache) GetRootPath() string {
	return cache.rootPath
}

// GetTotalEntries returns the number of entries
func (cache *DiskCache) GetTotalEntries() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.cache.Len()
}

// GetTotalEntrySize returns the sum of entry sizes in bytes
func (cache *DiskCache) GetTotalEntrySize() int64 {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.totalSize
}

// GetAvailableSize returns remaining capacity in bytes
func (cache *DiskCache) GetAvailableSize() int64 {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.sizeCap - cache.totalSize
}

// DeleteAllEntries deletes all entries
func (cache *DiskCache) DeleteAllEntries() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.cache.Purge()
	cache.totalSize = 0
}

// CreateEntry writes data to disk and registers it, evicting old entries as needed
func (cache *DiskCache) CreateEntry(key string, data []byte) (*DiskCacheEntry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "CreateEntry",
	})

	if int64(len(data)) > cache.sizeCap {
		return nil, fmt.Errorf("requested data %d is larger than cache size %d", len(data), cache.sizeCap)
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	// replacing an existing entry rewrites the same file
	cache.cache.Remove(key)

	for cache.totalSize+int64(len(data)) > cache.sizeCap {
		if _, _, ok := cache.cache.RemoveOldest(); !ok {
			break
		}
	}

	entry, err := newDiskCacheEntry(cache, key, data)
	if err != nil {
		return nil, err
	}

	logger.Debugf("putting a new image cache with a key %s", key)
	cache.cache.Add(key, entry)
	cache.totalSize += int64(entry.size)

	return entry, nil
}

// HasEntry checks if the key exists
func (cache *DiskCache) HasEntry(key string) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.cache.Contains(key)
}

// GetEntry returns the entry or nil
func (cache *DiskCache) GetEntry(key string) *DiskCacheEntry {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if entry, ok := cache.cache.Get(key); ok {
		if cacheEntry, ok := entry.(*DiskCacheEntry); ok {
			return cacheEntry
		}
	}

	return nil
}

// DeleteEntry deletes the entry and its file
func (cache *DiskCache) DeleteEntry(key string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.cache.Remove(key)
}

func (cache *DiskCache) onEvicted(key interface{}, entry interface{}) {
	logger := log.WithFields(log.Fields{
		"package":  "io",
		"struct":   "DiskCache",
		"function": "onEvicted",
	})

	if cacheEntry, ok := entry.(*DiskCacheEntry); ok {
		cache.totalSize -= int64(cacheEntry.size)

		err := cacheEntry.deleteDataFile()
		if err != nil {
			logger.WithError(err).Warnf("failed to delete image cache file %s", cacheEntry.filePath)
		}
	}
}
