package remote

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MetadataCache keeps manga metadata and chapter lists for a while
type MetadataCache struct {
	cacheTimeout   time.Duration
	cleanupTimeout time.Duration
	mangaCache     *gocache.Cache
	chaptersCache  *gocache.Cache
}

// NewMetadataCache creates a new MetadataCache
func NewMetadataCache(cacheTimeout time.Duration, cleanup time.Duration) *MetadataCache {
	return &MetadataCache{
		cacheTimeout:   cacheTimeout,
		cleanupTimeout: cleanup,
		mangaCache:     gocache.New(cacheTimeout, cleanup),
		chaptersCache:  gocache.New(cacheTimeout, cleanup),
	}
}

func makeMangaCacheKey(sourceID string, mangaID string) string {
	return fmt.Sprintf("%s/%s", sourceID, mangaID)
}

// AddManga adds a manga cache
func (cache *MetadataCache) AddManga(manga *Manga) {
	cache.mangaCache.Set(makeMangaCacheKey(manga.SourceID, manga.ID), manga, 0)
}

// GetManga retrieves a manga cache
func (cache *MetadataCache) GetManga(sourceID string, mangaID string) *Manga {
	data, exist := cache.mangaCache.Get(makeMangaCacheKey(sourceID, mangaID))
	if exist {
		if manga, ok := data.(*Manga); ok {
			return manga
		}
	}
	return nil
}

// AddChapters adds a chapter list cache
func (cache *MetadataCache) AddChapters(sourceID string, mangaID string, chapters []Chapter) {
	cache.chaptersCache.Set(makeMangaCacheKey(sourceID, mangaID), chapters, 0)
}

// GetChapters retrieves a chapter list cache
func (cache *MetadataCache) GetChapters(sourceID string, mangaID string) []Chapter {
	data, exist := cache.chaptersCache.Get(makeMangaCacheKey(sourceID, mangaID))
	if exist {
		if chapters, ok := data.([]Chapter); ok {
			return chapters
		}
	}
	return nil
}

// Invalidate removes all caches of a manga
func (cache *MetadataCache) Invalidate(sourceID string, mangaID string) {
	key := makeMangaCacheKey(sourceID, mangaID)
	cache.mangaCache.Delete(key)
	cache.chaptersCache.Delete(key)
}

// Clear clears all caches
func (cache *MetadataCache) Clear() {
	cache.mangaCache.Flush()
	cache.chaptersCache.Flush()
}
