package client

import (
	"time"

	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/remote"
	gocache "github.com/patrickmn/go-cache"
)

const (
	categoriesCacheKey string = "categories"
)

type mangaCacheEntry struct {
	manga      *remote.Manga
	bookmarked bool
}

// MetadataCache keeps responses of the pool service for a short time
type MetadataCache struct {
	cacheTimeout   time.Duration
	cleanupTimeout time.Duration
	mangaCache     *gocache.Cache
	categoryCache  *gocache.Cache
}

// NewMetadataCache creates a new MetadataCache
func NewMetadataCache(cacheTimeout time.Duration, cleanup time.Duration) *MetadataCache {
	return &MetadataCache{
		cacheTimeout:   cacheTimeout,
		cleanupTimeout: cleanup,
		mangaCache:     gocache.New(cacheTimeout, cleanup),
		categoryCache:  gocache.New(cacheTimeout, cleanup),
	}
}

func makeMangaCacheKey(sourceID string, mangaID string) string {
	return sourceID + "/" + mangaID
}

// AddMangaCache adds a manga cache
func (cache *MetadataCache) AddMangaCache(sourceID string, mangaID string, manga *remote.Manga, bookmarked bool) {
	cache.mangaCache.Set(makeMangaCacheKey(sourceID, mangaID), &mangaCacheEntry{
		manga:      manga,
		bookmarked: bookmarked,
	}, 0)
}

// RemoveMangaCache removes a manga cache
func (cache *MetadataCache) RemoveMangaCache(sourceID string, mangaID string) {
	cache.mangaCache.Delete(makeMangaCacheKey(sourceID, mangaID))
}

// GetMangaCache retrieves a manga cache, the last return is false on a miss
func (cache *MetadataCache) GetMangaCache(sourceID string, mangaID string) (*remote.Manga, bool, bool) {
	data, exist := cache.mangaCache.Get(makeMangaCacheKey(sourceID, mangaID))
	if exist {
		if entry, ok := data.(*mangaCacheEntry); ok {
			return entry.manga, entry.bookmarked, true
		}
	}
	return nil, false, false
}

// ClearMangaCache clears all manga caches
func (cache *MetadataCache) ClearMangaCache() {
	cache.mangaCache.Flush()
}

// AddCategoriesCache adds the category list
func (cache *MetadataCache) AddCategoriesCache(categories []library.Category) {
	cache.categoryCache.Set(categoriesCacheKey, categories, 0)
}

// GetCategoriesCache retrieves the category list, nil on a miss
func (cache *MetadataCache) GetCategoriesCache() []library.Category {
	data, exist := cache.categoryCache.Get(categoriesCacheKey)
	if exist {
		if categories, ok := data.([]library.Category); ok {
			return categories
		}
	}
	return nil
}

// ClearCategoriesCache clears the category list
func (cache *MetadataCache) ClearCategoriesCache() {
	cache.categoryCache.Flush()
}
