package image

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"  // register gif decoder
	_ "image/jpeg" // register jpeg decoder
	_ "image/png"  // register png decoder
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mirareader/mira-pool/commons"
	pool_io "github.com/mirareader/mira-pool/service/io"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // register webp decoder
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"
)

const (
	// MaxAttemptsDefault is the number of attempts of a network fetch, the first one included
	MaxAttemptsDefault int           = 10
	imageDataSizeMax   int64         = 64 * 1024 * 1024
	sharedFetchTimeout time.Duration = 5 * time.Minute
)

// ErrImageTooLarge is returned when encoded image data exceeds the size limit
var ErrImageTooLarge = xerrors.New("image data too large")

// HTTPDoer sends http requests, *http.Client satisfies it
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PageLoader streams raw image bytes from the network
type PageLoader interface {
	LoadHTTPImage(ctx context.Context, req NetworkImageRequest) (io.ReadCloser, int64, error)
}

// CacheStats is a snapshot of cache usage
type CacheStats struct {
	Entries         int     `json:"entries"`
	SizeKiB         float64 `json:"size_kib"`
	MaxSizeKiB      float64 `json:"max_size_kib"`
	DiskEntries     int     `json:"disk_entries"`
	DiskSizeBytes   int64   `json:"disk_size_bytes"`
	DiskSizeCap     int64   `json:"disk_size_cap"`
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	NetworkFetches  uint64  `json:"network_fetches"`
	FailedFetches   uint64  `json:"failed_fetches"`
	InFlightFetches int64   `json:"in_flight_fetches"`
}

// loadResult is shared by all callers waiting on the same key
type loadResult struct {
	bitmap *Bitmap // cached bitmap, nil if it did not fit in the cache
	img    image.Image
}

// ImageRepository fetches, decodes and caches network images.
// Lookups go memory cache, disk cache, then network. At most one fetch per key is in flight.
type ImageRepository struct {
	httpClient  HTTPDoer
	maxAttempts int
	dataSizeMax int64
	memCache    *pool_io.LRUCache[string, *Bitmap]
	diskCache   *pool_io.DiskCache // optional
	group       singleflight.Group

	hits           atomic.Uint64
	misses         atomic.Uint64
	networkFetches atomic.Uint64
	failedFetches  atomic.Uint64
	inFlight       atomic.Int64
}

// NewImageRepository creates a new ImageRepository.
// memCacheSizeKiB bounds decoded pixels in the memory cache, diskCache may be nil.
func NewImageRepository(httpClient HTTPDoer, memCacheSizeKiB int64, diskCache *pool_io.DiskCache, maxAttempts int) (*ImageRepository, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if maxAttempts <= 0 {
		maxAttempts = MaxAttemptsDefault
	}

	memCache, err := pool_io.NewLRUCache[string, *Bitmap](float64(memCacheSizeKiB), SizeKiB, func(key string, bitmap *Bitmap) {
		// drop the reference owned by the cache
		bitmap.Free()
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create image memory cache: %w", err)
	}

	return &ImageRepository{
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		dataSizeMax: imageDataSizeMax,
		memCache:    memCache,
		diskCache:   diskCache,
	}, nil
}

// Release drops all cached bitmaps
func (repo *ImageRepository) Release() {
	repo.memCache.Purge()
}

// MaxAttempts returns the number of network attempts per fetch
func (repo *ImageRepository) MaxAttempts() int {
	return repo.maxAttempts
}

// LoadHTTPImage sends a GET and returns the body with its declared length (0 if unknown).
// Transport errors are retried immediately, up to MaxAttempts attempts in total.
// A non-200 status is returned as HTTPStatusError without retry, cancellation returns the context error.
func (repo *ImageRepository) LoadHTTPImage(ctx context.Context, req NetworkImageRequest) (io.ReadCloser, int64, error) {
	logger := log.WithFields(log.Fields{
		"package":  "image",
		"struct":   "ImageRepository",
		"function": "LoadHTTPImage",
	})

	var lastErr error
	for attempt := 1; attempt <= repo.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
		if err != nil {
			return nil, 0, commons.NewInvalidArgumentErrorf("invalid image url %q - %v", req.URL, err)
		}

		for _, header := range req.Headers {
			httpReq.Header.Add(header.Key, header.Value)
		}

		repo.networkFetches.Add(1)
		resp, err := repo.httpClient.Do(httpReq)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, 0, err
			}

			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}

			logger.WithError(err).Debugf("attempt %d/%d to fetch %s failed", attempt, repo.maxAttempts, req.URL)
			lastErr = err
			promCounterForFetchRetries.Inc()
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, commons.NewHTTPStatusError(req.URL, resp.StatusCode)
		}

		contentLength := resp.ContentLength
		if contentLength < 0 {
			contentLength = 0
		}

		return resp.Body, contentLength, nil
	}

	logger.Warnf("giving up on %s after %d attempts", req.URL, repo.maxAttempts)
	repo.failedFetches.Add(1)
	promCounterForFetchFailures.Inc()
	return nil, 0, commons.NewRetriesExhaustedError(req.URL, repo.maxAttempts, lastErr)
}

// LoadImageData returns encoded image bytes from the disk cache or the network
func (repo *ImageRepository) LoadImageData(ctx context.Context, req NetworkImageRequest) ([]byte, error) {
	logger := log.WithFields(log.Fields{
		"package":  "image",
		"struct":   "ImageRepository",
		"function": "LoadImageData",
	})

	key := req.Key()
	if repo.diskCache != nil {
		if entry := repo.diskCache.GetEntry(key); entry != nil {
			data, err := entry.GetData()
			if err == nil {
				promCounterForDiskCacheHits.Inc()
				return data, nil
			}

			logger.WithError(err).Warnf("failed to read disk cache of %s, dropping it", req.URL)
			repo.diskCache.DeleteEntry(key)
		}
	}

	body, _, err := repo.LoadHTTPImage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, repo.dataSizeMax+1))
	if err != nil {
		return nil, xerrors.Errorf("failed to read image %s: %w", req.URL, err)
	}

	if int64(len(data)) > repo.dataSizeMax {
		return nil, xerrors.Errorf("failed to read image %s, larger than %d bytes: %w", req.URL, repo.dataSizeMax, ErrImageTooLarge)
	}

	if repo.diskCache != nil {
		_, err = repo.diskCache.CreateEntry(key, data)
		if err != nil {
			logger.WithError(err).Debugf("failed to put %s in disk cache", req.URL)
		}
	}

	return data, nil
}

// LoadBitmap returns a decoded image with a reference taken for the caller, who must Free it
func (repo *ImageRepository) LoadBitmap(ctx context.Context, req NetworkImageRequest) (*Bitmap, error) {
	key := req.Key()

	if bitmap := repo.useCached(key); bitmap != nil {
		repo.hits.Add(1)
		promCounterForCacheHits.Inc()
		return bitmap, nil
	}

	repo.misses.Add(1)
	promCounterForCacheMisses.Inc()

	// the fetch is shared, so it must outlive the caller who started it
	resultChan := repo.group.DoChan(key, func() (interface{}, error) {
		repo.inFlight.Add(1)
		defer repo.inFlight.Add(-1)

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		return repo.loadAndCache(fetchCtx, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}

		loaded := result.Val.(*loadResult)
		if loaded.bitmap != nil && loaded.bitmap.Use() {
			return loaded.bitmap, nil
		}

		// not cached or evicted already, the caller gets a private bitmap
		return NewBitmap(loaded.img), nil
	}
}

func (repo *ImageRepository) loadAndCache(ctx context.Context, key string, req NetworkImageRequest) (*loadResult, error) {
	if cached, ok := repo.memCache.Peek(key); ok && cached.Usable() {
		return &loadResult{
			bitmap: cached,
			img:    cached.img,
		}, nil
	}

	data, err := repo.LoadImageData(ctx, req)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if repo.diskCache != nil {
			repo.diskCache.DeleteEntry(key)
		}
		return nil, xerrors.Errorf("failed to decode image %s: %w", req.URL, err)
	}

	bitmap := NewBitmap(img)
	if !repo.memCache.Set(key, bitmap) {
		bitmap.Free()
		return &loadResult{
			img: img,
		}, nil
	}

	return &loadResult{
		bitmap: bitmap,
		img:    img,
	}, nil
}

func (repo *ImageRepository) useCached(key string) *Bitmap {
	bitmap, ok := repo.memCache.Get(key)
	if !ok {
		return nil
	}

	if !bitmap.Use() {
		return nil
	}
	return bitmap
}

// GetCached returns a cached bitmap with a reference taken for the caller, nil on a miss.
// It never goes to the network.
func (repo *ImageRepository) GetCached(req NetworkImageRequest) *Bitmap {
	return repo.useCached(req.Key())
}

// Evict drops the image from the memory and disk caches
func (repo *ImageRepository) Evict(req NetworkImageRequest) {
	key := req.Key()
	if bitmap, ok := repo.memCache.Remove(key); ok {
		bitmap.Free()
	}

	if repo.diskCache != nil {
		repo.diskCache.DeleteEntry(key)
	}
}

// Stats returns cache usage
func (repo *ImageRepository) Stats() CacheStats {
	stats := CacheStats{
		Entries:         repo.memCache.Len(),
		SizeKiB:         repo.memCache.Size(),
		MaxSizeKiB:      repo.memCache.MaxSize(),
		Hits:            repo.hits.Load(),
		Misses:          repo.misses.Load(),
		NetworkFetches:  repo.networkFetches.Load(),
		FailedFetches:   repo.failedFetches.Load(),
		InFlightFetches: repo.inFlight.Load(),
	}

	if repo.diskCache != nil {
		stats.DiskEntries = repo.diskCache.GetTotalEntries()
		stats.DiskSizeBytes = repo.diskCache.GetTotalEntrySize()
		stats.DiskSizeCap = repo.diskCache.GetSizeCap()
	}

	return stats
}
