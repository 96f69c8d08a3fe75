package image

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirareader/mira-pool/commons"
	pool_io "github.com/mirareader/mira-pool/service/io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDoer struct {
	calls atomic.Int32
	err   error
}

func (doer *failingDoer) Do(req *http.Request) (*http.Response, error) {
	doer.calls.Add(1)
	return nil, doer.err
}

func makePNG(t *testing.T, width int, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	buffer := bytes.Buffer{}
	require.NoError(t, png.Encode(&buffer, img))
	return buffer.Bytes()
}

func newImageServer(t *testing.T, data []byte, requests *atomic.Int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/missing.png":
			w.WriteHeader(http.StatusNotFound)
		case "/referer.png":
			if r.Header.Get("Referer") != "https://example.com" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Write(data)
		default:
			w.Write(data)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoadHTTPImageRetryCeiling(t *testing.T) {
	doer := &failingDoer{err: errors.New("connection reset")}
	repo, err := NewImageRepository(doer, 1024, nil, 0)
	require.NoError(t, err)

	body, length, err := repo.LoadHTTPImage(context.Background(), NetworkImageRequest{URL: "http://example.invalid/1.png"})
	assert.Nil(t, body)
	assert.Equal(t, int64(0), length)
	assert.True(t, commons.IsRetriesExhaustedError(err))
	assert.Equal(t, int32(10), doer.calls.Load())
	assert.Equal(t, uint64(1), repo.Stats().FailedFetches)
}

func TestLoadHTTPImageCancellationIsNotRetried(t *testing.T) {
	doer := &failingDoer{err: context.Canceled}
	repo, err := NewImageRepository(doer, 1024, nil, 0)
	require.NoError(t, err)

	body, length, err := repo.LoadHTTPImage(context.Background(), NetworkImageRequest{URL: "http://example.invalid/1.png"})
	assert.Nil(t, body)
	assert.Equal(t, int64(0), length)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), doer.calls.Load())
}

func TestLoadHTTPImageCanceledContext(t *testing.T) {
	doer := &failingDoer{err: errors.New("unreachable")}
	repo, err := NewImageRepository(doer, 1024, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = repo.LoadHTTPImage(ctx, NetworkImageRequest{URL: "http://example.invalid/1.png"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestLoadHTTPImageStatus(t *testing.T) {
	var requests atomic.Int32
	data := makePNG(t, 4, 4)
	server := newImageServer(t, data, &requests)

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)

	body, length, err := repo.LoadHTTPImage(context.Background(), NetworkImageRequest{URL: server.URL + "/ok.png"})
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, int64(len(data)), length)

	_, _, err = repo.LoadHTTPImage(context.Background(), NetworkImageRequest{URL: server.URL + "/missing.png"})
	assert.True(t, commons.IsHTTPStatusError(err))
	assert.Equal(t, int32(2), requests.Load())

	// headers are sent
	req := NewNetworkImageRequest(server.URL+"/referer.png", map[string]string{"Referer": "https://example.com"})
	body, _, err = repo.LoadHTTPImage(context.Background(), req)
	require.NoError(t, err)
	body.Close()
}

func TestLoadBitmapCaches(t *testing.T) {
	var requests atomic.Int32
	server := newImageServer(t, makePNG(t, 32, 32), &requests)

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)

	req := NetworkImageRequest{URL: server.URL + "/1.png"}
	assert.Nil(t, repo.GetCached(req))

	bitmap, err := repo.LoadBitmap(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 32, bitmap.Width())
	assert.Equal(t, 2, bitmap.References()) // cache and caller

	// a different instance of the same request hits the cache
	again, err := repo.LoadBitmap(context.Background(), NetworkImageRequest{URL: server.URL + "/1.png"})
	require.NoError(t, err)
	assert.Same(t, bitmap, again)
	assert.Equal(t, int32(1), requests.Load())

	cached := repo.GetCached(req)
	require.NotNil(t, cached)
	cached.Free()
	again.Free()
	bitmap.Free()

	stats := repo.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, float64(4), stats.SizeKiB)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Hits)

	// eviction drops the cache reference
	repo.Evict(req)
	assert.False(t, bitmap.Usable())
	assert.Nil(t, repo.GetCached(req))
}

func TestLoadBitmapSingleFetchPerKey(t *testing.T) {
	var requests atomic.Int32
	server := newImageServer(t, makePNG(t, 8, 8), &requests)

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bitmap, err := repo.LoadBitmap(context.Background(), NetworkImageRequest{URL: server.URL + "/same.png"})
			if assert.NoError(t, err) {
				bitmap.Free()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), requests.Load())
}

func TestLoadBitmapOversizedIsNotCached(t *testing.T) {
	var requests atomic.Int32
	server := newImageServer(t, makePNG(t, 64, 64), &requests) // 16 KiB

	repo, err := NewImageRepository(server.Client(), 8, nil, 0)
	require.NoError(t, err)

	bitmap, err := repo.LoadBitmap(context.Background(), NetworkImageRequest{URL: server.URL + "/big.png"})
	require.NoError(t, err)
	assert.True(t, bitmap.Usable())
	assert.Equal(t, 1, bitmap.References())
	assert.Equal(t, 0, repo.Stats().Entries)

	bitmap.Free()
	assert.False(t, bitmap.Usable())
}

func TestLoadBitmapFromDiskCache(t *testing.T) {
	var requests atomic.Int32
	server := newImageServer(t, makePNG(t, 8, 8), &requests)

	diskCache, err := pool_io.NewDiskCache(1024*1024, t.TempDir())
	require.NoError(t, err)

	repo, err := NewImageRepository(server.Client(), 1024, diskCache, 0)
	require.NoError(t, err)

	req := NetworkImageRequest{URL: server.URL + "/disk.png"}
	bitmap, err := repo.LoadBitmap(context.Background(), req)
	require.NoError(t, err)
	bitmap.Free()
	assert.Equal(t, 1, repo.Stats().DiskEntries)

	// memory eviction keeps the disk copy
	repo.memCache.Purge()

	bitmap, err = repo.LoadBitmap(context.Background(), req)
	require.NoError(t, err)
	bitmap.Free()
	assert.Equal(t, int32(1), requests.Load())
}

func TestLoadBitmapDecodeFailure(t *testing.T) {
	var requests atomic.Int32
	server := newImageServer(t, []byte("not an image"), &requests)

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)

	bitmap, err := repo.LoadBitmap(context.Background(), NetworkImageRequest{URL: server.URL + "/bad.png"})
	assert.Error(t, err)
	assert.Nil(t, bitmap)
}

func TestLoadBitmapSharedFetchOutlivesCanceledCaller(t *testing.T) {
	var requests atomic.Int32
	data := makePNG(t, 8, 8)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)

	req := NetworkImageRequest{URL: server.URL + "/slow.png"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errChanA := make(chan error, 1)
	go func() {
		bitmap, err := repo.LoadBitmap(ctxA, req)
		if bitmap != nil {
			bitmap.Free()
		}
		errChanA <- err
	}()

	require.Eventually(t, func() bool {
		return requests.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	type loaded struct {
		bitmap *Bitmap
		err    error
	}
	resultChanB := make(chan loaded, 1)
	go func() {
		bitmap, err := repo.LoadBitmap(context.Background(), req)
		resultChanB <- loaded{bitmap: bitmap, err: err}
	}()

	// give the second caller time to join the fetch
	time.Sleep(50 * time.Millisecond)
	cancelA()
	assert.ErrorIs(t, <-errChanA, context.Canceled)

	close(release)

	resultB := <-resultChanB
	require.NoError(t, resultB.err)
	require.NotNil(t, resultB.bitmap)
	assert.Equal(t, 8, resultB.bitmap.Width())
	resultB.bitmap.Free()

	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, 1, repo.Stats().Entries)
}

func TestLoadImageDataTooLarge(t *testing.T) {
	var requests atomic.Int32
	data := makePNG(t, 8, 8)
	server := newImageServer(t, data, &requests)

	repo, err := NewImageRepository(server.Client(), 1024, nil, 0)
	require.NoError(t, err)
	repo.dataSizeMax = int64(len(data)) - 1

	_, err = repo.LoadImageData(context.Background(), NetworkImageRequest{URL: server.URL + "/big.png"})
	assert.ErrorIs(t, err, ErrImageTooLarge)

	repo.dataSizeMax = int64(len(data))
	loadedData, err := repo.LoadImageData(context.Background(), NetworkImageRequest{URL: server.URL + "/big.png"})
	require.NoError(t, err)
	assert.Equal(t, data, loadedData)
}
