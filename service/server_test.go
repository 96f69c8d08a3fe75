package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/api"
	"github.com/mirareader/mira-pool/service/reader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	testClientID string = "test-client"
)

// testBackend fakes the manga API and the image host
type testBackend struct {
	server   *httptest.Server
	failing  atomic.Bool
	imgCalls atomic.Int32
}

func makeTestPNG(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	buffer := bytes.Buffer{}
	require.NoError(t, png.Encode(&buffer, img))
	return buffer.Bytes()
}

func newTestBackend(t *testing.T) *testBackend {
	backend := &testBackend{}
	pngData := makeTestPNG(t)

	writeJSON := func(w http.ResponseWriter, body string) {
		if backend.failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/src", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":[{"id":"m1","title":"One"},{"id":"m2","title":"Two"}]}`)
	})
	mux.HandleFunc("/api/src/m1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fmt.Sprintf(`{"data":{"id":"m1","title":"One","cover":"%s/img/cover.png","authors":["someone"]}}`, backend.server.URL))
	})
	mux.HandleFunc("/api/src/m1/chapters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":[{"id":"c1","index":0,"title":"Ch 1"},{"id":"c2","index":1,"title":"Ch 2"}]}`)
	})
	mux.HandleFunc("/api/src/m1/chapters/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fmt.Sprintf(`{"data":{"pages":[{"url":"%[1]s/img/p0.png"},{"url":"%[1]s/img/p1.png","headers":{"Referer":"mira"}}]}}`, backend.server.URL))
	})
	mux.HandleFunc("/api/src/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"data":null,"error":"not found"}`)
	})
	mux.HandleFunc("/api/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/img/missing.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		backend.imgCalls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	})

	backend.server = httptest.NewServer(mux)
	t.Cleanup(backend.server.Close)
	return backend
}

func newTestConfig(t *testing.T, backend *testBackend) *commons.Config {
	config := commons.NewDefaultConfig()
	config.DataRootPath = t.TempDir()
	config.APIBaseURL = backend.server.URL + "/api"
	config.MetadataCacheTimeout = 0
	config.DiskImageCacheSizeMax = 1024 * 1024
	config.ImageCacheSizeMax = 1024
	config.DownloadPollInterval = 10 * time.Millisecond
	config.HTTPClientTimeout = 5 * time.Second
	config.ClientSessionTimeout = time.Minute
	return config
}

func newTestPoolServer(t *testing.T, backend *testBackend) *PoolServer {
	poolServer, err := NewPoolServer(newTestConfig(t, backend))
	require.NoError(t, err)

	poolServer.Start()
	t.Cleanup(poolServer.Release)
	return poolServer
}

// newTestClient serves poolServer over an in-memory gRPC connection
func newTestClient(t *testing.T, poolServer *PoolServer) *api.MiraPoolAPIClient {
	listener := bufconn.Listen(1024 * 1024)

	statHandler := NewPoolServiceStatHandler(poolServer)
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(api.Codec()),
		grpc.StatsHandler(statHandler),
		grpc.UnaryInterceptor(statHandler.UnaryInterceptor),
	)
	api.RegisterMiraPoolAPIServer(grpcServer, poolServer)

	go grpcServer.Serve(listener)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(api.Codec())),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})

	return api.NewMiraPoolAPIClient(conn)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, api.ClientIDMetadataKey, testClientID)
}

func TestPoolServerSearchAndBookmark(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	searched, err := client.SearchManga(ctx, &api.SearchMangaRequest{SourceID: "src"})
	require.NoError(t, err)
	require.Len(t, searched.Previews, 2)
	assert.False(t, searched.Previews[0].Bookmarked)
	assert.False(t, searched.Previews[1].Bookmarked)

	bookmarked, err := client.Bookmark(ctx, &api.BookmarkRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	require.NotNil(t, bookmarked.Bookmark)
	assert.Equal(t, "One", bookmarked.Bookmark.Title)
	assert.Equal(t, []string{"someone"}, bookmarked.Bookmark.Authors)
	assert.True(t, poolServer.GetMediaStorage().HasCover("src", "m1"))

	searched, err = client.SearchManga(ctx, &api.SearchMangaRequest{SourceID: "src"})
	require.NoError(t, err)
	require.Len(t, searched.Previews, 2)
	assert.Equal(t, "m1", searched.Previews[0].MangaID)
	assert.True(t, searched.Previews[0].Bookmarked)
	assert.False(t, searched.Previews[1].Bookmarked)

	manga, err := client.GetManga(ctx, &api.GetMangaRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	require.NotNil(t, manga.Manga)
	assert.True(t, manga.Bookmarked)

	listed, err := client.ListBookmarks(ctx, &api.ListBookmarksRequest{})
	require.NoError(t, err)
	require.Len(t, listed.Bookmarks, 1)

	removed, err := client.RemoveBookmark(ctx, &api.RemoveBookmarkRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	assert.True(t, removed.Removed)

	removed, err = client.RemoveBookmark(ctx, &api.RemoveBookmarkRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	assert.False(t, removed.Removed)
}

func TestPoolServerRemoteFailuresResolveEmpty(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	searched, err := client.SearchManga(ctx, &api.SearchMangaRequest{SourceID: "broken"})
	require.NoError(t, err)
	assert.Empty(t, searched.Previews)

	manga, err := client.GetManga(ctx, &api.GetMangaRequest{SourceID: "broken", MangaID: "m1"})
	require.NoError(t, err)
	assert.Nil(t, manga.Manga)

	manga, err = client.GetManga(ctx, &api.GetMangaRequest{SourceID: "src", MangaID: "gone"})
	require.NoError(t, err)
	assert.Nil(t, manga.Manga)

	pages, err := client.GetChapterPages(ctx, &api.GetChapterPagesRequest{SourceID: "broken", MangaID: "m1", ChapterID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, pages.Items)

	chapters, err := client.GetChapters(ctx, &api.GetChaptersRequest{SourceID: "broken", MangaID: "m1"})
	require.NoError(t, err)
	assert.Empty(t, chapters.Chapters)

	bookmarked, err := client.Bookmark(ctx, &api.BookmarkRequest{SourceID: "broken", MangaID: "m1"})
	require.NoError(t, err)
	assert.Nil(t, bookmarked.Bookmark)
}

func TestPoolServerChaptersOfBookmarkStayAvailableOffline(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	_, err := client.Bookmark(ctx, &api.BookmarkRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)

	_, err = client.MarkChapterAsRead(ctx, &api.MarkChapterAsReadRequest{SourceID: "src", MangaID: "m1", ChapterID: "c1", Read: true})
	require.NoError(t, err)

	chapters, err := client.GetChapters(ctx, &api.GetChaptersRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	require.Len(t, chapters.Chapters, 2)
	assert.True(t, chapters.Chapters[0].Read)
	assert.False(t, chapters.Chapters[1].Read)
	assert.Equal(t, "NONE", chapters.Chapters[0].DownloadState)

	backend.failing.Store(true)

	chapters, err = client.GetChapters(ctx, &api.GetChaptersRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	require.Len(t, chapters.Chapters, 2)
	assert.Equal(t, "c1", chapters.Chapters[0].Chapter.ID)
	assert.True(t, chapters.Chapters[0].Read)
}

func TestPoolServerDownloadChapter(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	job := &api.DownloadJob{SourceID: "src", MangaID: "m1", ChapterID: "c1", ChapterIndex: 0, Name: "Ch 1"}

	pages, err := client.GetChapterPages(ctx, &api.GetChapterPagesRequest{SourceID: "src", MangaID: "m1", ChapterID: "c1", HasNext: true})
	require.NoError(t, err)
	require.Len(t, pages.Items, 3)
	assert.Equal(t, reader.ItemKindNetwork, pages.Items[0].Kind)
	require.NotNil(t, pages.Items[1].Request)
	assert.Equal(t, "Referer", pages.Items[1].Request.Headers[0].Key)
	assert.Equal(t, reader.ItemKindDivider, pages.Items[2].Kind)
	assert.True(t, pages.Items[2].HasNext)

	enqueued, err := client.EnqueueDownload(ctx, &api.EnqueueDownloadRequest{Job: job})
	require.NoError(t, err)
	assert.True(t, enqueued.Enqueued)

	require.Eventually(t, func() bool {
		state, err := client.GetDownloadState(ctx, &api.GetDownloadStateRequest{Job: job})
		return err == nil && state.State == "DOWNLOADED"
	}, 5*time.Second, 10*time.Millisecond)

	listed, err := client.ListDownloads(ctx, &api.ListDownloadsRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.Jobs)

	// downloaded chapters are not queued again
	enqueued, err = client.EnqueueDownload(ctx, &api.EnqueueDownloadRequest{Job: job})
	require.NoError(t, err)
	assert.False(t, enqueued.Enqueued)

	pages, err = client.GetChapterPages(ctx, &api.GetChapterPagesRequest{SourceID: "src", MangaID: "m1", ChapterID: "c1"})
	require.NoError(t, err)
	require.Len(t, pages.Items, 3)
	assert.Equal(t, reader.ItemKindLocal, pages.Items[0].Kind)
	assert.Equal(t, reader.ItemKindLocal, pages.Items[1].Kind)
	assert.NotEmpty(t, pages.Items[0].Path)

	deleted, err := client.DeleteChapter(ctx, &api.DeleteChapterRequest{Job: job})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	state, err := client.GetDownloadState(ctx, &api.GetDownloadStateRequest{Job: job})
	require.NoError(t, err)
	assert.Equal(t, "NONE", state.State)
}

func TestPoolServerInvalidArguments(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	_, err := client.EnqueueDownload(ctx, &api.EnqueueDownloadRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.True(t, commons.IsInvalidArgumentError(commons.StatusToError(err)))

	_, err = client.GetManga(ctx, &api.GetMangaRequest{SourceID: "src"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.MarkChapterAsRead(ctx, &api.MarkChapterAsReadRequest{SourceID: "src", MangaID: "m9", ChapterID: "c1", Read: true})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPoolServerCategories(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	first, err := client.CreateCategory(ctx, &api.CreateCategoryRequest{Name: "reading"})
	require.NoError(t, err)
	second, err := client.CreateCategory(ctx, &api.CreateCategoryRequest{Name: "done"})
	require.NoError(t, err)

	_, err = client.MoveCategory(ctx, &api.MoveCategoryRequest{ID: second.Category.ID, Position: 0})
	require.NoError(t, err)

	_, err = client.RenameCategory(ctx, &api.RenameCategoryRequest{ID: first.Category.ID, Name: "later"})
	require.NoError(t, err)

	listed, err := client.ListCategories(ctx, &api.ListCategoriesRequest{})
	require.NoError(t, err)
	require.Len(t, listed.Categories, 2)
	assert.Equal(t, "done", listed.Categories[0].Name)
	assert.Equal(t, "later", listed.Categories[1].Name)

	_, err = client.Bookmark(ctx, &api.BookmarkRequest{SourceID: "src", MangaID: "m1", CategoryIDs: []int64{first.Category.ID}})
	require.NoError(t, err)

	inCategory, err := client.ListBookmarks(ctx, &api.ListBookmarksRequest{CategoryID: first.Category.ID})
	require.NoError(t, err)
	assert.Len(t, inCategory.Bookmarks, 1)

	_, err = client.SetBookmarkCategories(ctx, &api.SetBookmarkCategoriesRequest{SourceID: "src", MangaID: "m1", CategoryIDs: []int64{second.Category.ID}})
	require.NoError(t, err)

	inCategory, err = client.ListBookmarks(ctx, &api.ListBookmarksRequest{CategoryID: first.Category.ID})
	require.NoError(t, err)
	assert.Empty(t, inCategory.Bookmarks)

	_, err = client.DeleteCategory(ctx, &api.DeleteCategoryRequest{ID: second.Category.ID})
	require.NoError(t, err)

	_, err = client.RenameCategory(ctx, &api.RenameCategoryRequest{ID: second.Category.ID, Name: "x"})
	require.Error(t, err)
	assert.True(t, commons.IsCategoryNotFoundError(commons.StatusToError(err)))
}

func TestPoolServerCacheStats(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	_, err := client.UpdateReadInfo(ctx, &api.UpdateReadInfoRequest{SourceID: "src", MangaID: "m1", ChapterID: "c1", Page: 3})
	require.Error(t, err)

	stats, err := client.GetCacheStats(ctx, &api.GetCacheStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.LiveClients)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 0, stats.PendingDownloads)

	session := poolServer.GetSessionManager().GetSession(testClientID)
	require.NotNil(t, session)
	assert.Equal(t, int64(2), session.GetRequests())

	progress, err := client.GetProgress(ctx, &api.GetProgressRequest{})
	require.NoError(t, err)
	assert.Empty(t, progress.ChapterID)
}

func TestPoolServerRemoveBookmarkDeletesDownloads(t *testing.T) {
	backend := newTestBackend(t)
	poolServer := newTestPoolServer(t, backend)
	client := newTestClient(t, poolServer)
	ctx := testContext(t)

	_, err := client.Bookmark(ctx, &api.BookmarkRequest{SourceID: "src", MangaID: "m1"})
	require.NoError(t, err)
	require.True(t, poolServer.GetMediaStorage().HasCover("src", "m1"))

	job := &api.DownloadJob{SourceID: "src", MangaID: "m1", ChapterID: "c1", ChapterIndex: 0, Name: "Ch 1"}
	_, err = client.EnqueueDownload(ctx, &api.EnqueueDownloadRequest{Job: job})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := client.GetDownloadState(ctx, &api.GetDownloadStateRequest{Job: job})
		return err == nil && state.State == "DOWNLOADED"
	}, 5*time.Second, 10*time.Millisecond)

	removed, err := client.RemoveBookmark(ctx, &api.RemoveBookmarkRequest{SourceID: "src", MangaID: "m1", DeleteDownloads: true})
	require.NoError(t, err)
	assert.True(t, removed.Removed)

	state, err := client.GetDownloadState(ctx, &api.GetDownloadStateRequest{Job: job})
	require.NoError(t, err)
	assert.Equal(t, "NONE", state.State)
	assert.False(t, poolServer.GetMediaStorage().HasCover("src", "m1"))
}
