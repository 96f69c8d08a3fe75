package client

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/api"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

type fakePoolServer struct {
	api.UnimplementedMiraPoolAPIServer

	getMangaCalls       atomic.Int32
	listCategoriesCalls atomic.Int32
	lastClientID        atomic.Value
}

func (server *fakePoolServer) recordClient(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	if values := md.Get(api.ClientIDMetadataKey); len(values) > 0 {
		server.lastClientID.Store(values[0])
	}
}

func (server *fakePoolServer) GetManga(ctx context.Context, request *api.GetMangaRequest) (*api.GetMangaResponse, error) {
	server.recordClient(ctx)
	server.getMangaCalls.Add(1)

	if request.MangaID == "gone" {
		return &api.GetMangaResponse{}, nil
	}

	return &api.GetMangaResponse{
		Manga: &remote.Manga{
			ID:       request.MangaID,
			SourceID: request.SourceID,
			Title:    "Title of " + request.MangaID,
		},
		Bookmarked: true,
	}, nil
}

func (server *fakePoolServer) RemoveBookmark(ctx context.Context, request *api.RemoveBookmarkRequest) (*api.RemoveBookmarkResponse, error) {
	return &api.RemoveBookmarkResponse{Removed: true}, nil
}

func (server *fakePoolServer) ListCategories(ctx context.Context, request *api.ListCategoriesRequest) (*api.ListCategoriesResponse, error) {
	server.listCategoriesCalls.Add(1)
	return &api.ListCategoriesResponse{
		Categories: []library.Category{{ID: 1, Name: "reading", Position: 0}},
	}, nil
}

func (server *fakePoolServer) CreateCategory(ctx context.Context, request *api.CreateCategoryRequest) (*api.CreateCategoryResponse, error) {
	if len(request.Name) == 0 {
		return nil, commons.ErrorToStatus(commons.NewInvalidArgumentErrorf("category name must not be empty"))
	}
	return &api.CreateCategoryResponse{
		Category: &library.Category{ID: 2, Name: request.Name, Position: 1},
	}, nil
}

func (server *fakePoolServer) MarkChapterAsRead(ctx context.Context, request *api.MarkChapterAsReadRequest) (*api.Empty, error) {
	return nil, commons.ErrorToStatus(commons.NewChapterNotFoundError(request.SourceID, request.MangaID, request.ChapterID))
}

func newTestClient(t *testing.T) (*PoolServiceClient, *fakePoolServer) {
	listener := bufconn.Listen(1024 * 1024)
	fake := &fakePoolServer{}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(api.Codec()))
	api.RegisterMiraPoolAPIServer(grpcServer, fake)
	go grpcServer.Serve(listener)
	t.Cleanup(grpcServer.Stop)

	client := NewPoolServiceClient("tcp://bufnet", 5*time.Second, "client-1")
	err := client.Connect(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)

	return client, fake
}

func TestMakeGRPCTarget(t *testing.T) {
	target, err := makeGRPCTarget("unix:///tmp/mira.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix:///tmp/mira.sock", target)

	target, err = makeGRPCTarget("tcp://localhost:12020")
	require.NoError(t, err)
	assert.Equal(t, "passthrough:///localhost:12020", target)

	target, err = makeGRPCTarget(":12020")
	require.NoError(t, err)
	assert.Equal(t, "passthrough:///:12020", target)

	_, err = makeGRPCTarget("http://localhost")
	assert.Error(t, err)
}

func TestClientNotConnected(t *testing.T) {
	client := NewPoolServiceClient("tcp://localhost:1", time.Second, "")
	assert.NotEmpty(t, client.GetID())
	assert.False(t, client.IsConnected())

	_, err := client.ListDownloads()
	assert.ErrorIs(t, err, errNotConnected)
}

func TestClientGetMangaIsCached(t *testing.T) {
	client, fake := newTestClient(t)

	manga, bookmarked, err := client.GetManga("src", "m1")
	require.NoError(t, err)
	require.NotNil(t, manga)
	assert.True(t, bookmarked)
	assert.Equal(t, "Title of m1", manga.Title)
	assert.Equal(t, "client-1", fake.lastClientID.Load())

	_, _, err = client.GetManga("src", "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.getMangaCalls.Load())

	// bookmark changes invalidate the entry
	removed, err := client.RemoveBookmark("src", "m1", false)
	require.NoError(t, err)
	assert.True(t, removed)

	_, _, err = client.GetManga("src", "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.getMangaCalls.Load())
}

func TestClientGetMangaMissIsNotCached(t *testing.T) {
	client, fake := newTestClient(t)

	manga, _, err := client.GetManga("src", "gone")
	require.NoError(t, err)
	assert.Nil(t, manga)

	_, _, err = client.GetManga("src", "gone")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.getMangaCalls.Load())
}

func TestClientCategories(t *testing.T) {
	client, fake := newTestClient(t)

	categories, err := client.ListCategories()
	require.NoError(t, err)
	require.Len(t, categories, 1)

	_, err = client.ListCategories()
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.listCategoriesCalls.Load())

	category, err := client.CreateCategory("done")
	require.NoError(t, err)
	assert.Equal(t, "done", category.Name)

	_, err = client.ListCategories()
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.listCategoriesCalls.Load())

	_, err = client.CreateCategory("")
	require.Error(t, err)
	assert.True(t, commons.IsInvalidArgumentError(err))
}

func TestClientErrorConversion(t *testing.T) {
	client, _ := newTestClient(t)

	err := client.MarkChapterAsRead("src", "m1", "c9", true)
	require.Error(t, err)
	assert.True(t, commons.IsChapterNotFoundError(err))

	// not implemented by the fake
	_, err = client.GetCacheStats()
	require.Error(t, err)
	assert.True(t, client.IsConnected())
}
