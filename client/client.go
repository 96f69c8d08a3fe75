package client

import (
	"context"
	"strings"
	"time"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/api"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/reader"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/mirareader/mira-pool/utils"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	messageLengthMax int = 8 * 1024 * 1024 // 8MB

	localMetadataCacheTimeout time.Duration = 1 * time.Minute
)

var (
	errNotConnected = xerrors.New("not connected to pool service")
)

// PoolServiceClient is a client of pool service
type PoolServiceClient struct {
	id               string
	address          string // endpoint, unix:// or tcp://
	operationTimeout time.Duration
	grpcConnection   *grpc.ClientConn
	apiClient        *api.MiraPoolAPIClient
	metadataCache    *MetadataCache
	connected        bool
}

// NewPoolServiceClient creates a new pool service client
func NewPoolServiceClient(address string, operationTimeout time.Duration, clientID string) *PoolServiceClient {
	if len(clientID) == 0 {
		clientID = xid.New().String()
	}

	if operationTimeout <= 0 {
		operationTimeout = commons.OperationTimeoutDefault
	}

	return &PoolServiceClient{
		id:               clientID,
		address:          address,
		operationTimeout: operationTimeout,
		grpcConnection:   nil,
		metadataCache:    NewMetadataCache(localMetadataCacheTimeout, localMetadataCacheTimeout),
		connected:        false,
	}
}

// GetID returns client id
func (client *PoolServiceClient) GetID() string {
	return client.id
}

// IsConnected returns true if connected
func (client *PoolServiceClient) IsConnected() bool {
	return client.connected
}

func makeGRPCTarget(endpoint string) (string, error) {
	scheme, addr, err := commons.ParsePoolServiceEndpoint(endpoint)
	if err != nil {
		return "", err
	}

	if scheme == "unix" {
		if strings.HasPrefix(addr, "/") {
			return "unix://" + addr, nil
		}
		return "unix:" + addr, nil
	}

	return "passthrough:///" + addr, nil
}

// Connect connects to pool service, extra options are appended to the default dial options
func (client *PoolServiceClient) Connect(extraOptions ...grpc.DialOption) error {
	logger := log.WithFields(log.Fields{
		"package":  "client",
		"struct":   "PoolServiceClient",
		"function": "Connect",
	})

	defer utils.StackTraceFromPanic(logger)

	client.connected = false

	target, err := makeGRPCTarget(client.address)
	if err != nil {
		return err
	}

	options := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(api.Codec()),
			grpc.MaxCallRecvMsgSize(messageLengthMax),
		),
	}
	options = append(options, extraOptions...)

	conn, err := grpc.NewClient(target, options...)
	if err != nil {
		grpcErr := xerrors.Errorf("failed to dial to %q: %w", client.address, err)
		logger.Errorf("%+v", grpcErr)
		return grpcErr
	}

	client.grpcConnection = conn
	client.apiClient = api.NewMiraPoolAPIClient(conn)
	client.connected = true
	return nil
}

// Disconnect disconnects connection from pool service
func (client *PoolServiceClient) Disconnect() {
	if client.apiClient != nil {
		client.apiClient = nil
	}

	if client.grpcConnection != nil {
		client.grpcConnection.Close()
		client.grpcConnection = nil
	}

	client.connected = false
	client.clearCache()
}

// disconnected unintentionally
func (client *PoolServiceClient) disconnected() {
	client.connected = false
	client.clearCache()
}

func (client *PoolServiceClient) clearCache() {
	client.metadataCache.ClearMangaCache()
	client.metadataCache.ClearCategoriesCache()
}

func (client *PoolServiceClient) getContextWithDeadline() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), client.operationTimeout)
	return metadata.AppendToOutgoingContext(ctx, api.ClientIDMetadataKey, client.id), cancel
}

// call runs a unary call with the client deadline, errors are converted back to local error types
func call[Resp any](client *PoolServiceClient, function string, invoke func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*Resp, error)) (*Resp, error) {
	logger := log.WithFields(log.Fields{
		"package":  "client",
		"struct":   "PoolServiceClient",
		"function": function,
	})

	defer utils.StackTraceFromPanic(logger)

	if !client.connected || client.apiClient == nil {
		return nil, errNotConnected
	}

	ctx, cancel := client.getContextWithDeadline()
	defer cancel()

	response, err := invoke(ctx, client.apiClient)
	if err != nil {
		if commons.IsDisconnectedError(err) {
			client.disconnected()
		}

		logger.Errorf("%+v", err)
		return nil, commons.StatusToError(err)
	}

	return response, nil
}

// EnqueueDownload queues a chapter download, returns false if it is queued or downloaded already
func (client *PoolServiceClient) EnqueueDownload(job *api.DownloadJob) (bool, error) {
	response, err := call(client, "EnqueueDownload", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.EnqueueDownloadResponse, error) {
		return apiClient.EnqueueDownload(ctx, &api.EnqueueDownloadRequest{Job: job})
	})
	if err != nil {
		return false, err
	}
	return response.Enqueued, nil
}

// CancelDownload cancels a queued or running download
func (client *PoolServiceClient) CancelDownload(sourceID string, mangaID string, chapterID string) (bool, error) {
	response, err := call(client, "CancelDownload", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.CancelDownloadResponse, error) {
		return apiClient.CancelDownload(ctx, &api.CancelDownloadRequest{
			SourceID:  sourceID,
			MangaID:   mangaID,
			ChapterID: chapterID,
		})
	})
	if err != nil {
		return false, err
	}
	return response.Canceled, nil
}

// DeleteChapter cancels the download and removes downloaded pages
func (client *PoolServiceClient) DeleteChapter(job *api.DownloadJob) (bool, error) {
	response, err := call(client, "DeleteChapter", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.DeleteChapterResponse, error) {
		return apiClient.DeleteChapter(ctx, &api.DeleteChapterRequest{Job: job})
	})
	if err != nil {
		return false, err
	}
	return response.Deleted, nil
}

// GetDownloadState returns one of NONE, PENDING, DOWNLOADING and DOWNLOADED
func (client *PoolServiceClient) GetDownloadState(job *api.DownloadJob) (string, error) {
	response, err := call(client, "GetDownloadState", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetDownloadStateResponse, error) {
		return apiClient.GetDownloadState(ctx, &api.GetDownloadStateRequest{Job: job})
	})
	if err != nil {
		return "", err
	}
	return response.State, nil
}

// ListDownloads returns queued downloads in order
func (client *PoolServiceClient) ListDownloads() ([]*api.DownloadJob, error) {
	response, err := call(client, "ListDownloads", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.ListDownloadsResponse, error) {
		return apiClient.ListDownloads(ctx, &api.ListDownloadsRequest{})
	})
	if err != nil {
		return nil, err
	}
	return response.Jobs, nil
}

// GetProgress returns progress of the running download
func (client *PoolServiceClient) GetProgress() (*api.GetProgressResponse, error) {
	return call(client, "GetProgress", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetProgressResponse, error) {
		return apiClient.GetProgress(ctx, &api.GetProgressRequest{})
	})
}

// GetChapterPages returns reader items of a chapter
func (client *PoolServiceClient) GetChapterPages(sourceID string, mangaID string, chapterID string, chapterIndex int, hasNext bool) ([]reader.ItemView, error) {
	response, err := call(client, "GetChapterPages", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetChapterPagesResponse, error) {
		return apiClient.GetChapterPages(ctx, &api.GetChapterPagesRequest{
			SourceID:     sourceID,
			MangaID:      mangaID,
			ChapterID:    chapterID,
			ChapterIndex: chapterIndex,
			HasNext:      hasNext,
		})
	})
	if err != nil {
		return nil, err
	}
	return response.Items, nil
}

// SearchManga searches manga of a source
func (client *PoolServiceClient) SearchManga(sourceID string, query string, page int) ([]reader.PreviewView, error) {
	response, err := call(client, "SearchManga", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.SearchMangaResponse, error) {
		return apiClient.SearchManga(ctx, &api.SearchMangaRequest{
			SourceID: sourceID,
			Query:    query,
			Page:     page,
		})
	})
	if err != nil {
		return nil, err
	}
	return response.Previews, nil
}

// GetManga returns manga metadata and whether it is bookmarked. Manga is nil if the API has no data.
func (client *PoolServiceClient) GetManga(sourceID string, mangaID string) (*remote.Manga, bool, error) {
	if manga, bookmarked, ok := client.metadataCache.GetMangaCache(sourceID, mangaID); ok {
		return manga, bookmarked, nil
	}

	response, err := call(client, "GetManga", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetMangaResponse, error) {
		return apiClient.GetManga(ctx, &api.GetMangaRequest{
			SourceID: sourceID,
			MangaID:  mangaID,
		})
	})
	if err != nil {
		return nil, false, err
	}

	// misses are not cached, the API may recover
	if response.Manga != nil {
		client.metadataCache.AddMangaCache(sourceID, mangaID, response.Manga, response.Bookmarked)
	}
	return response.Manga, response.Bookmarked, nil
}

// GetChapters returns chapters with read flags and download states
func (client *PoolServiceClient) GetChapters(sourceID string, mangaID string) ([]api.ChapterInfo, error) {
	response, err := call(client, "GetChapters", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetChaptersResponse, error) {
		return apiClient.GetChapters(ctx, &api.GetChaptersRequest{
			SourceID: sourceID,
			MangaID:  mangaID,
		})
	})
	if err != nil {
		return nil, err
	}
	return response.Chapters, nil
}

// Bookmark adds a manga to the library, returns nil if the API has no data for it
func (client *PoolServiceClient) Bookmark(sourceID string, mangaID string, categoryIDs []int64) (*library.Bookmark, error) {
	client.metadataCache.RemoveMangaCache(sourceID, mangaID)

	response, err := call(client, "Bookmark", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.BookmarkResponse, error) {
		return apiClient.Bookmark(ctx, &api.BookmarkRequest{
			SourceID:    sourceID,
			MangaID:     mangaID,
			CategoryIDs: categoryIDs,
		})
	})
	if err != nil {
		return nil, err
	}
	return response.Bookmark, nil
}

// RemoveBookmark removes a manga from the library, deleteDownloads also deletes its stored pages
func (client *PoolServiceClient) RemoveBookmark(sourceID string, mangaID string, deleteDownloads bool) (bool, error) {
	client.metadataCache.RemoveMangaCache(sourceID, mangaID)

	response, err := call(client, "RemoveBookmark", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.RemoveBookmarkResponse, error) {
		return apiClient.RemoveBookmark(ctx, &api.RemoveBookmarkRequest{
			SourceID:        sourceID,
			MangaID:         mangaID,
			DeleteDownloads: deleteDownloads,
		})
	})
	if err != nil {
		return false, err
	}
	return response.Removed, nil
}

// ListBookmarks lists bookmarks of a category, 0 for all
func (client *PoolServiceClient) ListBookmarks(categoryID int64) ([]*library.Bookmark, error) {
	response, err := call(client, "ListBookmarks", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.ListBookmarksResponse, error) {
		return apiClient.ListBookmarks(ctx, &api.ListBookmarksRequest{CategoryID: categoryID})
	})
	if err != nil {
		return nil, err
	}
	return response.Bookmarks, nil
}

// MarkChapterAsRead sets the read flag of a chapter
func (client *PoolServiceClient) MarkChapterAsRead(sourceID string, mangaID string, chapterID string, read bool) error {
	_, err := call(client, "MarkChapterAsRead", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.MarkChapterAsRead(ctx, &api.MarkChapterAsReadRequest{
			SourceID:  sourceID,
			MangaID:   mangaID,
			ChapterID: chapterID,
			Read:      read,
		})
	})
	return err
}

// UpdateReadInfo records the last read position of a bookmark
func (client *PoolServiceClient) UpdateReadInfo(sourceID string, mangaID string, chapterID string, page int) error {
	_, err := call(client, "UpdateReadInfo", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.UpdateReadInfo(ctx, &api.UpdateReadInfoRequest{
			SourceID:  sourceID,
			MangaID:   mangaID,
			ChapterID: chapterID,
			Page:      page,
		})
	})
	return err
}

// CreateCategory creates a category at the last position
func (client *PoolServiceClient) CreateCategory(name string) (*library.Category, error) {
	client.metadataCache.ClearCategoriesCache()

	response, err := call(client, "CreateCategory", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.CreateCategoryResponse, error) {
		return apiClient.CreateCategory(ctx, &api.CreateCategoryRequest{Name: name})
	})
	if err != nil {
		return nil, err
	}
	return response.Category, nil
}

// RenameCategory renames a category
func (client *PoolServiceClient) RenameCategory(id int64, name string) error {
	client.metadataCache.ClearCategoriesCache()

	_, err := call(client, "RenameCategory", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.RenameCategory(ctx, &api.RenameCategoryRequest{ID: id, Name: name})
	})
	return err
}

// DeleteCategory deletes a category
func (client *PoolServiceClient) DeleteCategory(id int64) error {
	client.metadataCache.ClearCategoriesCache()

	_, err := call(client, "DeleteCategory", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.DeleteCategory(ctx, &api.DeleteCategoryRequest{ID: id})
	})
	return err
}

// MoveCategory moves a category to a position
func (client *PoolServiceClient) MoveCategory(id int64, position int) error {
	client.metadataCache.ClearCategoriesCache()

	_, err := call(client, "MoveCategory", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.MoveCategory(ctx, &api.MoveCategoryRequest{ID: id, Position: position})
	})
	return err
}

// ListCategories lists categories by position
func (client *PoolServiceClient) ListCategories() ([]library.Category, error) {
	if categories := client.metadataCache.GetCategoriesCache(); categories != nil {
		return categories, nil
	}

	response, err := call(client, "ListCategories", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.ListCategoriesResponse, error) {
		return apiClient.ListCategories(ctx, &api.ListCategoriesRequest{})
	})
	if err != nil {
		return nil, err
	}

	client.metadataCache.AddCategoriesCache(response.Categories)
	return response.Categories, nil
}

// SetBookmarkCategories replaces categories of a bookmark
func (client *PoolServiceClient) SetBookmarkCategories(sourceID string, mangaID string, categoryIDs []int64) error {
	_, err := call(client, "SetBookmarkCategories", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.Empty, error) {
		return apiClient.SetBookmarkCategories(ctx, &api.SetBookmarkCategoriesRequest{
			SourceID:    sourceID,
			MangaID:     mangaID,
			CategoryIDs: categoryIDs,
		})
	})
	return err
}

// GetCacheStats returns cache and queue usage of the service
func (client *PoolServiceClient) GetCacheStats() (*api.GetCacheStatsResponse, error) {
	return call(client, "GetCacheStats", func(ctx context.Context, apiClient *api.MiraPoolAPIClient) (*api.GetCacheStatsResponse, error) {
		return apiClient.GetCacheStats(ctx, &api.GetCacheStatsRequest{})
	})
}
