package service

import (
	"bytes"
	"context"
	"net/http"
	"sync/atomic"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/api"
	"github.com/mirareader/mira-pool/service/download"
	"github.com/mirareader/mira-pool/service/image"
	pool_io "github.com/mirareader/mira-pool/service/io"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/reader"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/mirareader/mira-pool/service/storage"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// PoolServer implements the control API on top of the domain components
type PoolServer struct {
	api.UnimplementedMiraPoolAPIServer

	config *commons.Config

	remote     *remote.APIClient
	diskCache  *pool_io.DiskCache // optional
	images     *image.ImageRepository
	storage    *storage.MediaStorage
	library    *library.Library
	downloader *download.ChapterDownloader
	sessions   *ClientSessionManager

	liveClients atomic.Int64
}

// NewPoolServer creates a new PoolServer, work dirs are created if missing
func NewPoolServer(config *commons.Config) (*PoolServer, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"function": "NewPoolServer",
	})

	err := config.MakeWorkDirs()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: config.HTTPClientTimeout,
	}

	remoteClient := remote.NewAPIClient(config.APIBaseURL, httpClient, config.MetadataCacheTimeout)

	var diskCache *pool_io.DiskCache
	if config.DiskImageCacheSizeMax > 0 {
		diskCache, err = pool_io.NewDiskCache(config.DiskImageCacheSizeMax, config.GetDiskImageCacheRootPath())
		if err != nil {
			return nil, xerrors.Errorf("failed to create disk image cache: %w", err)
		}
	}

	images, err := image.NewImageRepository(httpClient, config.ImageCacheSizeMax, diskCache, config.ImageFetchMaxAttempts)
	if err != nil {
		return nil, err
	}

	mediaStorage, err := storage.NewMediaStorage(config.GetDownloadRootPath())
	if err != nil {
		return nil, err
	}

	lib, err := library.OpenLibrary(context.Background(), config.GetLibraryDBPath())
	if err != nil {
		return nil, err
	}

	downloader := download.NewChapterDownloader(download.NewDownloaderConfigFrom(config), remoteClient, images, mediaStorage)
	downloader.OnStateChange(func(key download.JobKey, state download.DownloadState) {
		logger.Debugf("Download state of %s changed to %s", key.ToString(), state.String())
	})
	downloader.OnFailure(func(job download.Job, err error) {
		logger.WithError(err).Warnf("Failed to download %s", job.ToString())
	})

	return &PoolServer{
		config: config,

		remote:     remoteClient,
		diskCache:  diskCache,
		images:     images,
		storage:    mediaStorage,
		library:    lib,
		downloader: downloader,
		sessions:   NewClientSessionManager(config.ClientSessionTimeout),
	}, nil
}

// Start starts background workers
func (server *PoolServer) Start() {
	server.downloader.Start()
}

// Release stops background workers and releases resources
func (server *PoolServer) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "Release",
	})

	logger.Info("Release")
	defer logger.Info("Released")

	server.downloader.Stop()
	server.sessions.Release()
	server.images.Release()

	if server.diskCache != nil {
		server.diskCache.Release()
	}

	err := server.library.Release()
	if err != nil {
		logger.WithError(err).Warn("failed to close library")
	}
}

// GetImageRepository returns the image repository
func (server *PoolServer) GetImageRepository() *image.ImageRepository {
	return server.images
}

// GetMediaStorage returns the media storage
func (server *PoolServer) GetMediaStorage() *storage.MediaStorage {
	return server.storage
}

// GetDownloader returns the chapter downloader
func (server *PoolServer) GetDownloader() *download.ChapterDownloader {
	return server.downloader
}

// GetSessionManager returns the client session manager
func (server *PoolServer) GetSessionManager() *ClientSessionManager {
	return server.sessions
}

// LiveClients returns the number of connected gRPC clients
func (server *PoolServer) LiveClients() int64 {
	return server.liveClients.Load()
}

func (server *PoolServer) clientConnected() int64 {
	return server.liveClients.Add(1)
}

func (server *PoolServer) clientDisconnected() int64 {
	live := server.liveClients.Add(-1)
	if live <= 0 {
		server.liveClients.Store(0)
		server.sessions.ReleaseAll()
		return 0
	}
	return live
}

// PrintStat logs usage of the service
func (server *PoolServer) PrintStat() {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "PrintStat",
	})

	stats := server.images.Stats()
	logger.Infof("Total %d live clients, %d sessions, %d pending downloads, %d cached images (%.1f/%.1f KiB)", server.LiveClients(), server.sessions.Sessions(), server.downloader.Pending(), stats.Entries, stats.SizeKiB, stats.MaxSizeKiB)
}

func requireMangaRef(sourceID string, mangaID string) error {
	if len(sourceID) == 0 || len(mangaID) == 0 {
		return commons.NewInvalidArgumentErrorf("source id and manga id must be given")
	}
	return nil
}

func requireChapterRef(sourceID string, mangaID string, chapterID string) error {
	if len(sourceID) == 0 || len(mangaID) == 0 || len(chapterID) == 0 {
		return commons.NewInvalidArgumentErrorf("source id, manga id and chapter id must be given")
	}
	return nil
}

func toDownloadJob(job *api.DownloadJob) (download.Job, error) {
	if job == nil {
		return download.Job{}, commons.NewInvalidArgumentErrorf("job must be given")
	}

	err := requireChapterRef(job.SourceID, job.MangaID, job.ChapterID)
	if err != nil {
		return download.Job{}, err
	}

	if job.ChapterIndex < 0 {
		return download.Job{}, commons.NewInvalidArgumentErrorf("chapter index must not be negative")
	}

	return download.Job{
		Key: download.JobKey{
			SourceID:  job.SourceID,
			MangaID:   job.MangaID,
			ChapterID: job.ChapterID,
		},
		Name:         job.Name,
		ChapterIndex: job.ChapterIndex,
	}, nil
}

func fromDownloadJob(job download.Job) *api.DownloadJob {
	return &api.DownloadJob{
		SourceID:     job.Key.SourceID,
		MangaID:      job.Key.MangaID,
		ChapterID:    job.Key.ChapterID,
		ChapterIndex: job.ChapterIndex,
		Name:         job.Name,
	}
}

// remoteFailed logs a failed manga API call, the caller answers with an empty result
func remoteFailed(logger *log.Entry, err error, format string, args ...interface{}) {
	promCounterForRemoteFailures.Inc()
	logger.WithError(err).Warnf(format, args...)
}

func (server *PoolServer) EnqueueDownload(ctx context.Context, request *api.EnqueueDownloadRequest) (*api.EnqueueDownloadResponse, error) {
	job, err := toDownloadJob(request.Job)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.EnqueueDownloadResponse{
		Enqueued: server.downloader.Enqueue(job),
	}, nil
}

func (server *PoolServer) CancelDownload(ctx context.Context, request *api.CancelDownloadRequest) (*api.CancelDownloadResponse, error) {
	err := requireChapterRef(request.SourceID, request.MangaID, request.ChapterID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	key := download.JobKey{
		SourceID:  request.SourceID,
		MangaID:   request.MangaID,
		ChapterID: request.ChapterID,
	}

	return &api.CancelDownloadResponse{
		Canceled: server.downloader.Cancel(key),
	}, nil
}

func (server *PoolServer) DeleteChapter(ctx context.Context, request *api.DeleteChapterRequest) (*api.DeleteChapterResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "DeleteChapter",
	})

	job, err := toDownloadJob(request.Job)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	deleted, err := server.downloader.DeleteChapter(job)
	if err != nil {
		logger.WithError(err).Errorf("failed to delete chapter of %s", job.ToString())
		return nil, commons.ErrorToStatus(err)
	}

	return &api.DeleteChapterResponse{
		Deleted: deleted,
	}, nil
}

func (server *PoolServer) GetDownloadState(ctx context.Context, request *api.GetDownloadStateRequest) (*api.GetDownloadStateResponse, error) {
	job, err := toDownloadJob(request.Job)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.GetDownloadStateResponse{
		State: server.downloader.State(job).String(),
	}, nil
}

func (server *PoolServer) ListDownloads(ctx context.Context, request *api.ListDownloadsRequest) (*api.ListDownloadsResponse, error) {
	jobs := server.downloader.Jobs()

	response := &api.ListDownloadsResponse{
		Jobs: make([]*api.DownloadJob, 0, len(jobs)),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, fromDownloadJob(job))
	}
	return response, nil
}

func (server *PoolServer) GetProgress(ctx context.Context, request *api.GetProgressRequest) (*api.GetProgressResponse, error) {
	key, progress := server.downloader.Progress()

	return &api.GetProgressResponse{
		SourceID:  key.SourceID,
		MangaID:   key.MangaID,
		ChapterID: key.ChapterID,
		Progress:  progress,
	}, nil
}

func (server *PoolServer) GetChapterPages(ctx context.Context, request *api.GetChapterPagesRequest) (*api.GetChapterPagesResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "GetChapterPages",
	})

	err := requireChapterRef(request.SourceID, request.MangaID, request.ChapterID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	ref := storage.ChapterRef{
		SourceID:     request.SourceID,
		MangaID:      request.MangaID,
		ChapterIndex: request.ChapterIndex,
	}

	if server.storage.IsChapterDownloaded(ref) {
		items := reader.BuildChapterItems(ref, nil, server.storage, request.HasNext)
		return &api.GetChapterPagesResponse{
			Items: reader.ToViews(items),
		}, nil
	}

	content, err := server.remote.GetChapterContent(ctx, request.SourceID, request.MangaID, request.ChapterID)
	if err != nil {
		remoteFailed(logger, err, "failed to get pages of chapter %s/%s/%s", request.SourceID, request.MangaID, request.ChapterID)
		return &api.GetChapterPagesResponse{
			Items: []reader.ItemView{},
		}, nil
	}

	if content == nil {
		return &api.GetChapterPagesResponse{
			Items: []reader.ItemView{},
		}, nil
	}

	items := reader.BuildChapterItems(ref, content, server.storage, request.HasNext)
	return &api.GetChapterPagesResponse{
		Items: reader.ToViews(items),
	}, nil
}

func (server *PoolServer) SearchManga(ctx context.Context, request *api.SearchMangaRequest) (*api.SearchMangaResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "SearchManga",
	})

	if len(request.SourceID) == 0 {
		return nil, commons.ErrorToStatus(commons.NewInvalidArgumentErrorf("source id must be given"))
	}

	response := &api.SearchMangaResponse{
		Previews: []reader.PreviewView{},
	}

	mangas, err := server.remote.SearchManga(ctx, request.SourceID, request.Query, request.Page)
	if err != nil {
		remoteFailed(logger, err, "failed to search manga of source %s", request.SourceID)
		return response, nil
	}

	previews, err := reader.ResolvePreviews(ctx, server.library, mangas)
	if err != nil {
		logger.WithError(err).Error("failed to resolve previews")
		return nil, commons.ErrorToStatus(err)
	}

	for _, preview := range previews {
		response.Previews = append(response.Previews, reader.ToPreviewView(preview))
	}
	return response, nil
}

func (server *PoolServer) GetManga(ctx context.Context, request *api.GetMangaRequest) (*api.GetMangaResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "GetManga",
	})

	err := requireMangaRef(request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	bookmarked, err := server.library.Has(ctx, request.SourceID, request.MangaID)
	if err != nil {
		logger.WithError(err).Error("failed to query library")
		return nil, commons.ErrorToStatus(err)
	}

	manga, err := server.remote.GetManga(ctx, request.SourceID, request.MangaID)
	if err != nil {
		remoteFailed(logger, err, "failed to get manga %s/%s", request.SourceID, request.MangaID)
		manga = nil
	}

	return &api.GetMangaResponse{
		Manga:      manga,
		Bookmarked: bookmarked,
	}, nil
}

func (server *PoolServer) GetChapters(ctx context.Context, request *api.GetChaptersRequest) (*api.GetChaptersResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "GetChapters",
	})

	err := requireMangaRef(request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	bookmarked, err := server.library.Has(ctx, request.SourceID, request.MangaID)
	if err != nil {
		logger.WithError(err).Error("failed to query library")
		return nil, commons.ErrorToStatus(err)
	}

	chapters, err := server.remote.GetChapters(ctx, request.SourceID, request.MangaID)
	remoteOK := err == nil && chapters != nil
	if err != nil {
		remoteFailed(logger, err, "failed to get chapters of manga %s/%s", request.SourceID, request.MangaID)
	}

	readChapters := map[string]bool{}
	if bookmarked {
		if remoteOK {
			err = server.library.UpdateChapters(ctx, request.SourceID, request.MangaID, chapters)
			if err != nil {
				logger.WithError(err).Error("failed to update chapters in library")
				return nil, commons.ErrorToStatus(err)
			}
		}

		stored, err := server.library.GetChapters(ctx, request.SourceID, request.MangaID)
		if err != nil {
			logger.WithError(err).Error("failed to get chapters from library")
			return nil, commons.ErrorToStatus(err)
		}

		storedChapters := make([]remote.Chapter, 0, len(stored))
		for _, chapter := range stored {
			readChapters[chapter.ChapterID] = chapter.Read
			storedChapters = append(storedChapters, remote.Chapter{
				ID:        chapter.ChapterID,
				Index:     chapter.Index,
				Title:     chapter.Title,
				UpdatedAt: chapter.UpdatedAt,
			})
		}

		// bookmarked manga stay readable offline
		if !remoteOK {
			chapters = storedChapters
		}
	}

	response := &api.GetChaptersResponse{
		Chapters: make([]api.ChapterInfo, 0, len(chapters)),
	}

	for _, chapter := range chapters {
		job := download.Job{
			Key: download.JobKey{
				SourceID:  request.SourceID,
				MangaID:   request.MangaID,
				ChapterID: chapter.ID,
			},
			ChapterIndex: chapter.Index,
		}

		response.Chapters = append(response.Chapters, api.ChapterInfo{
			Chapter:       chapter,
			Read:          readChapters[chapter.ID],
			DownloadState: server.downloader.State(job).String(),
		})
	}
	return response, nil
}

func (server *PoolServer) Bookmark(ctx context.Context, request *api.BookmarkRequest) (*api.BookmarkResponse, error) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "Bookmark",
	})

	err := requireMangaRef(request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	manga, err := server.remote.GetManga(ctx, request.SourceID, request.MangaID)
	if err != nil || manga == nil {
		if err != nil {
			remoteFailed(logger, err, "failed to get manga %s/%s", request.SourceID, request.MangaID)
		}
		return &api.BookmarkResponse{}, nil
	}

	err = server.library.Bookmark(ctx, manga)
	if err != nil {
		logger.WithError(err).Errorf("failed to bookmark %s", manga.ToString())
		return nil, commons.ErrorToStatus(err)
	}

	if len(request.CategoryIDs) > 0 {
		err = server.library.SetBookmarkCategories(ctx, request.SourceID, request.MangaID, request.CategoryIDs)
		if err != nil {
			logger.WithError(err).Errorf("failed to set categories of %s", manga.ToString())
			return nil, commons.ErrorToStatus(err)
		}
	}

	chapters, err := server.remote.GetChapters(ctx, request.SourceID, request.MangaID)
	if err != nil {
		remoteFailed(logger, err, "failed to get chapters of manga %s/%s", request.SourceID, request.MangaID)
	} else if chapters != nil {
		err = server.library.UpdateChapters(ctx, request.SourceID, request.MangaID, chapters)
		if err != nil {
			logger.WithError(err).Warnf("failed to store chapters of %s", manga.ToString())
		}
	}

	server.saveCover(ctx, manga)

	bookmark, err := server.library.Get(ctx, request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.BookmarkResponse{
		Bookmark: bookmark,
	}, nil
}

// saveCover keeps a local copy of the cover, failures are ignored
func (server *PoolServer) saveCover(ctx context.Context, manga *remote.Manga) {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "PoolServer",
		"function": "saveCover",
	})

	if len(manga.CoverURL) == 0 || server.storage.HasCover(manga.SourceID, manga.ID) {
		return
	}

	data, err := server.images.LoadImageData(ctx, image.NewNetworkImageRequest(manga.CoverURL, nil))
	if err != nil {
		logger.WithError(err).Warnf("failed to load cover of %s", manga.ToString())
		return
	}

	err = server.storage.SaveCover(manga.SourceID, manga.ID, bytes.NewReader(data))
	if err != nil {
		logger.WithError(err).Warnf("failed to save cover of %s", manga.ToString())
	}
}

func (server *PoolServer) RemoveBookmark(ctx context.Context, request *api.RemoveBookmarkRequest) (*api.RemoveBookmarkResponse, error) {
	err := requireMangaRef(request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	removed, err := server.library.RemoveBookmark(ctx, request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	if request.DeleteDownloads {
		err = server.downloader.DeleteManga(request.SourceID, request.MangaID)
		if err != nil {
			return nil, commons.ErrorToStatus(err)
		}
	}

	return &api.RemoveBookmarkResponse{
		Removed: removed,
	}, nil
}

func (server *PoolServer) ListBookmarks(ctx context.Context, request *api.ListBookmarksRequest) (*api.ListBookmarksResponse, error) {
	bookmarks, err := server.library.List(ctx, request.CategoryID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.ListBookmarksResponse{
		Bookmarks: bookmarks,
	}, nil
}

func (server *PoolServer) MarkChapterAsRead(ctx context.Context, request *api.MarkChapterAsReadRequest) (*api.Empty, error) {
	err := requireChapterRef(request.SourceID, request.MangaID, request.ChapterID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	err = server.library.MarkChapterAsRead(ctx, request.SourceID, request.MangaID, request.ChapterID, request.Read)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) UpdateReadInfo(ctx context.Context, request *api.UpdateReadInfoRequest) (*api.Empty, error) {
	err := requireChapterRef(request.SourceID, request.MangaID, request.ChapterID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	err = server.library.UpdateBookmarkReadInfo(ctx, request.SourceID, request.MangaID, request.ChapterID, request.Page)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) CreateCategory(ctx context.Context, request *api.CreateCategoryRequest) (*api.CreateCategoryResponse, error) {
	category, err := server.library.CreateCategory(ctx, request.Name)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.CreateCategoryResponse{
		Category: category,
	}, nil
}

func (server *PoolServer) RenameCategory(ctx context.Context, request *api.RenameCategoryRequest) (*api.Empty, error) {
	err := server.library.RenameCategory(ctx, request.ID, request.Name)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) DeleteCategory(ctx context.Context, request *api.DeleteCategoryRequest) (*api.Empty, error) {
	err := server.library.DeleteCategory(ctx, request.ID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) MoveCategory(ctx context.Context, request *api.MoveCategoryRequest) (*api.Empty, error) {
	err := server.library.MoveCategory(ctx, request.ID, request.Position)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) ListCategories(ctx context.Context, request *api.ListCategoriesRequest) (*api.ListCategoriesResponse, error) {
	categories, err := server.library.ListCategories(ctx)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	return &api.ListCategoriesResponse{
		Categories: categories,
	}, nil
}

func (server *PoolServer) SetBookmarkCategories(ctx context.Context, request *api.SetBookmarkCategoriesRequest) (*api.Empty, error) {
	err := requireMangaRef(request.SourceID, request.MangaID)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}

	err = server.library.SetBookmarkCategories(ctx, request.SourceID, request.MangaID, request.CategoryIDs)
	if err != nil {
		return nil, commons.ErrorToStatus(err)
	}
	return &api.Empty{}, nil
}

func (server *PoolServer) GetCacheStats(ctx context.Context, request *api.GetCacheStatsRequest) (*api.GetCacheStatsResponse, error) {
	return &api.GetCacheStatsResponse{
		Images:           server.images.Stats(),
		PendingDownloads: server.downloader.Pending(),
		LiveClients:      server.LiveClients(),
		Sessions:         server.sessions.Sessions(),
	}, nil
}
