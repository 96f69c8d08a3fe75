package api

import (
	"github.com/mirareader/mira-pool/service/image"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/reader"
	"github.com/mirareader/mira-pool/service/remote"
)

// Empty is an empty message
type Empty struct{}

// DownloadJob identifies a chapter to download
type DownloadJob struct {
	SourceID     string `json:"source_id"`
	MangaID      string `json:"manga_id"`
	ChapterID    string `json:"chapter_id"`
	ChapterIndex int    `json:"chapter_index"`
	Name         string `json:"name,omitempty"`
}

type EnqueueDownloadRequest struct {
	Job *DownloadJob `json:"job"`
}

type EnqueueDownloadResponse struct {
	Enqueued bool `json:"enqueued"`
}

type CancelDownloadRequest struct {
	SourceID  string `json:"source_id"`
	MangaID   string `json:"manga_id"`
	ChapterID string `json:"chapter_id"`
}

type CancelDownloadResponse struct {
	Canceled bool `json:"canceled"`
}

type DeleteChapterRequest struct {
	Job *DownloadJob `json:"job"`
}

type DeleteChapterResponse struct {
	Deleted bool `json:"deleted"`
}

type GetDownloadStateRequest struct {
	Job *DownloadJob `json:"job"`
}

type GetDownloadStateResponse struct {
	State string `json:"state"`
}

type ListDownloadsRequest struct{}

type ListDownloadsResponse struct {
	Jobs []*DownloadJob `json:"jobs"`
}

type GetProgressRequest struct{}

// GetProgressResponse holds progress of the job being downloaded, ids are empty when idle
type GetProgressResponse struct {
	SourceID  string  `json:"source_id"`
	MangaID   string  `json:"manga_id"`
	ChapterID string  `json:"chapter_id"`
	Progress  float64 `json:"progress"`
}

type GetChapterPagesRequest struct {
	SourceID     string `json:"source_id"`
	MangaID      string `json:"manga_id"`
	ChapterID    string `json:"chapter_id"`
	ChapterIndex int    `json:"chapter_index"`
	HasNext      bool   `json:"has_next"`
}

type GetChapterPagesResponse struct {
	Items []reader.ItemView `json:"items"`
}

type SearchMangaRequest struct {
	SourceID string `json:"source_id"`
	Query    string `json:"query,omitempty"`
	Page     int    `json:"page,omitempty"`
}

type SearchMangaResponse struct {
	Previews []reader.PreviewView `json:"previews"`
}

type GetMangaRequest struct {
	SourceID string `json:"source_id"`
	MangaID  string `json:"manga_id"`
}

// GetMangaResponse has a nil Manga when the API has no data for it
type GetMangaResponse struct {
	Manga      *remote.Manga `json:"manga"`
	Bookmarked bool          `json:"bookmarked"`
}

type GetChaptersRequest struct {
	SourceID string `json:"source_id"`
	MangaID  string `json:"manga_id"`
}

// ChapterInfo is a chapter with local state
type ChapterInfo struct {
	Chapter       remote.Chapter `json:"chapter"`
	Read          bool           `json:"read"`
	DownloadState string         `json:"download_state"`
}

type GetChaptersResponse struct {
	Chapters []ChapterInfo `json:"chapters"`
}

type BookmarkRequest struct {
	SourceID    string  `json:"source_id"`
	MangaID     string  `json:"manga_id"`
	CategoryIDs []int64 `json:"category_ids,omitempty"`
}

type BookmarkResponse struct {
	Bookmark *library.Bookmark `json:"bookmark"`
}

type RemoveBookmarkRequest struct {
	SourceID string `json:"source_id"`
	MangaID  string `json:"manga_id"`
	// DeleteDownloads also cancels queued downloads and deletes stored pages and the cover
	DeleteDownloads bool `json:"delete_downloads,omitempty"`
}

type RemoveBookmarkResponse struct {
	Removed bool `json:"removed"`
}

type ListBookmarksRequest struct {
	// CategoryID 0 lists all bookmarks
	CategoryID int64 `json:"category_id,omitempty"`
}

type ListBookmarksResponse struct {
	Bookmarks []*library.Bookmark `json:"bookmarks"`
}

type MarkChapterAsReadRequest struct {
	SourceID  string `json:"source_id"`
	MangaID   string `json:"manga_id"`
	ChapterID string `json:"chapter_id"`
	Read      bool   `json:"read"`
}

type UpdateReadInfoRequest struct {
	SourceID  string `json:"source_id"`
	MangaID   string `json:"manga_id"`
	ChapterID string `json:"chapter_id"`
	Page      int    `json:"page"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

type CreateCategoryResponse struct {
	Category *library.Category `json:"category"`
}

type RenameCategoryRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DeleteCategoryRequest struct {
	ID int64 `json:"id"`
}

type MoveCategoryRequest struct {
	ID       int64 `json:"id"`
	Position int   `json:"position"`
}

type ListCategoriesRequest struct{}

type ListCategoriesResponse struct {
	Categories []library.Category `json:"categories"`
}

type SetBookmarkCategoriesRequest struct {
	SourceID    string  `json:"source_id"`
	MangaID     string  `json:"manga_id"`
	CategoryIDs []int64 `json:"category_ids"`
}

type GetCacheStatsRequest struct{}

type GetCacheStatsResponse struct {
	Images           image.CacheStats `json:"images"`
	PendingDownloads int              `json:"pending_downloads"`
	LiveClients      int64            `json:"live_clients"`
	Sessions         int              `json:"sessions"`
}
