package api

import (
	"context"

	"google.golang.org/grpc"
)

// MiraPoolAPIClient is the client stub of the control API.
// The connection must use the JSON codec, see Codec.
type MiraPoolAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewMiraPoolAPIClient creates a new MiraPoolAPIClient
func NewMiraPoolAPIClient(cc grpc.ClientConnInterface) *MiraPoolAPIClient {
	return &MiraPoolAPIClient{
		cc: cc,
	}
}

func invoke[Req any, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, FullMethodName(method), in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (client *MiraPoolAPIClient) EnqueueDownload(ctx context.Context, in *EnqueueDownloadRequest, opts ...grpc.CallOption) (*EnqueueDownloadResponse, error) {
	return invoke[EnqueueDownloadRequest, EnqueueDownloadResponse](ctx, client.cc, "EnqueueDownload", in, opts...)
}

func (client *MiraPoolAPIClient) CancelDownload(ctx context.Context, in *CancelDownloadRequest, opts ...grpc.CallOption) (*CancelDownloadResponse, error) {
	return invoke[CancelDownloadRequest, CancelDownloadResponse](ctx, client.cc, "CancelDownload", in, opts...)
}

func (client *MiraPoolAPIClient) DeleteChapter(ctx context.Context, in *DeleteChapterRequest, opts ...grpc.CallOption) (*DeleteChapterResponse, error) {
	return invoke[DeleteChapterRequest, DeleteChapterResponse](ctx, client.cc, "DeleteChapter", in, opts...)
}

func (client *MiraPoolAPIClient) GetDownloadState(ctx context.Context, in *GetDownloadStateRequest, opts ...grpc.CallOption) (*GetDownloadStateResponse, error) {
	return invoke[GetDownloadStateRequest, GetDownloadStateResponse](ctx, client.cc, "GetDownloadState", in, opts...)
}

func (client *MiraPoolAPIClient) ListDownloads(ctx context.Context, in *ListDownloadsRequest, opts ...grpc.CallOption) (*ListDownloadsResponse, error) {
	return invoke[ListDownloadsRequest, ListDownloadsResponse](ctx, client.cc, "ListDownloads", in, opts...)
}

func (client *MiraPoolAPIClient) GetProgress(ctx context.Context, in *GetProgressRequest, opts ...grpc.CallOption) (*GetProgressResponse, error) {
	return invoke[GetProgressRequest, GetProgressResponse](ctx, client.cc, "GetProgress", in, opts...)
}

func (client *MiraPoolAPIClient) GetChapterPages(ctx context.Context, in *GetChapterPagesRequest, opts ...grpc.CallOption) (*GetChapterPagesResponse, error) {
	return invoke[GetChapterPagesRequest, GetChapterPagesResponse](ctx, client.cc, "GetChapterPages", in, opts...)
}

func (client *MiraPoolAPIClient) SearchManga(ctx context.Context, in *SearchMangaRequest, opts ...grpc.CallOption) (*SearchMangaResponse, error) {
	return invoke[SearchMangaRequest, SearchMangaResponse](ctx, client.cc, "SearchManga", in, opts...)
}

func (client *MiraPoolAPIClient) GetManga(ctx context.Context, in *GetMangaRequest, opts ...grpc.CallOption) (*GetMangaResponse, error) {
	return invoke[GetMangaRequest, GetMangaResponse](ctx, client.cc, "GetManga", in, opts...)
}

func (client *MiraPoolAPIClient) GetChapters(ctx context.Context, in *GetChaptersRequest, opts ...grpc.CallOption) (*GetChaptersResponse, error) {
	return invoke[GetChaptersRequest, GetChaptersResponse](ctx, client.cc, "GetChapters", in, opts...)
}

func (client *MiraPoolAPIClient) Bookmark(ctx context.Context, in *BookmarkRequest, opts ...grpc.CallOption) (*BookmarkResponse, error) {
	return invoke[BookmarkRequest, BookmarkResponse](ctx, client.cc, "Bookmark", in, opts...)
}

func (client *MiraPoolAPIClient) RemoveBookmark(ctx context.Context, in *RemoveBookmarkRequest, opts ...grpc.CallOption) (*RemoveBookmarkResponse, error) {
	return invoke[RemoveBookmarkRequest, RemoveBookmarkResponse](ctx, client.cc, "RemoveBookmark", in, opts...)
}

func (client *MiraPoolAPIClient) ListBookmarks(ctx context.Context, in *ListBookmarksRequest, opts ...grpc.CallOption) (*ListBookmarksResponse, error) {
	return invoke[ListBookmarksRequest, ListBookmarksResponse](ctx, client.cc, "ListBookmarks", in, opts...)
}

func (client *MiraPoolAPIClient) MarkChapterAsRead(ctx context.Context, in *MarkChapterAsReadRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[MarkChapterAsReadRequest, Empty](ctx, client.cc, "MarkChapterAsRead", in, opts...)
}

func (client *MiraPoolAPIClient) UpdateReadInfo(ctx context.Context, in *UpdateReadInfoRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[UpdateReadInfoRequest, Empty](ctx, client.cc, "UpdateReadInfo", in, opts...)
}

func (client *MiraPoolAPIClient) CreateCategory(ctx context.Context, in *CreateCategoryRequest, opts ...grpc.CallOption) (*CreateCategoryResponse, error) {
	return invoke[CreateCategoryRequest, CreateCategoryResponse](ctx, client.cc, "CreateCategory", in, opts...)
}

func (client *MiraPoolAPIClient) RenameCategory(ctx context.Context, in *RenameCategoryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[RenameCategoryRequest, Empty](ctx, client.cc, "RenameCategory", in, opts...)
}

func (client *MiraPoolAPIClient) DeleteCategory(ctx context.Context, in *DeleteCategoryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[DeleteCategoryRequest, Empty](ctx, client.cc, "DeleteCategory", in, opts...)
}

func (client *MiraPoolAPIClient) MoveCategory(ctx context.Context, in *MoveCategoryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[MoveCategoryRequest, Empty](ctx, client.cc, "MoveCategory", in, opts...)
}

func (client *MiraPoolAPIClient) ListCategories(ctx context.Context, in *ListCategoriesRequest, opts ...grpc.CallOption) (*ListCategoriesResponse, error) {
	return invoke[ListCategoriesRequest, ListCategoriesResponse](ctx, client.cc, "ListCategories", in, opts...)
}

func (client *MiraPoolAPIClient) SetBookmarkCategories(ctx context.Context, in *SetBookmarkCategoriesRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[SetBookmarkCategoriesRequest, Empty](ctx, client.cc, "SetBookmarkCategories", in, opts...)
}

func (client *MiraPoolAPIClient) GetCacheStats(ctx context.Context, in *GetCacheStatsRequest, opts ...grpc.CallOption) (*GetCacheStatsResponse, error) {
	return invoke[GetCacheStatsRequest, GetCacheStatsResponse](ctx, client.cc, "GetCacheStats", in, opts...)
}
