package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the full name of the control API service
const ServiceName string = "mira.MiraPoolAPI"

// MiraPoolAPIServer is the server API of the control service
type MiraPoolAPIServer interface {
	EnqueueDownload(context.Context, *EnqueueDownloadRequest) (*EnqueueDownloadResponse, error)
	CancelDownload(context.Context, *CancelDownloadRequest) (*CancelDownloadResponse, error)
	DeleteChapter(context.Context, *DeleteChapterRequest) (*DeleteChapterResponse, error)
	GetDownloadState(context.Context, *GetDownloadStateRequest) (*GetDownloadStateResponse, error)
	ListDownloads(context.Context, *ListDownloadsRequest) (*ListDownloadsResponse, error)
	GetProgress(context.Context, *GetProgressRequest) (*GetProgressResponse, error)
	GetChapterPages(context.Context, *GetChapterPagesRequest) (*GetChapterPagesResponse, error)
	SearchManga(context.Context, *SearchMangaRequest) (*SearchMangaResponse, error)
	GetManga(context.Context, *GetMangaRequest) (*GetMangaResponse, error)
	GetChapters(context.Context, *GetChaptersRequest) (*GetChaptersResponse, error)
	Bookmark(context.Context, *BookmarkRequest) (*BookmarkResponse, error)
	RemoveBookmark(context.Context, *RemoveBookmarkRequest) (*RemoveBookmarkResponse, error)
	ListBookmarks(context.Context, *ListBookmarksRequest) (*ListBookmarksResponse, error)
	MarkChapterAsRead(context.Context, *MarkChapterAsReadRequest) (*Empty, error)
	UpdateReadInfo(context.Context, *UpdateReadInfoRequest) (*Empty, error)
	CreateCategory(context.Context, *CreateCategoryRequest) (*CreateCategoryResponse, error)
	RenameCategory(context.Context, *RenameCategoryRequest) (*Empty, error)
	DeleteCategory(context.Context, *DeleteCategoryRequest) (*Empty, error)
	MoveCategory(context.Context, *MoveCategoryRequest) (*Empty, error)
	ListCategories(context.Context, *ListCategoriesRequest) (*ListCategoriesResponse, error)
	SetBookmarkCategories(context.Context, *SetBookmarkCategoriesRequest) (*Empty, error)
	GetCacheStats(context.Context, *GetCacheStatsRequest) (*GetCacheStatsResponse, error)
}

// UnimplementedMiraPoolAPIServer can be embedded to have forward compatible implementations
type UnimplementedMiraPoolAPIServer struct{}

func (UnimplementedMiraPoolAPIServer) EnqueueDownload(context.Context, *EnqueueDownloadRequest) (*EnqueueDownloadResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method EnqueueDownload not implemented")
}

func (UnimplementedMiraPoolAPIServer) CancelDownload(context.Context, *CancelDownloadRequest) (*CancelDownloadResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CancelDownload not implemented")
}

func (UnimplementedMiraPoolAPIServer) DeleteChapter(context.Context, *DeleteChapterRequest) (*DeleteChapterResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteChapter not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetDownloadState(context.Context, *GetDownloadStateRequest) (*GetDownloadStateResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetDownloadState not implemented")
}

func (UnimplementedMiraPoolAPIServer) ListDownloads(context.Context, *ListDownloadsRequest) (*ListDownloadsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListDownloads not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetProgress(context.Context, *GetProgressRequest) (*GetProgressResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetProgress not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetChapterPages(context.Context, *GetChapterPagesRequest) (*GetChapterPagesResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetChapterPages not implemented")
}

func (UnimplementedMiraPoolAPIServer) SearchManga(context.Context, *SearchMangaRequest) (*SearchMangaResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SearchManga not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetManga(context.Context, *GetMangaRequest) (*GetMangaResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetManga not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetChapters(context.Context, *GetChaptersRequest) (*GetChaptersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetChapters not implemented")
}

func (UnimplementedMiraPoolAPIServer) Bookmark(context.Context, *BookmarkRequest) (*BookmarkResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Bookmark not implemented")
}

func (UnimplementedMiraPoolAPIServer) RemoveBookmark(context.Context, *RemoveBookmarkRequest) (*RemoveBookmarkResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RemoveBookmark not implemented")
}

func (UnimplementedMiraPoolAPIServer) ListBookmarks(context.Context, *ListBookmarksRequest) (*ListBookmarksResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListBookmarks not implemented")
}

func (UnimplementedMiraPoolAPIServer) MarkChapterAsRead(context.Context, *MarkChapterAsReadRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MarkChapterAsRead not implemented")
}

func (UnimplementedMiraPoolAPIServer) UpdateReadInfo(context.Context, *UpdateReadInfoRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UpdateReadInfo not implemented")
}

func (UnimplementedMiraPoolAPIServer) CreateCategory(context.Context, *CreateCategoryRequest) (*CreateCategoryResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateCategory not implemented")
}

func (UnimplementedMiraPoolAPIServer) RenameCategory(context.Context, *RenameCategoryRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RenameCategory not implemented")
}

func (UnimplementedMiraPoolAPIServer) DeleteCategory(context.Context, *DeleteCategoryRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteCategory not implemented")
}

func (UnimplementedMiraPoolAPIServer) MoveCategory(context.Context, *MoveCategoryRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method MoveCategory not implemented")
}

func (UnimplementedMiraPoolAPIServer) ListCategories(context.Context, *ListCategoriesRequest) (*ListCategoriesResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListCategories not implemented")
}

func (UnimplementedMiraPoolAPIServer) SetBookmarkCategories(context.Context, *SetBookmarkCategoriesRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetBookmarkCategories not implemented")
}

func (UnimplementedMiraPoolAPIServer) GetCacheStats(context.Context, *GetCacheStatsRequest) (*GetCacheStatsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetCacheStats not implemented")
}

// FullMethodName returns "/service/method"
func FullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryHandler adapts a server method to grpc.MethodHandler
func unaryHandler[Req any, Resp any](method string, call func(MiraPoolAPIServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(MiraPoolAPIServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethodName(method),
		}

		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MiraPoolAPIServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MiraPoolAPIServiceDesc is the grpc.ServiceDesc of the control API
var MiraPoolAPIServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MiraPoolAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "EnqueueDownload", Handler: unaryHandler("EnqueueDownload", MiraPoolAPIServer.EnqueueDownload)},
		{MethodName: "CancelDownload", Handler: unaryHandler("CancelDownload", MiraPoolAPIServer.CancelDownload)},
		{MethodName: "DeleteChapter", Handler: unaryHandler("DeleteChapter", MiraPoolAPIServer.DeleteChapter)},
		{MethodName: "GetDownloadState", Handler: unaryHandler("GetDownloadState", MiraPoolAPIServer.GetDownloadState)},
		{MethodName: "ListDownloads", Handler: unaryHandler("ListDownloads", MiraPoolAPIServer.ListDownloads)},
		{MethodName: "GetProgress", Handler: unaryHandler("GetProgress", MiraPoolAPIServer.GetProgress)},
		{MethodName: "GetChapterPages", Handler: unaryHandler("GetChapterPages", MiraPoolAPIServer.GetChapterPages)},
		{MethodName: "SearchManga", Handler: unaryHandler("SearchManga", MiraPoolAPIServer.SearchManga)},
		{MethodName: "GetManga", Handler: unaryHandler("GetManga", MiraPoolAPIServer.GetManga)},
		{MethodName: "GetChapters", Handler: unaryHandler("GetChapters", MiraPoolAPIServer.GetChapters)},
		{MethodName: "Bookmark", Handler: unaryHandler("Bookmark", MiraPoolAPIServer.Bookmark)},
		{MethodName: "RemoveBookmark", Handler: unaryHandler("RemoveBookmark", MiraPoolAPIServer.RemoveBookmark)},
		{MethodName: "ListBookmarks", Handler: unaryHandler("ListBookmarks", MiraPoolAPIServer.ListBookmarks)},
		{MethodName: "MarkChapterAsRead", Handler: unaryHandler("MarkChapterAsRead", MiraPoolAPIServer.MarkChapterAsRead)},
		{MethodName: "UpdateReadInfo", Handler: unaryHandler("UpdateReadInfo", MiraPoolAPIServer.UpdateReadInfo)},
		{MethodName: "CreateCategory", Handler: unaryHandler("CreateCategory", MiraPoolAPIServer.CreateCategory)},
		{MethodName: "RenameCategory", Handler: unaryHandler("RenameCategory", MiraPoolAPIServer.RenameCategory)},
		{MethodName: "DeleteCategory", Handler: unaryHandler("DeleteCategory", MiraPoolAPIServer.DeleteCategory)},
		{MethodName: "MoveCategory", Handler: unaryHandler("MoveCategory", MiraPoolAPIServer.MoveCategory)},
		{MethodName: "ListCategories", Handler: unaryHandler("ListCategories", MiraPoolAPIServer.ListCategories)},
		{MethodName: "SetBookmarkCategories", Handler: unaryHandler("SetBookmarkCategories", MiraPoolAPIServer.SetBookmarkCategories)},
		{MethodName: "GetCacheStats", Handler: unaryHandler("GetCacheStats", MiraPoolAPIServer.GetCacheStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mira_pool.api",
}

// RegisterMiraPoolAPIServer registers the control API implementation
func RegisterMiraPoolAPIServer(registrar grpc.ServiceRegistrar, srv MiraPoolAPIServer) {
	registrar.RegisterService(&MiraPoolAPIServiceDesc, srv)
}
