package reader

import (
	"context"
	"fmt"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/remote"
)

// Preview is a manga shown in listings, either only known remotely or bookmarked.
// Implementations are RemotePreview and BookmarkedPreview.
type Preview interface {
	GetSourceID() string
	GetMangaID() string
	GetTitle() string
	GetCoverURL() string
	preview()
}

// RemotePreview is a manga that is not in the library
type RemotePreview struct {
	Manga remote.MangaPreview
}

// BookmarkedPreview is a manga in the library
type BookmarkedPreview struct {
	Bookmark *library.Bookmark
}

func (p *RemotePreview) preview()     {}
func (p *BookmarkedPreview) preview() {}

// GetSourceID returns the source id
func (p *RemotePreview) GetSourceID() string { return p.Manga.SourceID }

// GetMangaID returns the manga id
func (p *RemotePreview) GetMangaID() string { return p.Manga.ID }

// GetTitle returns the title
func (p *RemotePreview) GetTitle() string { return p.Manga.Title }

// GetCoverURL returns the cover url
func (p *RemotePreview) GetCoverURL() string { return p.Manga.CoverURL }

// GetSourceID returns the source id
func (p *BookmarkedPreview) GetSourceID() string { return p.Bookmark.SourceID }

// GetMangaID returns the manga id
func (p *BookmarkedPreview) GetMangaID() string { return p.Bookmark.MangaID }

// GetTitle returns the title
func (p *BookmarkedPreview) GetTitle() string { return p.Bookmark.Title }

// GetCoverURL returns the cover url
func (p *BookmarkedPreview) GetCoverURL() string { return p.Bookmark.CoverURL }

// BookmarkGetter looks up bookmarks, *library.Library satisfies it
type BookmarkGetter interface {
	Get(ctx context.Context, sourceID string, mangaID string) (*library.Bookmark, error)
}

// ResolvePreview returns a BookmarkedPreview if the manga is bookmarked, RemotePreview otherwise
func ResolvePreview(ctx context.Context, bookmarks BookmarkGetter, manga remote.MangaPreview) (Preview, error) {
	bookmark, err := bookmarks.Get(ctx, manga.SourceID, manga.ID)
	if err != nil {
		if commons.IsMangaNotFoundError(err) {
			return &RemotePreview{Manga: manga}, nil
		}
		return nil, err
	}

	return &BookmarkedPreview{Bookmark: bookmark}, nil
}

// ResolvePreviews resolves a listing
func ResolvePreviews(ctx context.Context, bookmarks BookmarkGetter, mangas []remote.MangaPreview) ([]Preview, error) {
	previews := make([]Preview, 0, len(mangas))
	for _, manga := range mangas {
		preview, err := ResolvePreview(ctx, bookmarks, manga)
		if err != nil {
			return nil, err
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

// PreviewView is the serializable form of a Preview
type PreviewView struct {
	SourceID          string `json:"source_id"`
	MangaID           string `json:"manga_id"`
	Title             string `json:"title"`
	CoverURL          string `json:"cover_url,omitempty"`
	Bookmarked        bool   `json:"bookmarked"`
	LastReadChapterID string `json:"last_read_chapter_id,omitempty"`
	LastReadPage      int    `json:"last_read_page,omitempty"`
}

// ToPreviewView converts a Preview to PreviewView
func ToPreviewView(preview Preview) PreviewView {
	view := PreviewView{
		SourceID: preview.GetSourceID(),
		MangaID:  preview.GetMangaID(),
		Title:    preview.GetTitle(),
		CoverURL: preview.GetCoverURL(),
	}

	switch v := preview.(type) {
	case *RemotePreview:
	case *BookmarkedPreview:
		view.Bookmarked = true
		view.LastReadChapterID = v.Bookmark.LastReadChapterID
		view.LastReadPage = v.Bookmark.LastReadPage
	default:
		panic(fmt.Sprintf("unknown preview %T", preview))
	}
	return view
}
