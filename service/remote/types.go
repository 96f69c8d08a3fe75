package remote

import (
	"fmt"
	"time"
)

// MangaPreview is a search or listing result
type MangaPreview struct {
	ID       string `json:"id"`
	SourceID string `json:"sourceId"`
	Title    string `json:"title"`
	CoverURL string `json:"cover,omitempty"`
}

// ToString stringifies the object
func (preview *MangaPreview) ToString() string {
	return fmt.Sprintf("<MangaPreview %s/%s %q>", preview.SourceID, preview.ID, preview.Title)
}

// Manga is manga metadata
type Manga struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"sourceId"`
	Title       string    `json:"title"`
	CoverURL    string    `json:"cover,omitempty"`
	Description string    `json:"description,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Status      string    `json:"status,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// ToString stringifies the object
func (manga *Manga) ToString() string {
	return fmt.Sprintf("<Manga %s/%s %q>", manga.SourceID, manga.ID, manga.Title)
}

// Preview returns the preview part of the manga
func (manga *Manga) Preview() MangaPreview {
	return MangaPreview{
		ID:       manga.ID,
		SourceID: manga.SourceID,
		Title:    manga.Title,
		CoverURL: manga.CoverURL,
	}
}

// Chapter is an entry of a chapter list. Index is the release order.
type Chapter struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Page is a page image location, headers must be sent along with the GET
type Page struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ChapterContent holds the pages of a chapter
type ChapterContent struct {
	ChapterID string `json:"id"`
	Pages     []Page `json:"pages"`
}

// envelope is the response wrapper of every endpoint
type envelope[T any] struct {
	Data  *T      `json:"data"`
	Error *string `json:"error"`
}
