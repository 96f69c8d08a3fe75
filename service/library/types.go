package library

import (
	"fmt"
	"time"
)

// Bookmark is a manga kept in the library
type Bookmark struct {
	SourceID    string    `json:"source_id"`
	MangaID     string    `json:"manga_id"`
	Title       string    `json:"title"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Description string    `json:"description,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Status      string    `json:"status,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	// last read position, empty if never read
	LastReadChapterID string    `json:"last_read_chapter_id,omitempty"`
	LastReadPage      int       `json:"last_read_page"`
	LastReadAt        time.Time `json:"last_read_at,omitempty"`
	CategoryIDs       []int64   `json:"category_ids,omitempty"`
}

// ToString stringifies the object
func (bookmark *Bookmark) ToString() string {
	return fmt.Sprintf("<Bookmark %s/%s %q>", bookmark.SourceID, bookmark.MangaID, bookmark.Title)
}

// StoredChapter is a chapter of a bookmarked manga
type StoredChapter struct {
	ChapterID string    `json:"chapter_id"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Read      bool      `json:"read"`
	LastPage  int       `json:"last_page"`
}

// Category groups bookmarks, Position orders categories from 0
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}
