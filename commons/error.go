package commons

import (
	"errors"
	"fmt"
)

// MangaNotFoundError contains manga not found error information
type MangaNotFoundError struct {
	SourceID string
	MangaID  string
}

// NewMangaNotFoundError creates an error for manga not found error
func NewMangaNotFoundError(sourceID string, mangaID string) error {
	return &MangaNotFoundError{
		SourceID: sourceID,
		MangaID:  mangaID,
	}
}

// Error returns error message
func (err *MangaNotFoundError) Error() string {
	return fmt.Sprintf("manga '%s' of source '%s' not found", err.MangaID, err.SourceID)
}

// Is tests type of error
func (err *MangaNotFoundError) Is(other error) bool {
	_, ok := other.(*MangaNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *MangaNotFoundError) ToString() string {
	return "<MangaNotFoundError>"
}

// IsMangaNotFoundError evaluates if the given error is manga not found error
func IsMangaNotFoundError(err error) bool {
	return errors.Is(err, &MangaNotFoundError{})
}

// ChapterNotFoundError contains chapter not found error information
type ChapterNotFoundError struct {
	SourceID  string
	MangaID   string
	ChapterID string
}

// NewChapterNotFoundError creates an error for chapter not found error
func NewChapterNotFoundError(sourceID string, mangaID string, chapterID string) error {
	return &ChapterNotFoundError{
		SourceID:  sourceID,
		MangaID:   mangaID,
		ChapterID: chapterID,
	}
}

// Error returns error message
func (err *ChapterNotFoundError) Error() string {
	return fmt.Sprintf("chapter '%s' of manga '%s' (source '%s') not found", err.ChapterID, err.MangaID, err.SourceID)
}

// Is tests type of error
func (err *ChapterNotFoundError) Is(other error) bool {
	_, ok := other.(*ChapterNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *ChapterNotFoundError) ToString() string {
	return "<ChapterNotFoundError>"
}

// IsChapterNotFoundError evaluates if the given error is chapter not found error
func IsChapterNotFoundError(err error) bool {
	return errors.Is(err, &ChapterNotFoundError{})
}

// CategoryNotFoundError contains category not found error information
type CategoryNotFoundError struct {
	CategoryID int64
}

// NewCategoryNotFoundError creates an error for category not found error
func NewCategoryNotFoundError(categoryID int64) error {
	return &CategoryNotFoundError{
		CategoryID: categoryID,
	}
}

// Error returns error message
func (err *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("category '%d' not found", err.CategoryID)
}

// Is tests type of error
func (err *CategoryNotFoundError) Is(other error) bool {
	_, ok := other.(*CategoryNotFoundError)
	return ok
}

// ToString stringifies the object
func (err *CategoryNotFoundError) ToString() string {
	return "<CategoryNotFoundError>"
}

// IsCategoryNotFoundError evaluates if the given error is category not found error
func IsCategoryNotFoundError(err error) bool {
	return errors.Is(err, &CategoryNotFoundError{})
}

// DownloadFailedError is raised inside the download worker to drive cleanup of a chapter
type DownloadFailedError struct {
	JobName string
	Cause   error
}

// NewDownloadFailedError creates an error for download failure
func NewDownloadFailedError(jobName string, cause error) error {
	return &DownloadFailedError{
		JobName: jobName,
		Cause:   cause,
	}
}

// Error returns error message
func (err *DownloadFailedError) Error() string {
	if err.Cause == nil {
		return fmt.Sprintf("failed to download '%s'", err.JobName)
	}
	return fmt.Sprintf("failed to download '%s' - %v", err.JobName, err.Cause)
}

// Unwrap returns the cause
func (err *DownloadFailedError) Unwrap() error {
	return err.Cause
}

// Is tests type of error
func (err *DownloadFailedError) Is(other error) bool {
	_, ok := other.(*DownloadFailedError)
	return ok
}

// ToString stringifies the object
func (err *DownloadFailedError) ToString() string {
	return "<DownloadFailedError>"
}

// IsDownloadFailedError evaluates if the given error is download failed error
func IsDownloadFailedError(err error) bool {
	return errors.Is(err, &DownloadFailedError{})
}

// ChapterDeletedError is returned when a page write races with deletion of its chapter
type ChapterDeletedError struct {
	Path string
}

// NewChapterDeletedError creates an error for chapter deleted error
func NewChapterDeletedError(path string) error {
	return &ChapterDeletedError{
		Path: path,
	}
}

// Error returns error message
func (err *ChapterDeletedError) Error() string {
	return fmt.Sprintf("chapter dir '%s' was deleted while writing", err.Path)
}

// Is tests type of error
func (err *ChapterDeletedError) Is(other error) bool {
	_, ok := other.(*ChapterDeletedError)
	return ok
}

// ToString stringifies the object
func (err *ChapterDeletedError) ToString() string {
	return "<ChapterDeletedError>"
}

// IsChapterDeletedError evaluates if the given error is chapter deleted error
func IsChapterDeletedError(err error) bool {
	return errors.Is(err, &ChapterDeletedError{})
}

// HTTPStatusError contains non-200 response information
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

// NewHTTPStatusError creates an error for unexpected http status
func NewHTTPStatusError(url string, statusCode int) error {
	return &HTTPStatusError{
		URL:        url,
		StatusCode: statusCode,
	}
}

// Error returns error message
func (err *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d for '%s'", err.StatusCode, err.URL)
}

// Is tests type of error
func (err *HTTPStatusError) Is(other error) bool {
	_, ok := other.(*HTTPStatusError)
	return ok
}

// ToString stringifies the object
func (err *HTTPStatusError) ToString() string {
	return "<HTTPStatusError>"
}

// IsHTTPStatusError evaluates if the given error is http status error
func IsHTTPStatusError(err error) bool {
	return errors.Is(err, &HTTPStatusError{})
}

// RetriesExhaustedError is returned when a fetch failed on every attempt
type RetriesExhaustedError struct {
	URL      string
	Attempts int
	LastErr  error
}

// NewRetriesExhaustedError creates an error for exhausted retries
func NewRetriesExhaustedError(url string, attempts int, lastErr error) error {
	return &RetriesExhaustedError{
		URL:      url,
		Attempts: attempts,
		LastErr:  lastErr,
	}
}

// Error returns error message
func (err *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("failed to fetch '%s' after %d attempts - %v", err.URL, err.Attempts, err.LastErr)
}

// Unwrap returns the last error
func (err *RetriesExhaustedError) Unwrap() error {
	return err.LastErr
}

// Is tests type of error
func (err *RetriesExhaustedError) Is(other error) bool {
	_, ok := other.(*RetriesExhaustedError)
	return ok
}

// ToString stringifies the object
func (err *RetriesExhaustedError) ToString() string {
	return "<RetriesExhaustedError>"
}

// IsRetriesExhaustedError evaluates if the given error is retries exhausted error
func IsRetriesExhaustedError(err error) bool {
	return errors.Is(err, &RetriesExhaustedError{})
}
