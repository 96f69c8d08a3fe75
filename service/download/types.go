package download

import (
	"fmt"

	"github.com/mirareader/mira-pool/service/storage"
)

// DownloadState is the state of a chapter download
type DownloadState int

const (
	// DownloadStateNone means the chapter is neither queued nor downloaded
	DownloadStateNone DownloadState = iota
	// DownloadStatePending means the chapter is queued behind other jobs
	DownloadStatePending
	// DownloadStateDownloading means pages of the chapter are being fetched
	DownloadStateDownloading
	// DownloadStateDownloaded means all pages are on disk
	DownloadStateDownloaded
)

// String returns the name of the state
func (state DownloadState) String() string {
	switch state {
	case DownloadStateNone:
		return "NONE"
	case DownloadStatePending:
		return "PENDING"
	case DownloadStateDownloading:
		return "DOWNLOADING"
	case DownloadStateDownloaded:
		return "DOWNLOADED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(state))
	}
}

// JobKey identifies a download job
type JobKey struct {
	SourceID  string `json:"source_id"`
	MangaID   string `json:"manga_id"`
	ChapterID string `json:"chapter_id"`
}

// ToString stringifies the object
func (key JobKey) ToString() string {
	return fmt.Sprintf("<JobKey %s/%s/%s>", key.SourceID, key.MangaID, key.ChapterID)
}

// Job is a request to download all pages of a chapter.
// Two jobs with the same Key are the same job, Name is for display only.
type Job struct {
	Key          JobKey `json:"key"`
	Name         string `json:"name"`
	ChapterIndex int    `json:"chapter_index"`
}

// ChapterRef returns where the job's pages are stored
func (job Job) ChapterRef() storage.ChapterRef {
	return storage.ChapterRef{
		SourceID:     job.Key.SourceID,
		MangaID:      job.Key.MangaID,
		ChapterIndex: job.ChapterIndex,
	}
}

// ToString stringifies the object
func (job Job) ToString() string {
	return fmt.Sprintf("<Job %s/%s/%s #%d %q>", job.Key.SourceID, job.Key.MangaID, job.Key.ChapterID, job.ChapterIndex, job.Name)
}

// StateChangeListener is called when a job moves to another state
type StateChangeListener func(key JobKey, state DownloadState)

// FailureListener is called when a job fails, after its partial pages are removed
type FailureListener func(job Job, err error)
