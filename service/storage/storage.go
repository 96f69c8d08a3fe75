package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/utils"
	"github.com/natefinch/atomic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	chaptersDirName       string = "chapters"
	chapterCompleteMarker string = "complete"
	coverFileName         string = "cover.png"
	pageFileExtension     string = ".png"
	storageDirPermission         = 0755
)

// ChapterRef locates a chapter on disk
type ChapterRef struct {
	SourceID     string `json:"source_id"`
	MangaID      string `json:"manga_id"`
	ChapterIndex int    `json:"chapter_index"`
}

// ToString stringifies the object
func (ref ChapterRef) ToString() string {
	return fmt.Sprintf("<ChapterRef %s/%s #%d>", ref.SourceID, ref.MangaID, ref.ChapterIndex)
}

func (ref ChapterRef) lockKey() string {
	return fmt.Sprintf("%s/%s/%d", utils.HashData(ref.SourceID), utils.HashData(ref.MangaID), ref.ChapterIndex)
}

// chapterLock serializes page writes and deletion of a chapter.
// epoch moves on every deletion, writers started before it are refused.
type chapterLock struct {
	ref     ChapterRef
	mutex   sync.Mutex
	epoch   uint64
	holders int // guarded by MediaStorage.mutex
}

// MediaStorage keeps downloaded pages and covers under
// {root}/{hash(source)}/{hash(manga)}/chapters/{chapter}/{page}.png
type MediaStorage struct {
	rootPath string
	// locks holds chapters being written or deleted, entries are dropped once a chapter
	// is completed or deleted and nobody holds them
	locks     map[string]*chapterLock
	lastEpoch uint64
	mutex     sync.Mutex
}

// NewMediaStorage creates a new MediaStorage
func NewMediaStorage(rootPath string) (*MediaStorage, error) {
	err := os.MkdirAll(rootPath, storageDirPermission)
	if err != nil {
		return nil, xerrors.Errorf("failed to make storage root %s: %w", rootPath, err)
	}

	return &MediaStorage{
		rootPath: rootPath,
		locks:    map[string]*chapterLock{},
	}, nil
}

// GetRootPath returns the storage root
func (storage *MediaStorage) GetRootPath() string {
	return storage.rootPath
}

// nextEpoch returns an epoch never handed out before, storage.mutex must be held.
// A lock entry made again after being dropped never reuses an old epoch.
func (storage *MediaStorage) nextEpoch() uint64 {
	storage.lastEpoch++
	return storage.lastEpoch
}

func (storage *MediaStorage) acquireChapterLock(ref ChapterRef) *chapterLock {
	storage.mutex.Lock()
	key := ref.lockKey()
	lock, ok := storage.locks[key]
	if !ok {
		lock = &chapterLock{
			ref:   ref,
			epoch: storage.nextEpoch(),
		}
		storage.locks[key] = lock
	}
	lock.holders++
	storage.mutex.Unlock()

	lock.mutex.Lock()
	return lock
}

// releaseChapterLock unlocks the chapter, drop removes the entry if nobody else holds it
func (storage *MediaStorage) releaseChapterLock(lock *chapterLock, drop bool) {
	lock.mutex.Unlock()

	storage.mutex.Lock()
	defer storage.mutex.Unlock()

	lock.holders--
	if drop && lock.holders == 0 {
		key := lock.ref.lockKey()
		if storage.locks[key] == lock {
			delete(storage.locks, key)
		}
	}
}

// bumpEpoch refuses writers holding the current epoch, lock.mutex must be held
func (storage *MediaStorage) bumpEpoch(lock *chapterLock) {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()

	lock.epoch = storage.nextEpoch()
}

// MangaDirPath returns the dir of a manga
func (storage *MediaStorage) MangaDirPath(sourceID string, mangaID string) string {
	return filepath.Join(storage.rootPath, utils.HashData(sourceID), utils.HashData(mangaID))
}

// ChapterDirPath returns the dir of a chapter
func (storage *MediaStorage) ChapterDirPath(ref ChapterRef) string {
	return filepath.Join(storage.MangaDirPath(ref.SourceID, ref.MangaID), chaptersDirName, utils.ZeroPad(ref.ChapterIndex))
}

// ChapterPagePath returns the file path of a page
func (storage *MediaStorage) ChapterPagePath(ref ChapterRef, pageIndex int) string {
	return filepath.Join(storage.ChapterDirPath(ref), utils.ZeroPad(pageIndex)+pageFileExtension)
}

// CoverPath returns the file path of a manga cover
func (storage *MediaStorage) CoverPath(sourceID string, mangaID string) string {
	return filepath.Join(storage.MangaDirPath(sourceID, mangaID), coverFileName)
}

// ChapterEpoch returns the current epoch of a chapter, writers pass it back to SaveChapterPage
func (storage *MediaStorage) ChapterEpoch(ref ChapterRef) uint64 {
	lock := storage.acquireChapterLock(ref)
	defer storage.releaseChapterLock(lock, false)

	return lock.epoch
}

// SaveChapterPage writes a page atomically.
// Returns ChapterDeletedError if the chapter was deleted after epoch was taken.
func (storage *MediaStorage) SaveChapterPage(ref ChapterRef, epoch uint64, pageIndex int, reader io.Reader) error {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "MediaStorage",
		"function": "SaveChapterPage",
	})

	lock := storage.acquireChapterLock(ref)
	defer storage.releaseChapterLock(lock, false)

	dirPath := storage.ChapterDirPath(ref)
	if lock.epoch != epoch {
		return commons.NewChapterDeletedError(dirPath)
	}

	err := os.MkdirAll(dirPath, storageDirPermission)
	if err != nil {
		return xerrors.Errorf("failed to make chapter dir %s: %w", dirPath, err)
	}

	pagePath := storage.ChapterPagePath(ref, pageIndex)
	logger.Debugf("Writing page %s", pagePath)

	err = atomic.WriteFile(pagePath, reader)
	if err != nil {
		return xerrors.Errorf("failed to write page %s: %w", pagePath, err)
	}

	return nil
}

// MarkChapterComplete writes the complete marker holding the page count
func (storage *MediaStorage) MarkChapterComplete(ref ChapterRef, epoch uint64, pages int) error {
	lock := storage.acquireChapterLock(ref)
	defer storage.releaseChapterLock(lock, true)

	dirPath := storage.ChapterDirPath(ref)
	if lock.epoch != epoch {
		return commons.NewChapterDeletedError(dirPath)
	}

	err := os.MkdirAll(dirPath, storageDirPermission)
	if err != nil {
		return xerrors.Errorf("failed to make chapter dir %s: %w", dirPath, err)
	}

	markerPath := filepath.Join(dirPath, chapterCompleteMarker)
	err = atomic.WriteFile(markerPath, strings.NewReader(strconv.Itoa(pages)))
	if err != nil {
		return xerrors.Errorf("failed to write complete marker %s: %w", markerPath, err)
	}

	return nil
}

// IsChapterDownloaded checks the complete marker
func (storage *MediaStorage) IsChapterDownloaded(ref ChapterRef) bool {
	_, err := os.Stat(filepath.Join(storage.ChapterDirPath(ref), chapterCompleteMarker))
	return err == nil
}

// DeleteDownloadedChapter removes the chapter dir and moves the epoch so in-flight writers fail.
// Returns true if something was deleted.
func (storage *MediaStorage) DeleteDownloadedChapter(ref ChapterRef) (bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "MediaStorage",
		"function": "DeleteDownloadedChapter",
	})

	lock := storage.acquireChapterLock(ref)
	defer storage.releaseChapterLock(lock, true)

	storage.bumpEpoch(lock)

	dirPath := storage.ChapterDirPath(ref)
	_, err := os.Stat(dirPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, xerrors.Errorf("failed to stat chapter dir %s: %w", dirPath, err)
	}

	logger.Debugf("Deleting chapter dir %s", dirPath)
	err = os.RemoveAll(dirPath)
	if err != nil {
		return false, xerrors.Errorf("failed to delete chapter dir %s: %w", dirPath, err)
	}

	return true, nil
}

// GetDownloadedChapterPagesNum returns the number of pages on disk
func (storage *MediaStorage) GetDownloadedChapterPagesNum(ref ChapterRef) int {
	entries, err := os.ReadDir(storage.ChapterDirPath(ref))
	if err != nil {
		return 0
	}

	pages := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), pageFileExtension) {
			pages++
		}
	}
	return pages
}

// ListDownloadedChapters returns indices of completely downloaded chapters, ascending
func (storage *MediaStorage) ListDownloadedChapters(sourceID string, mangaID string) []int {
	entries, err := os.ReadDir(filepath.Join(storage.MangaDirPath(sourceID, mangaID), chaptersDirName))
	if err != nil {
		return []int{}
	}

	indices := []int{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		idx, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		ref := ChapterRef{SourceID: sourceID, MangaID: mangaID, ChapterIndex: idx}
		if storage.IsChapterDownloaded(ref) {
			indices = append(indices, idx)
		}
	}

	sort.Ints(indices)
	return indices
}

// OpenChapterPage opens a downloaded page
func (storage *MediaStorage) OpenChapterPage(ref ChapterRef, pageIndex int) (*os.File, error) {
	pagePath := storage.ChapterPagePath(ref, pageIndex)
	file, err := os.Open(pagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, commons.NewChapterNotFoundError(ref.SourceID, ref.MangaID, strconv.Itoa(ref.ChapterIndex))
		}
		return nil, xerrors.Errorf("failed to open page %s: %w", pagePath, err)
	}
	return file, nil
}

// SaveCover writes a manga cover atomically
func (storage *MediaStorage) SaveCover(sourceID string, mangaID string, reader io.Reader) error {
	dirPath := storage.MangaDirPath(sourceID, mangaID)
	err := os.MkdirAll(dirPath, storageDirPermission)
	if err != nil {
		return xerrors.Errorf("failed to make manga dir %s: %w", dirPath, err)
	}

	coverPath := storage.CoverPath(sourceID, mangaID)
	err = atomic.WriteFile(coverPath, reader)
	if err != nil {
		return xerrors.Errorf("failed to write cover %s: %w", coverPath, err)
	}
	return nil
}

// HasCover checks if a cover is stored
func (storage *MediaStorage) HasCover(sourceID string, mangaID string) bool {
	_, err := os.Stat(storage.CoverPath(sourceID, mangaID))
	return err == nil
}

// OpenCover opens a stored cover
func (storage *MediaStorage) OpenCover(sourceID string, mangaID string) (*os.File, error) {
	coverPath := storage.CoverPath(sourceID, mangaID)
	file, err := os.Open(coverPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, commons.NewMangaNotFoundError(sourceID, mangaID)
		}
		return nil, xerrors.Errorf("failed to open cover %s: %w", coverPath, err)
	}
	return file, nil
}

// lockedChapterIndices returns indices of chapters of a manga with a lock entry
func (storage *MediaStorage) lockedChapterIndices(sourceID string, mangaID string) []int {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()

	indices := []int{}
	for _, lock := range storage.locks {
		if lock.ref.SourceID == sourceID && lock.ref.MangaID == mangaID {
			indices = append(indices, lock.ref.ChapterIndex)
		}
	}
	return indices
}

// listChapterDirs returns indices of all chapter dirs of a manga, complete or not
func (storage *MediaStorage) listChapterDirs(sourceID string, mangaID string) []int {
	entries, err := os.ReadDir(filepath.Join(storage.MangaDirPath(sourceID, mangaID), chaptersDirName))
	if err != nil {
		return []int{}
	}

	indices := []int{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		idx, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	return indices
}

// DeleteManga removes all stored data of a manga, chapters being written included.
// Writers of the manga started before the call are refused afterwards.
func (storage *MediaStorage) DeleteManga(sourceID string, mangaID string) error {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "MediaStorage",
		"function": "DeleteManga",
	})

	indices := map[int]bool{}
	for _, idx := range storage.listChapterDirs(sourceID, mangaID) {
		indices[idx] = true
	}
	for _, idx := range storage.lockedChapterIndices(sourceID, mangaID) {
		indices[idx] = true
	}

	for idx := range indices {
		_, err := storage.DeleteDownloadedChapter(ChapterRef{SourceID: sourceID, MangaID: mangaID, ChapterIndex: idx})
		if err != nil {
			return err
		}
	}

	coverPath := storage.CoverPath(sourceID, mangaID)
	err := os.Remove(coverPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return xerrors.Errorf("failed to delete cover %s: %w", coverPath, err)
	}

	// a chapter started after the deletion keeps its dirs
	mangaDirPath := storage.MangaDirPath(sourceID, mangaID)
	for _, dirPath := range []string{filepath.Join(mangaDirPath, chaptersDirName), mangaDirPath} {
		err = os.Remove(dirPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).Debugf("keeping dir %s", dirPath)
		}
	}

	logger.Debugf("Deleted manga %s/%s", sourceID, mangaID)
	return nil
}

// lockEntries returns the number of chapter lock entries
func (storage *MediaStorage) lockEntries() int {
	storage.mutex.Lock()
	defer storage.mutex.Unlock()

	return len(storage.locks)
}
