package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *MediaStorage {
	storage, err := NewMediaStorage(filepath.Join(t.TempDir(), "downloads"))
	require.NoError(t, err)
	return storage
}

func TestMediaStorageLayout(t *testing.T) {
	storage := newTestStorage(t)
	ref := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 7}

	expected := filepath.Join(storage.GetRootPath(), utils.HashData("sourceA"), utils.HashData("manga1"), "chapters", "0007", "0012.png")
	assert.Equal(t, expected, storage.ChapterPagePath(ref, 12))
	assert.Equal(t, filepath.Join(storage.GetRootPath(), utils.HashData("sourceA"), utils.HashData("manga1"), "cover.png"), storage.CoverPath("sourceA", "manga1"))
}

func TestMediaStorageChapterLifecycle(t *testing.T) {
	storage := newTestStorage(t)
	ref := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 0}

	assert.False(t, storage.IsChapterDownloaded(ref))
	assert.Equal(t, 0, storage.GetDownloadedChapterPagesNum(ref))

	epoch := storage.ChapterEpoch(ref)
	for page := 0; page < 3; page++ {
		require.NoError(t, storage.SaveChapterPage(ref, epoch, page, strings.NewReader("page")))
	}

	// pages alone do not make a downloaded chapter
	assert.False(t, storage.IsChapterDownloaded(ref))
	require.NoError(t, storage.MarkChapterComplete(ref, epoch, 3))

	assert.True(t, storage.IsChapterDownloaded(ref))
	assert.Equal(t, 3, storage.GetDownloadedChapterPagesNum(ref))
	assert.Equal(t, []int{0}, storage.ListDownloadedChapters("sourceA", "manga1"))

	file, err := storage.OpenChapterPage(ref, 1)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	file.Close()
	require.NoError(t, err)
	assert.Equal(t, "page", string(data))

	deleted, err := storage.DeleteDownloadedChapter(ref)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, storage.IsChapterDownloaded(ref))

	_, err = os.Stat(storage.ChapterDirPath(ref))
	assert.True(t, os.IsNotExist(err))

	deleted, err = storage.DeleteDownloadedChapter(ref)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = storage.OpenChapterPage(ref, 1)
	assert.True(t, commons.IsChapterNotFoundError(err))
}

func TestMediaStorageStaleEpochIsRefused(t *testing.T) {
	storage := newTestStorage(t)
	ref := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 1}

	epoch := storage.ChapterEpoch(ref)
	require.NoError(t, storage.SaveChapterPage(ref, epoch, 0, strings.NewReader("page")))

	_, err := storage.DeleteDownloadedChapter(ref)
	require.NoError(t, err)

	err = storage.SaveChapterPage(ref, epoch, 1, strings.NewReader("page"))
	assert.True(t, commons.IsChapterDeletedError(err))

	err = storage.MarkChapterComplete(ref, epoch, 2)
	assert.True(t, commons.IsChapterDeletedError(err))

	// the deleted dir is not resurrected
	_, err = os.Stat(storage.ChapterDirPath(ref))
	assert.True(t, os.IsNotExist(err))

	// a new epoch can write again
	require.NoError(t, storage.SaveChapterPage(ref, storage.ChapterEpoch(ref), 0, strings.NewReader("page")))
}

func TestMediaStorageCover(t *testing.T) {
	storage := newTestStorage(t)

	assert.False(t, storage.HasCover("sourceA", "manga1"))
	_, err := storage.OpenCover("sourceA", "manga1")
	assert.True(t, commons.IsMangaNotFoundError(err))

	require.NoError(t, storage.SaveCover("sourceA", "manga1", strings.NewReader("cover")))
	assert.True(t, storage.HasCover("sourceA", "manga1"))

	file, err := storage.OpenCover("sourceA", "manga1")
	require.NoError(t, err)
	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "cover", string(data))

	require.NoError(t, storage.DeleteManga("sourceA", "manga1"))
	assert.False(t, storage.HasCover("sourceA", "manga1"))
}

func TestMediaStorageDeleteMangaRefusesChaptersBeingWritten(t *testing.T) {
	storage := newTestStorage(t)
	written := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 0}
	started := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 1}

	// one chapter with a page on disk, one with only an epoch taken
	writtenEpoch := storage.ChapterEpoch(written)
	require.NoError(t, storage.SaveChapterPage(written, writtenEpoch, 0, strings.NewReader("page")))
	startedEpoch := storage.ChapterEpoch(started)

	require.NoError(t, storage.DeleteManga("sourceA", "manga1"))

	err := storage.SaveChapterPage(written, writtenEpoch, 1, strings.NewReader("page"))
	assert.True(t, commons.IsChapterDeletedError(err))
	err = storage.MarkChapterComplete(written, writtenEpoch, 2)
	assert.True(t, commons.IsChapterDeletedError(err))
	err = storage.SaveChapterPage(started, startedEpoch, 0, strings.NewReader("page"))
	assert.True(t, commons.IsChapterDeletedError(err))

	_, err = os.Stat(storage.MangaDirPath("sourceA", "manga1"))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, storage.ListDownloadedChapters("sourceA", "manga1"))
}

func TestMediaStorageDropsFinishedChapterLocks(t *testing.T) {
	storage := newTestStorage(t)

	for idx := 0; idx < 5; idx++ {
		ref := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: idx}
		epoch := storage.ChapterEpoch(ref)
		require.NoError(t, storage.SaveChapterPage(ref, epoch, 0, strings.NewReader("page")))
		require.NoError(t, storage.MarkChapterComplete(ref, epoch, 1))
	}
	assert.Equal(t, 0, storage.lockEntries())

	ref := ChapterRef{SourceID: "sourceA", MangaID: "manga1", ChapterIndex: 9}
	epoch := storage.ChapterEpoch(ref)
	assert.Equal(t, 1, storage.lockEntries())

	_, err := storage.DeleteDownloadedChapter(ref)
	require.NoError(t, err)
	assert.Equal(t, 0, storage.lockEntries())

	// a dropped entry never hands out an epoch of before
	assert.NotEqual(t, epoch, storage.ChapterEpoch(ref))
	err = storage.SaveChapterPage(ref, epoch, 0, strings.NewReader("page"))
	assert.True(t, commons.IsChapterDeletedError(err))
}
