package reader

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/library"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/mirareader/mira-pool/service/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContent() *remote.ChapterContent {
	return &remote.ChapterContent{
		ChapterID: "c1",
		Pages: []remote.Page{
			{URL: "http://img/1", Headers: map[string]string{"Referer": "r"}},
			{URL: "http://img/2"},
		},
	}
}

func TestBuildChapterItemsFromNetwork(t *testing.T) {
	store, err := storage.NewMediaStorage(t.TempDir())
	require.NoError(t, err)

	ref := storage.ChapterRef{SourceID: "s", MangaID: "m", ChapterIndex: 3}
	items := BuildChapterItems(ref, testContent(), store, true)
	require.Len(t, items, 3)

	page, ok := items[0].(*NetworkChapterItem)
	require.True(t, ok)
	assert.Equal(t, 3, page.ChapterIndex)
	assert.Equal(t, "http://img/1", page.Request.URL)
	assert.Equal(t, "Referer", page.Request.Headers[0].Key)

	divider, ok := items[2].(*ReaderDividerItem)
	require.True(t, ok)
	assert.True(t, divider.HasNext)
	assert.Equal(t, "end of chapter 3", Describe(divider))
}

func TestBuildChapterItemsFromDisk(t *testing.T) {
	store, err := storage.NewMediaStorage(t.TempDir())
	require.NoError(t, err)

	ref := storage.ChapterRef{SourceID: "s", MangaID: "m", ChapterIndex: 0}
	epoch := store.ChapterEpoch(ref)
	for page := 0; page < 2; page++ {
		require.NoError(t, store.SaveChapterPage(ref, epoch, page, strings.NewReader("x")))
	}
	require.NoError(t, store.MarkChapterComplete(ref, epoch, 2))

	items := BuildChapterItems(ref, nil, store, false)
	require.Len(t, items, 3)

	local, ok := items[1].(*LocalChapterItem)
	require.True(t, ok)
	assert.Equal(t, store.ChapterPagePath(ref, 1), local.Path)
	assert.Equal(t, ItemKindLocal, ToView(local).Kind)
}

func TestTranslate(t *testing.T) {
	ref := storage.ChapterRef{SourceID: "s", MangaID: "m", ChapterIndex: 1}
	items := BuildChapterItems(ref, testContent(), nil, false)

	require.NoError(t, Translate(items, 1, "/tmp/t1.png"))

	translated, ok := items[1].(*TranslatedChapterItem)
	require.True(t, ok)
	assert.Equal(t, 1, translated.GetPageIndex())
	assert.Equal(t, 1, translated.GetChapterIndex())
	assert.Equal(t, "translated network page 1 of chapter 1 (http://img/2)", Describe(translated))

	// translating again does not nest
	require.NoError(t, Translate(items, 1, "/tmp/t2.png"))
	translated = items[1].(*TranslatedChapterItem)
	assert.IsType(t, &NetworkChapterItem{}, translated.Original)
	assert.Equal(t, "/tmp/t2.png", translated.TranslatedPath)

	view := ToView(translated)
	assert.Equal(t, ItemKindTranslated, view.Kind)
	assert.Equal(t, "http://img/2", view.Request.URL)

	assert.True(t, commons.IsInvalidArgumentError(Translate(items, 2, "/tmp/x.png")))
	assert.True(t, commons.IsInvalidArgumentError(Translate(items, 5, "/tmp/x.png")))

	// a hole in the list is refused, not a crash
	holes := []ReaderItem{nil}
	assert.True(t, commons.IsInvalidArgumentError(Translate(holes, 0, "/tmp/x.png")))
	assert.Nil(t, holes[0])

	views := ToViews(items)
	assert.Equal(t, []string{ItemKindNetwork, ItemKindTranslated, ItemKindDivider}, []string{views[0].Kind, views[1].Kind, views[2].Kind})
}

func TestResolvePreview(t *testing.T) {
	ctx := context.Background()
	lib, err := library.OpenLibrary(ctx, filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	defer lib.Release()

	require.NoError(t, lib.Bookmark(ctx, &remote.Manga{ID: "m1", SourceID: "s", Title: "Stored"}))
	require.NoError(t, lib.UpdateBookmarkReadInfo(ctx, "s", "m1", "c9", 4))

	previews, err := ResolvePreviews(ctx, lib, []remote.MangaPreview{
		{ID: "m1", SourceID: "s", Title: "Remote title"},
		{ID: "m2", SourceID: "s", Title: "Other"},
	})
	require.NoError(t, err)
	require.Len(t, previews, 2)

	bookmarked, ok := previews[0].(*BookmarkedPreview)
	require.True(t, ok)
	assert.Equal(t, "Stored", bookmarked.GetTitle())

	view := ToPreviewView(bookmarked)
	assert.True(t, view.Bookmarked)
	assert.Equal(t, "c9", view.LastReadChapterID)
	assert.Equal(t, 4, view.LastReadPage)

	remotePreview, ok := previews[1].(*RemotePreview)
	require.True(t, ok)
	assert.Equal(t, "m2", remotePreview.GetMangaID())
	assert.False(t, ToPreviewView(remotePreview).Bookmarked)
}
