package reader

import (
	"fmt"

	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/image"
	"github.com/mirareader/mira-pool/service/remote"
	"github.com/mirareader/mira-pool/service/storage"
)

// ReaderItem is a unit shown by the paginated reader.
// The set of implementations is closed: NetworkChapterItem, LocalChapterItem,
// TranslatedChapterItem and ReaderDividerItem.
type ReaderItem interface {
	GetChapterIndex() int
	readerItem()
}

// PageItem is a ReaderItem showing a page
type PageItem interface {
	ReaderItem
	GetPageIndex() int
}

// NetworkChapterItem is a page not downloaded yet
type NetworkChapterItem struct {
	ChapterIndex int
	PageIndex    int
	Request      image.NetworkImageRequest
}

// LocalChapterItem is a page on disk
type LocalChapterItem struct {
	ChapterIndex int
	PageIndex    int
	Path         string
}

// TranslatedChapterItem replaces a page with its translation
type TranslatedChapterItem struct {
	Original       PageItem
	TranslatedPath string
}

// ReaderDividerItem marks the end of a chapter
type ReaderDividerItem struct {
	ChapterIndex int
	// HasNext is false after the last chapter
	HasNext bool
}

func (item *NetworkChapterItem) readerItem()    {}
func (item *LocalChapterItem) readerItem()      {}
func (item *TranslatedChapterItem) readerItem() {}
func (item *ReaderDividerItem) readerItem()     {}

// GetChapterIndex returns the chapter index
func (item *NetworkChapterItem) GetChapterIndex() int {
	return item.ChapterIndex
}

// GetPageIndex returns the page index
func (item *NetworkChapterItem) GetPageIndex() int {
	return item.PageIndex
}

// GetChapterIndex returns the chapter index
func (item *LocalChapterItem) GetChapterIndex() int {
	return item.ChapterIndex
}

// GetPageIndex returns the page index
func (item *LocalChapterItem) GetPageIndex() int {
	return item.PageIndex
}

// GetChapterIndex returns the chapter index of the original page
func (item *TranslatedChapterItem) GetChapterIndex() int {
	return item.Original.GetChapterIndex()
}

// GetPageIndex returns the page index of the original page
func (item *TranslatedChapterItem) GetPageIndex() int {
	return item.Original.GetPageIndex()
}

// GetChapterIndex returns the chapter index
func (item *ReaderDividerItem) GetChapterIndex() int {
	return item.ChapterIndex
}

// Describe returns a short description of an item
func Describe(item ReaderItem) string {
	switch v := item.(type) {
	case *NetworkChapterItem:
		return fmt.Sprintf("network page %d of chapter %d (%s)", v.PageIndex, v.ChapterIndex, v.Request.URL)
	case *LocalChapterItem:
		return fmt.Sprintf("local page %d of chapter %d (%s)", v.PageIndex, v.ChapterIndex, v.Path)
	case *TranslatedChapterItem:
		return fmt.Sprintf("translated %s", Describe(v.Original))
	case *ReaderDividerItem:
		return fmt.Sprintf("end of chapter %d", v.ChapterIndex)
	default:
		panic(fmt.Sprintf("unknown reader item %T", item))
	}
}

// BuildChapterItems returns the pages of a chapter followed by a divider.
// Downloaded chapters are read from disk, content may be nil for them.
func BuildChapterItems(ref storage.ChapterRef, content *remote.ChapterContent, store *storage.MediaStorage, hasNext bool) []ReaderItem {
	items := []ReaderItem{}

	if store != nil && store.IsChapterDownloaded(ref) {
		pages := store.GetDownloadedChapterPagesNum(ref)
		for pageIndex := 0; pageIndex < pages; pageIndex++ {
			items = append(items, &LocalChapterItem{
				ChapterIndex: ref.ChapterIndex,
				PageIndex:    pageIndex,
				Path:         store.ChapterPagePath(ref, pageIndex),
			})
		}
	} else if content != nil {
		for pageIndex, page := range content.Pages {
			items = append(items, &NetworkChapterItem{
				ChapterIndex: ref.ChapterIndex,
				PageIndex:    pageIndex,
				Request:      image.NewNetworkImageRequest(page.URL, page.Headers),
			})
		}
	}

	return append(items, &ReaderDividerItem{
		ChapterIndex: ref.ChapterIndex,
		HasNext:      hasNext,
	})
}

// Translate replaces the page at idx with its translation, in place.
// Translating a translated page replaces the translation.
func Translate(items []ReaderItem, idx int, translatedPath string) error {
	if idx < 0 || idx >= len(items) {
		return commons.NewInvalidArgumentErrorf("item index %d out of range [0, %d)", idx, len(items))
	}

	switch v := items[idx].(type) {
	case *NetworkChapterItem, *LocalChapterItem:
		items[idx] = &TranslatedChapterItem{
			Original:       v.(PageItem),
			TranslatedPath: translatedPath,
		}
		return nil
	case *TranslatedChapterItem:
		items[idx] = &TranslatedChapterItem{
			Original:       v.Original,
			TranslatedPath: translatedPath,
		}
		return nil
	case *ReaderDividerItem:
		return commons.NewInvalidArgumentErrorf("item %d is a divider, not a page", idx)
	case nil:
		return commons.NewInvalidArgumentErrorf("item %d is nil", idx)
	default:
		panic(fmt.Sprintf("unknown reader item %T", v))
	}
}

// ItemView is the serializable form of a ReaderItem
type ItemView struct {
	Kind           string                     `json:"kind"`
	ChapterIndex   int                        `json:"chapter_index"`
	PageIndex      int                        `json:"page_index"`
	Request        *image.NetworkImageRequest `json:"request,omitempty"`
	Path           string                     `json:"path,omitempty"`
	TranslatedPath string                     `json:"translated_path,omitempty"`
	HasNext        bool                       `json:"has_next,omitempty"`
}

// Item kinds of ItemView
const (
	ItemKindNetwork    string = "network"
	ItemKindLocal      string = "local"
	ItemKindTranslated string = "translated"
	ItemKindDivider    string = "divider"
)

// ToView converts an item to ItemView
func ToView(item ReaderItem) ItemView {
	switch v := item.(type) {
	case *NetworkChapterItem:
		req := v.Request
		return ItemView{
			Kind:         ItemKindNetwork,
			ChapterIndex: v.ChapterIndex,
			PageIndex:    v.PageIndex,
			Request:      &req,
		}
	case *LocalChapterItem:
		return ItemView{
			Kind:         ItemKindLocal,
			ChapterIndex: v.ChapterIndex,
			PageIndex:    v.PageIndex,
			Path:         v.Path,
		}
	case *TranslatedChapterItem:
		view := ToView(v.Original)
		view.Kind = ItemKindTranslated
		view.TranslatedPath = v.TranslatedPath
		return view
	case *ReaderDividerItem:
		return ItemView{
			Kind:         ItemKindDivider,
			ChapterIndex: v.ChapterIndex,
			PageIndex:    -1,
			HasNext:      v.HasNext,
		}
	default:
		panic(fmt.Sprintf("unknown reader item %T", item))
	}
}

// ToViews converts items to ItemViews
func ToViews(items []ReaderItem) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, ToView(item))
	}
	return views
}
