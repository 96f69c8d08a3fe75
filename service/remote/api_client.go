package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mirareader/mira-pool/commons"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	metadataCacheCleanupMultiplier int   = 2
	responseBodySizeMax            int64 = 32 * 1024 * 1024
)

// MangaSource is the part of the remote API the downloader and the reader depend on
type MangaSource interface {
	GetChapterContent(ctx context.Context, sourceID string, mangaID string, chapterID string) (*ChapterContent, error)
}

// APIClient talks to the remote manga API.
// A response whose data is null resolves to a nil result without an error.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *MetadataCache
}

// NewAPIClient creates a new APIClient. cacheTimeout <= 0 disables the metadata cache.
func NewAPIClient(baseURL string, httpClient *http.Client, cacheTimeout time.Duration) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var cache *MetadataCache
	if cacheTimeout > 0 {
		cache = NewMetadataCache(cacheTimeout, cacheTimeout*time.Duration(metadataCacheCleanupMultiplier))
	}

	return &APIClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      cache,
	}
}

// GetBaseURL returns the API base URL
func (client *APIClient) GetBaseURL() string {
	return client.baseURL
}

func (client *APIClient) makeURL(query url.Values, segments ...string) string {
	u := client.baseURL
	for _, segment := range segments {
		u += "/" + url.PathEscape(segment)
	}

	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getData issues a GET and decodes the envelope, returns nil data on a null payload
func getData[T any](ctx context.Context, client *APIClient, reqURL string) (*T, error) {
	logger := log.WithFields(log.Fields{
		"package":  "remote",
		"struct":   "APIClient",
		"function": "getData",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to make a request for %s: %w", reqURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("failed to request %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, commons.NewHTTPStatusError(reqURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodySizeMax))
	if err != nil {
		return nil, xerrors.Errorf("failed to read response of %s: %w", reqURL, err)
	}

	response := envelope[T]{}
	err = json.Unmarshal(body, &response)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse response of %s: %w", reqURL, err)
	}

	if response.Data == nil {
		if response.Error != nil {
			logger.Warnf("API returned no data for %s - %s", reqURL, *response.Error)
		} else {
			logger.Debugf("API returned no data for %s", reqURL)
		}
		return nil, nil
	}

	return response.Data, nil
}

// SearchManga lists manga of a source, query may be empty for the default listing
func (client *APIClient) SearchManga(ctx context.Context, sourceID string, query string, page int) ([]MangaPreview, error) {
	values := url.Values{}
	if len(query) > 0 {
		values.Set("q", query)
	}
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}

	previews, err := getData[[]MangaPreview](ctx, client, client.makeURL(values, sourceID))
	if err != nil {
		return nil, err
	}

	if previews == nil {
		return nil, nil
	}

	for idx := range *previews {
		if len((*previews)[idx].SourceID) == 0 {
			(*previews)[idx].SourceID = sourceID
		}
	}
	return *previews, nil
}

// GetManga returns manga metadata
func (client *APIClient) GetManga(ctx context.Context, sourceID string, mangaID string) (*Manga, error) {
	if client.cache != nil {
		if manga := client.cache.GetManga(sourceID, mangaID); manga != nil {
			return manga, nil
		}
	}

	manga, err := getData[Manga](ctx, client, client.makeURL(nil, sourceID, mangaID))
	if err != nil || manga == nil {
		return nil, err
	}

	// the cache is keyed by the requested ids
	manga.ID = mangaID
	manga.SourceID = sourceID

	if client.cache != nil {
		client.cache.AddManga(manga)
	}
	return manga, nil
}

// GetChapters returns the chapter list of a manga
func (client *APIClient) GetChapters(ctx context.Context, sourceID string, mangaID string) ([]Chapter, error) {
	if client.cache != nil {
		if chapters := client.cache.GetChapters(sourceID, mangaID); chapters != nil {
			return chapters, nil
		}
	}

	chapters, err := getData[[]Chapter](ctx, client, client.makeURL(nil, sourceID, mangaID, "chapters"))
	if err != nil || chapters == nil {
		return nil, err
	}

	if client.cache != nil {
		client.cache.AddChapters(sourceID, mangaID, *chapters)
	}
	return *chapters, nil
}

// GetChapterContent returns page locations of a chapter. Not cached, page urls may be signed.
func (client *APIClient) GetChapterContent(ctx context.Context, sourceID string, mangaID string, chapterID string) (*ChapterContent, error) {
	content, err := getData[ChapterContent](ctx, client, client.makeURL(nil, sourceID, mangaID, "chapters", chapterID))
	if err != nil || content == nil {
		return nil, err
	}

	if len(content.ChapterID) == 0 {
		content.ChapterID = chapterID
	}
	return content, nil
}

// Invalidate drops cached metadata of a manga
func (client *APIClient) Invalidate(sourceID string, mangaID string) {
	if client.cache != nil {
		client.cache.Invalidate(sourceID, mangaID)
	}
}
