package image

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/mirareader/mira-pool/utils"
)

// Header is a request header sent with an image GET
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NetworkImageRequest identifies a network image.
// Two requests with the same URL and header set have the same Key.
type NetworkImageRequest struct {
	URL     string   `json:"url"`
	Headers []Header `json:"headers,omitempty"`
}

// NewNetworkImageRequest creates a NetworkImageRequest from a header map
func NewNetworkImageRequest(url string, headers map[string]string) NetworkImageRequest {
	req := NetworkImageRequest{
		URL:     url,
		Headers: make([]Header, 0, len(headers)),
	}

	for k, v := range headers {
		req.Headers = append(req.Headers, Header{Key: k, Value: v})
	}
	sortHeaders(req.Headers)
	return req
}

func sortHeaders(headers []Header) {
	sort.Slice(headers, func(i int, j int) bool {
		if headers[i].Key != headers[j].Key {
			return headers[i].Key < headers[j].Key
		}
		return headers[i].Value < headers[j].Value
	})
}

// Key returns the content hash of URL and headers
func (req NetworkImageRequest) Key() string {
	headers := make([]Header, len(req.Headers))
	copy(headers, req.Headers)
	sortHeaders(headers)

	parts := make([]string, 0, 1+len(headers)*2)
	parts = append(parts, req.URL)
	for _, header := range headers {
		parts = append(parts, header.Key, header.Value)
	}

	return strconv.FormatUint(utils.HashParts(parts...), 16)
}

// ToString stringifies the object
func (req NetworkImageRequest) ToString() string {
	return fmt.Sprintf("<NetworkImageRequest %s (%d headers)>", req.URL, len(req.Headers))
}
