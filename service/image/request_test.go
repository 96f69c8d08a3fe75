package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkImageRequestKeyIsContentAddressed(t *testing.T) {
	first := NetworkImageRequest{
		URL: "https://cdn.example.com/p/1.jpg",
		Headers: []Header{
			{Key: "Referer", Value: "https://example.com"},
			{Key: "User-Agent", Value: "mira"},
		},
	}
	second := NetworkImageRequest{
		URL: "https://cdn.example.com/p/1.jpg",
		Headers: []Header{
			{Key: "User-Agent", Value: "mira"},
			{Key: "Referer", Value: "https://example.com"},
		},
	}
	fromMap := NewNetworkImageRequest("https://cdn.example.com/p/1.jpg", map[string]string{
		"User-Agent": "mira",
		"Referer":    "https://example.com",
	})

	assert.Equal(t, first.Key(), second.Key())
	assert.Equal(t, first.Key(), fromMap.Key())

	// Key must not reorder the caller's headers
	assert.Equal(t, "User-Agent", second.Headers[0].Key)
}

func TestNetworkImageRequestKeyDiffers(t *testing.T) {
	base := NetworkImageRequest{URL: "https://cdn.example.com/p/1.jpg"}
	otherURL := NetworkImageRequest{URL: "https://cdn.example.com/p/2.jpg"}
	withHeader := NetworkImageRequest{
		URL:     "https://cdn.example.com/p/1.jpg",
		Headers: []Header{{Key: "Referer", Value: "a"}},
	}
	otherHeader := NetworkImageRequest{
		URL:     "https://cdn.example.com/p/1.jpg",
		Headers: []Header{{Key: "Referer", Value: "b"}},
	}

	assert.NotEqual(t, base.Key(), otherURL.Key())
	assert.NotEqual(t, base.Key(), withHeader.Key())
	assert.NotEqual(t, withHeader.Key(), otherHeader.Key())
}
