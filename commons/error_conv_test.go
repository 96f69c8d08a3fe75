package commons

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  codes.Code
		check func(error) bool
	}{
		{"manga", NewMangaNotFoundError("src", "m1"), codes.NotFound, IsMangaNotFoundError},
		{"chapter", NewChapterNotFoundError("src", "m1", "c1"), codes.NotFound, IsChapterNotFoundError},
		{"category", NewCategoryNotFoundError(7), codes.NotFound, IsCategoryNotFoundError},
		{"deleted", NewChapterDeletedError("/tmp/x"), codes.Aborted, IsChapterDeletedError},
		{"http", NewHTTPStatusError("http://a/b", 404), codes.Unavailable, IsHTTPStatusError},
		{"retries", NewRetriesExhaustedError("http://a/b", 10, xerrors.New("reset")), codes.Unavailable, IsRetriesExhaustedError},
		{"invalid", NewInvalidArgumentErrorf("bad %s", "arg"), codes.InvalidArgument, IsInvalidArgumentError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ErrorToStatus(tt.err)
			assert.Equal(t, tt.code, status.Code(st))

			back := StatusToError(st)
			assert.True(t, tt.check(back), "converted back: %v", back)
		})
	}
}

func TestErrorToStatusKeepsDetails(t *testing.T) {
	back := StatusToError(ErrorToStatus(NewChapterNotFoundError("src", "m1", "c1")))

	var chapterErr *ChapterNotFoundError
	assert.ErrorAs(t, back, &chapterErr)
	assert.Equal(t, "src", chapterErr.SourceID)
	assert.Equal(t, "m1", chapterErr.MangaID)
	assert.Equal(t, "c1", chapterErr.ChapterID)
}

func TestWrappedErrorsAreDetected(t *testing.T) {
	err := NewDownloadFailedError("job", xerrors.Errorf("page 3: %w", NewHTTPStatusError("http://a", 500)))
	assert.True(t, IsDownloadFailedError(err))
	assert.True(t, IsHTTPStatusError(err))
	assert.False(t, IsChapterDeletedError(err))

	// the more specific cause wins over the wrapper
	assert.Equal(t, codes.Unavailable, status.Code(ErrorToStatus(err)))
}

func TestIsDisconnectedError(t *testing.T) {
	assert.True(t, IsDisconnectedError(status.Error(codes.Unavailable, "connection refused")))
	assert.False(t, IsDisconnectedError(ErrorToStatus(NewHTTPStatusError("http://a", 503))))
	assert.False(t, IsDisconnectedError(nil))
}
