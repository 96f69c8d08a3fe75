package commons

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorTypeDelimiter          string = ";"
	errorTypeMangaNotFound      string = "manga_not_found"
	errorTypeChapterNotFound    string = "chapter_not_found"
	errorTypeCategoryNotFound   string = "category_not_found"
	errorTypeDownloadFailed     string = "download_failed"
	errorTypeChapterDeleted     string = "chapter_deleted"
	errorTypeHTTPStatus         string = "http_status"
	errorTypeRetriesExhausted   string = "retries_exhausted"
	errorTypeInvalidArgument    string = "invalid_argument"
	errorTypeInternalError      string = "internal_error"
	unknownErrorDetailPlacehold string = "<unknown>"
)

func addErrorTypeToMessage(prefix string, details ...string) string {
	detailsStr := strings.Join(details, errorTypeDelimiter)
	return fmt.Sprintf("%s%s%s", prefix, errorTypeDelimiter, detailsStr)
}

func extractErrorInfoFromMessage(msg string) (string, []string, string) {
	msgarr := strings.Split(msg, errorTypeDelimiter)
	if len(msgarr) == 2 {
		return msgarr[0], []string{}, msgarr[1]
	} else if len(msgarr) >= 3 {
		return msgarr[0], msgarr[1 : len(msgarr)-1], msgarr[len(msgarr)-1]
	}
	return errorTypeInternalError, []string{}, ""
}

// InvalidArgumentError reports a malformed request
type InvalidArgumentError struct {
	Message string
}

// NewInvalidArgumentErrorf creates InvalidArgumentError
func NewInvalidArgumentErrorf(format string, v ...interface{}) error {
	return &InvalidArgumentError{
		Message: fmt.Sprintf(format, v...),
	}
}

// Error returns error message
func (err *InvalidArgumentError) Error() string {
	return err.Message
}

// Is tests type of error
func (err *InvalidArgumentError) Is(other error) bool {
	_, ok := other.(*InvalidArgumentError)
	return ok
}

// IsInvalidArgumentError evaluates if the given error is invalid argument error
func IsInvalidArgumentError(err error) bool {
	return errors.Is(err, &InvalidArgumentError{})
}

// ErrorToStatus converts error to grpc status error
func ErrorToStatus(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		// already a status
		return err
	}

	var mangaNotFoundErr *MangaNotFoundError
	var chapterNotFoundErr *ChapterNotFoundError
	var categoryNotFoundErr *CategoryNotFoundError
	var chapterDeletedErr *ChapterDeletedError
	var httpStatusErr *HTTPStatusError
	var retriesExhaustedErr *RetriesExhaustedError
	var downloadFailedErr *DownloadFailedError
	var invalidArgumentErr *InvalidArgumentError

	switch {
	case errors.As(err, &mangaNotFoundErr):
		return status.Error(codes.NotFound, addErrorTypeToMessage(errorTypeMangaNotFound, mangaNotFoundErr.SourceID, mangaNotFoundErr.MangaID, err.Error()))
	case errors.As(err, &chapterNotFoundErr):
		return status.Error(codes.NotFound, addErrorTypeToMessage(errorTypeChapterNotFound, chapterNotFoundErr.SourceID, chapterNotFoundErr.MangaID, chapterNotFoundErr.ChapterID, err.Error()))
	case errors.As(err, &categoryNotFoundErr):
		return status.Error(codes.NotFound, addErrorTypeToMessage(errorTypeCategoryNotFound, strconv.FormatInt(categoryNotFoundErr.CategoryID, 10), err.Error()))
	case errors.As(err, &chapterDeletedErr):
		return status.Error(codes.Aborted, addErrorTypeToMessage(errorTypeChapterDeleted, chapterDeletedErr.Path, err.Error()))
	case errors.As(err, &retriesExhaustedErr):
		return status.Error(codes.Unavailable, addErrorTypeToMessage(errorTypeRetriesExhausted, retriesExhaustedErr.URL, strconv.Itoa(retriesExhaustedErr.Attempts), err.Error()))
	case errors.As(err, &httpStatusErr):
		return status.Error(codes.Unavailable, addErrorTypeToMessage(errorTypeHTTPStatus, httpStatusErr.URL, strconv.Itoa(httpStatusErr.StatusCode), err.Error()))
	case errors.As(err, &downloadFailedErr):
		return status.Error(codes.Internal, addErrorTypeToMessage(errorTypeDownloadFailed, downloadFailedErr.JobName, err.Error()))
	case errors.As(err, &invalidArgumentErr):
		return status.Error(codes.InvalidArgument, addErrorTypeToMessage(errorTypeInvalidArgument, err.Error()))
	}

	return status.Error(codes.Internal, addErrorTypeToMessage(errorTypeInternalError, err.Error()))
}

// StatusToError converts grpc status error to error
func StatusToError(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st == nil {
		return err
	}

	errType, errContent, msg := extractErrorInfoFromMessage(st.Message())
	detail := func(idx int) string {
		if len(errContent) > idx {
			return errContent[idx]
		}
		return unknownErrorDetailPlacehold
	}

	switch errType {
	case errorTypeMangaNotFound:
		return NewMangaNotFoundError(detail(0), detail(1))
	case errorTypeChapterNotFound:
		return NewChapterNotFoundError(detail(0), detail(1), detail(2))
	case errorTypeCategoryNotFound:
		id, _ := strconv.ParseInt(detail(0), 10, 64)
		return NewCategoryNotFoundError(id)
	case errorTypeChapterDeleted:
		return NewChapterDeletedError(detail(0))
	case errorTypeRetriesExhausted:
		attempts, _ := strconv.Atoi(detail(1))
		return NewRetriesExhaustedError(detail(0), attempts, xerrors.New(msg))
	case errorTypeHTTPStatus:
		code, _ := strconv.Atoi(detail(1))
		return NewHTTPStatusError(detail(0), code)
	case errorTypeDownloadFailed:
		return NewDownloadFailedError(detail(0), xerrors.New(msg))
	case errorTypeInvalidArgument:
		return &InvalidArgumentError{Message: msg}
	case errorTypeInternalError:
		return xerrors.New(msg)
	default:
		switch st.Code() {
		case codes.InvalidArgument:
			return &InvalidArgumentError{Message: st.Message()}
		default:
			return xerrors.New(st.Message())
		}
	}
}

// IsDisconnectedError returns true if connection is unavailable
func IsDisconnectedError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if ok && st != nil {
		errType, _, _ := extractErrorInfoFromMessage(st.Message())
		if st.Code() == codes.Unavailable && errType != errorTypeHTTPStatus && errType != errorTypeRetriesExhausted {
			return true
		}
	}

	return false
}
