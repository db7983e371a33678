package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/faheemlabs/faheem/pkg/errorsx"
	"github.com/faheemlabs/faheem/pkg/gemini"
)

// File is the opaque binary a job wants transcribed. Open must hand out
// a fresh reader on every call because a strategy may be retried and the
// fallback chain may consume the bytes more than once.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// SizeThreshold splits files into the small and large fallback orders.
// A file exactly at the threshold counts as large.
const SizeThreshold int64 = 50 << 20

// Backend is the subset of the relay-aware client the strategies need.
type Backend interface {
	StartResumableUpload(ctx context.Context, displayName, mimeType string) (string, error)
	UploadToLocation(ctx context.Context, location, mimeType string, body io.Reader) (gemini.FileInfo, error)
	UploadMultipart(ctx context.Context, displayName, mimeType string, body io.Reader) (gemini.FileInfo, error)
	UploadDirect(ctx context.Context, mimeType string, body io.Reader) (gemini.FileInfo, error)
}

// Strategy is one technique for transferring file bytes to the backend.
type Strategy interface {
	Name() string
	Upload(ctx context.Context, f File) (gemini.FileInfo, error)
}

type resumableStrategy struct {
	backend Backend
}

func (s resumableStrategy) Name() string { return "resumable" }

func (s resumableStrategy) Upload(ctx context.Context, f File) (gemini.FileInfo, error) {
	location, err := s.backend.StartResumableUpload(ctx, f.Name, f.MimeType)
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadInit)
	}
	body, err := f.Open()
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	defer body.Close()
	info, err := s.backend.UploadToLocation(ctx, location, f.MimeType, body)
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	return info, nil
}

type multipartStrategy struct {
	backend Backend
}

func (s multipartStrategy) Name() string { return "multipart" }

func (s multipartStrategy) Upload(ctx context.Context, f File) (gemini.FileInfo, error) {
	body, err := f.Open()
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	defer body.Close()
	info, err := s.backend.UploadMultipart(ctx, f.Name, f.MimeType, body)
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	return info, nil
}

type directStrategy struct {
	backend Backend
	cap     int64
}

func (s directStrategy) Name() string { return "direct" }

func (s directStrategy) Upload(ctx context.Context, f File) (gemini.FileInfo, error) {
	if f.Size > s.cap {
		return gemini.FileInfo{}, errorsx.Wrap(
			fmt.Errorf("direct upload capped at %d bytes, file is %d", s.cap, f.Size),
			errorsx.ReasonUploadTooLarge,
		)
	}
	body, err := f.Open()
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	defer body.Close()
	info, err := s.backend.UploadDirect(ctx, f.MimeType, body)
	if err != nil {
		return gemini.FileInfo{}, errorsx.Wrap(err, errorsx.ReasonUploadTransfer)
	}
	return info, nil
}

var errNoSource = errors.New("file has no open function")
