package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/storage"
)

// ErrNotConfigured is returned when no upload backend is configured.
var ErrNotConfigured = errors.New("no image uploader configured (set EXTERNAL_UPLOAD_URL, IMGBB_API_KEY or UPLOAD_STORAGE_DRIVER)")

// UploadError reports a failed upload to an image host.
type UploadError struct {
	Backend string
	Message string
	// Payload is the upstream response body, when there was one.
	Payload string
	Err     error
}

func (e *UploadError) Error() string {
	msg := fmt.Sprintf("%s upload failed: %s", e.Backend, e.Message)
	if e.Payload != "" {
		msg += ": " + e.Payload
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Uploader stores an image somewhere a browser can load it and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, file *domain.UploadFile) (string, error)
	Name() string
}

type unconfigured struct{}

func (unconfigured) Upload(context.Context, *domain.UploadFile) (string, error) {
	return "", ErrNotConfigured
}

func (unconfigured) Name() string { return "none" }

// Configured reports whether u has a backend behind it.
func Configured(u Uploader) bool {
	_, none := u.(unconfigured)
	return !none
}

// New picks the first configured backend: the external endpoint, then ImgBB,
// then object storage. store may be nil. With nothing configured the returned
// Uploader fails every call with ErrNotConfigured.
func New(cfg config.UploadConfig, store storage.Store) Uploader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch {
	case cfg.ExternalURL != "":
		return NewExternalUploader(cfg.ExternalURL, client)
	case cfg.ImgBBKey != "":
		return NewImgBBUploader(cfg.ImgBBEndpoint, cfg.ImgBBKey, client)
	case store != nil:
		return NewStorageUploader(store, cfg.Storage.KeyPrefix)
	default:
		return unconfigured{}
	}
}
