package uploader

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/pkg/storage"
)

// StorageUploader writes images to object storage under <prefix>/<ulid><ext>,
// so keys sort by upload time.
type StorageUploader struct {
	store  storage.Store
	prefix string
}

func NewStorageUploader(store storage.Store, prefix string) *StorageUploader {
	return &StorageUploader{store: store, prefix: strings.Trim(prefix, "/")}
}

func (u *StorageUploader) Name() string { return "storage" }

func (u *StorageUploader) Upload(ctx context.Context, file *domain.UploadFile) (string, error) {
	key := u.key(file.Filename)

	if err := u.store.Put(ctx, key, file.Data, file.ContentType); err != nil {
		return "", &UploadError{Backend: u.Name(), Message: "failed to store image", Err: err}
	}

	url, err := u.store.URL(ctx, key)
	if err != nil {
		return "", &UploadError{Backend: u.Name(), Message: "failed to resolve image url", Err: err}
	}
	return url, nil
}

func (u *StorageUploader) key(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	name := strings.ToLower(ulid.Make().String()) + ext
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}
