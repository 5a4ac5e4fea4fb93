package service

import (
	"context"

	"github.com/weiawesome/flow-market/internal/audit"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/uploader"
	"github.com/weiawesome/flow-market/pkg/log"
)

type uploadServiceImpl struct {
	uploader uploader.Uploader
	maxSize  int64
}

func NewUploadService(u uploader.Uploader, maxSize int64) UploadService {
	return &uploadServiceImpl{uploader: u, maxSize: maxSize}
}

func (s *uploadServiceImpl) Upload(ctx context.Context, userID uint, file *domain.UploadFile) (string, error) {
	if !uploader.Configured(s.uploader) {
		return "", uploader.ErrNotConfigured
	}
	if err := uploader.CheckImage(file, s.maxSize); err != nil {
		return "", err
	}

	l := log.Ctx(ctx)
	url, err := s.uploader.Upload(ctx, file)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldBackend, s.uploader.Name()).Msg("image upload failed")
		return "", err
	}

	l.Debug().Str(log.FieldBackend, s.uploader.Name()).Int("size", len(file.Data)).Msg("image uploaded")
	audit.Write(ctx, audit.Entry{Action: audit.ActionUpload, UserID: userID, Detail: url}, "image uploaded")
	return url, nil
}
