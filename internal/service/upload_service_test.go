package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/internal/domain"
	"github.com/weiawesome/flow-market/internal/uploader"
)

type stubUploader struct {
	calls int
	url   string
	err   error
}

func (s *stubUploader) Upload(ctx context.Context, file *domain.UploadFile) (string, error) {
	s.calls++
	return s.url, s.err
}

func (s *stubUploader) Name() string { return "stub" }

func testPNG(t *testing.T) *domain.UploadFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return &domain.UploadFile{Filename: "a.png", ContentType: "image/png", Data: buf.Bytes()}
}

func TestUploadService_RejectsBeforeUpstream(t *testing.T) {
	stub := &stubUploader{url: "https://cdn.example/a.png"}
	svc := NewUploadService(stub, 1<<20)

	_, err := svc.Upload(context.Background(), 1, &domain.UploadFile{Filename: "a.png", Data: []byte("not an image")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, stub.calls)

	url, err := svc.Upload(context.Background(), 1, testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", url)
	assert.Equal(t, 1, stub.calls)
}

func TestUploadService_PropagatesUploadErrors(t *testing.T) {
	upErr := &uploader.UploadError{Backend: "stub", Message: "down"}
	svc := NewUploadService(&stubUploader{err: upErr}, 0)

	_, err := svc.Upload(context.Background(), 0, testPNG(t))
	var got *uploader.UploadError
	assert.True(t, errors.As(err, &got))
}

func TestUploadService_NotConfigured(t *testing.T) {
	svc := NewUploadService(uploader.New(config.UploadConfig{}, nil), 10<<20)

	files := []*domain.UploadFile{
		testPNG(t),
		{Filename: "notes.txt", Data: []byte("not an image")},
		{Filename: "photo.webp", Data: append([]byte("RIFF\x1a\x00\x00\x00WEBPVP8 "), make([]byte, 18)...)},
	}
	for _, f := range files {
		_, err := svc.Upload(context.Background(), 0, f)
		assert.ErrorIs(t, err, uploader.ErrNotConfigured, f.Filename)
	}
}

func TestUploadService_AcceptsWebP(t *testing.T) {
	stub := &stubUploader{url: "https://cdn.example/photo.webp"}
	svc := NewUploadService(stub, 10<<20)

	webp := &domain.UploadFile{Filename: "photo.webp", Data: append([]byte("RIFF\x1a\x00\x00\x00WEBPVP8 "), make([]byte, 18)...)}
	url, err := svc.Upload(context.Background(), 0, webp)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/photo.webp", url)
	assert.Equal(t, 1, stub.calls)
}

func TestHealthService_Counts(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	require.NoError(t, repos.messages.Create(ctx, &domain.Message{Room: "lobby", Sender: "a", Text: "hi"}))

	h, err := NewHealthService(repos.products, repos.messages).Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, domain.ServiceName, h.Service)
	assert.Zero(t, h.Products)
	assert.Equal(t, int64(1), h.Messages)
	assert.NotEmpty(t, h.TS)
}
