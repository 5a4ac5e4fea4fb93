package uploader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/weiawesome/flow-market/internal/domain"
)

// DefaultImgBBEndpoint is the ImgBB upload API.
const DefaultImgBBEndpoint = "https://api.imgbb.com/1/upload"

// ImgBBUploader sends the image base64-encoded to the ImgBB API.
type ImgBBUploader struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

type imgbbResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

func NewImgBBUploader(endpoint, key string, client *http.Client) *ImgBBUploader {
	if endpoint == "" {
		endpoint = DefaultImgBBEndpoint
	}
	return &ImgBBUploader{endpoint: endpoint, key: key, httpClient: client}
}

func (u *ImgBBUploader) Name() string { return "imgbb" }

func (u *ImgBBUploader) Upload(ctx context.Context, file *domain.UploadFile) (string, error) {
	form := url.Values{}
	form.Set("key", u.key)
	form.Set("name", strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename)))
	form.Set("image", base64.StdEncoding.EncodeToString(file.Data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", u.fail("failed to create request", "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	raw, err := doRequest(u.httpClient, req)
	if err != nil {
		return "", u.fail(err.Error(), string(raw), err)
	}

	var resp imgbbResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", u.fail("malformed response", string(raw), err)
	}
	if !resp.Success || resp.Data.URL == "" {
		return "", u.fail("upstream rejected the image", string(raw), nil)
	}
	return resp.Data.URL, nil
}

func (u *ImgBBUploader) fail(msg, payload string, err error) error {
	return &UploadError{Backend: u.Name(), Message: msg, Payload: payload, Err: err}
}
