package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/weiawesome/flow-market/internal/domain"
)

const maxResponseBody = 1 << 20

// ExternalUploader posts the file as multipart form field "file" to a
// generic endpoint that answers {"ok": true, "url": "..."}.
type ExternalUploader struct {
	url        string
	httpClient *http.Client
}

type externalResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

func NewExternalUploader(url string, client *http.Client) *ExternalUploader {
	return &ExternalUploader{url: url, httpClient: client}
}

func (u *ExternalUploader) Name() string { return "external" }

func (u *ExternalUploader) Upload(ctx context.Context, file *domain.UploadFile) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return "", u.fail("failed to build request", "", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", u.fail("failed to build request", "", err)
	}
	if err := w.Close(); err != nil {
		return "", u.fail("failed to build request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return "", u.fail("failed to create request", "", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	raw, err := doRequest(u.httpClient, req)
	if err != nil {
		return "", u.fail(err.Error(), string(raw), err)
	}

	var resp externalResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", u.fail("malformed response", string(raw), err)
	}
	if !resp.OK || resp.URL == "" {
		return "", u.fail("upstream rejected the file", string(raw), nil)
	}
	return resp.URL, nil
}

func (u *ExternalUploader) fail(msg, payload string, err error) error {
	return &UploadError{Backend: u.Name(), Message: msg, Payload: payload, Err: err}
}

// doRequest sends req and returns the (bounded) body. Non-2xx statuses are
// errors, with the body still returned for context.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return raw, nil
}
