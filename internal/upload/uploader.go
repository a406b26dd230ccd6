// Package upload posts payment proof images to the configured hosting
// endpoint and returns the hosted URL. The endpoint is opaque to the
// reservation protocol: a failed upload aborts the submission before
// any reservation document is written.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrUploadFailed is returned when the endpoint rejects the file or
// responds without a usable URL.
var ErrUploadFailed = errors.New("proof upload failed")

// Uploader stores a proof image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// HTTPUploader sends unsigned multipart uploads (file + upload preset)
// to a Cloudinary-style endpoint and reads the secure URL from the
// JSON response.
type HTTPUploader struct {
	Endpoint string
	Preset   string
	Client   *http.Client
}

// NewHTTPUploader returns an uploader with a bounded request timeout.
func NewHTTPUploader(endpoint, preset string) *HTTPUploader {
	return &HTTPUploader{
		Endpoint: endpoint,
		Preset:   preset,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (u *HTTPUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.WriteField("upload_preset", u.Preset); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: bad response", ErrUploadFailed)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrUploadFailed, parsed.Error.Message)
		}
		return "", fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}
	url := parsed.SecureURL
	if url == "" {
		url = parsed.URL
	}
	if url == "" {
		return "", fmt.Errorf("%w: response carried no URL", ErrUploadFailed)
	}
	return url, nil
}
