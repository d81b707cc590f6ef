// Package uploader sends validated marker images to the remote asset store.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnreachable is a transport-level failure. It is non-fatal to the
	// authoring workflow: the local record is still saved.
	ErrUnreachable = errors.New("asset store unreachable")
	// ErrRejected is a non-2xx response from the asset store.
	ErrRejected = errors.New("asset store rejected upload")
)

// AssetRef is the stable reference under which the uploaded image can later
// be retrieved for display.
type AssetRef struct {
	URL string `json:"url"`
}

// Client uploads marker images to `{base}/upload-treasure-image`.
type Client struct {
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
}

func New(baseURL string, headers map[string]string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Headers:    headers,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload posts the image with its metadata as multipart form data. The
// server normally answers with JSON {"url": ...}; some deployments answer
// with plain text, in which case the reference is derived from the known
// endpoint and file name.
func (c *Client) Upload(ctx context.Context, image []byte, imageName, fileName string, lat, lon float64, score int) (AssetRef, error) {
	if c.BaseURL == "" {
		return AssetRef{}, fmt.Errorf("%w: no remote base URL configured", ErrUnreachable)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("image", fileName)
	if err != nil {
		return AssetRef{}, fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return AssetRef{}, fmt.Errorf("building multipart body: %w", err)
	}

	fields := map[string]string{
		"imageName":       imageName,
		"latitude":        strconv.FormatFloat(lat, 'f', -1, 64),
		"longitude":       strconv.FormatFloat(lon, 'f', -1, 64),
		"validationScore": strconv.Itoa(score),
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return AssetRef{}, fmt.Errorf("building multipart body: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return AssetRef{}, fmt.Errorf("building multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/upload-treasure-image", &body)
	if err != nil {
		return AssetRef{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for name, value := range c.Headers {
		req.Header.Set(name, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return AssetRef{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AssetRef{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var ref AssetRef
	if err := json.Unmarshal(data, &ref); err == nil && ref.URL != "" {
		return ref, nil
	}

	// Plain-text success body: fall back to the deterministic location.
	return AssetRef{URL: c.BaseURL + "/images/" + fileName}, nil
}
