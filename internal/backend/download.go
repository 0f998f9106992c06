package backend

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Downloader fetches generated PDFs from the URL the service hands back.
// It is a thin wrapper around retryablehttp so transient blob-storage
// hiccups do not surface as failed downloads.
type Downloader struct {
	inner *retryablehttp.Client
}

// NewDownloader creates a download client with the given per-request timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := retryablehttp.NewClient()
	r.RetryMax = 2
	r.HTTPClient.Timeout = timeout
	r.Logger = nil
	return &Downloader{inner: r}
}

// Fetch streams the blob at url. The caller owns the returned body.
func (d *Downloader) Fetch(url string) (io.ReadCloser, int64, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("cvbackend: build download request: %w", err)
	}

	resp, err := d.inner.StandardClient().Do(req.Request)
	if err != nil {
		return nil, 0, fmt.Errorf("cvbackend: download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("cvbackend: download status %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
