package batch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mirrorkit/lsky-mirror/pkg/file"
)

// Downloader fetches remote images into temporary files so they can be
// re-uploaded. Downloads are bounded by a timeout and a byte limit.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
	tempDir    string
}

func NewDownloader(timeout time.Duration, maxBytes int64) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		tempDir:    os.TempDir(),
	}
}

// Fetch downloads rawURL into a fresh temp file and returns its path. The
// caller owns the file and removes it when done.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return "", fmt.Errorf("download %s: %d bytes exceeds limit of %d", rawURL, resp.ContentLength, d.maxBytes)
	}

	ext := file.ExtFromURL(rawURL)
	if ext == "" {
		ext = file.ExtFromContentType(resp.Header.Get("Content-Type"))
	}
	path := filepath.Join(d.tempDir, "lsky-mirror-"+uuid.NewString()+ext)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	// Read one byte past the limit to detect oversized bodies that did not
	// announce a Content-Length.
	written, err := io.Copy(out, io.LimitReader(resp.Body, d.maxBytes+1))
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", closeErr)
	}
	if written > d.maxBytes {
		_ = os.Remove(path)
		return "", fmt.Errorf("download %s: body exceeds limit of %d bytes", rawURL, d.maxBytes)
	}
	if written == 0 {
		_ = os.Remove(path)
		return "", fmt.Errorf("download %s: empty body", rawURL)
	}
	return path, nil
}
