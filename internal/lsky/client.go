package lsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Client wraps the Lsky Pro HTTP API (upload, profile, albums, delete).
// Credentials can be swapped at runtime; all failures are normalized to a
// single error whose message is what the batch engines surface per item.
type Client struct {
	httpClient *http.Client

	mu      sync.RWMutex
	baseURL string
	token   string
}

func NewClient(apiURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		token:   strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetCredentials swaps the API base URL and token, e.g. after a runtime
// settings update.
func (c *Client) SetCredentials(apiURL, token string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) credentials() (string, string, error) {
	c.mu.RLock()
	baseURL, token := c.baseURL, c.token
	c.mu.RUnlock()

	if baseURL == "" {
		return "", "", fmt.Errorf("lsky api url is not configured")
	}
	if token == "" {
		return "", "", fmt.Errorf("lsky token is not configured")
	}
	return baseURL, token, nil
}

// RemoteHost returns the hostname images are served from, derived from the
// API base URL. Post-content URLs on this host are treated as already
// migrated.
func (c *Client) RemoteHost() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Upload sends a local file to the remote host and returns the remote URL
// plus the remote-assigned photo ID. sourceURL, when set, supplies the
// upload filename for temp files whose on-disk name carries no extension.
func (c *Client) Upload(ctx context.Context, localPath, sourceURL string) (UploadResult, error) {
	baseURL, token, err := c.credentials()
	if err != nil {
		return UploadResult{}, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", uploadFilename(localPath, sourceURL))
	if err != nil {
		return UploadResult{}, fmt.Errorf("create multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return UploadResult{}, fmt.Errorf("read %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/upload", &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var data uploadData
	if err := c.do(req, &data); err != nil {
		return UploadResult{}, err
	}
	if data.Links.URL == "" {
		return UploadResult{}, fmt.Errorf("upload response carries no url")
	}
	return UploadResult{
		URL:     data.Links.URL,
		PhotoID: data.ID,
		Key:     data.Key,
	}, nil
}

// Profile fetches the authenticated account's profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	baseURL, token, err := c.credentials()
	if err != nil {
		return Profile{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/profile", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var profile Profile
	if err := c.do(req, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Albums fetches one page of the account's albums.
func (c *Client) Albums(ctx context.Context, page int) (AlbumPage, error) {
	baseURL, token, err := c.credentials()
	if err != nil {
		return AlbumPage{}, err
	}
	if page <= 0 {
		page = 1
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/albums?page=%d", baseURL, page), nil)
	if err != nil {
		return AlbumPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var data albumListData
	if err := c.do(req, &data); err != nil {
		return AlbumPage{}, err
	}
	return AlbumPage{
		CurrentPage: data.CurrentPage,
		LastPage:    data.LastPage,
		Albums:      data.Data,
	}, nil
}

// DeletePhoto removes a photo by its remote key.
func (c *Client) DeletePhoto(ctx context.Context, key string) error {
	baseURL, token, err := c.credentials()
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("photo key is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/images/"+url.PathEscape(key), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return c.do(req, nil)
}

// do executes the request and unmarshals the envelope's data payload.
// Network failures, non-2xx responses, unparseable bodies and status:false
// envelopes all come back as plain errors.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return fmt.Errorf("request timed out: %w", err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, truncate(string(responseBody), 200))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := envelope.Message
		if msg == "" {
			msg = truncate(string(responseBody), 200)
		}
		return fmt.Errorf("api request failed with status %d: %s", resp.StatusCode, msg)
	}
	if !envelope.Status {
		if envelope.Message != "" {
			return fmt.Errorf("%s", envelope.Message)
		}
		return fmt.Errorf("api reported failure")
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

func uploadFilename(localPath, sourceURL string) string {
	name := filepath.Base(localPath)
	if filepath.Ext(name) != "" || sourceURL == "" {
		return name
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return name
	}
	if remote := path.Base(parsed.Path); remote != "" && remote != "/" && remote != "." {
		return remote
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
