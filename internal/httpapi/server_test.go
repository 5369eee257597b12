package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirrorkit/lsky-mirror/internal/batch"
	"github.com/mirrorkit/lsky-mirror/internal/config"
	"github.com/mirrorkit/lsky-mirror/internal/lsky"
	"github.com/mirrorkit/lsky-mirror/internal/policy"
	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	calls int
}

func (u *stubUploader) Upload(_ context.Context, localPath, sourceURL string) (lsky.UploadResult, error) {
	u.calls++
	key := sourceURL
	if key == "" {
		key = localPath
	}
	return lsky.UploadResult{
		URL:     "https://img.example.com/mirror/" + filepath.Base(key),
		PhotoID: int64(u.calls),
	}, nil
}

func (u *stubUploader) RemoteHost() string {
	return "img.example.com"
}

type stubFetcher struct {
	dir string
	n   int
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.n++
	path := filepath.Join(f.dir, fmt.Sprintf("dl-%d", f.n))
	return path, os.WriteFile(path, []byte("bytes"), 0o644)
}

type fixture struct {
	store    *store.Store
	uploader *stubUploader
	server   *Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	uploader := &stubUploader{}
	pol := policy.New(config.PolicyConfig{AllowedMimeTypes: []string{"image/jpeg", "image/png"}})
	attachments := batch.NewAttachmentEngine(st, uploader, pol, 10)
	posts := batch.NewPostEngine(st, uploader, &stubFetcher{dir: t.TempDir()}, 10)
	reset := batch.NewResetController(st)

	return &fixture{
		store:    st,
		uploader: uploader,
		server:   NewServer(st, attachments, posts, reset, opts...),
	}
}

func (f *fixture) insertLocalImage(t *testing.T, name string) int64 {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("image bytes"), 0o644))
	id, err := f.store.InsertAttachment(context.Background(), store.Attachment{
		FilePath: path,
		MimeType: "image/jpeg",
		GUIDURL:  "https://blog.example.com/uploads/" + name,
	})
	require.NoError(t, err)
	return id
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) batch.Report {
	t.Helper()
	var report batch.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestAttachmentBatchEndpoint(t *testing.T) {
	f := newFixture(t)
	f.insertLocalImage(t, "cat.jpg")

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/attachments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeReport(t, rec)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Success)
	assert.True(t, report.Completed)
	require.Len(t, report.ProcessedItems, 1)
	assert.Equal(t, batch.StatusNewlyProcessed, report.ProcessedItems[0].Status)
}

func TestAttachmentBatchEndpointCumulative(t *testing.T) {
	f := newFixture(t)
	f.insertLocalImage(t, "dog.jpg")

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/attachments",
		batch.Progress{Processed: 3, Success: 2, Failed: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeReport(t, rec)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 3, report.Success)
	assert.Equal(t, 1, report.Failed)
}

func TestPostBatchEndpoint(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.InsertPost(context.Background(), store.Post{
		Kind:    "post",
		Status:  "publish",
		Content: `<img src="https://blog.example.com/pic.jpg">`,
	})
	require.NoError(t, err)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	report := decodeReport(t, rec)
	assert.Equal(t, 1, report.Success)
	assert.True(t, report.Completed)
}

func TestBatchEndpointRejectsGet(t *testing.T) {
	f := newFixture(t)
	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/batch/attachments", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatchEndpointRejectsBadJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/batch/attachments", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminTokenAuthorization(t *testing.T) {
	f := newFixture(t, WithAdminToken("s3cret"))

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient privilege")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = doJSON(t, f.server.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetMediaRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	id := f.insertLocalImage(t, "done.jpg")
	ctx := context.Background()
	require.NoError(t, f.store.SetAttachmentMeta(ctx, id, store.MetaRemoteURL, "https://img.example.com/done.jpg"))

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/attachments/reset", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "confirm")

	// The flag is still there.
	_, ok, err := f.store.GetAttachmentMeta(ctx, id, store.MetaRemoteURL)
	require.NoError(t, err)
	require.True(t, ok)

	rec = doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/attachments/reset",
		map[string]bool{"confirm": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Deleted)

	_, ok, err = f.store.GetAttachmentMeta(ctx, id, store.MetaRemoteURL)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetPostsEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.InsertPost(ctx, store.Post{
		Kind:    "post",
		Status:  "publish",
		Content: `<img src="https://blog.example.com/x.jpg">`,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.SetPostMeta(ctx, id, store.MetaMirrorDone, "1"))

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/batch/posts/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Deleted)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insertLocalImage(t, "a.jpg")
	id := f.insertLocalImage(t, "b.jpg")
	require.NoError(t, f.store.SetAttachmentMeta(ctx, id, store.MetaRemoteURL, "https://img.example.com/b.jpg"))

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]corpusStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status["attachments"].Total)
	assert.Equal(t, 1, status["attachments"].Remaining)
	assert.False(t, status["attachments"].Completed)
	assert.True(t, status["posts"].Completed)
}

func TestSettingsEndpointNotConfigured(t *testing.T) {
	f := newFixture(t)
	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSettingsEndpoint(t *testing.T) {
	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	initial := config.RuntimeSettings{
		LskyAPIURL: "https://img.example.com/api/v1",
		LskyToken:  "token-1",
		BatchSize:  10,
	}
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, initial)
	require.NoError(t, err)

	var applied config.RuntimeSettings
	f := newFixture(t,
		WithRuntimeSettingsStore(settingsStore),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)

	rec := doJSON(t, f.server.Handler(), http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, initial, got)

	// Invalid payloads are rejected before anything is written.
	rec = doJSON(t, f.server.Handler(), http.MethodPut, "/api/settings",
		config.RuntimeSettings{LskyAPIURL: "https://img.example.com", BatchSize: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	next := config.RuntimeSettings{
		LskyAPIURL: "https://img2.example.com/api/v1",
		LskyToken:  "token-2",
		BatchSize:  25,
		CronExpr:   "0 3 * * *",
	}
	rec = doJSON(t, f.server.Handler(), http.MethodPut, "/api/settings", next)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, next, applied)

	// The update is persisted to disk.
	saved, err := config.LoadRuntimeSettingsFile(settingsPath)
	require.NoError(t, err)
	assert.Equal(t, next, saved)
}

func TestRegisterAttachment(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/attachments", map[string]string{
		"file_path": "/uploads/new.jpg",
		"mime_type": "image/jpeg",
		"guid_url":  "https://blog.example.com/uploads/new.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Positive(t, resp["id"])

	rec = doJSON(t, f.server.Handler(), http.MethodPost, "/api/attachments", map[string]string{
		"mime_type": "image/jpeg",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterPost(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.server.Handler(), http.MethodPost, "/api/posts", map[string]string{
		"kind":    "post",
		"status":  "publish",
		"content": `<img src="https://blog.example.com/p.jpg">`,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, f.server.Handler(), http.MethodPost, "/api/posts", map[string]string{
		"kind": "post",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
