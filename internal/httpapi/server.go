package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorkit/lsky-mirror/internal/batch"
	"github.com/mirrorkit/lsky-mirror/internal/config"
	"github.com/mirrorkit/lsky-mirror/internal/store"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	store       *store.Store
	attachments *batch.AttachmentEngine
	posts       *batch.PostEngine
	reset       *batch.ResetController
	settings    runtimeSettingsStore
	apply       runtimeSettingsApplier

	adminToken string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithAdminToken enables bearer-token authorization on all /api/ routes.
// An empty token leaves the API open (local development).
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = strings.TrimSpace(token)
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func NewServer(
	st *store.Store,
	attachments *batch.AttachmentEngine,
	posts *batch.PostEngine,
	reset *batch.ResetController,
	opts ...Option,
) *Server {
	s := &Server{
		store:       st,
		attachments: attachments,
		posts:       posts,
		reset:       reset,
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/batch/attachments", s.authorized(s.handleAttachmentBatch))
	s.mux.HandleFunc("/api/batch/attachments/reset", s.authorized(s.handleResetMedia))
	s.mux.HandleFunc("/api/batch/posts", s.authorized(s.handlePostBatch))
	s.mux.HandleFunc("/api/batch/posts/reset", s.authorized(s.handleResetPosts))
	s.mux.HandleFunc("/api/status", s.authorized(s.handleStatus))
	s.mux.HandleFunc("/api/settings", s.authorized(s.handleSettings))
	s.mux.HandleFunc("/api/attachments", s.authorized(s.handleRegisterAttachment))
	s.mux.HandleFunc("/api/posts", s.authorized(s.handleRegisterPost))
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// authorized rejects requests lacking the admin bearer token before any
// batch logic runs. The response is deliberately generic.
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			header := r.Header.Get("Authorization")
			expected := "Bearer " + s.adminToken
			if subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "insufficient privilege")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
