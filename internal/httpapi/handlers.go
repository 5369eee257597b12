package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mirrorkit/lsky-mirror/internal/batch"
	"github.com/mirrorkit/lsky-mirror/internal/config"
	"github.com/mirrorkit/lsky-mirror/internal/store"
)

// batchRequest carries the polling client's cumulative counters. The server
// keeps no progress state between calls; an absent or empty body means a
// fresh run.
type batchRequest struct {
	batch.Progress
}

func decodeBatchRequest(r *http.Request) (batch.Progress, error) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return batch.Progress{}, nil
		}
		return batch.Progress{}, err
	}
	return req.Progress, nil
}

func (s *Server) handleAttachmentBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	prior, err := decodeBatchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	report, err := s.attachments.RunBatch(r.Context(), prior)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePostBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	prior, err := decodeBatchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	report, err := s.posts.RunBatch(r.Context(), prior)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type resetResponse struct {
	Deleted int64  `json:"deleted"`
	Message string `json:"message"`
}

func (s *Server) handleResetPosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	deleted, err := s.reset.ResetPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{
		Deleted: deleted,
		Message: "Post batch flags cleared; all posts will be rescanned.",
	})
}

// handleResetMedia requires an explicit confirmation: clearing media flags
// re-uploads everything on the next run and can duplicate remote content.
func (s *Server) handleResetMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest,
			"media reset re-uploads every attachment and may duplicate remote content; send {\"confirm\": true} to proceed")
		return
	}
	deleted, err := s.reset.ResetMedia(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{
		Deleted: deleted,
		Message: "Media batch flags cleared; previously migrated attachments will be re-uploaded.",
	})
}

type corpusStatus struct {
	Total     int  `json:"total"`
	Remaining int  `json:"remaining"`
	Completed bool `json:"completed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()

	attachmentTotal, err := s.store.CountImageAttachments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	attachmentRemaining, err := s.store.CountEligibleAttachments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	postRemaining, err := s.store.CountEligiblePosts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]corpusStatus{
		"attachments": {
			Total:     attachmentTotal,
			Remaining: attachmentRemaining,
			Completed: attachmentRemaining == 0,
		},
		"posts": {
			Total:     postRemaining,
			Remaining: postRemaining,
			Completed: postRemaining == 0,
		},
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type registerAttachmentRequest struct {
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
	GUIDURL  string `json:"guid_url"`
}

func (s *Server) handleRegisterAttachment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerAttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if req.MimeType == "" {
		writeError(w, http.StatusBadRequest, "mime_type is required")
		return
	}
	id, err := s.store.InsertAttachment(r.Context(), store.Attachment{
		FilePath: req.FilePath,
		MimeType: req.MimeType,
		GUIDURL:  req.GUIDURL,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type registerPostRequest struct {
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleRegisterPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	id, err := s.store.InsertPost(r.Context(), store.Post{
		Kind:    req.Kind,
		Status:  req.Status,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
