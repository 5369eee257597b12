package batch

import (
	"context"

	"github.com/mirrorkit/lsky-mirror/internal/lsky"
)

// ItemStatus is the per-item outcome reported back to the polling client.
type ItemStatus string

const (
	StatusAlreadyProcessed    ItemStatus = "already_processed"
	StatusNewlyProcessed      ItemStatus = "newly_processed"
	StatusFailed              ItemStatus = "failed"
	StatusExcluded            ItemStatus = "excluded"
	StatusExcludedSkipped     ItemStatus = "excluded_skipped"
	StatusRestrictedSkipped   ItemStatus = "restricted_skipped"
	StatusAvatarSkipped       ItemStatus = "avatar_skipped"
	StatusAvatarMarkedSkipped ItemStatus = "avatar_marked_skipped"
)

// ProcessedItem is one image/URL touched during the current call. Produced
// fresh each call, never stored.
type ProcessedItem struct {
	Success  bool       `json:"success"`
	Original string     `json:"original"`
	NewURL   string     `json:"new_url,omitempty"`
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
}

// Progress carries the client's cumulative counters into a batch call. The
// server holds no state between calls; the polling client accumulates.
type Progress struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// Report is the response envelope of one batch pass. Counters are cumulative
// (client's prior progress plus this call); ProcessedItems is this-call only.
type Report struct {
	Processed      int             `json:"processed"`
	Success        int             `json:"success"`
	Failed         int             `json:"failed"`
	Total          int             `json:"total"`
	Completed      bool            `json:"completed"`
	ProcessedItems []ProcessedItem `json:"processed_items"`
	Message        string          `json:"message"`
}

// Uploader is the slice of the upload client the engines consume.
type Uploader interface {
	Upload(ctx context.Context, localPath, sourceURL string) (lsky.UploadResult, error)
	RemoteHost() string
}

// runState tracks this-call counters; reset at the start of every pass.
// processed != success + failed is possible: missing-file rows are skipped
// without touching any counter.
type runState struct {
	processed int
	success   int
	failed    int
}

func (s *runState) record(item ProcessedItem) {
	s.processed++
	if item.Success {
		s.success++
	} else {
		s.failed++
	}
}

func (s runState) reportWith(prior Progress, total int, completed bool, items []ProcessedItem, message string) Report {
	return Report{
		Processed:      prior.Processed + s.processed,
		Success:        prior.Success + s.success,
		Failed:         prior.Failed + s.failed,
		Total:          total,
		Completed:      completed,
		ProcessedItems: items,
		Message:        message,
	}
}
