package batch

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/mirrorkit/lsky-mirror/internal/policy"
	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
	"golang.org/x/sync/singleflight"
)

// AttachmentEngine paginates the media-library backlog, applies the
// exclusion policy, uploads eligible files, and persists per-item outcomes
// as metadata flags. One RunBatch call does a bounded amount of work; the
// polling client loops until Completed.
type AttachmentEngine struct {
	store    *store.Store
	uploader Uploader
	policy   *policy.Policy

	batchSize atomic.Int32
	group     singleflight.Group
}

func NewAttachmentEngine(st *store.Store, uploader Uploader, pol *policy.Policy, batchSize int) *AttachmentEngine {
	if batchSize <= 0 {
		batchSize = 10
	}
	e := &AttachmentEngine{
		store:    st,
		uploader: uploader,
		policy:   pol,
	}
	e.batchSize.Store(int32(batchSize))
	return e
}

// SetBatchSize changes the page size for subsequent passes.
func (e *AttachmentEngine) SetBatchSize(size int) {
	if size > 0 {
		e.batchSize.Store(int32(size))
	}
}

// RunBatch processes one page of eligible attachments. Concurrent callers
// collapse into a single pass and share its report; the rows themselves are
// the only durable progress state.
func (e *AttachmentEngine) RunBatch(ctx context.Context, prior Progress) (Report, error) {
	v, err, _ := e.group.Do("attachments", func() (any, error) {
		return e.runBatch(ctx, prior)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (e *AttachmentEngine) runBatch(ctx context.Context, prior Progress) (Report, error) {
	total, err := e.store.CountEligibleAttachments(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count eligible attachments: %w", err)
	}

	page, err := e.store.EligibleAttachments(ctx, int(e.batchSize.Load()))
	if err != nil {
		return Report{}, fmt.Errorf("select attachment page: %w", err)
	}

	var state runState
	items := make([]ProcessedItem, 0, len(page))
	for _, att := range page {
		item, err := e.processOne(ctx, att)
		if err != nil {
			return Report{}, err
		}
		if item == nil {
			// Local file missing: uncounted skip, row stays eligible.
			continue
		}
		items = append(items, *item)
		state.record(*item)
	}

	remaining, err := e.store.CountEligibleAttachments(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count remaining attachments: %w", err)
	}

	message := fmt.Sprintf("Processed %d attachments (%d ok, %d failed), %d remaining",
		state.processed, state.success, state.failed, remaining)
	if len(page) == 0 {
		message = "No eligible attachments remain"
	}
	return state.reportWith(prior, total, remaining == 0, items, message), nil
}

// processOne walks the per-attachment state machine. A nil item with nil
// error means the row produced no outcome record (missing local file).
// Store failures are environment faults and abort the pass; everything else
// becomes a per-item outcome.
func (e *AttachmentEngine) processOne(ctx context.Context, att store.Attachment) (item *ProcessedItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing attachment %d: %v", att.ID, r)
			item = &ProcessedItem{
				Success:  false,
				Original: attachmentOrigin(att),
				Status:   StatusFailed,
				Error:    fmt.Sprintf("panic: %v", r),
			}
			err = nil
		}
	}()

	meta, err := e.store.AttachmentMeta(ctx, att.ID)
	if err != nil {
		return nil, fmt.Errorf("load attachment %d meta: %w", att.ID, err)
	}
	origin := attachmentOrigin(att)

	// 1. Flagged avatar that was never classified: classify it now.
	if meta[store.MetaIsAvatar] == "1" {
		if err := e.store.SetAttachmentMeta(ctx, att.ID, store.MetaType, store.TypeRestricted); err != nil {
			return nil, fmt.Errorf("mark attachment %d restricted: %w", att.ID, err)
		}
		return &ProcessedItem{Success: true, Original: origin, Status: StatusAvatarSkipped}, nil
	}

	// 2. Already classified restricted: cheap short circuit, no heuristics.
	if meta[store.MetaType] == store.TypeRestricted {
		return &ProcessedItem{Success: true, Original: origin, Status: StatusRestrictedSkipped}, nil
	}

	// 3. Explicit skip flag.
	if meta[store.MetaBatchSkip] == "1" {
		return &ProcessedItem{Success: true, Original: origin, Status: StatusExcludedSkipped}, nil
	}

	// 4. Avatar-detection heuristic, evaluated lazily.
	isAvatar, err := isAvatarAttachment(ctx, e.store, att)
	if err != nil {
		return nil, fmt.Errorf("avatar detection for attachment %d: %w", att.ID, err)
	}
	if isAvatar {
		for key, value := range map[string]string{
			store.MetaIsAvatar:   "1",
			store.MetaBatchSkip:  "1",
			store.MetaType:       store.TypeRestricted,
			store.MetaSkipReason: "avatar",
		} {
			if err := e.store.SetAttachmentMeta(ctx, att.ID, key, value); err != nil {
				return nil, fmt.Errorf("flag attachment %d as avatar: %w", att.ID, err)
			}
		}
		return &ProcessedItem{Success: true, Original: origin, Status: StatusAvatarMarkedSkipped}, nil
	}

	// 5. Already migrated: backfill the ordinary classification if unset.
	if remoteURL := meta[store.MetaRemoteURL]; remoteURL != "" {
		if _, ok := meta[store.MetaType]; !ok {
			if err := e.store.SetAttachmentMeta(ctx, att.ID, store.MetaType, store.TypeOrdinary); err != nil {
				return nil, fmt.Errorf("backfill attachment %d type: %w", att.ID, err)
			}
		}
		return &ProcessedItem{Success: true, Original: origin, NewURL: remoteURL, Status: StatusAlreadyProcessed}, nil
	}

	// 6. Missing local file: uncounted skip, the row stays eligible.
	if _, statErr := os.Stat(att.FilePath); statErr != nil {
		if os.IsNotExist(statErr) {
			log.Debug("attachment %d file missing: %s", att.ID, att.FilePath)
			return nil, nil
		}
		return &ProcessedItem{
			Success:  false,
			Original: origin,
			Status:   StatusFailed,
			Error:    statErr.Error(),
		}, nil
	}

	// 7. Exclusion policy. Not memoized: re-evaluated on every pass.
	candidate := policy.Candidate{
		FilePath:     att.FilePath,
		MimeType:     att.MimeType,
		AttachmentID: att.ID,
		Source:       "batch",
	}
	if !e.policy.ShouldUpload(candidate, policy.RequestContext{}) {
		return &ProcessedItem{Success: true, Original: origin, Status: StatusExcluded}, nil
	}

	// 8. Upload. Failures write no terminal flag so the row retries later.
	result, uploadErr := e.uploader.Upload(ctx, att.FilePath, att.GUIDURL)
	if uploadErr != nil {
		return &ProcessedItem{
			Success:  false,
			Original: origin,
			Status:   StatusFailed,
			Error:    uploadErr.Error(),
		}, nil
	}

	if err := e.store.SetAttachmentMeta(ctx, att.ID, store.MetaRemoteURL, result.URL); err != nil {
		return nil, fmt.Errorf("persist attachment %d remote url: %w", att.ID, err)
	}
	if err := e.store.SetAttachmentMeta(ctx, att.ID, store.MetaType, store.TypeOrdinary); err != nil {
		return nil, fmt.Errorf("persist attachment %d type: %w", att.ID, err)
	}
	if result.PhotoID > 0 {
		if err := e.store.SetAttachmentMeta(ctx, att.ID, store.MetaRemotePhotoID, fmt.Sprintf("%d", result.PhotoID)); err != nil {
			return nil, fmt.Errorf("persist attachment %d photo id: %w", att.ID, err)
		}
	}
	return &ProcessedItem{Success: true, Original: origin, NewURL: result.URL, Status: StatusNewlyProcessed}, nil
}

func attachmentOrigin(att store.Attachment) string {
	if att.GUIDURL != "" {
		return att.GUIDURL
	}
	return att.FilePath
}
