package batch

import (
	"context"
	"fmt"

	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
)

// ResetController bulk-clears the metadata flags written by the two batch
// engines, restoring pre-migration state for a corpus.
type ResetController struct {
	store *store.Store
}

func NewResetController(st *store.Store) *ResetController {
	return &ResetController{store: st}
}

// ResetPosts deletes every mirror_done flag so all posts re-enter the scan.
// Content, mirror_failed flags, and attachment state are untouched.
func (r *ResetController) ResetPosts(ctx context.Context) (int64, error) {
	deleted, err := r.store.ResetPostMeta(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset post batch: %w", err)
	}
	r.store.PurgeContentCache()
	log.Info("post batch reset: %d flags cleared", deleted)
	return deleted, nil
}

// ResetMedia deletes every migration flag on attachments. Destructive:
// previously-migrated attachments will be re-uploaded on the next run and
// may duplicate remote content. The HTTP boundary requires an explicit
// confirmation before calling this.
func (r *ResetController) ResetMedia(ctx context.Context) (int64, error) {
	deleted, err := r.store.ResetAttachmentMeta(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset media batch: %w", err)
	}
	log.Info("media batch reset: %d flags cleared", deleted)
	return deleted, nil
}
