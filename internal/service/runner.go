package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mirrorkit/lsky-mirror/internal/batch"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// maxPasses bounds a scheduled run. The attachment engine retries failures
// indefinitely, so without a bound a persistently failing upload would spin.
const maxPasses = 10000

// BatchRunner is the slice of a batch engine the scheduler consumes.
type BatchRunner interface {
	RunBatch(ctx context.Context, prior batch.Progress) (batch.Report, error)
}

// MirrorRunner drives both corpora to completion on a cron schedule. With an
// empty cron expression scheduling is a no-op and migration stays purely
// client-driven.
type MirrorRunner struct {
	cronExpr    string
	cron        *cron.Cron
	attachments BatchRunner
	posts       BatchRunner

	running atomic.Bool
}

func NewMirrorRunner(cronExpr string, c *cron.Cron, attachments, posts BatchRunner) *MirrorRunner {
	return &MirrorRunner{
		cronExpr:    cronExpr,
		cron:        c,
		attachments: attachments,
		posts:       posts,
	}
}

func (r *MirrorRunner) Schedule(ctx context.Context) error {
	if strings.TrimSpace(r.cronExpr) == "" {
		log.Info("no cron expression configured, automatic migration disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.cronExpr, func() {
		r.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule migration run: %w", err)
	}
	log.Info("automatic migration scheduled: %s", r.cronExpr)
	return nil
}

// RunOnce drains both corpora concurrently. Overlapping ticks are dropped so
// two scheduled runs never race over the same pages.
func (r *MirrorRunner) RunOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Warn("migration run already in progress, skipping tick")
		return
	}
	defer r.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return drain(ctx, r.attachments, "attachments")
	})
	g.Go(func() error {
		return drain(ctx, r.posts, "posts")
	})
	if err := g.Wait(); err != nil {
		log.Error("migration run: %v", err)
	}
}

func drain(ctx context.Context, runner BatchRunner, corpus string) error {
	progress := batch.Progress{}
	for pass := 0; pass < maxPasses; pass++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		report, err := runner.RunBatch(ctx, progress)
		if err != nil {
			return fmt.Errorf("%s pass %d: %w", corpus, pass+1, err)
		}
		if report.Completed {
			log.Info("%s migration complete: %d processed (%d ok, %d failed)",
				corpus, report.Processed, report.Success, report.Failed)
			return nil
		}
		if report.Processed == progress.Processed {
			// No outcome records this pass (e.g. only missing-file rows
			// remain); looping further cannot make progress.
			log.Warn("%s migration stalled with %d rows remaining", corpus, report.Total)
			return nil
		}
		progress = batch.Progress{
			Processed: report.Processed,
			Success:   report.Success,
			Failed:    report.Failed,
		}
	}
	return fmt.Errorf("%s migration did not complete within %d passes", corpus, maxPasses)
}
