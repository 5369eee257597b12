package batch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mirrorkit/lsky-mirror/internal/store"
	"github.com/mirrorkit/lsky-mirror/pkg/log"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the slice of the downloader the post engine consumes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// PostEngine paginates published posts/pages, extracts embedded image URLs,
// mirrors them to the remote host, and rewrites content in place. Unlike the
// attachment engine, a post is always dequeued after one pass even when some
// of its images failed: forward progress is bounded by
// ceil(total/batch_size) passes, and failed posts need an explicit reset to
// be retried.
type PostEngine struct {
	store    *store.Store
	uploader Uploader
	fetcher  Fetcher

	batchSize atomic.Int32
	group     singleflight.Group
}

func NewPostEngine(st *store.Store, uploader Uploader, fetcher Fetcher, batchSize int) *PostEngine {
	if batchSize <= 0 {
		batchSize = 10
	}
	e := &PostEngine{
		store:    st,
		uploader: uploader,
		fetcher:  fetcher,
	}
	e.batchSize.Store(int32(batchSize))
	return e
}

// SetBatchSize changes the page size for subsequent passes.
func (e *PostEngine) SetBatchSize(size int) {
	if size > 0 {
		e.batchSize.Store(int32(size))
	}
}

// RunBatch processes one page of eligible posts. Concurrent callers collapse
// into a single pass and share its report.
func (e *PostEngine) RunBatch(ctx context.Context, prior Progress) (Report, error) {
	v, err, _ := e.group.Do("posts", func() (any, error) {
		return e.runBatch(ctx, prior)
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (e *PostEngine) runBatch(ctx context.Context, prior Progress) (Report, error) {
	total, err := e.store.CountEligiblePosts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count eligible posts: %w", err)
	}

	page, err := e.store.EligiblePosts(ctx, int(e.batchSize.Load()))
	if err != nil {
		return Report{}, fmt.Errorf("select post page: %w", err)
	}

	var state runState
	items := make([]ProcessedItem, 0)
	for _, post := range page {
		postItems, err := e.processPost(ctx, post)
		if err != nil {
			return Report{}, err
		}
		for _, item := range postItems {
			items = append(items, item)
			state.record(item)
		}
	}

	remaining, err := e.store.CountEligiblePosts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count remaining posts: %w", err)
	}

	message := fmt.Sprintf("Processed %d posts with %d images (%d ok, %d failed), %d posts remaining",
		len(page), state.processed, state.success, state.failed, remaining)
	if len(page) == 0 {
		message = "No eligible posts remain"
	}
	return state.reportWith(prior, total, remaining == 0, items, message), nil
}

// processPost mirrors every external image in one post. The post is marked
// done regardless of per-image failures; mirror_failed records that a rerun
// after reset is needed.
func (e *PostEngine) processPost(ctx context.Context, post store.Post) ([]ProcessedItem, error) {
	urls := extractImageURLs(post.Content)
	remoteHost := e.uploader.RemoteHost()

	content := post.Content
	items := make([]ProcessedItem, 0, len(urls))
	hadFailure := false

	for _, imgURL := range urls {
		item := e.mirrorOne(ctx, imgURL, remoteHost, &content)
		if !item.Success {
			hadFailure = true
		}
		items = append(items, item)
	}

	if content != post.Content {
		if err := e.store.UpdatePostContent(ctx, post.ID, content, time.Now()); err != nil {
			return nil, fmt.Errorf("update post %d content: %w", post.ID, err)
		}
	}
	// Always dequeue: one pass per post, failed or not.
	if err := e.store.SetPostMeta(ctx, post.ID, store.MetaMirrorDone, "1"); err != nil {
		return nil, fmt.Errorf("mark post %d done: %w", post.ID, err)
	}
	if hadFailure {
		if err := e.store.SetPostMeta(ctx, post.ID, store.MetaMirrorFailed, "1"); err != nil {
			return nil, fmt.Errorf("mark post %d failed: %w", post.ID, err)
		}
	}
	return items, nil
}

// mirrorOne handles a single image URL: skip remote-host URLs, otherwise
// download, re-upload, and rewrite every occurrence in the content.
func (e *PostEngine) mirrorOne(ctx context.Context, imgURL, remoteHost string, content *string) (item ProcessedItem) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while mirroring %s: %v", imgURL, r)
			item = ProcessedItem{
				Success:  false,
				Original: imgURL,
				Status:   StatusFailed,
				Error:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	if remoteHost != "" && urlHost(imgURL) == remoteHost {
		return ProcessedItem{Success: true, Original: imgURL, NewURL: imgURL, Status: StatusAlreadyProcessed}
	}

	tmpPath, err := e.fetcher.Fetch(ctx, imgURL)
	if err != nil {
		return ProcessedItem{Success: false, Original: imgURL, Status: StatusFailed, Error: err.Error()}
	}
	defer func() {
		// Best-effort cleanup on success and failure alike.
		_ = os.Remove(tmpPath)
	}()

	result, err := e.uploader.Upload(ctx, tmpPath, imgURL)
	if err != nil {
		return ProcessedItem{Success: false, Original: imgURL, Status: StatusFailed, Error: err.Error()}
	}

	*content = strings.ReplaceAll(*content, imgURL, result.URL)
	return ProcessedItem{Success: true, Original: imgURL, NewURL: result.URL, Status: StatusNewlyProcessed}
}

// extractImageURLs collects http(s) <img src> values in document order,
// deduplicated. Rewriting replaces every textual occurrence, so one entry
// per distinct URL is enough.
func extractImageURLs(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		log.Warn("parse post content: %v", err)
		return nil
	}

	seen := make(map[string]struct{})
	ret := make([]string, 0)
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		src = strings.TrimSpace(src)
		lower := strings.ToLower(src)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return
		}
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		ret = append(ret, src)
	})
	return ret
}

func urlHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
