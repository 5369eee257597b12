package policy

import (
	"strings"

	"github.com/mirrorkit/lsky-mirror/internal/config"
	"github.com/mirrorkit/lsky-mirror/pkg/file"
)

// Candidate describes an attachment the batch engine is about to upload.
type Candidate struct {
	FilePath     string
	MimeType     string
	AttachmentID int64
	Source       string
}

// RequestContext carries the request environment the upload originated from.
// Batch passes run with a zero value; interactive upload paths fill it in.
type RequestContext struct {
	IsAjax     bool
	Action     string
	Context    string
	Referer    string
	RequestURI string
}

// Policy decides whether an attachment should be mirrored at all. It is a
// pure decision function: reads configuration, no side effects, and no
// memoization — callers may re-evaluate it on every pass.
type Policy struct {
	allowedMimes  map[string]struct{}
	excludedCtx   []string
	excludedPaths []string
}

func New(cfg config.PolicyConfig) *Policy {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, mime := range cfg.AllowedMimeTypes {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &Policy{
		allowedMimes:  allowed,
		excludedCtx:   lowerAll(cfg.ExcludedContexts),
		excludedPaths: lowerAll(cfg.ExcludedPathFragments),
	}
}

// ShouldUpload reports whether the candidate is a migration target.
func (p *Policy) ShouldUpload(candidate Candidate, reqCtx RequestContext) bool {
	if !file.IsImageMime(candidate.MimeType) {
		return false
	}
	if len(p.allowedMimes) > 0 {
		if _, ok := p.allowedMimes[strings.ToLower(strings.TrimSpace(candidate.MimeType))]; !ok {
			return false
		}
	}

	action := strings.ToLower(reqCtx.Action)
	uploadCtx := strings.ToLower(reqCtx.Context)
	for _, excluded := range p.excludedCtx {
		if excluded == "" {
			continue
		}
		if strings.Contains(action, excluded) || strings.Contains(uploadCtx, excluded) {
			return false
		}
	}

	referer := strings.ToLower(reqCtx.Referer)
	requestURI := strings.ToLower(reqCtx.RequestURI)
	for _, fragment := range p.excludedPaths {
		if fragment == "" {
			continue
		}
		if strings.Contains(referer, fragment) || strings.Contains(requestURI, fragment) {
			return false
		}
	}

	return true
}

func lowerAll(values []string) []string {
	ret := make([]string, 0, len(values))
	for _, v := range values {
		ret = append(ret, strings.ToLower(strings.TrimSpace(v)))
	}
	return ret
}
