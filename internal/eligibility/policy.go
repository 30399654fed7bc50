package eligibility

import (
	"net/http"
	"strings"

	"github.com/samber/lo"
)

// Profile selects which eligibility and capture rules apply.
type Profile string

const (
	ProfileMinimal       Profile = "minimal"
	ProfileResponseAware Profile = "response-aware"
)

// Reason explains why a request was not eligible. The empty reason means the
// request is eligible.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonStaticAsset Reason = "static_asset"
	ReasonSkipPath    Reason = "skip_path"
	ReasonMethod      Reason = "method"
)

// DefaultSkipExtensions lists static-asset suffixes that never produce events.
var DefaultSkipExtensions = []string{
	"css", "js", "jpg", "jpeg", "png", "gif", "svg", "webp", "ico",
	"woff", "woff2", "ttf", "mp4", "webm", "pdf", "zip", "tar", "gz",
}

// DefaultSkipPaths lists non-content paths that never produce events.
var DefaultSkipPaths = []string{"/favicon.ico", "/robots.txt", "/sitemap.xml"}

// Policy is an immutable eligibility predicate.
type Policy struct {
	extensions map[string]struct{}
	// compound holds multi-dot extensions such as "tar.gz", which cannot be
	// matched against the final path element's extension alone.
	compound []string
	paths    map[string]struct{}
	methods  map[string]struct{}
}

// NewPolicy builds a policy. Extensions are matched case-insensitively with
// or without a leading dot. A nil or empty methods list allows every method.
func NewPolicy(extensions, paths, methods []string) *Policy {
	exts := lo.Uniq(lo.Filter(
		lo.Map(extensions, func(ext string, _ int) string {
			return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		}),
		func(ext string, _ int) bool { return ext != "" },
	))

	p := &Policy{
		extensions: toSet(exts),
		compound:   lo.Filter(exts, func(ext string, _ int) bool { return strings.Contains(ext, ".") }),
		paths:      toSet(lo.Filter(paths, func(path string, _ int) bool { return path != "" })),
	}

	if len(methods) > 0 {
		p.methods = toSet(lo.Map(methods, func(m string, _ int) string {
			return strings.ToUpper(strings.TrimSpace(m))
		}))
	}

	return p
}

// ForProfile builds the policy for a deployment profile from the injected
// skip tables. Unknown profiles behave like ProfileMinimal.
func ForProfile(profile Profile, extensions, paths []string) *Policy {
	if profile == ProfileResponseAware {
		return NewPolicy(extensions, paths, []string{http.MethodGet, http.MethodPost})
	}

	return NewPolicy(extensions, paths, nil)
}

// CapturesResponse reports whether events built under the profile carry the
// origin status and duration.
func (p Profile) CapturesResponse() bool {
	return p == ProfileResponseAware
}

// Eligible reports whether a request with the given method and URL path
// should be tracked.
func (p *Policy) Eligible(method, path string) bool {
	return p.Decide(method, path) == ReasonNone
}

// Decide returns the reason a request is skipped, or ReasonNone.
func (p *Policy) Decide(method, path string) Reason {
	if p.methods != nil {
		if _, ok := p.methods[strings.ToUpper(method)]; !ok {
			return ReasonMethod
		}
	}

	if _, ok := p.paths[path]; ok {
		return ReasonSkipPath
	}

	if p.hasSkippedExtension(path) {
		return ReasonStaticAsset
	}

	return ReasonNone
}

func (p *Policy) hasSkippedExtension(path string) bool {
	lower := strings.ToLower(path)

	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 || dot < strings.LastIndexByte(lower, '/') {
		return false
	}

	if _, ok := p.extensions[lower[dot+1:]]; ok {
		return true
	}

	for _, ext := range p.compound {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}

	return false
}

func toSet(values []string) map[string]struct{} {
	return lo.SliceToMap(values, func(v string) (string, struct{}) {
		return v, struct{}{}
	})
}
