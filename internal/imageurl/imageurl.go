// internal/imageurl/imageurl.go

// Package imageurl normalizes vendor CDN image URLs: upgrading
// low-resolution variants to their large counterparts, detecting
// placeholder ("now printing") artwork, scoring quality variants and
// collapsing duplicates of the same underlying asset.
//
// The filename substitution patterns and the placeholder byte threshold
// are reverse-engineered from one vendor's CDN and may go stale; they
// are therefore carried in Config rather than hardcoded at call sites.
package imageurl

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Config holds the CDN heuristics. Use DefaultConfig unless operating
// against a changed CDN layout.
type Config struct {
	// PlaceholderMarkers are substrings (lowercase) whose presence in a
	// URL identifies vendor placeholder artwork.
	PlaceholderMarkers []string `yaml:"placeholder_markers" json:"placeholder_markers"`

	// PlaceholderMaxBytes: a probed image smaller than this is treated
	// as a placeholder. The vendor's stand-in images are tiny compared
	// to real jackets.
	PlaceholderMaxBytes int64 `yaml:"placeholder_max_bytes" json:"placeholder_max_bytes"`
}

// DefaultConfig returns the heuristics matching the vendor CDN as last
// observed.
func DefaultConfig() Config {
	return Config{
		PlaceholderMarkers:  []string{"now_print", "nowprinting", "noimage"},
		PlaceholderMaxBytes: 15000,
	}
}

// Normalizer applies the configured URL heuristics.
type Normalizer struct {
	config Config
}

// NewNormalizer creates a Normalizer, falling back to DefaultConfig for
// unset fields.
func NewNormalizer(config Config) *Normalizer {
	if len(config.PlaceholderMarkers) == 0 {
		config.PlaceholderMarkers = DefaultConfig().PlaceholderMarkers
	}
	if config.PlaceholderMaxBytes <= 0 {
		config.PlaceholderMaxBytes = DefaultConfig().PlaceholderMaxBytes
	}
	return &Normalizer{config: config}
}

var (
	// Small jacket suffix: .../abc00100ps.jpg -> .../abc00100pl.jpg
	smallSuffixPathRe = regexp.MustCompile(`(?i)/ps\.jpg(\?.*)?$`)
	smallSuffixFileRe = regexp.MustCompile(`(?i)([a-z0-9]+)ps\.jpg$`)

	// The "awsimgsrc" host serves numbered pages as
	// /{cid}/{cid}-{n}.{ext}; the large variant lives at
	// /{cid}/{cid}jp-{n}.jpg.
	awsPageRe = regexp.MustCompile(`(?i)/([^/]+)/([^/]+)-(\d+)\.(jpg|jpeg|png|webp)`)

	imageExtRe    = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)(\?|$)`)
	firstPageRe   = regexp.MustCompile(`(?i)-1\.jpg(\?|$)`)
	sizeSuffixRe  = regexp.MustCompile(`(?i)(ps|pl)$`)
	largeMarkerRe = regexp.MustCompile(`(?i)jp-`)
)

// IsImageURL reports whether the string looks like an image file URL.
func IsImageURL(s string) bool {
	return imageExtRe.MatchString(s)
}

// Upgrade returns the best-effort large-variant URL for a possibly
// low-resolution input. Placeholder URLs map to the empty string.
// Malformed input falls through unchanged; this must never fail a
// record.
func (n *Normalizer) Upgrade(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}

	u = smallSuffixPathRe.ReplaceAllString(u, "/pl.jpg")
	u = smallSuffixFileRe.ReplaceAllString(u, "${1}pl.jpg")

	if strings.Contains(u, "awsimgsrc.dmm.co.jp") {
		if m := awsPageRe.FindStringSubmatch(u); m != nil && m[1] == m[2] {
			cid := m[1]
			u = awsPageRe.ReplaceAllString(u, "/"+cid+"/"+cid+"jp-${3}.jpg")
			u = cleanQueryKeepWebp(u)
		}
	}

	if n.IsPlaceholder(u) {
		return ""
	}
	return u
}

// cleanQueryKeepWebp strips the query string except for an f=webp format
// selector, which changes the served bytes.
func cleanQueryKeepWebp(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := parsed.Query()
	if strings.EqualFold(q.Get("f"), "webp") {
		parsed.RawQuery = "f=webp"
	} else {
		parsed.RawQuery = ""
	}
	return parsed.String()
}

// IsPlaceholder is the fast URL-only placeholder heuristic. An empty URL
// counts as a placeholder: there is no artwork to show.
func (n *Normalizer) IsPlaceholder(u string) bool {
	if strings.TrimSpace(u) == "" {
		return true
	}
	s := strings.ToLower(u)
	for _, marker := range n.config.PlaceholderMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// ProbeOptions controls the network half of placeholder detection.
type ProbeOptions struct {
	// UseNetwork enables the HEAD request; when false only the URL
	// heuristic runs.
	UseNetwork bool

	// Client performs the HEAD request. Required when UseNetwork is
	// set; its redirect handling and TLS settings are the caller's.
	Client *http.Client
}

// ProbeIsPlaceholder extends IsPlaceholder with a network existence
// check. The probe fails open: any network error yields false, so a
// record is never dropped solely because of a transient failure.
func (n *Normalizer) ProbeIsPlaceholder(ctx context.Context, u string, opts ProbeOptions) bool {
	if n.IsPlaceholder(u) {
		return true
	}
	if !opts.UseNetwork || opts.Client == nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	resp, err := opts.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// The CDN redirects retired assets to the stand-in image; the final
	// URL after redirects is what matters.
	if resp.Request != nil && resp.Request.URL != nil {
		final := strings.ToLower(resp.Request.URL.String())
		for _, marker := range n.config.PlaceholderMarkers {
			if strings.Contains(final, marker) {
				return true
			}
		}
	}
	if cl := resp.ContentLength; cl > 0 && cl < n.config.PlaceholderMaxBytes {
		return true
	}
	return false
}

// Score rates a URL variant's likely quality. Higher is better. The
// markers are business rules, not incidental string checks: "jp-" is
// the large page-image form, the "pl" suffix is the large jacket, and
// page one is usually the feature-worthy shot.
func Score(u string) int {
	s := strings.ToLower(u)
	score := 0
	if largeMarkerRe.MatchString(s) {
		score += 3
	}
	if strings.HasSuffix(s, "pl.jpg") {
		score += 2
	}
	if strings.Contains(s, "sample_l") {
		score += 2
	}
	if firstPageRe.MatchString(s) {
		score++
	}
	return score
}

// IsLargeHint reports whether the URL carries any large-variant marker.
func IsLargeHint(u string) bool {
	return Score(u) >= 2 || largeMarkerRe.MatchString(strings.ToLower(u))
}

// PickBest selects the highest-scoring variant from candidates, breaking
// ties by lexicographic order so the choice is reproducible. Empty input
// yields the empty string.
func PickBest(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	sorted := make([]string, len(urls))
	copy(sorted, urls)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := Score(sorted[i]), Score(sorted[j])
		if si != sj {
			return si > sj
		}
		return sorted[i] < sorted[j]
	})
	return sorted[0]
}

// IdentityKey infers the underlying asset identity of an image URL by
// stripping size-variant tokens from the filename. Two URLs with the
// same key are the same image served at different sizes.
func IdentityKey(raw string) string {
	path := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	name := path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "jp-", "-")
	name = sizeSuffixRe.ReplaceAllString(name, "")
	return name
}

// DedupeByIdentity collapses size variants of the same underlying image,
// keeping the highest-scoring variant per identity. Relative order of
// first occurrence among surviving keys is preserved.
func DedupeByIdentity(urls []string) []string {
	type slot struct {
		url   string
		score int
	}
	order := make([]string, 0, len(urls))
	best := make(map[string]slot, len(urls))

	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		key := IdentityKey(u)
		cur, seen := best[key]
		if !seen {
			order = append(order, key)
			best[key] = slot{url: u, score: Score(u)}
			continue
		}
		if s := Score(u); s > cur.score {
			best[key] = slot{url: u, score: s}
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		out = append(out, best[key].url)
	}
	return out
}
