// internal/provider/trailer.go
package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fanzapress/fanzapress/internal/imageurl"
	"github.com/fanzapress/fanzapress/pkg/types"
)

// TrailerOptions controls trailer candidate classification. The embed
// URL shape is reverse-engineered from the vendor player and may need
// revalidation, hence configuration rather than constants.
type TrailerOptions struct {
	// EmbedTemplate builds the embeddable player URL from the external
	// id and a WIDTH_HEIGHT size token. Empty disables synthesis and
	// the best discovered candidate is used as-is.
	EmbedTemplate string `yaml:"embed_template" json:"embed_template"`

	// EmbedMarkers are substrings identifying an embeddable player URL
	// during the structural scan.
	EmbedMarkers []string `yaml:"embed_markers" json:"embed_markers"`

	// DirectExtensions are file extensions of direct video links, which
	// never surface in output.
	DirectExtensions []string `yaml:"direct_extensions" json:"direct_extensions"`
}

// DefaultTrailerOptions returns the classification rules matching the
// vendor as last observed.
func DefaultTrailerOptions() TrailerOptions {
	return TrailerOptions{
		EmbedTemplate:    "https://www.dmm.co.jp/litevideo/-/part/=/cid=%s/size=%s/",
		EmbedMarkers:     []string{"litevideo", "youtube.com/embed", "youtu.be", "player"},
		DirectExtensions: []string{".mp4", ".m3u8"},
	}
}

var (
	sizeTokenRe  = regexp.MustCompile(`(?i)size[_=](\d{2,4})[_x](\d{2,4})`)
	youtubeIDRe  = regexp.MustCompile(`(?i)(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([\w-]{6,})`)
	httpSchemeRe = regexp.MustCompile(`(?i)^(https?:)?//`)
)

// movieKeys are the explicit members that may carry trailer URLs, in
// preference order.
var movieKeys = []string{"sampleMovieURL", "sampleMovieURLS", "sampleMovie", "samplemovie"}

// isDirectLink reports whether the URL points at a raw video file.
// Direct links are suppressed from every template-visible field.
func (o TrailerOptions) isDirectLink(u string) bool {
	s := strings.ToLower(u)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	exts := o.DirectExtensions
	if len(exts) == 0 {
		exts = DefaultTrailerOptions().DirectExtensions
	}
	for _, ext := range exts {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}

// candidateScore rates an embeddable trailer candidate found during the
// structural scan: known player markers outweigh resolution hints,
// resolution hints outweigh bare sample links.
func (o TrailerOptions) candidateScore(u string) int {
	s := strings.ToLower(u)
	score := 0
	markers := o.EmbedMarkers
	if len(markers) == 0 {
		markers = DefaultTrailerOptions().EmbedMarkers
	}
	for _, m := range markers {
		if strings.Contains(s, strings.ToLower(m)) {
			score += 4
			break
		}
	}
	if w, h, ok := sizeToken(u); ok {
		// Bigger player sizes score higher without ever outranking a
		// marker match.
		score += (w * h) / 200000
		if score < 1 {
			score = 1
		}
	}
	if strings.Contains(s, "sample") {
		score++
	}
	return score
}

func sizeToken(u string) (w, h int, ok bool) {
	m := sizeTokenRe.FindStringSubmatch(u)
	if m == nil {
		return 0, 0, false
	}
	w, _ = strconv.Atoi(m[1])
	h, _ = strconv.Atoi(m[2])
	return w, h, w > 0 && h > 0
}

// extractTrailer classifies trailer candidates for the record. Explicit
// movie members take precedence; when they are absent the whole raw
// object is scanned and the highest-scoring embeddable candidate wins.
func (n *Normalizer) extractTrailer(item Value, rec *types.Record) {
	opts := n.opts.Trailer

	best := ""
	bestArea := -1
	for _, key := range movieKeys {
		member := item.Key(key)
		if member.IsNil() {
			continue
		}
		member.Walk(func(s string) {
			u := strings.TrimSpace(s)
			if !httpSchemeRe.MatchString(u) || opts.isDirectLink(u) || imageurl.IsImageURL(u) {
				return
			}
			area := 0
			if w, h, ok := sizeToken(u); ok {
				area = w * h
			}
			if area > bestArea {
				bestArea = area
				best = u
			}
		})
		if best != "" {
			break
		}
	}

	if best == "" {
		// Structural fallback: scan everything, skipping direct links.
		bestScore := 0
		item.Walk(func(s string) {
			u := strings.TrimSpace(s)
			if !httpSchemeRe.MatchString(u) || opts.isDirectLink(u) || imageurl.IsImageURL(u) {
				return
			}
			if score := opts.candidateScore(u); score > bestScore {
				bestScore = score
				best = u
			}
		})
	}

	if best == "" {
		return
	}
	if strings.HasPrefix(best, "//") {
		best = "https:" + best
	}

	rec.TrailerURL = best
	rec.TrailerEmbedRaw = best
	rec.TrailerEmbed = n.embedURL(best, rec.ExternalID)
	if rec.TrailerPoster == "" {
		rec.TrailerPoster = rec.PrimaryImage
	}
}

// embedURL derives the embeddable form of a trailer candidate: YouTube
// links map to the /embed/ form, vendor player links are rebuilt from
// the template at the discovered size.
func (n *Normalizer) embedURL(candidate, externalID string) string {
	if m := youtubeIDRe.FindStringSubmatch(candidate); m != nil {
		return "https://www.youtube.com/embed/" + m[1]
	}
	template := n.opts.Trailer.EmbedTemplate
	if template == "" || externalID == "" {
		return candidate
	}
	size := "1280_720"
	if w, h, ok := sizeToken(candidate); ok {
		size = fmt.Sprintf("%d_%d", w, h)
	} else if n.opts.IframeSize != "" {
		size = n.opts.IframeSize
	}
	return fmt.Sprintf(template, externalID, size)
}
