// pkg/types/types.go

// Package types defines the shared data structures used across the
// fanzapress pipeline: the canonical product record produced by the
// normalizer, and the filter specification applied to it.
package types

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// GalleryDelimiter separates gallery image URLs in flattened string form
// (CSV columns, ledger rows).
const GalleryDelimiter = "|"

// ListDelimiter separates multi-valued text fields (actresses, genres)
// in flattened string form.
const ListDelimiter = ", "

// Record is the canonical unit of work flowing through the pipeline.
// It is constructed once per raw API item and mutated in place by later
// stages: the image mirror rewrites image fields, the content builder
// populates Content.
type Record struct {
	// ExternalID is the vendor-assigned product code. It is the stable
	// identity key for deduplication and idempotent publishing and is
	// never regenerated within or across runs.
	ExternalID string `json:"external_id"`

	Title   string   `json:"title"`
	Maker   string   `json:"maker"`
	Actress string   `json:"actress"`
	Genres  []string `json:"genres"`

	// Date is the release date, an ISO date or the date prefix of a
	// date-time string. May be empty.
	Date string `json:"date"`

	// URL is the canonical product page URL; AffiliateURL is derived
	// from it by wrapping through the affiliate redirector.
	URL          string `json:"url"`
	AffiliateURL string `json:"affiliate_url"`

	// PrimaryImage is the best-guess large jacket image. Never a
	// placeholder URL; empty when no real artwork is available.
	PrimaryImage string `json:"primary_image"`

	// GalleryImages holds sample image URLs, deduplicated by underlying
	// asset with the large variant preferred.
	GalleryImages []string `json:"gallery_images"`

	// Trailer fields. Direct video file links (mp4/m3u8) are never
	// stored here; only embeddable and poster forms survive
	// normalization.
	TrailerURL      string `json:"trailer_url"`
	TrailerEmbed    string `json:"trailer_embed_or_youtube"`
	TrailerPoster   string `json:"trailer_poster"`
	TrailerEmbedRaw string `json:"trailer_embed_raw"`

	// AspectRatio is the embed player padding-top percentage derived
	// from the configured iframe size (e.g. "56.25" for 1280x720).
	AspectRatio string `json:"aspect_ratio"`

	// Content is the generated HTML body, populated by the content
	// builder stage.
	Content string `json:"content"`

	// Media identifiers on the publish target, populated by the image
	// mirror when it can resolve them. Zero means unresolved.
	PrimaryImageID  int   `json:"primary_image_id,omitempty"`
	GalleryImageIDs []int `json:"gallery_image_ids,omitempty"`

	extraKeys   []string
	extraValues map[string]string
}

// SetExtra records an additional field in discovery order. Extra fields
// are appended after the fixed columns in CSV output and are otherwise
// opaque to the pipeline.
func (r *Record) SetExtra(key, value string) {
	if r.extraValues == nil {
		r.extraValues = make(map[string]string)
	}
	if _, seen := r.extraValues[key]; !seen {
		r.extraKeys = append(r.extraKeys, key)
	}
	r.extraValues[key] = value
}

// Extra returns the value of an additional field and whether it was set.
func (r *Record) Extra(key string) (string, bool) {
	v, ok := r.extraValues[key]
	return v, ok
}

// ExtraKeys returns the additional field names in discovery order.
func (r *Record) ExtraKeys() []string {
	return r.extraKeys
}

// GenresJoined returns the genre list flattened to its delimited string
// representation, which is what filters match against and CSV emits.
func (r *Record) GenresJoined() string {
	return strings.Join(r.Genres, ListDelimiter)
}

// GalleryJoined returns the gallery URLs flattened with the pipe
// delimiter used by CSV and ledger rows.
func (r *Record) GalleryJoined() string {
	return strings.Join(r.GalleryImages, GalleryDelimiter)
}

// BaseColumns is the fixed leading column order for CSV and Excel
// exports. Extra record fields follow in discovery order.
var BaseColumns = []string{
	"external_id",
	"title",
	"url",
	"date",
	"maker",
	"actress",
	"genres",
	"gallery_images",
	"primary_image",
	"trailer_url",
	"trailer_embed_or_youtube",
	"trailer_poster",
	"trailer_embed_raw",
	"content",
	"aspect_ratio",
}

// Row projects the record onto a column-name->value map covering the
// base columns and all extra fields.
func (r *Record) Row() map[string]string {
	row := map[string]string{
		"external_id":              r.ExternalID,
		"title":                    r.Title,
		"url":                      r.AffiliateURLOrCanonical(),
		"date":                     r.Date,
		"maker":                    r.Maker,
		"actress":                  r.Actress,
		"genres":                   r.GenresJoined(),
		"gallery_images":           r.GalleryJoined(),
		"primary_image":            r.PrimaryImage,
		"trailer_url":              r.TrailerURL,
		"trailer_embed_or_youtube": r.TrailerEmbed,
		"trailer_poster":           r.TrailerPoster,
		"trailer_embed_raw":        r.TrailerEmbedRaw,
		"content":                  r.Content,
		"aspect_ratio":             r.AspectRatio,
	}
	for _, k := range r.extraKeys {
		if _, taken := row[k]; !taken {
			row[k] = r.extraValues[k]
		}
	}
	return row
}

// AffiliateURLOrCanonical returns the affiliate-wrapped URL when one was
// derived, falling back to the canonical page URL.
func (r *Record) AffiliateURLOrCanonical() string {
	if r.AffiliateURL != "" {
		return r.AffiliateURL
	}
	return r.URL
}

// FilterSpec holds include/exclude pattern lists per record field. A
// record passes when every field with an include list matches at least
// one pattern and every field with an exclude list matches none.
// Patterns are case-insensitive regular expressions searched (not fully
// matched) against the field's flattened string form.
type FilterSpec struct {
	IncludeMaker     []string `yaml:"include_maker" json:"include_maker"`
	ExcludeMaker     []string `yaml:"exclude_maker" json:"exclude_maker"`
	IncludeActress   []string `yaml:"include_actress" json:"include_actress"`
	ExcludeActress   []string `yaml:"exclude_actress" json:"exclude_actress"`
	IncludeGenre     []string `yaml:"include_genre" json:"include_genre"`
	ExcludeGenre     []string `yaml:"exclude_genre" json:"exclude_genre"`
	IncludeTitle     []string `yaml:"include_title" json:"include_title"`
	ExcludeTitle     []string `yaml:"exclude_title" json:"exclude_title"`
	IncludeCIDPrefix []string `yaml:"include_cid_prefix" json:"include_cid_prefix"`
	ExcludeCIDPrefix []string `yaml:"exclude_cid_prefix" json:"exclude_cid_prefix"`
}

// IsEmpty reports whether the spec constrains nothing.
func (s *FilterSpec) IsEmpty() bool {
	return len(s.IncludeMaker) == 0 && len(s.ExcludeMaker) == 0 &&
		len(s.IncludeActress) == 0 && len(s.ExcludeActress) == 0 &&
		len(s.IncludeGenre) == 0 && len(s.ExcludeGenre) == 0 &&
		len(s.IncludeTitle) == 0 && len(s.ExcludeTitle) == 0 &&
		len(s.IncludeCIDPrefix) == 0 && len(s.ExcludeCIDPrefix) == 0
}

// SplitList splits a multi-valued text field (see ListDelimiter) back
// into its entries. Empty entries are dropped.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ListDelimiter)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanDisplay normalizes a vendor-supplied display string: Unicode NFKC
// normalization, fullwidth/halfwidth folding and whitespace trimming.
// Vendor payloads mix width variants freely; folding keeps filter
// patterns and dedup keys stable.
func CleanDisplay(s string) string {
	return strings.TrimSpace(width.Fold.String(norm.NFKC.String(s)))
}

// CleanGenres normalizes each genre and drops entries matching the noise
// list (decorative campaign tags the vendor injects into genre arrays).
// Order of surviving entries is preserved.
func CleanGenres(genres []string, noise []string) []string {
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = CleanDisplay(g)
		if g == "" {
			continue
		}
		drop := false
		for _, n := range noise {
			if n != "" && strings.Contains(g, n) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, g)
		}
	}
	return out
}
