// internal/content/extract.go

package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// FirstImage returns the src of the first <img> in an HTML body, or ""
// when the body has none or does not parse.
func FirstImage(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// Excerpt strips markup from an HTML body and truncates the text at
// maxRunes, appending an ellipsis when truncated.
func Excerpt(body string, maxRunes int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return truncateRunes(text, maxRunes)
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "…"
}

// SEO holds the search-oriented fields attached to a published post.
type SEO struct {
	Title       string
	Description string
	Keywords    string
}

// maxDescriptionRunes bounds SEO descriptions, matching the length
// search engines display.
const maxDescriptionRunes = 120

// BuildSEO derives the SEO fields for a record from its metadata and
// rendered body.
func BuildSEO(rec *types.Record) SEO {
	title := rec.Title
	if rec.ExternalID != "" {
		title = rec.Title + "（" + rec.ExternalID + "）"
	}

	desc := Excerpt(rec.Content, maxDescriptionRunes)
	if desc == "" {
		var parts []string
		parts = append(parts, rec.Title)
		if rec.Actress != "" {
			parts = append(parts, "出演:"+rec.Actress)
		}
		if rec.Maker != "" {
			parts = append(parts, "メーカー:"+rec.Maker)
		}
		desc = truncateRunes(strings.Join(parts, " "), maxDescriptionRunes)
	}

	var keywords []string
	keywords = append(keywords, cidVariants(rec.ExternalID)...)
	keywords = append(keywords, types.SplitList(rec.Actress)...)
	if rec.Maker != "" {
		keywords = append(keywords, rec.Maker)
	}
	keywords = append(keywords, rec.Genres...)

	return SEO{
		Title:       title,
		Description: desc,
		Keywords:    strings.Join(dedupeKeywords(keywords), ","),
	}
}

var cidPattern = regexp.MustCompile(`^([a-z]+)[-_]?(0*)([0-9]+)`)

// cidVariants returns the search spellings of a content ID: as given,
// plus the hyphen and leading-zero permutations of the prefix/number
// form (ABC-00100 also searches as abc-100, abc100, and abc00100).
func cidVariants(cid string) []string {
	cid = strings.ReplaceAll(strings.TrimSpace(cid), " ", "")
	if cid == "" {
		return nil
	}
	lower := strings.ToLower(cid)
	m := cidPattern.FindStringSubmatch(lower)
	if m == nil {
		compact := strings.NewReplacer("-", "", "_", "").Replace(lower)
		return dedupeKeywords([]string{cid, compact})
	}
	pre, zeros, num := m[1], m[2], m[3]
	return dedupeKeywords([]string{
		cid,
		pre + "-" + num,
		pre + num,
		pre + "-" + zeros + num,
		pre + zeros + num,
	})
}

func dedupeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := keywords[:0:0]
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		key := strings.ToLower(k)
		if k == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}
