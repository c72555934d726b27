// internal/provider/normalize.go
package provider

import (
	"sort"
	"strings"

	"github.com/fanzapress/fanzapress/internal/imageurl"
	"github.com/fanzapress/fanzapress/pkg/types"
)

// NormalizerOptions configures raw-item normalization.
type NormalizerOptions struct {
	// MaxGallery caps the gallery image count. Zero means no cap.
	MaxGallery int

	// GenreNoise lists substrings identifying decorative genre tags to
	// drop from display fields.
	GenreNoise []string

	// IframeSize is the embed player size string, e.g. "1280_720".
	IframeSize string

	// Affiliate controls canonical-to-affiliate URL derivation.
	Affiliate AffiliateConfig

	// Trailer controls trailer candidate classification.
	Trailer TrailerOptions
}

// Normalizer maps raw API items onto canonical records. It is a pure
// transform: no network calls, no shared state.
type Normalizer struct {
	images *imageurl.Normalizer
	opts   NormalizerOptions
}

// NewNormalizer creates a Normalizer using the given image URL
// heuristics.
func NewNormalizer(images *imageurl.Normalizer, opts NormalizerOptions) *Normalizer {
	if images == nil {
		images = imageurl.NewNormalizer(imageurl.Config{})
	}
	return &Normalizer{images: images, opts: opts}
}

// galleryKeys are the top-level members searched for sample images, in
// preference order. iteminfo comes last: it holds everything and is
// only worth the full structural walk when the dedicated keys miss.
var galleryKeys = []string{"sampleImageURL", "sampleImageURLS", "sampleImage", "sampleimage", "sample", "iteminfo"}

// Normalize converts one raw item into a canonical record. Missing or
// oddly-shaped fields degrade to empty values; this function never
// fails.
func (n *Normalizer) Normalize(raw RawItem) *types.Record {
	item := V(map[string]interface{}(raw))

	rec := &types.Record{
		ExternalID: item.FirstOf("content_id", "cid").Str(),
		Title:      item.Key("title").Str(),
		Date:       normalizeDate(item.FirstOf("date", "volume_date").Str()),
	}

	canonical := UnwrapAffiliateURL(item.FirstOf("URL", "affiliateURL").Str())
	rec.URL = canonical
	rec.AffiliateURL = n.opts.Affiliate.WrapAffiliateURL(canonical)

	rec.Maker = types.CleanDisplay(n.extractMaker(item))
	rec.Actress = n.extractPeople(item)
	rec.Genres = types.CleanGenres(n.extractGenres(item), n.opts.GenreNoise)

	// Jacket image: prefer the large slot, upgrade, and drop
	// placeholders at construction time.
	rec.PrimaryImage = n.images.Upgrade(item.Key("imageURL").URLString())

	rec.GalleryImages = n.extractGallery(item)

	n.extractTrailer(item, rec)

	_, _, rec.AspectRatio = ParseIframeSize(n.opts.IframeSize)

	for _, extra := range []string{"label", "series"} {
		if name := firstName(item.Key(extra)); name != "" {
			rec.SetExtra(extra, types.CleanDisplay(name))
		}
	}

	return rec
}

// normalizeDate keeps the date prefix of a date-time string.
func normalizeDate(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// firstName handles the maker/label/series shape: either an object with
// a name, or a list of such objects.
func firstName(v Value) string {
	if n := v.Key("name").Str(); n != "" {
		return n
	}
	var first string
	v.Each(func(e Value) {
		if first == "" {
			first = e.Key("name").Str()
		}
	})
	return first
}

func (n *Normalizer) extractMaker(item Value) string {
	if name := firstName(item.Key("maker")); name != "" {
		return name
	}
	return firstName(item.Key("iteminfo").Key("maker"))
}

// extractPeople flattens the performer list, falling back to authors
// for book floors so downstream tag logic applies uniformly.
func (n *Normalizer) extractPeople(item Value) string {
	names := item.Key("iteminfo").Key("actress").Names()
	if len(names) == 0 {
		names = item.Key("actress").Names()
	}
	if len(names) == 0 {
		names = item.Key("author").Names()
	}
	if len(names) == 0 {
		names = item.Key("iteminfo").Key("author").Names()
	}
	for i, name := range names {
		names[i] = types.CleanDisplay(name)
	}
	return strings.Join(names, types.ListDelimiter)
}

func (n *Normalizer) extractGenres(item Value) []string {
	genres := item.Key("iteminfo").Key("genre").Names()
	if len(genres) == 0 {
		genres = item.Key("genre").Names()
	}
	return genres
}

// extractGallery walks the sample-image members collecting anything
// that looks like an image URL, upgrades each to its large variant,
// collapses size duplicates and orders large variants first.
func (n *Normalizer) extractGallery(item Value) []string {
	var urls []string
	seen := make(map[string]bool)

	for _, key := range galleryKeys {
		member := item.Key(key)
		if member.IsNil() {
			continue
		}
		member.Walk(func(s string) {
			u := n.images.Upgrade(strings.TrimSpace(s))
			if u == "" || !imageurl.IsImageURL(u) {
				return
			}
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		})
	}

	// Large variants sort first; within a size class the original order
	// holds.
	sort.SliceStable(urls, func(i, j int) bool {
		return imageurl.IsLargeHint(urls[i]) && !imageurl.IsLargeHint(urls[j])
	})

	urls = imageurl.DedupeByIdentity(urls)
	if n.opts.MaxGallery > 0 && len(urls) > n.opts.MaxGallery {
		urls = urls[:n.opts.MaxGallery]
	}
	return urls
}
