// internal/provider/trailer_test.go
package provider

import (
	"strings"
	"testing"
)

func TestExtractTrailer_ExplicitKeysPreferLargestSize(t *testing.T) {
	n := newTestNormalizer(NormalizerOptions{Trailer: DefaultTrailerOptions()})
	rec := n.Normalize(rawItem(t, `{
		"content_id": "SSIS-123",
		"imageURL": {"large": "https://x/ssis123pl.jpg"},
		"sampleMovieURL": {
			"size_476_306": "https://www.dmm.co.jp/litevideo/-/part/=/cid=ssis123/size=476_306/",
			"size_720_480": "https://www.dmm.co.jp/litevideo/-/part/=/cid=ssis123/size=720_480/"
		}
	}`))

	if !strings.Contains(rec.TrailerURL, "size=720_480") {
		t.Errorf("TrailerURL = %q, want the largest size variant", rec.TrailerURL)
	}
	if !strings.Contains(rec.TrailerEmbed, "cid=SSIS-123") || !strings.Contains(rec.TrailerEmbed, "720_480") {
		t.Errorf("TrailerEmbed = %q", rec.TrailerEmbed)
	}
	if rec.TrailerEmbedRaw != rec.TrailerURL {
		t.Errorf("TrailerEmbedRaw = %q, want the raw discovered candidate", rec.TrailerEmbedRaw)
	}
	if rec.TrailerPoster != "https://x/ssis123pl.jpg" {
		t.Errorf("TrailerPoster = %q, want jacket fallback", rec.TrailerPoster)
	}
}

func TestExtractTrailer_DirectLinksSuppressed(t *testing.T) {
	n := newTestNormalizer(NormalizerOptions{Trailer: DefaultTrailerOptions()})
	rec := n.Normalize(rawItem(t, `{
		"content_id": "X-3",
		"sampleMovieURL": {
			"mp4": "https://cc3001.dmm.co.jp/litevideo/freepv/x/x3/x3_mhb_w.mp4",
			"hls": "https://cc3001.dmm.co.jp/hlsvideo/freepv/x/x3/playlist.m3u8"
		}
	}`))

	for name, v := range map[string]string{
		"TrailerURL":      rec.TrailerURL,
		"TrailerEmbed":    rec.TrailerEmbed,
		"TrailerEmbedRaw": rec.TrailerEmbedRaw,
	} {
		if strings.Contains(v, ".mp4") || strings.Contains(v, ".m3u8") {
			t.Errorf("%s = %q, direct video links must never surface", name, v)
		}
	}
}

func TestExtractTrailer_YouTubeEmbedForm(t *testing.T) {
	n := newTestNormalizer(NormalizerOptions{Trailer: DefaultTrailerOptions()})
	rec := n.Normalize(rawItem(t, `{
		"content_id": "X-4",
		"sampleMovieURL": {"pv": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}
	}`))

	if rec.TrailerEmbed != "https://www.youtube.com/embed/dQw4w9WgXcQ" {
		t.Errorf("TrailerEmbed = %q, want youtube embed form", rec.TrailerEmbed)
	}
}

func TestExtractTrailer_StructuralFallbackScoresMarkers(t *testing.T) {
	n := newTestNormalizer(NormalizerOptions{Trailer: DefaultTrailerOptions()})
	rec := n.Normalize(rawItem(t, `{
		"content_id": "X-5",
		"misc": {
			"nested": {"promo": "https://www.dmm.co.jp/litevideo/-/part/=/cid=x5/size=476_306/"},
			"other": "https://example.com/somepage"
		}
	}`))

	if !strings.Contains(rec.TrailerURL, "litevideo") {
		t.Errorf("TrailerURL = %q, want the marker-scored candidate", rec.TrailerURL)
	}
}

func TestExtractTrailer_NoCandidates(t *testing.T) {
	n := newTestNormalizer(NormalizerOptions{Trailer: DefaultTrailerOptions()})
	rec := n.Normalize(rawItem(t, `{"content_id": "X-6", "title": "nothing here"}`))

	if rec.TrailerURL != "" || rec.TrailerEmbed != "" || rec.TrailerPoster != "" {
		t.Errorf("expected empty trailer fields, got %+v", rec)
	}
}
