// internal/pipeline/pipeline.go

// Package pipeline drives one run end to end: fetch pages, normalize
// items, apply the quality gates, build content, and hand finished
// records to the publisher and the export sinks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fanzapress/fanzapress/internal/config"
	"github.com/fanzapress/fanzapress/internal/content"
	"github.com/fanzapress/fanzapress/internal/dedupe"
	"github.com/fanzapress/fanzapress/internal/filter"
	"github.com/fanzapress/fanzapress/internal/imageurl"
	"github.com/fanzapress/fanzapress/internal/mirror"
	"github.com/fanzapress/fanzapress/internal/monitoring"
	"github.com/fanzapress/fanzapress/internal/output"
	"github.com/fanzapress/fanzapress/internal/provider"
	"github.com/fanzapress/fanzapress/internal/utils"
	"github.com/fanzapress/fanzapress/internal/wordpress"
	"github.com/fanzapress/fanzapress/pkg/types"
)

// Fetcher pages through the upstream item list. *provider.Client
// satisfies this.
type Fetcher interface {
	FetchPage(ctx context.Context, q provider.Query, offset, hits int) (*provider.Page, error)
}

// Publisher pushes finished records to the destination site.
// *wordpress.Client satisfies this.
type Publisher interface {
	EnsureTerms(ctx context.Context, taxonomy string, names []string) ([]int, error)
	UpsertPost(ctx context.Context, post wordpress.Post) (int, bool, error)
}

// MediaUploader sideloads a remote image into the destination media
// library. Publishers that also implement it get a featured image even
// when mirroring is off. *wordpress.Client satisfies this.
type MediaUploader interface {
	UploadMediaFromURL(ctx context.Context, sourceURL string) (int, string, error)
}

// Deps are the collaborators for one run, wired by the command layer.
// Mirror, Publisher, Sink, Ledger, Metrics, and Logger are optional.
type Deps struct {
	Config      *config.Config
	Fetcher     Fetcher
	Normalizer  *provider.Normalizer
	Filter      *filter.Engine
	Images      *imageurl.Normalizer
	ProbeClient *http.Client
	Mirror      *mirror.Mirror
	Builder     *content.Builder
	Publisher   Publisher
	Sink        output.Sink
	Ledger      *dedupe.Ledger
	SkipSet     map[string]struct{}
	Limiter     *utils.RateLimiter
	Metrics     *monitoring.Metrics
	Logger      utils.Logger
}

// Summary reports what one run did.
type Summary struct {
	Fetched   int
	Kept      int
	Skipped   map[string]int
	Published int
	Errors    int
	Records   []*types.Record
}

// Pipeline executes runs. One goroutine drives everything; the stages
// run strictly in sequence per record.
type Pipeline struct {
	deps         Deps
	releaseAfter time.Time
}

// New validates and assembles a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil || deps.Fetcher == nil || deps.Normalizer == nil || deps.Builder == nil {
		return nil, fmt.Errorf("pipeline: config, fetcher, normalizer, and builder are required")
	}
	if deps.Logger == nil {
		deps.Logger = utils.NopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.New()
	}
	if deps.SkipSet == nil {
		deps.SkipSet = make(map[string]struct{})
	}
	if deps.Limiter == nil {
		deps.Limiter = utils.NewRateLimiter(deps.Config.PageDelay())
	}
	if deps.Images == nil {
		deps.Images = imageurl.NewNormalizer(deps.Config.Images.Heuristics)
	}

	p := &Pipeline{deps: deps}
	if ra := deps.Config.Fetch.ReleaseAfter; ra != "" {
		t, err := time.Parse("2006-01-02", ra)
		if err != nil {
			return nil, fmt.Errorf("pipeline: release_after: %w", err)
		}
		p.releaseAfter = t
	}
	return p, nil
}

// Run executes one full run. Page fetch errors are fatal; everything
// after normalization is per-record and never aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	d := p.deps
	cfg := d.Config
	summary := &Summary{Skipped: make(map[string]int)}

	offset := 1
	dumpedRaw := false

pages:
	for {
		if err := d.Limiter.Wait(ctx); err != nil {
			return summary, err
		}
		page, err := d.Fetcher.FetchPage(ctx, cfg.Source.Query, offset, cfg.Source.Hits)
		if err != nil {
			return summary, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if len(page.Items) == 0 {
			break
		}
		d.Logger.Infof("page offset=%d items=%d total=%d", offset, len(page.Items), page.TotalCount)

		if !dumpedRaw && cfg.Output.DebugRawDump != "" {
			dumpedRaw = true
			if err := dumpRawItem(cfg.Output.DebugRawDump, page.Items[0]); err != nil {
				d.Logger.Warnf("raw item dump failed: %v", err)
			}
		}

		for _, raw := range page.Items {
			summary.Fetched++
			d.Metrics.ItemFetched()

			rec := d.Normalizer.Normalize(raw)
			if reason := p.process(ctx, rec, summary); reason != "" {
				summary.Skipped[reason]++
				d.Metrics.ItemSkipped(reason)
				d.Logger.WithField("cid", rec.ExternalID).Debugf("skipped: %s", reason)
			}

			if cfg.Fetch.MaxItems > 0 && summary.Fetched >= cfg.Fetch.MaxItems {
				d.Logger.Infof("max items reached (%d)", cfg.Fetch.MaxItems)
				break pages
			}
			if cfg.Fetch.NewItemsTarget > 0 && summary.Kept >= cfg.Fetch.NewItemsTarget {
				d.Logger.Infof("new items target reached (%d)", cfg.Fetch.NewItemsTarget)
				break pages
			}
		}

		offset += len(page.Items)
		if page.TotalCount > 0 && offset > page.TotalCount {
			break
		}
	}

	if d.Sink != nil && len(summary.Records) > 0 {
		if err := d.Sink.WriteAll(summary.Records); err != nil {
			return summary, fmt.Errorf("write export: %w", err)
		}
	}

	d.Logger.Infof("run finished: fetched=%d kept=%d published=%d errors=%d",
		summary.Fetched, summary.Kept, summary.Published, summary.Errors)
	return summary, nil
}

// process takes a normalized record through every gate and stage. It
// returns the skip reason, or "" when the record was kept.
func (p *Pipeline) process(ctx context.Context, rec *types.Record, summary *Summary) string {
	d := p.deps
	cfg := d.Config

	if rec.ExternalID == "" {
		return "no_id"
	}
	if _, dup := d.SkipSet[rec.ExternalID]; dup {
		return "duplicate"
	}
	if !p.releaseAfter.IsZero() && releasedBefore(rec.Date, p.releaseAfter) {
		return "released_before_cutoff"
	}
	if d.Filter != nil && !d.Filter.Passes(rec) {
		d.Logger.WithField("cid", rec.ExternalID).Debugf("filter: %s", d.Filter.Reason(rec))
		return "filtered"
	}
	p.applyImageGates(ctx, rec)
	if cfg.Images.SkipPlaceholder && (rec.PrimaryImage == "" || d.Images.IsPlaceholder(rec.PrimaryImage)) {
		return "placeholder_jacket"
	}
	if cfg.Images.MinSamples > 0 && len(rec.GalleryImages) < cfg.Images.MinSamples {
		return "too_few_samples"
	}

	if d.Mirror != nil {
		uploads := d.Mirror.MirrorRecord(ctx, rec)
		for i := 0; i < uploads; i++ {
			d.Metrics.ImageMirrored()
		}
	}

	body, err := d.Builder.Build(rec)
	if err != nil {
		// A broken template or hook must not lose the record.
		d.Logger.WithField("cid", rec.ExternalID).Warnf("render failed, using fallback: %v", err)
		d.Metrics.Error("content")
		summary.Errors++
		body = content.FallbackBody(rec)
	}
	rec.Content = body

	ledgerExtra := map[string]string{}
	if d.Publisher != nil {
		postID, err := p.publish(ctx, rec)
		if err != nil {
			d.Logger.WithField("cid", rec.ExternalID).Errorf("publish failed: %v", err)
			d.Metrics.Error("publish")
			summary.Errors++
		} else {
			summary.Published++
			d.Metrics.PostPublished()
			ledgerExtra["post_id"] = fmt.Sprint(postID)
		}
	}

	if d.Ledger != nil {
		if err := d.Ledger.Append(rec, ledgerExtra); err != nil {
			d.Logger.Warnf("ledger append failed: %v", err)
			d.Metrics.Error("ledger")
			summary.Errors++
		}
	}

	d.SkipSet[rec.ExternalID] = struct{}{}
	summary.Kept++
	summary.Records = append(summary.Records, rec)
	d.Metrics.ItemKept()
	return ""
}

// applyImageGates verifies the jacket and promotes the best gallery
// candidate when the jacket is missing or a placeholder.
func (p *Pipeline) applyImageGates(ctx context.Context, rec *types.Record) {
	d := p.deps
	needPromotion := rec.PrimaryImage == ""
	if !needPromotion && d.Config.Images.Verify {
		needPromotion = d.Images.ProbeIsPlaceholder(ctx, rec.PrimaryImage, imageurl.ProbeOptions{
			UseNetwork: d.ProbeClient != nil,
			Client:     d.ProbeClient,
		})
	}
	if !needPromotion {
		return
	}
	if best := imageurl.PickBest(rec.GalleryImages); best != "" {
		d.Logger.WithField("cid", rec.ExternalID).Debug("promoted gallery image to jacket")
		rec.PrimaryImage = best
		if rec.TrailerPoster == "" {
			rec.TrailerPoster = best
		}
	}
}

// publish upserts the post with its taxonomy terms and SEO meta.
func (p *Pipeline) publish(ctx context.Context, rec *types.Record) (int, error) {
	d := p.deps
	wp := d.Config.WordPress

	var categories, tags []int
	if names := taxonomyValues(rec, wp.CategorySource); len(names) > 0 {
		ids, err := d.Publisher.EnsureTerms(ctx, "category", names)
		if err != nil {
			return 0, err
		}
		categories = ids
	}
	var tagNames []string
	for _, source := range wp.TagSources {
		tagNames = append(tagNames, taxonomyValues(rec, source)...)
	}
	if len(tagNames) > 0 {
		ids, err := d.Publisher.EnsureTerms(ctx, "post_tag", tagNames)
		if err != nil {
			return 0, err
		}
		tags = ids
	}

	if rec.PrimaryImageID == 0 {
		p.sideloadFeaturedMedia(ctx, rec)
	}

	seo := content.BuildSEO(rec)
	post := wordpress.Post{
		ExternalID:    rec.ExternalID,
		Title:         rec.Title,
		Content:       rec.Content,
		Excerpt:       content.Excerpt(rec.Content, 160),
		Status:        wp.Status,
		Categories:    categories,
		Tags:          tags,
		FeaturedMedia: rec.PrimaryImageID,
		Meta: map[string]interface{}{
			"seo_title":       seo.Title,
			"seo_description": seo.Description,
			"seo_keywords":    seo.Keywords,
		},
	}
	if wp.Status == "future" {
		post.Date = wp.ScheduleDate
	}

	id, created, err := d.Publisher.UpsertPost(ctx, post)
	if err != nil {
		return 0, err
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	d.Logger.WithField("cid", rec.ExternalID).Infof("%s post %d", verb, id)
	return id, nil
}

// sideloadFeaturedMedia uploads a featured-image candidate when
// mirroring left no attachment behind. The first image of the built
// body wins over the jacket so the thumbnail matches the lead the
// reader sees.
func (p *Pipeline) sideloadFeaturedMedia(ctx context.Context, rec *types.Record) {
	up, ok := p.deps.Publisher.(MediaUploader)
	if !ok {
		return
	}
	src := content.FirstImage(rec.Content)
	if src == "" {
		src = rec.PrimaryImage
	}
	if src == "" {
		return
	}
	id, _, err := up.UploadMediaFromURL(ctx, src)
	if err != nil {
		p.deps.Logger.WithField("cid", rec.ExternalID).Warnf("featured media upload failed: %v", err)
		p.deps.Metrics.Error("media")
		return
	}
	rec.PrimaryImageID = id
}

// taxonomyValues maps a configured term source to record field values.
func taxonomyValues(rec *types.Record, source string) []string {
	switch strings.ToLower(source) {
	case "maker":
		if rec.Maker != "" {
			return []string{rec.Maker}
		}
	case "genre":
		return rec.Genres
	case "actress":
		return types.SplitList(rec.Actress)
	}
	return nil
}

// releasedBefore reports whether a record date (leading 2006-01-02)
// falls strictly before the cutoff. Unparseable dates pass the gate.
func releasedBefore(date string, cutoff time.Time) bool {
	if len(date) < 10 {
		return false
	}
	t, err := time.Parse("2006-01-02", date[:10])
	if err != nil {
		return false
	}
	return t.Before(cutoff)
}

func dumpRawItem(path string, item provider.RawItem) error {
	raw, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
