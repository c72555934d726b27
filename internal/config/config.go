// internal/config/config.go

// Package config loads and validates the YAML run configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fanzapress/fanzapress/internal/imageurl"
	"github.com/fanzapress/fanzapress/internal/provider"
	"github.com/fanzapress/fanzapress/pkg/types"
)

// Config is the full run configuration.
type Config struct {
	Source    SourceConfig            `yaml:"source" json:"source"`
	Fetch     FetchConfig             `yaml:"fetch" json:"fetch"`
	Normalize NormalizeConfig         `yaml:"normalize" json:"normalize"`
	Filters   types.FilterSpec        `yaml:"filters" json:"filters"`
	Images    ImagesConfig            `yaml:"images" json:"images"`
	Trailer   provider.TrailerOptions `yaml:"trailer" json:"trailer"`
	Content   ContentConfig           `yaml:"content" json:"content"`
	WordPress WordPressConfig         `yaml:"wordpress" json:"wordpress"`
	Output    OutputConfig            `yaml:"output" json:"output"`
	Metrics   MetricsConfig           `yaml:"metrics" json:"metrics"`
	Preview   PreviewConfig           `yaml:"preview" json:"preview"`
	Logging   LoggingConfig           `yaml:"logging" json:"logging"`
}

// SourceConfig identifies the upstream API and the query for this run.
type SourceConfig struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	APIID          string `yaml:"api_id" json:"api_id"`
	AffiliateID    string `yaml:"affiliate_id" json:"affiliate_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`

	// Hits is the page size requested from the API.
	Hits int `yaml:"hits" json:"hits"`

	Query     provider.Query           `yaml:"query" json:"query"`
	Affiliate provider.AffiliateConfig `yaml:"affiliate" json:"affiliate"`
}

// FetchConfig bounds the crawl.
type FetchConfig struct {
	// MaxItems stops the run after this many items have been fetched.
	// Zero means no bound.
	MaxItems int `yaml:"max_items" json:"max_items"`

	// NewItemsTarget stops the run once this many new records survived
	// all gates. Zero means no target.
	NewItemsTarget int `yaml:"new_items_target" json:"new_items_target"`

	// PageDelayMS paces page fetches.
	PageDelayMS int `yaml:"page_delay_ms" json:"page_delay_ms"`

	// ReleaseAfter drops items released strictly before this date,
	// format 2006-01-02. Empty disables the cutoff.
	ReleaseAfter string `yaml:"release_after" json:"release_after"`

	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// NormalizeConfig tunes raw-item normalization.
type NormalizeConfig struct {
	MaxGallery int      `yaml:"max_gallery" json:"max_gallery"`
	GenreNoise []string `yaml:"genre_noise" json:"genre_noise"`
	IframeSize string   `yaml:"iframe_size" json:"iframe_size"`
}

// ImagesConfig holds the image quality gates.
type ImagesConfig struct {
	Heuristics imageurl.Config `yaml:"heuristics" json:"heuristics"`

	// Verify probes the primary image over the network and promotes
	// the best gallery candidate when the jacket is a placeholder.
	Verify bool `yaml:"verify" json:"verify"`

	// SkipPlaceholder drops records whose primary image is (still) a
	// placeholder after promotion.
	SkipPlaceholder bool `yaml:"skip_placeholder" json:"skip_placeholder"`

	// MinSamples drops records with fewer gallery images. Zero
	// disables the gate.
	MinSamples int `yaml:"min_samples" json:"min_samples"`
}

// ContentConfig selects the body templates and hooks.
type ContentConfig struct {
	TemplatePath       string   `yaml:"template" json:"template"`
	MarkupTemplatePath string   `yaml:"markup_template" json:"markup_template"`
	PageTemplatePath   string   `yaml:"page_template" json:"page_template"`
	Prepend            string   `yaml:"prepend" json:"prepend"`
	Append             string   `yaml:"append" json:"append"`

	// Hooks names entries of the built-in hook registry, applied in
	// order after rendering.
	Hooks []string `yaml:"hooks" json:"hooks"`
}

// WordPressConfig is the publishing target. With Enabled false the run
// exports to the output file only.
type WordPressConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Username    string `yaml:"username" json:"username"`
	AppPassword string `yaml:"app_password" json:"app_password"`

	// Status is publish, draft, or future. future requires
	// ScheduleDate.
	Status       string `yaml:"status" json:"status"`
	ScheduleDate string `yaml:"schedule_date" json:"schedule_date"`

	// CategorySource and TagSources pick which record fields become
	// categories and tags: maker, genre, actress, or none.
	CategorySource string   `yaml:"category_source" json:"category_source"`
	TagSources     []string `yaml:"tag_sources" json:"tag_sources"`

	// MirrorImages re-hosts record images on the site before
	// publishing.
	MirrorImages   bool   `yaml:"mirror_images" json:"mirror_images"`
	MirrorCacheDir string `yaml:"mirror_cache_dir" json:"mirror_cache_dir"`
}

// OutputConfig names the export file and the dedup inputs.
type OutputConfig struct {
	// Path is the export destination; .csv and .xlsx are supported.
	Path string `yaml:"path" json:"path"`

	// Ledger is the append-only record of everything ever exported.
	Ledger string `yaml:"ledger" json:"ledger"`

	// DedupeSources and DedupeDirs feed the skip set: files, globs, or
	// comma-joined lists, and directories scanned for *.csv.
	DedupeSources []string `yaml:"dedupe_sources" json:"dedupe_sources"`
	DedupeDirs    []string `yaml:"dedupe_dirs" json:"dedupe_dirs"`

	// DebugRawDump, when set, writes the first raw API item of the run
	// to this JSON file.
	DebugRawDump string `yaml:"debug_raw_dump" json:"debug_raw_dump"`
}

type MetricsConfig struct {
	// Textfile is the Prometheus textfile-collector path written at
	// run end. Empty disables metrics output.
	Textfile string `yaml:"textfile" json:"textfile"`
}

type PreviewConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

var envVarRe = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string, which Validate then reports
// for required fields.
func expandEnv(src []byte) []byte {
	return envVarRe.ReplaceAllFunc(src, func(m []byte) []byte {
		name := envVarRe.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Endpoint == "" {
		c.Source.Endpoint = provider.DefaultEndpoint
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = 30
	}
	if c.Source.Hits <= 0 {
		c.Source.Hits = 20
	}
	if c.Source.Query.Site == "" {
		c.Source.Query.Site = "FANZA"
	}
	if c.Fetch.PageDelayMS <= 0 {
		c.Fetch.PageDelayMS = 1000
	}
	if c.Normalize.MaxGallery <= 0 {
		c.Normalize.MaxGallery = 10
	}
	if c.Normalize.IframeSize == "" {
		c.Normalize.IframeSize = "1280_720"
	}
	if c.Trailer.EmbedTemplate == "" && len(c.Trailer.EmbedMarkers) == 0 {
		c.Trailer = provider.DefaultTrailerOptions()
	}
	if c.WordPress.Status == "" {
		c.WordPress.Status = "draft"
	}
	if c.WordPress.CategorySource == "" {
		c.WordPress.CategorySource = "maker"
	}
	if len(c.WordPress.TagSources) == 0 {
		c.WordPress.TagSources = []string{"genre", "actress"}
	}
	if c.WordPress.MirrorCacheDir == "" {
		c.WordPress.MirrorCacheDir = "cache"
	}
	if c.Output.Ledger == "" {
		c.Output.Ledger = "output/exported.csv"
	}
	if c.Preview.Addr == "" {
		c.Preview.Addr = "127.0.0.1:8480"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

var validStatuses = map[string]bool{"publish": true, "draft": true, "future": true}

// Validate reports every problem at once, so a misconfigured run fails
// with the complete list instead of one credential per attempt.
func (c *Config) Validate() error {
	var problems []string

	if c.Source.APIID == "" {
		problems = append(problems, "source.api_id is required")
	}
	if c.Source.AffiliateID == "" {
		problems = append(problems, "source.affiliate_id is required")
	}
	if c.WordPress.Enabled {
		if c.WordPress.BaseURL == "" {
			problems = append(problems, "wordpress.base_url is required when wordpress.enabled")
		}
		if c.WordPress.Username == "" {
			problems = append(problems, "wordpress.username is required when wordpress.enabled")
		}
		if c.WordPress.AppPassword == "" {
			problems = append(problems, "wordpress.app_password is required when wordpress.enabled")
		}
	} else if c.Output.Path == "" {
		problems = append(problems, "output.path is required when wordpress is disabled")
	}
	if !validStatuses[c.WordPress.Status] {
		problems = append(problems, fmt.Sprintf("wordpress.status %q is not publish, draft, or future", c.WordPress.Status))
	}
	if c.WordPress.Status == "future" && c.WordPress.ScheduleDate == "" {
		problems = append(problems, "wordpress.schedule_date is required for future status")
	}
	if c.Fetch.ReleaseAfter != "" {
		if _, err := time.Parse("2006-01-02", c.Fetch.ReleaseAfter); err != nil {
			problems = append(problems, fmt.Sprintf("fetch.release_after %q is not a 2006-01-02 date", c.Fetch.ReleaseAfter))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SourceClientConfig builds the API client settings.
func (c *Config) SourceClientConfig() provider.ClientConfig {
	return provider.ClientConfig{
		Endpoint:    c.Source.Endpoint,
		APIID:       c.Source.APIID,
		AffiliateID: c.Source.AffiliateID,
		Timeout:     time.Duration(c.Source.TimeoutSeconds) * time.Second,
	}
}

// PageDelay returns the inter-page delay as a duration.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.Fetch.PageDelayMS) * time.Millisecond
}

// NormalizerOptions builds the normalization settings.
func (c *Config) NormalizerOptions() provider.NormalizerOptions {
	return provider.NormalizerOptions{
		MaxGallery: c.Normalize.MaxGallery,
		GenreNoise: c.Normalize.GenreNoise,
		IframeSize: c.Normalize.IframeSize,
		Affiliate:  c.Source.Affiliate,
		Trailer:    c.Trailer,
	}
}
