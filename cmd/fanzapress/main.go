// cmd/fanzapress/main.go

// fanzapress fetches items from the FANZA affiliate API, normalizes
// and filters them, builds post bodies, and publishes to WordPress or
// exports to CSV/Excel.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/fanzapress/fanzapress/internal/config"
	"github.com/fanzapress/fanzapress/internal/content"
	"github.com/fanzapress/fanzapress/internal/dedupe"
	"github.com/fanzapress/fanzapress/internal/filter"
	"github.com/fanzapress/fanzapress/internal/imageurl"
	"github.com/fanzapress/fanzapress/internal/mirror"
	"github.com/fanzapress/fanzapress/internal/monitoring"
	"github.com/fanzapress/fanzapress/internal/output"
	"github.com/fanzapress/fanzapress/internal/pipeline"
	"github.com/fanzapress/fanzapress/internal/preview"
	"github.com/fanzapress/fanzapress/internal/provider"
	"github.com/fanzapress/fanzapress/internal/utils"
	"github.com/fanzapress/fanzapress/internal/wordpress"
)

type options struct {
	Config  string `short:"c" long:"config" description:"Path to the YAML configuration file" default:"config.yaml"`
	EnvFile string `long:"env-file" description:"Explicit .env file; by default ./.env is loaded when present"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

var opts options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("run", "Fetch, build, and publish/export",
		"Runs the full pipeline against the configured source and destinations.", &runCmd{})
	parser.AddCommand("validate", "Check the configuration",
		"Loads the configuration and reports every problem found.", &validateCmd{})
	parser.AddCommand("preview", "Serve a local preview of a run",
		"Runs the pipeline without publishing and serves the generated bodies over HTTP.", &previewCmd{})

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}
}

// setup loads the environment and configuration shared by all
// commands.
func setup() (*config.Config, utils.Logger, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, nil, fmt.Errorf("load env file: %w", err)
		}
	} else {
		// Credentials usually live in a local .env; absence is fine.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, err
	}

	level := utils.InfoLevel
	if opts.Verbose || cfg.Logging.Level == "debug" {
		level = utils.DebugLevel
	}
	return cfg, utils.NewLoggerWithLevel(level), nil
}

// buildDeps wires the pipeline collaborators from the configuration.
// With publish false the WordPress side (publisher and mirror) is left
// out regardless of configuration.
func buildDeps(cfg *config.Config, logger utils.Logger, publish bool) (pipeline.Deps, error) {
	var deps pipeline.Deps

	images := imageurl.NewNormalizer(cfg.Images.Heuristics)

	hooks, err := content.ResolveHooks(cfg.Content.Hooks)
	if err != nil {
		return deps, err
	}
	builder, err := content.NewBuilder(content.Options{
		TemplatePath:       cfg.Content.TemplatePath,
		MarkupTemplatePath: cfg.Content.MarkupTemplatePath,
		PageTemplatePath:   cfg.Content.PageTemplatePath,
		Prepend:            cfg.Content.Prepend,
		Append:             cfg.Content.Append,
		Hooks:              hooks,
	})
	if err != nil {
		return deps, err
	}

	deps = pipeline.Deps{
		Config:     cfg,
		Fetcher:    provider.NewClient(cfg.SourceClientConfig()),
		Normalizer: provider.NewNormalizer(images, cfg.NormalizerOptions()),
		Images:     images,
		Builder:    builder,
		Limiter:    utils.NewRateLimiter(cfg.PageDelay()),
		Metrics:    monitoring.New(),
		Logger:     logger,
	}

	if !cfg.Filters.IsEmpty() {
		engine, err := filter.NewEngine(cfg.Filters)
		if err != nil {
			return deps, err
		}
		deps.Filter = engine
	}

	deps.SkipSet = dedupe.BuildSkipSet(dedupe.ScanConfig{
		Sources: cfg.Output.DedupeSources,
		Dirs:    cfg.Output.DedupeDirs,
	})
	logger.Infof("skip set loaded: %d known ids", len(deps.SkipSet))

	if cfg.Images.Verify {
		deps.ProbeClient = &http.Client{Timeout: 15 * time.Second}
	}

	if publish {
		timestampField := "exported_at"
		if cfg.WordPress.Enabled {
			timestampField = "posted_at"
		}
		deps.Ledger = dedupe.NewLedger(cfg.Output.Ledger, timestampField)
		if cfg.Output.Path != "" {
			sink, err := output.ForPath(cfg.Output.Path)
			if err != nil {
				return deps, err
			}
			deps.Sink = sink
		}
		if cfg.WordPress.Enabled {
			wp, err := wordpress.NewClient(wordpress.Config{
				BaseURL:     cfg.WordPress.BaseURL,
				Username:    cfg.WordPress.Username,
				AppPassword: cfg.WordPress.AppPassword,
				UserAgent:   cfg.Fetch.UserAgent,
			}, logger)
			if err != nil {
				return deps, err
			}
			deps.Publisher = wp
			if cfg.WordPress.MirrorImages {
				deps.Mirror = mirror.New(mirror.Config{
					CacheDir:  cfg.WordPress.MirrorCacheDir,
					UserAgent: cfg.Fetch.UserAgent,
				}, wp, logger)
			}
		}
	}

	return deps, nil
}

func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type runCmd struct {
	DryRun bool `long:"dry-run" description:"Skip publishing, export, and ledger writes"`
}

func (c *runCmd) Execute(_ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	deps, err := buildDeps(cfg, logger, !c.DryRun)
	if err != nil {
		return err
	}
	p, err := pipeline.New(deps)
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	summary, runErr := p.Run(ctx)
	if err := deps.Metrics.Flush(cfg.Metrics.Textfile, time.Now().Unix()); err != nil {
		logger.Warnf("metrics flush failed: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("fetched=%d kept=%d published=%d errors=%d skipped=%v\n",
		summary.Fetched, summary.Kept, summary.Published, summary.Errors, summary.Skipped)
	return nil
}

type validateCmd struct{}

func (c *validateCmd) Execute(_ []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	fmt.Printf("configuration ok: source=%s site=%s service=%s floor=%s\n",
		cfg.Source.Endpoint, cfg.Source.Query.Site, cfg.Source.Query.Service, cfg.Source.Query.Floor)
	return nil
}

type previewCmd struct{}

func (c *previewCmd) Execute(_ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	deps, err := buildDeps(cfg, logger, false)
	if err != nil {
		return err
	}
	p, err := pipeline.New(deps)
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if len(summary.Records) == 0 {
		return fmt.Errorf("nothing to preview: no records survived the run")
	}

	srv := preview.NewServer(summary.Records, deps.Builder, logger)
	return srv.ListenAndServe(cfg.Preview.Addr)
}
