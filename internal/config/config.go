// Package config loads every tunable a crawl run needs from Viper: files,
// environment variables, and CLI flags layered in that order of
// increasing precedence, following the same Viper-defaults-then-override
// pattern used for the rest of this module's sub-configs.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/adaptivecrawl/webcrawler/internal/browser"
	"github.com/adaptivecrawl/webcrawler/internal/checkpoint"
	"github.com/adaptivecrawl/webcrawler/internal/contentfilter"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/pool"
	"github.com/adaptivecrawl/webcrawler/internal/ratecontroller"
	"github.com/adaptivecrawl/webcrawler/internal/sink"
)

// Config is the fully resolved configuration for one crawl run.
type Config struct {
	Run        crawler.RunConfig
	Browser    browser.Config
	Controller ratecontroller.Config
	Pool       pool.Config
	Filter     contentfilter.Config

	SinkKind string // "fs", "postgres", "gcs", "pubsub", "memory"
	FS       sink.FSConfig
	Postgres sink.PostgresConfig
	GCS      sink.GCSConfig
	PubSub   PubSubConfig

	Development bool
}

// PubSubConfig names the topic a pubsub sink publishes to.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// SetDefaults registers every default value read by Load, so a run with
// no config file and no flags still behaves sensibly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("run.allow_subdomains", false)
	v.SetDefault("run.max_depth", 3)
	v.SetDefault("run.max_pages", 0)
	v.SetDefault("run.strip_query_params", []string{})
	v.SetDefault("run.output_dir", "data/crawl")

	v.SetDefault("pool.min_workers", 1)
	v.SetDefault("pool.max_workers", 8)
	v.SetDefault("pool.initial_workers", 2)
	v.SetDefault("pool.base_delay", "1s")
	v.SetDefault("pool.min_delay", "200ms")
	v.SetDefault("pool.max_delay", "30s")
	v.SetDefault("pool.evaluate_every", 5)

	v.SetDefault("controller.aggressive", false)
	v.SetDefault("controller.disabled", false)

	v.SetDefault("run.max_restarts", 3)
	v.SetDefault("run.resume", false)
	v.SetDefault("run.markdown_mode", false)
	v.SetDefault("run.blocklist_hosts", []string{})

	v.SetDefault("browser.user_agent", "adaptivecrawl/1.0 (+https://github.com/adaptivecrawl/webcrawler)")
	v.SetDefault("browser.navigate_timeout", "15s")
	v.SetDefault("browser.max_concurrent", 8)
	v.SetDefault("browser.per_domain_qps", 0.5)
	v.SetDefault("browser.headless", true)

	v.SetDefault("spa.enabled", false)
	v.SetDefault("spa.max_clicks_per_page", 10)

	v.SetDefault("filter.max_bytes", 5*1024*1024)

	v.SetDefault("checkpoint.path", "data/checkpoint.json")
	v.SetDefault("checkpoint.interval", "30s")

	v.SetDefault("sink.kind", "fs")
	v.SetDefault("sink.fs.dir", "data/crawl")
	v.SetDefault("sink.postgres.table", "page_results")
	v.SetDefault("sink.gcs.prefix", "crawl")

	v.SetDefault("logging.development", false)

	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads a resolved Config from v, which the caller has already
// populated from a config file and/or bound CLI flags.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Run: crawler.RunConfig{
			RunID:             v.GetString("run.id"),
			Seeds:             v.GetStringSlice("run.seeds"),
			AllowSubdomains:   v.GetBool("run.allow_subdomains"),
			AllowedHosts:      v.GetStringSlice("run.allowed_hosts"),
			MaxDepth:          v.GetInt("run.max_depth"),
			MaxPages:          v.GetInt("run.max_pages"),
			StripQueryParams:  v.GetStringSlice("run.strip_query_params"),
			AllowedExtensions: v.GetStringSlice("run.allowed_extensions"),
			PathPrefix:        v.GetString("run.path_prefix"),
			Blocklist:         v.GetStringSlice("run.blocklist_hosts"),

			MinWorkers:     v.GetInt("pool.min_workers"),
			MaxWorkers:     v.GetInt("pool.max_workers"),
			InitialWorkers: v.GetInt("pool.initial_workers"),
			BaseDelay:      v.GetDuration("pool.base_delay"),
			MinDelay:       v.GetDuration("pool.min_delay"),
			MaxDelay:       v.GetDuration("pool.max_delay"),

			EnableSPA:           v.GetBool("spa.enabled"),
			SPAMaxClicksPerPage: v.GetInt("spa.max_clicks_per_page"),
			PageLoadTimeout:     v.GetDuration("browser.navigate_timeout"),

			Keywords:     v.GetStringSlice("run.keywords"),
			MarkdownMode: v.GetBool("run.markdown_mode"),

			CheckpointPath:     v.GetString("checkpoint.path"),
			CheckpointInterval: v.GetDuration("checkpoint.interval"),
			Resume:             v.GetBool("run.resume"),

			MaxRestarts: v.GetInt("run.max_restarts"),

			OutputDir: v.GetString("run.output_dir"),
		},
		Browser: browser.Config{
			UserAgent:       v.GetString("browser.user_agent"),
			NavigateTimeout: v.GetDuration("browser.navigate_timeout"),
			MaxConcurrent:   v.GetInt("browser.max_concurrent"),
			PerDomainQPS:    v.GetFloat64("browser.per_domain_qps"),
			Headless:        v.GetBool("browser.headless"),
		},
		Controller: ratecontroller.Config{
			MinWorkers:     v.GetInt("pool.min_workers"),
			MaxWorkers:     v.GetInt("pool.max_workers"),
			InitialWorkers: v.GetInt("pool.initial_workers"),
			MinDelay:       v.GetDuration("pool.min_delay"),
			MaxDelay:       v.GetDuration("pool.max_delay"),
			BaseDelay:      v.GetDuration("pool.base_delay"),
			EvaluateEvery:  v.GetInt("pool.evaluate_every"),
			Aggressive:     v.GetBool("controller.aggressive"),
			Disabled:       v.GetBool("controller.disabled"),
		},
		Pool: pool.Config{
			ReconcileInterval: v.GetDuration("pool.reconcile_interval"),
			HeartbeatTimeout:  v.GetDuration("pool.heartbeat_timeout"),
			ShutdownGrace:     v.GetDuration("pool.shutdown_grace"),
			IdleDrainAfter:    v.GetDuration("pool.idle_drain_after"),
		},
		Filter: contentfilter.Config{
			MaxBytes: v.GetInt64("filter.max_bytes"),
		},
		SinkKind: v.GetString("sink.kind"),
		FS:       sink.FSConfig{Dir: v.GetString("sink.fs.dir")},
		Postgres: sink.PostgresConfig{
			DSN:   v.GetString("sink.postgres.dsn"),
			Table: v.GetString("sink.postgres.table"),
		},
		GCS: sink.GCSConfig{
			Bucket: v.GetString("sink.gcs.bucket"),
			Prefix: v.GetString("sink.gcs.prefix"),
		},
		PubSub: PubSubConfig{
			ProjectID: v.GetString("sink.pubsub.project_id"),
			Topic:     v.GetString("sink.pubsub.topic"),
		},
		Development: v.GetBool("logging.development"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for configuration combinations that would otherwise
// fail much later, deep into a run.
func (c Config) Validate() error {
	if len(c.Run.Seeds) == 0 {
		return fmt.Errorf("run.seeds must include at least one seed URL")
	}
	if c.Run.MinWorkers <= 0 || c.Run.MaxWorkers < c.Run.MinWorkers {
		return fmt.Errorf("pool.min_workers/max_workers must satisfy 0 < min <= max")
	}
	if c.Run.InitialWorkers < c.Run.MinWorkers || c.Run.InitialWorkers > c.Run.MaxWorkers {
		return fmt.Errorf("pool.initial_workers must be within [min_workers, max_workers]")
	}
	if c.Run.MarkdownMode && len(c.Run.Keywords) > 0 {
		return fmt.Errorf("run.markdown_mode and run.keywords are mutually exclusive")
	}
	switch c.SinkKind {
	case "fs", "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("sink.postgres.dsn is required when sink.kind=postgres")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return fmt.Errorf("sink.gcs.bucket is required when sink.kind=gcs")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("sink.pubsub.project_id and sink.pubsub.topic are required when sink.kind=pubsub")
		}
	default:
		return fmt.Errorf("unknown sink.kind %q", c.SinkKind)
	}
	return nil
}

// Fingerprint is a thin wrapper so callers don't need to import the
// checkpoint package just to fingerprint a Config.
func (c Config) Fingerprint() string {
	return checkpoint.Fingerprint(c.Run)
}
