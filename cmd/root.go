// Package cmd defines and implements the CLI commands for the webcrawler
// executable, built on the same cobra/viper wiring pattern used elsewhere
// in this module, trimmed of the database/queue/storage App-interface
// indirection that had no home once the HTTP API and job dispatcher were
// dropped.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adaptivecrawl/webcrawler/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "webcrawler",
		Short: "An adaptive, JS-rendering web crawler.",
		Long: `webcrawler walks a set of seed URLs with a headless, JS-capable
browser, pacing itself with a closed-loop rate controller, and either
extracts keyword matches or converts pages to Markdown before handing the
results to a pluggable sink.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	bindFlags(cmd, v)

	cmd.AddCommand(newCrawlCmd(v))
	return cmd
}

func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/webcrawler/")
		v.AddConfigPath("$HOME/.webcrawler")
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

// bindFlags registers every CLI-tunable knob onto the root command's
// persistent flag set, under the same dotted keys SetDefaults uses.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()

	flags.StringSlice("seeds", nil, "seed URLs to start the crawl from")
	flags.Bool("allow-subdomains", false, "admit links on any subdomain of a seed's registrable domain")
	flags.StringSlice("allowed-hosts", nil, "explicit host allowlist (overrides allow-subdomains when set)")
	flags.Int("max-depth", 3, "maximum link-following depth from a seed")
	flags.Int("max-pages", 0, "maximum pages to admit into the frontier (0 = unbounded)")
	flags.StringSlice("strip-query-params", nil, "query parameters to drop during URL canonicalization")
	flags.String("path-prefix", "", "restrict admitted links to this URL path prefix")
	flags.StringSlice("allowed-extensions", nil, "file extensions to admit (default: everything but known binary types)")
	flags.StringSlice("blocklist", nil, "hosts to reject regardless of scope, e.g. ads.example.com or *.ru")

	flags.Int("min-workers", 1, "minimum concurrent workers")
	flags.Int("max-workers", 8, "maximum concurrent workers")
	flags.Int("initial-workers", 2, "workers to start with")
	flags.Duration("initial-delay", 0, "starting per-request delay the controller adjusts from (default set via config)")
	flags.Duration("min-delay", 0, "floor on the adaptive per-request delay")
	flags.Duration("max-delay", 0, "ceiling on the adaptive per-request delay")
	flags.Bool("disable-adaptive-control", false, "hold worker count and delay at their initial setpoint for the whole run")
	flags.Bool("aggressive-throttling", false, "double the rate-limited backoff multiplier instead of the default 1.5x")
	flags.Int("max-restarts", 3, "browser session restarts a worker may spend before giving up")

	flags.Bool("spa.enabled", false, "probe SPA routes by clicking JS-driven navigation elements")
	flags.Int("spa.max-clicks", 10, "maximum clickable elements explored per page")

	flags.StringSlice("keywords", nil, "keywords to extract matches for (mutually exclusive with markdown mode)")
	flags.Bool("markdown-mode", false, "convert pages to Markdown instead of extracting keyword matches")
	flags.String("output-dir", "data/crawl", "output directory for the filesystem sink")

	flags.String("checkpoint-path", "data/checkpoint.json", "checkpoint file path")
	flags.Duration("checkpoint-interval", 0, "time after which a checkpoint save becomes due (enough new pages can trigger one sooner)")
	flags.Bool("resume", false, "resume from the checkpoint at checkpoint-path if one is present")

	flags.String("sink", "fs", "result sink: fs, postgres, gcs, pubsub, memory")
	flags.String("postgres-dsn", "", "Postgres DSN (sink=postgres)")
	flags.String("gcs-bucket", "", "GCS bucket name (sink=gcs)")
	flags.String("pubsub-project", "", "GCP project ID (sink=pubsub)")
	flags.String("pubsub-topic", "", "Pub/Sub topic name (sink=pubsub)")

	flags.Bool("dev", false, "enable development-mode logging")
	flags.String("save-config", "", "write the fully resolved configuration to this path and exit without crawling")
	flags.String("metrics-snapshot", "", "write a final metrics/stats snapshot to this path after the crawl finishes")

	bindings := map[string]string{
		"seeds":                     "run.seeds",
		"allow-subdomains":          "run.allow_subdomains",
		"allowed-hosts":             "run.allowed_hosts",
		"max-depth":                 "run.max_depth",
		"max-pages":                 "run.max_pages",
		"strip-query-params":        "run.strip_query_params",
		"path-prefix":               "run.path_prefix",
		"allowed-extensions":        "run.allowed_extensions",
		"blocklist":                 "run.blocklist_hosts",
		"min-workers":               "pool.min_workers",
		"max-workers":               "pool.max_workers",
		"initial-workers":           "pool.initial_workers",
		"initial-delay":             "pool.base_delay",
		"min-delay":                 "pool.min_delay",
		"max-delay":                 "pool.max_delay",
		"disable-adaptive-control":  "controller.disabled",
		"aggressive-throttling":     "controller.aggressive",
		"max-restarts":              "run.max_restarts",
		"spa.enabled":               "spa.enabled",
		"spa.max-clicks":            "spa.max_clicks_per_page",
		"keywords":                  "run.keywords",
		"markdown-mode":             "run.markdown_mode",
		"output-dir":                "sink.fs.dir",
		"checkpoint-path":           "checkpoint.path",
		"checkpoint-interval":       "checkpoint.interval",
		"resume":                    "run.resume",
		"sink":                      "sink.kind",
		"postgres-dsn":              "sink.postgres.dsn",
		"gcs-bucket":                "sink.gcs.bucket",
		"pubsub-project":            "sink.pubsub.project_id",
		"pubsub-topic":              "sink.pubsub.topic",
		"dev":                       "logging.development",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
