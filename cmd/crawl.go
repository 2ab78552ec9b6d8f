package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/adaptivecrawl/webcrawler/internal/config"
	"github.com/adaptivecrawl/webcrawler/internal/crawler"
	"github.com/adaptivecrawl/webcrawler/internal/engine"
	"github.com/adaptivecrawl/webcrawler/internal/logging"
)

func newCrawlCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Starts a crawl run",
		Long: `Walks the configured seed URLs with a headless, JS-rendering
browser, pacing itself against each site's responses, and writes either
keyword matches or Markdown conversions of every admitted page to the
configured sink.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), cmd, v)
		},
	}
}

func runCrawl(ctx context.Context, cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if savePath, _ := cmd.Flags().GetString("save-config"); savePath != "" {
		return saveResolvedConfig(v, savePath)
	}

	logger, err := logging.New(cfg.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if cerr := eng.Close(context.Background()); cerr != nil {
			logger.Warn("engine close failed", zap.Error(cerr))
		}
	}()

	stats, err := eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	logger.Info("crawl finished",
		zap.Int("pages_visited", stats.PagesVisited),
		zap.Int("pages_succeeded", stats.PagesSucceeded),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("keyword_hits", stats.KeywordHits))

	if snapshotPath, _ := cmd.Flags().GetString("metrics-snapshot"); snapshotPath != "" {
		if err := writeMetricsSnapshot(snapshotPath, stats); err != nil {
			logger.Warn("metrics snapshot failed", zap.Error(err))
		}
	}
	return nil
}

// saveResolvedConfig writes every setting Load would have used — file,
// env, and flag layers already merged by viper — to path, so a future run
// can be reproduced from a single file instead of the flag combination
// that produced it.
func saveResolvedConfig(v *viper.Viper, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write resolved config: %w", err)
	}
	return nil
}

// writeMetricsSnapshot dumps the final RunStats as JSON, a lighter-weight
// alternative to scraping the live Prometheus collectors for a run that's
// already finished.
func writeMetricsSnapshot(path string, stats crawler.RunStats) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create metrics snapshot dir: %w", err)
		}
	}
	payload, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	return os.WriteFile(path, payload, 0o600)
}
