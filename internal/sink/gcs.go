package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// GCSConfig configures the GCS sink.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSSink uploads one JSON object per PageResult.
type GCSSink struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSSink validates bucket access and returns a configured sink.
func NewGCSSink(ctx context.Context, client *gcs.Client, cfg GCSConfig) (*GCSSink, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs client is required: %w", ErrUnconfigured)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required: %w", ErrUnconfigured)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		return nil, fmt.Errorf("validate bucket %s: %w", cfg.Bucket, err)
	}
	return &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Put serializes result to JSON and uploads it under Prefix/<timestamp>-<hash>.json.
func (s *GCSSink) Put(ctx context.Context, result crawler.PageResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal page result: %w", err)
	}
	name := objectName(s.prefix, result)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, strings.NewReader(string(payload))); err != nil {
		writer.Close()
		return fmt.Errorf("upload page result: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}
	return nil
}

// Close is a no-op: the *storage.Client is owned by the caller and
// outlives individual sinks.
func (s *GCSSink) Close(context.Context) error { return nil }

func objectName(prefix string, result crawler.PageResult) string {
	ts := result.FetchedAt.UTC().Format("20060102T150405Z")
	if ts == "00010101T000000Z" {
		ts = time.Now().UTC().Format("20060102T150405Z")
	}
	name := fmt.Sprintf("%s-%s.json", ts, result.ContentHash)
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
