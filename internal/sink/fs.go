package sink

import (
	"context"
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// FSConfig configures the filesystem sink.
type FSConfig struct {
	// Dir is the run's output directory. A "pages" subdirectory holds one
	// file per page (Markdown or matched-context text); "index.csv" in Dir
	// holds one summary row per page.
	Dir string
}

// FSSink writes each PageResult as one CSV summary row plus one content
// file, path-traversal-guarded the same way a local blob store guards
// PutObject.
type FSSink struct {
	cfg FSConfig

	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
}

// NewFSSink creates the output directory tree and opens index.csv for
// appending.
func NewFSSink(cfg FSConfig) (*FSSink, error) {
	if cfg.Dir == "" {
		return nil, ErrUnconfigured
	}
	pagesDir := filepath.Join(cfg.Dir, "pages")
	if err := os.MkdirAll(pagesDir, 0o750); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}
	indexPath := filepath.Join(cfg.Dir, "index.csv")
	exists := fileExists(indexPath)
	f, err := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open index.csv: %w", err)
	}
	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write([]string{"url", "final_url", "depth", "status_code", "kind", "content_hash", "used_spa", "fetched_at", "content_path"}); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
	}
	return &FSSink{cfg: cfg, writer: w, file: f}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Put writes the page's content file and appends a summary row.
func (s *FSSink) Put(ctx context.Context, result crawler.PageResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	contentPath, err := s.writeContent(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row := []string{
		result.URL, result.FinalURL, strconv.Itoa(result.Depth),
		strconv.Itoa(result.StatusCode), string(result.Kind), result.ContentHash,
		strconv.FormatBool(result.UsedSPA), result.FetchedAt.UTC().Format("2006-01-02T15:04:05Z"),
		contentPath,
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *FSSink) writeContent(result crawler.PageResult) (string, error) {
	base := safeBasename(result.FinalURL)
	switch result.Kind {
	case crawler.PageKindMarkdownDoc:
		path := filepath.Join(s.cfg.Dir, "pages", base+".md")
		if err := os.WriteFile(path, []byte(result.Markdown), 0o600); err != nil {
			return "", fmt.Errorf("write markdown content: %w", err)
		}
		return path, nil
	case crawler.PageKindKeywordHit:
		var b strings.Builder
		for _, hit := range result.KeywordHits {
			fmt.Fprintf(&b, "%s: %s\n", hit.Keyword, hit.Context)
		}
		path := filepath.Join(s.cfg.Dir, "pages", base+".txt")
		if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
			return "", fmt.Errorf("write keyword hit content: %w", err)
		}
		return path, nil
	default:
		return "", nil
	}
}

// Close flushes and closes the underlying CSV file.
func (s *FSSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.file.Close()
}

func safeBasename(rawURL string) string {
	hash := sha1.Sum([]byte(rawURL))
	hashHex := hex.EncodeToString(hash[:])[:16]
	cleaned := invalidFilenameChars.ReplaceAllString(rawURL, "_")
	if len(cleaned) > 80 {
		cleaned = cleaned[:80]
	}
	return fmt.Sprintf("%s_%s", cleaned, hashHex)
}
