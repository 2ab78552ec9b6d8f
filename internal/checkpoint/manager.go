// Package checkpoint implements the Checkpoint Manager: periodic,
// crash-safe snapshots of Frontier state, the run's run ID and config
// fingerprint, and accumulated RunStats, so a killed crawl can resume
// without re-walking pages it already visited. Saves go through the
// usual tmp-write-fsync-then-rename sequence, atomic on POSIX
// filesystems, with the same 0o750 dirs / 0o600 files convention used
// elsewhere in this module.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// Checkpoint is the on-disk/in-memory shape of a saved run.
type Checkpoint struct {
	RunID             string                  `json:"run_id"`
	ConfigFingerprint string                  `json:"config_fingerprint"`
	SavedAt           time.Time               `json:"saved_at"`
	Frontier          crawler.FrontierSnapshot `json:"frontier"`
	Controller        crawler.ControllerState  `json:"controller"`
	Stats             crawler.RunStats         `json:"stats"`
}

// Manager decides when to save and performs the atomic write.
type Manager struct {
	path         string
	saveInterval time.Duration

	lastSaved        time.Time
	lastSavedVisited int
}

// New creates a Manager writing to path.
func New(path string, saveInterval time.Duration) *Manager {
	return &Manager{path: path, saveInterval: saveInterval}
}

// ShouldSave reports whether enough time or enough new progress has
// accumulated since the last save to warrant another one: a
// time-interval clause and an independent progress-count clause, either
// one sufficient on its own. It is independent of any configured page
// cap: a run started with no max_pages still checkpoints on its own
// cadence.
func (m *Manager) ShouldSave(now time.Time, visited int) bool {
	if m.lastSaved.IsZero() {
		return true
	}
	elapsed := now.Sub(m.lastSaved)
	pagesSinceLast := visited - m.lastSavedVisited

	if m.saveInterval > 0 && elapsed >= m.saveInterval {
		floor := time.Duration(float64(pagesSinceLast) * 0.1 * float64(time.Second))
		if floor > 10*time.Second {
			floor = 10 * time.Second
		}
		if elapsed >= floor {
			return true
		}
	}

	threshold := 0.2 * float64(m.lastSavedVisited)
	if threshold < 10 {
		threshold = 10
	}
	return float64(pagesSinceLast) >= threshold
}

// Save atomically writes cp to disk: marshal, write to a temp file in the
// same directory, fsync, then rename over the target. A rename within one
// filesystem is atomic, so a crash mid-write never leaves a truncated
// checkpoint in place of a good one.
func (m *Manager) Save(cp Checkpoint, now time.Time, visited int) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	payload, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.OpenFile(m.path+".tmp", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create temp checkpoint file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp checkpoint: %w", err)
	}
	if err := m.Backup(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("backup previous checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	m.lastSaved = now
	m.lastSavedVisited = visited
	return nil
}

// emergencyPath and backupPath are fixed siblings of the main checkpoint
// file rather than timestamped, so a resume never has to glob a
// directory to find the latest one.
func (m *Manager) emergencyPath() string { return m.path + ".emergency" }
func (m *Manager) backupPath() string    { return m.path + ".backup" }

// EmergencySave is Save without the atomic rename step: used from a
// signal handler or panic recovery path where there may not be time to
// complete a second filesystem operation. It writes to a ".emergency"
// sibling of the main checkpoint rather than the main path itself, so a
// half-written emergency save can never clobber the last good periodic
// checkpoint.
func (m *Manager) EmergencySave(cp Checkpoint) error {
	payload, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal emergency checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	return os.WriteFile(m.emergencyPath(), payload, 0o600)
}

// Backup copies the current checkpoint file to a fixed ".backup" sibling
// before it gets overwritten, so a corrupt save never destroys the last
// known-good one. It is a no-op, not an error, the first time Save runs
// and there is nothing yet to back up.
func (m *Manager) Backup() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checkpoint for backup: %w", err)
	}
	return os.WriteFile(m.backupPath(), data, 0o600)
}

// Load reads and validates a checkpoint from disk: a checkpoint missing
// its run ID or saved_at timestamp is rejected rather than silently
// resumed from.
func Load(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.RunID == "" {
		return Checkpoint{}, fmt.Errorf("checkpoint missing run_id")
	}
	if cp.SavedAt.IsZero() {
		return Checkpoint{}, fmt.Errorf("checkpoint missing saved_at")
	}
	return cp, nil
}

// LoadPreferEmergency resolves the checkpoint a resume should actually
// use: the path's main checkpoint, or its ".emergency" sibling when that
// sibling exists, parses, and was saved more recently. An interrupted run
// leaves behind both a stale periodic checkpoint and a fresher emergency
// one; resuming from whichever is newer loses the least progress.
func LoadPreferEmergency(path string) (Checkpoint, error) {
	main, mainErr := Load(path)
	emergency, emErr := Load(path + ".emergency")
	switch {
	case mainErr != nil && emErr != nil:
		return Checkpoint{}, mainErr
	case mainErr != nil:
		return emergency, nil
	case emErr != nil:
		return main, nil
	case emergency.SavedAt.After(main.SavedAt):
		return emergency, nil
	default:
		return main, nil
	}
}

// Fingerprint hashes the admission-relevant subset of a RunConfig so a
// resumed run can detect (and warn about, not fail on) a config change
// since the checkpoint was taken.
func Fingerprint(cfg crawler.RunConfig) string {
	parts := []string{
		strings.Join(sortedCopy(cfg.Seeds), ","),
		strings.Join(sortedCopy(cfg.AllowedHosts), ","),
		strings.Join(sortedCopy(cfg.StripQueryParams), ","),
		fmt.Sprintf("%v|%d|%d", cfg.AllowSubdomains, cfg.MaxDepth, cfg.MaxPages),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "#")))
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
