package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Storage persists run reports as JSON files named
// run-<utc-start>-<strategy>-<id>.json. The timestamp prefix makes plain
// filename order chronological, so listing and pruning never have to
// decode every report on disk.
type Storage struct {
	dir    string
	keep   int
	logger *Logger
}

// NewStorage creates a storage rooted at dir, pruning to the newest keep
// reports after each save (0 disables pruning).
func NewStorage(dir string, keep int, logger *Logger) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &Storage{dir: dir, keep: keep, logger: logger}, nil
}

// reportFilename derives the on-disk name from the run itself. The
// strategy slug keeps mixed cadence campaigns distinguishable in a plain
// directory listing.
func reportFilename(r *RunReport) string {
	var slug strings.Builder
	for _, c := range strings.ToLower(r.Strategy) {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' {
			slug.WriteRune(c)
		}
	}
	strategy := slug.String()
	if strategy == "" {
		strategy = "unshaped"
	}
	return fmt.Sprintf("run-%s-%s-%s.json",
		r.StartTime.UTC().Format("20060102-150405"), strategy, r.RunID)
}

// SaveReport writes one run report and prunes anything past the keep
// limit.
func (s *Storage) SaveReport(report *RunReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run report: %w", err)
	}

	path := filepath.Join(s.dir, reportFilename(report))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write run report: %w", err)
	}

	s.logger.Info("Run report saved",
		"path", path,
		"requests", report.TotalRequests,
		"errors", report.ErrorCount,
		"p99_us", report.P99LatencyUs)

	if s.keep > 0 {
		if err := s.prune(); err != nil {
			s.logger.Warn("Failed to prune old reports", "error", err)
		}
	}

	return path, nil
}

// LoadReport reads one run report back from disk.
func (s *Storage) LoadReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run report: %w", err)
	}

	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode run report %s: %w", filepath.Base(path), err)
	}
	return &report, nil
}

// ListReports returns summaries of all stored reports, newest first.
// Unreadable files are skipped with a warning so one corrupt report never
// hides the rest.
func (s *Storage) ListReports() ([]ReportSummary, error) {
	names, err := s.reportNames()
	if err != nil {
		return nil, err
	}

	summaries := make([]ReportSummary, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(s.dir, names[i])
		report, err := s.LoadReport(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable report", "path", path, "error", err)
			continue
		}
		summaries = append(summaries, ReportSummary{
			RunID:     report.RunID,
			Target:    report.Target,
			StartTime: report.StartTime,
			Duration:  report.Duration,
			Status:    report.Status,
			Filepath:  path,
		})
	}
	return summaries, nil
}

// prune deletes the oldest reports until only keep remain, walking the
// chronological filename order instead of decoding anything.
func (s *Storage) prune() error {
	names, err := s.reportNames()
	if err != nil {
		return err
	}

	for len(names) > s.keep {
		old := names[0]
		names = names[1:]
		if err := os.Remove(filepath.Join(s.dir, old)); err != nil {
			s.logger.Warn("Failed to remove old report", "file", old, "error", err)
			continue
		}
		s.logger.Debug("Pruned old report", "file", old)
	}
	return nil
}

// reportNames lists stored report filenames in chronological order.
func (s *Storage) reportNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read report directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "run-") || filepath.Ext(name) != ".json" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
