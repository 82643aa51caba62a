// Package report provides the Report Writer (C9): materialising a
// completed session's results into a deterministic CSV file. Spec §4.9.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/webpdtool/testcore/internal/testplan"
)

// columnHeader is the fixed CSV column order (spec §4.9 — part of the
// external contract, never reordered).
var columnHeader = []string{
	"Item No", "Item Name", "Result", "Measured Value",
	"Min Limit", "Max Limit", "Error Message", "Execution Time (ms)", "Test Time",
}

// pathUnsafe matches the characters replaced during path sanitisation:
// path separators and ASCII control characters (spec §9 Open Question 5).
var pathUnsafe = regexp.MustCompile(`[/\\\x00-\x1f]`)

// Writer materialises CSV reports for completed/aborted sessions.
type Writer struct {
	baseDir    string
	autoSave   bool
	maxAgeDays int
	logger     *slog.Logger
}

// Config configures a Writer from the REPORT_* environment variables (spec §6).
type Config struct {
	BaseDir    string
	AutoSave   bool
	MaxAgeDays int
}

// NewWriter constructs a Writer and runs an initial retention sweep if
// MaxAgeDays > 0 (spec §9: "a sweep run at Report Writer construction and
// after each write").
func NewWriter(cfg Config) *Writer {
	w := &Writer{
		baseDir:    cfg.BaseDir,
		autoSave:   cfg.AutoSave,
		maxAgeDays: cfg.MaxAgeDays,
		logger:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	if w.maxAgeDays > 0 {
		w.sweep()
	}

	return w
}

// SessionInfo carries the identifying fields a Writer needs beyond the raw
// results (spec §4.9 path template).
type SessionInfo struct {
	SessionID string
	Project   string
	Station   string
}

// Row pairs a MeasurementResult with the limit bounds from its originating
// TestItem, since the CSV's Min Limit/Max Limit columns are plan data, not
// part of the Result Store's own record (spec §4.9).
type Row struct {
	Result     testplan.MeasurementResult
	LowerLimit *float64
	UpperLimit *float64
}

// RowsFrom zips a plan's items with their results by item_no, for callers
// that hold both (spec §4.9 Min Limit/Max Limit columns).
func RowsFrom(items []testplan.TestItem, results []testplan.MeasurementResult) []Row {
	limits := make(map[int]testplan.TestItem, len(items))
	for _, item := range items {
		limits[item.ItemNo] = item
	}

	rows := make([]Row, len(results))

	for i, r := range results {
		row := Row{Result: r}
		if item, ok := limits[r.ItemNo]; ok {
			row.LowerLimit = item.LowerLimit
			row.UpperLimit = item.UpperLimit
		}

		rows[i] = row
	}

	return rows
}

// Write materialises rows for info into the deterministic CSV path, falling
// back to $HOME/webpdtool_reports on a permission failure (spec §4.9).
// Returns the written path. Errors are non-fatal to the caller's session —
// the Session Engine logs and proceeds regardless (spec §7).
func (w *Writer) Write(info SessionInfo, rows []Row, writtenAt time.Time) (string, error) {
	if !w.autoSave {
		return "", nil
	}

	path := w.pathFor(w.baseDir, info, writtenAt)

	if err := writeCSV(path, rows); err != nil {
		w.logger.Warn("report write failed, falling back to home directory",
			"path", path, "error", err)

		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("report write failed and no home directory available: %w", err)
		}

		fallbackBase := filepath.Join(home, "webpdtool_reports")
		fallbackPath := w.pathFor(fallbackBase, info, writtenAt)

		if fbErr := writeCSV(fallbackPath, rows); fbErr != nil {
			return "", fmt.Errorf("report write failed at primary and fallback paths: %w", fbErr)
		}

		path = fallbackPath
	}

	if w.maxAgeDays > 0 {
		w.sweep()
	}

	return path, nil
}

// pathFor builds {base}/{project}/{station}/{YYYYMMDD}/{serial}_{YYYYMMDD_HHMMSS}.csv.
func (w *Writer) pathFor(base string, info SessionInfo, at time.Time) string {
	day := at.Format("20060102")
	stamp := at.Format("20060102_150405")
	serial := sanitize(info.SessionID)

	return filepath.Join(
		base,
		sanitize(info.Project),
		sanitize(info.Station),
		day,
		fmt.Sprintf("%s_%s.csv", serial, stamp),
	)
}

// sanitize replaces path separators and control characters with "_" and
// trims trailing whitespace/dots (spec §9 Open Question 5).
func sanitize(name string) string {
	replaced := pathUnsafe.ReplaceAllString(name, "_")

	return strings.TrimRight(replaced, " .")
}

func writeCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.UseCRLF = false // LF line endings per spec §4.9

	if err := w.Write(columnHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, row := range rows {
		if err := w.Write(rowFor(row)); err != nil {
			return fmt.Errorf("write row %d: %w", row.Result.ItemNo, err)
		}
	}

	w.Flush()

	return w.Error()
}

func rowFor(row Row) []string {
	r := row.Result

	measured := r.MeasuredText
	if r.IsNull {
		measured = ""
	}

	return []string{
		strconv.Itoa(r.ItemNo),
		r.ItemName,
		string(r.Outcome),
		measured,
		formatLimit(row.LowerLimit),
		formatLimit(row.UpperLimit),
		r.ErrorMessage,
		strconv.FormatInt(r.ExecutionMs, 10),
		r.Timestamp.Format(time.RFC3339),
	}
}

func formatLimit(v *float64) string {
	if v == nil {
		return ""
	}

	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// sweep deletes CSV files under baseDir older than maxAgeDays. Errors are
// logged, never returned — retention is best-effort housekeeping (spec §9).
func (w *Writer) sweep() {
	cutoff := time.Now().AddDate(0, 0, -w.maxAgeDays)

	err := filepath.Walk(w.baseDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}

			return nil //nolint:nilerr // best-effort sweep, never aborts on one bad entry
		}

		if info.IsDir() || filepath.Ext(path) != ".csv" {
			return nil
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				w.logger.Warn("report retention sweep failed to remove file", "path", path, "error", err)
			}
		}

		return nil
	})
	if err != nil {
		w.logger.Warn("report retention sweep failed", "error", err)
	}
}
