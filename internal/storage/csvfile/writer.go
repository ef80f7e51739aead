// Package csvfile writes canonical battles to a CSV file and optionally
// compresses it once the run completes.
package csvfile

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
)

// FileTimeLayout names battle files after the run start time.
const FileTimeLayout = "20060102T150405"

// ErrCompressionMismatch is returned when the compressed file does not hold
// every written row.
var ErrCompressionMismatch = errors.New("compressed line count mismatch")

// Writer appends battle rows to a CSV file. It is safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	csv  *csv.Writer
	rows int
}

// Create opens {dir}/{start}.csv for appending, creating dir when needed.
func Create(dir string, start time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, start.Format(FileTimeLayout)+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // operator-supplied dir
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	return &Writer{path: path, file: f, csv: csv.NewWriter(f)}, nil
}

// Path returns the plain CSV location.
func (w *Writer) Path() string { return w.path }

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Write appends battles and flushes them to disk.
func (w *Writer) Write(battles []crawler.Battle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return os.ErrClosed
	}
	for _, b := range battles {
		if err := w.csv.Write(Record(b)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		w.rows++
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Repeated calls are no-ops.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil
	return errors.Join(flushErr, closeErr)
}

// Record renders b as time, mode, then tag, rating, crowns and eight cards
// for each player.
func Record(b crawler.Battle) []string {
	row := make([]string, 0, 2+2*(3+crawler.DeckSize))
	row = append(row, b.Time.UTC().Format(crawler.BattleTimeLayout), strconv.FormatInt(int64(b.Mode), 10))
	for _, p := range []crawler.Player{b.Player1, b.Player2} {
		row = append(row, p.Tag.String(), strconv.Itoa(p.Rating), strconv.Itoa(p.Crowns))
		for _, id := range p.Cards {
			row = append(row, strconv.FormatInt(id, 10))
		}
	}
	return row
}

// FinalizeOptions controls what happens to the CSV after the run.
type FinalizeOptions struct {
	Compress     bool
	KeepOriginal bool
}

// Finalize closes w and, when compressing, writes {path}.gz, verifies its
// line count against the rows written and removes the plain file unless
// KeepOriginal is set. It returns the path of the final artifact.
func Finalize(w *Writer, opts FinalizeOptions) (string, error) {
	if err := w.Close(); err != nil {
		return "", err
	}
	if !opts.Compress {
		return w.path, nil
	}

	gzPath := w.path + ".gz"
	if err := compressFile(w.path, gzPath); err != nil {
		return "", err
	}
	lines, err := countGzipLines(gzPath)
	if err != nil {
		return "", err
	}
	if lines != w.Rows() {
		return "", fmt.Errorf("%w: wrote %d rows, archive has %d", ErrCompressionMismatch, w.Rows(), lines)
	}
	if !opts.KeepOriginal {
		if err := os.Remove(w.path); err != nil {
			return "", fmt.Errorf("remove plain csv: %w", err)
		}
	}
	return gzPath, nil
}

func compressFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // path built by Create
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // path built by Create
	if err != nil {
		return fmt.Errorf("create gzip: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close gzip: %w", cerr)
		}
	}()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return fmt.Errorf("compress csv: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish gzip: %w", err)
	}
	return nil
}

func countGzipLines(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path built by Create
	if err != nil {
		return 0, fmt.Errorf("open gzip: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read gzip: %w", err)
	}
	defer zr.Close()

	lines := 0
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		lines++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan gzip: %w", err)
	}
	return lines, nil
}
