// Package activitylog keeps a bounded on-disk log of daemon activity.
package activitylog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/five82/medaka/internal/cache"
	"github.com/five82/medaka/internal/logtail"
)

const (
	// FileName is the log file name inside the data directory.
	FileName = "log.txt"
	// DefaultMaxLines is how many lines the log keeps.
	DefaultMaxLines = 500
)

// Writer appends to a log file and trims it to the newest maxLines lines.
// It is safe for concurrent use.
type Writer struct {
	path     string
	maxLines int

	mu    sync.Mutex
	file  *os.File
	lines int
}

// Open opens or creates the log at path.
func Open(path string, maxLines int) (*Writer, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	existing, err := logtail.Read(path, 0)
	if err != nil {
		return nil, err
	}
	w := &Writer{path: path, maxLines: maxLines, lines: len(existing)}
	if err := w.reopen(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p. Partial lines are counted once terminated.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("append log: %w", err)
	}
	w.lines += bytes.Count(p[:n], []byte{'\n'})
	if w.lines > w.maxLines {
		if err := w.trimLocked(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Lines returns the newest n lines, or all kept lines when n is not positive.
func (w *Writer) Lines(n int) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return logtail.Read(w.path, n)
}

// Path returns the log file location.
func (w *Writer) Path() string {
	return w.path
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) trimLocked() error {
	kept, err := logtail.Read(w.path, w.maxLines)
	if err != nil {
		return err
	}
	content := strings.Join(kept, "\n")
	if len(kept) > 0 {
		content += "\n"
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	w.file = nil
	if err := cache.WriteAtomic(w.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("trim log: %w", err)
	}
	w.lines = len(kept)
	return w.reopen()
}

func (w *Writer) reopen() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	w.file = f
	return nil
}
