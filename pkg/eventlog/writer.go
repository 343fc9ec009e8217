// Package eventlog persists progress events to daily JSONL files so that a run's history
// survives the process that produced it.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sitebuilder/pkg/logx"
	"sitebuilder/pkg/progress"
)

const (
	filePattern = "events-*.jsonl"
	dayLayout   = "2006-01-02"

	maxLineBytes = 1 << 20
)

// FileName returns the log file name for the day of t.
func FileName(t time.Time) string {
	return "events-" + t.Format(dayLayout) + ".jsonl"
}

// Writer appends events to the file of the current day in dir. It implements progress.Sink.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *logx.Logger

	mu   sync.Mutex
	day  string
	file *os.File
	enc  *json.Encoder
}

// NewWriter creates dir when needed and opens the file of the current day.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	w := &Writer{dir: dir, now: time.Now, logger: logx.NewLogger("eventlog")}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Publish implements progress.Sink. Failures are logged, never returned.
func (w *Writer) Publish(e progress.Event) {
	if err := w.Append(e); err != nil {
		w.logger.Warn("⚠️ event %s/%s not recorded: %v", e.RunID, e.Step, err)
	}
}

// Append writes one event and syncs it to disk. A closed writer reopens the current file.
func (w *Writer) Append(e progress.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.openLocked(); err != nil {
		return err
	}
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync event log: %w", err)
	}
	return nil
}

// openLocked makes file point at the current day, closing yesterday's file.
func (w *Writer) openLocked() error {
	now := w.now()
	day := now.Format(dayLayout)
	if w.file != nil && w.day == day {
		return nil
	}
	if err := w.closeLocked(); err != nil {
		return err
	}

	path := filepath.Join(w.dir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log %s: %w", path, err)
	}
	w.file, w.day, w.enc = f, day, json.NewEncoder(f)
	return nil
}

func (w *Writer) closeLocked() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file, w.enc = nil, nil
	if err != nil {
		return fmt.Errorf("failed to close event log: %w", err)
	}
	return nil
}

// Close closes the open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Path returns the file currently written to, or "" when closed.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// Scan calls fn for every event in path, in file order, and stops at the first malformed line.
func Scan(path string, fn func(progress.Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(nil, maxLineBytes)
	for n := 1; sc.Scan(); n++ {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e progress.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%s:%d: malformed event: %w", filepath.Base(path), n, err)
		}
		fn(e)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// ReadEvents returns every event in path.
func ReadEvents(path string) ([]progress.Event, error) {
	events := []progress.Event{}
	if err := Scan(path, func(e progress.Event) { events = append(events, e) }); err != nil {
		return nil, err
	}
	return events, nil
}

// ReadRun returns the events of one run from every file in dir, oldest day first.
func ReadRun(dir, runID string) ([]progress.Event, error) {
	files, err := ListLogFiles(dir)
	if err != nil {
		return nil, err
	}
	var events []progress.Event
	for _, path := range files {
		err := Scan(path, func(e progress.Event) {
			if e.RunID == runID {
				events = append(events, e)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

// ListLogFiles returns the event log files in dir. Names sort by day.
func ListLogFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list event logs: %w", err)
	}
	return files, nil
}
