/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Append-only HTML session report. The exploration loop and the logcat watcher
both append rows, so appends are serialized. The header is written on creation and the tail
exactly once on Close.
*/

package report

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kleascm/dld/pkg/ui"
)

// Result values of a row
const (
	ResultOk        = "Ok"
	ResultException = "Exception"
)

// TimeLayout is the timestamp format used in rows and artifact names
const TimeLayout = "2006-01-02 15-04-05"

// Row is one line of the results table
type Row struct {
	Time          string
	Result        string
	Activity      string
	Event         string
	ViewBounds    string
	AbstractState string
	ExceptionType string
	ExceptionMsg  string
}

// Summary holds the aggregate counters written in the tail
type Summary struct {
	ActivityCoverage int
	ActivityTested   int
	Events           int
	FillUI           int
	DoubleRotation   int
	DataLoss         int
	Fatal            int
	Start            string
	End              string
}

// Header identifies the session a report belongs to
type Header struct {
	SessionID string
	Package   string
}

// Writer appends rows to a report file
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	rows   int
	closed bool
}

// Create creates the report file and writes its header
func Create(path string, header Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	if err := headerTemplate.Execute(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	return &Writer{path: path, file: f}, nil
}

// Path returns the report location
func (w *Writer) Path() string { return w.path }

// Append writes one row. It is safe for concurrent use.
func (w *Writer) Append(row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("report already closed")
	}
	if err := rowTemplate.Execute(w.file, row); err != nil {
		return fmt.Errorf("failed to append report row: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of rows appended so far
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close writes the tail and closes the file. Later calls do nothing.
func (w *Writer) Close(summary Summary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := tailTemplate.Execute(w.file, summary); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to write report tail: %w", err)
	}
	return w.file.Close()
}

// FormatBounds renders view bounds the way the results table shows them
func FormatBounds(bounds []ui.Rect) string {
	parts := make([]string, 0, len(bounds))
	for _, b := range bounds {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ",")
}
