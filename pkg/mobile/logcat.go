/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logcat.go
Description: Logcat watcher. Streams the device log, tees it to a file and reports every fatal
exception block: the third line of a block opened by "FATAL EXCEPTION" carries the exception,
taken after the "AndroidRuntime:" tag with whitespace collapsed.
*/

package mobile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	fatalMarker    = "FATAL EXCEPTION"
	runtimeTag     = "AndroidRuntime:"
	fatalLineIndex = 3
)

var whitespace = regexp.MustCompile(`\s+`)

// FatalParser finds fatal exception lines in a log stream
type FatalParser struct {
	found bool
	line  int
}

// Feed consumes one log line and returns the exception once the block reached its
// exception line
func (p *FatalParser) Feed(line string) (string, bool) {
	if strings.Contains(line, fatalMarker) {
		p.found = true
		p.line = 0
	}
	if !p.found {
		return "", false
	}
	p.line++
	if p.line < fatalLineIndex {
		return "", false
	}
	p.found = false
	p.line = 0
	if i := strings.Index(line, runtimeTag+" "); i >= 0 {
		line = line[i+len(runtimeTag):]
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(line, " ")), true
}

// LogcatWatcher reports fatal exceptions of the device log
type LogcatWatcher struct {
	adb     *ADB
	outPath string
	onFatal func(exception string)
	logger  *logrus.Logger
}

// NewLogcatWatcher creates a watcher. outPath may be empty to skip the tee file.
func NewLogcatWatcher(adb *ADB, outPath string, onFatal func(string), logger *logrus.Logger) *LogcatWatcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &LogcatWatcher{adb: adb, outPath: outPath, onFatal: onFatal, logger: logger}
}

// Run streams the log until ctx ends or the stream closes
func (w *LogcatWatcher) Run(ctx context.Context) error {
	stream, err := w.adb.Logcat(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	var sink io.Writer = io.Discard
	if w.outPath != "" {
		f, err := os.Create(w.outPath)
		if err != nil {
			return fmt.Errorf("failed to create logcat file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	// The scanner blocks on the pipe; closing it on cancellation unblocks the loop
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()

	w.logger.Info("Logcat watcher connected")
	err = w.Consume(stream, sink)
	w.logger.Info("Logcat watcher disconnected")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Consume reads log lines from r, copying them to sink and reporting fatal exceptions
func (w *LogcatWatcher) Consume(r io.Reader, sink io.Writer) error {
	var parser FatalParser
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := fmt.Fprintln(sink, line); err != nil {
			return fmt.Errorf("failed to write logcat line: %w", err)
		}
		exception, ok := parser.Feed(line)
		if !ok {
			continue
		}
		w.logger.WithField("exception", exception).Warn("A fatal exception has been thrown from the app")
		if w.onFatal != nil {
			w.onFatal(exception)
		}
	}
	return scanner.Err()
}
