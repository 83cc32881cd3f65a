/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Console formatters. CustomFormatter prints one coloured line per entry with sorted
fields; ExplorerFormatter adds a tag for the exploration records (events, findings, fatal
exceptions, sessions) and shortens their noisy fields.
*/

package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const maxValueLen = 60

// CustomFormatter renders "time LEVEL [caller] message key=value..."
type CustomFormatter struct {
	Timestamp bool
	Caller    bool
	Colors    bool
}

func (f *CustomFormatter) paint(code int, s string) string {
	if !f.Colors {
		return s
	}
	return fmt.Sprintf("\033[%dm%s\033[0m", code, s)
}

// Format formats a log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, "", f.formatValue), nil
}

func (f *CustomFormatter) format(entry *logrus.Entry, tag string, value func(string, interface{}) string) []byte {
	var out strings.Builder
	if f.Timestamp {
		out.WriteString(f.paint(36, entry.Time.Format("2006-01-02 15:04:05.000")))
		out.WriteByte(' ')
	}
	out.WriteString(f.paint(levelColor(entry.Level), fmt.Sprintf("%-5s", levelName(entry.Level))))
	out.WriteByte(' ')
	if tag != "" {
		out.WriteString(f.paint(35, "["+tag+"]"))
		out.WriteByte(' ')
	}
	if f.Caller && entry.HasCaller() {
		out.WriteString(f.paint(33, fmt.Sprintf("[%s:%d]", shortFile(entry.Caller.File), entry.Caller.Line)))
		out.WriteByte(' ')
	}
	out.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.WriteByte(' ')
		out.WriteString(f.paint(34, k))
		out.WriteByte('=')
		out.WriteString(f.paint(32, value(k, entry.Data[k])))
	}
	out.WriteByte('\n')
	return []byte(out.String())
}

// levelName keeps level labels within five columns
func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

func levelColor(level logrus.Level) int {
	switch level {
	case logrus.InfoLevel:
		return 32
	case logrus.WarnLevel:
		return 33
	case logrus.ErrorLevel:
		return 31
	case logrus.FatalLevel, logrus.PanicLevel:
		return 35
	default:
		return 37
	}
}

func shortFile(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (f *CustomFormatter) formatValue(_ string, value interface{}) string {
	switch v := value.(type) {
	case time.Duration:
		return v.Round(time.Millisecond).String()
	case time.Time:
		return v.Format("15:04:05.000")
	case error:
		return v.Error()
	case string:
		if len(v) > maxValueLen {
			return v[:maxValueLen] + "..."
		}
		return v
	case []byte:
		return fmt.Sprintf("[%d bytes]", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExplorerFormatter tags exploration records
type ExplorerFormatter struct {
	CustomFormatter
}

// Format formats a log entry with its record tag
func (f *ExplorerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, recordTag(entry.Message), f.formatRecordValue), nil
}

func recordTag(message string) string {
	switch {
	case strings.HasPrefix(message, "Event dispatched"):
		return "EVENT"
	case strings.HasPrefix(message, "Data loss"):
		return "DATALOSS"
	case strings.HasPrefix(message, "Fatal exception"):
		return "FATAL"
	case strings.HasPrefix(message, "Session"):
		return "SESSION"
	case strings.HasPrefix(message, "Statistics"):
		return "STATS"
	case strings.HasPrefix(message, "ACVTool"):
		return "COVERAGE"
	default:
		return ""
	}
}

func (f *ExplorerFormatter) formatRecordValue(key string, value interface{}) string {
	switch key {
	case "session_id":
		if s, ok := value.(string); ok && len(s) > 8 {
			return s[:8]
		}
	case "event", "exception", "description":
		// Kept whole, the line is the only place the full text shows up
		if s, ok := value.(string); ok {
			return s
		}
	}
	return f.formatValue(key, value)
}
