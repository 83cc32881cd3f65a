/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logging_test.go
Description: Tests for the logger: config validation, the session log file, record tags of
the explorer formatter and cleanup of old files.
*/

package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/dld/pkg/logging"
)

// TestLoggerConfigValidate tests the rejected configurations
func TestLoggerConfigValidate(t *testing.T) {
	cfg := logging.DefaultLoggerConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = logging.DefaultLoggerConfig()
	cfg.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = logging.DefaultLoggerConfig()
	cfg.MaxFiles = 0
	assert.Error(t, cfg.Validate())
}

// TestLoggerSessionFile tests that records reach both the console and the session file
func TestLoggerSessionFile(t *testing.T) {
	var console bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Colors = false
	cfg.Level = logging.LogLevelDebug
	cfg.Console = &console

	l, err := logging.NewLogger(cfg)
	require.NoError(t, err)
	log := l.GetLogger()
	log.WithFields(logrus.Fields{"session_id": "0123456789abcdef", "package": "com.example", "policy": "data_loss"}).Info("Session started")
	log.WithFields(logrus.Fields{"tick": 3, "event": "DoubleRotation", "activity": ".MainActivity"}).Debug("Event dispatched")
	log.WithFields(logrus.Fields{"category": "Views", "description": "Mismatch between views", "event": "DoubleRotation"}).Warn("Data loss detected")
	log.WithField("exception", "java.lang.IllegalStateException: boom").Error("Fatal exception")
	log.WithField("dir", "x").Info("ACVTool: final coverage report saved")
	l.LogStats(12, 1, 0, map[string]interface{}{"states": 4})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.True(t, strings.HasPrefix(filepath.Base(l.FilePath()), "dld_"))
	data, err := os.ReadFile(l.FilePath())
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, text, console.String())

	assert.Contains(t, text, "[SESSION] Session started package=com.example policy=data_loss session_id=01234567")
	assert.Contains(t, text, "[EVENT] Event dispatched activity=.MainActivity event=DoubleRotation tick=3")
	assert.Contains(t, text, "WARN  [DATALOSS] Data loss detected category=Views")
	assert.Contains(t, text, "ERROR [FATAL] Fatal exception exception=java.lang.IllegalStateException: boom")
	assert.Contains(t, text, "[COVERAGE] ACVTool")
	assert.Contains(t, text, "[STATS] Statistics update data_loss=1 events=12 fatal=0 states=4 uptime=")
}

// TestCustomFormatter tests the plain line layout
func TestCustomFormatter(t *testing.T) {
	f := &logging.CustomFormatter{}
	entry := &logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "hello",
		Data: logrus.Fields{
			"b":    strings.Repeat("x", 100),
			"a":    1500 * time.Microsecond,
			"blob": []byte{1, 2, 3},
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "INFO  hello a=2ms b="+strings.Repeat("x", 60)+"... blob=[3 bytes]\n", string(out))
}

// TestLoggerCleanup tests that only the newest MaxFiles logs survive Close
func TestLoggerCleanup(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"dld_2020-01-01_00-00-00.000.log", "dld_2020-01-02_00-00-00.000.log", "other.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputDir = dir
	cfg.MaxFiles = 2
	cfg.Console = &bytes.Buffer{}

	l, err := logging.NewLogger(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.NoFileExists(t, filepath.Join(dir, "dld_2020-01-01_00-00-00.000.log"))
	assert.FileExists(t, filepath.Join(dir, "dld_2020-01-02_00-00-00.000.log"))
	assert.FileExists(t, filepath.Join(dir, "other.log"))
	assert.FileExists(t, l.FilePath())
}
