/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter_test.go
Description: Tests for the logrus and Prometheus reporters.
*/

package explorer_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/explorer"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/policy/policytest"
)

// TestLoggerReporter tests the level and fields of each notification
func TestLoggerReporter(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := explorer.NewLoggerReporter(logger)

	r.OnSessionStart(explorer.SessionInfo{ID: "s1", Package: "com.example", Policy: "data_loss"})
	r.OnEvent(3, event.NewKeyEvent(event.KeyBack), policytest.Screen("MainActivity"))
	r.OnTickError(4, errors.New("boom"))
	r.OnFinding(&oracle.Finding{Category: oracle.CategoryViews, Description: "Mismatch between views", Event: "DoubleRotation"})
	r.OnFatal("java.lang.NullPointerException")
	r.OnSessionEnd(explorer.Summary{Events: 7, States: 2, Duration: time.Second})

	entries := hook.AllEntries()
	require.Len(t, entries, 6)
	assert.Equal(t, "s1", entries[0].Data["session_id"])
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, "MainActivity", entries[1].Data["activity"])
	assert.Equal(t, 4, entries[2].Data["tick"])
	assert.Equal(t, logrus.WarnLevel, entries[3].Level)
	assert.Equal(t, "Views", entries[3].Data["category"])
	assert.Equal(t, logrus.ErrorLevel, entries[4].Level)
	assert.Equal(t, 7, entries[5].Data["events"])
}

// TestPrometheusReporter tests the exported counters and gauges
func TestPrometheusReporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := explorer.NewPrometheusReporter(reg)
	rs := explorer.Reporters{r}

	rs.OnSessionStart(explorer.SessionInfo{})
	rs.OnFinding(&oracle.Finding{Category: oracle.CategoryScreenshots})
	rs.OnFinding(&oracle.Finding{Category: oracle.CategoryScreenshots})
	rs.OnFatal("boom")
	rs.OnTickError(1, errors.New("x"))

	expected := `
# HELP dld_data_loss_findings_total Data-loss findings, by category.
# TYPE dld_data_loss_findings_total counter
dld_data_loss_findings_total{category="Screenshots"} 2
# HELP dld_fatal_exceptions_total Fatal exceptions thrown by the app under test.
# TYPE dld_fatal_exceptions_total counter
dld_fatal_exceptions_total 1
# HELP dld_session_running 1 while a session is running.
# TYPE dld_session_running gauge
dld_session_running 1
# HELP dld_tick_errors_total Ticks abandoned because of an error.
# TYPE dld_tick_errors_total counter
dld_tick_errors_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"dld_data_loss_findings_total", "dld_fatal_exceptions_total", "dld_session_running", "dld_tick_errors_total"))

	rs.OnSessionEnd(explorer.Summary{States: 4})
	expected = `
# HELP dld_utg_states States in the UI transition graph at session end.
# TYPE dld_utg_states gauge
dld_utg_states 4
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dld_utg_states"))
}
