/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter interface and implementations for exploration telemetry. The explorer
notifies reporters of dispatched events, tick errors, findings and fatal exceptions;
LoggerReporter writes them to logrus and PrometheusReporter exports them as metrics.
*/

package explorer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/ui"
)

// SessionInfo identifies a running session
type SessionInfo struct {
	ID        string
	Package   string
	Policy    string
	StartTime time.Time
}

// Summary holds the totals of a finished session
type Summary struct {
	Events      int
	Errors      int
	States      int
	Transitions int
	Duration    time.Duration
}

// Reporter receives exploration telemetry. Implementations must be safe for concurrent use;
// fatal exceptions arrive from the log watcher goroutine.
type Reporter interface {
	OnSessionStart(info SessionInfo)
	// OnEvent is called after ev was dispatched on state, which may be nil during bootstrap
	OnEvent(tick int, ev event.Event, state *ui.State)
	OnTickError(tick int, err error)
	OnFinding(f *oracle.Finding)
	OnFatal(exception string)
	OnSessionEnd(summary Summary)
}

// Reporters fans notifications out to several reporters
type Reporters []Reporter

func (rs Reporters) OnSessionStart(info SessionInfo) {
	for _, r := range rs {
		r.OnSessionStart(info)
	}
}

func (rs Reporters) OnEvent(tick int, ev event.Event, state *ui.State) {
	for _, r := range rs {
		r.OnEvent(tick, ev, state)
	}
}

func (rs Reporters) OnTickError(tick int, err error) {
	for _, r := range rs {
		r.OnTickError(tick, err)
	}
}

func (rs Reporters) OnFinding(f *oracle.Finding) {
	for _, r := range rs {
		r.OnFinding(f)
	}
}

func (rs Reporters) OnFatal(exception string) {
	for _, r := range rs {
		r.OnFatal(exception)
	}
}

func (rs Reporters) OnSessionEnd(summary Summary) {
	for _, r := range rs {
		r.OnSessionEnd(summary)
	}
}

// LoggerReporter logs telemetry with logrus
type LoggerReporter struct {
	logger *logrus.Logger
}

// NewLoggerReporter creates a new LoggerReporter
func NewLoggerReporter(logger *logrus.Logger) *LoggerReporter {
	return &LoggerReporter{logger: logger}
}

// OnSessionStart logs the session identity
func (r *LoggerReporter) OnSessionStart(info SessionInfo) {
	r.logger.WithFields(logrus.Fields{
		"session_id": info.ID,
		"package":    info.Package,
		"policy":     info.Policy,
	}).Info("Session started")
}

// OnEvent logs the dispatched event
func (r *LoggerReporter) OnEvent(tick int, ev event.Event, state *ui.State) {
	fields := logrus.Fields{"tick": tick, "event": ev.Describe(state)}
	if state != nil {
		fields["activity"] = state.ShortActivity()
	}
	r.logger.WithFields(fields).Debug("Event dispatched")
}

// OnTickError logs an abandoned tick
func (r *LoggerReporter) OnTickError(tick int, err error) {
	r.logger.WithFields(logrus.Fields{"tick": tick, "error": err}).Error("Tick abandoned")
}

// OnFinding logs a data-loss finding
func (r *LoggerReporter) OnFinding(f *oracle.Finding) {
	r.logger.WithFields(logrus.Fields{
		"category":    string(f.Category),
		"description": f.Description,
		"event":       f.Event,
	}).Warn("Data loss detected")
}

// OnFatal logs a fatal exception
func (r *LoggerReporter) OnFatal(exception string) {
	r.logger.WithField("exception", exception).Error("Fatal exception")
}

// OnSessionEnd logs the session totals
func (r *LoggerReporter) OnSessionEnd(s Summary) {
	r.logger.WithFields(logrus.Fields{
		"events":      s.Events,
		"errors":      s.Errors,
		"states":      s.States,
		"transitions": s.Transitions,
		"duration":    s.Duration,
	}).Info("Session finished")
}

// PrometheusReporter exports telemetry as Prometheus metrics
type PrometheusReporter struct {
	events     *prometheus.CounterVec
	findings   *prometheus.CounterVec
	fatal      prometheus.Counter
	tickErrors prometheus.Counter
	running    prometheus.Gauge
	states     prometheus.Gauge
	duration   prometheus.Gauge
}

// NewPrometheusReporter registers the exploration metrics with reg
func NewPrometheusReporter(reg prometheus.Registerer) *PrometheusReporter {
	f := promauto.With(reg)
	return &PrometheusReporter{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dld",
			Name:      "events_dispatched_total",
			Help:      "Events dispatched to the device, by kind.",
		}, []string{"kind"}),
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dld",
			Name:      "data_loss_findings_total",
			Help:      "Data-loss findings, by category.",
		}, []string{"category"}),
		fatal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dld",
			Name:      "fatal_exceptions_total",
			Help:      "Fatal exceptions thrown by the app under test.",
		}),
		tickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dld",
			Name:      "tick_errors_total",
			Help:      "Ticks abandoned because of an error.",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dld",
			Name:      "session_running",
			Help:      "1 while a session is running.",
		}),
		states: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dld",
			Name:      "utg_states",
			Help:      "States in the UI transition graph at session end.",
		}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dld",
			Name:      "session_duration_seconds",
			Help:      "Duration of the last finished session.",
		}),
	}
}

func (r *PrometheusReporter) OnSessionStart(SessionInfo) { r.running.Set(1) }

func (r *PrometheusReporter) OnEvent(_ int, ev event.Event, _ *ui.State) {
	r.events.WithLabelValues(string(event.Unwrap(ev).Kind())).Inc()
}

func (r *PrometheusReporter) OnTickError(int, error) { r.tickErrors.Inc() }

func (r *PrometheusReporter) OnFinding(f *oracle.Finding) {
	r.findings.WithLabelValues(string(f.Category)).Inc()
}

func (r *PrometheusReporter) OnFatal(string) { r.fatal.Inc() }

func (r *PrometheusReporter) OnSessionEnd(s Summary) {
	r.running.Set(0)
	r.states.Set(float64(s.States))
	r.duration.Set(s.Duration.Seconds())
}
