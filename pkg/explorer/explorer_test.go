/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: explorer_test.go
Description: Tests for the exploration engine: a full greedy session over a scripted device,
dispatch hooks on every tick, abandoned ticks, terminal signals, cancellation and the log watcher.
*/

package explorer_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/explorer"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/policy"
	"github.com/kleascm/dld/pkg/policy/policytest"
	"github.com/kleascm/dld/pkg/ui"
)

const launcher = "com.android.launcher3/.Launcher"

func newSession(dev *policytest.Device, app *policytest.App) *policy.Session {
	limits := policy.DefaultLimits()
	limits.NullStateDelay = 0
	limits.RetryDelay = 0
	return policy.NewSession(dev, app, limits, nil, rand.New(rand.NewSource(1)))
}

// recordingReporter keeps every notification
type recordingReporter struct {
	mu       sync.Mutex
	started  []explorer.SessionInfo
	ticks    []int
	errors   []error
	findings []*oracle.Finding
	fatal    []string
	summary  *explorer.Summary
}

func (r *recordingReporter) OnSessionStart(info explorer.SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *recordingReporter) OnEvent(tick int, _ event.Event, _ *ui.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
}

func (r *recordingReporter) OnTickError(_ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) OnFinding(f *oracle.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, f)
}

func (r *recordingReporter) OnFatal(exception string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = append(r.fatal, exception)
}

func (r *recordingReporter) OnSessionEnd(s explorer.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &s
}

// hookPolicy sends BACK forever and counts its hooks
type hookPolicy struct {
	before, after, finished int
	afterTicks              []int
	generated               int
	fatal                   []string
}

func (p *hookPolicy) Name() string { return "hooks" }

func (p *hookPolicy) NextEvent(context.Context) (event.Event, error) {
	return event.NewKeyEvent(event.KeyBack), nil
}

func (p *hookPolicy) BeforeDispatch(context.Context, event.Event) error {
	p.before++
	return nil
}

func (p *hookPolicy) AfterDispatch(_ context.Context, _ event.Event, tick int) error {
	p.after++
	p.afterTicks = append(p.afterTicks, tick)
	return nil
}

func (p *hookPolicy) Finish(_ context.Context, generated int) error {
	p.finished++
	p.generated = generated
	return nil
}

func (p *hookPolicy) ReportFatal(exception string) { p.fatal = append(p.fatal, exception) }

func greedyDevice() (*policytest.Device, ui.View) {
	next := policytest.Button(1, "Next")
	dev := policytest.NewDevice("launcher", map[string]*ui.State{
		"launcher": policytest.Foreign(launcher, false),
		"home":     policytest.Screen("MainActivity", next),
		"detail":   policytest.Screen("DetailActivity"),
	})
	dev.Start = "home"
	dev.Route("home", event.NewTouchEvent(next), "detail")
	dev.Route("detail", event.NewKeyEvent(event.KeyBack), "home")
	return dev, next
}

// TestExplorerGreedySession tests a complete session from bootstrap to the saved graph
func TestExplorerGreedySession(t *testing.T) {
	dev, next := greedyDevice()
	dev.Angle = 1
	app := policytest.NewApp("MainActivity", "DetailActivity")
	s := newSession(dev, app)
	p, err := policy.New(policy.NameGreedyDFS, s, policy.Options{})
	require.NoError(t, err)

	out := t.TempDir()
	rec := &recordingReporter{}
	reg := prometheus.NewRegistry()
	e, err := explorer.New(explorer.Config{
		SessionID:  "session-1",
		EventCount: 7,
		OutputDir:  out,
	}, s, p, explorer.WithReporters(rec, explorer.NewPrometheusReporter(reg)))
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background()))

	var codes []string
	for _, ev := range dev.Events() {
		codes = append(codes, ev.UniqueCode())
	}
	assert.Equal(t, []string{
		event.NewKeyEvent(event.KeyHome).UniqueCode(),
		event.NewIntentEvent(app.StartIntent()).UniqueCode(),
		event.NewSetOrientationEvent(0).UniqueCode(),
		event.NewTouchEvent(next).UniqueCode(),
		event.NewKeyEvent(event.KeyBack).UniqueCode(),
		event.NewKeyEvent(event.KeyBack).UniqueCode(),
		event.NewIntentEvent(app.StopIntent()).UniqueCode(),
	}, codes)
	assert.Equal(t, 0, dev.Angle)
	assert.Equal(t, 1, dev.Rotations)

	status := e.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 7, status.Generated)
	assert.Equal(t, policy.PhaseRunning.String(), status.Phase)

	require.Len(t, rec.started, 1)
	assert.Equal(t, "session-1", rec.started[0].ID)
	assert.Equal(t, policytest.Package, rec.started[0].Package)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, rec.ticks)
	require.NotNil(t, rec.summary)
	assert.Equal(t, 7, rec.summary.Events)
	assert.Equal(t, 2, rec.summary.States)

	entries, err := os.ReadDir(filepath.Join(out, "events"))
	require.NoError(t, err)
	assert.Len(t, entries, 7)
	data, err := os.ReadFile(filepath.Join(out, "events", "event_000003.json"))
	require.NoError(t, err)
	recorded, err := event.UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, event.NewTouchEvent(next).UniqueCode(), recorded.UniqueCode())
	assert.FileExists(t, filepath.Join(out, "utg.dot"))
	assert.FileExists(t, filepath.Join(out, "utg.json"))

	expected := `
# HELP dld_events_dispatched_total Events dispatched to the device, by kind.
# TYPE dld_events_dispatched_total counter
dld_events_dispatched_total{kind="intent"} 2
dld_events_dispatched_total{kind="key"} 3
dld_events_dispatched_total{kind="set_orientation"} 1
dld_events_dispatched_total{kind="touch"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dld_events_dispatched_total"))
}

// TestExplorerReplaysRecording tests that a recorded session can be replayed
func TestExplorerReplaysRecording(t *testing.T) {
	dev, next := greedyDevice()
	s := newSession(dev, policytest.NewApp("MainActivity", "DetailActivity"))
	p, err := policy.New(policy.NameGreedyDFS, s, policy.Options{})
	require.NoError(t, err)
	out := t.TempDir()
	e, err := explorer.New(explorer.Config{EventCount: 4, OutputDir: out}, s, p)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	replayDev, _ := greedyDevice()
	rs := newSession(replayDev, policytest.NewApp("MainActivity", "DetailActivity"))
	rp, err := policy.New(policy.NameReplay, rs, policy.Options{ReplayDir: out})
	require.NoError(t, err)
	re, err := explorer.New(explorer.Config{EventCount: -1}, rs, rp)
	require.NoError(t, err)
	require.NoError(t, re.Run(context.Background()), "running out of records ends the session")

	// HOME and the start intent come from the bootstrap, the two decisions from the records
	events := replayDev.Events()
	require.Len(t, events, 4)
	replayed, ok := events[2].(*event.ScriptReplayEvent)
	require.True(t, ok)
	assert.Equal(t, "event_000002.json", replayed.Source)
	assert.Equal(t, event.NewTouchEvent(next).UniqueCode(), replayed.Event.UniqueCode())
	assert.True(t, event.IsKey(event.Unwrap(events[3]), event.KeyBack))
	assert.Equal(t, "home", replayDev.Current)
}

// TestExplorerDispatchHooks tests that hooks run on every tick, bootstrap included
func TestExplorerDispatchHooks(t *testing.T) {
	dev, _ := greedyDevice()
	dev.Angle = 1
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p := &hookPolicy{}
	e, err := explorer.New(explorer.Config{EventCount: 5}, s, p)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background()))

	assert.Equal(t, 5, p.before)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, p.afterTicks)
	assert.Equal(t, 1, p.finished)
	assert.Equal(t, 5, p.generated)
}

// TestExplorerTickErrors tests that failing ticks are abandoned without ending the session
func TestExplorerTickErrors(t *testing.T) {
	dev, _ := greedyDevice()
	dev.SendErr = errors.New("device offline")
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p := &hookPolicy{}
	rec := &recordingReporter{}
	e, err := explorer.New(explorer.Config{EventCount: 3}, s, p, explorer.WithReporters(rec))
	require.NoError(t, err)

	require.NoError(t, e.Run(context.Background()))
	assert.Len(t, rec.errors, 3)
	assert.Equal(t, 3, e.Status().Errors)
	assert.Zero(t, e.Status().Generated)
	assert.Zero(t, p.after)
	assert.Equal(t, 1, p.finished)
}

// TestExplorerAppCannotStart tests that an exhausted restart budget is reported
func TestExplorerAppCannotStart(t *testing.T) {
	dev := policytest.NewDevice("launcher", map[string]*ui.State{
		"launcher": policytest.Foreign(launcher, false),
	})
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p, err := policy.New(policy.NameNaiveDFS, s, policy.Options{})
	require.NoError(t, err)
	e, err := explorer.New(explorer.Config{EventCount: 50}, s, p)
	require.NoError(t, err)

	err = e.Run(context.Background())
	assert.ErrorIs(t, err, policy.ErrAppCannotStart)
	assert.Less(t, e.Status().Generated, 50)
}

// TestExplorerCancelled tests that a cancelled session still finishes once
func TestExplorerCancelled(t *testing.T) {
	dev, _ := greedyDevice()
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p := &hookPolicy{}
	ctx, cancel := context.WithCancel(context.Background())
	dev.OnSend = func(event.Event) { cancel() }

	e, err := explorer.New(explorer.Config{EventCount: -1}, s, p)
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx))

	assert.Len(t, dev.Events(), 1)
	assert.Equal(t, 1, p.finished)
	assert.Equal(t, 1, p.generated)
}

// blockingWatcher reports one fatal exception and waits for the session to end
type blockingWatcher struct {
	onFatal func(string)
	stopped chan struct{}
}

func (w *blockingWatcher) Run(ctx context.Context) error {
	w.onFatal("java.lang.RuntimeException: boom")
	<-ctx.Done()
	close(w.stopped)
	return nil
}

// TestExplorerWatcher tests that the watcher stops with the loop and fatal exceptions reach
// the policy and the reporters
func TestExplorerWatcher(t *testing.T) {
	dev, _ := greedyDevice()
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p := &hookPolicy{}
	rec := &recordingReporter{}
	w := &blockingWatcher{stopped: make(chan struct{})}

	e, err := explorer.New(explorer.Config{EventCount: 2}, s, p, explorer.WithWatcher(w), explorer.WithReporters(rec))
	require.NoError(t, err)
	w.onFatal = e.HandleFatal

	require.NoError(t, e.Run(context.Background()))
	<-w.stopped
	assert.Equal(t, []string{"java.lang.RuntimeException: boom"}, p.fatal)
	assert.Equal(t, []string{"java.lang.RuntimeException: boom"}, rec.fatal)
}

// TestExplorerRunOnce tests that a running explorer refuses a second Run
func TestExplorerRunOnce(t *testing.T) {
	dev, _ := greedyDevice()
	s := newSession(dev, policytest.NewApp("MainActivity"))
	p := &hookPolicy{}
	e, err := explorer.New(explorer.Config{EventCount: -1}, s, p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	dev.OnSend = func(event.Event) { once.Do(func() { close(started) }) }
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	<-started
	assert.Error(t, e.Run(context.Background()))
	cancel()
	assert.NoError(t, <-done)

	_, err = explorer.New(explorer.Config{}, nil, p)
	assert.Error(t, err)
}
