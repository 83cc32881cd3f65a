/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dataloss.go
Description: Data-loss policy. Each new abstract state of an activity gets the compound probe
(fill every field, rotate twice, scroll to the bottom); outside the probe events are picked
epsilon-greedily from the abstract state ledger. Every rotation is checked by the oracle and
every tick after the bootstrap lands in the HTML report.
*/

package policy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/abstract"
	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/report"
	"github.com/kleascm/dld/pkg/ui"
)

// DataLoss defaults
const (
	DefaultEpsilon         = 0.1
	DefaultScrollFullDownY = 1600
	// reportFromTick skips the HOME and start-intent ticks
	reportFromTick = 2
)

// consentWords are tapped when the app is covered by a system dialog
var consentWords = []string{"allow", "ok"}

// recoveryAction remembers which recovery was tried last
type recoveryAction int

const (
	recoveryNone recoveryAction = iota
	recoveryIntent
	recoveryBack
)

// DataLossOptions configure a data-loss session
type DataLossOptions struct {
	Epsilon         float64
	ScrollFullDownY int
	OutputDir       string         // artifacts go under <OutputDir>/dataloss; empty disables them
	Filter          *ViewFilter    // nil keeps every candidate
	Oracle          *oracle.Oracle // nil selects the default threshold
	Report          *report.Writer // nil disables the HTML report
	OnFinding       func(*oracle.Finding)
}

// DataLossStats are the session counters
type DataLossStats struct {
	FillUI           int
	DoubleRotations  int
	DataLoss         int
	Fatal            int
	ActivityCoverage int
	ActivityTested   int
}

// rowContext is what a report row needs to know about the current tick
type rowContext struct {
	activity string
	ev       event.Event
	state    *ui.State
	abstract string
}

// DataLossPolicy looks for state lost across screen rotations
type DataLossPolicy struct {
	*Session
	opts DataLossOptions

	activities map[string]bool // short names declared by the app
	registry   *abstract.Registry
	visited    map[string]bool
	tested     map[string]bool

	filling         bool
	lastRecovery    recoveryAction
	stepsOutsideApp int
	current         *abstract.State
	shotBefore      *oracle.Screenshot
	started         time.Time

	mu    sync.Mutex // guards stats and row for the logcat watcher
	stats DataLossStats
	row   rowContext
}

// NewDataLossPolicy creates a data-loss policy
func NewDataLossPolicy(s *Session, opts DataLossOptions) *DataLossPolicy {
	if opts.Epsilon < 0 || opts.Epsilon > 1 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.ScrollFullDownY <= 0 {
		opts.ScrollFullDownY = DefaultScrollFullDownY
	}
	if opts.Oracle == nil {
		opts.Oracle = oracle.New(oracle.DefaultThreshold)
	}
	activities := make(map[string]bool)
	for _, a := range s.App.Activities() {
		activities[ui.ShortName(a)] = true
	}
	return &DataLossPolicy{
		Session:    s,
		opts:       opts,
		activities: activities,
		registry:   abstract.NewRegistry(),
		visited:    make(map[string]bool),
		tested:     make(map[string]bool),
		started:    time.Now(),
	}
}

// Name returns the policy name
func (p *DataLossPolicy) Name() string { return NameDataLoss }

// Stats returns a copy of the session counters
func (p *DataLossPolicy) Stats() DataLossStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Registry exposes the per-activity abstract states
func (p *DataLossPolicy) Registry() *abstract.Registry { return p.registry }

// NextEvent picks the next event of the probe or of the epsilon-greedy walk
func (p *DataLossPolicy) NextEvent(ctx context.Context) (event.Event, error) {
	state, err := p.Device.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read device state: %w", err)
	}
	p.Session.current = state
	if state == nil {
		return p.nullState(ctx)
	}
	activity, err := p.foregroundActivity(ctx)
	if err != nil {
		return nil, err
	}
	p.discover(activity)
	if p.activities[activity] && !p.visited[activity] {
		p.visited[activity] = true
		p.mu.Lock()
		p.stats.ActivityCoverage = p.coverage(p.visited)
		p.mu.Unlock()
	}

	ev, err := p.decide(activity)
	if err != nil {
		return nil, err
	}
	return p.remember(ev), nil
}

// foregroundActivity waits for a snapshot with a foreground activity and returns its
// short name. A missing activity is a transient glitch, so this retries until ctx ends.
func (p *DataLossPolicy) foregroundActivity(ctx context.Context) (string, error) {
	for p.Session.current.ForegroundActivity == "" {
		p.Logger.Warn("The foreground activity is unknown, waiting")
		if err := sleep(ctx, p.Limits.RetryDelay); err != nil {
			return "", err
		}
		state, err := p.Device.CurrentState(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read device state: %w", err)
		}
		if state != nil {
			p.Session.current = state
		}
	}
	return p.Session.current.ShortActivity(), nil
}

// discover adds a foreground activity of the app that the descriptor did not declare.
// Apps resolved from the package name alone start with few or no known activities.
func (p *DataLossPolicy) discover(activity string) {
	if p.activities[activity] {
		return
	}
	if !strings.HasPrefix(p.Session.current.ForegroundActivity, p.App.PackageName()+"/") {
		return
	}
	p.activities[activity] = true
	p.Logger.WithFields(logrus.Fields{"policy": p.Name(), "activity": activity}).Info("Activity discovered")
	p.mu.Lock()
	p.stats.ActivityCoverage = p.coverage(p.visited)
	p.stats.ActivityTested = p.coverage(p.tested)
	p.mu.Unlock()
}

func (p *DataLossPolicy) decide(activity string) (event.Event, error) {
	state := p.Session.current
	log := p.Logger.WithFields(logrus.Fields{"policy": p.Name(), "activity": activity})

	if !p.activities[activity] && p.stepsOutsideApp <= p.Limits.MaxStepsOutside {
		p.stepsOutsideApp++
		if v := consentView(state, consentWords); v != nil {
			log.WithField("text", v.Text).Info("Tapping consent button")
			return event.NewTouchEvent(*v), nil
		}
	}

	switch Classify(state.ActivityDepth(p.App.PackageName())) {
	case Absent:
		if p.lastRecovery != recoveryIntent {
			log.Info("The app is not in the activity stack, starting it")
			p.lastRecovery = recoveryIntent
			return event.NewIntentEvent(p.App.StartIntent()), nil
		}
		log.Warn("Start intent did not bring the app up, going back")
		p.lastRecovery = recoveryBack
		return event.NewKeyEvent(event.KeyBack), nil
	case Background:
		if p.lastRecovery != recoveryBack {
			log.Info("The app is not on top of the activity stack, going back")
			p.lastRecovery = recoveryBack
			return event.NewKeyEvent(event.KeyBack), nil
		}
		log.Warn("BACK did not bring the app up, sending start intent")
		p.lastRecovery = recoveryIntent
		return event.NewIntentEvent(p.App.StartIntent()), nil
	default:
		p.lastRecovery = recoveryNone
		p.stepsOutsideApp = 0
	}

	candidates, err := p.opts.Filter.Apply(event.PossibleEvents(state))
	if err != nil {
		return nil, err
	}
	if !p.registry.Known(activity) {
		log.Info("New activity found")
		p.registry.Touch(activity)
	}
	abs := abstract.New(candidates)
	if cached := p.registry.Lookup(activity, abs); cached != nil {
		abs = cached
	}
	p.current = abs
	p.setRowContext(activity, abs)
	candidates = append(candidates, event.NewDoubleRotationEvent())

	switch p.lastEvent.(type) {
	case *event.FillUIEvent:
		return event.NewDoubleRotationEvent(), nil
	case *event.DoubleRotationEvent:
		if p.filling {
			p.filling = false
			return event.NewScrollFullDown(p.opts.ScrollFullDownY), nil
		}
	}

	if fill := p.tryFill(activity, abs); fill != nil {
		log.WithField("abstract_state", abs.Fingerprint()).Info("New abstract state, filling UI")
		return fill, nil
	}

	codes := abs.UntriggeredCodes()
	if p.Rand.Float64() < p.opts.Epsilon {
		codes = abs.AllCodes()
	}
	winner := codes[p.Rand.Intn(len(codes))]
	for _, ev := range candidates {
		if ev.UniqueCode() == winner {
			abs.SetTriggered(ev)
			return ev, nil
		}
	}
	return nil, fmt.Errorf("no candidate for event code %s", winner)
}

// tryFill registers a first-seen abstract state and returns the fill probe for it
func (p *DataLossPolicy) tryFill(activity string, abs *abstract.State) event.Event {
	if !p.activities[activity] || p.Session.current.Views == nil {
		return nil
	}
	if !p.registry.Register(activity, abs) {
		return nil
	}
	p.filling = true
	p.tested[activity] = true
	p.mu.Lock()
	p.stats.FillUI++
	p.stats.ActivityTested = p.coverage(p.tested)
	p.mu.Unlock()
	return event.NewFillUIEvent(p.Session.current.Views)
}

func (p *DataLossPolicy) coverage(set map[string]bool) int {
	if len(p.activities) == 0 {
		return 0
	}
	return int(math.Round(float64(len(set)) * 100 / float64(len(p.activities))))
}

// BeforeDispatch captures the screen before a rotation
func (p *DataLossPolicy) BeforeDispatch(ctx context.Context, ev event.Event) error {
	p.shotBefore = nil
	if _, ok := event.Unwrap(ev).(*event.DoubleRotationEvent); !ok {
		return nil
	}
	p.mu.Lock()
	p.stats.DoubleRotations++
	p.mu.Unlock()
	p.shotBefore = p.capture(ctx)
	return nil
}

// AfterDispatch reads the settled state, runs the oracle after a rotation and appends the
// tick to the report
func (p *DataLossPolicy) AfterDispatch(ctx context.Context, ev event.Event, tick int) error {
	var shotAfter *oracle.Screenshot
	rotation := false
	if _, ok := event.Unwrap(ev).(*event.DoubleRotationEvent); ok {
		rotation = true
		shotAfter = p.capture(ctx)
	}

	before := p.Session.current
	after, err := p.Device.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read device state: %w", err)
	}
	p.Session.current = after
	if after != nil {
		p.Graph.AddTransition(ev, before, after)
	}
	stamp := time.Now().Format(report.TimeLayout)

	if rotation && before != nil && after != nil {
		finding, err := p.opts.Oracle.Check(ev.Describe(before), before, after, p.shotBefore, shotAfter)
		if err != nil {
			p.Logger.WithError(err).Warn("Rotation check incomplete")
		}
		if finding != nil {
			p.onFinding(stamp, finding, oracle.Evidence{Before: before, After: after, ShotBefore: p.shotBefore, ShotAfter: shotAfter})
			return p.appendRow(report.Row{
				Time:          stamp,
				Result:        report.ResultException,
				ExceptionType: oracle.ExceptionType,
				ExceptionMsg:  finding.Description,
			}, ev, before)
		}
	}

	if tick < reportFromTick {
		return nil
	}
	return p.appendRow(report.Row{Time: stamp, Result: report.ResultOk}, ev, before)
}

func (p *DataLossPolicy) onFinding(stamp string, f *oracle.Finding, evidence oracle.Evidence) {
	p.filling = false
	p.mu.Lock()
	p.stats.DataLoss++
	p.mu.Unlock()

	p.Logger.WithFields(logrus.Fields{
		"category": string(f.Category),
		"event":    f.Event,
	}).Warn(f.Message())
	if p.opts.OutputDir != "" {
		if dir, err := oracle.SaveArtifacts(p.opts.OutputDir, stamp, f, evidence); err != nil {
			p.Logger.WithError(err).Warn("Failed to save data loss artifacts")
		} else {
			p.Logger.WithField("dir", dir).Debug("Data loss artifacts saved")
		}
	}
	if p.opts.OnFinding != nil {
		p.opts.OnFinding(f)
	}
}

func (p *DataLossPolicy) capture(ctx context.Context) *oracle.Screenshot {
	data, err := p.Device.CaptureScreenshot(ctx)
	if err != nil {
		p.Logger.WithError(err).Warn("Screenshot capture failed")
		return nil
	}
	shot, err := oracle.DecodeScreenshot(data)
	if err != nil {
		p.Logger.WithError(err).Warn("Screenshot decoding failed")
		return nil
	}
	return shot
}

func (p *DataLossPolicy) setRowContext(activity string, abs *abstract.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.row.activity = activity
	p.row.abstract = abs.Fingerprint()
}

// appendRow fills the tick columns and writes the row
func (p *DataLossPolicy) appendRow(row report.Row, ev event.Event, on *ui.State) error {
	p.mu.Lock()
	p.row.ev = ev
	p.row.state = on
	if row.Activity == "" {
		row.Activity = p.row.activity
		if row.Activity == "" && on != nil {
			row.Activity = on.ShortActivity()
		}
	}
	row.AbstractState = p.row.abstract
	p.mu.Unlock()

	row.Event = ev.Describe(on)
	row.ViewBounds = report.FormatBounds(ev.AffectedViewBounds())
	if p.opts.Report == nil {
		return nil
	}
	return p.opts.Report.Append(row)
}

// ReportFatal records a fatal exception seen in the device log. It is called from the
// log watcher goroutine.
func (p *DataLossPolicy) ReportFatal(exception string) {
	p.mu.Lock()
	p.stats.Fatal++
	rc := p.row
	p.mu.Unlock()

	p.Logger.WithField("exception", exception).Warn("Fatal exception thrown by the app")
	row := report.Row{
		Time:          time.Now().Format(report.TimeLayout),
		Result:        report.ResultException,
		Activity:      rc.activity,
		AbstractState: rc.abstract,
		ExceptionType: exception,
	}
	if rc.ev != nil {
		row.Event = rc.ev.Describe(rc.state)
		row.ViewBounds = report.FormatBounds(rc.ev.AffectedViewBounds())
	}
	if p.opts.Report == nil {
		return
	}
	if err := p.opts.Report.Append(row); err != nil {
		p.Logger.WithError(err).Warn("Failed to report fatal exception")
	}
}

// Finish writes the report tail
func (p *DataLossPolicy) Finish(ctx context.Context, generated int) error {
	if p.opts.Report == nil {
		return nil
	}
	stats := p.Stats()
	return p.opts.Report.Close(report.Summary{
		ActivityCoverage: stats.ActivityCoverage,
		ActivityTested:   stats.ActivityTested,
		Events:           generated,
		FillUI:           stats.FillUI,
		DoubleRotation:   stats.DoubleRotations,
		DataLoss:         stats.DataLoss,
		Fatal:            stats.Fatal,
		Start:            p.started.Format(report.TimeLayout),
		End:              time.Now().Format(report.TimeLayout),
	})
}
