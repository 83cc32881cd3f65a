/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: explorer.go
Description: Exploration engine. Drives the tick loop of a session: bootstrap, policy decision,
dispatch, settle, probe hooks, recording and telemetry. A log watcher runs next to the loop
and stops with it. Per-tick errors abandon the tick; terminal signals end the session, which
then saves the transition graph and closes the policy exactly once.
*/

package explorer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/policy"
)

// Config controls the tick loop
type Config struct {
	SessionID     string
	EventCount    int           // events to dispatch, negative runs until interrupted
	EventInterval time.Duration // minimum spacing between ticks
	SettleDelay   time.Duration // wait after launching the app or changing orientation
	Orientation   int           // orientation forced at bootstrap
	OutputDir     string        // events/ and utg files, empty disables both
}

// Watcher runs next to the tick loop until its context ends
type Watcher interface {
	Run(ctx context.Context) error
}

// Status describes the engine state
type Status struct {
	Running   bool
	Tick      int
	Generated int
	Errors    int
	Policy    string
	Phase     string
	StartTime time.Time
}

// Explorer runs one exploration session
type Explorer struct {
	config    Config
	session   *policy.Session
	policy    policy.Policy
	bootstrap *policy.Bootstrap
	watcher   Watcher
	reporters Reporters
	recorder  *Recorder
	limiter   *rate.Limiter
	logger    *logrus.Logger

	running   atomic.Bool
	phase     atomic.Int32
	tick      atomic.Int64
	generated atomic.Int64
	errors    atomic.Int64

	mu        sync.Mutex
	startTime time.Time
	finished  bool
}

// Option customizes an Explorer
type Option func(*Explorer)

// WithWatcher runs w alongside the tick loop
func WithWatcher(w Watcher) Option {
	return func(e *Explorer) { e.watcher = w }
}

// WithReporters registers telemetry reporters
func WithReporters(rs ...Reporter) Option {
	return func(e *Explorer) { e.reporters = append(e.reporters, rs...) }
}

// New creates an explorer for a policy built on session
func New(config Config, session *policy.Session, p policy.Policy, opts ...Option) (*Explorer, error) {
	if session == nil || p == nil {
		return nil, fmt.Errorf("explorer needs a session and a policy")
	}
	e := &Explorer{
		config:  config,
		session: session,
		policy:  p,
		logger:  session.Logger,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	if config.EventInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(config.EventInterval), 1)
	}
	if needsBootstrap(p) {
		e.bootstrap = policy.NewBootstrap(session.Device, session.App, config.Orientation)
	} else {
		e.phase.Store(int32(policy.PhaseRunning))
	}
	for _, opt := range opts {
		opt(e)
	}
	if config.OutputDir != "" {
		rec, err := NewRecorder(filepath.Join(config.OutputDir, "events"))
		if err != nil {
			return nil, err
		}
		e.recorder = rec
	}
	return e, nil
}

// needsBootstrap reports whether the policy expects the fixed opening ticks
func needsBootstrap(p policy.Policy) bool {
	switch p.Name() {
	case policy.NameManual, policy.NameNone:
		return false
	}
	return true
}

// Status returns a snapshot of the engine state
func (e *Explorer) Status() Status {
	e.mu.Lock()
	start := e.startTime
	e.mu.Unlock()
	return Status{
		Running:   e.running.Load(),
		Tick:      int(e.tick.Load()),
		Generated: int(e.generated.Load()),
		Errors:    int(e.errors.Load()),
		Policy:    e.policy.Name(),
		Phase:     policy.Phase(e.phase.Load()).String(),
		StartTime: start,
	}
}

// HandleFatal forwards a fatal exception of the app to the policy and the reporters.
// It is safe to call from any goroutine.
func (e *Explorer) HandleFatal(exception string) {
	if r, ok := e.policy.(interface{ ReportFatal(string) }); ok {
		r.ReportFatal(exception)
	}
	e.reporters.OnFatal(exception)
}

// Run executes the session until the event budget is spent, the policy ends it or ctx is
// cancelled. Only an app that cannot be started is reported as an error.
func (e *Explorer) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("explorer is already running")
	}
	defer e.running.Store(false)

	start := time.Now()
	e.mu.Lock()
	e.startTime = start
	e.mu.Unlock()
	e.reporters.OnSessionStart(SessionInfo{
		ID:        e.config.SessionID,
		Package:   e.session.App.PackageName(),
		Policy:    e.policy.Name(),
		StartTime: start,
	})

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	var loopErr error
	g.Go(func() error {
		defer stop()
		loopErr = e.loop(loopCtx)
		return nil
	})
	if e.watcher != nil {
		g.Go(func() error {
			if err := e.watcher.Run(loopCtx); err != nil {
				e.logger.WithError(err).Warn("Log watcher stopped")
			}
			return nil
		})
	}
	g.Wait()

	// The session is flushed even when ctx is already cancelled
	finishErr := e.finish(context.WithoutCancel(ctx), start)
	if loopErr != nil {
		return loopErr
	}
	return finishErr
}

func (e *Explorer) loop(ctx context.Context) error {
	for tick := 0; e.config.EventCount < 0 || tick < e.config.EventCount; tick++ {
		e.tick.Store(int64(tick))
		if ctx.Err() != nil {
			e.logger.Info("Session interrupted")
			return nil
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return nil
		}
		err := e.step(ctx, tick)
		switch {
		case err == nil:
		case errors.Is(err, policy.ErrAppCannotStart):
			e.logger.WithError(err).Error("Session aborted")
			return err
		case policy.IsTerminal(err):
			e.logger.WithError(err).Info("Session ended")
			return nil
		default:
			e.errors.Add(1)
			e.logger.WithFields(logrus.Fields{
				"tick":   tick,
				"policy": e.policy.Name(),
				"error":  err,
			}).Error("Tick abandoned")
			e.reporters.OnTickError(tick, err)
		}
	}
	return nil
}

// step runs one tick
func (e *Explorer) step(ctx context.Context, tick int) error {
	ev, err := e.next(ctx)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	// Snapshot the decision state before the hooks move the session on
	state := e.session.CurrentState()
	prober, _ := e.policy.(policy.Prober)

	if prober != nil {
		if err := prober.BeforeDispatch(ctx, ev); err != nil {
			return fmt.Errorf("before dispatch: %w", err)
		}
	}
	if err := e.session.Device.Send(ctx, ev); err != nil {
		return fmt.Errorf("failed to send %s: %w", ev.Describe(state), err)
	}
	e.generated.Add(1)
	if needsSettle(ev) {
		if err := sleep(ctx, e.config.SettleDelay); err != nil {
			return err
		}
	}
	if prober != nil {
		if err := prober.AfterDispatch(ctx, ev, tick); err != nil {
			return fmt.Errorf("after dispatch: %w", err)
		}
	}

	if e.recorder != nil {
		tag := time.Now().Format("2006-01-02_150405")
		if state != nil && state.Tag != "" {
			tag = state.Tag
		}
		if err := e.recorder.Record(tick, tag, ev); err != nil {
			e.logger.WithError(err).Warn("Event not recorded")
		}
	}
	e.reporters.OnEvent(tick, ev, state)
	return nil
}

// next returns the bootstrap event of the tick or asks the policy
func (e *Explorer) next(ctx context.Context) (event.Event, error) {
	if e.bootstrap != nil && e.bootstrap.Phase() != policy.PhaseRunning {
		ev, ok, err := e.bootstrap.Next(ctx)
		e.phase.Store(int32(e.bootstrap.Phase()))
		if err != nil {
			return nil, err
		}
		if ok {
			return ev, nil
		}
	}
	return e.policy.NextEvent(ctx)
}

func needsSettle(ev event.Event) bool {
	switch event.Unwrap(ev).(type) {
	case *event.IntentEvent, *event.SetOrientationEvent:
		return true
	}
	return false
}

// finish saves the graph and closes the policy once
func (e *Explorer) finish(ctx context.Context, start time.Time) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return nil
	}
	e.finished = true
	e.mu.Unlock()

	var errs []error
	if e.config.OutputDir != "" {
		if err := e.session.Graph.Save(e.config.OutputDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to save UTG: %w", err))
		}
	}
	generated := int(e.generated.Load())
	if prober, ok := e.policy.(policy.Prober); ok {
		if err := prober.Finish(ctx, generated); err != nil {
			errs = append(errs, fmt.Errorf("failed to finish policy: %w", err))
		}
	}
	e.reporters.OnSessionEnd(Summary{
		Events:      generated,
		Errors:      int(e.errors.Load()),
		States:      e.session.Graph.NumNodes(),
		Transitions: e.session.Graph.NumEdges(),
		Duration:    time.Since(start),
	})
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
