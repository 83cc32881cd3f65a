/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Per-session exploration state shared by the UTG-based policies: restart and
steps-outside counters, the event trace used for suffix guards, the last dispatched event and
the graph being built. Each policy instance owns its own Session so sessions stay isolated.
*/

package policy

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
	"github.com/kleascm/dld/pkg/utg"
)

// Trace flags appended to the event trace
const (
	FlagStartApp = "+start_app"
	FlagStopApp  = "+stop_app"
	FlagExplore  = "+explore"
	FlagNavigate = "+navigate"
	FlagTouch    = "+touch"
)

// Limits bound the recovery behavior of a session
type Limits struct {
	MaxRestarts         int           // restarts tolerated before fallback or abort
	MaxStepsOutside     int           // background ticks before going BACK
	MaxStepsOutsideKill int           // background ticks before stopping the app
	MaxReplayTries      int           // attempts per replayed step
	DefaultOrientation  int           // orientation forced at bootstrap
	NullStateDelay      time.Duration // wait after an unreadable snapshot
	RetryDelay          time.Duration // wait between foreground and replay retries
}

// DefaultLimits returns the stock limits
func DefaultLimits() Limits {
	return Limits{
		MaxRestarts:         5,
		MaxStepsOutside:     5,
		MaxStepsOutsideKill: 10,
		MaxReplayTries:      5,
		DefaultOrientation:  0,
		NullStateDelay:      5 * time.Second,
		RetryDelay:          2 * time.Second,
	}
}

// Position classifies where the app under test is in the activity stack
type Position int

const (
	Absent Position = iota
	Background
	Foreground
)

func (p Position) String() string {
	switch p {
	case Absent:
		return "ABSENT"
	case Background:
		return "BACKGROUND"
	default:
		return "FOREGROUND"
	}
}

// Classify maps an activity stack depth onto a position
func Classify(depth int) Position {
	switch {
	case depth < 0:
		return Absent
	case depth > 0:
		return Background
	default:
		return Foreground
	}
}

// Session holds the mutable state of one exploration session
type Session struct {
	Device      Device
	App         App
	Limits      Limits
	Graph       *utg.Graph
	Logger      *logrus.Logger
	Rand        *rand.Rand
	RandomInput bool

	restarts      int
	stepsOutside  int
	trace         string
	randomExplore bool
	firstVisit    bool

	lastEvent event.Event
	lastState *ui.State
	current   *ui.State
}

// NewSession creates a session with a fresh graph. A nil logger or random source is
// replaced by a discarding logger and a time-seeded source.
func NewSession(device Device, app App, limits Limits, logger *logrus.Logger, rng *rand.Rand) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Session{
		Device: device,
		App:    app,
		Limits: limits,
		Graph:  utg.New(),
		Logger: logger,
		Rand:   rng,
	}
}

// Trace returns the event trace accumulated so far
func (s *Session) Trace() string { return s.trace }

// Restarts returns the current restart counter
func (s *Session) Restarts() int { return s.restarts }

// RandomExplore reports whether the random fallback mode is active
func (s *Session) RandomExplore() bool { return s.randomExplore }

// LastEvent returns the last event the policy produced
func (s *Session) LastEvent() event.Event { return s.lastEvent }

// CurrentState returns the snapshot of the current tick
func (s *Session) CurrentState() *ui.State { return s.current }

// observe reads the device snapshot and records the previous transition into the graph.
// A nil snapshot is returned as is.
func (s *Session) observe(ctx context.Context) (*ui.State, error) {
	state, err := s.Device.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read device state: %w", err)
	}
	s.current = state
	if state == nil {
		return nil, nil
	}
	s.firstVisit = !s.Graph.IsStateReached(state)
	s.Graph.AddTransition(s.lastEvent, s.lastState, state)
	return state, nil
}

// remember stores the event produced on the current snapshot
func (s *Session) remember(ev event.Event) event.Event {
	s.lastEvent = ev
	s.lastState = s.current
	return ev
}

// nullState handles an unreadable snapshot: wait, then go BACK. The pending transition is
// dropped since its destination is unknown.
func (s *Session) nullState(ctx context.Context) (event.Event, error) {
	s.Logger.Warn("Device state unavailable, going back")
	if err := sleep(ctx, s.Limits.NullStateDelay); err != nil {
		return nil, err
	}
	s.lastEvent = nil
	s.lastState = nil
	return event.NewKeyEvent(event.KeyBack), nil
}

// recoverApp applies the shared recovery rules for an app that is not in the foreground.
// It returns nil when the strategy should select an event itself. With terminal set,
// exhausting the restart budget aborts the session instead of entering random mode.
func (s *Session) recoverApp(pos Position, terminal bool) (event.Event, error) {
	switch pos {
	case Absent:
		if strings.HasSuffix(s.trace, FlagStartApp+FlagStopApp) || strings.HasSuffix(s.trace, FlagStartApp) {
			s.restarts++
			s.Logger.WithField("restarts", s.restarts).Info("The app had been restarted")
		} else {
			s.restarts = 0
		}
		if s.restarts > s.Limits.MaxRestarts {
			if terminal {
				return nil, ErrAppCannotStart
			}
			if !s.randomExplore {
				s.Logger.Info("The app had been restarted too many times, entering random mode")
			}
			s.randomExplore = true
			return nil, nil
		}
		s.trace += FlagStartApp
		return event.NewIntentEvent(s.App.StartIntent()), nil

	case Background:
		s.stepsOutside++
		if s.stepsOutside <= s.Limits.MaxStepsOutside {
			return nil, nil
		}
		s.trace += FlagNavigate
		if s.stepsOutside > s.Limits.MaxStepsOutsideKill {
			return event.NewIntentEvent(s.App.StopIntent()), nil
		}
		return event.NewKeyEvent(event.KeyBack), nil

	default:
		s.stepsOutside = 0
		return nil, nil
	}
}

// stopApp ends the current cycle by stopping the app
func (s *Session) stopApp() event.Event {
	s.trace += FlagStopApp
	return event.NewIntentEvent(s.App.StopIntent())
}

// sleep waits for d or until ctx is done
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

// consentView returns the first view whose text is one of words, case-insensitively
func consentView(state *ui.State, words []string) *ui.View {
	if state == nil {
		return nil
	}
	for i := range state.Views {
		text := strings.ToLower(strings.TrimSpace(asciiOnly(state.Views[i].Text)))
		for _, w := range words {
			if text == w {
				return &state.Views[i]
			}
		}
	}
	return nil
}

func asciiOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r < 128 {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
