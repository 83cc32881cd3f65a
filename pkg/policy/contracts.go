/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: contracts.go
Description: Collaborator contracts of the exploration policies. Devices and app descriptors
are reached only through these interfaces; adb-backed implementations live in pkg/mobile and
tests use in-memory fakes.
*/

package policy

import (
	"context"
	"errors"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// Device is the snapshot provider and event sink of the device under test
type Device interface {
	// CurrentState returns a fresh snapshot, or nil when the UI could not be read
	CurrentState(ctx context.Context) (*ui.State, error)
	// IsForeground reports whether the package owns the foreground activity
	IsForeground(ctx context.Context, pkg string) (bool, error)
	// Orientation returns the current screen orientation index (0 is portrait)
	Orientation(ctx context.Context) (int, error)
	// CaptureScreenshot returns a PNG capture of the screen
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	// EnableRotation allows the screen to follow orientation changes
	EnableRotation(ctx context.Context) error
	// SetOrientation forces the screen orientation
	SetOrientation(ctx context.Context, angle int) error
	// Send dispatches an event and returns once the device accepted it
	Send(ctx context.Context, ev event.Event) error
}

// App describes the application under test
type App interface {
	PackageName() string
	StartIntent() string
	StopIntent() string
	// Activities lists the fully-qualified activity names declared by the app
	Activities() []string
}

// Ranker reorders candidate events, e.g. with a learned model of human interaction
type Ranker interface {
	Rank(ctx context.Context, state *ui.State, candidates []event.Event) ([]event.Event, error)
}

// Prober is implemented by policies that need hooks around each dispatched event
type Prober interface {
	// BeforeDispatch runs right before ev is sent to the device
	BeforeDispatch(ctx context.Context, ev event.Event) error
	// AfterDispatch runs once ev settled; tick is the zero-based event index
	AfterDispatch(ctx context.Context, ev event.Event, tick int) error
	// Finish flushes session results; generated is the number of events dispatched
	Finish(ctx context.Context, generated int) error
}

// Policy picks the next event of an exploration session
type Policy interface {
	Name() string
	// NextEvent returns the event to dispatch, or nil when the tick has nothing to send
	NextEvent(ctx context.Context) (event.Event, error)
}

var (
	// ErrInterrupted ends a session that has nothing left to do
	ErrInterrupted = errors.New("input interrupted")
	// ErrAppCannotStart ends a session whose app could not be brought up
	ErrAppCannotStart = errors.New("the app cannot be started")
)

// IsTerminal reports whether err must end the session
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, ErrAppCannotStart) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
