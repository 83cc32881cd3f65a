/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: bootstrap.go
Description: Fixed opening of every session: go HOME with rotation enabled, launch the app,
force the default orientation when needed. Policy decisions start once the bootstrap reaches
RUNNING.
*/

package policy

import (
	"context"
	"fmt"

	"github.com/kleascm/dld/pkg/event"
)

// Phase is a step of the session opening
type Phase int

const (
	PhaseInit Phase = iota
	PhaseHome
	PhaseStartApp
	PhaseSetOrientation
	PhaseRunning
)

func (p Phase) String() string {
	return [...]string{"INIT", "HOME", "START_APP", "SET_ORIENTATION", "RUNNING"}[p]
}

// Bootstrap drives the opening phases of a session
type Bootstrap struct {
	device      Device
	app         App
	orientation int
	phase       Phase
}

// NewBootstrap creates a bootstrap that forces the given orientation
func NewBootstrap(device Device, app App, orientation int) *Bootstrap {
	return &Bootstrap{device: device, app: app, orientation: orientation}
}

// Phase returns the current phase
func (b *Bootstrap) Phase() Phase { return b.phase }

// Next returns the bootstrap event of the tick and true, or false once the session is in
// RUNNING and the policy should decide.
func (b *Bootstrap) Next(ctx context.Context) (event.Event, bool, error) {
	switch b.phase {
	case PhaseInit:
		if err := b.device.EnableRotation(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to enable rotation: %w", err)
		}
		b.phase = PhaseHome
		fallthrough
	case PhaseHome:
		b.phase = PhaseStartApp
		return event.NewKeyEvent(event.KeyHome), true, nil
	case PhaseStartApp:
		b.phase = PhaseSetOrientation
		return event.NewIntentEvent(b.app.StartIntent()), true, nil
	case PhaseSetOrientation:
		b.phase = PhaseRunning
		current, err := b.device.Orientation(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read orientation: %w", err)
		}
		if current != b.orientation {
			return event.NewSetOrientationEvent(b.orientation), true, nil
		}
		return nil, false, nil
	default:
		return nil, false, nil
	}
}
