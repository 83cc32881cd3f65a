/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: manual.go
Description: Manual and none policies. Manual launches the app once and then lets a human
drive while the graph keeps recording; none sends nothing.
*/

package policy

import (
	"context"

	"github.com/kleascm/dld/pkg/event"
)

// ManualPolicy records a human-driven session
type ManualPolicy struct {
	*Session
	started bool
}

// NewManualPolicy creates a manual policy
func NewManualPolicy(s *Session) *ManualPolicy {
	return &ManualPolicy{Session: s}
}

// Name returns the policy name
func (p *ManualPolicy) Name() string { return NameManual }

// NextEvent starts the app on the first tick and yields manual markers afterwards
func (p *ManualPolicy) NextEvent(ctx context.Context) (event.Event, error) {
	state, err := p.observe(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return p.nullState(ctx)
	}
	if !p.started {
		p.started = true
		p.Logger.Info("Trying to start the app")
		return p.remember(event.NewIntentEvent(p.App.StartIntent())), nil
	}
	return p.remember(&event.ManualEvent{}), nil
}

// NonePolicy generates no events
type NonePolicy struct{}

// Name returns the policy name
func (NonePolicy) Name() string { return NameNone }

// NextEvent always returns nil
func (NonePolicy) NextEvent(context.Context) (event.Event, error) { return nil, nil }
