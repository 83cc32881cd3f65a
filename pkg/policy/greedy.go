/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: greedy.go
Description: Greedy search over the transition graph. Unexplored events of the current state
are tried first; otherwise the policy navigates towards a reachable state that still has
unexplored events, falls back to random events once the app refused to start too often, and
stops the app when no target is left.
*/

package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// GreedyPolicy explores events the graph has not seen yet
type GreedyPolicy struct {
	*Session
	method SearchMethod
	ranker Ranker

	navTarget *ui.State
	navSteps  int
	missed    map[string]bool
}

// NewGreedyPolicy creates a greedy search policy. ranker may be nil.
func NewGreedyPolicy(s *Session, method SearchMethod, ranker Ranker) *GreedyPolicy {
	return &GreedyPolicy{
		Session:  s,
		method:   method,
		ranker:   ranker,
		navSteps: -1,
		missed:   make(map[string]bool),
	}
}

// Name returns the policy name
func (p *GreedyPolicy) Name() string {
	if p.method == BFS {
		return NameGreedyBFS
	}
	return NameGreedyDFS
}

// NextEvent picks an unexplored event, a navigation step, a random event or a stop
func (p *GreedyPolicy) NextEvent(ctx context.Context) (event.Event, error) {
	state, err := p.observe(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return p.nullState(ctx)
	}
	log := p.Logger.WithFields(logrus.Fields{"policy": p.Name(), "state": state.StateStr})
	delete(p.missed, state.StateStr)

	pos := Classify(state.ActivityDepth(p.App.PackageName()))
	recovery, err := p.recoverApp(pos, false)
	if err != nil {
		return nil, err
	}
	if recovery != nil {
		log.WithField("position", pos.String()).Info("Recovering app")
		return p.remember(recovery), nil
	}

	candidates, err := p.candidates(ctx, state)
	if err != nil {
		return nil, err
	}
	for _, ev := range candidates {
		if !p.Graph.IsEventExplored(ev, state) {
			log.Info("Trying an unexplored event")
			p.trace += FlagExplore
			return p.remember(ev), nil
		}
	}

	if target := p.navigationTarget(state); target != nil {
		if path := p.Graph.EventPath(state, target); len(path) > 0 {
			log.WithFields(logrus.Fields{"target": target.StateStr, "steps": len(path)}).Info("Navigating")
			p.trace += FlagNavigate
			return p.remember(path[0]), nil
		}
	}

	if p.randomExplore && len(candidates) > 0 {
		log.Info("Trying a random event")
		return p.remember(candidates[p.Rand.Intn(len(candidates))]), nil
	}

	log.Info("Cannot find an exploration target, restarting app")
	return p.remember(p.stopApp()), nil
}

// candidates returns the possible events of the state with BACK placed by search method
func (p *GreedyPolicy) candidates(ctx context.Context, state *ui.State) ([]event.Event, error) {
	events := event.PossibleEvents(state)
	if p.RandomInput {
		p.Rand.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	}
	back := event.NewKeyEvent(event.KeyBack)
	if p.method == BFS {
		events = append([]event.Event{back}, events...)
	} else {
		events = append(events, back)
	}
	if p.ranker == nil {
		return events, nil
	}
	ranked, err := p.ranker.Rank(ctx, state, events)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}
	// A first visit starts from a random candidate so a top-ranked event cannot trap the search
	if p.firstVisit && len(ranked) > 1 {
		i := p.Rand.Intn(len(ranked))
		ranked[0], ranked[i] = ranked[i], ranked[0]
	}
	return ranked, nil
}

// navigationTarget keeps the cached target while navigation makes progress, otherwise
// searches the reachable states for one with unexplored events
func (p *GreedyPolicy) navigationTarget(current *ui.State) *ui.State {
	if p.navTarget != nil && strings.HasSuffix(p.trace, FlagNavigate) {
		path := p.Graph.EventPath(current, p.navTarget)
		if len(path) > 0 && len(path) <= p.navSteps {
			p.navSteps = len(path)
			return p.navTarget
		}
		p.missed[p.navTarget.StateStr] = true
	}

	reachable := p.Graph.ReachableStates(current)
	if p.RandomInput {
		p.Rand.Shuffle(len(reachable), func(i, j int) { reachable[i], reachable[j] = reachable[j], reachable[i] })
	}
	for _, s := range reachable {
		if s.ActivityDepth(p.App.PackageName()) != 0 {
			continue
		}
		if p.missed[s.StateStr] || p.fullyExplored(s) {
			continue
		}
		if path := p.Graph.EventPath(current, s); len(path) > 0 {
			p.navTarget = s
			p.navSteps = len(path)
			return s
		}
	}
	p.navTarget = nil
	p.navSteps = -1
	return nil
}

// fullyExplored reports whether every candidate of the state, BACK included, was tried
func (p *GreedyPolicy) fullyExplored(s *ui.State) bool {
	if !p.Graph.IsEventExplored(event.NewKeyEvent(event.KeyBack), s) {
		return false
	}
	for _, ev := range event.PossibleEvents(s) {
		if !p.Graph.IsEventExplored(ev, s) {
			return false
		}
	}
	return true
}
