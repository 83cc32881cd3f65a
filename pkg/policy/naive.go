/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: naive.go
Description: Naive search over raw views. Enabled leaf views are tried once per activity,
preferred action words first, with a BACK pseudo-view placed last (DFS) or first (BFS). When
nothing is left the app is stopped.
*/

package policy

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// SearchMethod selects depth-first or breadth-first ordering
type SearchMethod int

const (
	DFS SearchMethod = iota
	BFS
)

// PreferredButtons are tried before any other view by the naive search
var PreferredButtons = []string{"yes", "ok", "activate", "detail", "more", "access",
	"allow", "check", "agree", "try", "go", "next"}

const backViewPrefix = "BACK_"

type exploredView struct {
	activity string
	view     string
}

type stateTransition struct {
	event    string
	src, dst string
}

// NaivePolicy explores by touching each view once
type NaivePolicy struct {
	*Session
	method SearchMethod

	explored        map[exploredView]bool
	transitions     map[stateTransition]bool
	transitionViews map[string]bool
	lastEventStr    string
}

// NewNaivePolicy creates a naive search policy
func NewNaivePolicy(s *Session, method SearchMethod) *NaivePolicy {
	return &NaivePolicy{
		Session:         s,
		method:          method,
		explored:        make(map[exploredView]bool),
		transitions:     make(map[stateTransition]bool),
		transitionViews: make(map[string]bool),
	}
}

// Name returns the policy name
func (p *NaivePolicy) Name() string {
	if p.method == BFS {
		return NameNaiveBFS
	}
	return NameNaiveDFS
}

// NextEvent picks the next view to touch
func (p *NaivePolicy) NextEvent(ctx context.Context) (event.Event, error) {
	prev := p.lastState
	state, err := p.observe(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return p.nullState(ctx)
	}
	p.saveTransition(p.lastEventStr, prev, state)

	pos, err := p.position(ctx, state)
	if err != nil {
		return nil, err
	}
	recovery, err := p.recoverApp(pos, true)
	if err != nil {
		return nil, err
	}
	if recovery != nil {
		p.lastEventStr = FlagStartApp
		if pos == Background {
			p.lastEventStr = FlagNavigate
		}
		return p.remember(recovery), nil
	}

	view := p.selectView(state)
	if view == nil {
		p.Logger.WithField("state", state.StateStr).Info("No view could be selected, restarting app")
		p.lastEventStr = FlagStopApp
		return p.remember(p.stopApp()), nil
	}

	key := viewKey(view)
	var ev event.Event
	if strings.HasPrefix(key, backViewPrefix) {
		ev = event.NewKeyEvent(event.KeyBack)
	} else {
		ev = event.NewTouchEvent(*view)
	}
	p.trace += FlagTouch
	p.lastEventStr = key
	p.explored[exploredView{state.ForegroundActivity, key}] = true
	return p.remember(ev), nil
}

// position uses the foreground query and falls back to the stack depth for the rest
func (p *NaivePolicy) position(ctx context.Context, state *ui.State) (Position, error) {
	fg, err := p.Device.IsForeground(ctx, p.App.PackageName())
	if err != nil {
		return Absent, err
	}
	if fg {
		return Foreground, nil
	}
	if state.ActivityDepth(p.App.PackageName()) > 0 {
		return Background, nil
	}
	return Absent, nil
}

// Candidates returns the views the naive search considers, BACK pseudo-view included
func (p *NaivePolicy) Candidates(state *ui.State) []*ui.View {
	var views []*ui.View
	for i := range state.Views {
		v := &state.Views[i]
		if v.Enabled && v.IsLeaf() {
			views = append(views, v)
		}
	}
	if p.RandomInput {
		p.Rand.Shuffle(len(views), func(i, j int) { views[i], views[j] = views[j], views[i] })
	}
	back := &ui.View{
		ViewStr: backViewPrefix + state.ForegroundActivity,
		Text:    backViewPrefix + state.ForegroundActivity,
	}
	if p.method == BFS {
		return append([]*ui.View{back}, views...)
	}
	return append(views, back)
}

func (p *NaivePolicy) selectView(state *ui.State) *ui.View {
	views := p.Candidates(state)
	activity := state.ForegroundActivity
	log := p.Logger.WithFields(logrus.Fields{"policy": p.Name(), "activity": activity})

	for _, v := range views {
		text := strings.ToLower(strings.TrimSpace(v.Text))
		if isPreferred(text) && !p.explored[exploredView{activity, viewKey(v)}] {
			log.WithField("view", viewKey(v)).Info("Selected a preferred view")
			return v
		}
	}
	for _, v := range views {
		if !p.explored[exploredView{activity, viewKey(v)}] {
			log.WithField("view", viewKey(v)).Info("Selected an un-clicked view")
			return v
		}
	}
	if p.RandomInput {
		p.Rand.Shuffle(len(views), func(i, j int) { views[i], views[j] = views[j], views[i] })
	}
	for _, v := range views {
		if p.transitionViews[viewKey(v)] {
			log.WithField("view", viewKey(v)).Info("Selected a transition view")
			return v
		}
	}
	return nil
}

func (p *NaivePolicy) saveTransition(eventStr string, old, cur *ui.State) {
	if eventStr == "" || old == nil || cur == nil || !cur.IsDifferentFrom(old) {
		return
	}
	p.transitions[stateTransition{eventStr, old.StateStr, cur.StateStr}] = true
	p.transitionViews[eventStr] = true
}

func isPreferred(text string) bool {
	for _, w := range PreferredButtons {
		if text == w {
			return true
		}
	}
	return false
}

func viewKey(v *ui.View) string {
	if v.ViewStr != "" {
		return v.ViewStr
	}
	return v.Identity() + v.Text
}
