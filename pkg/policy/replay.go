/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: replay.go
Description: Replays a recorded session from <dir>/events/*.json in filename order, skipping
the two bootstrap entries. Malformed entries are skipped with a warning; a step that cannot be
replayed within the retry budget ends the session.
*/

package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// permissionActivity is the system screen asking for runtime permissions
const permissionActivity = "GrantPermissionsActivity"

// ReplayPolicy re-sends recorded events
type ReplayPolicy struct {
	*Session
	paths []string
	next  int
	tries int
}

// NewReplayPolicy lists the recorded events under dir
func NewReplayPolicy(s *Session, dir string) (*ReplayPolicy, error) {
	eventDir := filepath.Join(dir, "events")
	entries, err := os.ReadDir(eventDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded events: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			paths = append(paths, filepath.Join(eventDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return &ReplayPolicy{Session: s, paths: paths, next: 2}, nil
}

// Name returns the policy name
func (p *ReplayPolicy) Name() string { return NameReplay }

// Remaining returns the number of recorded entries not replayed yet
func (p *ReplayPolicy) Remaining() int {
	if p.next >= len(p.paths) {
		return 0
	}
	return len(p.paths) - p.next
}

// NextEvent returns the next recorded event
func (p *ReplayPolicy) NextEvent(ctx context.Context) (event.Event, error) {
	for p.next < len(p.paths) && p.tries < p.Limits.MaxReplayTries {
		p.tries++
		state, err := p.observe(ctx)
		if err != nil {
			return nil, err
		}
		if state == nil {
			p.tries = 0
			return p.nullState(ctx)
		}
		if ui.ShortName(state.ForegroundActivity) == permissionActivity {
			if v := consentView(state, []string{"allow", "ok"}); v != nil {
				return p.remember(event.NewTouchEvent(*v)), nil
			}
		}

		for p.next < len(p.paths) {
			path := p.paths[p.next]
			p.next++
			ev, err := p.load(path)
			if err != nil {
				p.Logger.WithField("file", path).WithError(err).Warn("Loading recorded event failed")
				continue
			}
			p.Logger.WithField("file", path).Info("Replaying")
			p.tries = 0
			return p.remember(&event.ScriptReplayEvent{Source: filepath.Base(path), Event: ev}), nil
		}

		if err := sleep(ctx, p.Limits.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no more record can be replayed: %w", ErrInterrupted)
}

func (p *ReplayPolicy) load(path string) (event.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return event.UnmarshalRecord(data)
}
