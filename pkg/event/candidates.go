/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: candidates.go
Description: Derivation of the actionable events a screen exposes. Clickable and checkable views
are touched, scrollable views are scrolled in the four directions, long-clickable views are
long-pressed, editable views get text, and remaining enabled leaves are touched.
*/

package event

import (
	"github.com/kleascm/dld/pkg/ui"
)

// DefaultInputText is typed into editable views found by PossibleEvents
const DefaultInputText = "HelloWorld"

// System decorations that never lead anywhere
var ignoredResourceIDs = map[string]bool{
	"android:id/navigationBarBackground": true,
	"android:id/statusBarBackground":     true,
}

// PossibleEvents returns the deduplicated actionable events of a state in a stable order
func PossibleEvents(state *ui.State) []Event {
	if state == nil {
		return nil
	}
	byID := make(map[int]*ui.View, len(state.Views))
	var enabled []*ui.View
	for i := range state.Views {
		v := &state.Views[i]
		byID[v.TempID] = v
		if v.Enabled && !ignoredResourceIDs[v.ResourceID] {
			enabled = append(enabled, v)
		}
	}

	var events []Event
	excluded := make(map[int]bool)
	exclude := func(v *ui.View) {
		excluded[v.TempID] = true
		for _, id := range descendants(byID, v.TempID) {
			excluded[id] = true
		}
	}

	for _, v := range enabled {
		if v.Clickable {
			events = append(events, NewTouchEvent(*v))
			exclude(v)
		}
	}
	for _, v := range enabled {
		if v.Scrollable {
			for _, dir := range []string{ScrollUp, ScrollDown, ScrollLeft, ScrollRight} {
				view := *v
				events = append(events, NewScrollEvent(&view, dir))
			}
		}
	}
	for _, v := range enabled {
		if v.Checkable {
			events = append(events, NewTouchEvent(*v))
			exclude(v)
		}
	}
	for _, v := range enabled {
		if v.LongClickable {
			events = append(events, NewLongTouchEvent(*v))
		}
	}
	for _, v := range enabled {
		if v.Editable {
			events = append(events, NewSetTextEvent(*v, DefaultInputText))
			exclude(v)
		}
	}
	for _, v := range enabled {
		if excluded[v.TempID] || !v.IsLeaf() {
			continue
		}
		events = append(events, NewTouchEvent(*v))
	}
	return Dedupe(events)
}

// Dedupe drops events whose unique code was already seen, keeping the first occurrence
func Dedupe(events []Event) []Event {
	seen := make(map[string]bool, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		code := ev.UniqueCode()
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, ev)
	}
	return out
}

func descendants(byID map[int]*ui.View, id int) []int {
	var out []int
	queue := []int{id}
	visited := map[int]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		v, ok := byID[cur]
		if !ok {
			continue
		}
		for _, child := range v.Children {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}
