/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: event.go
Description: Closed set of input events the explorer can dispatch to a device. Every variant
shares the same capability surface: a stable unique code used for deduplication and graph edge
identity, a human-readable description relative to a state, and the views it affects.
*/

package event

import (
	"github.com/kleascm/dld/pkg/ui"
)

// Kind tags an event variant
type Kind string

const (
	KindKey            Kind = "key"
	KindIntent         Kind = "intent"
	KindTouch          Kind = "touch"
	KindLongTouch      Kind = "long_touch"
	KindScroll         Kind = "scroll"
	KindSetText        Kind = "set_text"
	KindFillUI         Kind = "fill_ui"
	KindDoubleRotation Kind = "double_rotation"
	KindManual         Kind = "manual"
	KindScriptReplay   Kind = "script_replay"
	KindSetOrientation Kind = "set_orientation"
)

// Well-known key names
const (
	KeyHome = "HOME"
	KeyBack = "BACK"
)

// Scroll directions
const (
	ScrollUp       = "UP"
	ScrollDown     = "DOWN"
	ScrollLeft     = "LEFT"
	ScrollRight    = "RIGHT"
	ScrollFullDown = "FULL_DOWN"
)

// Event is an immutable description of one user or system action.
// The interface is sealed: only the variants of this package implement it.
type Event interface {
	// Kind returns the variant tag
	Kind() Kind
	// UniqueCode is equal for two events of the same kind on the same target
	UniqueCode() string
	// Describe renders the event relative to the state it was generated on
	Describe(state *ui.State) string
	// Views returns the views the event acts on
	Views() []ui.View
	// AffectedViewBounds returns the bounds of the views the event acts on
	AffectedViewBounds() []ui.Rect

	sealed()
}

// IsKey reports whether ev is a key event with the given key name
func IsKey(ev Event, name string) bool {
	k, ok := ev.(*KeyEvent)
	return ok && k.Name == name
}

// Unwrap returns the event a replay wrapper carries, or ev itself
func Unwrap(ev Event) Event {
	if r, ok := ev.(*ScriptReplayEvent); ok && r.Event != nil {
		return Unwrap(r.Event)
	}
	return ev
}

func boundsOf(views []ui.View) []ui.Rect {
	out := make([]ui.Rect, 0, len(views))
	for _, v := range views {
		out = append(out, v.Bounds)
	}
	return out
}

func stateStr(state *ui.State) string {
	if state == nil {
		return "None"
	}
	return state.StateStr
}
