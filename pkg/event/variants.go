/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: variants.go
Description: Event variants. Codes identify a view target by its content-free identity so that
a field keeps the same code before and after text is typed into it.
*/

package event

import (
	"fmt"

	"github.com/kleascm/dld/pkg/ui"
)

// KeyEvent presses a hardware or system key
type KeyEvent struct {
	Name string `json:"name"`
}

// NewKeyEvent creates a key event for the given key name
func NewKeyEvent(name string) *KeyEvent { return &KeyEvent{Name: name} }

// Kind returns KindKey
func (e *KeyEvent) Kind() Kind { return KindKey }

// UniqueCode identifies the press by the key name
func (e *KeyEvent) UniqueCode() string { return fmt.Sprintf("KeyEvent(name=%s)", e.Name) }

// Views returns nil, a key press has no target view
func (e *KeyEvent) Views() []ui.View { return nil }

// AffectedViewBounds returns nil
func (e *KeyEvent) AffectedViewBounds() []ui.Rect { return nil }

func (e *KeyEvent) sealed() {}

// Describe renders the press with the state it was sent from
func (e *KeyEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("KeyEvent(state=%s, name=%s)", stateStr(state), e.Name)
}

// IntentEvent runs an activity-manager command on the device, e.g. "am start -n pkg/.Main"
type IntentEvent struct {
	Intent string `json:"intent"`
}

// NewIntentEvent creates an intent event
func NewIntentEvent(intent string) *IntentEvent { return &IntentEvent{Intent: intent} }

// Kind returns KindIntent
func (e *IntentEvent) Kind() Kind { return KindIntent }

// UniqueCode identifies the intent by its command line
func (e *IntentEvent) UniqueCode() string { return fmt.Sprintf("IntentEvent(intent=%s)", e.Intent) }

// Views returns nil
func (e *IntentEvent) Views() []ui.View { return nil }

// AffectedViewBounds returns nil
func (e *IntentEvent) AffectedViewBounds() []ui.Rect { return nil }

func (e *IntentEvent) sealed() {}

// Describe renders the command. The state is not part of it.
func (e *IntentEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("IntentEvent(intent='%s')", e.Intent)
}

// TouchEvent taps the center of a view
type TouchEvent struct {
	View ui.View `json:"view"`
}

// NewTouchEvent creates a touch event on a view
func NewTouchEvent(view ui.View) *TouchEvent { return &TouchEvent{View: view} }

// Kind returns KindTouch
func (e *TouchEvent) Kind() Kind { return KindTouch }

// UniqueCode identifies the tap by the content-free identity of its view
func (e *TouchEvent) UniqueCode() string {
	return fmt.Sprintf("TouchEvent(view=%s)", e.View.Identity())
}

// Views returns the tapped view
func (e *TouchEvent) Views() []ui.View { return []ui.View{e.View} }

// AffectedViewBounds returns the bounds of the tapped view
func (e *TouchEvent) AffectedViewBounds() []ui.Rect { return boundsOf(e.Views()) }

func (e *TouchEvent) sealed() {}

// Describe renders the tap with the label of its view
func (e *TouchEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("TouchEvent(state=%s, view=%s)", stateStr(state), e.View.Label())
}

// LongTouchEvent presses a view for Duration milliseconds
type LongTouchEvent struct {
	View     ui.View `json:"view"`
	Duration int     `json:"duration"`
}

// DefaultLongTouchMillis is the press duration used when none is given
const DefaultLongTouchMillis = 2000

// NewLongTouchEvent creates a long touch event with the default duration
func NewLongTouchEvent(view ui.View) *LongTouchEvent {
	return &LongTouchEvent{View: view, Duration: DefaultLongTouchMillis}
}

// Kind returns KindLongTouch
func (e *LongTouchEvent) Kind() Kind { return KindLongTouch }

// UniqueCode identifies the press by its view. The duration is left out.
func (e *LongTouchEvent) UniqueCode() string {
	return fmt.Sprintf("LongTouchEvent(view=%s)", e.View.Identity())
}

// Views returns the pressed view
func (e *LongTouchEvent) Views() []ui.View { return []ui.View{e.View} }

// AffectedViewBounds returns the bounds of the pressed view
func (e *LongTouchEvent) AffectedViewBounds() []ui.Rect { return boundsOf(e.Views()) }

func (e *LongTouchEvent) sealed() {}

// Describe renders the press with its view and duration
func (e *LongTouchEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("LongTouchEvent(state=%s, view=%s, duration=%d)", stateStr(state), e.View.Label(), e.Duration)
}

// ScrollEvent scrolls a view, or the whole screen when View is nil.
// FULL_DOWN swipes upwards starting at YFullDown to reach the end of the page.
type ScrollEvent struct {
	View      *ui.View `json:"view,omitempty"`
	Direction string   `json:"direction"`
	YFullDown int      `json:"y_full_down,omitempty"`
}

// NewScrollEvent creates a scroll on a view in a direction
func NewScrollEvent(view *ui.View, direction string) *ScrollEvent {
	return &ScrollEvent{View: view, Direction: direction}
}

// NewScrollFullDown creates a screen-wide scroll to the bottom of the page
func NewScrollFullDown(y int) *ScrollEvent {
	return &ScrollEvent{Direction: ScrollFullDown, YFullDown: y}
}

// Kind returns KindScroll
func (e *ScrollEvent) Kind() Kind { return KindScroll }

// UniqueCode identifies the scroll by direction, plus the view identity when it has one
func (e *ScrollEvent) UniqueCode() string {
	if e.View == nil {
		return fmt.Sprintf("ScrollEvent(direction=%s)", e.Direction)
	}
	return fmt.Sprintf("ScrollEvent(direction=%s, view=%s)", e.Direction, e.View.Identity())
}

// Views returns the scrolled view, or nil for a screen-wide scroll
func (e *ScrollEvent) Views() []ui.View {
	if e.View == nil {
		return nil
	}
	return []ui.View{*e.View}
}

// AffectedViewBounds returns the bounds of the scrolled view
func (e *ScrollEvent) AffectedViewBounds() []ui.Rect { return boundsOf(e.Views()) }

func (e *ScrollEvent) sealed() {}

// Describe renders the scroll direction and its view if any
func (e *ScrollEvent) Describe(state *ui.State) string {
	if e.View == nil {
		return fmt.Sprintf("ScrollEvent(state=%s, direction=%s)", stateStr(state), e.Direction)
	}
	return fmt.Sprintf("ScrollEvent(state=%s, view=%s, direction=%s)", stateStr(state), e.View.Label(), e.Direction)
}

// SetTextEvent types Text into an editable view
type SetTextEvent struct {
	View ui.View `json:"view"`
	Text string  `json:"text"`
}

// NewSetTextEvent creates a text entry event
func NewSetTextEvent(view ui.View, text string) *SetTextEvent {
	return &SetTextEvent{View: view, Text: text}
}

// Kind returns KindSetText
func (e *SetTextEvent) Kind() Kind { return KindSetText }

// UniqueCode identifies the entry by its field only, so retyping the field is the same event
func (e *SetTextEvent) UniqueCode() string {
	return fmt.Sprintf("SetTextEvent(view=%s)", e.View.Identity())
}

// Views returns the edited field
func (e *SetTextEvent) Views() []ui.View { return []ui.View{e.View} }

// AffectedViewBounds returns the bounds of the edited field
func (e *SetTextEvent) AffectedViewBounds() []ui.Rect { return boundsOf(e.Views()) }

func (e *SetTextEvent) sealed() {}

// Describe renders the field and the typed text
func (e *SetTextEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("SetTextEvent(state=%s, view=%s, text=%s)", stateStr(state), e.View.Label(), e.Text)
}

// FillUIEvent fills every editable view of a screen with generated input
type FillUIEvent struct {
	AllViews []ui.View `json:"views"`
}

// NewFillUIEvent creates a fill event over the views of a screen
func NewFillUIEvent(views []ui.View) *FillUIEvent { return &FillUIEvent{AllViews: views} }

// Kind returns KindFillUI
func (e *FillUIEvent) Kind() Kind { return KindFillUI }

// UniqueCode is constant: every fill is the same event
func (e *FillUIEvent) UniqueCode() string { return "FillUIEvent()" }

func (e *FillUIEvent) sealed() {}

// Views returns only the editable views, the ones the fill acts on
func (e *FillUIEvent) Views() []ui.View {
	var out []ui.View
	for _, v := range e.AllViews {
		if v.Editable && v.Enabled {
			out = append(out, v)
		}
	}
	return out
}

// AffectedViewBounds returns the bounds of the filled fields
func (e *FillUIEvent) AffectedViewBounds() []ui.Rect { return boundsOf(e.Views()) }

// Describe renders the number of filled fields
func (e *FillUIEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("FillUIEvent(state=%s, fields=%d)", stateStr(state), len(e.Views()))
}

// DoubleRotationEvent rotates the screen to landscape and back to portrait
type DoubleRotationEvent struct{}

// NewDoubleRotationEvent creates a rotation probe
func NewDoubleRotationEvent() *DoubleRotationEvent { return &DoubleRotationEvent{} }

// Kind returns KindDoubleRotation
func (e *DoubleRotationEvent) Kind() Kind { return KindDoubleRotation }

// UniqueCode is constant
func (e *DoubleRotationEvent) UniqueCode() string { return "DoubleRotationEvent()" }

// Views returns nil, the rotation acts on the whole screen
func (e *DoubleRotationEvent) Views() []ui.View { return nil }

// AffectedViewBounds returns nil
func (e *DoubleRotationEvent) AffectedViewBounds() []ui.Rect { return nil }

func (e *DoubleRotationEvent) sealed() {}

// Describe renders the rotation with its state
func (e *DoubleRotationEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("DoubleRotationEvent(state=%s)", stateStr(state))
}

// ManualEvent marks a tick where a human drives the device
type ManualEvent struct{}

// Kind returns KindManual
func (e *ManualEvent) Kind() Kind { return KindManual }

// UniqueCode is constant
func (e *ManualEvent) UniqueCode() string { return "ManualEvent()" }

// Views returns nil
func (e *ManualEvent) Views() []ui.View { return nil }

// AffectedViewBounds returns nil
func (e *ManualEvent) AffectedViewBounds() []ui.Rect { return nil }

func (e *ManualEvent) sealed() {}

// Describe renders the manual tick with its state
func (e *ManualEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("ManualEvent(state=%s)", stateStr(state))
}

// ScriptReplayEvent wraps an event read back from a recorded session
type ScriptReplayEvent struct {
	Source string `json:"source"`
	Event  Event  `json:"-"`
}

// Kind returns KindScriptReplay, not the kind of the wrapped event
func (e *ScriptReplayEvent) Kind() Kind { return KindScriptReplay }

// UniqueCode is the code of the wrapped event
func (e *ScriptReplayEvent) UniqueCode() string { return e.Event.UniqueCode() }

// Views delegates to the wrapped event
func (e *ScriptReplayEvent) Views() []ui.View { return e.Event.Views() }

// AffectedViewBounds delegates to the wrapped event
func (e *ScriptReplayEvent) AffectedViewBounds() []ui.Rect { return e.Event.AffectedViewBounds() }

func (e *ScriptReplayEvent) sealed() {}

// Describe renders the source file around the wrapped description
func (e *ScriptReplayEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("ReplayEvent(source=%s, event=%s)", e.Source, e.Event.Describe(state))
}

// SetOrientationEvent forces the screen orientation to Angle (0 is portrait)
type SetOrientationEvent struct {
	Angle int `json:"angle"`
}

// NewSetOrientationEvent creates an orientation event
func NewSetOrientationEvent(angle int) *SetOrientationEvent {
	return &SetOrientationEvent{Angle: angle}
}

// Kind returns KindSetOrientation
func (e *SetOrientationEvent) Kind() Kind { return KindSetOrientation }

// UniqueCode identifies the event by its angle
func (e *SetOrientationEvent) UniqueCode() string {
	return fmt.Sprintf("SetOrientationEvent(angle=%d)", e.Angle)
}

// Views returns nil
func (e *SetOrientationEvent) Views() []ui.View { return nil }

// AffectedViewBounds returns nil
func (e *SetOrientationEvent) AffectedViewBounds() []ui.Rect { return nil }

func (e *SetOrientationEvent) sealed() {}

// Describe renders the angle
func (e *SetOrientationEvent) Describe(state *ui.State) string {
	return fmt.Sprintf("SetOrientationEvent(angle=%d)", e.Angle)
}
