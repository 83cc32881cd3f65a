/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: codec.go
Description: JSON encoding of events. The "event_type" field carries the variant tag so
recorded sessions can be decoded back into events by the replay policy.
*/

package event

import (
	"encoding/json"
	"fmt"

	"github.com/kleascm/dld/pkg/ui"
)

// wireEvent is the on-disk shape shared by all variants
type wireEvent struct {
	EventType Kind            `json:"event_type"`
	Name      string          `json:"name,omitempty"`
	Intent    string          `json:"intent,omitempty"`
	View      *ui.View        `json:"view,omitempty"`
	Views     []ui.View       `json:"views,omitempty"`
	Duration  int             `json:"duration,omitempty"`
	Direction string          `json:"direction,omitempty"`
	YFullDown int             `json:"y_full_down,omitempty"`
	Text      string          `json:"text,omitempty"`
	Angle     *int            `json:"angle,omitempty"`
	Source    string          `json:"source,omitempty"`
	Inner     json.RawMessage `json:"event,omitempty"`
}

// Marshal encodes an event with its variant tag
func Marshal(ev Event) ([]byte, error) {
	w, err := toWire(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Unmarshal decodes an event previously written by Marshal
func Unmarshal(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return fromWire(&w)
}

func toWire(ev Event) (*wireEvent, error) {
	w := &wireEvent{EventType: ev.Kind()}
	switch e := ev.(type) {
	case *KeyEvent:
		w.Name = e.Name
	case *IntentEvent:
		w.Intent = e.Intent
	case *TouchEvent:
		w.View = &e.View
	case *LongTouchEvent:
		w.View = &e.View
		w.Duration = e.Duration
	case *ScrollEvent:
		w.View = e.View
		w.Direction = e.Direction
		w.YFullDown = e.YFullDown
	case *SetTextEvent:
		w.View = &e.View
		w.Text = e.Text
	case *FillUIEvent:
		w.Views = e.AllViews
	case *DoubleRotationEvent, *ManualEvent:
	case *SetOrientationEvent:
		angle := e.Angle
		w.Angle = &angle
	case *ScriptReplayEvent:
		inner, err := Marshal(e.Event)
		if err != nil {
			return nil, err
		}
		w.Source = e.Source
		w.Inner = inner
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
	return w, nil
}

func fromWire(w *wireEvent) (Event, error) {
	needView := func() (ui.View, error) {
		if w.View == nil {
			return ui.View{}, fmt.Errorf("%s event without view", w.EventType)
		}
		return *w.View, nil
	}
	switch w.EventType {
	case KindKey:
		if w.Name == "" {
			return nil, fmt.Errorf("key event without name")
		}
		return NewKeyEvent(w.Name), nil
	case KindIntent:
		if w.Intent == "" {
			return nil, fmt.Errorf("intent event without intent")
		}
		return NewIntentEvent(w.Intent), nil
	case KindTouch:
		v, err := needView()
		if err != nil {
			return nil, err
		}
		return NewTouchEvent(v), nil
	case KindLongTouch:
		v, err := needView()
		if err != nil {
			return nil, err
		}
		ev := NewLongTouchEvent(v)
		if w.Duration > 0 {
			ev.Duration = w.Duration
		}
		return ev, nil
	case KindScroll:
		return &ScrollEvent{View: w.View, Direction: w.Direction, YFullDown: w.YFullDown}, nil
	case KindSetText:
		v, err := needView()
		if err != nil {
			return nil, err
		}
		return NewSetTextEvent(v, w.Text), nil
	case KindFillUI:
		return NewFillUIEvent(w.Views), nil
	case KindDoubleRotation:
		return NewDoubleRotationEvent(), nil
	case KindManual:
		return &ManualEvent{}, nil
	case KindSetOrientation:
		angle := 0
		if w.Angle != nil {
			angle = *w.Angle
		}
		return NewSetOrientationEvent(angle), nil
	case KindScriptReplay:
		inner, err := Unmarshal(w.Inner)
		if err != nil {
			return nil, err
		}
		return &ScriptReplayEvent{Source: w.Source, Event: inner}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", w.EventType)
	}
}

// Record is one entry of a recorded session: the tag of the state it was sent on and the event
type Record struct {
	Tag   string          `json:"tag"`
	Event json.RawMessage `json:"event"`
}

// MarshalRecord encodes an event together with its state tag
func MarshalRecord(tag string, ev Event) ([]byte, error) {
	raw, err := Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(Record{Tag: tag, Event: raw}, "", "  ")
}

// UnmarshalRecord decodes a recorded entry back into its event
func UnmarshalRecord(data []byte) (Event, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if len(rec.Event) == 0 {
		return nil, fmt.Errorf("record has no event")
	}
	return Unmarshal(rec.Event)
}
