/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: event_test.go
Description: Tests for the event package. Covers unique code stability, candidate derivation
and the JSON codec used by recorded sessions.
*/

package event_test

import (
	"testing"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func button(id int, text string) ui.View {
	return ui.View{
		TempID:     id,
		Parent:     0,
		Class:      "android.widget.Button",
		ResourceID: "com.example:id/btn",
		Text:       text,
		Bounds:     ui.Rect{Left: 0, Top: id * 100, Right: 200, Bottom: id*100 + 80},
		Enabled:    true,
		Visible:    true,
		Clickable:  true,
	}
}

// TestUniqueCodeStability tests that equal targets produce equal codes
func TestUniqueCodeStability(t *testing.T) {
	a := event.NewTouchEvent(button(1, "Next"))
	b := event.NewTouchEvent(button(1, "Next"))
	assert.Equal(t, a.UniqueCode(), b.UniqueCode())

	// Other target, other kind
	assert.NotEqual(t, a.UniqueCode(), event.NewTouchEvent(button(2, "Next")).UniqueCode())
	assert.NotEqual(t, a.UniqueCode(), event.NewLongTouchEvent(button(1, "Next")).UniqueCode())

	// Typing into a field does not change the target
	field := button(3, "")
	field.Editable = true
	typed := field
	typed.Text = "hello"
	assert.Equal(t, event.NewSetTextEvent(field, "x").UniqueCode(), event.NewSetTextEvent(typed, "y").UniqueCode())

	assert.Equal(t, event.NewKeyEvent(event.KeyBack).UniqueCode(), event.NewKeyEvent(event.KeyBack).UniqueCode())
	assert.NotEqual(t, event.NewKeyEvent(event.KeyBack).UniqueCode(), event.NewKeyEvent(event.KeyHome).UniqueCode())
	assert.Equal(t, event.NewDoubleRotationEvent().UniqueCode(), event.NewDoubleRotationEvent().UniqueCode())
}

// TestAffectedViewBounds tests bounds reporting per variant
func TestAffectedViewBounds(t *testing.T) {
	v := button(1, "Next")
	assert.Equal(t, []ui.Rect{v.Bounds}, event.NewTouchEvent(v).AffectedViewBounds())
	assert.Empty(t, event.NewKeyEvent(event.KeyBack).AffectedViewBounds())
	assert.Empty(t, event.NewScrollFullDown(1600).AffectedViewBounds())

	field := button(2, "")
	field.Editable = true
	fill := event.NewFillUIEvent([]ui.View{v, field})
	assert.Equal(t, []ui.Rect{field.Bounds}, fill.AffectedViewBounds())
}

// TestPossibleEvents tests candidate derivation from a state
func TestPossibleEvents(t *testing.T) {
	root := ui.View{TempID: 0, Parent: -1, Children: []int{1, 2, 3, 4}, Class: "android.widget.FrameLayout", Enabled: true}
	next := button(1, "Next")
	next.Parent = 0
	list := ui.View{TempID: 2, Parent: 0, Class: "android.widget.ListView", Enabled: true, Scrollable: true, Children: []int{}}
	field := ui.View{TempID: 3, Parent: 0, Class: "android.widget.EditText", Enabled: true, Editable: true}
	label := ui.View{TempID: 4, Parent: 0, Class: "android.widget.TextView", Text: "hi", Enabled: true}
	state := ui.NewState("com.example.Home", []string{"com.example.Home"}, []ui.View{root, next, list, field, label})

	events := event.PossibleEvents(state)
	var kinds []event.Kind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []event.Kind{
		event.KindTouch,
		event.KindScroll, event.KindScroll, event.KindScroll, event.KindScroll,
		event.KindSetText,
		event.KindTouch, // list leaf
		event.KindTouch, // label leaf
	}, kinds)
	assert.Equal(t, "Next", events[0].Views()[0].Text)

	assert.Nil(t, event.PossibleEvents(nil))
}

// TestDedupe tests that duplicate codes keep the first occurrence
func TestDedupe(t *testing.T) {
	v := button(1, "Next")
	checked := v
	checked.Checkable = true
	out := event.Dedupe([]event.Event{event.NewTouchEvent(v), event.NewKeyEvent(event.KeyBack), event.NewTouchEvent(checked)})
	require.Len(t, out, 2)
	assert.Equal(t, event.KindTouch, out[0].Kind())
	assert.True(t, event.IsKey(out[1], event.KeyBack))
}

// TestCodecRoundTrip tests decoding of every recorded variant
func TestCodecRoundTrip(t *testing.T) {
	v := button(1, "Next")
	events := []event.Event{
		event.NewKeyEvent(event.KeyHome),
		event.NewIntentEvent("am start -n com.example/.Home"),
		event.NewTouchEvent(v),
		event.NewLongTouchEvent(v),
		event.NewScrollEvent(&v, event.ScrollUp),
		event.NewScrollFullDown(1600),
		event.NewSetTextEvent(v, "abc"),
		event.NewFillUIEvent([]ui.View{v}),
		event.NewDoubleRotationEvent(),
		&event.ManualEvent{},
		event.NewSetOrientationEvent(0),
		&event.ScriptReplayEvent{Source: "event_000003.json", Event: event.NewKeyEvent(event.KeyBack)},
	}
	for _, ev := range events {
		data, err := event.Marshal(ev)
		require.NoError(t, err)
		decoded, err := event.Unmarshal(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, ev, decoded)
	}
}

// TestRecordDecoding tests the recorded session entry format
func TestRecordDecoding(t *testing.T) {
	data, err := event.MarshalRecord("2026-01-01_120000", event.NewKeyEvent(event.KeyBack))
	require.NoError(t, err)
	ev, err := event.UnmarshalRecord(data)
	require.NoError(t, err)
	assert.True(t, event.IsKey(ev, event.KeyBack))

	_, err = event.UnmarshalRecord([]byte(`{"tag": "x"}`))
	assert.Error(t, err)
	_, err = event.UnmarshalRecord([]byte(`{"event": {"event_type": "warp"}}`))
	assert.Error(t, err)
	_, err = event.UnmarshalRecord([]byte(`not json`))
	assert.Error(t, err)
}
