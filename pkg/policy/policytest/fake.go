/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fake.go
Description: In-memory device and app used by the policy and explorer tests. The device is a
small screen graph: each screen is a snapshot and routes map an event code to the next screen.
*/

package policytest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// Package is the package name of the fake app
const Package = "com.example"

// ErrNoScreenshot is returned when no capture was queued
var ErrNoScreenshot = errors.New("no screenshot queued")

// App is a fixed app descriptor
type App struct {
	Names []string
}

// NewApp creates the fake app declaring the given short activity names
func NewApp(activities ...string) *App {
	names := make([]string, 0, len(activities))
	for _, a := range activities {
		names = append(names, Package+"."+a)
	}
	return &App{Names: names}
}

func (a *App) PackageName() string  { return Package }
func (a *App) StartIntent() string  { return "am start " + Package + "/.MainActivity" }
func (a *App) StopIntent() string   { return "am force-stop " + Package }
func (a *App) Activities() []string { return a.Names }

// Screen builds a snapshot of an app activity
func Screen(activity string, views ...ui.View) *ui.State {
	return ui.NewState(Package+"/."+activity, []string{Package + "/." + activity}, views)
}

// Foreign builds a snapshot of another app. When behind is set the fake app sits right
// below it in the activity stack.
func Foreign(activity string, behind bool, views ...ui.View) *ui.State {
	stack := []string{activity}
	if behind {
		stack = append(stack, Package+"/.MainActivity")
	}
	return ui.NewState(activity, stack, views)
}

// Button is an enabled clickable leaf
func Button(id int, text string) ui.View {
	return ui.View{
		TempID:     id,
		Parent:     -1,
		Class:      "android.widget.Button",
		ResourceID: Package + ":id/button",
		Text:       text,
		Bounds:     ui.Rect{Left: 0, Top: id * 100, Right: 400, Bottom: id*100 + 80},
		Enabled:    true,
		Visible:    true,
		Clickable:  true,
	}
}

// Label is an enabled leaf that is not clickable
func Label(id int, text string) ui.View {
	v := Button(id, text)
	v.Class = "android.widget.TextView"
	v.ResourceID = Package + ":id/label"
	v.Clickable = false
	return v
}

// Field is an enabled editable leaf
func Field(id int, text string) ui.View {
	v := Button(id, text)
	v.Class = "android.widget.EditText"
	v.ResourceID = Package + ":id/field"
	v.Clickable = false
	v.Editable = true
	return v
}

// PNG encodes a flat 100x200 capture whose first n pixels of row y are black
func PNG(y, n int) []byte {
	img := image.NewGray(image.Rect(0, 0, 100, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for x := 0; x < n && x < 100; x++ {
		img.SetGray(x, y, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Device is a scripted screen graph
type Device struct {
	mu sync.Mutex

	Screens map[string]*ui.State
	Routes  map[string]string // "<screen>|<event code>" to screen
	Current string
	Start   string // screen reached by the start intent; empty keeps the current one
	Stop    string // screen reached by the stop intent

	NilReads  int // number of nil snapshots returned before the real ones
	Angle     int // current orientation
	Rotations int // EnableRotation calls
	Shots     [][]byte
	Sent      []event.Event
	SendErr   error
	OnSend    func(event.Event)
}

// NewDevice creates a device showing the first screen
func NewDevice(current string, screens map[string]*ui.State) *Device {
	return &Device{Screens: screens, Routes: make(map[string]string), Current: current}
}

// Route adds a transition
func (d *Device) Route(from string, ev event.Event, to string) {
	d.Routes[from+"|"+ev.UniqueCode()] = to
}

// Events returns the dispatched events
func (d *Device) Events() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.Event(nil), d.Sent...)
}

func (d *Device) CurrentState(ctx context.Context) (*ui.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NilReads > 0 {
		d.NilReads--
		return nil, nil
	}
	return d.Screens[d.Current], nil
}

func (d *Device) IsForeground(ctx context.Context, pkg string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.Screens[d.Current]
	return s != nil && s.ActivityDepth(pkg) == 0, nil
}

func (d *Device) Orientation(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Angle, nil
}

func (d *Device) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Shots) == 0 {
		return nil, ErrNoScreenshot
	}
	shot := d.Shots[0]
	d.Shots = d.Shots[1:]
	return shot, nil
}

func (d *Device) EnableRotation(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Rotations++
	return nil
}

func (d *Device) SetOrientation(ctx context.Context, angle int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Angle = angle
	return nil
}

func (d *Device) Send(ctx context.Context, ev event.Event) error {
	d.mu.Lock()
	if d.SendErr != nil {
		d.mu.Unlock()
		return d.SendErr
	}
	d.Sent = append(d.Sent, ev)
	inner := event.Unwrap(ev)
	switch e := inner.(type) {
	case *event.IntentEvent:
		if e.Intent == (&App{}).StartIntent() && d.Start != "" {
			d.Current = d.Start
		}
		if e.Intent == (&App{}).StopIntent() && d.Stop != "" {
			d.Current = d.Stop
		}
	case *event.SetOrientationEvent:
		d.Angle = e.Angle
	}
	if next, ok := d.Routes[d.Current+"|"+inner.UniqueCode()]; ok {
		d.Current = next
	}
	hook := d.OnSend
	d.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}
