/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mobile_test.go
Description: Tests for the mobile package: window dump and activity stack parsing, aapt
analysis, the logcat fatal exception extraction and the adb commands events turn into.
*/

package mobile_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/mobile"
	"github.com/kleascm/dld/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and answers from canned outputs keyed by the full command line
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	stream  string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: make(map[string]string)}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, line)
	return []byte(r.outputs[line]), nil
}

func (r *fakeRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return io.NopCloser(strings.NewReader(r.stream)), nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

const windowDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.example" content-desc="" checkable="false" checked="false" clickable="false" enabled="true" focusable="false" focused="false" scrollable="false" long-clickable="false" password="false" selected="false" bounds="[0,0][1080,1920]">
    <node index="0" text="Name" resource-id="com.example:id/name" class="android.widget.EditText" package="com.example" content-desc="" checkable="false" checked="false" clickable="true" enabled="true" focusable="true" focused="true" scrollable="false" long-clickable="true" password="false" selected="false" bounds="[40,200][1040,320]" />
    <node index="1" text="Save" resource-id="com.example:id/save" class="android.widget.Button" package="com.example" content-desc="save" checkable="false" checked="false" clickable="true" enabled="true" focusable="true" focused="false" scrollable="false" long-clickable="false" password="false" selected="false" bounds="[40,400][1040,520]" />
  </node>
</hierarchy>
UI hierchary dumped to: /dev/tty`

const activityDump = `ACTIVITY MANAGER ACTIVITIES (dumpsys activity activities)
Display #0 (activities from top to bottom):
  Stack #1:
    Task id #42
      * Hist #1: ActivityRecord{c0ffee u0 com.example/.DetailActivity t42}
      * Hist #0: ActivityRecord{badf00d u0 com.example/.MainActivity t42}
  Stack #0:
    Task id #1
      * Hist #0: ActivityRecord{1234 u0 com.android.launcher3/.Launcher t1}
  mResumedActivity: ActivityRecord{c0ffee u0 com.example/.DetailActivity t42}
`

// TestParseHierarchy tests flattening of a window dump
func TestParseHierarchy(t *testing.T) {
	views, err := mobile.ParseHierarchy([]byte(windowDump))
	require.NoError(t, err)
	require.Len(t, views, 3)

	root := views[0]
	assert.Equal(t, -1, root.Parent)
	assert.Equal(t, []int{1, 2}, root.Children)
	assert.Equal(t, 2, root.ChildCount)
	assert.Equal(t, ui.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 1920}, root.Bounds)

	field := views[1]
	assert.Equal(t, 0, field.Parent)
	assert.True(t, field.Editable)
	assert.True(t, field.Focused)
	assert.True(t, field.LongClickable)
	assert.Equal(t, "Name", field.Text)

	save := views[2]
	assert.Equal(t, "save", save.ContentDescription)
	assert.False(t, save.Editable)
	assert.True(t, save.IsLeaf())
	assert.NotEmpty(t, save.Signature)
	assert.NotEmpty(t, save.ViewStr)
	assert.NotEqual(t, field.ViewStr, save.ViewStr)

	_, err = mobile.ParseHierarchy([]byte("ERROR: could not get idle state."))
	assert.Error(t, err)
	_, err = mobile.ParseHierarchy([]byte(`<hierarchy><node bounds="[0,0]"/></hierarchy>`))
	assert.Error(t, err)
}

// TestParseActivityStack tests stack order and the resumed activity
func TestParseActivityStack(t *testing.T) {
	stack, resumed := mobile.ParseActivityStack(activityDump)
	assert.Equal(t, []string{
		"com.example/.DetailActivity",
		"com.example/.MainActivity",
		"com.android.launcher3/.Launcher",
	}, stack)
	assert.Equal(t, "com.example/.DetailActivity", resumed)

	stack, resumed = mobile.ParseActivityStack("  * Hist #0: ActivityRecord{1 u0 com.other/.Main t3}")
	assert.Equal(t, []string{"com.other/.Main"}, stack)
	assert.Equal(t, "com.other/.Main", resumed, "falls back to the top of the stack")
}

// TestAnalyzeAPK tests the descriptor read from aapt dumps
func TestAnalyzeAPK(t *testing.T) {
	r := newFakeRunner()
	r.outputs["aapt dump badging app.apk"] = `package: name='com.example' versionCode='3' versionName='1.2'
uses-permission: name='android.permission.CAMERA'
application-label:'Example'
launchable-activity: name='com.example.MainActivity'  label='Example' icon=''`
	r.outputs["aapt dump xmltree app.apk AndroidManifest.xml"] = `N: android=http://schemas.android.com/apk/res/android
  E: manifest (line=2)
    E: application (line=10)
      E: activity (line=12)
        A: android:name(0x01010003)=".MainActivity" (Raw: ".MainActivity")
      E: activity (line=20)
        A: android:label(0x01010001)="Detail" (Raw: "Detail")
        A: android:name(0x01010003)="DetailActivity" (Raw: "DetailActivity")
      E: service (line=30)
        A: android:name(0x01010003)=".SyncService" (Raw: ".SyncService")`

	app, err := mobile.AnalyzeAPK(context.Background(), r, "app.apk")
	require.NoError(t, err)
	assert.Equal(t, "com.example", app.PackageName())
	assert.Equal(t, "1.2", app.Version)
	assert.Equal(t, "Example", app.Label)
	assert.Equal(t, []string{"android.permission.CAMERA"}, app.Permissions)
	assert.Equal(t, []string{"com.example.MainActivity", "com.example.DetailActivity"}, app.Activities())
	assert.Equal(t, "am start -n com.example/com.example.MainActivity", app.StartIntent())
	assert.Equal(t, "am force-stop com.example", app.StopIntent())

	installed := mobile.NewApp("com.example", "", nil)
	assert.Equal(t, "monkey -p com.example -c android.intent.category.LAUNCHER 1", installed.StartIntent())

	_, err = mobile.AnalyzeAPK(context.Background(), newFakeRunner(), "empty.apk")
	assert.Error(t, err)
}

const packageDump = `Activity Resolver Table:
  Non-Data Actions:
      android.intent.action.MAIN:
        5f1a2b0 com.other/.Main filter 77aa1c2
          Action: "android.intent.action.MAIN"
          Category: "android.intent.category.LAUNCHER"
        a1b2c3d com.example/.MainActivity filter 4d5e6f7
          Action: "android.intent.action.MAIN"
          Category: "android.intent.category.LAUNCHER"
      android.intent.action.VIEW:
        e8f9a0b com.example/com.example.detail.DetailActivity filter 1c2d3e4
          Action: "android.intent.action.VIEW"
        a1b2c3d com.example/.MainActivity filter 9f8e7d6
          Action: "android.intent.action.VIEW"

Receiver Resolver Table:
  Non-Data Actions:
      android.intent.action.BOOT_COMPLETED:
        0a0b0c0 com.example/.BootReceiver filter 1a1b1c1

Packages:
  Package [com.example] (3c4d5e6):
    userId=10123`

// TestResolveInstalledApp tests the descriptor of an app known only by package name
func TestResolveInstalledApp(t *testing.T) {
	r := newFakeRunner()
	r.outputs["adb shell dumpsys package com.example"] = packageDump

	app, err := mobile.ResolveInstalledApp(context.Background(), mobile.NewADB("", r), "com.example")
	require.NoError(t, err)
	assert.Equal(t, "com.example", app.PackageName())
	assert.Equal(t, []string{"com.example.MainActivity", "com.example.detail.DetailActivity"}, app.Activities())
	assert.Equal(t, "am start -n com.example/com.example.MainActivity", app.StartIntent())

	// Unknown package leaves the launcher fallback and no activities
	app, err = mobile.ResolveInstalledApp(context.Background(), mobile.NewADB("", r), "com.missing")
	require.NoError(t, err)
	assert.Empty(t, app.Activities())
	assert.Equal(t, "monkey -p com.missing -c android.intent.category.LAUNCHER 1", app.StartIntent())
}

// TestFatalParser tests extraction of the exception line of a fatal block
func TestFatalParser(t *testing.T) {
	lines := []string{
		"10-14 12:00:00.000  1234  1234 I ActivityManager: Start proc",
		"10-14 12:00:01.000  1234  1234 E AndroidRuntime: FATAL EXCEPTION: main",
		"10-14 12:00:01.000  1234  1234 E AndroidRuntime: Process: com.example, PID: 1234",
		"10-14 12:00:01.000  1234  1234 E AndroidRuntime: java.lang.IllegalStateException:   boom\tnow",
		"10-14 12:00:01.000  1234  1234 E AndroidRuntime: 	at com.example.Main.onCreate(Main.java:10)",
	}
	var p mobile.FatalParser
	var got []string
	for _, l := range lines {
		if exception, ok := p.Feed(l); ok {
			got = append(got, exception)
		}
	}
	assert.Equal(t, []string{"java.lang.IllegalStateException: boom now"}, got)
}

// TestLogcatWatcher tests the tee and the fatal callback over a recorded stream
func TestLogcatWatcher(t *testing.T) {
	r := newFakeRunner()
	r.stream = strings.Join([]string{
		"E AndroidRuntime: FATAL EXCEPTION: main",
		"E AndroidRuntime: Process: com.example, PID: 1",
		"E AndroidRuntime: java.lang.NullPointerException: oops",
		"I Other: fine",
		"E AndroidRuntime: FATAL EXCEPTION: worker",
		"E AndroidRuntime: Process: com.example, PID: 1",
		"E AndroidRuntime: java.lang.OutOfMemoryError",
	}, "\n")

	var fatal []string
	w := mobile.NewLogcatWatcher(mobile.NewADB("emulator-5554", r), "", func(e string) { fatal = append(fatal, e) }, nil)
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"java.lang.NullPointerException: oops", "java.lang.OutOfMemoryError"}, fatal)
	assert.Equal(t, []string{
		"adb -s emulator-5554 logcat -c",
		"adb -s emulator-5554 logcat -v threadtime",
	}, r.Calls())

	var sink bytes.Buffer
	require.NoError(t, w.Consume(strings.NewReader("a\nb\n"), &sink))
	assert.Equal(t, "a\nb\n", sink.String())
}

// TestDeviceCommands tests the adb commands events are turned into
func TestDeviceCommands(t *testing.T) {
	r := newFakeRunner()
	r.outputs["adb shell settings get system user_rotation"] = "0\n"
	d := mobile.NewAndroidDevice(mobile.NewADB("", r), nil, nil)
	d.RotationWait = 0

	button := ui.View{Bounds: ui.Rect{Left: 0, Top: 100, Right: 200, Bottom: 200}, Enabled: true}
	field := ui.View{Class: "android.widget.EditText", Bounds: ui.Rect{Left: 0, Top: 300, Right: 200, Bottom: 400}, Enabled: true, Editable: true}

	ctx := context.Background()
	events := []event.Event{
		event.NewKeyEvent(event.KeyBack),
		event.NewIntentEvent("am force-stop com.example"),
		event.NewTouchEvent(button),
		event.NewLongTouchEvent(button),
		event.NewSetTextEvent(field, "hello world"),
		event.NewScrollFullDown(1600),
		event.NewDoubleRotationEvent(),
		&event.ScriptReplayEvent{Source: "event_000002.json", Event: event.NewKeyEvent(event.KeyHome)},
		&event.ManualEvent{},
	}
	for _, ev := range events {
		require.NoError(t, d.Send(ctx, ev), ev.UniqueCode())
	}
	assert.Equal(t, []string{
		"adb shell input keyevent KEYCODE_BACK",
		"adb shell am force-stop com.example",
		"adb shell input tap 100 150",
		"adb shell input swipe 100 150 100 150 2000",
		"adb shell input tap 100 350",
		"adb shell input text hello%sworld",
		"adb shell input swipe 540 1600 540 160 500",
		"adb shell settings get system user_rotation",
		"adb shell settings put system user_rotation 1",
		"adb shell settings put system user_rotation 0",
		"adb shell input keyevent KEYCODE_HOME",
	}, r.Calls())
}

// TestDeviceState tests snapshot assembly from the window dump and the activity stack
func TestDeviceState(t *testing.T) {
	r := newFakeRunner()
	r.outputs["adb exec-out cat /sdcard/window_dump.xml"] = windowDump
	r.outputs["adb shell dumpsys activity activities"] = activityDump
	d := mobile.NewAndroidDevice(mobile.NewADB("", r), nil, nil)

	ctx := context.Background()
	state, err := d.CurrentState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "com.example/.DetailActivity", state.ForegroundActivity)
	assert.Equal(t, 2, state.ActivityDepth("com.android.launcher3"))
	assert.Equal(t, 1080, state.Width)
	assert.Len(t, state.Views, 3)
	assert.NotEmpty(t, state.StateStr)

	fg, err := d.IsForeground(ctx, "com.example")
	require.NoError(t, err)
	assert.True(t, fg)

	r.outputs["adb exec-out cat /sdcard/window_dump.xml"] = "garbage"
	state, err = d.CurrentState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state, "an unreadable dump is a null state")
}

// TestTextGenerator tests that fill values vary
func TestTextGenerator(t *testing.T) {
	g := mobile.NewTextGenerator(nil)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		v := g.Next()
		assert.NotEmpty(t, v)
		assert.NotContains(t, v, " ")
		seen[v] = true
	}
	assert.Greater(t, len(seen), 1)
}
