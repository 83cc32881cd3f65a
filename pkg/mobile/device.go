/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: device.go
Description: Android device backed by adb. Snapshots combine a uiautomator window dump with
the activity stack; events are injected with "input", rotation goes through the system
user_rotation setting.
*/

package mobile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/policy"
	"github.com/kleascm/dld/pkg/ui"
)

const (
	windowDumpPath      = "/sdcard/window_dump.xml"
	defaultScreenWidth  = 1080
	defaultRotationWait = time.Second
	scrollMillis        = 500
)

var _ policy.Device = (*AndroidDevice)(nil)

// AndroidDevice drives a phone or emulator
type AndroidDevice struct {
	adb    *ADB
	text   *TextGenerator
	logger *logrus.Logger

	// RotationWait separates the two halves of a double rotation
	RotationWait time.Duration
	width        int
}

// NewAndroidDevice creates a device. A nil generator or logger gets a default.
func NewAndroidDevice(adb *ADB, text *TextGenerator, logger *logrus.Logger) *AndroidDevice {
	if text == nil {
		text = NewTextGenerator(nil)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &AndroidDevice{
		adb:          adb,
		text:         text,
		logger:       logger,
		RotationWait: defaultRotationWait,
		width:        defaultScreenWidth,
	}
}

// ADB returns the underlying adb wrapper
func (d *AndroidDevice) ADB() *ADB { return d.adb }

// CurrentState dumps the window hierarchy and the activity stack. A dump that cannot be
// taken or parsed yields a nil state.
func (d *AndroidDevice) CurrentState(ctx context.Context) (*ui.State, error) {
	if _, err := d.adb.Shell(ctx, "uiautomator", "dump", windowDumpPath); err != nil {
		d.logger.WithError(err).Warn("Window dump failed")
		return nil, ctx.Err()
	}
	data, err := d.adb.ExecOut(ctx, "cat", windowDumpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read window dump: %w", err)
	}
	views, err := ParseHierarchy(data)
	if err != nil {
		d.logger.WithError(err).Warn("Window dump unreadable")
		return nil, nil
	}

	stack, resumed, err := d.activityStack(ctx)
	if err != nil {
		return nil, err
	}
	state := ui.NewState(resumed, stack, views)
	state.Tag = time.Now().Format("2006-01-02_150405")
	if len(views) > 0 {
		state.Width = views[0].Bounds.Width()
		state.Height = views[0].Bounds.Height()
		if state.Width > 0 {
			d.width = state.Width
		}
	}
	return state, nil
}

func (d *AndroidDevice) activityStack(ctx context.Context) ([]string, string, error) {
	out, err := d.adb.Shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return nil, "", fmt.Errorf("failed to read activity stack: %w", err)
	}
	stack, resumed := ParseActivityStack(out)
	return stack, resumed, nil
}

// IsForeground reports whether the resumed activity belongs to the package
func (d *AndroidDevice) IsForeground(ctx context.Context, pkg string) (bool, error) {
	_, resumed, err := d.activityStack(ctx)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(resumed, pkg+"/"), nil
}

// Orientation returns the user rotation index
func (d *AndroidDevice) Orientation(ctx context.Context) (int, error) {
	out, err := d.adb.Shell(ctx, "settings", "get", "system", "user_rotation")
	if err != nil {
		return 0, fmt.Errorf("failed to read orientation: %w", err)
	}
	angle, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected orientation %q", out)
	}
	return angle, nil
}

// CaptureScreenshot returns a PNG of the screen
func (d *AndroidDevice) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	data, err := d.adb.ExecOut(ctx, "screencap", "-p")
	if err != nil {
		return nil, fmt.Errorf("screencap failed: %w", err)
	}
	return data, nil
}

// EnableRotation turns the accelerometer off so user_rotation decides the orientation
func (d *AndroidDevice) EnableRotation(ctx context.Context) error {
	_, err := d.adb.Shell(ctx, "settings", "put", "system", "accelerometer_rotation", "0")
	return err
}

// SetOrientation forces the orientation index
func (d *AndroidDevice) SetOrientation(ctx context.Context, angle int) error {
	_, err := d.adb.Shell(ctx, "settings", "put", "system", "user_rotation", strconv.Itoa(angle))
	return err
}

// Send injects an event
func (d *AndroidDevice) Send(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case *event.KeyEvent:
		return d.input(ctx, "keyevent", "KEYCODE_"+e.Name)
	case *event.IntentEvent:
		_, err := d.adb.Shell(ctx, strings.Fields(e.Intent)...)
		return err
	case *event.TouchEvent:
		x, y := e.View.Bounds.Center()
		return d.input(ctx, "tap", strconv.Itoa(x), strconv.Itoa(y))
	case *event.LongTouchEvent:
		x, y := e.View.Bounds.Center()
		return d.swipe(ctx, x, y, x, y, e.Duration)
	case *event.ScrollEvent:
		return d.scroll(ctx, e)
	case *event.SetTextEvent:
		return d.typeInto(ctx, e.View, e.Text)
	case *event.FillUIEvent:
		for _, v := range e.Views() {
			if err := d.typeInto(ctx, v, d.text.Next()); err != nil {
				return err
			}
		}
		return nil
	case *event.DoubleRotationEvent:
		return d.doubleRotation(ctx)
	case *event.SetOrientationEvent:
		return d.SetOrientation(ctx, e.Angle)
	case *event.ScriptReplayEvent:
		return d.Send(ctx, e.Event)
	case *event.ManualEvent:
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

func (d *AndroidDevice) input(ctx context.Context, args ...string) error {
	_, err := d.adb.Shell(ctx, append([]string{"input"}, args...)...)
	return err
}

func (d *AndroidDevice) swipe(ctx context.Context, x1, y1, x2, y2, millis int) error {
	return d.input(ctx, "swipe", strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(millis))
}

// scroll moves the content in the given direction; the finger travels the opposite way
func (d *AndroidDevice) scroll(ctx context.Context, e *event.ScrollEvent) error {
	if e.View == nil {
		x := d.width / 2
		return d.swipe(ctx, x, e.YFullDown, x, e.YFullDown/10, scrollMillis)
	}
	b := e.View.Bounds
	x, y := b.Center()
	dx, dy := b.Width()/4, b.Height()/4
	switch e.Direction {
	case event.ScrollUp:
		return d.swipe(ctx, x, y-dy, x, y+dy, scrollMillis)
	case event.ScrollDown:
		return d.swipe(ctx, x, y+dy, x, y-dy, scrollMillis)
	case event.ScrollLeft:
		return d.swipe(ctx, x-dx, y, x+dx, y, scrollMillis)
	case event.ScrollRight:
		return d.swipe(ctx, x+dx, y, x-dx, y, scrollMillis)
	default:
		return fmt.Errorf("unknown scroll direction %q", e.Direction)
	}
}

func (d *AndroidDevice) typeInto(ctx context.Context, v ui.View, text string) error {
	x, y := v.Bounds.Center()
	if err := d.input(ctx, "tap", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return d.input(ctx, "text", escapeInput(text))
}

// doubleRotation turns the screen to the other axis and back
func (d *AndroidDevice) doubleRotation(ctx context.Context) error {
	current, err := d.Orientation(ctx)
	if err != nil {
		return err
	}
	other := 1
	if current%2 == 1 {
		other = 0
	}
	if err := d.SetOrientation(ctx, other); err != nil {
		return err
	}
	t := time.NewTimer(d.RotationWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return d.SetOrientation(ctx, current)
}
