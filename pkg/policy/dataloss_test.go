/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dataloss_test.go
Description: Tests for the data-loss policy: the compound sequence, findings and their
artifacts, recovery alternation, consent taps, epsilon-greedy selection, activities learnt at
runtime and the report it writes.
*/

package policy_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/policy"
	"github.com/kleascm/dld/pkg/policy/policytest"
	"github.com/kleascm/dld/pkg/report"
	"github.com/kleascm/dld/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataLossFixture struct {
	dev      *policytest.Device
	policy   *policy.DataLossPolicy
	dir      string
	findings []*oracle.Finding
	tick     int
}

func newDataLossFixture(t *testing.T, dev *policytest.Device, epsilon float64) *dataLossFixture {
	t.Helper()
	return newDataLossFixtureFor(t, dev, policytest.NewApp("MainActivity"), epsilon)
}

func newDataLossFixtureFor(t *testing.T, dev *policytest.Device, app *policytest.App, epsilon float64) *dataLossFixture {
	t.Helper()
	dir := t.TempDir()
	w, err := report.Create(filepath.Join(dir, "report.html"), report.Header{SessionID: "test", Package: policytest.Package})
	require.NoError(t, err)

	fx := &dataLossFixture{dev: dev, dir: dir, tick: 2}
	fx.policy = policy.NewDataLossPolicy(newSession(dev, app), policy.DataLossOptions{
		Epsilon:   epsilon,
		OutputDir: dir,
		Report:    w,
		OnFinding: func(f *oracle.Finding) { fx.findings = append(fx.findings, f) },
	})
	return fx
}

// step runs one full tick: decide, dispatch hooks and send
func (fx *dataLossFixture) step(t *testing.T) event.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := fx.policy.NextEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NoError(t, fx.policy.BeforeDispatch(ctx, ev))
	require.NoError(t, fx.dev.Send(ctx, ev))
	require.NoError(t, fx.policy.AfterDispatch(ctx, ev, fx.tick))
	fx.tick++
	return ev
}

func (fx *dataLossFixture) finish(t *testing.T) *report.Report {
	t.Helper()
	require.NoError(t, fx.policy.Finish(context.Background(), fx.tick))
	rep, err := report.ReadFile(filepath.Join(fx.dir, "report.html"))
	require.NoError(t, err)
	require.True(t, rep.Complete)
	return rep
}

func formScreen(text string) *ui.State {
	return policytest.Screen("MainActivity", policytest.Field(1, text), policytest.Button(2, "Save"))
}

// TestDataLossCompoundSequence tests fill, double rotation and scroll on a new abstract state
func TestDataLossCompoundSequence(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{"form": formScreen("")})
	dev.Shots = [][]byte{policytest.PNG(50, 10), policytest.PNG(50, 10)}
	fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)

	_, ok := fx.step(t).(*event.FillUIEvent)
	require.True(t, ok, "first visit fills the form")
	_, ok = fx.step(t).(*event.DoubleRotationEvent)
	require.True(t, ok, "fill is followed by a rotation")
	scroll, ok := fx.step(t).(*event.ScrollEvent)
	require.True(t, ok, "rotation of a fill is followed by a scroll")
	assert.Equal(t, event.ScrollFullDown, scroll.Direction)
	assert.Equal(t, policy.DefaultScrollFullDownY, scroll.YFullDown)

	_, ok = fx.step(t).(*event.FillUIEvent)
	assert.False(t, ok, "a known abstract state is not filled again")
	assert.Empty(t, fx.findings)

	stats := fx.policy.Stats()
	assert.Equal(t, 1, stats.FillUI)
	assert.Equal(t, 1, stats.DoubleRotations)
	assert.Equal(t, 100, stats.ActivityCoverage)
	assert.Equal(t, 100, stats.ActivityTested)
	assert.Equal(t, []string{"MainActivity"}, fx.policy.Registry().Activities())

	rep := fx.finish(t)
	assert.Len(t, rep.Rows, 4)
	assert.Empty(t, rep.Findings())
	assert.Equal(t, 1, rep.Summary.FillUI)
	assert.Equal(t, 1, rep.Summary.DoubleRotation)
	assert.Equal(t, 6, rep.Summary.Events)
	for _, row := range rep.Rows {
		assert.Equal(t, report.ResultOk, row.Result)
		assert.Equal(t, "MainActivity", row.Activity)
		assert.NotEmpty(t, row.AbstractState)
	}
}

// assertCompound checks that the next three ticks are fill, double rotation and scroll
func (fx *dataLossFixture) assertCompound(t *testing.T) {
	t.Helper()
	_, ok := fx.step(t).(*event.FillUIEvent)
	require.True(t, ok, "a new abstract state is filled")
	_, ok = fx.step(t).(*event.DoubleRotationEvent)
	require.True(t, ok, "fill is followed by a rotation")
	scroll, ok := fx.step(t).(*event.ScrollEvent)
	require.True(t, ok, "rotation of a fill is followed by a scroll")
	assert.Equal(t, event.ScrollFullDown, scroll.Direction)
}

// TestDataLossCompoundFullEpsilon tests that the compound sequence runs once per abstract
// state even when every other pick is random
func TestDataLossCompoundFullEpsilon(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{"form": formScreen("")})
	fx := newDataLossFixture(t, dev, 1)

	fx.assertCompound(t)
	for i := 0; i < 12; i++ {
		ev := fx.step(t)
		_, filled := ev.(*event.FillUIEvent)
		assert.False(t, filled, "tick %d refilled a known abstract state", i)
		_, rotated := ev.(*event.DoubleRotationEvent)
		assert.False(t, rotated, "tick %d rotated outside the compound sequence", i)
	}

	stats := fx.policy.Stats()
	assert.Equal(t, 1, stats.FillUI)
	assert.Equal(t, 1, stats.DoubleRotations)
	assert.Equal(t, []string{"MainActivity"}, fx.policy.Registry().Activities())
}

// TestDataLossCompoundPerAbstractState tests that a second abstract state of the same
// activity gets its own compound sequence
func TestDataLossCompoundPerAbstractState(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{
		"form": formScreen(""),
		"form2": policytest.Screen("MainActivity",
			policytest.Field(1, ""), policytest.Field(3, ""), policytest.Button(2, "Next")),
	})
	dev.Route("form", event.NewScrollFullDown(policy.DefaultScrollFullDownY), "form2")
	fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)

	fx.assertCompound(t)
	assert.Equal(t, "form2", dev.Current)
	fx.assertCompound(t)

	_, filled := fx.step(t).(*event.FillUIEvent)
	assert.False(t, filled)

	stats := fx.policy.Stats()
	assert.Equal(t, 2, stats.FillUI)
	assert.Equal(t, 2, stats.DoubleRotations)
	assert.Equal(t, 100, stats.ActivityTested)
	assert.Equal(t, []string{"MainActivity"}, fx.policy.Registry().Activities())
}

// TestDataLossPackageOnly tests an app described by its package name alone: its
// activities are learnt from the foreground and explored like declared ones
func TestDataLossPackageOnly(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{
		"form": policytest.Screen("MainActivity", policytest.Field(1, ""), policytest.Button(2, "OK")),
	})
	fx := newDataLossFixtureFor(t, dev, policytest.NewApp(), policy.DefaultEpsilon)

	fx.assertCompound(t)

	stats := fx.policy.Stats()
	assert.Equal(t, 1, stats.FillUI)
	assert.Equal(t, 100, stats.ActivityCoverage)
	assert.Equal(t, 100, stats.ActivityTested)
	assert.Equal(t, []string{"MainActivity"}, fx.policy.Registry().Activities())

	// Foreign screens are never learnt as app activities
	dev.Screens["dialog"] = policytest.Foreign("com.examplebis/.Dialog", true, policytest.Button(1, "OK"))
	dev.Current = "dialog"
	tap, ok := fx.step(t).(*event.TouchEvent)
	require.True(t, ok, "a foreign dialog gets a consent tap")
	assert.Equal(t, "OK", tap.View.Text)
	assert.Equal(t, 100, fx.policy.Stats().ActivityCoverage)
}

// TestDataLossFinding tests a rotation that clears a typed field
func TestDataLossFinding(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{
		"form":   formScreen(""),
		"filled": formScreen("HelloWorld"),
	})
	dev.Route("form", event.NewFillUIEvent(nil), "filled")
	dev.Route("filled", event.NewDoubleRotationEvent(), "form")
	fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)

	fx.step(t)
	fx.step(t)
	require.Len(t, fx.findings, 1)
	assert.Equal(t, oracle.CategoryViews, fx.findings[0].Category)
	assert.Equal(t, 1, fx.policy.Stats().DataLoss)

	dumps, err := filepath.Glob(filepath.Join(fx.dir, "dataloss", "views", "*_views.txt"))
	require.NoError(t, err)
	assert.Len(t, dumps, 1)

	// A finding aborts the sequence, so no scroll follows the rotation
	_, scrolled := fx.step(t).(*event.ScrollEvent)
	assert.False(t, scrolled)

	rep := fx.finish(t)
	findings := rep.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, oracle.ExceptionType, findings[0].ExceptionType)
	assert.Equal(t, "Mismatch between views", findings[0].ExceptionMsg)
	assert.Equal(t, 1, rep.Summary.DataLoss)
}

// TestDataLossRecovery tests the alternation between start intent and BACK
func TestDataLossRecovery(t *testing.T) {
	tests := []struct {
		name   string
		screen *ui.State
		want   []string
	}{
		{"absent", policytest.Foreign(launcher, false), []string{startCode, back, startCode, back}},
		{"background", policytest.Foreign("com.android.chrome/.Main", true), []string{back, startCode, back, startCode}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := policytest.NewDevice("other", map[string]*ui.State{"other": tt.screen})
			fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)
			assert.Equal(t, tt.want, run(t, fx.policy, dev, len(tt.want)))
		})
	}
}

// TestDataLossConsent tests consent taps outside the app and their budget
func TestDataLossConsent(t *testing.T) {
	allow := policytest.Button(1, "Allow")
	dev := policytest.NewDevice("grant", map[string]*ui.State{
		"grant": policytest.Foreign("com.android.permissioncontroller/.permission.ui.GrantPermissionsActivity", true, allow),
	})
	fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)

	limits := policy.DefaultLimits()
	codes := run(t, fx.policy, dev, limits.MaxStepsOutside+2)
	for _, c := range codes[:limits.MaxStepsOutside+1] {
		assert.Equal(t, touch(allow), c)
	}
	assert.Equal(t, back, codes[limits.MaxStepsOutside+1], "the budget is spent, recovery takes over")
}

// TestDataLossEpsilonGreedy tests that untriggered events are preferred until exhausted
func TestDataLossEpsilonGreedy(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{"form": formScreen("")})
	fx := newDataLossFixture(t, dev, 0)

	for i := 0; i < 3; i++ {
		fx.step(t)
	}
	first := fx.step(t).UniqueCode()
	second := fx.step(t).UniqueCode()
	assert.NotEqual(t, first, second)

	want := []string{
		touch(policytest.Button(2, "Save")),
		event.NewSetTextEvent(policytest.Field(1, ""), event.DefaultInputText).UniqueCode(),
	}
	assert.ElementsMatch(t, want, []string{first, second})
}

// TestDataLossFatal tests fatal exceptions reported by the log watcher
func TestDataLossFatal(t *testing.T) {
	dev := policytest.NewDevice("form", map[string]*ui.State{"form": formScreen("")})
	fx := newDataLossFixture(t, dev, policy.DefaultEpsilon)
	fx.step(t)

	fx.policy.ReportFatal("java.lang.IllegalStateException: boom")
	assert.Equal(t, 1, fx.policy.Stats().Fatal)

	rep := fx.finish(t)
	findings := rep.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, "java.lang.IllegalStateException: boom", findings[0].ExceptionType)
	assert.Equal(t, "MainActivity", findings[0].Activity)
	assert.Equal(t, 1, rep.Summary.Fatal)
}
