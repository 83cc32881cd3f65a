/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: views.go
Description: Structural comparison of two view trees. Identity and hierarchy bookkeeping
fields are ignored; the remaining attributes are compared view by view after dropping
duplicates.
*/

package oracle

import (
	"github.com/kleascm/dld/pkg/ui"
)

// comparedView holds the attributes that take part in the structural diff. Children,
// temp id, child count, parent and the three signature strings are left out.
type comparedView struct {
	Class              string
	ResourceID         string
	Text               string
	ContentDescription string
	Package            string
	Bounds             ui.Rect

	Enabled       bool
	Visible       bool
	Clickable     bool
	LongClickable bool
	Checkable     bool
	Checked       bool
	Scrollable    bool
	Editable      bool
	Focused       bool
	Selected      bool
}

func project(v ui.View) comparedView {
	return comparedView{
		Class:              v.Class,
		ResourceID:         v.ResourceID,
		Text:               v.Text,
		ContentDescription: v.ContentDescription,
		Package:            v.Package,
		Bounds:             v.Bounds,
		Enabled:            v.Enabled,
		Visible:            v.Visible,
		Clickable:          v.Clickable,
		LongClickable:      v.LongClickable,
		Checkable:          v.Checkable,
		Checked:            v.Checked,
		Scrollable:         v.Scrollable,
		Editable:           v.Editable,
		Focused:            v.Focused,
		Selected:           v.Selected,
	}
}

// filterViews projects views onto the compared attributes and drops duplicates,
// keeping first occurrences in order
func filterViews(views []ui.View) []comparedView {
	seen := make(map[comparedView]bool, len(views))
	out := make([]comparedView, 0, len(views))
	for _, v := range views {
		p := project(v)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ViewsDiffer reports whether two view lists differ in any compared attribute
func ViewsDiffer(before, after []ui.View) bool {
	b := filterViews(before)
	a := filterViews(after)
	if len(b) != len(a) {
		return true
	}
	for i := range b {
		if b[i] != a[i] {
			return true
		}
	}
	return false
}
