/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: filter.go
Description: Candidate view filter of the data-loss policy. Touch and long-touch candidates
whose view matches the boolean expression are dropped; the expression is compiled once with
expr and evaluated against the view attributes.
*/

package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// DefaultViewFilter drops container layouts, which never react to touches
const DefaultViewFilter = `lower(class) contains "layout"`

// ViewFilter decides which views are excluded from touch candidates
type ViewFilter struct {
	source  string
	program *vm.Program
}

func viewEnv(v ui.View) map[string]any {
	return map[string]any{
		"class":               v.Class,
		"resource_id":         v.ResourceID,
		"text":                v.Text,
		"content_description": v.ContentDescription,
		"package":             v.Package,
		"clickable":           v.Clickable,
		"long_clickable":      v.LongClickable,
		"editable":            v.Editable,
		"scrollable":          v.Scrollable,
		"checkable":           v.Checkable,
	}
}

// NewViewFilter compiles a filter expression. An empty expression excludes nothing.
func NewViewFilter(source string) (*ViewFilter, error) {
	source = strings.TrimSpace(source)
	f := &ViewFilter{source: source}
	if source == "" {
		return f, nil
	}
	program, err := expr.Compile(source, expr.Env(viewEnv(ui.View{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid view filter %q: %w", source, err)
	}
	f.program = program
	return f, nil
}

// String returns the filter expression
func (f *ViewFilter) String() string { return f.source }

// Excludes reports whether the view matches the filter
func (f *ViewFilter) Excludes(v ui.View) (bool, error) {
	if f == nil || f.program == nil {
		return false, nil
	}
	out, err := expr.Run(f.program, viewEnv(v))
	if err != nil {
		return false, fmt.Errorf("view filter failed: %w", err)
	}
	excluded, _ := out.(bool)
	return excluded, nil
}

// Apply drops filtered touch targets and duplicate codes, keeping the first occurrence
func (f *ViewFilter) Apply(events []event.Event) ([]event.Event, error) {
	out := make([]event.Event, 0, len(events))
	for _, ev := range events {
		var target *ui.View
		switch e := ev.(type) {
		case *event.TouchEvent:
			target = &e.View
		case *event.LongTouchEvent:
			target = &e.View
		}
		if target != nil {
			excluded, err := f.Excludes(*target)
			if err != nil {
				return nil, err
			}
			if excluded {
				continue
			}
		}
		out = append(out, ev)
	}
	return event.Dedupe(out), nil
}
