/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: oracle.go
Description: Rotation oracle. Around a double rotation the view trees and the screenshots
taken before and after are compared; any mismatch becomes a categorized data-loss finding whose
evidence is saved under the output directory.
*/

package oracle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kleascm/dld/pkg/ui"
)

// Category names which signals fired
type Category string

const (
	CategoryViews       Category = "Views"
	CategoryScreenshots Category = "Screenshots"
	CategoryBoth        Category = "ViewsAndScreenshots"
)

// ExceptionType is the report label of a data-loss finding
const ExceptionType = "DataLossException"

// Dir returns the artifact subdirectory of the category
func (c Category) Dir() string {
	switch c {
	case CategoryViews:
		return "views"
	case CategoryScreenshots:
		return "screenshots"
	default:
		return "views_and_screenshots"
	}
}

// Finding is a detected data-loss defect. It is a result, not an error.
type Finding struct {
	Category    Category
	Description string
	Event       string
	DetectedAt  time.Time
}

// Message renders the finding for logs
func (f *Finding) Message() string {
	return fmt.Sprintf("%s has generated a data loss exception. %s.", f.Event, f.Description)
}

// Oracle compares device states around a rotation
type Oracle struct {
	Threshold float64 // percentage of changed pixels tolerated
}

// New creates an oracle. A negative threshold selects the default; zero reports any
// changed pixel.
func New(threshold float64) *Oracle {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Oracle{Threshold: threshold}
}

// Check runs the structural and visual diffs. Screenshots may be nil, in which case only
// the views are compared. A screenshot comparison error is returned alongside the
// structural result.
func (o *Oracle) Check(eventDesc string, before, after *ui.State, shotBefore, shotAfter *Screenshot) (*Finding, error) {
	if before == nil || after == nil {
		return nil, fmt.Errorf("missing state around rotation")
	}
	viewsChanged := ViewsDiffer(before.Views, after.Views)

	var shotsChanged bool
	var shotErr error
	if shotBefore != nil && shotAfter != nil {
		shotsChanged, shotErr = shotBefore.DiffersFrom(shotAfter, o.Threshold)
		if shotErr != nil {
			shotErr = fmt.Errorf("screenshot comparison failed: %w", shotErr)
		}
	}

	var f *Finding
	switch {
	case viewsChanged && shotsChanged:
		f = &Finding{Category: CategoryBoth, Description: "Mismatch between views and screenshots"}
	case viewsChanged:
		f = &Finding{Category: CategoryViews, Description: "Mismatch between views"}
	case shotsChanged:
		f = &Finding{Category: CategoryScreenshots, Description: "Mismatch between screenshots"}
	default:
		return nil, shotErr
	}
	f.Event = eventDesc
	f.DetectedAt = time.Now()
	return f, shotErr
}

// Evidence is what gets persisted for a finding
type Evidence struct {
	Before, After         *ui.State
	ShotBefore, ShotAfter *Screenshot
}

// SaveArtifacts writes the view dumps and, when present, both screenshots under
// <outDir>/dataloss/<category>/<stamp>_*. It returns the directory used.
func SaveArtifacts(outDir, stamp string, f *Finding, ev Evidence) (string, error) {
	root := filepath.Join(outDir, "dataloss")
	for _, c := range []Category{CategoryViews, CategoryScreenshots, CategoryBoth} {
		if err := os.MkdirAll(filepath.Join(root, c.Dir()), 0755); err != nil {
			return "", fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	dir := filepath.Join(root, f.Category.Dir())

	var sb strings.Builder
	sb.WriteString("BEFORE: ")
	writeViews(&sb, ev.Before)
	sb.WriteString("\nAFTER : ")
	writeViews(&sb, ev.After)
	if err := os.WriteFile(filepath.Join(dir, stamp+"_views.txt"), []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write view dump: %w", err)
	}

	if ev.ShotBefore == nil || ev.ShotAfter == nil {
		return dir, nil
	}
	if err := ev.ShotBefore.WritePNG(filepath.Join(dir, stamp+"_before.png")); err != nil {
		return "", err
	}
	if err := ev.ShotAfter.WritePNG(filepath.Join(dir, stamp+"_after.png")); err != nil {
		return "", err
	}
	return dir, nil
}

func writeViews(sb *strings.Builder, s *ui.State) {
	if s == nil {
		sb.WriteString("[]")
		return
	}
	sb.WriteString("[")
	for i, v := range filterViews(s.Views) {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%+v", v)
	}
	sb.WriteString("]")
}
