/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: view.go
Description: View descriptors captured from the Android view hierarchy. A View is a flat,
read-only record of one node of the UI tree with its geometry, its interaction flags and the
identity strings the exploration core uses for deduplication.
*/

package ui

import (
	"fmt"
)

// Rect is an on-screen rectangle in device pixels
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Center returns the center point of the rectangle
func (r Rect) Center() (int, int) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Width returns the horizontal extent of the rectangle
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the vertical extent of the rectangle
func (r Rect) Height() int { return r.Bottom - r.Top }

// String renders the rectangle the way uiautomator does, as [[left,top],[right,bottom]]
func (r Rect) String() string {
	return fmt.Sprintf("[[%d,%d],[%d,%d]]", r.Left, r.Top, r.Right, r.Bottom)
}

// View represents one node of the device view hierarchy
type View struct {
	TempID     int   `json:"temp_id"`     // Index of the view inside its state
	Parent     int   `json:"parent"`      // TempID of the parent, -1 for the root
	Children   []int `json:"children"`    // TempIDs of the direct children
	ChildCount int   `json:"child_count"` // Number of direct children

	Class              string `json:"class"`
	ResourceID         string `json:"resource_id"`
	Text               string `json:"text"`
	ContentDescription string `json:"content_description"`
	Package            string `json:"package"`
	Bounds             Rect   `json:"bounds"`

	Enabled       bool `json:"enabled"`
	Visible       bool `json:"visible"`
	Clickable     bool `json:"clickable"`
	LongClickable bool `json:"long_clickable"`
	Checkable     bool `json:"checkable"`
	Checked       bool `json:"checked"`
	Scrollable    bool `json:"scrollable"`
	Editable      bool `json:"editable"`
	Focused       bool `json:"focused"`
	Selected      bool `json:"selected"`

	ViewStr              string `json:"view_str"`               // Content-aware view identity
	Signature            string `json:"signature"`              // Content-aware signature
	ContentFreeSignature string `json:"content_free_signature"` // Signature without text
}

// IsLeaf reports whether the view has no children
func (v *View) IsLeaf() bool {
	return len(v.Children) == 0
}

// Identity returns a content-free identity for the view. Text is left out so that
// typing into a field does not turn it into a different target.
func (v *View) Identity() string {
	if v.ContentFreeSignature != "" {
		return v.ContentFreeSignature
	}
	return fmt.Sprintf("[class]%s[resource_id]%s[bounds]%s", v.Class, v.ResourceID, v.Bounds)
}

// Label returns a short human-readable label used in event descriptions
func (v *View) Label() string {
	return fmt.Sprintf("%s(%s/%s)", v.Class, v.ResourceID, v.Text)
}
