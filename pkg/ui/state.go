/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: state.go
Description: Device state snapshots. A State is produced by the device collaborator once per
tick and is never mutated by the exploration core. Its StateStr fingerprint is the node key of
the UI transition graph.
*/

package ui

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// State is a read-only snapshot of the device UI
type State struct {
	ForegroundActivity string   `json:"foreground_activity"`
	ActivityStack      []string `json:"activity_stack"` // Top of the stack first
	Views              []View   `json:"views"`
	StateStr           string   `json:"state_str"` // Content fingerprint
	Tag                string   `json:"tag"`       // Capture timestamp tag
	Width              int      `json:"width"`
	Height             int      `json:"height"`
}

// NewState builds a state and computes its fingerprint from the activity and the views
func NewState(foreground string, stack []string, views []View) *State {
	s := &State{
		ForegroundActivity: foreground,
		ActivityStack:      stack,
		Views:              views,
	}
	s.StateStr = Fingerprint(foreground, views)
	return s
}

// Fingerprint hashes the foreground activity together with the view signatures
func Fingerprint(foreground string, views []View) string {
	h := sha256.New()
	h.Write([]byte(foreground))
	for i := range views {
		h.Write([]byte{0})
		if views[i].Signature != "" {
			h.Write([]byte(views[i].Signature))
			continue
		}
		h.Write([]byte(views[i].Identity()))
		h.Write([]byte(views[i].Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ActivityDepth returns the position of the app in the activity stack: 0 when it is in
// the foreground, a positive depth when it is behind other activities and -1 if absent.
// Stack entries are component names, so only "<package>/" matches.
func (s *State) ActivityDepth(packageName string) int {
	prefix := packageName + "/"
	for depth, activity := range s.ActivityStack {
		if strings.HasPrefix(activity, prefix) {
			return depth
		}
	}
	return -1
}

// IsDifferentFrom reports whether two snapshots have different fingerprints
func (s *State) IsDifferentFrom(other *State) bool {
	if other == nil {
		return true
	}
	return s.StateStr != other.StateStr
}

// ShortActivity returns the simple class name of the foreground activity
func (s *State) ShortActivity() string {
	return ShortName(s.ForegroundActivity)
}

// ShortName strips the package prefix from a fully-qualified activity name
func ShortName(activity string) string {
	return activity[strings.LastIndex(activity, ".")+1:]
}

// EditableViews returns the views that accept text input
func (s *State) EditableViews() []View {
	var out []View
	for _, v := range s.Views {
		if v.Editable && v.Enabled {
			out = append(out, v)
		}
	}
	return out
}
