/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: hierarchy.go
Description: Parsers for device output: uiautomator window dumps become flat view lists with
parent/child links, and "dumpsys activity activities" becomes the activity stack.
*/

package mobile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kleascm/dld/pkg/ui"
)

type xmlNode struct {
	Text          string    `xml:"text,attr"`
	ResourceID    string    `xml:"resource-id,attr"`
	Class         string    `xml:"class,attr"`
	Package       string    `xml:"package,attr"`
	ContentDesc   string    `xml:"content-desc,attr"`
	Checkable     string    `xml:"checkable,attr"`
	Checked       string    `xml:"checked,attr"`
	Clickable     string    `xml:"clickable,attr"`
	Enabled       string    `xml:"enabled,attr"`
	Focused       string    `xml:"focused,attr"`
	Scrollable    string    `xml:"scrollable,attr"`
	LongClickable string    `xml:"long-clickable,attr"`
	Selected      string    `xml:"selected,attr"`
	Visible       string    `xml:"visible-to-user,attr"`
	Bounds        string    `xml:"bounds,attr"`
	Nodes         []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName xml.Name  `xml:"hierarchy"`
	Nodes   []xmlNode `xml:"node"`
}

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseHierarchy flattens a uiautomator dump in depth-first order. TempIDs are list indexes.
func ParseHierarchy(data []byte) ([]ui.View, error) {
	// uiautomator may print a status line after the document
	if end := bytes.LastIndex(data, []byte("</hierarchy>")); end >= 0 {
		data = data[:end+len("</hierarchy>")]
	}
	var h xmlHierarchy
	if err := xml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse window dump: %w", err)
	}
	var views []ui.View
	var walk func(n *xmlNode, parent int) (int, error)
	walk = func(n *xmlNode, parent int) (int, error) {
		bounds, err := parseBounds(n.Bounds)
		if err != nil {
			return 0, err
		}
		id := len(views)
		views = append(views, ui.View{
			TempID:             id,
			Parent:             parent,
			ChildCount:         len(n.Nodes),
			Class:              n.Class,
			ResourceID:         n.ResourceID,
			Text:               n.Text,
			ContentDescription: n.ContentDesc,
			Package:            n.Package,
			Bounds:             bounds,
			Enabled:            n.Enabled == "true",
			Visible:            n.Visible != "false",
			Clickable:          n.Clickable == "true",
			LongClickable:      n.LongClickable == "true",
			Checkable:          n.Checkable == "true",
			Checked:            n.Checked == "true",
			Scrollable:         n.Scrollable == "true",
			Editable:           strings.Contains(n.Class, "EditText"),
			Focused:            n.Focused == "true",
			Selected:           n.Selected == "true",
		})
		for i := range n.Nodes {
			child, err := walk(&n.Nodes[i], id)
			if err != nil {
				return 0, err
			}
			views[id].Children = append(views[id].Children, child)
		}
		return id, nil
	}
	for i := range h.Nodes {
		if _, err := walk(&h.Nodes[i], -1); err != nil {
			return nil, err
		}
	}
	for i := range views {
		sign(views, i)
	}
	return views, nil
}

func parseBounds(s string) (ui.Rect, error) {
	m := boundsPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ui.Rect{}, fmt.Errorf("invalid bounds %q", s)
	}
	n := make([]int, 4)
	for i := range n {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	return ui.Rect{Left: n[0], Top: n[1], Right: n[2], Bottom: n[3]}, nil
}

// sign fills the content-aware signature and the view string, which also covers the
// parent so equal widgets in different containers stay distinct
func sign(views []ui.View, i int) {
	v := &views[i]
	v.Signature = fmt.Sprintf("[class]%s[resource_id]%s[text]%s[%t,%t,%t]",
		v.Class, v.ResourceID, v.Text, v.Enabled, v.Checked, v.Selected)
	parent := ""
	if v.Parent >= 0 {
		parent = views[v.Parent].Class + views[v.Parent].ResourceID
	}
	sum := sha256.Sum256([]byte(v.Signature + "|" + v.Bounds.String() + "|" + parent))
	v.ViewStr = hex.EncodeToString(sum[:8])
}

var (
	activityRecord = regexp.MustCompile(`ActivityRecord\{\S+ u\d+ (\S+/\S+)`)
	resumedLine    = regexp.MustCompile(`(?:mResumedActivity|ResumedActivity|topResumedActivity)[:=]\s*ActivityRecord\{\S+ u\d+ (\S+/\S+)`)
)

// ParseActivityStack extracts the activity stack, top first, and the resumed activity from
// "dumpsys activity activities". The resumed activity falls back to the top of the stack.
func ParseActivityStack(output string) (stack []string, resumed string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if resumed == "" {
			if m := resumedLine.FindStringSubmatch(line); m != nil {
				resumed = normalizeActivity(m[1])
				continue
			}
		}
		if !strings.Contains(line, "Hist #") {
			continue
		}
		if m := activityRecord.FindStringSubmatch(line); m != nil {
			stack = append(stack, normalizeActivity(m[1]))
		}
	}
	if resumed == "" && len(stack) > 0 {
		resumed = stack[0]
	}
	return stack, resumed
}

func normalizeActivity(s string) string {
	return strings.TrimRight(s, "}")
}
