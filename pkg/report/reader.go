/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reader.go
Description: Parses a session report back into rows and counters with goquery.
*/

package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Report is a parsed session report
type Report struct {
	Header   Header
	Rows     []Row
	Summary  Summary
	Complete bool // the tail was found
}

// Findings returns the rows that carry an exception
func (r *Report) Findings() []Row {
	var out []Row
	for _, row := range r.Rows {
		if row.Result == ResultException {
			out = append(out, row)
		}
	}
	return out
}

// ReadFile parses the report stored at path
func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a report document
func Parse(r io.Reader) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	rep := &Report{}
	body := doc.Find("body")
	rep.Header.SessionID, _ = body.Attr("data-session")
	rep.Header.Package, _ = body.Attr("data-package")

	doc.Find("table#results tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() != 8 {
			return
		}
		text := func(i int) string { return strings.TrimSpace(cells.Eq(i).Text()) }
		rep.Rows = append(rep.Rows, Row{
			Time:          text(0),
			Result:        text(1),
			Activity:      text(2),
			Event:         text(3),
			ViewBounds:    text(4),
			AbstractState: text(5),
			ExceptionType: text(6),
			ExceptionMsg:  text(7),
		})
	})

	items := doc.Find("ul#summary li")
	rep.Complete = items.Length() > 0
	var parseErr error
	items.Each(func(_ int, li *goquery.Selection) {
		key, _ := li.Attr("data-key")
		value := li.Text()
		if _, after, ok := strings.Cut(value, ":"); ok {
			value = after
		}
		value = strings.TrimSpace(value)
		if err := rep.Summary.set(key, value); err != nil && parseErr == nil {
			parseErr = err
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return rep, nil
}

func (s *Summary) set(key, value string) error {
	if key == "start" {
		s.Start = value
		return nil
	}
	if key == "end" {
		s.End = value
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil {
		return fmt.Errorf("invalid summary value %q for %s: %w", value, key, err)
	}
	switch key {
	case "activity_coverage":
		s.ActivityCoverage = n
	case "activity_tested":
		s.ActivityTested = n
	case "events":
		s.Events = n
	case "fill_ui":
		s.FillUI = n
	case "double_rotation":
		s.DoubleRotation = n
	case "data_loss":
		s.DataLoss = n
	case "fatal":
		s.Fatal = n
	}
	return nil
}
