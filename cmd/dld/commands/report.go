/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: The report command. Reads a session report back and prints its counters and the
data-loss and fatal-exception findings.
*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kleascm/dld/pkg/report"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "report <report.html>",
		Short:   "Summarize a session report",
		Example: "  dld report ./dld_output/report.html --all",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.ReadFile(args[0])
			if err != nil {
				return err
			}
			PrintReport(rep, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every row, not only the findings")
	return cmd
}

// PrintReport prints a parsed report
func PrintReport(rep *report.Report, all bool) {
	printHeader("📄 Session Report")
	printField("Session", rep.Header.SessionID)
	printField("Package", rep.Header.Package)
	if !rep.Complete {
		fmt.Println(warnColor("  ⚠️  The session did not finish, counters are missing"))
	} else {
		s := rep.Summary
		printField("Started", s.Start)
		printField("Finished", s.End)
		printField("Events", s.Events)
		printField("Activities", fmt.Sprintf("%d tested / %d covered", s.ActivityTested, s.ActivityCoverage))
		printField("Fill UI", s.FillUI)
		printField("Rotations", s.DoubleRotation)
		printField("Data loss", countColor(s.DataLoss))
		printField("Fatal", countColor(s.Fatal))
	}
	fmt.Println()

	rows := rep.Findings()
	title := "🚨 Findings"
	if all {
		rows = rep.Rows
		title = "📋 Rows"
	}
	fmt.Println(headerColor(fmt.Sprintf("%s (%d)", title, len(rows))))
	if len(rows) == 0 {
		fmt.Println(successColor("  ✨ Nothing was lost"))
		return
	}
	for _, row := range rows {
		result := successColor(row.Result)
		if row.Result == report.ResultException {
			result = errorColor(row.Result)
		}
		fmt.Printf("  %s %s %s\n", dimColor(row.Time), result, labelColor(row.Activity))
		fmt.Printf("      event: %s\n", row.Event)
		if row.ExceptionType != "" {
			fmt.Printf("      %s: %s\n", warnColor(row.ExceptionType), row.ExceptionMsg)
		}
		if row.ViewBounds != "" {
			fmt.Printf("      views: %s\n", row.ViewBounds)
		}
	}
}
