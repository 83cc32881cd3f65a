/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: banner.go
Description: Terminal output of the dld commands. Startup and summary banners, check results
and report listings share the colour palette defined here.
*/

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	labelColor   = color.New(color.FgWhite, color.Bold).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	warnColor    = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	dimColor     = color.New(color.FgHiBlack).SprintFunc()
)

const separatorWidth = 60

func separator() string {
	return strings.Repeat("=", separatorWidth)
}

func printHeader(title string) {
	fmt.Println(headerColor(title))
	fmt.Println(headerColor(separator()))
}

func printField(label string, value interface{}) {
	fmt.Printf("  %-18s %v\n", labelColor(label+":"), value)
}

// PrintStartupBanner announces a session
func PrintStartupBanner(sessionID, pkg, policyName, outputDir string) {
	printHeader("📱 dld - Rotation Data Loss Explorer")
	printField("Session", sessionID)
	printField("Package", pkg)
	printField("Policy", policyName)
	printField("Output", outputDir)
	fmt.Println(dimColor("  Press Ctrl+C to stop the session"))
	fmt.Println()
}

// SessionSummary is what the summary banner shows
type SessionSummary struct {
	Events   int
	Errors   int
	States   int
	DataLoss int
	Fatal    int
	Duration time.Duration
	Report   string
}

// PrintSummary prints the end-of-session banner
func PrintSummary(s SessionSummary) {
	fmt.Println()
	printHeader("📊 Session Summary")
	printField("Events", s.Events)
	printField("States", s.States)
	printField("Duration", s.Duration.Round(time.Second))
	if s.Errors > 0 {
		printField("Tick errors", warnColor(s.Errors))
	}
	if s.Report != "" {
		printField("Data loss", countColor(s.DataLoss))
		printField("Fatal", countColor(s.Fatal))
		printField("Report", s.Report)
	}
	fmt.Println(headerColor(separator()))
}

// PrintError prints a failure line
func PrintError(msg string) {
	fmt.Println(errorColor("❌ " + msg))
}

func countColor(n int) string {
	if n == 0 {
		return successColor(n)
	}
	return errorColor(n)
}

func checkResult(err error) string {
	if err != nil {
		return errorColor(fmt.Sprintf("❌ FAILED: %v", err))
	}
	return successColor("✅ PASSED")
}
