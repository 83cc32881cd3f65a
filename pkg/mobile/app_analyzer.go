/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: app_analyzer.go
Description: App descriptor of the application under test. APKs are analyzed with aapt: the
badging dump gives package, version and launcher activity, the manifest tree gives every
declared activity. Apps known only by package name are resolved from "dumpsys package".
*/

package mobile

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// App describes an Android application
type App struct {
	Package        string
	Version        string
	Label          string
	LaunchActivity string
	Declared       []string // fully-qualified activity names
	Permissions    []string
	APKPath        string
}

// NewApp describes an installed app known only by name
func NewApp(packageName, launchActivity string, activities []string) *App {
	return &App{Package: packageName, LaunchActivity: launchActivity, Declared: activities}
}

// AnalyzeAPK reads the descriptor of an apk file with aapt
func AnalyzeAPK(ctx context.Context, runner Runner, apkPath string) (*App, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	badging, err := runner.Run(ctx, "aapt", "dump", "badging", apkPath)
	if err != nil {
		return nil, fmt.Errorf("aapt failed: %w", err)
	}
	app := parseBadging(string(badging))
	if app.Package == "" {
		return nil, fmt.Errorf("no package name in %s", apkPath)
	}
	app.APKPath = apkPath

	tree, err := runner.Run(ctx, "aapt", "dump", "xmltree", apkPath, "AndroidManifest.xml")
	if err != nil {
		return nil, fmt.Errorf("aapt failed: %w", err)
	}
	app.Declared = parseManifestActivities(string(tree), app.Package)
	if len(app.Declared) == 0 && app.LaunchActivity != "" {
		app.Declared = []string{app.LaunchActivity}
	}
	return app, nil
}

// ResolveInstalledApp describes an installed app known only by its package name. Activities
// are read from the activity resolver table of "dumpsys package", which lists only the
// activities that declare an intent filter.
func ResolveInstalledApp(ctx context.Context, adb *ADB, packageName string) (*App, error) {
	out, err := adb.Shell(ctx, "dumpsys", "package", packageName)
	if err != nil {
		return nil, fmt.Errorf("dumpsys package failed: %w", err)
	}
	launch, activities := parseResolverTable(out, packageName)
	return NewApp(packageName, launch, activities), nil
}

// parseResolverTable collects the components of packageName listed under the
// "Activity Resolver Table:" section, and the first one filtering the launcher category
func parseResolverTable(output, packageName string) (launch string, activities []string) {
	prefix := packageName + "/"
	seen := make(map[string]bool)
	inTable := false
	current := ""
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" && line[0] != ' ' && line[0] != '\t' {
			inTable = strings.HasPrefix(line, "Activity Resolver Table:")
			continue
		}
		if !inTable {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == `Category: "android.intent.category.LAUNCHER"` {
			if launch == "" && current != "" {
				launch = current
			}
			continue
		}
		// Filter entries read "<hash> <package>/<class> filter <hash>"
		fields := strings.Fields(trimmed)
		if len(fields) < 2 || !strings.Contains(fields[1], "/") {
			continue
		}
		current = ""
		if !strings.HasPrefix(fields[1], prefix) {
			continue
		}
		current = qualify(strings.TrimPrefix(fields[1], prefix), packageName)
		if !seen[current] {
			seen[current] = true
			activities = append(activities, current)
		}
	}
	return launch, activities
}

func parseBadging(output string) *App {
	app := &App{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "package: "):
			for _, f := range strings.Fields(line) {
				if strings.HasPrefix(f, "name=") {
					app.Package = strings.Trim(f[5:], "'\"")
				}
				if strings.HasPrefix(f, "versionName=") {
					app.Version = strings.Trim(f[12:], "'\"")
				}
			}
		case strings.HasPrefix(line, "uses-permission: "):
			perm := strings.TrimPrefix(line, "uses-permission: ")
			perm = strings.TrimPrefix(perm, "name=")
			app.Permissions = append(app.Permissions, strings.Trim(perm, "'\""))
		case strings.HasPrefix(line, "launchable-activity: "):
			for _, f := range strings.Fields(line) {
				if strings.HasPrefix(f, "name=") {
					app.LaunchActivity = strings.Trim(f[5:], "'\"")
				}
			}
		case strings.HasPrefix(line, "application-label:"):
			app.Label = strings.Trim(strings.TrimPrefix(line, "application-label:"), "'\"")
		}
	}
	return app
}

// parseManifestActivities collects the android:name of every activity element of an
// "aapt dump xmltree" listing
func parseManifestActivities(output, packageName string) []string {
	var activities []string
	seen := make(map[string]bool)
	pending := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "E: ") {
			pending = line == "E: activity" || strings.HasPrefix(line, "E: activity ") ||
				strings.HasPrefix(line, "E: activity-alias")
			continue
		}
		if !pending || !strings.HasPrefix(line, "A: android:name(") {
			continue
		}
		pending = false
		start := strings.Index(line, "=\"")
		if start < 0 {
			continue
		}
		rest := line[start+2:]
		end := strings.Index(rest, "\"")
		if end < 0 {
			continue
		}
		name := qualify(rest[:end], packageName)
		if !seen[name] {
			seen[name] = true
			activities = append(activities, name)
		}
	}
	return activities
}

func qualify(name, packageName string) string {
	switch {
	case strings.HasPrefix(name, "."):
		return packageName + name
	case !strings.Contains(name, "."):
		return packageName + "." + name
	default:
		return name
	}
}

// PackageName returns the package of the app
func (a *App) PackageName() string { return a.Package }

// StartIntent returns the shell command launching the app
func (a *App) StartIntent() string {
	if a.LaunchActivity == "" {
		return fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", a.Package)
	}
	return fmt.Sprintf("am start -n %s/%s", a.Package, a.LaunchActivity)
}

// StopIntent returns the shell command stopping the app
func (a *App) StopIntent() string {
	return "am force-stop " + a.Package
}

// Activities returns the declared activities
func (a *App) Activities() []string {
	return append([]string(nil), a.Declared...)
}
