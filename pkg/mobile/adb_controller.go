/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: adb_controller.go
Description: Thin adb wrapper bound to one device serial. Covers the shell and exec-out calls
used by the Android device, app install, device properties and the logcat stream.
Output checks follow adb's conventions ("Success" on package operations).
*/

package mobile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// ADB talks to one device through the adb binary
type ADB struct {
	Serial string // empty selects the only attached device
	runner Runner
}

// NewADB creates an adb wrapper. A nil runner executes on the host.
func NewADB(serial string, runner Runner) *ADB {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ADB{Serial: serial, runner: runner}
}

func (a *ADB) args(args ...string) []string {
	if a.Serial == "" {
		return args
	}
	return append([]string{"-s", a.Serial}, args...)
}

// Run executes an adb subcommand
func (a *ADB) Run(ctx context.Context, args ...string) ([]byte, error) {
	return a.runner.Run(ctx, "adb", a.args(args...)...)
}

// Shell runs a shell command on the device and returns its trimmed output
func (a *ADB) Shell(ctx context.Context, args ...string) (string, error) {
	out, err := a.Run(ctx, append([]string{"shell"}, args...)...)
	return strings.TrimSpace(string(out)), err
}

// ExecOut runs a command on the device and returns its raw binary output
func (a *ADB) ExecOut(ctx context.Context, args ...string) ([]byte, error) {
	return a.Run(ctx, append([]string{"exec-out"}, args...)...)
}

// WaitForDevice blocks until the device is reachable
func (a *ADB) WaitForDevice(ctx context.Context) error {
	_, err := a.Run(ctx, "wait-for-device")
	return err
}

// Install installs or replaces an apk
func (a *ADB) Install(ctx context.Context, apkPath string) error {
	out, err := a.Run(ctx, "install", "-r", "-g", apkPath)
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	if !bytes.Contains(out, []byte("Success")) {
		return fmt.Errorf("install failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// FileExists reports whether a path exists on the device
func (a *ADB) FileExists(ctx context.Context, path string) (bool, error) {
	out, err := a.Shell(ctx, fmt.Sprintf("test -e %s && echo 1 || echo 0", path))
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

// List returns the entries of a device directory
func (a *ADB) List(ctx context.Context, dir string) ([]string, error) {
	out, err := a.Shell(ctx, "ls", dir)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// DeviceInfo returns the device properties
func (a *ADB) DeviceInfo(ctx context.Context) (map[string]string, error) {
	out, err := a.Shell(ctx, "getprop")
	if err != nil {
		return nil, err
	}
	return parseProps(out), nil
}

func parseProps(output string) map[string]string {
	info := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) == 2 {
			info[strings.Trim(parts[0], "[]")] = strings.Trim(parts[1], "[]")
		}
	}
	return info
}

// Logcat clears the device log and streams it in threadtime format
func (a *ADB) Logcat(ctx context.Context) (io.ReadCloser, error) {
	if _, err := a.Run(ctx, "logcat", "-c"); err != nil {
		return nil, fmt.Errorf("failed to clear logcat: %w", err)
	}
	return a.runner.Stream(ctx, "adb", a.args("logcat", "-v", "threadtime")...)
}
