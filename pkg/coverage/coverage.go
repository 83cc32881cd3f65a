/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: coverage.go
Description: Code coverage collection with ACVTool. The apk is instrumented and installed, the
instrumentation is started before the session and finished after it, and the final report is
moved into the session output. Every wait is bounded; a failed step is logged and coverage is
skipped without affecting the exploration.
*/

package coverage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kleascm/dld/pkg/mobile"
)

// Defaults of the polling waits
const (
	MaxLockWaits   = 5
	MaxUnlockWaits = 12
	CommandDelay   = 2 * time.Second
	UnlockPoll     = 5 * time.Second
	sdcard         = "/mnt/sdcard"
	instrumentator = "tool.acv.AcvInstrumentation"
	finishAction   = "tool.acv.finishtesting"
)

// Collector runs the ACVTool workflow for one apk
type Collector struct {
	adb        *mobile.ADB
	runner     mobile.Runner
	logger     *logrus.Logger
	apkPath    string
	outputDir  string
	WorkingDir string

	CommandDelay   time.Duration
	UnlockPoll     time.Duration
	MaxLockWaits   int
	MaxUnlockWaits int

	instrumented string
	pickle       string
	running      bool
}

// NewCollector creates a collector writing its report under outputDir/coverage
func NewCollector(adb *mobile.ADB, runner mobile.Runner, apkPath, outputDir string, logger *logrus.Logger) *Collector {
	if runner == nil {
		runner = mobile.ExecRunner{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	home, _ := os.UserHomeDir()
	return &Collector{
		adb:            adb,
		runner:         runner,
		logger:         logger,
		apkPath:        apkPath,
		outputDir:      outputDir,
		WorkingDir:     filepath.Join(home, "acvtool", "acvtool_working_dir"),
		CommandDelay:   CommandDelay,
		UnlockPoll:     UnlockPoll,
		MaxLockWaits:   MaxLockWaits,
		MaxUnlockWaits: MaxUnlockWaits,
	}
}

// Running reports whether instrumentation was started successfully
func (c *Collector) Running() bool { return c.running }

// ReportDir returns where the final report is moved
func (c *Collector) ReportDir() string { return filepath.Join(c.outputDir, "coverage") }

func (c *Collector) acv(ctx context.Context, args ...string) error {
	_, err := c.runner.Run(ctx, "acv", args...)
	if err != nil {
		return err
	}
	return sleep(ctx, c.CommandDelay)
}

// Instrument builds the instrumented apk and returns its path. ACVTool refuses paths with
// spaces, so such an apk is renamed for the duration of the call.
func (c *Collector) Instrument(ctx context.Context) (string, error) {
	if _, err := os.Stat(c.WorkingDir); err == nil {
		return "", fmt.Errorf("ACVTool working directory %s already exists, move it and try again", c.WorkingDir)
	}
	apk := c.apkPath
	if strings.Contains(apk, " ") {
		apk = strings.ReplaceAll(apk, " ", "_")
		if err := os.Rename(c.apkPath, apk); err != nil {
			return "", fmt.Errorf("failed to rename apk: %w", err)
		}
		defer os.Rename(apk, c.apkPath)
	}

	c.logger.Info("ACVTool: waiting until the apk is instrumented")
	if err := c.acv(ctx, "instrument", apk); err != nil {
		return "", fmt.Errorf("instrumentation failed: %w", err)
	}
	base := filepath.Base(apk)
	c.pickle = filepath.Join(c.WorkingDir, "metadata", strings.TrimSuffix(base, filepath.Ext(base))+".pickle")
	c.instrumented = filepath.Join(c.WorkingDir, "instr_"+base)
	return c.instrumented, nil
}

// Install installs the instrumented apk
func (c *Collector) Install(ctx context.Context) error {
	if c.instrumented == "" {
		return fmt.Errorf("apk is not instrumented")
	}
	if err := c.acv(ctx, "install", c.instrumented); err != nil {
		return fmt.Errorf("installing instrumented apk failed: %w", err)
	}
	return nil
}

// Start grants storage access and starts the instrumentation. A missing lock file leaves
// the collector stopped.
func (c *Collector) Start(ctx context.Context, pkg string) error {
	for _, perm := range []string{"android.permission.READ_EXTERNAL_STORAGE", "android.permission.WRITE_EXTERNAL_STORAGE"} {
		if _, err := c.adb.Shell(ctx, "pm", "grant", pkg, perm); err != nil {
			c.logger.WithError(err).WithField("permission", perm).Warn("ACVTool: permission grant failed")
		}
	}
	if _, err := c.adb.Shell(ctx, "am", "instrument", "-e", "coverage", "true", pkg+"/"+instrumentator); err != nil {
		c.logger.WithError(err).Warn("ACVTool: instrumentation did not start, continuing without coverage")
		return nil
	}
	locked, err := c.waitForLock(ctx, pkg)
	if err != nil {
		return err
	}
	if !locked {
		c.logger.WithField("lock", pkg+".lock").Warn("ACVTool: lock file was not created, the coverage report won't be created")
		return nil
	}
	c.running = true
	return nil
}

func (c *Collector) waitForLock(ctx context.Context, pkg string) (bool, error) {
	for i := 0; i < c.MaxLockWaits; i++ {
		entries, err := c.adb.List(ctx, sdcard+"/")
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e == pkg+".lock" {
				return true, nil
			}
		}
		c.logger.WithField("attempt", i+1).Info("ACVTool: waiting for the lock file")
		if err := sleep(ctx, c.CommandDelay); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Stop finishes the instrumentation and produces the report. Missing artifacts and
// timeouts skip the report with a warning.
func (c *Collector) Stop(ctx context.Context, pkg string) error {
	if !c.running {
		return nil
	}
	c.running = false
	if _, err := c.adb.Shell(ctx, "am", "broadcast", "-a", finishAction); err != nil {
		c.logger.WithError(err).Warn("ACVTool: stopping the instrumentation failed")
		return nil
	}
	if err := sleep(ctx, c.CommandDelay); err != nil {
		return err
	}

	entries, err := c.adb.List(ctx, fmt.Sprintf("%s/%s/", sdcard, pkg))
	if err != nil {
		return err
	}
	ec := 0
	for _, e := range entries {
		if strings.HasSuffix(e, ".ec") {
			ec++
		}
	}
	if ec == 0 {
		c.logger.Warn("ACVTool: no .ec files, the final coverage report can't be created")
		return nil
	}

	unlocked := false
	for i := 0; i < c.MaxUnlockWaits; i++ {
		locked, err := c.adb.FileExists(ctx, fmt.Sprintf("%s/%s.lock", sdcard, pkg))
		if err != nil {
			return err
		}
		if !locked {
			unlocked = true
			break
		}
		c.logger.Info("ACVTool: waiting until the coverage file is saved")
		if err := sleep(ctx, c.UnlockPoll); err != nil {
			return err
		}
	}
	if !unlocked {
		c.logger.Warn("ACVTool: the coverage file is still locked, skipping the report")
		return nil
	}
	return c.report(ctx, pkg)
}

func (c *Collector) report(ctx context.Context, pkg string) error {
	c.logger.Info("ACVTool: generating the final coverage report")
	if err := c.acv(ctx, "report", pkg, "-p", c.pickle); err != nil {
		c.logger.WithError(err).Warn("ACVTool: report generation failed")
		return nil
	}
	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Rename(filepath.Join(c.WorkingDir, "report"), c.ReportDir()); err != nil {
		return fmt.Errorf("failed to move coverage report: %w", err)
	}
	c.logger.WithField("dir", c.ReportDir()).Info("ACVTool: final coverage report saved")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
