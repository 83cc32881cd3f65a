/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: explore.go
Description: The explore command. Wires the adb device, the app descriptor, the chosen policy,
the HTML report, the logcat watcher, optional ACVTool coverage and the metrics endpoint into
one exploration session, and prints a summary when it ends.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/dld/pkg/config"
	"github.com/kleascm/dld/pkg/coverage"
	"github.com/kleascm/dld/pkg/explorer"
	"github.com/kleascm/dld/pkg/mobile"
	"github.com/kleascm/dld/pkg/oracle"
	"github.com/kleascm/dld/pkg/policy"
	"github.com/kleascm/dld/pkg/report"
)

// NewExploreCommand creates the explore command bound to v
func NewExploreCommand(v *viper.Viper) *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explore an app and look for rotation data loss",
		Long: `Explore an Android app on a connected device or emulator. The data_loss policy fills
every new screen, rotates it twice and compares the UI before and after the rotation;
the other policies build the UI transition graph with naive or greedy search, replay a
recorded session or record a manual one.`,
		Example: `  dld explore --apk app.apk --policy data_loss --event-count 200
  dld explore --package com.example --policy dfs_greedy --device-serial emulator-5554
  dld explore --package com.example --policy replay --replay-dir ./dld_output`,
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return RunExplore(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("policy", d.Policy, fmt.Sprintf("Exploration policy %v", policy.Names()))
	f.String("apk", "", "Path to the apk under test")
	f.String("package", "", "Package of an installed app, used when no apk is given")
	f.String("device-serial", "", "adb serial of the device (default: the only attached device)")
	f.String("output-dir", d.OutputDir, "Directory for the report, events, graph and artifacts")
	f.Int("event-count", d.EventCount, "Number of events to dispatch, negative runs until interrupted")
	f.Duration("event-interval", d.EventInterval, "Minimum time between two events")
	f.Bool("random-input", false, "Shuffle candidate events")
	f.Int64("seed", 0, "Random seed, 0 seeds from the clock")
	f.Int("orientation", d.Orientation, "Orientation forced at the start of the session (0-3)")
	f.Float64("epsilon", d.Epsilon, "Probability of picking any event instead of an untried one")
	f.Int("scroll-full-down-y", d.ScrollFullDownY, "Start height of the scroll-to-bottom swipe")
	f.Float64("screenshot-threshold", d.ScreenshotThreshold, "Percentage of changed pixels reported as data loss")
	f.String("view-filter", d.ViewFilter, "Expression excluding views from touch candidates")
	f.Int("max-restarts", d.MaxRestarts, "App restarts tolerated before giving up")
	f.Int("max-steps-outside", d.MaxStepsOutside, "Ticks outside the app before going back")
	f.Int("max-steps-outside-kill", d.MaxStepsOutsideKill, "Ticks outside the app before stopping it")
	f.Int("max-replay-tries", d.MaxReplayTries, "Attempts per replayed event")
	f.String("replay-dir", "", "Output directory of the session to replay")
	f.Duration("settle-delay", d.SettleDelay, "Wait after launching the app or changing orientation")
	f.Duration("null-state-delay", d.NullStateDelay, "Wait after an unreadable screen")
	f.Duration("retry-delay", d.RetryDelay, "Wait between retries of device queries")
	f.Bool("coverage", false, "Collect code coverage with ACVTool (needs --apk)")
	f.Bool("logcat", d.Logcat, "Watch logcat for fatal exceptions")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// RunExplore runs one exploration session
func RunExplore(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	logger := log.GetLogger()

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	sessionID := uuid.New().String()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	runner := mobile.ExecRunner{}
	adb := mobile.NewADB(cfg.DeviceSerial, runner)
	if err := adb.WaitForDevice(ctx); err != nil {
		return fmt.Errorf("no device reachable: %w", err)
	}
	app, err := resolveApp(ctx, cfg, adb, runner, logger)
	if err != nil {
		return err
	}

	var collector *coverage.Collector
	if cfg.Coverage {
		collector = coverage.NewCollector(adb, runner, cfg.APK, cfg.OutputDir, logger)
		if _, err := collector.Instrument(ctx); err != nil {
			return err
		}
		if err := collector.Install(ctx); err != nil {
			return err
		}
	} else if cfg.APK != "" {
		logger.WithField("apk", cfg.APK).Info("Installing app")
		if err := adb.Install(ctx, cfg.APK); err != nil {
			return err
		}
	}

	PrintStartupBanner(sessionID, app.PackageName(), cfg.Policy, cfg.OutputDir)
	logger.WithFields(logrus.Fields{"seed": seed, "apk": cfg.APK}).Debug("Session configured")

	reporters := explorer.Reporters{explorer.NewLoggerReporter(logger)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reporters = append(reporters, explorer.NewPrometheusReporter(reg))
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
	}

	device := mobile.NewAndroidDevice(adb, mobile.NewTextGenerator(rand.New(rand.NewSource(seed+1))), logger)
	session := policy.NewSession(device, app, cfg.Limits(), logger, rng)
	session.RandomInput = cfg.RandomInput

	opts := policy.Options{ReplayDir: cfg.ReplayDir}
	var reportWriter *report.Writer
	if cfg.Policy == policy.NameDataLoss {
		filter, err := policy.NewViewFilter(cfg.ViewFilter)
		if err != nil {
			return err
		}
		reportWriter, err = report.Create(filepath.Join(cfg.OutputDir, "report.html"), report.Header{
			SessionID: sessionID,
			Package:   app.PackageName(),
		})
		if err != nil {
			return err
		}
		opts.DataLoss = policy.DataLossOptions{
			Epsilon:         cfg.Epsilon,
			ScrollFullDownY: cfg.ScrollFullDownY,
			OutputDir:       cfg.OutputDir,
			Filter:          filter,
			Oracle:          oracle.New(cfg.ScreenshotThreshold),
			Report:          reportWriter,
			OnFinding:       reporters.OnFinding,
		}
	}
	p, err := policy.New(cfg.Policy, session, opts)
	if err != nil {
		return err
	}

	exp, err := explorer.New(explorer.Config{
		SessionID:     sessionID,
		EventCount:    cfg.EventCount,
		EventInterval: cfg.EventInterval,
		SettleDelay:   cfg.SettleDelay,
		Orientation:   cfg.Orientation,
		OutputDir:     cfg.OutputDir,
	}, session, p, explorer.WithReporters(reporters...))
	if err != nil {
		return err
	}
	if cfg.Logcat {
		watcher := mobile.NewLogcatWatcher(adb, filepath.Join(cfg.OutputDir, "logcat.txt"), exp.HandleFatal, logger)
		explorer.WithWatcher(watcher)(exp)
	}

	if collector != nil {
		if err := collector.Start(ctx, app.PackageName()); err != nil {
			return err
		}
	}
	started := time.Now()
	runErr := exp.Run(ctx)
	if collector != nil {
		if err := collector.Stop(context.WithoutCancel(ctx), app.PackageName()); err != nil {
			logger.WithError(err).Warn("ACVTool: coverage collection failed")
		}
	}

	status := exp.Status()
	summary := SessionSummary{
		Events:   status.Generated,
		Errors:   status.Errors,
		States:   session.Graph.NumNodes(),
		Duration: time.Since(started),
	}
	if dl, ok := p.(*policy.DataLossPolicy); ok {
		stats := dl.Stats()
		summary.DataLoss = stats.DataLoss
		summary.Fatal = stats.Fatal
		summary.Report = reportWriter.Path()
	}
	log.LogStats(summary.Events, summary.DataLoss, summary.Fatal, map[string]interface{}{
		"errors": summary.Errors,
		"states": summary.States,
	})
	PrintSummary(summary)

	if errors.Is(runErr, policy.ErrAppCannotStart) {
		PrintError("The app could not be started")
	}
	return runErr
}

// resolveApp describes the app from its apk, or from the installed package
func resolveApp(ctx context.Context, cfg *config.Config, adb *mobile.ADB, runner mobile.Runner, logger *logrus.Logger) (*mobile.App, error) {
	if cfg.APK == "" {
		app, err := mobile.ResolveInstalledApp(ctx, adb, cfg.Package)
		if err != nil {
			return nil, err
		}
		if len(app.Activities()) == 0 {
			logger.WithField("package", cfg.Package).Warn("No activities resolved, they will be learnt while exploring")
		}
		return app, nil
	}
	app, err := mobile.AnalyzeAPK(ctx, runner, cfg.APK)
	if err != nil {
		return nil, err
	}
	if cfg.Package != "" && cfg.Package != app.Package {
		return nil, fmt.Errorf("apk package %s does not match --package %s", app.Package, cfg.Package)
	}
	return app, nil
}

// serveMetrics exposes reg on addr and returns the shutdown function
func serveMetrics(addr string, reg *prometheus.Registry, logger *logrus.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("Metrics endpoint stopped")
		}
	}()
	logger.WithField("addr", addr).Info("Serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
