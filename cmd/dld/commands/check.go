/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: check.go
Description: The check command. Validates the configuration and the host tools before a
session: adb and aapt on the path, a reachable device, ACVTool when coverage is enabled and a
writable output directory.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/dld/pkg/config"
	"github.com/kleascm/dld/pkg/mobile"
)

const deviceCheckTimeout = 10 * time.Second

type check struct {
	name     string
	function func(ctx context.Context) error
}

// NewCheckCommand creates the self-check command bound to v
func NewCheckCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configuration, host tools and device",
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return PerformSelfCheck(ctx, v)
		},
	}
	cmd.Flags().String("apk", "", "Path to the apk under test")
	cmd.Flags().String("package", "", "Package of an installed app")
	cmd.Flags().String("device-serial", "", "adb serial of the device")
	cmd.Flags().String("output-dir", config.Default().OutputDir, "Output directory")
	cmd.Flags().Bool("coverage", false, "Also check ACVTool")
	return cmd
}

// PerformSelfCheck runs every check and reports how many passed
func PerformSelfCheck(ctx context.Context, v *viper.Viper) error {
	printHeader("🔍 dld - System Self-Check")
	fmt.Println()

	cfg, cfgErr := config.Load(v)
	checks := []check{
		{"Configuration", func(context.Context) error { return cfgErr }},
		{"adb", lookPath("adb")},
		{"aapt", lookPath("aapt")},
	}
	if cfgErr == nil {
		checks = append(checks, check{"Device", deviceCheck(cfg.DeviceSerial)})
		if cfg.Coverage {
			checks = append(checks, check{"ACVTool", lookPath("acv")})
		}
		checks = append(checks, check{"Output directory", writableDir(cfg.OutputDir)})
	}

	passed := 0
	for _, c := range checks {
		err := c.function(ctx)
		fmt.Printf("  %-20s %s\n", c.name+"...", checkResult(err))
		if err == nil {
			passed++
		}
	}

	fmt.Println()
	fmt.Printf("📊 Results: %d/%d checks passed\n", passed, len(checks))
	if passed == len(checks) {
		fmt.Println(successColor("✨ All checks passed! Ready to explore."))
		return nil
	}
	fmt.Println(warnColor("⚠️  Some checks failed. Please address the issues before exploring."))
	return fmt.Errorf("%d/%d checks failed", len(checks)-passed, len(checks))
}

func lookPath(name string) func(context.Context) error {
	return func(context.Context) error {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%s not found in PATH", name)
		}
		return nil
	}
}

func deviceCheck(serial string) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, deviceCheckTimeout)
		defer cancel()
		adb := mobile.NewADB(serial, mobile.ExecRunner{})
		if err := adb.WaitForDevice(ctx); err != nil {
			return fmt.Errorf("no device reachable: %w", err)
		}
		info, err := adb.DeviceInfo(ctx)
		if err != nil {
			return err
		}
		model, release := info["ro.product.model"], info["ro.build.version.release"]
		if model != "" {
			fmt.Printf("%s ", dimColor(fmt.Sprintf("(%s, Android %s)", model, release)))
		}
		return nil
	}
}

// writableDir creates dir and writes a probe file into it
func writableDir(dir string) func(context.Context) error {
	return func(context.Context) error {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		probe := filepath.Join(dir, ".dld_check")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		return os.Remove(probe)
	}
}
