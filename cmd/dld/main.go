/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface of dld, the rotation data-loss explorer for Android apps.
Defines the root command with the shared configuration and logging flags and registers the
explore, report and check commands.
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/dld/cmd/dld/commands"
	"github.com/kleascm/dld/pkg/config"
)

func main() {
	defaults := config.Default()

	rootCmd := &cobra.Command{
		Use:   "dld",
		Short: "dld - rotation data-loss explorer for Android apps",
		Long: `dld explores an Android app through synthesized input events, fills its forms,
rotates the screen twice and compares the UI before and after to find input the app
loses across configuration changes. Findings are written to an HTML report.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Configuration file path (yaml, json or toml)")
	flags.String("log-level", defaults.LogLevel, "Logging level (debug, info, warn, error)")
	flags.String("log-format", defaults.LogFormat, "Log format (text, json, custom)")
	flags.String("log-dir", defaults.LogDir, "Log output directory, empty logs to stdout only")
	flags.Int("log-max-files", defaults.LogMaxFiles, "Maximum number of log files to keep")
	flags.Bool("log-colors", defaults.LogColors, "Colorize console logs")

	viper.BindPFlag("config", flags.Lookup("config"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("log_dir", flags.Lookup("log-dir"))
	viper.BindPFlag("log_max_files", flags.Lookup("log-max-files"))
	viper.BindPFlag("log_colors", flags.Lookup("log-colors"))

	rootCmd.AddCommand(commands.NewExploreCommand(viper.GetViper()))
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewCheckCommand(viper.GetViper()))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
