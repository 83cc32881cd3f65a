/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the dld commands. Binds command flags to viper keys, sets up
the session logger and installs the interrupt handler.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kleascm/dld/pkg/config"
	"github.com/kleascm/dld/pkg/logging"
)

// bindFlags binds every flag of fs to the viper key with dashes replaced by underscores.
// Commands share flag names, so binding happens only for the command that runs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// setupLogger creates the session logger from the configuration
func setupLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			fmt.Fprintln(os.Stderr, "\n🛑 Received shutdown signal, finishing the session...")
		}
	}()
	return ctx, stop
}
