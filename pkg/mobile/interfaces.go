/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: interfaces.go
Description: Command execution seam of the mobile package. Every adb, aapt and acv call goes
through a Runner so device automation can be tested without a phone attached.
*/

package mobile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes external tools
type Runner interface {
	// Run executes the command and returns its standard output
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Stream starts the command and returns its standard output. Closing the stream stops
	// the command.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct{}

// Run executes the command, folding stderr into the error on failure
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(string(out))
		}
		return out, fmt.Errorf("%s %s failed: %w, output: %s", name, strings.Join(args, " "), err, msg)
	}
	return out, nil
}

// Stream starts a long-running command
func (ExecRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return &stream{ReadCloser: stdout, cmd: cmd}, nil
}

type stream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *stream) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed on purpose
		return nil
	}
	return err
}
