package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"taskagent/internal/logging"

	"go.uber.org/zap"
)

// DirectExecutor executes allow-listed commands on the host using os/exec.
type DirectExecutor struct {
	config  ExecutorConfig
	allowed map[string]bool
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	allowed := make(map[string]bool, len(config.AllowedBinaries))
	for _, b := range config.AllowedBinaries {
		allowed[b] = true
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 1 << 20
	}
	logging.Get(logging.CategoryExec).Debug("executor created",
		zap.Strings("allowed", config.AllowedBinaries),
		zap.Duration("timeout", config.DefaultTimeout))
	return &DirectExecutor{config: config, allowed: allowed}
}

// Available implements Executor.
func (e *DirectExecutor) Available(binary string) bool {
	if e.Validate(Command{Binary: binary}) != nil {
		return false
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if !e.allowed[filepath.Base(cmd.Binary)] {
		return fmt.Errorf("%w: %s", ErrBinaryNotAllowed, cmd.Binary)
	}
	return nil
}

// Execute implements Executor.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	log := logging.Get(logging.CategoryExec)

	if err := e.Validate(cmd); err != nil {
		log.Warn("command refused", zap.String("cmd", cmd.CommandString()), zap.Error(err))
		return nil, err
	}
	cmd = e.config.Merge(cmd)

	execCtx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.WaitDelay = time.Second
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	log.Debug("executing", zap.String("cmd", cmd.CommandString()), zap.String("dir", cmd.WorkingDirectory))

	start := time.Now()
	err := execCmd.Run()

	result := &ExecutionResult{
		ExitCode: -1,
		Duration: time.Since(start),
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}
	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Killed = true
		result.KillReason = "context canceled"
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		log.Error("command failed to start", zap.String("cmd", cmd.Binary), zap.Error(err))
		return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
	}

	log.Info("command finished",
		zap.String("cmd", cmd.Binary),
		zap.Int("exit", result.ExitCode),
		zap.Bool("killed", result.Killed),
		zap.Duration("took", result.Duration))
	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
