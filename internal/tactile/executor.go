package tactile

import (
	"context"
	"errors"
	"time"

	"taskagent/internal/config"
)

// ErrBinaryNotAllowed is returned for a binary outside the allow-list.
var ErrBinaryNotAllowed = errors.New("binary not allowed")

// Executor is the interface for command execution.
type Executor interface {
	// Execute runs a command to completion. A non-zero exit status is
	// reported in the result, not as an error; errors mean the command
	// could not be started or was refused.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Available reports whether the binary is allowed and on PATH.
	Available(binary string) bool
}

// ExecutorConfig configures a DirectExecutor.
type ExecutorConfig struct {
	AllowedBinaries    []string
	DefaultTimeout     time.Duration
	WorkingDirectory   string
	AllowedEnvironment []string
	MaxOutputBytes     int64
}

// DefaultExecutorConfig returns the config derived from DefaultConfig.
func DefaultExecutorConfig() ExecutorConfig {
	return ConfigFrom(config.DefaultConfig())
}

// ConfigFrom maps the execution section of the application config.
func ConfigFrom(cfg *config.Config) ExecutorConfig {
	return ExecutorConfig{
		AllowedBinaries:    append([]string(nil), cfg.Execution.AllowedBinaries...),
		DefaultTimeout:     cfg.GetExecutionTimeout(),
		WorkingDirectory:   cfg.WorkDir(),
		AllowedEnvironment: append([]string(nil), cfg.Execution.AllowedEnvVars...),
		MaxOutputBytes:     1 << 20,
	}
}

// Merge fills unset command fields from the config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	if cmd.WorkingDirectory == "" {
		cmd.WorkingDirectory = c.WorkingDirectory
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.DefaultTimeout
	}
	if cmd.Timeout <= 0 {
		cmd.Timeout = 30 * time.Second
	}
	return cmd
}
