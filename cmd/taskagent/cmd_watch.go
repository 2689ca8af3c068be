package main

import (
	"context"
	"path/filepath"
	"time"

	"taskagent/internal/dispatch"
	"taskagent/internal/inbox"

	"github.com/spf13/cobra"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Run every *.task file dropped into an inbox directory",
	Long: `Watches a directory (default <data-root>/inbox). Each *.task file holds one
task description. When the file stops changing the task runs, the outcome
is written to <name>.status or <name>.error, and the task file is removed.

Runs until interrupted. --timeout applies to each task.`,
	Args: cobra.MaximumNArgs(1),
	RunE: watchInbox,
}

func watchInbox(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dir := filepath.Join(cfg.DataRoot, "inbox")
	if len(args) == 1 {
		dir = args[0]
	}

	d, set, err := newDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer set.Close()

	return inbox.New(dir, timedRunner{d: d, timeout: timeout}, watchDebounce).Run(ctx)
}

// timedRunner bounds each dispatch by the --timeout budget.
type timedRunner struct {
	d       inbox.Runner
	timeout time.Duration
}

func (r timedRunner) Dispatch(ctx context.Context, text string) (*dispatch.Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.d.Dispatch(ctx, text)
}
