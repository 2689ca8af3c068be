package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskagent/internal/handlers"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var renderMarkdown bool

var readCmd = &cobra.Command{
	Use:   "read [path]",
	Short: "Print a file from the data root",
	Long: `Prints a file that lives under the data root. Paths outside the root
are refused. With --render, Markdown files are rendered for the terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: readFile,
}

func readFile(cmd *cobra.Command, args []string) error {
	set, err := handlers.New(cfg, handlers.Deps{})
	if err != nil {
		return err
	}
	defer set.Close()

	path, err := set.Resolve(args[0])
	if err != nil {
		if errors.Is(err, handlers.ErrOutsideDataRoot) {
			return fmt.Errorf("%w: access denied: %s", errUsage, args[0])
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: file not found: %s", errUsage, path)
		}
		return err
	}

	out := string(data)
	if renderMarkdown && strings.EqualFold(filepath.Ext(path), ".md") {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
		if out, err = r.Render(out); err != nil {
			return fmt.Errorf("failed to render markdown: %w", err)
		}
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
