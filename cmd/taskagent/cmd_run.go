package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"taskagent/internal/dispatch"
	"taskagent/internal/perception"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

var runCmd = &cobra.Command{
	Use:     "run [task]",
	Short:   "Classify a task and run its handler",
	Example: `  taskagent run "Sort the array of contacts in /data/contacts.json by last_name, then first_name, and write the result to /data/contacts-sorted.json"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runTask,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [task]",
	Short: "Show the intent and parameters a task resolves to, without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  classifyTask,
}

var intentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List intents in precedence order with their parameters",
	Args:  cobra.NoArgs,
	RunE:  listIntents,
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	d, set, err := newDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	defer set.Close()

	res, err := d.Dispatch(ctx, joinArgs(args))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Status)
	return nil
}

func classifyTask(cmd *cobra.Command, args []string) error {
	ext, err := perception.NewExtractor(cfg.DataRoot)
	if err != nil {
		return err
	}
	d := dispatch.New(nil, ext, dispatch.NewRegistry())

	res, planErr := d.Plan(joinArgs(args))
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, headerStyle.Render("Classification"))
	fmt.Fprintln(out, labelStyle.Render("request")+res.RequestID)
	fmt.Fprintln(out, labelStyle.Render("stage")+res.Stage.String())
	if res.Intent != perception.IntentNone {
		fmt.Fprintln(out, labelStyle.Render("intent")+fmt.Sprintf("%s (%s)", res.Intent, res.Intent.Code()))
	}
	if len(res.Fired) > 0 {
		terms := make([]string, len(res.Fired))
		for i, t := range res.Fired {
			terms[i] = t.String()
		}
		fmt.Fprintln(out, labelStyle.Render("keywords")+strings.Join(terms, ", "))
	}

	if len(res.Params) > 0 {
		fmt.Fprintln(out, headerStyle.Render("Parameters"))
		keys := res.Params.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(out, labelStyle.Render(k)+res.Params.Get(k))
		}
	}

	if planErr != nil {
		fmt.Fprintln(out, errStyle.Render(planErr.Error()))
		return planErr
	}
	fmt.Fprintln(out, okStyle.Render("ready"))
	return nil
}

func listIntents(cmd *cobra.Command, args []string) error {
	ext, err := perception.NewExtractor(cfg.DataRoot)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for i, rule := range perception.Default().Rules() {
		fmt.Fprintf(out, "%s %s\n",
			headerStyle.Render(fmt.Sprintf("%2d. %-4s", i+1, rule.Intent.Code())),
			rule.Intent)
		for _, f := range ext.Fields(rule.Intent) {
			var note string
			switch {
			case f.Required:
				note = okStyle.Render("required")
			case f.Default != "":
				note = "default " + strings.ReplaceAll(f.Default, "{root}", ext.DataRoot())
			default:
				note = "optional"
			}
			fmt.Fprintln(out, "    "+labelStyle.Render(f.Name)+note)
		}
	}
	return nil
}
