package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/history"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past executions",
	}
	cmd.AddCommand(
		newHistoryListCmd(flags),
		newHistoryShowCmd(flags),
		newHistoryDeleteCmd(flags),
		newHistoryClearCmd(flags),
	)
	return cmd
}

func newHistoryListCmd(flags *globalFlags) *cobra.Command {
	var (
		request string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				var entries []history.Entry
				switch {
				case request != "":
					entries = a.history.ByRequest(request)
				default:
					entries = a.history.ByGroup(flags.group)
				}
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.ID,
						e.ExecutedAt.Local().Format(time.DateTime),
						e.Method,
						e.URL,
						e.Status,
						e.Duration.Round(time.Millisecond).String(),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "WHEN", "METHOD", "URL", "STATUS", "TOOK"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&request, "request", "r", "", "Only entries for a request id, title or URL")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newHistoryShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				e, ok := a.history.Get(args[0])
				if !ok {
					return errdef.New(errdef.CodeHistory, "history entry %q not found", args[0])
				}
				out := cmd.OutOrStdout()
				status := errStyle
				if e.Error == "" && e.StatusCode >= 200 && e.StatusCode < 300 {
					status = okStyle
				}
				fmt.Fprintf(out, "%s %s %s\n", status.Render(e.Status), e.Method, e.URL)
				fmt.Fprintln(out, dimStyle.Render(e.ExecutedAt.Local().Format(time.RFC3339)+" · "+
					e.Duration.Round(time.Millisecond).String()+" · "+e.Group))
				if e.Title != "" || e.RequestID != "" {
					fmt.Fprintln(out, dimStyle.Render("request: "+displayName(e.Title, e.RequestID)))
				}
				if e.Error != "" {
					fmt.Fprintln(out, errStyle.Render(e.Error))
				}
				if e.BodySnippet != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, headingStyle.Render("Body"))
					fmt.Fprintln(out, e.BodySnippet)
				}
				if e.ScriptOutput != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, headingStyle.Render("Script Output"))
					fmt.Fprintln(out, e.ScriptOutput)
				}
				return nil
			})
		},
	}
}

func newHistoryDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				removed, err := a.history.Delete(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errdef.New(errdef.CodeHistory, "history entry %q not found", args[0])
				}
				return nil
			})
		},
	}
}

func newHistoryClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				n := len(a.history.Entries())
				if err := a.history.Clear(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
				return nil
			})
		},
	}
}
