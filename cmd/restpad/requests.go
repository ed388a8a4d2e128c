package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/restfile"
	"github.com/restpad/restpad/internal/vars"
)

func newRequestsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"req"},
		Short:   "Manage saved requests",
	}
	cmd.AddCommand(
		newRequestsSaveCmd(flags),
		newRequestsListCmd(flags),
		newRequestsShowCmd(flags),
		newRequestsDeleteCmd(flags),
	)
	return cmd
}

func newRequestsSaveCmd(flags *globalFlags) *cobra.Command {
	var (
		id    string
		title string
		opts  sendOptions
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a request or update one by --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				var args []string
				if id != "" {
					if _, ok := a.requests.Get(id); ok {
						args = []string{id}
					}
				}
				req, err := buildRequest(cmd, a, args, opts)
				if err != nil {
					return err
				}
				if id != "" {
					req.ID = id
				}
				if cmd.Flags().Changed("title") {
					req.Title = title
				}
				if flags.group != "" || req.Group == "" {
					req.Group = a.group()
				}
				saved, err := a.requests.Save(req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "Request id to create or update")
	f.StringVar(&title, "title", "", "Display title")
	f.StringVarP(&opts.method, "method", "X", "", "HTTP method (default GET)")
	f.StringVar(&opts.url, "url", "", "Request URL, may contain {{placeholders}}")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Header as 'Key: Value' (repeatable)")
	f.StringVarP(&opts.body, "body", "d", "", "Request body, @file or -")
	f.StringVar(&opts.pre, "pre", "", "Pre-request script id")
	f.StringVar(&opts.post, "post", "", "Post-request script id")
	return cmd
}

func newRequestsListCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				list := a.requests.List(flags.group)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				rows := make([][]string, 0, len(list))
				for _, r := range list {
					rows = append(rows, []string{r.ID, r.Title, restfile.NormalizeMethod(r.Method), r.URL, r.Group})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "TITLE", "METHOD", "URL", "GROUP"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newRequestsShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved request and flag placeholders that will not resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				req, ok := a.requests.Get(args[0])
				if !ok {
					return errdef.New(errdef.CodeConfig, "request %q not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headingStyle.Render(displayName(req.Title, req.ID)))
				fmt.Fprintf(out, "%s %s\n", restfile.NormalizeMethod(req.Method), req.URL)
				for _, h := range req.Headers {
					fmt.Fprintf(out, "%s %s\n", keyStyle.Render(h.Key+":"), h.Value)
				}
				if req.Body != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, req.Body)
				}
				if req.PreScriptID != "" || req.PostScriptID != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("pre: %s  post: %s",
						orDash(req.PreScriptID), orDash(req.PostScriptID))))
				}

				missing := vars.Unresolved(requestText(req), a.vars.Flatten(a.group()))
				if len(missing) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, warnStyle.Render("unresolved in "+a.group()+": "+strings.Join(missing, ", ")))
				}
				return nil
			})
		},
	}
}

func newRequestsDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				removed, err := a.requests.Delete(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errdef.New(errdef.CodeConfig, "request %q not found", args[0])
				}
				return nil
			})
		},
	}
}

// requestText joins every templated field of req.
func requestText(req restfile.Request) string {
	parts := []string{req.URL, req.Body}
	for _, h := range req.Headers {
		parts = append(parts, h.Key, h.Value)
	}
	return strings.Join(parts, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
