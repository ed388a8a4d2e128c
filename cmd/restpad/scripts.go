package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/restfile"
)

func newScriptsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "Manage pre- and post-request scripts",
	}
	cmd.AddCommand(
		newScriptsSaveCmd(flags),
		newScriptsListCmd(flags),
		newScriptsShowCmd(flags),
		newScriptsDeleteCmd(flags),
	)
	return cmd
}

func newScriptsSaveCmd(flags *globalFlags) *cobra.Command {
	var (
		id   string
		name string
		kind string
		code string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create a script or update one by --id",
		Long: "Code is taken from --code; use @file to read a file or - for stdin. " +
			"The script is filed under --group, or global.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				var script restfile.Script
				if id != "" {
					if existing, ok := a.scripts.Get(id); ok {
						script = existing
					}
					script.ID = id
				}
				if cmd.Flags().Changed("name") {
					script.Name = name
				}
				if cmd.Flags().Changed("type") {
					script.Type = restfile.ParseScriptKind(kind)
				}
				if cmd.Flags().Changed("code") {
					src, err := readSource(cmd.InOrStdin(), code)
					if err != nil {
						return err
					}
					script.Code = src
				}
				if flags.group != "" || script.Group == "" {
					script.Group = a.group()
				}
				if script.Code == "" {
					return errdef.New(errdef.CodeConfig, "script has no code, pass --code")
				}
				saved, err := a.scripts.Save(script)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "Script id to create or update")
	f.StringVar(&name, "name", "", "Display name")
	f.StringVar(&kind, "type", "post", "Script type: pre or post")
	f.StringVar(&code, "code", "", "JavaScript source, @file or -")
	return cmd
}

func newScriptsListCmd(flags *globalFlags) *cobra.Command {
	var (
		kind   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				list := a.scripts.List(flags.group)
				if kind != "" {
					list = a.scripts.ListKind(flags.group, restfile.ParseScriptKind(kind))
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{s.ID, s.Name, s.Type.Label(), s.Group})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "GROUP"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "", "Only list pre or post scripts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newScriptsShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				s, ok := a.scripts.Get(args[0])
				if !ok {
					return errdef.New(errdef.CodeConfig, "script %q not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headingStyle.Render(displayName(s.Name, s.ID)))
				fmt.Fprintln(out, dimStyle.Render(s.Type.Label()+" · "+s.Group))
				fmt.Fprintln(out)
				fmt.Fprintln(out, s.Code)
				return nil
			})
		},
	}
}

func newScriptsDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				removed, err := a.scripts.Delete(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errdef.New(errdef.CodeConfig, "script %q not found", args[0])
				}
				return nil
			})
		},
	}
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
