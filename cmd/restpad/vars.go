package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/vars"
)

func newVarsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Manage variable groups",
		Long: "Variables live in groups. The global group is always present and " +
			"the active group (--group) shadows it key by key.",
	}
	cmd.AddCommand(
		newVarsListCmd(flags),
		newVarsGetCmd(flags),
		newVarsSetCmd(flags),
		newVarsUnsetCmd(flags),
		newVarsGroupsCmd(flags),
		newVarsImportEnvCmd(flags),
		newVarsDeleteGroupCmd(flags),
	)
	return cmd
}

func newVarsListCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the variables visible from the active group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				group := a.group()
				flat := a.vars.Flatten(group)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), flat)
				}
				own, _ := a.vars.Group(group)
				rows := make([][]string, 0, len(flat))
				for _, key := range sortedKeys(flat) {
					source := vars.GlobalGroup
					if _, ok := own[key]; ok {
						source = group
					}
					rows = append(rows, []string{key, flat[key], source})
				}
				renderTable(cmd.OutOrStdout(), []string{"KEY", "VALUE", "GROUP"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as a JSON object")
	return cmd
}

func newVarsGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one resolved variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				value, ok := a.vars.Get(a.group(), args[0])
				if !ok {
					return errdef.New(errdef.CodeConfig, "variable %q is not set in %s", args[0], a.group())
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newVarsSetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a variable in the active group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				return a.vars.Set(a.group(), args[0], args[1])
			})
		},
	}
}

func newVarsUnsetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a variable from the active group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				removed, err := a.vars.Delete(a.group(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s is not set in %s\n", args[0], a.group())
				}
				return nil
			})
		},
	}
}

func newVarsGroupsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List variable groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(flags, func(a *app) error {
				rows := [][]string{}
				for _, name := range a.vars.Groups() {
					values, _ := a.vars.Group(name)
					marker := ""
					if name == a.group() {
						marker = "*"
					}
					rows = append(rows, []string{marker, name, strconv.Itoa(len(values))})
				}
				renderTable(cmd.OutOrStdout(), []string{"", "GROUP", "VARS"}, rows)
				return nil
			})
		},
	}
}

func newVarsImportEnvCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-env <file>",
		Short: "Merge a dotenv file into a group",
		Long: "The target group is --group when given, else a group= line in the file, " +
			"else derived from the file name (.env.staging imports into staging).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				group, values, err := vars.LoadDotEnv(args[0])
				if err != nil {
					return err
				}
				if flags.group != "" {
					group = flags.group
				}
				groups := a.vars.Snapshot()
				target, ok := groups[group]
				if !ok {
					target = map[string]string{}
					groups[group] = target
				}
				for k, v := range values {
					target[k] = v
				}
				if err := a.vars.Replace(groups); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d variables into %s\n", len(values), group)
				return nil
			})
		},
	}
	return cmd
}

func newVarsDeleteGroupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-group <name>",
		Short: "Delete a whole variable group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				removed, err := a.vars.DeleteGroup(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errdef.New(errdef.CodeConfig, "group %q does not exist", args[0])
				}
				return nil
			})
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
