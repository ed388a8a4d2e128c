package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings",
		Long:  "Prints settings after the config file, RESTPAD_* variables and flags are applied.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, err := config.Load()
			if err != nil {
				return err
			}
			settings = applyFlags(settings, *flags)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), settings)
			}
			for _, kv := range config.Describe(settings) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", keyStyle.Render(kv[0]+":"), kv[1])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "restpad %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
			if sum, err := executableChecksum(); err == nil {
				fmt.Fprintf(out, "  sha256: %s\n", sum)
			} else {
				fmt.Fprintf(out, "  sha256: unavailable (%v)\n", err)
			}
		},
	}
}
