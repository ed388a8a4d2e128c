package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/workspace"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write variables, scripts and requests to a bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := bundleFormat(format, out)
			if err != nil {
				return err
			}
			return withApp(flags, func(a *app) error {
				bundle := workspace.Collect(a.vars, a.scripts, a.requests)
				if out == "" || out == "-" {
					return workspace.Encode(cmd.OutOrStdout(), f, bundle)
				}
				file, err := os.Create(out)
				if err != nil {
					return errdef.Wrap(errdef.CodeFilesystem, err, "create %s", out)
				}
				if err := workspace.Encode(file, f, bundle); err != nil {
					_ = file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return errdef.Wrap(errdef.CodeFilesystem, err, "close %s", out)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d groups, %d scripts, %d requests to %s\n",
					len(bundle.Variables), len(bundle.Scripts), len(bundle.Requests), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from --out extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a bundle, replacing all variables and upserting records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := bundleFormat(format, path)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if path != "-" {
				file, err := os.Open(path)
				if err != nil {
					return errdef.Wrap(errdef.CodeFilesystem, err, "open %s", path)
				}
				defer func() {
					_ = file.Close()
				}()
				r = file
			}
			bundle, err := workspace.Decode(r, f)
			if err != nil {
				return err
			}
			return withApp(flags, func(a *app) error {
				sum, err := workspace.Apply(bundle, a.vars, a.scripts, a.requests)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d groups, %d scripts, %d requests\n",
					sum.Groups, sum.Scripts, sum.Requests)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default from the file extension)")
	return cmd
}

func bundleFormat(explicit, path string) (workspace.Format, error) {
	if explicit != "" {
		return workspace.ParseFormat(explicit)
	}
	return workspace.FormatFromPath(path), nil
}
