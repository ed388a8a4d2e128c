package main

import (
	"errors"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
)

// errRequestFailed marks a send whose result was synthetic or non-2xx.
var errRequestFailed = errors.New("request failed")

func exitCode(err error) int {
	switch {
	case errors.Is(err, errRequestFailed):
		return 2
	case errdef.Is(err, errdef.CodeConfig):
		return 3
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:   "restpad",
		Short: "Send HTTP requests with variables and scripts from the terminal",
		Long: heredoc.Doc(`
			restpad stores requests, JavaScript snippets and variable groups,
			then sends requests with {{placeholders}} filled from the active group.

			A request may name a pre-request script that runs before templating
			and a post-request script that sees the decoded response.
		`),
		Example: heredoc.Doc(`
			$ restpad vars set baseUrl https://api.example.com
			$ restpad send --url '{{baseUrl}}/users' -H 'Accept: application/json'
			$ restpad requests save --title users --url '{{baseUrl}}/users'
			$ restpad send users --group staging
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.group, "group", "g", "", "Variable group to resolve placeholders from")
	pf.StringVar(&flags.transport, "transport", "", "HTTP transport (auto, native, resty)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Request timeout")
	pf.StringVar(&flags.storage, "storage", "", "Storage backend (file, sqlite, memory)")
	pf.StringVar(&flags.dataPath, "data", "", "Storage path")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.insecure, "insecure", false, "Skip TLS certificate verification")

	root.AddCommand(
		newSendCmd(&flags),
		newVarsCmd(&flags),
		newScriptsCmd(&flags),
		newRequestsCmd(&flags),
		newExportCmd(&flags),
		newImportCmd(&flags),
		newHistoryCmd(&flags),
		newConfigCmd(&flags),
		newVersionCmd(),
	)
	return root
}

// withApp opens the workspace for the duration of fn.
func withApp(flags *globalFlags, fn func(*app) error) error {
	a, err := openApp(*flags)
	if err != nil {
		return err
	}
	err = fn(a)
	return errors.Join(err, a.Close())
}
