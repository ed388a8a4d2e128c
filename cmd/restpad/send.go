package main

import (
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/restfile"
)

type sendOptions struct {
	method  string
	url     string
	headers []string
	body    string
	pre     string
	post    string
	json    bool
	verbose bool
	fail    bool
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send [request-id]",
		Short: "Execute a saved or ad-hoc request",
		Long: "Runs the pre-request script, resolves placeholders, sends the request, " +
			"decodes the body and runs the post-request script.\n\n" +
			"Flags override the fields of a saved request.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				req, err := buildRequest(cmd, a, args, opts)
				if err != nil {
					return err
				}
				if req.Group == "" {
					req.Group = a.group()
				}
				exec, err := a.executor()
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				res := exec.Execute(ctx, req, a.scope())

				out := cmd.OutOrStdout()
				if opts.json {
					if err := writeJSON(out, res); err != nil {
						return err
					}
				} else {
					renderResult(out, res, resultView{headers: opts.verbose, body: true})
				}
				if res.Failed() || (opts.fail && !res.Response.OK()) {
					return errRequestFailed
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "X", "", "HTTP method (default GET)")
	f.StringVar(&opts.url, "url", "", "Request URL, may contain {{placeholders}}")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Header as 'Key: Value' (repeatable)")
	f.StringVarP(&opts.body, "body", "d", "", "Request body, @file to read a file or - for stdin")
	f.StringVar(&opts.pre, "pre", "", "Pre-request script id")
	f.StringVar(&opts.post, "post", "", "Post-request script id")
	f.BoolVar(&opts.json, "json", false, "Print the result as JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Show response headers")
	f.BoolVar(&opts.fail, "fail", false, "Exit non-zero on a non-2xx status")
	return cmd
}

func buildRequest(cmd *cobra.Command, a *app, args []string, opts sendOptions) (restfile.Request, error) {
	var req restfile.Request
	if len(args) == 1 {
		saved, ok := a.requests.Get(args[0])
		if !ok {
			return req, errdef.New(errdef.CodeConfig, "request %q not found", args[0])
		}
		req = saved
	}

	if opts.method != "" {
		req.Method = opts.method
	}
	if opts.url != "" {
		req.URL = opts.url
	}
	if len(opts.headers) > 0 {
		headers, err := parseHeaders(opts.headers)
		if err != nil {
			return req, err
		}
		req.Headers = mergeHeaders(req.Headers, headers)
	}
	if cmd.Flags().Changed("body") {
		body, err := readSource(cmd.InOrStdin(), opts.body)
		if err != nil {
			return req, err
		}
		req.Body = body
	}
	if cmd.Flags().Changed("pre") {
		req.PreScriptID = opts.pre
	}
	if cmd.Flags().Changed("post") {
		req.PostScriptID = opts.post
	}
	if strings.TrimSpace(req.URL) == "" {
		return req, errdef.New(errdef.CodeConfig, "no url: pass a saved request id or --url")
	}
	req.Method = restfile.NormalizeMethod(req.Method)
	return req, nil
}

func parseHeaders(raw []string) ([]restfile.Header, error) {
	headers := make([]restfile.Header, 0, len(raw))
	for _, r := range raw {
		h, ok := restfile.ParseHeader(r)
		if !ok {
			return nil, errdef.New(errdef.CodeParse, "invalid header %q, want 'Key: Value'", r)
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// mergeHeaders replaces headers in base that share a key with extra
// (case-insensitively) and appends the rest.
func mergeHeaders(base, extra []restfile.Header) []restfile.Header {
	out := make([]restfile.Header, 0, len(base)+len(extra))
	for _, h := range base {
		replaced := false
		for _, e := range extra {
			if strings.EqualFold(h.Key, e.Key) {
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, h)
		}
	}
	return append(out, extra...)
}

// readSource resolves "-" to stdin and "@path" to the file contents.
func readSource(stdin io.Reader, value string) (string, error) {
	switch {
	case value == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", errdef.Wrap(errdef.CodeFilesystem, err, "read stdin")
		}
		return string(data), nil
	case strings.HasPrefix(value, "@"):
		path := strings.TrimPrefix(value, "@")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errdef.Wrap(errdef.CodeFilesystem, err, "read %s", path)
		}
		return string(data), nil
	default:
		return value, nil
	}
}

