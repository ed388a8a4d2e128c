package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/restpad/restpad/internal/execution"
	"github.com/restpad/restpad/internal/nettrace"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB454"))
	errStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF"))
)

func statusStyle(res *execution.Result) lipgloss.Style {
	switch {
	case res.Failed():
		return errStyle
	case res.Response.OK():
		return okStyle
	case res.Response.StatusCode >= 400:
		return errStyle
	default:
		return warnStyle
	}
}

type resultView struct {
	headers bool
	body    bool
}

// renderResult prints the status line, optional headers, the body and the
// script log.
func renderResult(w io.Writer, res *execution.Result, view resultView) {
	status := strings.TrimSpace(res.Response.Status + " " + res.Response.StatusText)
	fmt.Fprintf(w, "%s %s %s\n",
		statusStyle(res).Render(status),
		res.RequestDetails.Method,
		res.ProcessedURL)
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%.1f ms", res.DurationMs)))

	if view.headers && len(res.Response.Headers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Headers"))
		renderPairs(w, res.Response.Headers)
	}

	if view.headers && res.Timing != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Timing"))
		renderTiming(w, res.Timing)
	}

	if view.body {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Body"))
		fmt.Fprintln(w, formatData(res.ResponseData))
	}

	if res.ScriptOutput != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headingStyle.Render("Script Output"))
		for _, line := range strings.Split(res.ScriptOutput, "\n") {
			fmt.Fprintln(w, styleLogLine(line))
		}
	}
}

func renderTiming(w io.Writer, tl *nettrace.Timeline) {
	d := tl.Durations()
	for _, kind := range nettrace.Order {
		if v, ok := d[kind]; ok {
			fmt.Fprintf(w, "%s %s\n", keyStyle.Render(fmt.Sprintf("%-9s", string(kind)+":")), v.Round(time.Microsecond))
		}
	}
	total := fmt.Sprintf("%-9s", "total:")
	line := d[nettrace.PhaseTotal].Round(time.Microsecond).String()
	if tl.Reused() {
		line += dimStyle.Render(" (reused connection)")
	}
	fmt.Fprintf(w, "%s %s\n", keyStyle.Render(total), line)
}

func styleLogLine(line string) string {
	switch {
	case strings.Contains(line, " Error] "), strings.HasPrefix(line, "[HTTP Error]"):
		return errStyle.Render(line)
	case strings.HasPrefix(line, "--- "):
		return headingStyle.Render(line)
	case strings.HasPrefix(line, "[HTTP]"):
		return dimStyle.Render(line)
	default:
		return line
	}
}

func renderPairs(w io.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s %s\n", keyStyle.Render(k+":"), m[k])
	}
}

// formatData pretty-prints decoded JSON and passes text through.
func formatData(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable prints rows with left-aligned columns.
func renderTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i]).Render(cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(header, headingStyle)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}
