// Package cmd implements the ruledit subcommands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"grimm.is/ruledit/internal/brand"
	"grimm.is/ruledit/internal/i18n"
	"grimm.is/ruledit/internal/ruleset"
)

// Printer localizes CLI output from LC_ALL / LANG.
var Printer = i18n.NewCLIPrinter()

// ErrDiffers is returned by diff commands when the inputs differ, so the
// process can exit non-zero without printing an error.
var ErrDiffers = errors.New("rule sets differ")

var (
	colorAdded   = lipgloss.Color("#4ECDC4")
	colorRemoved = lipgloss.Color("#FF6B6B")
	colorMuted   = lipgloss.Color("#6c757d")
	colorTitle   = lipgloss.Color("#A8D8EA")

	styleAdded   = lipgloss.NewStyle().Foreground(colorAdded)
	styleRemoved = lipgloss.NewStyle().Foreground(colorRemoved)
	styleContext = lipgloss.NewStyle().Foreground(colorMuted)
	styleTitle   = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
)

// defaultServer is the API URL used when -server is not given.
func defaultServer() string {
	if v := brand.Env("SERVER"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) (string, error) {
	if path == "" {
		return "", errors.New("no input file given (use -file, or - for stdin)")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// parseType resolves a -type flag; empty means iptables.
func parseType(s string) (ruleset.FirewallType, error) {
	if s == "" {
		return ruleset.IPTables, nil
	}
	return ruleset.ParseFirewallType(s)
}

// writeMarked prints diff lines carrying a leading "+" or "-" marker,
// colored unless plain is set.
func writeMarked(w io.Writer, lines []string, plain bool) {
	for _, l := range lines {
		if plain {
			fmt.Fprintln(w, l)
			continue
		}
		switch {
		case strings.HasPrefix(l, "+"):
			fmt.Fprintln(w, styleAdded.Render(l))
		case strings.HasPrefix(l, "-"):
			fmt.Fprintln(w, styleRemoved.Render(l))
		default:
			fmt.Fprintln(w, styleContext.Render(l))
		}
	}
}

// writeUnified prints a unified diff, coloring hunk bodies unless plain is
// set.
func writeUnified(w io.Writer, text string, plain bool) {
	if plain {
		io.WriteString(w, text)
		return
	}
	for _, l := range strings.SplitAfter(text, "\n") {
		if l == "" {
			continue
		}
		body := strings.TrimSuffix(l, "\n")
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"), strings.HasPrefix(l, "@@"):
			fmt.Fprintln(w, styleTitle.Render(body))
		case strings.HasPrefix(l, "+"):
			fmt.Fprintln(w, styleAdded.Render(body))
		case strings.HasPrefix(l, "-"):
			fmt.Fprintln(w, styleRemoved.Render(body))
		default:
			fmt.Fprintln(w, body)
		}
	}
}

// writeSummary prints the localized change counts.
func writeSummary(w io.Writer, added, removed int) {
	if added == 0 && removed == 0 {
		Printer.Fprintln(w, Printer.Sprintf(i18n.MsgNoDifferences))
		return
	}
	Printer.Fprintln(w, Printer.Sprintf(i18n.MsgDiffSummary, added, removed))
}
