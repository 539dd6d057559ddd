package cmd

import (
	"flag"
	"fmt"
	"io"

	"grimm.is/ruledit/internal/diff"
	"grimm.is/ruledit/internal/ruleset"
)

// RunDiff compares two rule files after rendering both canonically, so
// formatting differences in the inputs do not show up. It returns ErrDiffers
// when they differ.
func RunDiff(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	typ := fs.String("type", "", "Firewall type of both files")
	fs.StringVar(typ, "t", "", "Firewall type (short)")
	unified := fs.Bool("unified", false, "Print a unified diff")
	fs.BoolVar(unified, "u", false, "Unified diff (short)")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: diff [-type T] [-unified] [-no-color] OLD NEW")
	}

	ft, err := parseType(*typ)
	if err != nil {
		return err
	}
	oldPath, newPath := fs.Arg(0), fs.Arg(1)
	oldText, err := canonical(oldPath, ft)
	if err != nil {
		return err
	}
	newText, err := canonical(newPath, ft)
	if err != nil {
		return err
	}

	lines := diff.Compute(oldText, newText)
	summary := diff.Summarize(lines)

	if *unified {
		text, err := diff.Unified(oldText, newText, oldPath, newPath, 3)
		if err != nil {
			return err
		}
		writeUnified(stdout, text, *noColor)
	} else {
		marked := make([]string, len(lines))
		for i, l := range lines {
			marked[i] = l.String()
		}
		writeMarked(stdout, marked, *noColor)
	}

	writeSummary(stderr, summary.Added, summary.Removed)
	if summary.Changed() {
		return ErrDiffers
	}
	return nil
}

func canonical(path string, ft ruleset.FirewallType) (string, error) {
	text, err := readInput(path)
	if err != nil {
		return "", err
	}
	return ruleset.Parse(text, ft).Render(), nil
}
