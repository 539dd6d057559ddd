// Package diff compares rendered rule sets line by line for display.
//
// Line diffs are minimal shortest edit scripts. Unified output for patches
// comes from difflib.
//
// The comparison is purely textual: two rule sets that render to the same
// text have no differences, whatever their structure.
package diff

import (
	"strings"

	godebug "github.com/kylelemons/godebug/diff"
	"github.com/pmezard/go-difflib/difflib"
)

// Kind classifies a diff line.
type Kind int

const (
	Equal Kind = iota
	Insert
	Delete
)

// Line is one line of a diff.
type Line struct {
	Kind Kind
	Text string
}

// String renders the line with its marker: "+" for inserted, "-" for
// deleted, nothing for common lines.
func (l Line) String() string {
	switch l.Kind {
	case Insert:
		return "+" + l.Text
	case Delete:
		return "-" + l.Text
	}
	return l.Text
}

// Compute diffs oldText against newText with a shortest edit script, so the
// number of changed lines is minimal. It returns nil when the texts have the
// same lines. Within a changed block deleted lines come first.
func Compute(oldText, newText string) []Line {
	if oldText == newText {
		return nil
	}
	a, b := split(oldText), split(newText)

	var out, deleted, inserted []Line
	flush := func() {
		out = append(out, deleted...)
		out = append(out, inserted...)
		deleted, inserted = deleted[:0], inserted[:0]
	}
	changed := false
	for _, c := range godebug.DiffChunks(a, b) {
		deleted = appendKind(deleted, Delete, c.Deleted)
		inserted = appendKind(inserted, Insert, c.Added)
		if len(c.Deleted) > 0 || len(c.Added) > 0 {
			changed = true
		}
		if len(c.Equal) > 0 {
			flush()
			out = appendKind(out, Equal, c.Equal)
		}
	}
	flush()
	if !changed {
		return nil
	}
	return out
}

// Lines is Compute with each line rendered through Line.String.
func Lines(oldText, newText string) []string {
	lines := Compute(oldText, newText)
	if lines == nil {
		return nil
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}

// Unified returns a unified diff with context lines of context, or "" when
// the texts are equal.
func Unified(oldText, newText, fromName, toName string, context int) (string, error) {
	if oldText == newText {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// Summary counts changed lines.
type Summary struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Changed reports whether any line differs.
func (s Summary) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

// Summarize counts inserted and deleted lines.
func Summarize(lines []Line) Summary {
	var s Summary
	for _, l := range lines {
		switch l.Kind {
		case Insert:
			s.Added++
		case Delete:
			s.Removed++
		}
	}
	return s
}

func appendKind(out []Line, k Kind, lines []string) []Line {
	for _, l := range lines {
		out = append(out, Line{Kind: k, Text: l})
	}
	return out
}

// split breaks text into lines; one trailing newline does not start a line.
func split(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
