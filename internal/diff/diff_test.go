package diff

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruledit/internal/ruleset"
)

func TestLines_Scenario(t *testing.T) {
	got := Lines("A\nB\nC", "A\nC\nD")
	want := []string{"A", "-B", "C", "+D"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lines = %q, want %q", got, want)
	}
}

func TestLines_IdenticalIsEmpty(t *testing.T) {
	text := "iptables -F\niptables -P INPUT DROP\n\n"
	if got := Lines(text, text); len(got) != 0 {
		t.Errorf("expected no lines, got %q", got)
	}
	if got := Lines("", ""); got != nil {
		t.Errorf("expected nil for empty inputs, got %q", got)
	}
	if got := Lines("A\nB\n", "A\nB"); got != nil {
		t.Errorf("trailing newline alone must not count as a change, got %q", got)
	}
}

func TestLines_FromAndToEmpty(t *testing.T) {
	if got, want := Lines("", "A\nB\n"), []string{"+A", "+B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Lines(empty, x) = %q, want %q", got, want)
	}
	if got, want := Lines("A\nB\n", ""), []string{"-A", "-B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Lines(x, empty) = %q, want %q", got, want)
	}
}

func TestLines_ReplaceListsDeletesFirst(t *testing.T) {
	got := Lines("keep\nold1\nold2\nend", "keep\nnew1\nend")
	want := []string{"keep", "-old1", "-old2", "+new1", "end"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lines = %q, want %q", got, want)
	}
}

func TestLines_Deterministic(t *testing.T) {
	a := strings.Repeat("iptables -A INPUT -j ACCEPT\n", 300) + "x\n"
	b := strings.Repeat("iptables -A INPUT -j ACCEPT\n", 299) + "y\n"
	first := Lines(a, b)
	for i := 0; i < 3; i++ {
		if !reflect.DeepEqual(first, Lines(a, b)) {
			t.Fatal("diff output changed between runs")
		}
	}
	s := Summarize(Compute(a, b))
	if s.Removed != 2 || s.Added != 1 {
		t.Errorf("Summary = %+v, want 2 removed, 1 added", s)
	}
}

func TestLines_Minimal(t *testing.T) {
	tests := []struct {
		name           string
		old, new       string
		added, removed int
	}{
		{"moved block", "x1\ns\nx2\nt\nx3\nM1\nM2", "M1\nM2\nx1\nx2\nx3", 2, 4},
		{"interleaved", "a\nb\nc\nd\ne", "b\nX\nd\nY", 2, 3},
		{"swap", "a\nb", "b\na", 1, 1},
		{"repeated lines", "r\nr\nq\nr", "q\nr\nr\nr", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := Compute(tt.old, tt.new)
			assert.Equal(t, Summary{Added: tt.added, Removed: tt.removed}, Summarize(lines))

			// applying the edit script reproduces both sides
			var from, to []string
			for _, l := range lines {
				if l.Kind != Insert {
					from = append(from, l.Text)
				}
				if l.Kind != Delete {
					to = append(to, l.Text)
				}
			}
			assert.Equal(t, split(tt.old), from)
			assert.Equal(t, split(tt.new), to)
		})
	}
}

func changed(lines []string, marker byte) []string {
	var out []string
	for _, l := range lines {
		if len(l) > 0 && l[0] == marker {
			out = append(out, l[1:])
		}
	}
	sort.Strings(out)
	return out
}

func TestLines_SymmetricMarkers(t *testing.T) {
	pairs := [][2]string{
		{"A\nB\nC", "A\nC\nD"},
		{"one\ntwo\nthree\nfour", "one\nthree\nfive"},
		{"", "x\ny"},
		{"iptables -F\niptables -P INPUT DROP\n", "iptables -F\niptables -P INPUT ACCEPT\n"},
	}
	for _, p := range pairs {
		fwd, rev := Lines(p[0], p[1]), Lines(p[1], p[0])
		if !reflect.DeepEqual(changed(fwd, '+'), changed(rev, '-')) {
			t.Errorf("%q: added %q vs reverse removed %q", p, changed(fwd, '+'), changed(rev, '-'))
		}
		if !reflect.DeepEqual(changed(fwd, '-'), changed(rev, '+')) {
			t.Errorf("%q: removed %q vs reverse added %q", p, changed(fwd, '-'), changed(rev, '+'))
		}
	}
}

func TestCompute_SameRenderDifferentStructure(t *testing.T) {
	a := ruleset.New(ruleset.IPTables, "a")
	require.NoError(t, a.AddRule(ruleset.Rule{Chain: "INPUT", Target: "ACCEPT"}))

	b := ruleset.New(ruleset.IPTables, "b")
	b.EnsureChain("UNUSED", "")
	require.NoError(t, b.AddRule(ruleset.Rule{Chain: "INPUT", Target: "ACCEPT"}))
	b.RawConfig = "something else"

	if got := Compute(a.Render(), b.Render()); got != nil {
		t.Errorf("expected no differences, got %v", got)
	}
}

func TestCompute_RuleSetEdit(t *testing.T) {
	rs := ruleset.Parse("iptables -A INPUT -p tcp --dport 22 -j ACCEPT\n", ruleset.IPTables)
	before := rs.Render()
	if err := rs.UpdateRule("INPUT", 0, ruleset.Rule{Target: "ACCEPT", Protocol: "tcp", DPort: "2222"}); err != nil {
		t.Fatal(err)
	}

	lines := Compute(before, rs.Render())
	s := Summarize(lines)
	if s != (Summary{Added: 1, Removed: 1}) {
		t.Fatalf("Summary = %+v", s)
	}
	for _, l := range lines {
		if l.Kind == Insert && l.Text != "iptables -A INPUT -p tcp --dport 2222 -j ACCEPT" {
			t.Errorf("unexpected inserted line %q", l.Text)
		}
	}
}

func TestUnified(t *testing.T) {
	out, err := Unified("A\nB\nC\n", "A\nC\nD\n", "v1", "v2", 3)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--- v1", "+++ v2", "-B", "+D"} {
		if !strings.Contains(out, want) {
			t.Errorf("unified diff missing %q:\n%s", want, out)
		}
	}

	out, err = Unified("same\n", "same\n", "a", "b", 3)
	if err != nil || out != "" {
		t.Errorf("Unified(equal) = %q, %v", out, err)
	}
}
