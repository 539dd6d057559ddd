package ruleset

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	policyRe    = regexp.MustCompile(`(?:^|\s)-P\s+(\S+)\s+(\S+)`)
	appendRe    = regexp.MustCompile(`(?:^|\s)-A\s+(\S+)`)
	newChainRe  = regexp.MustCompile(`(?:^|\s)-N\s+(\S+)`)
	flushRe     = regexp.MustCompile(`(?:^|\s)-[FXZ](?:\s|$)`)
	chainDeclRe = regexp.MustCompile(`^:(\S+)\s+(\S+)`)
)

// ParseOptions tunes ParseWithOptions.
type ParseOptions struct {
	// Strict turns the first skipped line into a *ParseError.
	Strict bool
}

// LineIssue describes an input line that did not contribute to the model.
type LineIssue struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// ParseError is returned by strict parsing.
type ParseError struct {
	LineIssue
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Parse converts rule text into a RuleSet. Lines it does not understand are
// skipped; it never fails.
func Parse(text string, t FirewallType) *RuleSet {
	rs, _, _ := ParseWithOptions(text, t, ParseOptions{})
	return rs
}

// ParseWithOptions is Parse with a report of the lines that were skipped.
// In strict mode parsing stops at the first such line.
func ParseWithOptions(text string, t FirewallType, opts ParseOptions) (*RuleSet, []LineIssue, error) {
	rs := New(t, "")
	rs.RawConfig = text

	var issues []LineIssue
	report := func(n int, line, reason string) error {
		issue := LineIssue{Line: n, Text: line, Reason: reason}
		issues = append(issues, issue)
		if opts.Strict {
			return &ParseError{LineIssue: issue}
		}
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// quoted text such as comments never holds directives
		bare := maskQuoted(line)

		// iptables-save framing
		if strings.HasPrefix(line, "*") || line == "COMMIT" {
			continue
		}
		if m := chainDeclRe.FindStringSubmatch(bare); m != nil {
			if m[2] == "-" {
				rs.EnsureChain(m[1], "")
			} else {
				rs.SetPolicy(m[1], m[2])
			}
			continue
		}

		if m := appendRe.FindStringSubmatch(bare); m != nil {
			chain := rs.EnsureChain(m[1], DefaultPolicy)
			rule := ParseRule(line)
			if rule.Target == "" {
				if err := report(n, line, "missing target"); err != nil {
					return rs, issues, err
				}
				continue
			}
			rule.Chain = chain.Name
			chain.Rules = append(chain.Rules, rule)
			continue
		}

		if m := policyRe.FindStringSubmatch(bare); m != nil {
			rs.SetPolicy(m[1], m[2])
			continue
		}

		if m := newChainRe.FindStringSubmatch(bare); m != nil {
			rs.EnsureChain(m[1], "")
			continue
		}
		if flushRe.MatchString(bare) {
			continue
		}

		if err := report(n, line, "unrecognized directive"); err != nil {
			return rs, issues, err
		}
	}
	if err := scanner.Err(); err != nil {
		return rs, issues, fmt.Errorf("read rules: %w", err)
	}

	return rs, issues, nil
}

// toolNames are command names that may lead a directive line.
var toolNames = map[string]bool{
	"iptables":         true,
	"ip6tables":        true,
	"ebtables":         true,
	"iptables-legacy":  true,
	"ip6tables-legacy": true,
	"iptables-nft":     true,
	"ip6tables-nft":    true,
}

// ruleField maps one flag pattern onto a Rule field. module names the match
// extension ("-m <module>") the renderer emits in front of the flag.
type ruleField struct {
	re     *regexp.Regexp
	set    func(r *Rule, v string)
	module string
}

func flagPattern(flag, value string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\s)` + regexp.QuoteMeta(flag) + `\s+(` + value + `)(?:\s|$)`)
}

// Value character sets per flag. Rule.Validate holds editor input to the
// same sets so that everything the editor accepts is read back unchanged.
const (
	targetChars = `[\w-]+`
	protoChars  = `[\w-]+`
	addrChars   = `[0-9./:a-fA-F]+`
	ifaceChars  = `[\w.+@-]+`
	portChars   = `[\w:,-]+`
	stateChars  = `[\w,]+`
)

var commentRe = regexp.MustCompile(`(?:^|\s)--comment\s+"([^"]*)"`)

// ruleFields is scanned independently against the whole line, so the order
// flags appear in does not matter. Add a row to recognise a new flag.
var ruleFields = []ruleField{
	{re: flagPattern("-j", targetChars), set: func(r *Rule, v string) { r.Target = v }},
	{re: flagPattern("-p", protoChars), set: func(r *Rule, v string) { r.Protocol = v }},
	{re: flagPattern("-s", addrChars), set: func(r *Rule, v string) { r.Source = v }},
	{re: flagPattern("-d", addrChars), set: func(r *Rule, v string) { r.Destination = v }},
	{re: flagPattern("-i", ifaceChars), set: func(r *Rule, v string) { r.Interface = v }},
	{re: flagPattern("--sport", portChars), set: func(r *Rule, v string) { r.SPort = v }},
	{re: flagPattern("--dport", portChars), set: func(r *Rule, v string) { r.DPort = v }},
	{
		re:     flagPattern("--state", stateChars),
		set:    func(r *Rule, v string) { r.State = strings.Split(v, ",") },
		module: "state",
	},
}

func modulePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\s)-m\s+` + regexp.QuoteMeta(name) + `(?:\s|$)`)
}

var modulePatterns = map[string]*regexp.Regexp{
	"state":   modulePattern("state"),
	"comment": modulePattern("comment"),
}

// span is a half-open byte range of the line consumed by a pattern.
type span struct{ start, end int }

// ParseRule extracts rule fields from a single -A line. Text no pattern
// consumed is kept: tokens before the target go to Extra, tokens after it to
// TargetOptions. Flags inside double quotes are never recognised.
func ParseRule(line string) Rule {
	var r Rule
	var used []span

	// The comment is taken first and the other patterns run on a copy with
	// all quoted text blanked, so "--comment "-j DROP"" sets no target.
	bare := maskQuoted(line)
	if m := firstMatch(commentRe, line); m != nil {
		r.Comment = line[m[2]:m[3]]
		used = append(used, span{m[0], m[1]})
		if mm := modulePatterns["comment"].FindStringIndex(bare); mm != nil {
			used = append(used, span{mm[0], mm[1]})
		}
	}

	if m := appendRe.FindStringSubmatchIndex(bare); m != nil {
		r.Chain = line[m[2]:m[3]]
		used = append(used, span{m[0], m[1]})
	}
	if fields := strings.Fields(line); len(fields) > 0 && toolNames[filepath.Base(fields[0])] {
		start := strings.Index(line, fields[0])
		used = append(used, span{start, start + len(fields[0])})
	}

	targetEnd := -1
	for i, f := range ruleFields {
		m := firstMatch(f.re, bare)
		if m == nil {
			continue
		}
		f.set(&r, line[m[2]:m[3]])
		used = append(used, span{m[0], m[1]})
		if i == 0 {
			targetEnd = m[3]
		}
		if f.module != "" {
			if mm := modulePatterns[f.module].FindStringIndex(bare); mm != nil {
				used = append(used, span{mm[0], mm[1]})
			}
		}
	}

	if targetEnd < 0 {
		r.Extra = leftover(line, used, 0, len(line))
		return r
	}
	r.Extra = leftover(line, used, 0, targetEnd)
	r.TargetOptions = leftover(line, used, targetEnd, len(line))
	return r
}

// maskQuoted returns line with every double-quoted section, quotes included,
// replaced by spaces. Byte offsets are unchanged. An unterminated quote runs
// to the end of the line.
func maskQuoted(line string) string {
	if !strings.Contains(line, `"`) {
		return line
	}
	buf := []byte(line)
	in := false
	for i, c := range buf {
		if c == '"' {
			in = !in
			buf[i] = ' '
			continue
		}
		if in {
			buf[i] = ' '
		}
	}
	return string(buf)
}

// firstMatch returns the submatch indexes of the first occurrence of re in
// line that is not negated with a preceding "!".
func firstMatch(re *regexp.Regexp, line string) []int {
	off := 0
	for off < len(line) {
		m := re.FindStringSubmatchIndex(line[off:])
		if m == nil {
			return nil
		}
		for i := range m {
			if m[i] >= 0 {
				m[i] += off
			}
		}
		if !negated(line, m[0]) {
			return m
		}
		// resume inside the value so the separator before the next flag is
		// still available to the pattern
		off = m[2]
	}
	return nil
}

// negated reports whether the token before pos is a lone "!".
func negated(line string, pos int) bool {
	before := strings.TrimRight(line[:pos], " \t")
	return before == "!" || strings.HasSuffix(before, " !") || strings.HasSuffix(before, "\t!")
}

// leftover joins the unconsumed tokens of line[from:to].
func leftover(line string, used []span, from, to int) string {
	buf := []byte(line[from:to])
	for _, s := range used {
		lo, hi := max(s.start, from), min(s.end, to)
		for i := lo; i < hi; i++ {
			buf[i-from] = ' '
		}
	}
	return joinArgs(string(buf))
}

// joinArgs collapses spaces and tabs between arguments. Whitespace inside
// double quotes is part of the argument and kept as is.
func joinArgs(s string) string {
	var args []string
	var cur strings.Builder
	in, started := false, false
	for _, c := range s {
		switch {
		case c == '"':
			in = !in
			started = true
			cur.WriteRune(c)
		case !in && (c == ' ' || c == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			started = true
			cur.WriteRune(c)
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return strings.Join(args, " ")
}
