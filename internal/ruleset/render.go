package ruleset

import (
	"strings"
)

// RenderRule emits a rule as a single command line. Fields are written in a
// fixed order and empty fields are omitted, so parsing the result and
// rendering again gives the same line.
func RenderRule(r Rule, chain string, t FirewallType) string {
	var b strings.Builder
	b.WriteString(t.Tool())
	b.WriteString(" -A ")
	b.WriteString(chain)

	opt := func(flag, v string) {
		if v == "" {
			return
		}
		b.WriteByte(' ')
		b.WriteString(flag)
		b.WriteByte(' ')
		b.WriteString(v)
	}

	opt("-i", r.Interface)
	opt("-p", r.Protocol)
	opt("-s", r.Source)
	opt("-d", r.Destination)
	opt("--sport", r.SPort)
	opt("--dport", r.DPort)
	if len(r.State) > 0 {
		opt("-m state --state", strings.Join(r.State, ","))
	}
	if r.Comment != "" {
		opt("-m comment --comment", `"`+r.Comment+`"`)
	}
	if r.Extra != "" {
		b.WriteByte(' ')
		b.WriteString(r.Extra)
	}
	opt("-j", r.Target)
	if r.TargetOptions != "" {
		b.WriteByte(' ')
		b.WriteString(r.TargetOptions)
	}
	return b.String()
}

// RenderRuleSet emits a complete script: flush, chain policies, then each
// non-empty chain's rules under a comment header.
func RenderRuleSet(rs *RuleSet) string {
	tool := rs.FirewallType.Tool()

	var b strings.Builder
	b.WriteString(tool)
	b.WriteString(" -F\n")

	chains := rs.Chains()
	for _, c := range chains {
		if c.Policy == "" {
			continue
		}
		b.WriteString(tool)
		b.WriteString(" -P ")
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.Policy)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	for _, c := range chains {
		if len(c.Rules) == 0 {
			continue
		}
		b.WriteString("# ")
		b.WriteString(c.Name)
		b.WriteString(" chain rules\n")
		for _, r := range c.Rules {
			b.WriteString(RenderRule(r, c.Name, rs.FirewallType))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Render is shorthand for RenderRuleSet.
func (rs *RuleSet) Render() string {
	return RenderRuleSet(rs)
}
