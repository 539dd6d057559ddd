package versions

import (
	"context"

	"grimm.is/ruledit/internal/diff"
	"grimm.is/ruledit/internal/ruleset"
)

// Comparison is the diff between two stored versions.
type Comparison struct {
	From  *Record     `json:"from"`
	To    *Record     `json:"to"`
	Lines []diff.Line `json:"-"`
	diff.Summary
}

// Marked returns the diff lines with their +/- markers.
func (c *Comparison) Marked() []string {
	out := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = l.String()
	}
	return out
}

// Compare loads two versions and diffs their stored text.
func Compare(ctx context.Context, store Store, fromID, toID int64) (*Comparison, error) {
	from, err := store.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := store.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	lines := diff.Compute(from.ConfigData, to.ConfigData)
	return &Comparison{From: from, To: to, Lines: lines, Summary: diff.Summarize(lines)}, nil
}

// Load reconstructs the model of a stored version. Lines the parser skips
// are dropped silently, as when the text was first uploaded.
func Load(rec *Record) (*ruleset.RuleSet, error) {
	t, err := ruleset.ParseFirewallType(rec.ConfigType)
	if err != nil {
		return nil, err
	}
	rs := ruleset.Parse(rec.ConfigData, t)
	rs.DeviceName = rec.DeviceName
	return rs, nil
}

// FromRuleSet builds a record for the canonical rendering of rs.
func FromRuleSet(rs *ruleset.RuleSet, description string) *Record {
	return &Record{
		DeviceName:  rs.DeviceName,
		ConfigType:  string(rs.FirewallType),
		ConfigData:  rs.Render(),
		Description: description,
	}
}
