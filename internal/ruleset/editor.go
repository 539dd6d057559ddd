package ruleset

import (
	"fmt"
	"time"
)

// AddRule appends r to the chain named by r.Chain, creating the chain with
// the default policy if it does not exist yet. r is normalized and must pass
// Validate.
func (rs *RuleSet) AddRule(r Rule) error {
	r = r.Normalized()
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Chain == "" {
		return fmt.Errorf("add rule: empty chain name")
	}
	c := rs.EnsureChain(r.Chain, DefaultPolicy)
	c.Rules = append(c.Rules, r)
	return nil
}

// UpdateRule replaces the rule at index in chain. An unknown chain or an
// index outside [0, len) is a caller bug and panics.
func (rs *RuleSet) UpdateRule(chain string, index int, r Rule) error {
	c := rs.mustChain(chain, index)
	r = r.Normalized()
	r.Chain = chain
	if err := r.Validate(); err != nil {
		return err
	}
	c.Rules[index] = r
	return nil
}

// DeleteRule removes the rule at index in chain. A chain left without rules
// is removed from the set, policy included. An unknown chain or an index
// outside [0, len) is a caller bug and panics.
func (rs *RuleSet) DeleteRule(chain string, index int) {
	c := rs.mustChain(chain, index)
	c.Rules = append(c.Rules[:index], c.Rules[index+1:]...)
	if len(c.Rules) == 0 {
		rs.RemoveChain(chain)
	}
}

func (rs *RuleSet) mustChain(chain string, index int) *Chain {
	c := rs.chains[chain]
	if c == nil {
		panic(fmt.Sprintf("ruleset: no chain %q", chain))
	}
	if index < 0 || index >= len(c.Rules) {
		panic(fmt.Sprintf("ruleset: rule index %d out of range [0,%d) in chain %q", index, len(c.Rules), chain))
	}
	return c
}

// NoEdit is the EditingIndex of a session that is not editing a rule.
const NoEdit = -1

// Session is one user's editing state: the rule set being edited and the
// rule currently open in the editor, if any.
type Session struct {
	ID           string
	RuleSet      *RuleSet
	EditingChain string
	EditingIndex int
	CreatedAt    time.Time
	UpdatedAt    time.Time

	now func() time.Time
}

// NewSession wraps rs in a session. now supplies timestamps; nil uses time.Now.
func NewSession(id string, rs *RuleSet, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	if rs == nil {
		rs = New(IPTables, "")
	}
	t := now()
	return &Session{
		ID:           id,
		RuleSet:      rs,
		EditingIndex: NoEdit,
		CreatedAt:    t,
		UpdatedAt:    t,
		now:          now,
	}
}

// Editing reports whether a rule is open in the editor.
func (s *Session) Editing() bool {
	return s.EditingIndex != NoEdit
}

// BeginEdit opens the rule at index in chain for editing.
func (s *Session) BeginEdit(chain string, index int) (Rule, error) {
	r, err := s.RuleSet.Rule(chain, index)
	if err != nil {
		return Rule{}, err
	}
	s.EditingChain = chain
	s.EditingIndex = index
	return r, nil
}

// CancelEdit closes the editor without changing the rule set.
func (s *Session) CancelEdit() {
	s.EditingChain = ""
	s.EditingIndex = NoEdit
}

// Commit stores r: it replaces the rule open in the editor, or is appended to
// r.Chain when nothing is being edited. The editor is closed on success.
func (s *Session) Commit(r Rule) error {
	if !s.Editing() {
		return s.Add(r)
	}
	if _, err := s.RuleSet.Rule(s.EditingChain, s.EditingIndex); err != nil {
		s.CancelEdit()
		return err
	}
	if err := s.RuleSet.UpdateRule(s.EditingChain, s.EditingIndex, r); err != nil {
		return err
	}
	s.CancelEdit()
	s.touch()
	return nil
}

// Add appends r to its chain.
func (s *Session) Add(r Rule) error {
	if err := s.RuleSet.AddRule(r); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Update replaces the rule at index in chain after checking bounds.
func (s *Session) Update(chain string, index int, r Rule) error {
	if _, err := s.RuleSet.Rule(chain, index); err != nil {
		return err
	}
	if err := s.RuleSet.UpdateRule(chain, index, r); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Delete removes the rule at index in chain after checking bounds. An open
// editor on the removed rule is closed; one on a later rule of the same chain
// follows it to its new index.
func (s *Session) Delete(chain string, index int) error {
	if _, err := s.RuleSet.Rule(chain, index); err != nil {
		return err
	}
	s.RuleSet.DeleteRule(chain, index)
	if s.Editing() && s.EditingChain == chain {
		switch {
		case s.EditingIndex == index:
			s.CancelEdit()
		case s.EditingIndex > index:
			s.EditingIndex--
		}
	}
	s.touch()
	return nil
}

// Replace swaps in a new rule set, e.g. after loading a stored version.
func (s *Session) Replace(rs *RuleSet) {
	s.RuleSet = rs
	s.CancelEdit()
	s.touch()
}

// Render returns the canonical text of the session's rule set.
func (s *Session) Render() string {
	return RenderRuleSet(s.RuleSet)
}

func (s *Session) touch() {
	s.UpdatedAt = s.now()
}
