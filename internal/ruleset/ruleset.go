// Package ruleset holds the structured firewall rule model and the engine that
// moves between it and command text.
//
// The model is a RuleSet of named chains, each an ordered list of rules. Text is
// turned into a model by Parse (a best-effort parser, not a validator) and back
// into canonical command text by RenderRuleSet. Rendering is a fixed point:
// parsing rendered output and rendering again yields the same text.
//
// A RuleSet is owned by a single editing session. Nothing in this package is
// safe for concurrent use.
package ruleset

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// FirewallType selects the command syntax a rule set is rendered for.
type FirewallType string

const (
	IPTables  FirewallType = "iptables"
	IP6Tables FirewallType = "ip6tables"
	EBTables  FirewallType = "ebtables"
)

// DefaultPolicy is assigned to chains created implicitly by an append.
const DefaultPolicy = "ACCEPT"

var (
	// ErrMissingTarget is returned when a rule has no -j target.
	ErrMissingTarget = errors.New("rule has no target")
	// ErrRuleNotFound is returned by bounds-checked lookups.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrInvalidRule is returned when a field value would not survive
	// rendering and parsing back.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrUnknownFirewallType is returned by ParseFirewallType.
	ErrUnknownFirewallType = errors.New("unknown firewall type")
)

// FirewallTypes lists the supported types in display order.
func FirewallTypes() []FirewallType {
	return []FirewallType{IPTables, IP6Tables, EBTables}
}

// ParseFirewallType converts a user supplied name into a FirewallType.
func ParseFirewallType(s string) (FirewallType, error) {
	switch FirewallType(strings.ToLower(strings.TrimSpace(s))) {
	case IPTables:
		return IPTables, nil
	case IP6Tables:
		return IP6Tables, nil
	case EBTables:
		return EBTables, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFirewallType, s)
}

// Tool returns the command name used when rendering.
func (t FirewallType) Tool() string {
	if t == "" {
		return string(IPTables)
	}
	return string(t)
}

// Rule is a single entry in a chain.
type Rule struct {
	Chain       string   `json:"chain,omitempty" yaml:"chain,omitempty"`
	Target      string   `json:"target" yaml:"target"`
	Protocol    string   `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Source      string   `json:"source,omitempty" yaml:"source,omitempty"`
	Destination string   `json:"destination,omitempty" yaml:"destination,omitempty"`
	Interface   string   `json:"interface,omitempty" yaml:"interface,omitempty"`
	SPort       string   `json:"sport,omitempty" yaml:"sport,omitempty"`
	DPort       string   `json:"dport,omitempty" yaml:"dport,omitempty"`
	State       []string `json:"state,omitempty" yaml:"state,omitempty"`
	Comment     string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	Extra       string   `json:"extra,omitempty" yaml:"extra,omitempty"`

	// TargetOptions holds arguments of the target extension, e.g.
	// "--reject-with tcp-reset". They are rendered after the target.
	TargetOptions string `json:"target_options,omitempty" yaml:"target_options,omitempty"`
}

var (
	chainValueRe = regexp.MustCompile(`^[^\s"!-][^\s"]*$`)
	stateValueRe = regexp.MustCompile(`^\w+$`)

	fieldValueRes = map[string]*regexp.Regexp{
		"target":      anchored(targetChars),
		"protocol":    anchored(protoChars),
		"source":      anchored(addrChars),
		"destination": anchored(addrChars),
		"interface":   anchored(ifaceChars),
		"sport":       anchored(portChars),
		"dport":       anchored(portChars),
	}
)

func anchored(chars string) *regexp.Regexp {
	return regexp.MustCompile(`^` + chars + `$`)
}

// Validate checks that r renders to a line that parses back into r. Anything
// else is ErrInvalidRule, e.g. a comment with quotes or "-j DROP" in Extra.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return ErrMissingTarget
	}
	if r.Chain != "" && !chainValueRe.MatchString(r.Chain) {
		return fmt.Errorf("%w: chain %q", ErrInvalidRule, r.Chain)
	}
	for _, f := range []struct{ name, v string }{
		{"target", r.Target},
		{"protocol", r.Protocol},
		{"source", r.Source},
		{"destination", r.Destination},
		{"interface", r.Interface},
		{"sport", r.SPort},
		{"dport", r.DPort},
	} {
		if f.v != "" && !fieldValueRes[f.name].MatchString(f.v) {
			return fmt.Errorf("%w: %s %q", ErrInvalidRule, f.name, f.v)
		}
	}
	for _, st := range r.State {
		if !stateValueRe.MatchString(st) {
			return fmt.Errorf("%w: state %q", ErrInvalidRule, st)
		}
	}
	if strings.ContainsAny(r.Comment, "\"\r\n") {
		return fmt.Errorf("%w: comment must not contain quotes or line breaks", ErrInvalidRule)
	}
	if strings.ContainsAny(r.Extra+r.TargetOptions, "\r\n") {
		return fmt.Errorf("%w: options must not contain line breaks", ErrInvalidRule)
	}

	chain := r.Chain
	if chain == "" {
		chain = "CHAIN"
	}
	want := r
	want.Chain = chain
	if len(want.State) == 0 {
		want.State = nil
	}
	line := RenderRule(want, chain, IPTables)
	if back := ParseRule(line); !reflect.DeepEqual(back, want) {
		return fmt.Errorf("%w: %q does not read back as the same rule", ErrInvalidRule, line)
	}
	return nil
}

// Normalized returns r with surrounding whitespace trimmed from single-value
// fields and runs of whitespace between extra options collapsed, the form
// the parser produces.
func (r Rule) Normalized() Rule {
	for _, f := range []*string{&r.Chain, &r.Target, &r.Protocol, &r.Source, &r.Destination, &r.Interface, &r.SPort, &r.DPort} {
		*f = strings.TrimSpace(*f)
	}
	r.Extra = joinArgs(r.Extra)
	r.TargetOptions = joinArgs(r.TargetOptions)
	if len(r.State) == 0 {
		r.State = nil
	}
	return r
}

// Chain is a named, ordered rule list with an optional default policy.
type Chain struct {
	Name   string `json:"-" yaml:"name"`
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`
	Rules  []Rule `json:"rules" yaml:"rules"`
}

// Empty reports whether the chain has neither rules nor a policy.
func (c *Chain) Empty() bool {
	return len(c.Rules) == 0 && c.Policy == ""
}

// RuleSet is the in-memory model of one device's firewall configuration.
type RuleSet struct {
	FirewallType FirewallType
	DeviceName   string
	RawConfig    string

	chains map[string]*Chain
	order  []string
}

// New returns an empty rule set.
func New(t FirewallType, deviceName string) *RuleSet {
	return &RuleSet{
		FirewallType: t,
		DeviceName:   deviceName,
		chains:       make(map[string]*Chain),
	}
}

func (rs *RuleSet) init() {
	if rs.chains == nil {
		rs.chains = make(map[string]*Chain)
	}
}

// Chain returns the named chain, or nil.
func (rs *RuleSet) Chain(name string) *Chain {
	return rs.chains[name]
}

// HasChain reports whether name is a key of the chain mapping.
func (rs *RuleSet) HasChain(name string) bool {
	_, ok := rs.chains[name]
	return ok
}

// ChainNames returns chain names in insertion order.
func (rs *RuleSet) ChainNames() []string {
	out := make([]string, len(rs.order))
	copy(out, rs.order)
	return out
}

// Chains returns the chains in insertion order.
func (rs *RuleSet) Chains() []*Chain {
	out := make([]*Chain, 0, len(rs.order))
	for _, name := range rs.order {
		out = append(out, rs.chains[name])
	}
	return out
}

// RuleCount returns the number of rules in the named chain (0 if absent).
func (rs *RuleSet) RuleCount(chain string) int {
	if c := rs.chains[chain]; c != nil {
		return len(c.Rules)
	}
	return 0
}

// TotalRules counts rules across all chains.
func (rs *RuleSet) TotalRules() int {
	n := 0
	for _, c := range rs.chains {
		n += len(c.Rules)
	}
	return n
}

// EnsureChain returns the named chain, creating it with policy when absent.
func (rs *RuleSet) EnsureChain(name, policy string) *Chain {
	rs.init()
	if c, ok := rs.chains[name]; ok {
		return c
	}
	c := &Chain{Name: name, Policy: policy, Rules: []Rule{}}
	rs.chains[name] = c
	rs.order = append(rs.order, name)
	return c
}

// SetPolicy creates the chain if needed and overwrites its policy.
func (rs *RuleSet) SetPolicy(name, policy string) {
	rs.EnsureChain(name, "").Policy = policy
}

// RemoveChain deletes the chain and its rules.
func (rs *RuleSet) RemoveChain(name string) {
	if _, ok := rs.chains[name]; !ok {
		return
	}
	delete(rs.chains, name)
	for i, n := range rs.order {
		if n == name {
			rs.order = append(rs.order[:i], rs.order[i+1:]...)
			break
		}
	}
}

// Rule returns a copy of the rule at index, or ErrRuleNotFound.
func (rs *RuleSet) Rule(chain string, index int) (Rule, error) {
	c := rs.chains[chain]
	if c == nil || index < 0 || index >= len(c.Rules) {
		return Rule{}, fmt.Errorf("%w: %s[%d]", ErrRuleNotFound, chain, index)
	}
	return c.Rules[index], nil
}

// Clone returns a deep copy.
func (rs *RuleSet) Clone() *RuleSet {
	out := New(rs.FirewallType, rs.DeviceName)
	out.RawConfig = rs.RawConfig
	for _, c := range rs.Chains() {
		nc := out.EnsureChain(c.Name, c.Policy)
		for _, r := range c.Rules {
			r.State = append([]string(nil), r.State...)
			nc.Rules = append(nc.Rules, r)
		}
	}
	return out
}
