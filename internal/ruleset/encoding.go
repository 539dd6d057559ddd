package ruleset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ruleSetJSON struct {
	FirewallType FirewallType  `json:"firewall_type"`
	DeviceName   string        `json:"device_name,omitempty"`
	Chains       orderedChains `json:"chains"`
	RawConfig    string        `json:"raw_config,omitempty"`
}

// orderedChains encodes as a JSON object keyed by chain name, in slice order.
type orderedChains []*Chain

func (oc orderedChains) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range oc {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (oc *orderedChains) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*oc = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("chains: expected object, got %v", tok)
	}
	var out orderedChains
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("chains: expected chain name, got %v", tok)
		}
		c := &Chain{}
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("chain %s: %w", name, err)
		}
		c.Name = name
		out = append(out, c)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*oc = out
	return nil
}

// MarshalJSON encodes chains as an object in insertion order.
func (rs *RuleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleSetJSON{
		FirewallType: rs.FirewallType,
		DeviceName:   rs.DeviceName,
		Chains:       rs.Chains(),
		RawConfig:    rs.RawConfig,
	})
}

// UnmarshalJSON decodes a rule set, keeping the document's chain order.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var in ruleSetJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*rs = *New(in.FirewallType, in.DeviceName)
	rs.RawConfig = in.RawConfig
	rs.load(in.Chains)
	return nil
}

func (rs *RuleSet) load(chains []*Chain) {
	for _, c := range chains {
		if c == nil {
			continue
		}
		nc := rs.EnsureChain(c.Name, c.Policy)
		nc.Policy = c.Policy
		nc.Rules = nc.Rules[:0]
		for _, r := range c.Rules {
			r.Chain = c.Name
			nc.Rules = append(nc.Rules, r)
		}
	}
}

type ruleSetYAML struct {
	FirewallType FirewallType `yaml:"firewall_type"`
	DeviceName   string       `yaml:"device_name,omitempty"`
	Chains       []*Chain     `yaml:"chains"`
}

// MarshalYAML implements yaml.Marshaler. Chains become an ordered list and
// the raw source text is left out.
func (rs *RuleSet) MarshalYAML() (interface{}, error) {
	return ruleSetYAML{
		FirewallType: rs.FirewallType,
		DeviceName:   rs.DeviceName,
		Chains:       rs.Chains(),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (rs *RuleSet) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in ruleSetYAML
	if err := unmarshal(&in); err != nil {
		return err
	}
	*rs = *New(in.FirewallType, in.DeviceName)
	rs.load(in.Chains)
	return nil
}
