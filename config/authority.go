package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldRule says which evidence sources may write a record field and
// how conflicts on re-merge resolve.
type FieldRule struct {
	// Sources are the evidence streams allowed to write the field, any
	// of "audio", "email", "oms".
	Sources []string `yaml:"sources"`
	// Sticky lists values that, once stored, a merge cannot replace
	// with anything else.
	Sticky []string `yaml:"sticky,omitempty"`
	// KeepNonEmpty stops a merge from replacing a populated value with
	// an empty one.
	KeepNonEmpty bool `yaml:"keep_non_empty,omitempty"`
}

// Authority is the field-ownership table consulted on every merge.
// Operators can override individual rules from a YAML file; fields not
// named there keep the compiled defaults.
type Authority struct {
	Fields map[string]FieldRule `yaml:"fields"`
}

func DefaultAuthority() Authority {
	return Authority{Fields: map[string]FieldRule{
		"audioMatchType":   {Sources: []string{"audio"}},
		"audioMatchedCall": {Sources: []string{"audio"}},
		"audioFileRefs":    {Sources: []string{"audio"}, KeepNonEmpty: true},
		"callExtract":      {Sources: []string{"audio"}, KeepNonEmpty: true},
		"fallbackSeconds":  {Sources: []string{"audio"}},

		"emailMatchStatus": {Sources: []string{"email", "oms"}, Sticky: []string{"OMS_MATCH"}},
		"emailMatchType":   {Sources: []string{"email"}},
		"emailMatchedRef":  {Sources: []string{"email"}},
		"matchConfidence":  {Sources: []string{"email", "oms"}},
		"discrepancies":    {Sources: []string{"email"}, KeepNonEmpty: true},
		"discrepancyClass": {Sources: []string{"email"}},
		"reviewRequired":   {Sources: []string{"email"}},

		"omsMatchId":  {Sources: []string{"oms"}, KeepNonEmpty: true},
		"omsAlertIds": {Sources: []string{"oms"}},
	}}
}

// LoadAuthority layers a YAML override file over the defaults. An
// empty path returns the defaults untouched.
func LoadAuthority(path string) (Authority, error) {
	a := DefaultAuthority()
	if path == "" {
		return a, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return a, fmt.Errorf("config: read authority file: %w", err)
	}
	var override Authority
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return a, fmt.Errorf("config: parse authority file: %w", err)
	}
	for field, rule := range override.Fields {
		for _, src := range rule.Sources {
			if src != "audio" && src != "email" && src != "oms" {
				return a, fmt.Errorf("config: authority field %s: unknown source %q", field, src)
			}
		}
		a.Fields[field] = rule
	}
	return a, nil
}

func (a Authority) Rule(field string) (FieldRule, bool) {
	r, ok := a.Fields[field]
	return r, ok
}

// Owns reports whether the given source may write the field.
func (a Authority) Owns(field, source string) bool {
	r, ok := a.Fields[field]
	if !ok {
		return false
	}
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// StickyHolds reports whether the stored value is pinned against
// replacement.
func (a Authority) StickyHolds(field, stored string) bool {
	r, ok := a.Fields[field]
	if !ok {
		return false
	}
	for _, v := range r.Sticky {
		if v == stored {
			return true
		}
	}
	return false
}
