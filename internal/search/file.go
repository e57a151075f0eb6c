package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// RuleSpec is the on-disk form of a provider rule. Patterns are kept as
// strings and compiled once by Compile.
type RuleSpec struct {
	Name           string   `yaml:"name" json:"name"`
	URLPattern     string   `yaml:"urlPattern" json:"urlPattern"`
	QueryParam     string   `yaml:"queryParam" json:"queryParam"`
	CodeParam      string   `yaml:"codeParam" json:"codeParam"`
	CodePrefixes   []string `yaml:"codePrefixes" json:"codePrefixes"`
	FollowOnParams []string `yaml:"followOnParams" json:"followOnParams"`

	FollowOnCookies []struct {
		ExtraCodeParam    string   `yaml:"extraCodeParam" json:"extraCodeParam"`
		ExtraCodePrefixes []string `yaml:"extraCodePrefixes" json:"extraCodePrefixes"`
		Host              string   `yaml:"host" json:"host"`
		Name              string   `yaml:"name" json:"name"`
		CodeParam         string   `yaml:"codeParam" json:"codeParam"`
		CodePrefixes      []string `yaml:"codePrefixes" json:"codePrefixes"`
	} `yaml:"followOnCookies" json:"followOnCookies"`

	ExtraAdServerPatterns []string `yaml:"extraAdServerPatterns" json:"extraAdServerPatterns"`
}

// Compile turns a RuleSpec into a ProviderRule with compiled patterns.
func (s RuleSpec) Compile() (ProviderRule, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ProviderRule{}, errors.New("provider rule name is empty")
	}
	if s.URLPattern == "" {
		return ProviderRule{}, fmt.Errorf("provider %q: url pattern is empty", name)
	}
	urlRe, err := regexp.Compile(s.URLPattern)
	if err != nil {
		return ProviderRule{}, fmt.Errorf("provider %q: compile url pattern: %w", name, err)
	}
	r := ProviderRule{
		Name:           name,
		URLPattern:     urlRe,
		QueryParam:     s.QueryParam,
		CodeParam:      s.CodeParam,
		CodePrefixes:   append([]string(nil), s.CodePrefixes...),
		FollowOnParams: append([]string(nil), s.FollowOnParams...),
	}
	for _, c := range s.FollowOnCookies {
		r.FollowOnCookies = append(r.FollowOnCookies, FollowOnCookie{
			ExtraCodeParam:    c.ExtraCodeParam,
			ExtraCodePrefixes: append([]string(nil), c.ExtraCodePrefixes...),
			Host:              c.Host,
			Name:              c.Name,
			CodeParam:         c.CodeParam,
			CodePrefixes:      append([]string(nil), c.CodePrefixes...),
		})
	}
	for i, p := range s.ExtraAdServerPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return ProviderRule{}, fmt.Errorf("provider %q: compile ad server pattern %d: %w", name, i, err)
		}
		r.ExtraAdServerPatterns = append(r.ExtraAdServerPatterns, re)
	}
	return r, nil
}

// LoadRulesFile reads additional provider rules from a YAML or JSON file.
// The file holds either a list of rules or an object with a "providers" list.
func LoadRulesFile(path string) ([]ProviderRule, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rules file path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	specs, err := decodeRuleSpecs(b, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]ProviderRule, 0, len(specs))
	for _, s := range specs {
		r, err := s.Compile()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

type rulesDoc struct {
	Providers []RuleSpec `yaml:"providers" json:"providers"`
}

func decodeRuleSpecs(b []byte, ext string) ([]RuleSpec, error) {
	var list []RuleSpec
	var doc rulesDoc
	switch ext {
	case ".json":
		if err := json.Unmarshal(b, &list); err == nil {
			return list, nil
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return doc.Providers, nil
	default:
		// YAML is a superset of JSON, so it covers unknown extensions too
		if err := yaml.Unmarshal(b, &list); err == nil {
			return list, nil
		}
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return doc.Providers, nil
	}
}

// Extend returns a new catalog with extra rules appended after the rules of
// base. Base rules keep precedence in Resolve.
func Extend(base *Catalog, extra ...ProviderRule) (*Catalog, error) {
	rules := base.Rules()
	rules = append(rules, extra...)
	return NewCatalog(rules...)
}
