package prompts

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// PlatformRules are the writing constraints for one platform.
type PlatformRules struct {
	DisplayName   string   `yaml:"display_name"`
	CharLimit     int      `yaml:"char_limit"`
	Tone          string   `yaml:"tone"`
	Hashtags      string   `yaml:"hashtags"`
	BestPractices []string `yaml:"best_practices"`
}

// RuleSet maps platforms to their rules.
type RuleSet map[models.Platform]PlatformRules

// For returns the rules for p, falling back to the generic rules.
func (rs RuleSet) For(p models.Platform) (PlatformRules, bool) {
	if r, ok := rs[p]; ok {
		return r, true
	}
	r, ok := rs[models.PlatformGeneric]
	return r, ok
}

// LoadPlatformRules parses a rules catalogue.
func LoadPlatformRules(data []byte) (RuleSet, error) {
	var doc struct {
		Platforms map[string]PlatformRules `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse platform rules: %w", err)
	}
	if len(doc.Platforms) == 0 {
		return nil, fmt.Errorf("platform rules contain no platforms")
	}

	rs := make(RuleSet, len(doc.Platforms))
	for name, rules := range doc.Platforms {
		p := models.ParsePlatform(name)
		if p == models.PlatformGeneric && name != string(models.PlatformGeneric) {
			return nil, fmt.Errorf("unknown platform %q in rules", name)
		}
		if rules.CharLimit < 0 {
			return nil, fmt.Errorf("platform %q: char_limit must not be negative", name)
		}
		rs[p] = rules
	}
	return rs, nil
}

var (
	defaultRules     RuleSet
	defaultRulesOnce sync.Once
)

// DefaultRules returns the embedded catalogue. It panics if the embedded
// file is malformed, which the package tests guard against.
func DefaultRules() RuleSet {
	defaultRulesOnce.Do(func() {
		rs, err := LoadPlatformRules(defaultRulesYAML)
		if err != nil {
			panic(err)
		}
		defaultRules = rs
	})
	return defaultRules
}
