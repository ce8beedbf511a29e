package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/sunopiusme/rlguardbot/resources"
)

type (
	// RuleSet is the classification rule data: curated patterns, keyword
	// lists and the severity table. The table maps violation types to their
	// default enforcement so policy changes never touch decision code.
	RuleSet struct {
		Severities map[string]SeverityRule `yaml:"severities"`

		SpamPatterns       []string `yaml:"spam_patterns"`
		SuspiciousKeywords []string `yaml:"suspicious_keywords"`
		OffensivePatterns  []string `yaml:"offensive_patterns"`
		OnTopicKeywords    []string `yaml:"on_topic_keywords"`
		AllowedDomains     []string `yaml:"allowed_domains"`

		ReasonHints []ReasonHint `yaml:"reason_hints"`
	}

	SeverityRule struct {
		Severity      int    `yaml:"severity"`
		Action        string `yaml:"action"`
		DeleteMessage bool   `yaml:"delete_message"`
		Description   string `yaml:"description"`
	}

	// ReasonHint maps reporter-reason keywords to a violation type, used
	// when the reported snippet alone is inconclusive.
	ReasonHint struct {
		Type       string   `yaml:"type"`
		Confidence float64  `yaml:"confidence"`
		Keywords   []string `yaml:"keywords"`
	}
)

const embeddedRulesPath = "rules.yml"

// LoadRules reads the rule set from path, falling back to the embedded
// default when path is empty.
func LoadRules(path string) (*RuleSet, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = resources.FS.ReadFile(embeddedRulesPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}

	rules := &RuleSet{}
	if err := yaml.Unmarshal(raw, rules); err != nil {
		return nil, fmt.Errorf("unmarshal rule set: %w", err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleSet) validate() error {
	if len(r.Severities) == 0 {
		return fmt.Errorf("rule set has no severity table")
	}
	for vtype, rule := range r.Severities {
		if rule.Severity < 1 || rule.Severity > 5 {
			return fmt.Errorf("violation type %q: severity %d out of range 1-5", vtype, rule.Severity)
		}
		switch rule.Action {
		case "warn", "mute", "ban", "delete", "none":
		default:
			return fmt.Errorf("violation type %q: unknown action %q", vtype, rule.Action)
		}
	}
	for i, hint := range r.ReasonHints {
		if _, ok := r.Severities[hint.Type]; !ok {
			return fmt.Errorf("reason hint %d: unknown violation type %q", i, hint.Type)
		}
	}
	return nil
}

// Severity returns the configured severity for a violation type, defaulting
// to the lowest severity for unknown types.
func (r *RuleSet) Severity(violationType string) int {
	if rule, ok := r.Severities[violationType]; ok {
		return rule.Severity
	}
	return 1
}

func (r *RuleSet) Describe(violationType string) string {
	if rule, ok := r.Severities[violationType]; ok && rule.Description != "" {
		return rule.Description
	}
	return strings.ReplaceAll(violationType, "_", " ")
}
