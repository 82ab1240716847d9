// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampling decides which hook observations are kept.
//
// Observations are matched against an ordered rule set. The first rule
// whose service and name patterns match owns the decision: it keeps the
// observation with its configured sample rate, deterministically derived
// from the observation's sampling key, and can additionally cap how many
// observations it keeps per second.
package sampling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	// envRulesKey is the key for the environment variable value holding the
	// sampling rule set as a JSON array.
	envRulesKey = "BYTEHOOK_SAMPLING_RULES"
	// envRulesFileKey is the key for the environment variable value naming a
	// file holding the sampling rule set.
	envRulesFileKey = "BYTEHOOK_SAMPLING_RULES_FILE"
)

// Rules is an ordered sampling rule set.
type Rules []*Rule

// Decision is the outcome of sampling one observation.
type Decision struct {
	// Sampled reports whether the observation is kept.
	Sampled bool
	// Rule is the rule that owned the decision, or nil when no rule
	// matched.
	Rule *Rule
}

// Decide samples the observation identified by key with the given service
// and operation name at time at. The first matching rule decides;
// unmatched observations are not kept.
func (rs Rules) Decide(service, name string, key uint64, at time.Time) Decision {
	for _, r := range rs {
		if r.Match(service, name) {
			return Decision{Sampled: r.Sample(key, at), Rule: r}
		}
	}
	return Decision{}
}

// NewRules builds a rule set from configs, keeping their order.
func NewRules(cfgs []RuleConfig) (Rules, error) {
	rules := make(Rules, 0, len(cfgs))
	for i, cfg := range cfgs {
		r, err := NewRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("sampling rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// ParseRules builds a rule set from a JSON array of rule configs.
func ParseRules(data []byte) (Rules, error) {
	var cfgs []RuleConfig
	if err := json.Unmarshal(data, &cfgs); err != nil {
		return nil, fmt.Errorf("parse sampling rules: %w", err)
	}
	return NewRules(cfgs)
}

// RulesFromEnv builds the rule set configured through the environment.
// The rule set is read from BYTEHOOK_SAMPLING_RULES, or from the file
// named by BYTEHOOK_SAMPLING_RULES_FILE. If both are set the file is
// ignored. An unset environment yields an empty rule set.
func RulesFromEnv(logger *slog.Logger) (Rules, error) {
	raw := os.Getenv(envRulesKey)
	path := os.Getenv(envRulesFileKey)
	rawOK := raw != ""
	pathOK := path != ""

	switch {
	case rawOK && pathOK:
		logger.Warn(
			"Both "+envRulesKey+" and "+envRulesFileKey+" are set, defaulting to "+envRulesKey+" value",
		)
		return ParseRules([]byte(raw))
	case rawOK:
		return ParseRules([]byte(raw))
	case pathOK:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sampling rules file: %w", err)
		}
		return ParseRules(data)
	default:
		return nil, nil
	}
}
