// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"math"
	"time"
)

// knuthFactor spreads sequential sampling keys over the uint64 range so a
// plain threshold comparison yields the configured rate.
const knuthFactor uint64 = 1111111111111111111

// NoRateLimit disables the per-second cap of a rule.
const NoRateLimit = -1

// RuleConfig is the serialized form of a sampling rule.
type RuleConfig struct {
	// Service is a glob pattern the observation's service name must
	// match. Empty means any service.
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
	// Name is a glob pattern the observation's operation name must
	// match. Empty means any name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// SampleRate is the fraction of matching observations to keep, from
	// 0.0 to 1.0. Unset means 1.0.
	SampleRate *float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	// MaxPerSecond caps how many observations the rule may keep per
	// second. Unset means no cap.
	MaxPerSecond *int `json:"max_per_second,omitempty" yaml:"max_per_second,omitempty"`
}

// Rule decides whether observations matching its patterns are kept.
type Rule struct {
	service *Matcher
	name    *Matcher

	rate         float64
	cutoff       uint64
	maxPerSecond int
	limiter      *RateLimiter
}

// NewRule builds a Rule from cfg. At least one of the service and name
// patterns must be supplied.
func NewRule(cfg RuleConfig) (*Rule, error) {
	if cfg.Service == "" && cfg.Name == "" {
		return nil, fmt.Errorf("sampling rule must supply at least one of service or name")
	}

	r := &Rule{rate: 1.0, maxPerSecond: NoRateLimit}

	var err error
	if cfg.Service != "" {
		if r.service, err = NewMatcher(cfg.Service); err != nil {
			return nil, err
		}
	}
	if cfg.Name != "" {
		if r.name, err = NewMatcher(cfg.Name); err != nil {
			return nil, err
		}
	}

	if cfg.SampleRate != nil {
		r.rate = *cfg.SampleRate
		if r.rate < 0 || r.rate > 1 {
			return nil, fmt.Errorf("sample rate must be between 0.0 and 1.0, got %g", r.rate)
		}
	}
	r.cutoff = uint64(r.rate * float64(math.MaxUint64))

	if cfg.MaxPerSecond != nil {
		r.maxPerSecond = *cfg.MaxPerSecond
		r.limiter = NewRateLimiter(r.maxPerSecond)
	}
	return r, nil
}

// Match reports whether an observation with the given service and
// operation name is governed by this rule.
func (r *Rule) Match(service, name string) bool {
	if r.service != nil && !r.service.Match(service) {
		return false
	}
	if r.name != nil && !r.name.Match(name) {
		return false
	}
	return true
}

// Sample decides whether the observation identified by key is kept at
// time at. The key is hashed against the rule's rate threshold first; the
// per-second cap, when configured, is consulted only for observations the
// threshold kept.
func (r *Rule) Sample(key uint64, at time.Time) bool {
	if !r.sampleKey(key) {
		return false
	}
	if r.limiter != nil {
		return r.limiter.AllowAt(at)
	}
	return true
}

func (r *Rule) sampleKey(key uint64) bool {
	if r.rate >= 1 {
		return true
	}
	if r.rate <= 0 {
		return false
	}
	return key*knuthFactor <= r.cutoff
}

// Rate returns the configured sample rate.
func (r *Rule) Rate() float64 {
	return r.rate
}

// MaxPerSecond returns the configured per-second cap, or [NoRateLimit].
func (r *Rule) MaxPerSecond() int {
	return r.maxPerSecond
}

// Limiter returns the rule's rate limiter, or nil when the rule has no
// per-second cap.
func (r *Rule) Limiter() *RateLimiter {
	return r.limiter
}

func (r *Rule) String() string {
	service, name := "*", "*"
	if r.service != nil {
		service = r.service.Pattern()
	}
	if r.name != nil {
		name = r.name.Pattern()
	}
	return fmt.Sprintf("Rule(service=%q, name=%q, rate=%g, max_per_second=%d)",
		service, name, r.rate, r.maxPerSecond)
}
