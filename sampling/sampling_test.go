// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`[
		{"service": "auth*", "name": "db.query", "sample_rate": 0.5, "max_per_second": 10},
		{"name": "http.request"}
	]`))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, 0.5, rules[0].Rate())
	assert.Equal(t, 10, rules[0].MaxPerSecond())

	// Omitted fields take their defaults.
	assert.Equal(t, 1.0, rules[1].Rate())
	assert.Equal(t, NoRateLimit, rules[1].MaxPerSecond())
}

func TestParseRulesErrors(t *testing.T) {
	t.Run("NotAnArray", func(t *testing.T) {
		_, err := ParseRules([]byte(`{"service": "svc"}`))
		assert.ErrorContains(t, err, "parse sampling rules")
	})

	t.Run("InvalidRule", func(t *testing.T) {
		_, err := ParseRules([]byte(`[{"sample_rate": 0.5}]`))
		assert.ErrorContains(t, err, "sampling rule 0")
	})
}

func TestParseRulesEmpty(t *testing.T) {
	rules, err := ParseRules([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRulesDecideFirstMatchWins(t *testing.T) {
	rules, err := NewRules([]RuleConfig{
		{Service: "auth*", SampleRate: ptr(0.0)},
		{Service: "*", SampleRate: ptr(1.0)},
	})
	require.NoError(t, err)

	now := time.Now()

	drop := rules.Decide("auth-svc", "op", 1, now)
	assert.False(t, drop.Sampled)
	assert.Same(t, rules[0], drop.Rule, "the first matching rule owns the decision")

	keep := rules.Decide("billing", "op", 1, now)
	assert.True(t, keep.Sampled)
	assert.Same(t, rules[1], keep.Rule)
}

func TestRulesDecideNoMatch(t *testing.T) {
	rules, err := NewRules([]RuleConfig{{Service: "auth*"}})
	require.NoError(t, err)

	d := rules.Decide("billing", "op", 1, time.Now())
	assert.False(t, d.Sampled)
	assert.Nil(t, d.Rule)
}

func TestRulesDecideEmptySet(t *testing.T) {
	var rules Rules
	d := rules.Decide("svc", "op", 1, time.Now())
	assert.False(t, d.Sampled)
	assert.Nil(t, d.Rule)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRulesFromEnv(t *testing.T) {
	t.Setenv(envRulesKey, `[{"service": "env-svc"}]`)

	rules, err := RulesFromEnv(quietLogger())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Match("env-svc", "anything"))
}

func TestRulesFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"service": "file-svc"}]`), 0o600))
	t.Setenv(envRulesFileKey, path)

	rules, err := RulesFromEnv(quietLogger())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Match("file-svc", "anything"))
}

func TestRulesFromEnvPrefersInlineOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"service": "file-svc"}]`), 0o600))
	t.Setenv(envRulesKey, `[{"service": "env-svc"}]`)
	t.Setenv(envRulesFileKey, path)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rules, err := RulesFromEnv(logger)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Match("env-svc", "anything"), "inline rules win")
	assert.Contains(t, buf.String(), "defaulting to "+envRulesKey)
}

func TestRulesFromEnvUnset(t *testing.T) {
	// Empty values count as unset.
	t.Setenv(envRulesKey, "")
	t.Setenv(envRulesFileKey, "")

	rules, err := RulesFromEnv(quietLogger())
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestRulesFromEnvMissingFile(t *testing.T) {
	t.Setenv(envRulesFileKey, filepath.Join(t.TempDir(), "absent.json"))

	_, err := RulesFromEnv(quietLogger())
	assert.ErrorContains(t, err, "read sampling rules file")
}
