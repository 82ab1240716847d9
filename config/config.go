// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads instrumentation configuration from YAML files and
// the environment.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/bytehook-go/bytehook"
	"github.com/bytehook-go/bytehook/sampling"
)

const (
	// envLogLevelKey is the key for the environment variable value setting
	// the log level.
	envLogLevelKey = "BYTEHOOK_LOG_LEVEL"
	// envRuntimeVersionKey is the key for the environment variable value
	// setting the target runtime version.
	envRuntimeVersionKey = "BYTEHOOK_RUNTIME_VERSION"
	// envPatchPrefix and envPatchSuffix frame the environment variables
	// toggling single integrations, as in BYTEHOOK_PATCH_KAFKA_ENABLED.
	envPatchPrefix = "BYTEHOOK_PATCH_"
	envPatchSuffix = "_ENABLED"
)

// Config is the serialized configuration of the instrumentation engine.
type Config struct {
	// RuntimeVersion is the version of the target runtime to instrument.
	RuntimeVersion string `yaml:"runtime_version"`
	// LogLevel sets the logging verbosity. Empty means info.
	LogLevel bytehook.LogLevel `yaml:"log_level"`
	// DefaultDisabled determines whether integrations are disabled by
	// default. If set to true, integrations are disabled unless
	// explicitly enabled in Patches. If set to false, integrations are
	// enabled unless explicitly disabled in Patches.
	DefaultDisabled bool `yaml:"default_disabled"`
	// Patches toggles single integrations by name.
	Patches map[string]bool `yaml:"patches"`
	// SamplingRules is the ordered observation sampling rule set.
	SamplingRules []sampling.RuleConfig `yaml:"sampling_rules"`
}

// Load reads a Config from the YAML file at path. Unknown fields are
// rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv returns c with environment overrides applied on top:
// BYTEHOOK_RUNTIME_VERSION, BYTEHOOK_LOG_LEVEL, and one
// BYTEHOOK_PATCH_<NAME>_ENABLED boolean per integration. Unparseable
// toggle values are ignored.
func (c Config) ApplyEnv() Config {
	if v, ok := os.LookupEnv(envRuntimeVersionKey); ok {
		c.RuntimeVersion = v
	}
	if v, ok := os.LookupEnv(envLogLevelKey); ok {
		c.LogLevel = bytehook.LogLevel(strings.ToLower(v))
	}

	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, envPatchPrefix) || !strings.HasSuffix(key, envPatchSuffix) {
			continue
		}
		name := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(key, envPatchPrefix), envPatchSuffix))
		if name == "" {
			continue
		}
		on, err := strconv.ParseBool(value)
		if err != nil {
			continue
		}
		if c.Patches == nil {
			c.Patches = make(map[string]bool)
		}
		c.Patches[name] = on
	}
	return c
}

// Validate checks that every set field is usable.
func (c Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := bytehook.ParseLogLevel(string(c.LogLevel)); err != nil {
			return err
		}
	}
	if c.RuntimeVersion != "" {
		if _, err := version.NewVersion(c.RuntimeVersion); err != nil {
			return fmt.Errorf("parse runtime version %q: %w", c.RuntimeVersion, err)
		}
	}
	if _, err := sampling.NewRules(c.SamplingRules); err != nil {
		return err
	}
	return nil
}

// Rules builds the sampling rule set of the configuration.
func (c Config) Rules() (sampling.Rules, error) {
	return sampling.NewRules(c.SamplingRules)
}

// EnabledFor resolves the per-integration toggle for every given name,
// falling back to the configured default for names not present in
// Patches.
func (c Config) EnabledFor(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		on, ok := c.Patches[name]
		if !ok {
			on = !c.DefaultDisabled
		}
		out[name] = on
	}
	return out
}

// InstrumentationOptions renders the configuration as options for
// [bytehook.NewInstrumentation].
func (c Config) InstrumentationOptions() []bytehook.InstrumentationOption {
	opts := []bytehook.InstrumentationOption{
		bytehook.WithLogger(bytehook.NewLogger(c.LogLevel)),
	}
	if c.RuntimeVersion != "" {
		opts = append(opts, bytehook.WithRuntimeVersion(c.RuntimeVersion))
	}
	return opts
}
