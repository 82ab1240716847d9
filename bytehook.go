// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package bytehook injects and ejects observer hook calls in the bytecode
// of instrumented routines.
//
// An [Instrumentation] rewrites a routine's instruction sequence so that a
// [Hook] is invoked with a bound [Arg] whenever execution first reaches a
// chosen source line. The emitted instruction shape follows the hook-call
// convention of the target runtime version, resolved once when the
// Instrumentation is created. Ejection removes previously injected calls
// by matching both the instruction shape and the identity of the hook and
// argument operands, so hand-written look-alike code is never touched.
//
// The engine performs no locking. Callers must ensure a routine is not
// mutated concurrently, and that hook injection is not raced against the
// routine's execution.
package bytehook

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-version"

	"github.com/bytehook-go/bytehook/internal/pkg/variant"
)

// envRuntimeVersionKey is the key for the environment variable value holding
// the version of the target runtime to instrument.
const envRuntimeVersionKey = "BYTEHOOK_RUNTIME_VERSION"

// Error message returned when instrumentation is created without a target
// runtime version.
var errUndefinedRuntime = fmt.Errorf("undefined target runtime version, consider setting the %s environment variable", envRuntimeVersionKey)

// Instrumentation manages hook injection and ejection for routines of a
// single target runtime.
type Instrumentation struct {
	logger  *slog.Logger
	variant *variant.Variant
}

// NewInstrumentation returns a new [Instrumentation] configured with the
// provided opts.
func NewInstrumentation(opts ...InstrumentationOption) (*Instrumentation, error) {
	c := newInstConfig(opts)
	if err := c.validate(); err != nil {
		return nil, err
	}

	runtime, err := version.NewVersion(c.runtimeVersion)
	if err != nil {
		return nil, fmt.Errorf("parse target runtime version %q: %w", c.runtimeVersion, err)
	}

	v, err := variant.Load(runtime)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(
		"resolved hook-call convention",
		"runtime", runtime.String(),
		"variant", v.Name,
	)

	return &Instrumentation{
		logger:  c.logger,
		variant: v,
	}, nil
}

// InstrumentationOption applies a configuration option to [Instrumentation].
type InstrumentationOption interface {
	apply(instConfig) instConfig
}

type instConfig struct {
	runtimeVersion string
	logger         *slog.Logger
}

func newInstConfig(opts []InstrumentationOption) instConfig {
	var c instConfig
	for _, opt := range opts {
		c = opt.apply(c)
	}
	c = c.applyEnv()
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func (c instConfig) applyEnv() instConfig {
	if v, ok := os.LookupEnv(envRuntimeVersionKey); ok {
		c.runtimeVersion = v
	}
	return c
}

func (c instConfig) validate() error {
	if c.runtimeVersion == "" {
		return errUndefinedRuntime
	}
	return nil
}

type fnOpt func(instConfig) instConfig

func (o fnOpt) apply(c instConfig) instConfig { return o(c) }

// WithRuntimeVersion returns an [InstrumentationOption] defining the version
// of the target runtime whose routines are being instrumented.
//
// If multiple of these options are provided to an [Instrumentation], the last
// one will be used.
//
// If BYTEHOOK_RUNTIME_VERSION is defined it will take precedence over any
// value passed here.
func WithRuntimeVersion(v string) InstrumentationOption {
	return fnOpt(func(c instConfig) instConfig {
		c.runtimeVersion = v
		return c
	})
}

// WithLogger returns an [InstrumentationOption] defining the logger used by
// [Instrumentation] and everything it runs.
//
// If this option is not provided, [slog.Default] is used.
func WithLogger(logger *slog.Logger) InstrumentationOption {
	return fnOpt(func(c instConfig) instConfig {
		c.logger = logger
		return c
	})
}
