// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch declares integrations, the hook sets instrumenting
// well-known libraries, and applies them to live routines.
package patch

import (
	"github.com/hashicorp/go-version"

	"github.com/bytehook-go/bytehook"
)

// FailureMode defines the behavior that is performed when a failure occurs.
type FailureMode int

const (
	// FailureModeError will cause an error to be returned if a failure occurs.
	FailureModeError FailureMode = iota
	// FailureModeWarn will cause a warning message to be logged and allow
	// operations to continue if a failure occurs.
	FailureModeWarn
	// FailureModeIgnore will continue operations and ignore any failure that
	// occurred.
	FailureModeIgnore
)

// HookDef is one hook placement of an integration: the named routine to
// instrument and the triple to inject into it.
type HookDef struct {
	// Routine names the routine to instrument, resolved through a
	// [Resolver] when the integration is applied.
	Routine string
	// Line is the 1-based source line the hook fires on.
	Line int
	Hook *bytehook.Hook
	Arg  *bytehook.Arg
}

// Integration is the hook set instrumenting one library.
type Integration struct {
	// Name is the unique name of the integration.
	Name string
	// Constraints is the runtime version requirement of the integration.
	// If the constraint is not satisfied, the FailureMode defines the
	// behavior of how the failure is handled. A nil Constraints applies
	// to every runtime.
	Constraints version.Constraints
	// FailureMode defines the behavior that is performed when the
	// integration cannot be applied or removed.
	FailureMode FailureMode
	// Hooks are the placements the integration injects.
	Hooks []HookDef
}

// Resolver looks up routines of the instrumented program by name.
type Resolver interface {
	Routine(name string) (bytehook.Routine, bool)
}
