// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import "fmt"

// HookOp identifies the operation an error originated from.
type HookOp string

const (
	// HookOpInject is the injection of a hook call.
	HookOpInject HookOp = "inject"
	// HookOpEject is the ejection of a hook call.
	HookOpEject HookOp = "eject"
)

// InvalidLineError reports a hook operation that targeted a line where it
// could not apply: for injection, a line holding no real instruction; for
// ejection, a line holding no matching hook call.
type InvalidLineError struct {
	// Line is the requested source line.
	Line int
	// Op is the operation that failed.
	Op HookOp
}

func (e *InvalidLineError) Error() string {
	if e.Op == HookOpEject {
		return fmt.Sprintf("line %d does not contain a hook", e.Line)
	}
	return fmt.Sprintf("line %d does not exist or is either blank or a comment", e.Line)
}
