// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import (
	"fmt"

	"github.com/bytehook-go/bytehook/asm"
)

// Hook is an observer callback embedded into instrumented bytecode. The
// engine stores the *Hook itself as a constant operand, so the pointer is
// the hook's identity: ejection only removes calls that reference the very
// same *Hook, never one that merely behaves alike.
type Hook struct {
	fn func(*Arg)
}

// NewHook returns a Hook invoking fn.
func NewHook(fn func(*Arg)) *Hook {
	return &Hook{fn: fn}
}

// Invoke calls the hook's callback with arg. It is what the target runtime
// runs when execution reaches an injected hook-call block.
func (h *Hook) Invoke(arg *Arg) {
	if h.fn != nil {
		h.fn(arg)
	}
}

func (h *Hook) String() string {
	return fmt.Sprintf("hook(%p)", h)
}

// Arg is the value bound to a hook at injection time. Like [Hook], an Arg
// is identified by its pointer: two Args wrapping equal values are distinct
// bindings.
type Arg struct {
	value any
}

// NewArg returns an Arg wrapping value.
func NewArg(value any) *Arg {
	return &Arg{value: value}
}

// Value returns the wrapped value.
func (a *Arg) Value() any {
	return a.value
}

func (a *Arg) String() string {
	return fmt.Sprintf("arg(%p)", a)
}

// HookEntry is one hook placement: a hook, the source line it fires on, and
// the argument it receives.
type HookEntry struct {
	Hook *Hook
	// Line is the 1-based source line targeted by the placement.
	Line int
	Arg  *Arg
}

// Routine is an instrumentable unit of the target program. Decompile
// returns an editable copy of the routine's body; edits must not become
// visible to the running program until Recompile installs the edited
// sequence as the new body.
//
// The engine calls Recompile at most once per successful operation, so a
// bulk injection with partial failures still rebuilds the routine exactly
// once.
type Routine interface {
	Decompile() (*asm.Sequence, error)
	Recompile(*asm.Sequence) error
}
