// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import (
	"fmt"

	"github.com/bytehook-go/bytehook/asm"
)

// EjectHook removes every hook-call block in r that was injected for the
// exact (hook, line, arg) triple. Matching is by instruction shape and by
// operand identity, so blocks bound to a different *Hook or *Arg, and
// hand-written code that merely looks like a hook call, are left alone.
//
// If no block matches, an [InvalidLineError] is returned and the routine
// is left unchanged.
func (i *Instrumentation) EjectHook(r Routine, hook *Hook, line int, arg *Arg) error {
	seq, err := r.Decompile()
	if err != nil {
		return fmt.Errorf("decompile routine: %w", err)
	}
	if err := i.ejectHook(seq, hook, line, arg); err != nil {
		return err
	}
	if err := r.Recompile(seq); err != nil {
		return fmt.Errorf("recompile routine: %w", err)
	}
	return nil
}

// EjectHooks removes a batch of hook placements from r and returns the
// entries that matched nothing. The routine is recompiled once, and only
// if at least one entry was removed; a fully failed batch leaves the
// routine untouched.
func (i *Instrumentation) EjectHooks(r Routine, entries []HookEntry) ([]HookEntry, error) {
	seq, err := r.Decompile()
	if err != nil {
		return nil, fmt.Errorf("decompile routine: %w", err)
	}

	var failed []HookEntry
	for _, e := range entries {
		if err := i.ejectHook(seq, e.Hook, e.Line, e.Arg); err != nil {
			i.logger.Debug("skipping hook ejection", "line", e.Line, "error", err)
			failed = append(failed, e)
		}
	}

	if len(failed) < len(entries) {
		if err := r.Recompile(seq); err != nil {
			return failed, fmt.Errorf("recompile routine: %w", err)
		}
	}
	return failed, nil
}

// ejectHook deletes every block of seq matching the (hook, line, arg)
// triple.
func (i *Instrumentation) ejectHook(seq *asm.Sequence, hook *Hook, line int, arg *Arg) error {
	if line < 1 {
		return &InvalidLineError{Line: line, Op: HookOpEject}
	}

	var offsets []int
	for idx := 0; idx < seq.Len(); idx++ {
		instr, ok := seq.At(idx).(*asm.Instruction)
		if !ok || instr.Line != line {
			continue
		}
		if i.matchesAt(seq, idx, hook, arg) {
			offsets = append(offsets, idx)
		}
	}
	if len(offsets) == 0 {
		return &InvalidLineError{Line: line, Op: HookOpEject}
	}

	// Delete from the highest offset down so earlier offsets stay valid.
	n := i.variant.Len()
	for k := len(offsets) - 1; k >= 0; k-- {
		seq.Delete(offsets[k], offsets[k]+n)
	}
	return nil
}

// matchesAt reports whether the entries of seq starting at offset idx form
// a hook-call block bound to exactly this hook and arg. A window that runs
// past the end of the sequence, contains a pseudo-entry, or deviates from
// the convention's opcode run does not match.
func (i *Instrumentation) matchesAt(seq *asm.Sequence, idx int, hook *Hook, arg *Arg) bool {
	v := i.variant
	if idx+v.Len() > seq.Len() {
		return false
	}
	for k, op := range v.Shape() {
		instr, ok := seq.At(idx + k).(*asm.Instruction)
		if !ok || instr.Op != op {
			return false
		}
	}

	h, ok := seq.At(idx + v.HookSlot).(*asm.Instruction).Operand.(*Hook)
	if !ok || h != hook {
		return false
	}
	a, ok := seq.At(idx + v.ArgSlot).(*asm.Instruction).Operand.(*Arg)
	if !ok || a != arg {
		return false
	}
	return true
}
