// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import (
	"fmt"

	"github.com/bytehook-go/bytehook/asm"
)

// InjectHook injects a call to hook with arg before the first instruction
// of every run of consecutive instructions compiled from line in r.
//
// If line holds no injectable instruction, an [InvalidLineError] is
// returned and the routine is left unchanged.
func (i *Instrumentation) InjectHook(r Routine, hook *Hook, line int, arg *Arg) error {
	seq, err := r.Decompile()
	if err != nil {
		return fmt.Errorf("decompile routine: %w", err)
	}
	if err := i.injectHook(seq, hook, line, arg); err != nil {
		return err
	}
	if err := r.Recompile(seq); err != nil {
		return fmt.Errorf("recompile routine: %w", err)
	}
	return nil
}

// InjectHooks injects a batch of hook placements into r and returns the
// entries that could not be applied. The routine is recompiled once, and
// only if at least one entry applied; a fully failed batch leaves the
// routine untouched.
func (i *Instrumentation) InjectHooks(r Routine, entries []HookEntry) ([]HookEntry, error) {
	seq, err := r.Decompile()
	if err != nil {
		return nil, fmt.Errorf("decompile routine: %w", err)
	}

	var failed []HookEntry
	for _, e := range entries {
		if err := i.injectHook(seq, e.Hook, e.Line, e.Arg); err != nil {
			i.logger.Debug("skipping hook injection", "line", e.Line, "error", err)
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

// injectHook splices a bound hook-call block into seq before each
// injection offset of line.
func (i *Instrumentation) injectHook(seq *asm.Sequence, hook *Hook, line int, arg *Arg) error {
	offsets := injectionOffsets(seq, line)
	if len(offsets) == 0 {
		return &InvalidLineError{Line: line, Op: HookOpInject}
	}

	// Splice from the highest offset down so earlier offsets stay valid.
	for k := len(offsets) - 1; k >= 0; k-- {
		block := i.variant.Bind(hook, arg, line)
		seq.Insert(offsets[k], block...)
	}
	return nil
}

// injectionOffsets returns the offsets of the first instruction of every
// run of consecutive instructions carrying the given line, in ascending
// order. A line that recurs later in the sequence, as with loop bodies,
// yields one offset per run. Pseudo-entries neither match nor break a run.
func injectionOffsets(seq *asm.Sequence, line int) []int {
	if line < 1 {
		// Lines are 1-based; a zero Line marks an instruction without a
		// known source line and is never an injection target.
		return nil
	}

	var offsets []int
	last := -1
	for idx := 0; idx < seq.Len(); idx++ {
		instr, ok := seq.At(idx).(*asm.Instruction)
		if !ok {
			continue
		}
		if instr.Line == last {
			continue
		}
		last = instr.Line
		if instr.Line == line {
			offsets = append(offsets, idx)
		}
	}
	return offsets
}
