// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytehook-go/bytehook/asm"
)

// fakeRoutine is a Routine whose body lives in memory. Decompile hands out
// an editable copy, Recompile installs it, mirroring a real rebuild
// boundary.
type fakeRoutine struct {
	body *asm.Sequence

	decompileErr error
	recompileErr error
	recompiled   int
}

func newFakeRoutine(entries ...asm.Entry) *fakeRoutine {
	return &fakeRoutine{body: asm.NewSequence(entries...)}
}

func (r *fakeRoutine) Decompile() (*asm.Sequence, error) {
	if r.decompileErr != nil {
		return nil, r.decompileErr
	}
	return r.body.Clone(), nil
}

func (r *fakeRoutine) Recompile(seq *asm.Sequence) error {
	if r.recompileErr != nil {
		return r.recompileErr
	}
	r.body = seq
	r.recompiled++
	return nil
}

// counterBody is the decompiled shape of a small counting loop:
//
//	1  total = 0
//	2  for i in range(n):
//	3      total += i
//	4  return total
//
// Line 3 appears in a single run; the loop label sits between lines
// without carrying a line itself.
func counterBody() []asm.Entry {
	loop := &asm.Label{Name: "loop"}
	return []asm.Entry{
		&asm.Instruction{Op: "resume", Operand: 0, Line: 1},
		&asm.Instruction{Op: "load_const", Operand: 0, Line: 1},
		&asm.Instruction{Op: "store_fast", Operand: "total", Line: 1},
		&asm.Instruction{Op: "load_fast", Operand: "n", Line: 2},
		&asm.Instruction{Op: "get_iter", Line: 2},
		loop,
		&asm.Instruction{Op: "for_iter", Operand: 6, Line: 2},
		&asm.Instruction{Op: "load_fast", Operand: "total", Line: 3},
		&asm.Instruction{Op: "load_fast", Operand: "i", Line: 3},
		&asm.Instruction{Op: "binary_add", Line: 3},
		&asm.Instruction{Op: "store_fast", Operand: "total", Line: 3},
		&asm.Instruction{Op: "jump_backward", Operand: loop, Line: 3},
		&asm.Instruction{Op: "load_fast", Operand: "total", Line: 4},
		&asm.Instruction{Op: "return_value", Line: 4},
	}
}

func newTestInstrumentation(t *testing.T, runtime string) *Instrumentation {
	t.Helper()
	inst, err := NewInstrumentation(
		WithRuntimeVersion(runtime),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return inst
}

// hookConstOffsets returns the offsets of instructions holding hook as
// their constant operand.
func hookConstOffsets(seq *asm.Sequence, hook *Hook) []int {
	var offsets []int
	for i := 0; i < seq.Len(); i++ {
		instr, ok := seq.At(i).(*asm.Instruction)
		if !ok {
			continue
		}
		if h, ok := instr.Operand.(*Hook); ok && h == hook {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func assertSameEntries(t *testing.T, want, got []asm.Entry) {
	t.Helper()
	require.Equal(t, len(want), len(got), "entry count")
	for i := range want {
		assert.Same(t, want[i], got[i], "entry %d", i)
	}
}

func TestInjectHook(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	before := r.body.Entries()
	hook := NewHook(func(*Arg) {})
	arg := NewArg("counter")

	require.NoError(t, inst.InjectHook(r, hook, 3, arg))

	assert.Equal(t, 1, r.recompiled)
	require.Equal(t, len(before)+5, r.body.Len())

	// The block lands before the first instruction of the line 3 run,
	// which sits at offset 7 in the original body.
	shape := []asm.Opcode{
		asm.OpPushNull, asm.OpLoadConst, asm.OpLoadConst,
		asm.OpCall, asm.OpDiscardTop,
	}
	for k, op := range shape {
		instr, ok := r.body.At(7 + k).(*asm.Instruction)
		require.True(t, ok, "block entry %d", k)
		assert.Equal(t, op, instr.Op, "block entry %d", k)
		assert.Equal(t, 3, instr.Line, "block entry %d", k)
	}
	assert.Same(t, hook, r.body.At(8).(*asm.Instruction).Operand)
	assert.Same(t, arg, r.body.At(9).(*asm.Instruction).Operand)

	// Everything around the block is untouched.
	assertSameEntries(t, before[:7], r.body.Entries()[:7])
	assertSameEntries(t, before[7:], r.body.Entries()[12:])
}

func TestInjectHookInvalidLine(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	before := r.body.Entries()

	for _, line := range []int{99, 0, -1} {
		err := inst.InjectHook(r, NewHook(nil), line, NewArg(nil))

		var ile *InvalidLineError
		require.ErrorAs(t, err, &ile, "line %d", line)
		assert.Equal(t, line, ile.Line)
		assert.Equal(t, HookOpInject, ile.Op)
	}
	assert.EqualError(
		t,
		inst.InjectHook(r, NewHook(nil), 99, NewArg(nil)),
		"line 99 does not exist or is either blank or a comment",
	)

	assert.Zero(t, r.recompiled, "failed injections must not recompile")
	assertSameEntries(t, before, r.body.Entries())
}

func TestInjectHookEveryRunOfALine(t *testing.T) {
	// Line 3 is compiled into two separate runs, split by a line 4 run.
	body := []asm.Entry{
		&asm.Instruction{Op: "resume", Line: 1},
		&asm.Instruction{Op: "load_fast", Operand: "a", Line: 3},
		&asm.Instruction{Op: "store_fast", Operand: "b", Line: 3},
		&asm.Instruction{Op: "load_fast", Operand: "b", Line: 4},
		&asm.Instruction{Op: "load_fast", Operand: "c", Line: 3},
		&asm.Instruction{Op: "return_value", Line: 3},
	}
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(body...)
	hook := NewHook(nil)

	require.NoError(t, inst.InjectHook(r, hook, 3, NewArg(nil)))

	// One block per run, each directly before its run's first instruction.
	assert.Equal(t, []int{2, 10}, hookConstOffsets(r.body, hook))
	assert.Equal(t, len(body)+2*5, r.body.Len())
}

func TestInjectHookAdjacentDuplicatesCollapse(t *testing.T) {
	// All line 3 instructions are consecutive; a label inside the run must
	// not split it.
	body := []asm.Entry{
		&asm.Instruction{Op: "resume", Line: 1},
		&asm.Instruction{Op: "load_fast", Operand: "a", Line: 3},
		&asm.Label{Name: "mid"},
		&asm.Instruction{Op: "store_fast", Operand: "a", Line: 3},
		&asm.Instruction{Op: "return_value", Line: 4},
	}
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(body...)
	hook := NewHook(nil)

	require.NoError(t, inst.InjectHook(r, hook, 3, NewArg(nil)))

	assert.Len(t, hookConstOffsets(r.body, hook), 1, "a single run gets a single block")
}

func TestInjectHookStacksSameTriple(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	hook := NewHook(nil)
	arg := NewArg(nil)

	require.NoError(t, inst.InjectHook(r, hook, 3, arg))
	require.NoError(t, inst.InjectHook(r, hook, 3, arg))

	assert.Len(t, hookConstOffsets(r.body, hook), 2, "repeated injection stacks blocks")
	assert.Equal(t, 2, r.recompiled)
}

func TestInjectHookDoesNotBleedIntoNeighborLines(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	hook := NewHook(nil)

	require.NoError(t, inst.InjectHook(r, hook, 2, NewArg(nil)))

	offsets := hookConstOffsets(r.body, hook)
	require.Len(t, offsets, 1)
	// Only the line 2 run is instrumented: the block's successor run
	// starts with the original line 2 instruction.
	next := r.body.At(offsets[0] + 4).(*asm.Instruction)
	assert.Equal(t, 2, next.Line)
}

func TestInjectHookVariantShapes(t *testing.T) {
	tests := []struct {
		runtime string
		shape   []asm.Opcode
		hookOff int
		argOff  int
	}{
		{
			runtime: "3.10.13",
			shape:   []asm.Opcode{asm.OpLoadConst, asm.OpLoadConst, asm.OpCall, asm.OpDiscardTop},
			hookOff: 0,
			argOff:  1,
		},
		{
			runtime: "3.11.8",
			shape: []asm.Opcode{
				asm.OpPushNull, asm.OpLoadConst, asm.OpLoadConst,
				asm.OpPreCall, asm.OpCall, asm.OpDiscardTop,
			},
			hookOff: 1,
			argOff:  2,
		},
		{
			runtime: "3.12.2",
			shape: []asm.Opcode{
				asm.OpPushNull, asm.OpLoadConst, asm.OpLoadConst,
				asm.OpCall, asm.OpDiscardTop,
			},
			hookOff: 1,
			argOff:  2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.runtime, func(t *testing.T) {
			inst := newTestInstrumentation(t, tt.runtime)
			r := newFakeRoutine(counterBody()...)
			hook := NewHook(nil)
			arg := NewArg(nil)

			require.NoError(t, inst.InjectHook(r, hook, 3, arg))

			offsets := hookConstOffsets(r.body, hook)
			require.Len(t, offsets, 1)
			start := offsets[0] - tt.hookOff
			for k, op := range tt.shape {
				instr := r.body.At(start + k).(*asm.Instruction)
				assert.Equal(t, op, instr.Op, "block entry %d", k)
			}
			assert.Same(t, arg, r.body.At(start+tt.argOff).(*asm.Instruction).Operand)
		})
	}
}

func TestInjectHooks(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	good1 := HookEntry{Hook: NewHook(nil), Line: 1, Arg: NewArg(nil)}
	bad := HookEntry{Hook: NewHook(nil), Line: 99, Arg: NewArg(nil)}
	good2 := HookEntry{Hook: NewHook(nil), Line: 4, Arg: NewArg(nil)}

	failed, err := inst.InjectHooks(r, []HookEntry{good1, bad, good2})

	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, bad, failed[0])

	assert.Equal(t, 1, r.recompiled, "a partially failed batch commits exactly once")
	assert.Len(t, hookConstOffsets(r.body, good1.Hook), 1)
	assert.Len(t, hookConstOffsets(r.body, good2.Hook), 1)
}

func TestInjectHooksAllFailed(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)
	before := r.body.Entries()
	entries := []HookEntry{
		{Hook: NewHook(nil), Line: 98, Arg: NewArg(nil)},
		{Hook: NewHook(nil), Line: 99, Arg: NewArg(nil)},
	}

	failed, err := inst.InjectHooks(r, entries)

	require.NoError(t, err)
	assert.Equal(t, entries, failed)
	assert.Zero(t, r.recompiled, "a fully failed batch must not commit")
	assertSameEntries(t, before, r.body.Entries())
}

func TestInjectHooksEmptyBatch(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")
	r := newFakeRoutine(counterBody()...)

	failed, err := inst.InjectHooks(r, nil)

	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Zero(t, r.recompiled)
}

func TestInjectHookRoutineErrors(t *testing.T) {
	inst := newTestInstrumentation(t, "3.12.0")

	t.Run("Decompile", func(t *testing.T) {
		boom := errors.New("no code object")
		r := newFakeRoutine(counterBody()...)
		r.decompileErr = boom

		err := inst.InjectHook(r, NewHook(nil), 3, NewArg(nil))
		assert.ErrorIs(t, err, boom)

		_, err = inst.InjectHooks(r, []HookEntry{{Hook: NewHook(nil), Line: 3, Arg: NewArg(nil)}})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Recompile", func(t *testing.T) {
		boom := errors.New("frozen routine")
		r := newFakeRoutine(counterBody()...)
		r.recompileErr = boom

		err := inst.InjectHook(r, NewHook(nil), 3, NewArg(nil))
		assert.ErrorIs(t, err, boom)

		failed, err := inst.InjectHooks(r, []HookEntry{{Hook: NewHook(nil), Line: 3, Arg: NewArg(nil)}})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, failed, "the entry itself applied; only the rebuild failed")
	})
}
