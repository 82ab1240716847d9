// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package asm provides the editable instruction sequence model for a
// routine's bytecode.
//
// A Sequence holds the decompiled body of a routine as an ordered list of
// entries. An entry is either a real *Instruction, carrying an opcode
// mnemonic, an optional constant operand, and an optional source line
// number, or a pseudo-entry such as a *Label, which occupies a position in
// the sequence but is not an executable instruction. The package never
// interprets opcodes; it only stores and splices them.
package asm

import "fmt"

// Opcode is an instruction mnemonic.
type Opcode string

// Opcode mnemonics of the hook-call convention across supported runtime
// versions. Operand slots for these are bound by the instrumentation
// templates; this package attaches no meaning to them.
const (
	OpPushNull   Opcode = "push_null"
	OpLoadConst  Opcode = "load_const"
	OpPreCall    Opcode = "precall"
	OpCall       Opcode = "call"
	OpDiscardTop Opcode = "discard_top"
)

// Entry is a single element of a Sequence: a real *Instruction or a
// pseudo-entry such as a *Label.
type Entry interface {
	entry()
}

// Instruction is a real bytecode instruction.
type Instruction struct {
	// Op is the instruction mnemonic.
	Op Opcode
	// Operand is the constant operand of the instruction, or nil if the
	// instruction takes none. Operands are opaque to this package.
	Operand any
	// Line is the source line the instruction was compiled from. A zero
	// value means the instruction has no known source line.
	Line int
}

func (*Instruction) entry() {}

func (i *Instruction) String() string {
	if i.Operand == nil {
		return string(i.Op)
	}
	return fmt.Sprintf("%s %v", i.Op, i.Operand)
}

// Label is a pseudo-entry marking a position in a Sequence, commonly used
// as a branch target. Labels carry no opcode and no source line. A label's
// identity is its pointer: two labels with the same name are distinct
// targets.
type Label struct {
	// Name is an optional human-readable name for the label.
	Name string
}

func (*Label) entry() {}

func (l *Label) String() string {
	if l.Name == "" {
		return fmt.Sprintf("label@%p", l)
	}
	return "label " + l.Name
}
