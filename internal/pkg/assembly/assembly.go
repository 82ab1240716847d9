// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package assembly compiles textual instruction templates into bindable
// hook-call blocks.
//
// A template is a newline-separated list of instructions. Each non-blank
// line holds a lowercase mnemonic and at most one operand. An operand is
// either an integer literal or a placeholder of the form {name}, resolved
// when the template is bound. Text following a "#" is a comment.
package assembly

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytehook-go/bytehook/asm"
)

// placeholder is an unresolved operand named in a template.
type placeholder string

type templateInstr struct {
	op      asm.Opcode
	operand any
}

// Template is a parsed instruction template. Binding a Template produces a
// fresh block of instructions with its placeholders substituted.
type Template struct {
	instrs []templateInstr
	shape  []asm.Opcode
}

// Parse compiles the template text.
func Parse(text string) (*Template, error) {
	t := &Template{}
	for n, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 2 {
			return nil, fmt.Errorf("assembly: line %d: instruction %q takes at most one operand", n+1, fields[0])
		}

		instr := templateInstr{op: asm.Opcode(fields[0])}
		if len(fields) == 2 {
			operand, err := parseOperand(fields[1])
			if err != nil {
				return nil, fmt.Errorf("assembly: line %d: %w", n+1, err)
			}
			instr.operand = operand
		}
		t.instrs = append(t.instrs, instr)
		t.shape = append(t.shape, instr.op)
	}
	if len(t.instrs) == 0 {
		return nil, fmt.Errorf("assembly: template has no instructions")
	}
	return t, nil
}

// MustParse is like Parse but panics on error. It is intended for
// templates embedded in the binary.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func parseOperand(tok string) (any, error) {
	if strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}") {
		name := tok[1 : len(tok)-1]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder name")
		}
		return placeholder(name), nil
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return nil, fmt.Errorf("invalid operand %q", tok)
	}
	return v, nil
}

// Len returns the number of instructions the template produces.
func (t *Template) Len() int {
	return len(t.instrs)
}

// Opcodes returns the template's mnemonics in authored order. The returned
// slice is shared and must not be modified.
func (t *Template) Opcodes() []asm.Opcode {
	return t.shape
}

// Bind instantiates the template. Placeholder operands are replaced by the
// value under their name in subs, literal operands are kept, and every
// produced instruction is tagged with the given source line. Each call
// returns a fresh block; bound blocks share no state.
//
// Bind panics if a placeholder has no entry in subs. Templates and their
// substitution sets are authored together, so a missing name is a
// programming error, not an input error.
func (t *Template) Bind(subs map[string]any, line int) []asm.Entry {
	block := make([]asm.Entry, len(t.instrs))
	for i, ti := range t.instrs {
		operand := ti.operand
		if ph, ok := operand.(placeholder); ok {
			v, ok := subs[string(ph)]
			if !ok {
				panic(fmt.Sprintf("assembly: missing substitution for placeholder {%s}", ph))
			}
			operand = v
		}
		block[i] = &asm.Instruction{Op: ti.op, Operand: operand, Line: line}
	}
	return block
}
