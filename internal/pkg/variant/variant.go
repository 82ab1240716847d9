// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package variant selects the hook-call instruction shape for a target
// runtime version.
//
// The calling convention of the target runtime changed across versions:
// newer generations push an extra null before the callable and one of them
// requires a separate pre-call instruction. Each supported convention is
// captured as a Variant holding the instruction template to emit and the
// offsets of the hook and argument operands inside it.
package variant

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/bytehook-go/bytehook/asm"
	"github.com/bytehook-go/bytehook/internal/pkg/assembly"
)

// Variant is one hook-call convention.
type Variant struct {
	// Name identifies the convention in logs.
	Name string

	// HookSlot and ArgSlot are the offsets, relative to the start of a
	// bound block, of the instructions whose operands carry the hook and
	// its argument.
	HookSlot int
	ArgSlot  int

	tmpl *assembly.Template
}

// Shape returns the opcode run a bound block consists of. The returned
// slice is shared and must not be modified.
func (v *Variant) Shape() []asm.Opcode {
	return v.tmpl.Opcodes()
}

// Len returns the number of instructions in a bound block.
func (v *Variant) Len() int {
	return v.tmpl.Len()
}

// Bind returns a fresh hook-call block with the hook and argument operands
// in place, every instruction tagged with line.
func (v *Variant) Bind(hook, arg any, line int) []asm.Entry {
	return v.tmpl.Bind(map[string]any{"hook": hook, "arg": arg}, line)
}

func (v *Variant) String() string {
	return v.Name
}

var (
	// legacyCall is the convention of runtimes before the pre-call
	// generation: the callable and its argument are pushed and called
	// directly.
	legacyCall = &Variant{
		Name:     "legacy",
		HookSlot: 0,
		ArgSlot:  1,
		tmpl: assembly.MustParse(`
			load_const  {hook}
			load_const  {arg}
			call        1
			discard_top
		`),
	}

	// preCall is the transitional convention: a null sentinel below the
	// callable plus a pre-call setup instruction.
	preCall = &Variant{
		Name:     "precall",
		HookSlot: 1,
		ArgSlot:  2,
		tmpl: assembly.MustParse(`
			push_null
			load_const  {hook}
			load_const  {arg}
			precall     1
			call        1
			discard_top
		`),
	}

	// unifiedCall is the current convention: the null sentinel stays, the
	// pre-call setup is folded into the call itself.
	unifiedCall = &Variant{
		Name:     "unified",
		HookSlot: 1,
		ArgSlot:  2,
		tmpl: assembly.MustParse(`
			push_null
			load_const  {hook}
			load_const  {arg}
			call        1
			discard_top
		`),
	}
)

// registry maps runtime version ranges to conventions, newest first.
var registry = []struct {
	constraints version.Constraints
	variant     *Variant
}{
	{version.MustConstraints(version.NewConstraint(">= 3.12")), unifiedCall},
	{version.MustConstraints(version.NewConstraint(">= 3.11, < 3.12")), preCall},
	{version.MustConstraints(version.NewConstraint(">= 3.0, < 3.11")), legacyCall},
}

// Resolve returns the hook-call convention of the given runtime version.
// Pre-release and metadata parts of the version are ignored.
func Resolve(v *version.Version) (*Variant, error) {
	core := v.Core()
	for _, r := range registry {
		if r.constraints.Check(core) {
			return r.variant, nil
		}
	}
	return nil, fmt.Errorf("no hook-call convention for runtime version %s", v)
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Variant)
)

// Load is like Resolve but memoizes successful lookups, so the registry
// scan runs once per distinct version for the lifetime of the process.
func Load(v *version.Version) (*Variant, error) {
	key := v.Core().String()

	cacheMu.RLock()
	cached, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	resolved, err := Resolve(v)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[key] = resolved
	cacheMu.Unlock()
	return resolved, nil
}
