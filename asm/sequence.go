// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package asm

import "slices"

// Sequence is the ordered, editable instruction list of a single routine.
//
// Positions are zero-based offsets into the entry list, counting both real
// instructions and pseudo-entries. Insert and Delete splice the sequence in
// place, shifting the offsets of all following entries.
//
// A Sequence is not safe for concurrent mutation.
type Sequence struct {
	entries []Entry
}

// NewSequence returns a Sequence holding the given entries.
func NewSequence(entries ...Entry) *Sequence {
	return &Sequence{entries: entries}
}

// Len returns the number of entries in the sequence.
func (s *Sequence) Len() int {
	return len(s.entries)
}

// At returns the entry at offset i. It panics if i is out of range.
func (s *Sequence) At(i int) Entry {
	return s.entries[i]
}

// Entries returns a copy of the entry list. Mutating the returned slice
// does not affect the sequence, but the entries themselves are shared.
func (s *Sequence) Entries() []Entry {
	return slices.Clone(s.entries)
}

// Insert splices entries into the sequence immediately before offset i.
// Passing i equal to Len appends. It panics if i is out of range.
func (s *Sequence) Insert(i int, entries ...Entry) {
	s.entries = slices.Insert(s.entries, i, entries...)
}

// Append adds entries at the end of the sequence.
func (s *Sequence) Append(entries ...Entry) {
	s.entries = append(s.entries, entries...)
}

// Delete removes the entries in the half-open range [i, j). It panics if
// the range is out of bounds.
func (s *Sequence) Delete(i, j int) {
	s.entries = slices.Delete(s.entries, i, j)
}

// Clone returns a new Sequence with a copied entry list. The entries
// themselves are shared with the receiver.
func (s *Sequence) Clone() *Sequence {
	return &Sequence{entries: slices.Clone(s.entries)}
}
