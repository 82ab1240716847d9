// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package datastreams

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"time"
)

// PropagationKey is the message header under which an encoded pathway
// travels between services.
const PropagationKey = "bytehook-pathway-ctx"

// Pathway is one payload's route through a pipeline. Its hash folds in
// every checkpoint the payload passed, so two payloads taking the same
// route share a hash and a re-routed payload gets a new one.
//
// Pathway values are immutable; SetCheckpoint returns the advanced
// pathway.
type Pathway struct {
	hash         uint64
	pathwayStart time.Time
	edgeStart    time.Time
}

// SetCheckpoint returns p advanced through the pipeline node described by
// edgeTags at time now. The tag order does not affect the resulting hash.
// Advancing a zero Pathway starts a new one at now.
func (p Pathway) SetCheckpoint(edgeTags []string, now time.Time) Pathway {
	next := Pathway{
		hash:         chainHash(p.hash, nodeHash(edgeTags)),
		pathwayStart: p.pathwayStart,
		edgeStart:    now,
	}
	if next.pathwayStart.IsZero() {
		next.pathwayStart = now
	}
	return next
}

// Hash returns the pathway's route hash.
func (p Pathway) Hash() uint64 {
	return p.hash
}

// PathwayStart returns when the payload entered the pipeline.
func (p Pathway) PathwayStart() time.Time {
	return p.pathwayStart
}

// EdgeStart returns when the payload left the previous checkpoint.
func (p Pathway) EdgeStart() time.Time {
	return p.edgeStart
}

// EdgeLatency returns how long the payload has been in flight since the
// previous checkpoint.
func (p Pathway) EdgeLatency(now time.Time) time.Duration {
	return now.Sub(p.edgeStart)
}

// PathwayLatency returns how long the payload has been in the pipeline.
func (p Pathway) PathwayLatency(now time.Time) time.Duration {
	return now.Sub(p.pathwayStart)
}

// Encode serializes the pathway for propagation in a message header: the
// route hash in 8 little-endian bytes, followed by the pathway and edge
// start times as varint milliseconds.
func (p Pathway) Encode() []byte {
	b := make([]byte, 8, 28)
	binary.LittleEndian.PutUint64(b, p.hash)
	b = binary.AppendVarint(b, p.pathwayStart.UnixMilli())
	b = binary.AppendVarint(b, p.edgeStart.UnixMilli())
	return b
}

// Decode deserializes a pathway encoded by [Pathway.Encode].
func Decode(data []byte) (Pathway, error) {
	if len(data) < 8 {
		return Pathway{}, fmt.Errorf("pathway context too short: %d bytes", len(data))
	}
	p := Pathway{hash: binary.LittleEndian.Uint64(data[:8])}

	rest := data[8:]
	ms, n := binary.Varint(rest)
	if n <= 0 {
		return Pathway{}, fmt.Errorf("malformed pathway start timestamp")
	}
	p.pathwayStart = time.UnixMilli(ms).UTC()

	rest = rest[n:]
	ms, n = binary.Varint(rest)
	if n <= 0 {
		return Pathway{}, fmt.Errorf("malformed edge start timestamp")
	}
	p.edgeStart = time.UnixMilli(ms).UTC()
	return p, nil
}

// nodeHash hashes one checkpoint's edge tags, independent of their order.
func nodeHash(edgeTags []string) uint64 {
	sorted := slices.Clone(edgeTags)
	slices.Sort(sorted)

	h := fnv.New64a()
	for _, tag := range sorted {
		h.Write([]byte(tag))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// chainHash folds a checkpoint's node hash into the hash of the route so
// far.
func chainHash(parent, node uint64) uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], parent)
	binary.LittleEndian.PutUint64(b[8:], node)

	h := fnv.New64a()
	h.Write(b[:])
	return h.Sum64()
}
