// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package datastreams

import "sync"

type partitionKey struct {
	topic     string
	partition int32
}

type commitKey struct {
	group     string
	topic     string
	partition int32
}

// Tracker aggregates the broker offsets hooks observe on the produce and
// commit paths of a message pipeline. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	produced  map[partitionKey]int64
	committed map[commitKey]int64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		produced:  make(map[partitionKey]int64),
		committed: make(map[commitKey]int64),
	}
}

// TrackProduce records that offset was produced to a partition. Offsets
// observed out of order keep the highest value.
func (t *Tracker) TrackProduce(topic string, partition int32, offset int64) {
	k := partitionKey{topic: topic, partition: partition}

	t.mu.Lock()
	if cur, ok := t.produced[k]; !ok || offset > cur {
		t.produced[k] = offset
	}
	t.mu.Unlock()
}

// TrackCommit records that a consumer group committed offset on a
// partition. Offsets observed out of order keep the highest value.
func (t *Tracker) TrackCommit(group, topic string, partition int32, offset int64) {
	k := commitKey{group: group, topic: topic, partition: partition}

	t.mu.Lock()
	if cur, ok := t.committed[k]; !ok || offset > cur {
		t.committed[k] = offset
	}
	t.mu.Unlock()
}

// ProducedOffset returns the highest produced offset observed for a
// partition.
func (t *Tracker) ProducedOffset(topic string, partition int32) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.produced[partitionKey{topic: topic, partition: partition}]
	return v, ok
}

// CommittedOffset returns the highest offset a consumer group committed
// on a partition.
func (t *Tracker) CommittedOffset(group, topic string, partition int32) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.committed[commitKey{group: group, topic: topic, partition: partition}]
	return v, ok
}

// Lag returns the offset distance between what was produced to a
// partition and what a consumer group committed on it. It reports false
// until both sides have been observed.
func (t *Tracker) Lag(group, topic string, partition int32) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	produced, ok := t.produced[partitionKey{topic: topic, partition: partition}]
	if !ok {
		return 0, false
	}
	committed, ok := t.committed[commitKey{group: group, topic: topic, partition: partition}]
	if !ok {
		return 0, false
	}
	return produced - committed, true
}
