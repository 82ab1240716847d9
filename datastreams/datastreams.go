// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package datastreams follows payloads through message pipelines observed
// by hooks.
//
// A Pathway identifies the chain of services a payload travelled through
// as a stable hash, checkpoint by checkpoint, and can be encoded into
// message headers for propagation. A Tracker aggregates broker offsets so
// consumer lag can be derived from what hooks observe.
package datastreams

// ByteSize returns the number of payload bytes carried by v: the byte
// length of strings and byte slices, and the summed key and value sizes
// of header maps. Values outside those kinds carry no measurable payload
// and count as zero.
func ByteSize(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return len(x)
	case []byte:
		return len(x)
	case map[string]string:
		n := 0
		for k, val := range x {
			n += len(k) + len(val)
		}
		return n
	case map[string][]byte:
		n := 0
		for k, val := range x {
			n += len(k) + len(val)
		}
		return n
	default:
		return 0
	}
}
