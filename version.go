// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

// Version is the current release version of the bytehook instrumentation
// engine in use.
func Version() string {
	return "v0.4.0"
}
