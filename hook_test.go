// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package bytehook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookInvoke(t *testing.T) {
	var got *Arg
	hook := NewHook(func(a *Arg) { got = a })
	arg := NewArg(42)

	hook.Invoke(arg)

	assert.Same(t, arg, got)
	assert.Equal(t, 42, arg.Value())
}

func TestHookInvokeNilCallback(t *testing.T) {
	assert.NotPanics(t, func() { NewHook(nil).Invoke(NewArg(nil)) })
}

func TestArgIdentity(t *testing.T) {
	a := NewArg("payload")
	b := NewArg("payload")

	assert.NotSame(t, a, b, "equal values are still distinct bindings")
	assert.Equal(t, a.Value(), b.Value())
}
