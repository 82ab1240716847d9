// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

// Package pin attaches observation metadata to instrumented targets.
//
// A Pin carries the service name and tags that hooks observing a target
// should report under. Pins are immutable: changing the metadata of a
// target means attaching a new Pin, so concurrent readers never see a pin
// mutate underneath them.
package pin

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sync"
)

// Pin holds the metadata attached to one instrumented target.
type Pin struct {
	service string
	tags    map[string]string
}

// Option applies a configuration option to a [Pin].
type Option interface {
	apply(pinConfig) pinConfig
}

type pinConfig struct {
	service string
	tags    map[string]string
}

type fnOpt func(pinConfig) pinConfig

func (o fnOpt) apply(c pinConfig) pinConfig { return o(c) }

// WithService returns an [Option] setting the service name of the pin.
func WithService(service string) Option {
	return fnOpt(func(c pinConfig) pinConfig {
		c.service = service
		return c
	})
}

// WithTags returns an [Option] adding all entries of tags to the pin.
func WithTags(tags map[string]string) Option {
	return fnOpt(func(c pinConfig) pinConfig {
		if c.tags == nil {
			c.tags = make(map[string]string, len(tags))
		}
		maps.Copy(c.tags, tags)
		return c
	})
}

// WithTag returns an [Option] adding a single tag to the pin.
func WithTag(key, value string) Option {
	return fnOpt(func(c pinConfig) pinConfig {
		if c.tags == nil {
			c.tags = make(map[string]string, 1)
		}
		c.tags[key] = value
		return c
	})
}

// New returns a Pin configured with the provided opts.
func New(opts ...Option) *Pin {
	var c pinConfig
	for _, opt := range opts {
		c = opt.apply(c)
	}
	return &Pin{service: c.service, tags: c.tags}
}

// Service returns the service name of the pin.
func (p *Pin) Service() string {
	return p.service
}

// Tag returns the value of the tag under key.
func (p *Pin) Tag(key string) (string, bool) {
	v, ok := p.tags[key]
	return v, ok
}

// Tags returns a copy of the pin's tags.
func (p *Pin) Tags() map[string]string {
	if p.tags == nil {
		return nil
	}
	return maps.Clone(p.tags)
}

// Clone returns a copy of the pin with opts applied on top of the
// receiver's metadata.
func (p *Pin) Clone(opts ...Option) *Pin {
	c := pinConfig{service: p.service}
	if p.tags != nil {
		c.tags = maps.Clone(p.tags)
	}
	for _, opt := range opts {
		c = opt.apply(c)
	}
	return &Pin{service: c.service, tags: c.tags}
}

func (p *Pin) String() string {
	return fmt.Sprintf("Pin(service=%s, tags=%d)", p.service, len(p.tags))
}

var (
	registryMu sync.RWMutex
	registry   = make(map[any]*Pin)
)

// Onto attaches the pin to target and reports whether it was attached.
// A target must be a comparable value, normally a pointer to the object
// being observed; pinning onto anything else is skipped.
func (p *Pin) Onto(target any) bool {
	if !canPin(target) {
		slog.Default().Debug("can't pin onto target, skipping", "target", fmt.Sprintf("%T", target))
		return false
	}
	registryMu.Lock()
	registry[target] = p
	registryMu.Unlock()
	return true
}

// Get returns the pin attached to target.
func Get(target any) (*Pin, bool) {
	if !canPin(target) {
		return nil, false
	}
	registryMu.RLock()
	p, ok := registry[target]
	registryMu.RUnlock()
	return p, ok
}

// Override attaches a pin to target built from the target's current pin,
// if any, with opts applied on top.
func Override(target any, opts ...Option) {
	base, ok := Get(target)
	if !ok {
		base = New()
	}
	base.Clone(opts...).Onto(target)
}

// Remove detaches the pin of target, if any.
func Remove(target any) {
	if !canPin(target) {
		return
	}
	registryMu.Lock()
	delete(registry, target)
	registryMu.Unlock()
}

func canPin(target any) bool {
	if target == nil {
		return false
	}
	return reflect.TypeOf(target).Comparable()
}
