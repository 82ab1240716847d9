// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "context"

// Provider provides the initial configuration and updates to the
// instrumentation configuration.
type Provider interface {
	// InitialConfig returns the initial instrumentation configuration.
	InitialConfig(ctx context.Context) Config
	// Watch returns a channel that receives updates to the instrumentation
	// configuration.
	Watch() <-chan Config
	// Shutdown releases any resources held by the provider.
	Shutdown(ctx context.Context) error
}

type noopProvider struct{}

// NewNoopProvider returns a provider that does not provide any updates and
// provides the default configuration as the initial one.
func NewNoopProvider() Provider {
	return noopProvider{}
}

func (noopProvider) InitialConfig(_ context.Context) Config {
	return Config{}
}

func (noopProvider) Watch() <-chan Config {
	c := make(chan Config)
	close(c)
	return c
}

func (noopProvider) Shutdown(_ context.Context) error {
	return nil
}

type fileProvider struct {
	cfg Config
}

// NewFileProvider returns a provider serving the configuration loaded
// from the YAML file at path with environment overrides applied. The
// provider is static: the file is read once and no updates are delivered.
func NewFileProvider(path string) (Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &fileProvider{cfg: cfg}, nil
}

func (p *fileProvider) InitialConfig(_ context.Context) Config {
	return p.cfg
}

func (p *fileProvider) Watch() <-chan Config {
	c := make(chan Config)
	close(c)
	return c
}

func (p *fileProvider) Shutdown(_ context.Context) error {
	return nil
}
