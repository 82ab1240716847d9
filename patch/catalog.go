// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/bytehook-go/bytehook"
)

// Catalog holds registered integrations and applies or removes their hook
// sets as a unit.
type Catalog struct {
	logger *slog.Logger

	mu           sync.Mutex
	integrations map[string]Integration
}

// NewCatalog returns an empty Catalog logging through logger.
func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		logger:       logger,
		integrations: make(map[string]Integration),
	}
}

// Register adds an integration to the catalog.
func (c *Catalog) Register(i Integration) error {
	if i.Name == "" {
		return errors.New("integration has no name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.integrations[i.Name]; exists {
		return fmt.Errorf("integration %s registered twice, aborting", i.Name)
	}
	c.integrations[i.Name] = i
	return nil
}

// Names returns the names of the registered integrations, sorted.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.integrations))
	for name := range c.integrations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Integration returns the registered integration with the given name.
func (c *Catalog) Integration(name string) (Integration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.integrations[name]
	return i, ok
}

// Apply injects the hook sets of every enabled integration whose runtime
// constraint is satisfied. The enabled map overrides per integration;
// integrations missing from it are applied. Failures are handled per each
// integration's FailureMode, and the ones that escalate to errors are
// joined into the returned error.
func (c *Catalog) Apply(inst *bytehook.Instrumentation, res Resolver, runtime *version.Version, enabled map[string]bool) error {
	return c.each(enabled, func(i Integration) error {
		if err := c.checkConstraints(i, runtime); err != nil {
			return err
		}
		return c.walkRoutines(i, res, func(r bytehook.Routine, entries []bytehook.HookEntry) (int, error) {
			failed, err := inst.InjectHooks(r, entries)
			return len(failed), err
		}, "inject")
	})
}

// Remove ejects the hook sets applied by Apply. The enabled map selects
// integrations the same way it does for Apply.
func (c *Catalog) Remove(inst *bytehook.Instrumentation, res Resolver, enabled map[string]bool) error {
	return c.each(enabled, func(i Integration) error {
		return c.walkRoutines(i, res, func(r bytehook.Routine, entries []bytehook.HookEntry) (int, error) {
			failed, err := inst.EjectHooks(r, entries)
			return len(failed), err
		}, "eject")
	})
}

// each runs fn over the enabled integrations in name order, folding
// escalated failures per integration FailureMode.
func (c *Catalog) each(enabled map[string]bool, fn func(Integration) error) error {
	c.mu.Lock()
	byName := make(map[string]Integration, len(c.integrations))
	names := make([]string, 0, len(c.integrations))
	for name, i := range c.integrations {
		byName[name] = i
		names = append(names, name)
	}
	c.mu.Unlock()
	slices.Sort(names)

	var errs error
	for _, name := range names {
		if on, ok := enabled[name]; ok && !on {
			c.logger.Debug("integration disabled, skipping", "integration", name)
			continue
		}
		i := byName[name]
		if err := fn(i); err != nil {
			errs = errors.Join(errs, c.escalate(i, err))
		}
	}
	return errs
}

// checkConstraints verifies the integration's runtime requirement.
func (c *Catalog) checkConstraints(i Integration, runtime *version.Version) error {
	if i.Constraints == nil {
		return nil
	}
	if runtime == nil {
		return fmt.Errorf("integration %s: no runtime version to check constraints against", i.Name)
	}
	if !i.Constraints.Check(runtime.Core()) {
		return fmt.Errorf("integration %s: runtime %s does not satisfy %s", i.Name, runtime, i.Constraints)
	}
	return nil
}

// walkRoutines groups the integration's placements by routine, in first
// appearance order, and runs one bulk operation per routine.
func (c *Catalog) walkRoutines(i Integration, res Resolver, op func(bytehook.Routine, []bytehook.HookEntry) (int, error), verb string) error {
	var order []string
	groups := make(map[string][]bytehook.HookEntry)
	for _, h := range i.Hooks {
		if _, ok := groups[h.Routine]; !ok {
			order = append(order, h.Routine)
		}
		groups[h.Routine] = append(groups[h.Routine], bytehook.HookEntry{
			Hook: h.Hook,
			Line: h.Line,
			Arg:  h.Arg,
		})
	}

	var errs error
	for _, name := range order {
		r, ok := res.Routine(name)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("integration %s: routine %q not found", i.Name, name))
			continue
		}

		entries := groups[name]
		failed, err := op(r, entries)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("integration %s: routine %q: %w", i.Name, name, err))
			continue
		}
		if failed > 0 {
			errs = errors.Join(errs, fmt.Errorf("integration %s: failed to %s %d of %d hooks into routine %q", i.Name, verb, failed, len(entries), name))
			continue
		}
		c.logger.Debug("integration hooks updated",
			"integration", i.Name,
			"routine", name,
			"op", verb,
			"hooks", len(entries),
		)
	}
	return errs
}

// escalate folds a failure according to the integration's FailureMode.
func (c *Catalog) escalate(i Integration, err error) error {
	switch i.FailureMode {
	case FailureModeWarn:
		c.logger.Warn("integration failure", "integration", i.Name, "error", err)
		return nil
	case FailureModeIgnore:
		c.logger.Debug("integration failure ignored", "integration", i.Name, "error", err)
		return nil
	default:
		return err
	}
}
