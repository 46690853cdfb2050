// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package service

import "github.com/eyevinn-osaas/strom-go/internal/pipeline/manager"

// threadInstaller is the narrow shape the statistics aggregator
// exposes for thread-priority bookkeeping; it takes variadic thread ids
// because the native framework binding (out of scope here) is the only
// component that actually knows its own streaming thread ids.
type threadInstaller interface {
	Install(flowID string, tids ...int) func()
	Purge(flowID string)
}

// ThreadRegistryAdapter narrows a statistics aggregator down to
// manager.ThreadRegistry's fixed-arity Install signature.
type ThreadRegistryAdapter struct {
	inner threadInstaller
}

// NewThreadRegistryAdapter wraps agg for use as a manager.ThreadRegistry.
func NewThreadRegistryAdapter(agg threadInstaller) *ThreadRegistryAdapter {
	return &ThreadRegistryAdapter{inner: agg}
}

func (a *ThreadRegistryAdapter) Install(flowID string) func() {
	return a.inner.Install(flowID)
}

func (a *ThreadRegistryAdapter) Purge(flowID string) {
	a.inner.Purge(flowID)
}

var _ manager.ThreadRegistry = (*ThreadRegistryAdapter)(nil)
