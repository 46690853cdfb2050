// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
)

// elementFactory creates and registers elements by internal name into elems,
// returning the fully-qualified id. Shared by every single-instance builder
// so each one reads as a flat sequence of element declarations.
type elementFactory struct {
	instanceID string
	ctx        BuildContext
	elems      map[string]framework.Element
}

func newElementFactory(instanceID string, ctx BuildContext) *elementFactory {
	return &elementFactory{instanceID: instanceID, ctx: ctx, elems: map[string]framework.Element{}}
}

func (f *elementFactory) new(internalName, factory string) (string, error) {
	id := elementID(f.instanceID, internalName)
	if _, exists := f.elems[id]; exists {
		return "", errConfig("duplicate element %q within instance %q", internalName, f.instanceID)
	}
	e, err := f.ctx.Factory.NewElement(id, factory)
	if err != nil {
		return "", errElement("%s: %v", id, err)
	}
	f.elems[id] = e
	return id, nil
}
