// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package builder implements the Block Builder contract: given an
// instance id, a property map, and a build context, a Builder produces the
// primitive elements, internal links, pad-property assignments, and
// optional bus subscription that realize one block instance.
package builder

import (
	"fmt"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// PadKey addresses one pad of one element for pad-property assignment.
type PadKey struct {
	ElementID string
	PadName   string
}

// BusSubscriber is installed by a builder to receive every bus message on
// the owning pipeline; builders register at most what they need (the mixer
// installs exactly one, dispatching by source element name).
type BusSubscriber func(pipeline framework.Pipeline, flowID string, handle func(model.StromEvent))

// BuildResult is everything the compiler needs from one block build.
type BuildResult struct {
	// Elements maps fully-qualified element id ("instanceId:internalName")
	// to the element itself.
	Elements map[string]framework.Element
	// InternalLinks connect two fully-qualified "elementId:padName" pairs.
	InternalLinks []model.Link
	// PadProperties are applied by the pipeline manager once the pipeline
	// reaches Ready, when request pads are guaranteed to exist.
	PadProperties map[PadKey]map[string]model.PropertyValue
	// BusSubscriber, if non-nil, is installed once per compiled instance.
	BusSubscriber BusSubscriber
	// ComputedExternalPads overrides the block definition's static external
	// pads, for variable-pad blocks like the mixer.
	ComputedExternalPads *model.ExternalPads
}

// BuildContext carries everything a builder needs beyond its own inputs.
type BuildContext struct {
	FlowID  string
	Factory framework.Factory
}

// Builder builds one block instance into primitive elements. Builders MUST
// be idempotent: identical inputs produce structurally identical graphs (up
// to element identity), and MUST NOT leak partial state on failure.
type Builder interface {
	Build(instanceID string, properties map[string]model.PropertyValue, ctx BuildContext) (BuildResult, error)
}

// BuildErrorKind classifies a BlockBuildError.
type BuildErrorKind int

const (
	ElementCreation BuildErrorKind = iota
	LinkError
	InvalidProperty
	InvalidConfiguration
)

// BlockBuildError is returned by a Builder on failure.
type BlockBuildError struct {
	Kind   BuildErrorKind
	Detail string
}

func (e *BlockBuildError) Error() string {
	switch e.Kind {
	case ElementCreation:
		return fmt.Sprintf("block build: element creation failed: %s", e.Detail)
	case LinkError:
		return fmt.Sprintf("block build: link error: %s", e.Detail)
	case InvalidProperty:
		return fmt.Sprintf("block build: invalid property: %s", e.Detail)
	case InvalidConfiguration:
		return fmt.Sprintf("block build: invalid configuration: %s", e.Detail)
	default:
		return fmt.Sprintf("block build: %s", e.Detail)
	}
}

func errElement(format string, args ...any) error {
	return &BlockBuildError{Kind: ElementCreation, Detail: fmt.Sprintf(format, args...)}
}

func errLink(format string, args ...any) error {
	return &BlockBuildError{Kind: LinkError, Detail: fmt.Sprintf(format, args...)}
}

func errProperty(format string, args ...any) error {
	return &BlockBuildError{Kind: InvalidProperty, Detail: fmt.Sprintf(format, args...)}
}

func errConfig(format string, args ...any) error {
	return &BlockBuildError{Kind: InvalidConfiguration, Detail: fmt.Sprintf(format, args...)}
}

// Registry is a compile-time lookup of built-in builders by block
// definition id. User blocks have no builder here or anywhere else, so the
// compiler reports UnknownBlock for an instance of a user block.
type Registry map[string]Builder

// NewRegistry returns the builtin-block builder set.
func NewRegistry() Registry {
	return Registry{
		"builtin.aes67_input":  AES67InputBuilder{},
		"builtin.aes67_output": AES67OutputBuilder{},
		"builtin.meter":        MeterBuilder{},
		"builtin.latency":      LatencyBuilder{},
		"builtin.whip":         WHIPBuilder{},
		"builtin.whep":         WHEPBuilder{},
		"builtin.inter":        InterBuilder{},
		"builtin.mixer":        MixerBuilder{},
	}
}

func elementID(instanceID, internalName string) string {
	return instanceID + ":" + internalName
}

func padRef(elementID, padName string) string {
	return elementID + ":" + padName
}
