// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package compiler implements the Flow Compiler: it resolves a Flow's
// block instances against the block registry, invokes their builders, and
// produces a CompiledGraph ready for the pipeline manager to drive. The
// compiler is pure: it instantiates no elements beyond what the builders
// themselves do, performs no I/O except the write_temp_file property
// transform (which persists pasted text for file-reading elements), and a
// failure at any step leaves no observable side effect other than temp files
// that transform already wrote, which are not removed.
package compiler

import (
	"fmt"
	"os"
	"strings"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// CompileErrorKind classifies a CompileError.
type CompileErrorKind int

const (
	UnknownBlock CompileErrorKind = iota
	InvalidConfiguration
	InvalidProperty
	LinkError
)

// CompileError is returned when a flow cannot be compiled.
type CompileError struct {
	Kind   CompileErrorKind
	Detail string
}

func (e *CompileError) Error() string {
	switch e.Kind {
	case UnknownBlock:
		return fmt.Sprintf("compile: unknown block: %s", e.Detail)
	case InvalidConfiguration:
		return fmt.Sprintf("compile: invalid configuration: %s", e.Detail)
	case InvalidProperty:
		return fmt.Sprintf("compile: invalid property: %s", e.Detail)
	case LinkError:
		return fmt.Sprintf("compile: link error: %s", e.Detail)
	default:
		return fmt.Sprintf("compile: %s", e.Detail)
	}
}

func errUnknown(format string, a ...any) error {
	return &CompileError{Kind: UnknownBlock, Detail: fmt.Sprintf(format, a...)}
}
func errConfig(format string, a ...any) error {
	return &CompileError{Kind: InvalidConfiguration, Detail: fmt.Sprintf(format, a...)}
}
func errProperty(format string, a ...any) error {
	return &CompileError{Kind: InvalidProperty, Detail: fmt.Sprintf(format, a...)}
}
func errLink(format string, a ...any) error {
	return &CompileError{Kind: LinkError, Detail: fmt.Sprintf(format, a...)}
}

// padEndpoint addresses one element's pad in the compiled graph.
type padEndpoint struct {
	ElementID string
	PadName   string
}

// CompiledGraph is everything a PipelineManager needs to realize a Flow.
type CompiledGraph struct {
	FlowID          string
	Elements        map[string]framework.Element
	InternalLinks   []model.Link
	ExternalLinks   []model.Link
	PadProperties   map[builder.PadKey]map[string]model.PropertyValue
	BusSubscribers  []builder.BusSubscriber
	ExternalPads    map[string]map[string]padEndpoint // instanceID -> padName -> endpoint
}

// RegistryLookup resolves a block definition id, as satisfied by
// *registry.Registry.
type RegistryLookup interface {
	GetByID(id string) (model.BlockDefinition, bool)
}

// Compile turns a Flow into a CompiledGraph by resolving every block
// instance's definition, invoking its builder, applying exposed-property
// mappings, and resolving inter-block links to element-level pairs.
func Compile(flow model.Flow, registry RegistryLookup, builders builder.Registry, factory framework.Factory) (*CompiledGraph, error) {
	if flow.Properties.ClockType == model.ClockRemote && flow.Properties.ClockAddress == "" {
		return nil, errConfig("flow %q selects a remote clock but sets no clock_address", flow.ID)
	}

	graph := &CompiledGraph{
		FlowID:        flow.ID,
		Elements:      map[string]framework.Element{},
		PadProperties: map[builder.PadKey]map[string]model.PropertyValue{},
		ExternalPads:  map[string]map[string]padEndpoint{},
	}

	defs := make(map[string]model.BlockDefinition, len(flow.Blocks))
	buildCtx := builder.BuildContext{FlowID: flow.ID, Factory: factory}

	for _, instance := range flow.Blocks {
		def, ok := registry.GetByID(instance.BlockDefinitionID)
		if !ok {
			return nil, errUnknown("block definition %q referenced by instance %q", instance.BlockDefinitionID, instance.ID)
		}
		defs[instance.ID] = def

		b, ok := builders[def.ID]
		if !ok {
			return nil, errUnknown("no builder registered for block definition %q", def.ID)
		}

		result, err := b.Build(instance.ID, instance.Properties, buildCtx)
		if err != nil {
			return nil, errConfig("instance %q: %v", instance.ID, err)
		}

		for id, elem := range result.Elements {
			if _, exists := graph.Elements[id]; exists {
				return nil, errConfig("element id collision on %q (instance %q)", id, instance.ID)
			}
			graph.Elements[id] = elem
		}
		graph.InternalLinks = append(graph.InternalLinks, result.InternalLinks...)
		for k, v := range result.PadProperties {
			graph.PadProperties[k] = v
		}
		if result.BusSubscriber != nil {
			graph.BusSubscribers = append(graph.BusSubscribers, result.BusSubscriber)
		}

		if err := applyExposedProperties(def, instance, result.Elements, graph.PadProperties); err != nil {
			return nil, err
		}

		pads := result.ComputedExternalPads
		if pads == nil {
			pads = &def.ExternalPads
		}
		lookup := map[string]padEndpoint{}
		for _, p := range pads.Inputs {
			lookup[p.Name] = padEndpoint{ElementID: p.InternalElementID, PadName: p.InternalPadName}
		}
		for _, p := range pads.Outputs {
			lookup[p.Name] = padEndpoint{ElementID: p.InternalElementID, PadName: p.InternalPadName}
		}
		graph.ExternalPads[instance.ID] = lookup
	}

	for _, link := range flow.Links {
		fromElem, fromPad, err := resolveEndpoint(link.From, graph.ExternalPads)
		if err != nil {
			return nil, err
		}
		toElem, toPad, err := resolveEndpoint(link.To, graph.ExternalPads)
		if err != nil {
			return nil, err
		}
		graph.ExternalLinks = append(graph.ExternalLinks, model.Link{
			From: fromElem + ":" + fromPad,
			To:   toElem + ":" + toPad,
		})
	}

	return graph, nil
}

// applyExposedProperties resolves each of def's exposed properties against
// instance's configured value (falling back to the property's default),
// setting the mapped element property unless the mapping targets the
// builder sentinel, in which case the builder already consumed it.
func applyExposedProperties(def model.BlockDefinition, instance model.BlockInstance, elements map[string]framework.Element, padProps map[builder.PadKey]map[string]model.PropertyValue) error {
	for _, exposed := range def.ExposedProperties {
		value, ok := instance.Properties[exposed.Name]
		if !ok {
			if exposed.Default == nil {
				continue
			}
			value = *exposed.Default
		}

		if exposed.Mapping.ElementID == model.BlockSentinel {
			continue
		}

		elementID := instance.ID + ":" + exposed.Mapping.ElementID
		if _, ok := elements[elementID]; !ok {
			return errProperty("instance %q: exposed property %q maps to unknown element %q", instance.ID, exposed.Name, elementID)
		}

		transformed, err := applyTransform(value, exposed.Mapping.Transform)
		if err != nil {
			return errProperty("instance %q: property %q: %v", instance.ID, exposed.Name, err)
		}

		key := builder.PadKey{ElementID: elementID}
		if padProps[key] == nil {
			padProps[key] = map[string]model.PropertyValue{}
		}
		padProps[key][exposed.Mapping.PropertyName] = transformed
	}
	return nil
}

func applyTransform(value model.PropertyValue, tag model.TransformTag) (model.PropertyValue, error) {
	if !model.ValidTransformTag(tag) {
		return model.PropertyValue{}, fmt.Errorf("unrecognized transform tag %q", tag)
	}
	switch tag {
	case model.TransformNone:
		return value, nil
	case model.TransformLinearToDB:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("linear_to_db requires a numeric value")
		}
		return model.FloatValue(builder.LinearToDB(f)), nil
	case model.TransformDBToLinear:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("db_to_linear requires a numeric value")
		}
		return model.FloatValue(builder.DBToLinear(f)), nil
	case model.TransformMsToNs:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("ms_to_ns requires a numeric value")
		}
		return model.UIntValue(uint64(f) * 1_000_000), nil
	case model.TransformWriteTempFile:
		if value.Kind != model.PropertyString && value.Kind != model.PropertyMultiline {
			return model.PropertyValue{}, fmt.Errorf("write_temp_file requires a string value")
		}
		path, err := writeTempFile(value.Str)
		if err != nil {
			return model.PropertyValue{}, fmt.Errorf("write_temp_file: %w", err)
		}
		return model.StringValue(path), nil
	}
	return value, nil
}

// writeTempFile persists text to a fresh temporary file and returns its
// path, so elements that only read from the filesystem (filesrc) can
// consume pasted content such as an SDP.
func writeTempFile(text string) (string, error) {
	f, err := os.CreateTemp("", "strom-block-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func resolveEndpoint(ref string, pads map[string]map[string]padEndpoint) (elementID, padName string, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 {
		return "", "", errLink("malformed link endpoint %q", ref)
	}
	instanceID, padNameRef := parts[0], parts[1]
	instancePads, ok := pads[instanceID]
	if !ok {
		return "", "", errLink("link references unknown block instance %q", instanceID)
	}
	endpoint, ok := instancePads[padNameRef]
	if !ok {
		return "", "", errLink("instance %q has no external pad %q", instanceID, padNameRef)
	}
	return endpoint.ElementID, endpoint.PadName, nil
}
