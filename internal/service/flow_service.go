// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package service implements the Flow Service: the top-level façade
// driving the Flow Compiler and Pipeline Manager from CRUD and
// lifecycle operations over flows persisted in the Flow Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eyevinn-osaas/strom-go/internal/channels"
	"github.com/eyevinn-osaas/strom-go/internal/log"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/compiler"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/manager"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
	"github.com/eyevinn-osaas/strom-go/internal/store"
)

// interBlockDefinitionID is the built-in inter-pipeline passthrough block
// (internal/pipeline/builder.InterBuilder) that bridges to the channel
// registry. An "output" direction instance claims its "channel" property
// name as a single-publisher channel for the lifetime of the flow's run.
const interBlockDefinitionID = "builtin.inter"

// ErrNotFound is returned by operations addressing a flow id that does not
// exist.
var ErrNotFound = errors.New("service: flow not found")

// ErrStructuralEditWhileRunning rejects update_flow calls that touch
// blocks/links/non-live properties on a flow that is currently Playing.
var ErrStructuralEditWhileRunning = errors.New("service: cannot change structure while flow is running")

// RegistryLookup is the subset of the block registry the service needs.
type RegistryLookup interface {
	compiler.RegistryLookup
}

// EventSink publishes lifecycle and property-change events.
type EventSink interface {
	Publish(model.StromEvent)
}

// ChannelRegistry is the subset of the channel registry the service
// needs to claim and release "inter" block output channels as flows start
// and stop.
type ChannelRegistry interface {
	Register(name string, endpoint channels.Endpoint) error
	Unregister(name string) error
	UnregisterAll(flowID string)
}

// runningFlow tracks one live manager.
type runningFlow struct {
	mgr *manager.Manager
}

// FlowService owns every stored flow and the subset currently running.
type FlowService struct {
	store    store.FlowStore
	registry RegistryLookup
	builders builder.Registry
	factory  framework.Factory
	events   EventSink
	threads  manager.ThreadRegistry
	stats    manager.StatsTask
	channels ChannelRegistry

	mu      sync.Mutex
	flows   map[string]model.Flow
	running map[string]*runningFlow
}

// New loads every persisted flow and returns a ready FlowService. It does
// not start any flows; call RestartPlayingFlows for that. chRegistry may be
// nil, in which case "inter" blocks build their elements but no channel
// name is claimed or released.
func New(flowStore store.FlowStore, registry RegistryLookup, builders builder.Registry, factory framework.Factory, events EventSink, threads manager.ThreadRegistry, stats manager.StatsTask, chRegistry ChannelRegistry) (*FlowService, error) {
	flows, err := flowStore.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("service: load flows: %w", err)
	}
	return &FlowService{
		store:    flowStore,
		registry: registry,
		builders: builders,
		factory:  factory,
		events:   events,
		threads:  threads,
		stats:    stats,
		channels: chRegistry,
		flows:    flows,
		running:  map[string]*runningFlow{},
	}, nil
}

// ListFlows returns every stored flow with its cached state.
func (s *FlowService) ListFlows() []model.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f.Clone())
	}
	return out
}

// GetFlow returns one flow or ErrNotFound.
func (s *FlowService) GetFlow(id string) (model.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return model.Flow{}, ErrNotFound
	}
	return f.Clone(), nil
}

// CreateFlow persists a new empty flow and emits FlowCreated.
func (s *FlowService) CreateFlow(name string, autoStart bool) (model.Flow, error) {
	flow := model.Flow{
		ID:         uuid.NewString(),
		Name:       name,
		Properties: model.FlowProperties{AutoStart: autoStart},
		State:      model.StateNull,
	}

	s.mu.Lock()
	s.flows[flow.ID] = flow
	s.mu.Unlock()

	if err := s.store.SaveFlow(flow); err != nil {
		return model.Flow{}, fmt.Errorf("service: persist flow: %w", err)
	}
	s.publish(model.NewFlowEvent(model.EventFlowCreated, flow.ID))
	return flow.Clone(), nil
}

// UpdateFlow replaces a stored flow's editable fields. If the flow is
// currently running, structural changes (blocks, links, flow properties, or
// any non-live block property) are rejected; the name, block names and
// positions, and live-marked block properties may change while Playing.
func (s *FlowService) UpdateFlow(id string, updated model.Flow) (model.Flow, error) {
	s.mu.Lock()
	existing, ok := s.flows[id]
	_, isRunning := s.running[id]
	s.mu.Unlock()
	if !ok {
		return model.Flow{}, ErrNotFound
	}

	if isRunning && structurallyDiffers(existing, updated, s.registry) {
		return model.Flow{}, ErrStructuralEditWhileRunning
	}

	updated.ID = existing.ID
	updated.State = existing.State

	s.mu.Lock()
	s.flows[id] = updated
	s.mu.Unlock()

	if err := s.store.SaveFlow(updated); err != nil {
		return model.Flow{}, fmt.Errorf("service: persist flow: %w", err)
	}
	s.publish(model.NewFlowEvent(model.EventFlowUpdated, id))
	return updated.Clone(), nil
}

// structurallyDiffers reports whether updated changes anything beyond the
// flow's name, its blocks' names and positions, and its blocks' live-marked
// properties, relative to existing.
func structurallyDiffers(existing, updated model.Flow, registry RegistryLookup) bool {
	if len(existing.Blocks) != len(updated.Blocks) || len(existing.Links) != len(updated.Links) {
		return true
	}
	for i := range existing.Links {
		if existing.Links[i] != updated.Links[i] {
			return true
		}
	}
	if existing.Properties != updated.Properties {
		return true
	}
	for i := range existing.Blocks {
		oldB, newB := existing.Blocks[i], updated.Blocks[i]
		if oldB.ID != newB.ID || oldB.BlockDefinitionID != newB.BlockDefinitionID {
			return true
		}
		liveNames := map[string]bool{}
		if def, ok := registry.GetByID(oldB.BlockDefinitionID); ok {
			for _, p := range def.ExposedProperties {
				if p.Live {
					liveNames[p.Name] = true
				}
			}
		}
		for name, v := range newB.Properties {
			if old, existed := oldB.Properties[name]; !existed || old != v {
				if !liveNames[name] {
					return true
				}
			}
		}
		for name := range oldB.Properties {
			if _, kept := newB.Properties[name]; !kept && !liveNames[name] {
				return true
			}
		}
	}
	return false
}

// DeleteFlow stops the flow if running, then removes it.
func (s *FlowService) DeleteFlow(ctx context.Context, id string) error {
	if err := s.StopFlow(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.flows[id]
	delete(s.flows, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := s.store.DeleteFlow(id); err != nil {
		return fmt.Errorf("service: delete flow: %w", err)
	}
	s.publish(model.NewFlowEvent(model.EventFlowDeleted, id))
	return nil
}

// StartFlow compiles and launches a flow. On any compile or launch error
// the flow's stored state is left untouched. Starting an already-running
// flow succeeds with no duplicate FlowStarted event.
func (s *FlowService) StartFlow(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, already := s.running[id]; already {
		s.mu.Unlock()
		return nil
	}
	flow, ok := s.flows[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	graph, err := compiler.Compile(flow, s.registry, s.builders, s.factory)
	if err != nil {
		return fmt.Errorf("service: compile: %w", err)
	}

	claimed, err := s.claimOutputChannels(id, flow)
	if err != nil {
		return fmt.Errorf("service: claim channel: %w", err)
	}

	mgr, err := manager.New(graph, s.factory, s, s.threads, s.stats)
	if err != nil {
		s.releaseChannels(claimed)
		return fmt.Errorf("service: build manager: %w", err)
	}
	if err := mgr.Start(ctx, flow.Properties); err != nil {
		s.releaseChannels(claimed)
		return fmt.Errorf("service: start: %w", err)
	}

	s.mu.Lock()
	s.running[id] = &runningFlow{mgr: mgr}
	flow.State = mgr.State()
	s.flows[id] = flow
	s.mu.Unlock()

	if err := s.store.SaveFlow(flow); err != nil {
		log.WithComponent("service").Warn().Err(err).Str("flow_id", id).Msg("failed to persist running state")
	}
	s.publish(model.NewFlowEvent(model.EventFlowStarted, id))
	return nil
}

// StopFlow is idempotent: stopping a flow that is not running succeeds
// silently with no event.
func (s *FlowService) StopFlow(ctx context.Context, id string) error {
	s.mu.Lock()
	rf, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := rf.mgr.Stop(ctx); err != nil {
		return fmt.Errorf("service: stop: %w", err)
	}

	if s.channels != nil {
		s.channels.UnregisterAll(id)
	}

	s.mu.Lock()
	delete(s.running, id)
	if flow, exists := s.flows[id]; exists {
		flow.State = model.StateNull
		s.flows[id] = flow
	}
	s.mu.Unlock()

	if flow, err := s.GetFlow(id); err == nil {
		if saveErr := s.store.SaveFlow(flow); saveErr != nil {
			log.WithComponent("service").Warn().Err(saveErr).Str("flow_id", id).Msg("failed to persist stopped state")
		}
	}
	s.publish(model.NewFlowEvent(model.EventFlowStopped, id))
	return nil
}

// ErrNotLiveEditable rejects property edits on a Playing flow that are not
// marked live-mutable by the block definition.
var ErrNotLiveEditable = errors.New("service: property is not live-editable")

// errNoExposedMapping distinguishes "no exposed property maps here" from a
// mapping that exists but is not live. Element-level edits treat both as
// not-live-editable; pad-level edits pass unmapped properties through
// (compositor geometry and aggregator pad gains are driven by the
// manager's helpers, not by block definitions).
var errNoExposedMapping = errors.New("service: no exposed property mapping")

// SetProperty applies a live property edit to the running flow's element.
// The edit is validated against the owning block definition first: the
// targeted element/property pair must correspond to a live-marked exposed
// property and the value must fit its declared type. On success the
// PropertyChanged event is emitted and the exposed property's value is
// written back to the stored flow, so a later restart replays it.
func (s *FlowService) SetProperty(id, elementID, propertyName string, value model.PropertyValue) error {
	s.mu.Lock()
	rf, running := s.running[id]
	flow, ok := s.flows[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !running {
		return fmt.Errorf("service: flow %q is not running", id)
	}

	exposed, instanceID, err := s.resolveLiveProperty(flow, elementID, propertyName)
	if err != nil {
		if errors.Is(err, errNoExposedMapping) {
			return fmt.Errorf("%w: no exposed property maps to %s.%s", ErrNotLiveEditable, elementID, propertyName)
		}
		return err
	}
	if err := model.ValidateValue(exposed.PropertyType, value); err != nil {
		return fmt.Errorf("service: property %q: %w", exposed.Name, err)
	}

	applied, err := transformForElement(value, exposed.Mapping.Transform)
	if err != nil {
		return fmt.Errorf("service: property %q: %w", exposed.Name, err)
	}
	if err := rf.mgr.SetElementProperty(elementID, propertyName, applied); err != nil {
		return err
	}

	s.persistLiveProperty(id, instanceID, exposed.Name, value)
	s.publish(model.StromEvent{Type: model.EventPropertyChanged, Data: model.PropertyChangedData{
		FlowID: id, ElementID: elementID, PropertyName: propertyName, Value: value,
	}})
	return nil
}

// SetPadProperty applies a live pad-property edit on a running element.
// Pad properties with a matching live-marked exposed mapping are validated
// like element properties; pads the definition does not expose (compositor
// geometry driven by the transition helpers) pass through unvalidated.
func (s *FlowService) SetPadProperty(id, elementID, padName, propertyName string, value model.PropertyValue) error {
	s.mu.Lock()
	rf, running := s.running[id]
	flow, ok := s.flows[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !running {
		return fmt.Errorf("service: flow %q is not running", id)
	}

	exposed, instanceID, err := s.resolveLiveProperty(flow, elementID, propertyName)
	switch {
	case err == nil:
		if err := model.ValidateValue(exposed.PropertyType, value); err != nil {
			return fmt.Errorf("service: property %q: %w", exposed.Name, err)
		}
		s.persistLiveProperty(id, instanceID, exposed.Name, value)
	case errors.Is(err, errNoExposedMapping):
		// Unmapped pad property: forwarded as-is.
	default:
		return err
	}

	if err := rf.mgr.SetPadProperty(elementID, padName, propertyName, value); err != nil {
		return err
	}
	s.publish(model.StromEvent{Type: model.EventPadPropertyChanged, Data: model.PadPropertyChangedData{
		FlowID: id, ElementID: elementID, PadName: padName, PropertyName: propertyName, Value: value,
	}})
	return nil
}

// resolveLiveProperty maps an element-level (elementID, propertyName) edit
// back to the exposed property of the owning block instance. The element id
// carries the instance id as its namespace prefix; the definition's exposed
// properties are scanned for a mapping onto that element/property pair.
func (s *FlowService) resolveLiveProperty(flow model.Flow, elementID, propertyName string) (model.ExposedProperty, string, error) {
	instanceID, internalElement, found := strings.Cut(elementID, ":")
	if !found {
		return model.ExposedProperty{}, "", fmt.Errorf("service: malformed element id %q", elementID)
	}

	var instance *model.BlockInstance
	for i := range flow.Blocks {
		if flow.Blocks[i].ID == instanceID {
			instance = &flow.Blocks[i]
			break
		}
	}
	if instance == nil {
		return model.ExposedProperty{}, "", fmt.Errorf("service: element %q does not belong to any block instance", elementID)
	}

	def, ok := s.registry.GetByID(instance.BlockDefinitionID)
	if !ok {
		return model.ExposedProperty{}, "", fmt.Errorf("service: block definition %q not found", instance.BlockDefinitionID)
	}
	for _, exposed := range def.ExposedProperties {
		if exposed.Mapping.ElementID == internalElement && exposed.Mapping.PropertyName == propertyName {
			if !exposed.Live {
				return model.ExposedProperty{}, "", fmt.Errorf("%w: %q on %q", ErrNotLiveEditable, exposed.Name, instanceID)
			}
			return exposed, instanceID, nil
		}
	}
	return model.ExposedProperty{}, "", fmt.Errorf("%w for %s.%s", errNoExposedMapping, elementID, propertyName)
}

// persistLiveProperty writes an accepted live edit back into the stored
// flow's property map so the value survives a stop/start cycle. Persistence
// failures are logged, not fatal: the live element already carries the new
// value.
func (s *FlowService) persistLiveProperty(flowID, instanceID, propertyName string, value model.PropertyValue) {
	s.mu.Lock()
	flow, ok := s.flows[flowID]
	if ok {
		for i := range flow.Blocks {
			if flow.Blocks[i].ID == instanceID {
				if flow.Blocks[i].Properties == nil {
					flow.Blocks[i].Properties = map[string]model.PropertyValue{}
				}
				flow.Blocks[i].Properties[propertyName] = value
				break
			}
		}
		s.flows[flowID] = flow
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.store.SaveFlow(flow); err != nil {
		log.WithComponent("service").Warn().Err(err).Str("flow_id", flowID).Msg("failed to persist live property edit")
	}
}

// transformForElement converts a UI-facing value into what the target
// element expects, per the mapping's transform tag.
func transformForElement(value model.PropertyValue, tag model.TransformTag) (model.PropertyValue, error) {
	switch tag {
	case model.TransformNone:
		return value, nil
	case model.TransformDBToLinear:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("db_to_linear requires a numeric value")
		}
		return model.FloatValue(builder.DBToLinear(f)), nil
	case model.TransformLinearToDB:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("linear_to_db requires a numeric value")
		}
		return model.FloatValue(builder.LinearToDB(f)), nil
	case model.TransformMsToNs:
		f, ok := value.AsFloat()
		if !ok {
			return model.PropertyValue{}, fmt.Errorf("ms_to_ns requires a numeric value")
		}
		return model.UIntValue(uint64(f) * 1_000_000), nil
	default:
		return model.PropertyValue{}, fmt.Errorf("transform %q not applicable to a live edit", tag)
	}
}

// claimOutputChannels registers the channel registry name of every
// "output"-direction inter block in flow, rolling back everything it
// claimed if any name is already taken by another flow.
func (s *FlowService) claimOutputChannels(flowID string, flow model.Flow) ([]string, error) {
	if s.channels == nil {
		return nil, nil
	}
	var claimed []string
	for _, b := range flow.Blocks {
		if b.BlockDefinitionID != interBlockDefinitionID {
			continue
		}
		if dir, ok := b.Properties["direction"]; ok && dir.Str != "output" {
			continue
		}
		name, ok := b.Properties["channel"]
		if !ok || name.Str == "" {
			continue
		}
		if err := s.channels.Register(name.Str, channels.Endpoint{FlowID: flowID, BlockID: b.ID}); err != nil {
			s.releaseChannels(claimed)
			return nil, fmt.Errorf("channel %q: %w", name.Str, err)
		}
		claimed = append(claimed, name.Str)
	}
	return claimed, nil
}

func (s *FlowService) releaseChannels(names []string) {
	if s.channels == nil {
		return
	}
	for _, name := range names {
		_ = s.channels.Unregister(name)
	}
}

// RestartPlayingFlows starts every flow whose persisted cached state is
// Playing, in arbitrary order, tolerating individual restart failures
// (logged, not fatal to boot).
func (s *FlowService) RestartPlayingFlows(ctx context.Context) error {
	s.mu.Lock()
	var ids []string
	for id, f := range s.flows {
		if f.State == model.StatePlaying {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.StartFlow(gctx, id); err != nil {
				log.WithComponent("service").Warn().Err(err).Str("flow_id", id).Msg("failed to auto-restart flow on boot")
			}
			return nil
		})
	}
	return g.Wait()
}

// Publish implements manager.EventSink so the service can sit directly in
// front of a manager as its event sink, re-publishing onto the broadcaster.
func (s *FlowService) publish(evt model.StromEvent) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

func (s *FlowService) Publish(evt model.StromEvent) { s.publish(evt) }
