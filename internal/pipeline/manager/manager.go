// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager implements the pipeline manager: it owns one compiled
// graph's lifecycle, drives its state machine through the framework, and
// coordinates the ordered startup/shutdown sequence (thread-priority
// handler, bus watch, stats task, clock, Ready, pad-properties, Playing).
package manager

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/compiler"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/fsm"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// stateQueryTimeout bounds the synchronous-transition confirmation query.
const stateQueryTimeout = 500 * time.Millisecond

// EventSink receives every event the manager, its stats task, and its
// block bus subscribers produce, as satisfied by the event broadcaster.
type EventSink interface {
	Publish(model.StromEvent)
}

// ThreadRegistry tracks streaming-thread ids per flow for priority
// elevation and cleanup on shutdown, as satisfied by the statistics
// aggregator.
type ThreadRegistry interface {
	Install(flowID string) (uninstall func())
	Purge(flowID string)
}

// StatsTask starts and stops the periodic statistics aggregator for one
// flow.
type StatsTask interface {
	Start(ctx context.Context, flowID string, pipeline framework.Pipeline) (stop func())
}

var transitions = []fsm.Transition[model.PipelineState, model.Event]{
	{From: model.StateNull, Event: model.EventStart, To: model.StateReady},
	{From: model.StateReady, Event: model.EventPlay, To: model.StatePlaying},
	{From: model.StatePlaying, Event: model.EventPause, To: model.StatePaused},
	{From: model.StatePaused, Event: model.EventPlay, To: model.StatePlaying},
	{From: model.StateReady, Event: model.EventStop, To: model.StateNull},
	{From: model.StatePaused, Event: model.EventStop, To: model.StateNull},
	{From: model.StatePlaying, Event: model.EventStop, To: model.StateNull},
}

// Manager owns one compiled graph for the lifetime of one flow run.
type Manager struct {
	flowID   string
	graph    *compiler.CompiledGraph
	pipeline framework.Pipeline
	events   EventSink
	threads  ThreadRegistry
	stats    StatsTask

	mu            sync.Mutex
	machine       *fsm.Machine[model.PipelineState, model.Event]
	unwatch       func()
	stopStats     func()
	uninstallPrio func()
	players       map[string]*PlayerState
}

// New builds a Manager around an already-compiled graph. The graph's
// elements are added to a fresh pipeline created from factory, but no
// state transition happens until Start is called.
func New(graph *compiler.CompiledGraph, factory framework.Factory, events EventSink, threads ThreadRegistry, stats StatsTask) (*Manager, error) {
	pipeline := factory.NewPipeline(graph.FlowID)
	for _, e := range graph.Elements {
		if err := pipeline.AddElement(e); err != nil {
			return nil, fmt.Errorf("manager: add element: %w", err)
		}
	}
	for _, link := range graph.InternalLinks {
		if err := pipeline.Link(link.From, link.To); err != nil {
			return nil, fmt.Errorf("manager: internal link %s -> %s: %w", link.From, link.To, err)
		}
	}
	for _, link := range graph.ExternalLinks {
		if err := pipeline.Link(link.From, link.To); err != nil {
			return nil, fmt.Errorf("manager: external link %s -> %s: %w", link.From, link.To, err)
		}
	}

	machine, err := fsm.New(model.StateNull, transitions)
	if err != nil {
		return nil, err
	}

	return &Manager{
		flowID:   graph.FlowID,
		graph:    graph,
		pipeline: pipeline,
		events:   events,
		threads:  threads,
		stats:    stats,
		machine:  machine,
	}, nil
}

// State returns the manager's last-confirmed cached state.
func (m *Manager) State() model.PipelineState {
	return m.machine.State()
}

// Start runs the full startup sequence: thread-priority handler, bus
// watch, stats task, clock selection, Ready, pad-properties, Playing. Any
// step failing unwinds everything installed so far and returns an error;
// the manager's cached state remains Null.
func (m *Manager) Start(ctx context.Context, props model.FlowProperties) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.threads != nil {
		m.uninstallPrio = m.threads.Install(m.flowID)
	}

	m.unwatch = m.pipeline.WatchBus(m.handleBusMessage)
	for _, sub := range m.graph.BusSubscribers {
		sub(m.pipeline, m.flowID, m.publish)
	}

	if m.stats != nil {
		m.stopStats = m.stats.Start(ctx, m.flowID, m.pipeline)
	}

	if err := m.selectClock(props); err != nil {
		m.unwindLocked()
		return fmt.Errorf("manager: clock selection: %w", err)
	}

	if _, err := m.machine.Fire(ctx, model.EventStart); err != nil {
		m.unwindLocked()
		return fmt.Errorf("manager: start: %w", err)
	}
	started := false
	defer func() {
		if !started {
			_, _ = m.machine.Fire(ctx, model.EventStop)
		}
	}()
	if err := m.transitionAndVerify(ctx, framework.StateReady, model.StateReady); err != nil {
		m.unwindLocked()
		return err
	}

	for key, props := range m.graph.PadProperties {
		elem, ok := m.pipeline.Element(key.ElementID)
		if !ok {
			m.unwindLocked()
			return fmt.Errorf("manager: pad-property target element %q missing after Ready", key.ElementID)
		}
		for name, value := range props {
			target := name
			if key.PadName != "" {
				target = key.PadName + "::" + name
			}
			if err := elem.SetProperty(target, value); err != nil {
				m.unwindLocked()
				return fmt.Errorf("manager: set property %s.%s: %w", key.ElementID, target, err)
			}
		}
	}

	if _, err := m.machine.Fire(ctx, model.EventPlay); err != nil {
		m.unwindLocked()
		return fmt.Errorf("manager: play: %w", err)
	}
	if err := m.transitionAndVerify(ctx, framework.StatePlaying, model.StatePlaying); err != nil {
		m.unwindLocked()
		return err
	}

	started = true
	m.publish(model.NewFlowStateChanged(m.flowID, model.StatePlaying))
	return nil
}

// selectClock applies the configured clock; a remote clock with no address
// is a hard configuration error rather than a silent fallback.
func (m *Manager) selectClock(props model.FlowProperties) error {
	switch props.ClockType {
	case model.ClockRemote:
		if props.ClockAddress == "" {
			return fmt.Errorf("remote clock requires clock_address")
		}
		return m.pipeline.SetClock(framework.ClockRemote, props.ClockAddress)
	case model.ClockPTP:
		return m.pipeline.SetClock(framework.ClockPTP, props.ClockAddress)
	default:
		return m.pipeline.SetClock(framework.ClockSystem, "")
	}
}

// transitionAndVerify requests target and, for a synchronous (Success)
// result, confirms convergence with a bounded state query; Async and
// NoPreroll are accepted optimistically and left to bus StateChanged
// messages to converge the cached state.
func (m *Manager) transitionAndVerify(ctx context.Context, target framework.StateName, cached model.PipelineState) error {
	result, err := m.pipeline.SetState(ctx, target)
	if err != nil {
		return fmt.Errorf("manager: set state %v: %w", target, err)
	}
	switch result {
	case framework.StateChangeFailure:
		return fmt.Errorf("manager: transition to %v failed", target)
	case framework.StateChangeSuccess:
		current, _ := m.pipeline.State(stateQueryTimeout)
		if current != target {
			return fmt.Errorf("manager: transition to %v reported success but state is %v", target, current)
		}
	}
	return nil
}

// SetElementProperty applies a live property change directly to a running
// element. Callers are responsible for live-editability checks against the
// block definition; the manager only forwards to the framework.
func (m *Manager) SetElementProperty(elementID, propertyName string, value model.PropertyValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.pipeline.Element(elementID)
	if !ok {
		return fmt.Errorf("manager: unknown element %q", elementID)
	}
	if err := elem.SetProperty(propertyName, value); err != nil {
		return fmt.Errorf("manager: set property %s.%s: %w", elementID, propertyName, err)
	}
	return nil
}

// SetPadProperty applies a live property change to one pad of a running
// element, using the framework's "pad::property" addressing.
func (m *Manager) SetPadProperty(elementID, padName, propertyName string, value model.PropertyValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.pipeline.Element(elementID)
	if !ok {
		return fmt.Errorf("manager: unknown element %q", elementID)
	}
	if err := elem.SetProperty(padName+"::"+propertyName, value); err != nil {
		return fmt.Errorf("manager: set pad property %s.%s::%s: %w", elementID, padName, propertyName, err)
	}
	return nil
}

// Stop transitions the pipeline to Null on a dedicated OS thread, since
// some framework elements block internally on teardown and must not run
// on a goroutine that might be reused by the async runtime's thread pool.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		errCh <- m.pipeline.Close(ctx)
	}()
	err := <-errCh

	m.unwindLocked()
	if err != nil {
		return fmt.Errorf("manager: stop: %w", err)
	}
	if _, fireErr := m.machine.Fire(ctx, model.EventStop); fireErr != nil {
		// The machine may already be in a state with no Stop edge (e.g. a
		// failed start never reached Ready); that is not an error worth
		// surfacing once the pipeline itself is confirmed torn down.
		_ = fireErr
	}
	m.publish(model.NewFlowStateChanged(m.flowID, model.StateNull))
	return nil
}

// unwindLocked releases every resource installed during Start, in reverse
// order, regardless of how far startup progressed. Caller holds m.mu.
func (m *Manager) unwindLocked() {
	if m.stopStats != nil {
		m.stopStats()
		m.stopStats = nil
	}
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	if m.uninstallPrio != nil {
		m.uninstallPrio()
		m.uninstallPrio = nil
	}
	if m.threads != nil {
		m.threads.Purge(m.flowID)
	}
}

func (m *Manager) publish(evt model.StromEvent) {
	if m.events != nil {
		m.events.Publish(evt)
	}
}

// handleBusMessage routes one pipeline-level bus message to broadcaster
// events and to the cached-state updater. Per-block messages are instead
// delivered to the subscribers builders installed directly.
func (m *Manager) handleBusMessage(msg framework.Message) {
	switch msg.Type {
	case framework.MessageError:
		m.publish(model.StromEvent{Type: model.EventPipelineError, Data: model.PipelineDiagnosticData{FlowID: m.flowID, Text: msg.Text, Source: optionalSource(msg.Source)}})
		// Dispatched off the bus-delivery goroutine: the bus may invoke this
		// handler from inside a SetState call, and Stop must be free to
		// acquire m.mu without risking reentrant-lock deadlock.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), stateQueryTimeout)
			defer cancel()
			_ = m.Stop(ctx)
		}()
	case framework.MessageWarning:
		m.publish(model.StromEvent{Type: model.EventPipelineWarning, Data: model.PipelineDiagnosticData{FlowID: m.flowID, Text: msg.Text, Source: optionalSource(msg.Source)}})
	case framework.MessageInfo:
		m.publish(model.StromEvent{Type: model.EventPipelineInfo, Data: model.PipelineDiagnosticData{FlowID: m.flowID, Text: msg.Text, Source: optionalSource(msg.Source)}})
	case framework.MessageEos:
		// Event-only: EOS never itself tears the pipeline down. Looping or
		// stopping on EOS is an upstream (Flow Service) policy decision.
		m.publish(model.StromEvent{Type: model.EventPipelineEos, Data: model.FlowIDData{FlowID: m.flowID}})
	case framework.MessageStateChanged:
		// Optimistic convergence for async/no-preroll transitions; no
		// action needed beyond what the originating Fire already recorded,
		// since Async/NoPreroll are accepted without re-querying here.
	}
}

func optionalSource(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
