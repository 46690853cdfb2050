// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package framework

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryFactory produces MemoryPipelines: a simulated framework backend
// that tracks element graphs, state transitions, and bus fan-out entirely
// in memory, with no real media flowing through it. It exists so the
// pipeline manager, compiler, and builders can be exercised deterministically
// without a native GStreamer (or equivalent) binding.
type MemoryFactory struct{}

func NewMemoryFactory() *MemoryFactory { return &MemoryFactory{} }

func (f *MemoryFactory) NewPipeline(name string) Pipeline {
	return &MemoryPipeline{name: name, elements: map[string]Element{}}
}

func (f *MemoryFactory) NewElement(id, factory string) (Element, error) {
	if id == "" || factory == "" {
		return nil, fmt.Errorf("framework: element id and factory must be non-empty")
	}
	return &MemoryElement{id: id, factory: factory, props: map[string]any{}}, nil
}

// MemoryElement is a bag of properties and pads with no real processing.
type MemoryElement struct {
	mu      sync.Mutex
	id      string
	factory string
	props   map[string]any
	pads    []PadInfo
	padSeq  int

	frame   *Frame
	frameCh chan struct{}
}

func (e *MemoryElement) ID() string      { return e.id }
func (e *MemoryElement) Factory() string { return e.factory }

func (e *MemoryElement) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = value
	return nil
}

func (e *MemoryElement) GetProperty(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

func (e *MemoryElement) RequestPad(templateName string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.padSeq++
	name := fmt.Sprintf("%s_%d", templateName, e.padSeq)
	e.pads = append(e.pads, PadInfo{Name: name, Presence: PadRequest})
	return name, nil
}

func (e *MemoryElement) Pads() []PadInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PadInfo(nil), e.pads...)
}

// SeedFrame installs the frame PullFrame hands out. Until a frame is
// seeded, PullFrame blocks; tests use this to simulate a video element
// that has (or has not yet) produced a buffer.
func (e *MemoryElement) SeedFrame(f Frame) {
	e.mu.Lock()
	e.frame = &f
	if e.frameCh != nil {
		close(e.frameCh)
		e.frameCh = nil
	}
	e.mu.Unlock()
}

// PullFrame implements FrameProvider.
func (e *MemoryElement) PullFrame(ctx context.Context) (Frame, error) {
	e.mu.Lock()
	if e.frame != nil {
		f := *e.frame
		e.mu.Unlock()
		return f, nil
	}
	if e.frameCh == nil {
		e.frameCh = make(chan struct{})
	}
	ch := e.frameCh
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-ch:
		e.mu.Lock()
		f := *e.frame
		e.mu.Unlock()
		return f, nil
	}
}

// WithPads seeds an element's static pad list; used by builders to declare
// the pads a factory is known to expose ahead of any RequestPad call.
func (e *MemoryElement) WithPads(pads ...PadInfo) *MemoryElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pads = append(e.pads, pads...)
	return e
}

type linkEdge struct{ from, to string }

// MemoryPipeline is the in-memory reference Pipeline implementation.
type MemoryPipeline struct {
	mu       sync.Mutex
	name     string
	elements map[string]Element
	links    []linkEdge
	state    StateName
	clock    ClockType

	handlers   map[int]BusHandler
	handlerSeq int
	closed     atomic.Bool
}

func (p *MemoryPipeline) AddElement(e Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.elements[e.ID()]; exists {
		return fmt.Errorf("framework: duplicate element id %q", e.ID())
	}
	p.elements[e.ID()] = e
	return nil
}

func (p *MemoryPipeline) Link(fromElementPad, toElementPad string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = append(p.links, linkEdge{from: fromElementPad, to: toElementPad})
	return nil
}

func (p *MemoryPipeline) Element(id string) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[id]
	return e, ok
}

func (p *MemoryPipeline) Elements() []Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, 0, len(p.elements))
	for _, e := range p.elements {
		out = append(out, e)
	}
	return out
}

func (p *MemoryPipeline) SetState(ctx context.Context, target StateName) (StateChangeResult, error) {
	p.mu.Lock()
	old := p.state
	p.state = target
	p.mu.Unlock()

	p.Post(Message{Type: MessageStateChanged, OldState: old, NewState: target})
	return StateChangeSuccess, nil
}

func (p *MemoryPipeline) State(_ time.Duration) (current, pending StateName) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, StateVoidPending
}

func (p *MemoryPipeline) SetClock(t ClockType, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = t
	return nil
}

func (p *MemoryPipeline) WatchBus(h BusHandler) (unwatch func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlers == nil {
		p.handlers = map[int]BusHandler{}
	}
	id := p.handlerSeq
	p.handlerSeq++
	p.handlers[id] = h
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

func (p *MemoryPipeline) Post(msg Message) {
	p.mu.Lock()
	handlers := make([]BusHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (p *MemoryPipeline) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	_, err := p.SetState(ctx, StateNull)
	return err
}
