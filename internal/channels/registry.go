// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channels implements the Channel Registry: a pure
// in-memory, single-publisher/multi-subscriber named-channel namespace used
// by the "inter" block to bridge streams across independently-compiled
// flows. The registry itself carries no media; it only governs which flow
// owns a channel name and signals subscribers when that owner goes away.
package channels

import (
	"errors"
	"sync"
)

// ErrAlreadyRegistered is returned by Register when the name already has a
// producer.
var ErrAlreadyRegistered = errors.New("channels: name already registered")

// ErrNotRegistered is returned by Unregister for an unknown name.
var ErrNotRegistered = errors.New("channels: name not registered")

// Endpoint identifies the block instance producing onto a channel.
type Endpoint struct {
	FlowID  string
	BlockID string
}

// Registry maps channel names to their single producer Endpoint and fans
// out an EOS signal to every subscriber when a name is unregistered.
type Registry struct {
	mu        sync.Mutex
	producers map[string]Endpoint
	eos       map[string]chan struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		producers: map[string]Endpoint{},
		eos:       map[string]chan struct{}{},
	}
}

// Register claims name for endpoint. It fails if the name is already in
// use by another producer.
func (r *Registry) Register(name string, endpoint Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.producers[name]; exists {
		return ErrAlreadyRegistered
	}
	r.producers[name] = endpoint
	r.eos[name] = make(chan struct{})
	return nil
}

// Unregister removes name's producer and closes its EOS channel, waking
// every subscriber still attached even though the mapping is now gone.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eos, exists := r.eos[name]
	if !exists {
		return ErrNotRegistered
	}
	close(eos)
	delete(r.eos, name)
	delete(r.producers, name)
	return nil
}

// Lookup returns the producer currently registered for name.
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.producers[name]
	return ep, ok
}

// Subscribe returns a channel closed when name's producer unregisters. It
// reports false, with a nil channel, when name has no registered producer.
func (r *Registry) Subscribe(name string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eos, ok := r.eos[name]
	if !ok {
		return nil, false
	}
	return eos, true
}

// Names returns every currently-registered channel name.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.producers))
	for name := range r.producers {
		out = append(out, name)
	}
	return out
}

// UnregisterAll removes every channel owned by flowID, as called by the
// Flow Service when a flow stops or is deleted.
func (r *Registry) UnregisterAll(flowID string) {
	r.mu.Lock()
	var names []string
	for name, ep := range r.producers {
		if ep.FlowID == flowID {
			names = append(names, name)
		}
	}
	r.mu.Unlock()

	for _, name := range names {
		_ = r.Unregister(name)
	}
}
