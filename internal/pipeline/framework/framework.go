// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package framework abstracts the underlying streaming framework (elements,
// pads, caps negotiation, clocks, and a message bus) that the pipeline
// manager drives. Defining the media framework itself is out of scope; this
// package exists only so the manager has a concrete collaborator to call
// into, and ships one in-memory reference implementation for tests and for
// deployments that have no native framework bound in.
package framework

import (
	"context"
	"time"
)

// StateChangeResult mirrors the four outcomes a framework transition can
// report synchronously.
type StateChangeResult int

const (
	StateChangeFailure StateChangeResult = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

// PadDirection is Sink or Src.
type PadDirection int

const (
	PadSink PadDirection = iota
	PadSrc
)

// PadPresence describes when a pad exists relative to element lifecycle.
type PadPresence int

const (
	PadAlways PadPresence = iota
	PadSometimes
	PadRequest
)

// PadInfo describes one pad of an element/factory.
type PadInfo struct {
	Name      string
	Direction PadDirection
	Presence  PadPresence
	Caps      string
}

// Element is a single primitive node in the compiled graph: an
// audio-converter, gain stage, RTP payloader, aggregator, and so on.
type Element interface {
	ID() string
	Factory() string
	SetProperty(name string, value any) error
	GetProperty(name string) (any, bool)
	// RequestPad creates (or returns, if Presence is Always) a pad by
	// template name, returning its concrete name.
	RequestPad(templateName string) (string, error)
	Pads() []PadInfo
}

// Message is a bus message emitted by the pipeline or one of its elements.
type Message struct {
	Type      MessageType
	Source    string // element id, empty for pipeline-level messages
	Text      string
	OldState  StateName
	NewState  StateName
	Structure map[string]any // named fields, e.g. level/jitterbuffer stats
}

type MessageType int

const (
	MessageError MessageType = iota
	MessageWarning
	MessageInfo
	MessageEos
	MessageStateChanged
	MessageElement // custom structured messages (level, jitterbuffer stats, ...)
)

type StateName int

const (
	StateVoidPending StateName = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

// ClockType selects the clock a Pipeline should run on.
type ClockType int

const (
	ClockSystem ClockType = iota
	ClockPTP
	ClockRemote
)

// BusHandler receives every bus message published on a Pipeline. Multiple
// handlers may be attached (additive connect-message semantics); a mixer
// instance installs a single handler that serves all of its meters.
type BusHandler func(Message)

// Pipeline is a fully-wired, named collection of Elements with internal
// links, owned for the lifetime of one flow run.
type Pipeline interface {
	AddElement(e Element) error
	Link(fromElementPad, toElementPad string) error
	Element(id string) (Element, bool)
	Elements() []Element

	// SetState requests a transition and reports how it completed.
	SetState(ctx context.Context, target StateName) (StateChangeResult, error)
	// State queries the current/pending state with a bounded wait.
	State(timeout time.Duration) (current, pending StateName)

	SetClock(ClockType, address string) error

	// WatchBus registers h for every message published by this pipeline or
	// its elements and returns a handle to unregister it.
	WatchBus(h BusHandler) (unwatch func())
	// Post lets an element-owning builder publish a synthetic bus message
	// (e.g. a periodic level message).
	Post(Message)

	// Close tears down every element. Implementations that must run the
	// underlying null-transition on a dedicated OS thread do so internally.
	Close(ctx context.Context) error
}

// Factory builds new Pipeline instances. Exactly one concrete Factory is
// wired into the server at startup.
type Factory interface {
	NewPipeline(name string) Pipeline
	NewElement(id, factory string) (Element, error)
}

// Frame is one decoded video frame in packed RGB (3 bytes per pixel,
// row-major, no padding).
type Frame struct {
	Width  int
	Height int
	RGB    []byte
}

// FrameProvider is implemented by elements that can hand out the most
// recent video frame passing through them. PullFrame blocks until a frame
// is available or ctx expires; thumbnail capture attaches here with a
// bounded timeout.
type FrameProvider interface {
	PullFrame(ctx context.Context) (Frame, error)
}
