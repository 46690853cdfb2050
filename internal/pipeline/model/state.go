// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// PipelineState mirrors the four states of the underlying streaming
// framework's state machine.
type PipelineState string

const (
	StateNull    PipelineState = "NULL"
	StateReady   PipelineState = "READY"
	StatePaused  PipelineState = "PAUSED"
	StatePlaying PipelineState = "PLAYING"
)

// Event is a trigger fired against the pipeline's state machine.
type Event string

const (
	EventStart Event = "start"
	EventPause Event = "pause"
	EventPlay  Event = "play"
	EventStop  Event = "stop"
)
