// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "encoding/json"

// EventType names a StromEvent variant for its tagged-JSON wire form.
type EventType string

const (
	EventFlowCreated        EventType = "FlowCreated"
	EventFlowUpdated        EventType = "FlowUpdated"
	EventFlowDeleted        EventType = "FlowDeleted"
	EventFlowStarted        EventType = "FlowStarted"
	EventFlowStopped        EventType = "FlowStopped"
	EventFlowStateChanged   EventType = "FlowStateChanged"
	EventPipelineError      EventType = "PipelineError"
	EventPipelineWarning    EventType = "PipelineWarning"
	EventPipelineInfo       EventType = "PipelineInfo"
	EventPipelineEos        EventType = "PipelineEos"
	EventPropertyChanged    EventType = "PropertyChanged"
	EventPadPropertyChanged EventType = "PadPropertyChanged"
	EventMeterData          EventType = "MeterData"
	EventLatencyData        EventType = "LatencyData"
	EventPtpStats           EventType = "PtpStats"
	EventThreadCpu          EventType = "ThreadCpu"
	EventPing               EventType = "Ping"
)

// StromEvent is the self-describing tagged-JSON event every subscriber of
// the event broadcaster, SSE stream, and WebSocket stream observes. Exactly
// one payload field is populated, selected by Type.
type StromEvent struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type FlowIDData struct {
	FlowID string `json:"flow_id"`
}

type FlowStateChangedData struct {
	FlowID string        `json:"flow_id"`
	State  PipelineState `json:"state"`
}

type PipelineDiagnosticData struct {
	FlowID string  `json:"flow_id"`
	Text   string  `json:"message"`
	Source *string `json:"source,omitempty"`
}

type PropertyChangedData struct {
	FlowID       string        `json:"flow_id"`
	ElementID    string        `json:"element_id"`
	PropertyName string        `json:"property_name"`
	Value        PropertyValue `json:"value"`
}

type PadPropertyChangedData struct {
	FlowID       string        `json:"flow_id"`
	ElementID    string        `json:"element_id"`
	PadName      string        `json:"pad_name"`
	PropertyName string        `json:"property_name"`
	Value        PropertyValue `json:"value"`
}

type MeterData struct {
	FlowID    string    `json:"flow_id"`
	ElementID string    `json:"element_id"`
	MeterID   string    `json:"meter_id"`
	RMS       []float64 `json:"rms"`
	Peak      []float64 `json:"peak"`
	Decay     []float64 `json:"decay"`
}

type LatencyData struct {
	FlowID           string `json:"flow_id"`
	ElementID        string `json:"element_id"`
	LastLatencyUs    int64  `json:"last_latency_us"`
	AverageLatencyUs int64  `json:"average_latency_us"`
}

type PtpStatsData struct {
	FlowID            string   `json:"flow_id"`
	Domain            uint8    `json:"domain"`
	Synced            bool     `json:"synced"`
	MeanPathDelayNs   *uint64  `json:"mean_path_delay_ns,omitempty"`
	ClockOffsetNs     *int64   `json:"clock_offset_ns,omitempty"`
	RSquared          *float64 `json:"r_squared,omitempty"`
	ClockRate         *float64 `json:"clock_rate,omitempty"`
	GrandmasterID     *uint64  `json:"grandmaster_id,omitempty"`
	MasterID          *uint64  `json:"master_id,omitempty"`
}

type ThreadCpuStats struct {
	ThreadID    uint64  `json:"thread_id"`
	CPUUsage    float32 `json:"cpu_usage"`
	ElementName string  `json:"element_name"`
	FlowID      string  `json:"flow_id"`
	BlockID     *string `json:"block_id,omitempty"`
}

type ThreadCpuData struct {
	Threads   []ThreadCpuStats `json:"threads"`
	Timestamp int64            `json:"timestamp"`
}

func NewFlowEvent(t EventType, flowID string) StromEvent {
	return StromEvent{Type: t, Data: FlowIDData{FlowID: flowID}}
}

func NewFlowStateChanged(flowID string, state PipelineState) StromEvent {
	return StromEvent{Type: EventFlowStateChanged, Data: FlowStateChangedData{FlowID: flowID, State: state}}
}

func NewPing() StromEvent { return StromEvent{Type: EventPing} }

// MarshalJSON implements the tag/content wire shape: {"type":...,"data":...}.
// Data is marshaled as-is; StromEvent itself needs no custom encoding beyond
// the struct tags above, but the explicit method documents the contract and
// keeps callers from accidentally relying on Go's default field ordering.
func (e StromEvent) MarshalJSON() ([]byte, error) {
	type wire StromEvent
	return json.Marshal(wire(e))
}
