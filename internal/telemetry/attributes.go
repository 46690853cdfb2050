// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for strom.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Flow attributes
	FlowIDKey    = "strom.flow.id"
	FlowNameKey  = "strom.flow.name"
	FlowStateKey = "strom.flow.state"

	// Block attributes
	BlockIDKey         = "strom.block.id"
	BlockDefinitionKey = "strom.block.definition_id"

	// Discovery attributes
	DiscoveryServiceTypeKey = "strom.discovery.service_type"
	DiscoveryStreamKey      = "strom.discovery.stream"

	// Channel registry attributes
	ChannelNameKey = "strom.channel.name"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// FlowAttributes creates flow-lifecycle span attributes.
func FlowAttributes(flowID, name, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if flowID != "" {
		attrs = append(attrs, attribute.String(FlowIDKey, flowID))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(FlowNameKey, name))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(FlowStateKey, state))
	}
	return attrs
}

// BlockAttributes creates block-instance span attributes.
func BlockAttributes(blockID, definitionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BlockIDKey, blockID),
		attribute.String(BlockDefinitionKey, definitionID),
	}
}

// DiscoveryAttributes creates mDNS/SAP discovery span attributes.
func DiscoveryAttributes(serviceType, stream string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if serviceType != "" {
		attrs = append(attrs, attribute.String(DiscoveryServiceTypeKey, serviceType))
	}
	if stream != "" {
		attrs = append(attrs, attribute.String(DiscoveryStreamKey, stream))
	}
	return attrs
}

// ChannelAttributes creates channel-registry span attributes.
func ChannelAttributes(name string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ChannelNameKey, name),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
