// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/flows", "http://localhost:8080/api/v1/flows", 200)

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/flows")
	verifyAttribute(t, attrs, HTTPURLKey, "http://localhost:8080/api/v1/flows")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestFlowAttributes(t *testing.T) {
	tests := []struct {
		name    string
		flowID  string
		flow    string
		state   string
		wantLen int
	}{
		{
			name:    "all fields",
			flowID:  "f1",
			flow:    "studio-mix",
			state:   "playing",
			wantLen: 3,
		},
		{
			name:    "only id",
			flowID:  "f1",
			flow:    "",
			state:   "",
			wantLen: 1,
		},
		{
			name:    "empty fields",
			flowID:  "",
			flow:    "",
			state:   "",
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := FlowAttributes(tt.flowID, tt.flow, tt.state)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			if tt.flowID != "" {
				verifyAttribute(t, attrs, FlowIDKey, tt.flowID)
			}
			if tt.flow != "" {
				verifyAttribute(t, attrs, FlowNameKey, tt.flow)
			}
			if tt.state != "" {
				verifyAttribute(t, attrs, FlowStateKey, tt.state)
			}
		})
	}
}

func TestBlockAttributes(t *testing.T) {
	attrs := BlockAttributes("b1", "builtin.mixer")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, BlockIDKey, "b1")
	verifyAttribute(t, attrs, BlockDefinitionKey, "builtin.mixer")
}

func TestDiscoveryAttributes(t *testing.T) {
	attrs := DiscoveryAttributes("_strom-aes67._udp", "ravenna1")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, DiscoveryServiceTypeKey, "_strom-aes67._udp")
	verifyAttribute(t, attrs, DiscoveryStreamKey, "ravenna1")
}

func TestChannelAttributes(t *testing.T) {
	attrs := ChannelAttributes("mix-bus")

	if len(attrs) != 1 {
		t.Fatalf("Expected 1 attribute, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, ChannelNameKey, "mix-bus")
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("stats-poll", "completed", 45000)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, JobTypeKey, "stats-poll")
	verifyAttribute(t, attrs, JobStatusKey, "completed")
	verifyInt64Attribute(t, attrs, JobDurationKey, 45000)
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

func TestAttributeKeys_Consistency(t *testing.T) {
	// Verify attribute keys follow OpenTelemetry conventions
	keys := []string{
		HTTPMethodKey,
		HTTPStatusCodeKey,
		HTTPRouteKey,
		FlowIDKey,
		BlockIDKey,
		DiscoveryStreamKey,
		JobTypeKey,
		ErrorKey,
	}

	for _, key := range keys {
		if key == "" {
			t.Errorf("Expected non-empty attribute key")
		}
	}
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
