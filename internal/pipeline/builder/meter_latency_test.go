// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

func TestMeter_IntervalConvertedToNanoseconds(t *testing.T) {
	result, err := MeterBuilder{}.Build("mtr", map[string]model.PropertyValue{
		"interval": model.IntValue(250),
	}, BuildContext{FlowID: "f", Factory: framework.NewMemoryFactory()})
	require.NoError(t, err)

	props := result.PadProperties[PadKey{ElementID: "mtr:level"}]
	require.Equal(t, model.UIntValue(250_000_000), props["interval"])
	require.Equal(t, model.BoolValue(true), props["post-messages"])
}

func TestMeter_SubscriberEmitsMeterData(t *testing.T) {
	result, err := MeterBuilder{}.Build("mtr", nil, BuildContext{FlowID: "f", Factory: framework.NewMemoryFactory()})
	require.NoError(t, err)
	require.NotNil(t, result.BusSubscriber)

	pipeline := framework.NewMemoryFactory().NewPipeline("f")
	var mu sync.Mutex
	var events []model.StromEvent
	result.BusSubscriber(pipeline, "f", func(evt model.StromEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	pipeline.Post(framework.Message{
		Type:   framework.MessageElement,
		Source: "mtr:level",
		Structure: map[string]any{
			"name": "level",
			"rms":  []float64{-20.5},
			"peak": []float64{-14.1},
		},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	data := events[0].Data.(model.MeterData)
	require.Equal(t, []float64{-20.5}, data.RMS)
	require.Equal(t, "f", data.FlowID)
}

func TestLatency_SubscriberEmitsLatencyData(t *testing.T) {
	result, err := LatencyBuilder{}.Build("lat", nil, BuildContext{FlowID: "f", Factory: framework.NewMemoryFactory()})
	require.NoError(t, err)
	require.NotNil(t, result.BusSubscriber)

	pipeline := framework.NewMemoryFactory().NewPipeline("f")
	var mu sync.Mutex
	var events []model.StromEvent
	result.BusSubscriber(pipeline, "f", func(evt model.StromEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	pipeline.Post(framework.Message{
		Type:   framework.MessageElement,
		Source: "lat:audiolatency",
		Structure: map[string]any{
			"name":            "latency",
			"last-latency":    int64(1200),
			"average-latency": int64(1100),
		},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.Equal(t, model.EventLatencyData, events[0].Type)
	data := events[0].Data.(model.LatencyData)
	require.Equal(t, int64(1200), data.LastLatencyUs)
	require.Equal(t, int64(1100), data.AverageLatencyUs)
}
