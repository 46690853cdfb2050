// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/compiler"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

type fakeSink struct {
	mu     sync.Mutex
	events []model.StromEvent
}

func (s *fakeSink) Publish(e model.StromEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *fakeSink) all() []model.StromEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StromEvent(nil), s.events...)
}

func graphWithOneElement(t *testing.T) *compiler.CompiledGraph {
	t.Helper()
	factory := &framework.MemoryFactory{}
	elem, err := factory.NewElement("flow1:level", "level")
	require.NoError(t, err)
	return &compiler.CompiledGraph{
		FlowID:   "flow1",
		Elements: map[string]framework.Element{"flow1:level": elem},
		PadProperties: map[builder.PadKey]map[string]model.PropertyValue{
			{ElementID: "flow1:level"}: {"interval": model.UIntValue(100_000_000)},
		},
	}
}

func TestManager_Start_ReachesPlaying(t *testing.T) {
	graph := graphWithOneElement(t)
	sink := &fakeSink{}
	mgr, err := New(graph, &framework.MemoryFactory{}, sink, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Start(context.Background(), model.FlowProperties{}))
	require.Equal(t, model.StatePlaying, mgr.State())

	found := false
	for _, e := range sink.all() {
		if e.Type == model.EventFlowStateChanged {
			if d, ok := e.Data.(model.FlowStateChangedData); ok && d.State == model.StatePlaying {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestManager_Start_RemoteClockWithoutAddressFails(t *testing.T) {
	graph := graphWithOneElement(t)
	mgr, err := New(graph, &framework.MemoryFactory{}, &fakeSink{}, nil, nil)
	require.NoError(t, err)

	err = mgr.Start(context.Background(), model.FlowProperties{ClockType: model.ClockRemote})
	require.Error(t, err)
	require.Equal(t, model.StateNull, mgr.State())
}

func TestManager_SetPadProperty_UsesPadAddressing(t *testing.T) {
	factory := &framework.MemoryFactory{}
	elem, err := factory.NewElement("flow1:agg", "audiomixer")
	require.NoError(t, err)
	graph := &compiler.CompiledGraph{FlowID: "flow1", Elements: map[string]framework.Element{"flow1:agg": elem}}
	mgr, err := New(graph, factory, &fakeSink{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.SetPadProperty("flow1:agg", "sink_0", "volume", model.FloatValue(0.5)))
	got, ok := elem.(*framework.MemoryElement).GetProperty("sink_0::volume")
	require.True(t, ok)
	require.Equal(t, model.FloatValue(0.5), got)

	require.Error(t, mgr.SetPadProperty("flow1:missing", "sink_0", "volume", model.FloatValue(0.5)))
}

func TestManager_Stop_TransitionsToNull(t *testing.T) {
	graph := graphWithOneElement(t)
	mgr, err := New(graph, &framework.MemoryFactory{}, &fakeSink{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Start(context.Background(), model.FlowProperties{}))

	require.NoError(t, mgr.Stop(context.Background()))
	require.Equal(t, model.StateNull, mgr.State())
}
