// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/channels"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/builder"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
	"github.com/eyevinn-osaas/strom-go/internal/store"
)

type fakeRegistry map[string]model.BlockDefinition

func (r fakeRegistry) GetByID(id string) (model.BlockDefinition, bool) {
	d, ok := r[id]
	return d, ok
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.StromEvent
}

func (f *fakeEvents) Publish(e model.StromEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeEvents) all() []model.StromEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.StromEvent(nil), f.events...)
}

func (f *fakeEvents) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.EventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func newTestService(t *testing.T) (*FlowService, *fakeEvents) {
	t.Helper()
	st := store.NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	events := &fakeEvents{}
	svc, err := New(st, fakeRegistry{}, builder.NewRegistry(), &framework.MemoryFactory{}, events, nil, nil, nil)
	require.NoError(t, err)
	return svc, events
}

func TestFlowService_CreateStartStopEmptyFlow(t *testing.T) {
	svc, events := newTestService(t)

	flow, err := svc.CreateFlow("s1", false)
	require.NoError(t, err)

	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))
	got, err := svc.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatePlaying, got.State)

	require.NoError(t, svc.StopFlow(context.Background(), flow.ID))
	got, err = svc.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, model.StateNull, got.State)

	require.Equal(t, []model.EventType{
		model.EventFlowCreated,
		model.EventFlowStarted,
		model.EventFlowStateChanged,
		model.EventFlowStopped,
		model.EventFlowStateChanged,
	}, events.types())
}

func TestFlowService_StopFlow_IdempotentWhenNotRunning(t *testing.T) {
	svc, events := newTestService(t)
	flow, err := svc.CreateFlow("s1", false)
	require.NoError(t, err)

	require.NoError(t, svc.StopFlow(context.Background(), flow.ID))
	require.Equal(t, []model.EventType{model.EventFlowCreated}, events.types())
}

func TestFlowService_StartFlow_IdempotentWhenAlreadyRunning(t *testing.T) {
	svc, events := newTestService(t)
	flow, err := svc.CreateFlow("s1", false)
	require.NoError(t, err)

	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))
	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))

	count := 0
	for _, typ := range events.types() {
		if typ == model.EventFlowStarted {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestFlowService_GetFlow_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetFlow("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFlowService_DeleteFlow_StopsRunningFlowFirst(t *testing.T) {
	svc, _ := newTestService(t)
	flow, err := svc.CreateFlow("s1", false)
	require.NoError(t, err)
	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))

	require.NoError(t, svc.DeleteFlow(context.Background(), flow.ID))
	_, err = svc.GetFlow(flow.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func interOutputBlock(id, channel string) model.BlockInstance {
	return model.BlockInstance{
		ID:                id,
		BlockDefinitionID: interBlockDefinitionID,
		Properties: map[string]model.PropertyValue{
			"direction": model.StringValue("output"),
			"channel":   model.StringValue(channel),
		},
	}
}

// mixerRegistry exposes the real built-in definitions so live-property
// validation has mappings to resolve against.
func mixerRegistry() fakeRegistry {
	reg := fakeRegistry{}
	for _, d := range builder.Definitions() {
		reg[d.ID] = d
	}
	return reg
}

func startMixerFlow(t *testing.T) (*FlowService, *fakeEvents, store.FlowStore, model.Flow) {
	t.Helper()
	st := store.NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	events := &fakeEvents{}
	svc, err := New(st, mixerRegistry(), builder.NewRegistry(), &framework.MemoryFactory{}, events, nil, nil, nil)
	require.NoError(t, err)

	flow, err := svc.CreateFlow("mix", false)
	require.NoError(t, err)
	flow.Blocks = []model.BlockInstance{{
		ID:                "m",
		BlockDefinitionID: "builtin.mixer",
		Properties: map[string]model.PropertyValue{
			"num_channels": model.IntValue(2),
		},
	}}
	flow, err = svc.UpdateFlow(flow.ID, flow)
	require.NoError(t, err)
	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))
	return svc, events, st, flow
}

func TestFlowService_SetProperty_LiveMixerMute(t *testing.T) {
	svc, events, st, flow := startMixerFlow(t)

	require.NoError(t, svc.SetProperty(flow.ID, "m:ch1_fader", "mute", model.BoolValue(true)))

	var changed *model.PropertyChangedData
	for _, e := range events.all() {
		if e.Type == model.EventPropertyChanged {
			d := e.Data.(model.PropertyChangedData)
			changed = &d
		}
	}
	require.NotNil(t, changed)
	require.Equal(t, "m:ch1_fader", changed.ElementID)
	require.Equal(t, model.BoolValue(true), changed.Value)

	// Runtime state stays Playing and the exposed property value is written
	// back to the stored flow under its exposed name.
	got, err := svc.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatePlaying, got.State)
	require.Equal(t, model.BoolValue(true), got.Blocks[0].Properties["mute_1"])

	persisted, err := st.LoadAll()
	require.NoError(t, err)
	require.Equal(t, model.BoolValue(true), persisted[flow.ID].Blocks[0].Properties["mute_1"])
}

func TestFlowService_StopStartCycleReachesPlayingAgain(t *testing.T) {
	svc, _, _, flow := startMixerFlow(t)

	require.NoError(t, svc.StopFlow(context.Background(), flow.ID))
	got, err := svc.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, model.StateNull, got.State)

	// A second run builds a fresh pipeline with the same deterministic
	// element ids; nothing from the previous run survives to alias against.
	require.NoError(t, svc.StartFlow(context.Background(), flow.ID))
	got, err = svc.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatePlaying, got.State)
}

func TestFlowService_SetProperty_RejectsOutOfRangeBeforeElement(t *testing.T) {
	svc, _, _, flow := startMixerFlow(t)

	err := svc.SetProperty(flow.ID, "m:ch1_pan", "panorama", model.FloatValue(5))
	require.Error(t, err)

	got, getErr := svc.GetFlow(flow.ID)
	require.NoError(t, getErr)
	_, stored := got.Blocks[0].Properties["pan_1"]
	require.False(t, stored, "rejected value must not be persisted")
}

func TestFlowService_SetProperty_RejectsNonLiveTarget(t *testing.T) {
	svc, _, _, flow := startMixerFlow(t)

	err := svc.SetProperty(flow.ID, "m:ch1_caps", "caps", model.StringValue("audio/x-raw"))
	require.ErrorIs(t, err, ErrNotLiveEditable)
}

func TestFlowService_SetProperty_NotRunningFails(t *testing.T) {
	svc, _ := newTestService(t)
	flow, err := svc.CreateFlow("idle", false)
	require.NoError(t, err)

	err = svc.SetProperty(flow.ID, "m:ch1_fader", "mute", model.BoolValue(true))
	require.Error(t, err)
}

func TestFlowService_SetPadProperty_EmitsEvent(t *testing.T) {
	svc, events, _, flow := startMixerFlow(t)

	require.NoError(t, svc.SetPadProperty(flow.ID, "m:main_agg", "sink_0", "volume", model.FloatValue(0.8)))

	found := false
	for _, e := range events.all() {
		if e.Type == model.EventPadPropertyChanged {
			d := e.Data.(model.PadPropertyChangedData)
			require.Equal(t, "m:main_agg", d.ElementID)
			require.Equal(t, "sink_0", d.PadName)
			found = true
		}
	}
	require.True(t, found)
}

func TestFlowService_ClaimOutputChannels_RegistersAndReleases(t *testing.T) {
	st := store.NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	chReg := channels.NewRegistry()
	svc, err := New(st, fakeRegistry{}, builder.NewRegistry(), &framework.MemoryFactory{}, &fakeEvents{}, nil, nil, chReg)
	require.NoError(t, err)

	flow := model.Flow{ID: "f1", Blocks: []model.BlockInstance{interOutputBlock("b1", "mix-bus")}}

	claimed, err := svc.claimOutputChannels("f1", flow)
	require.NoError(t, err)
	require.Equal(t, []string{"mix-bus"}, claimed)

	ep, ok := chReg.Lookup("mix-bus")
	require.True(t, ok)
	require.Equal(t, channels.Endpoint{FlowID: "f1", BlockID: "b1"}, ep)

	svc.releaseChannels(claimed)
	_, ok = chReg.Lookup("mix-bus")
	require.False(t, ok)
}

func TestFlowService_ClaimOutputChannels_ConflictRollsBackPriorClaims(t *testing.T) {
	st := store.NewJSONFlowStore(filepath.Join(t.TempDir(), "flows.json"))
	chReg := channels.NewRegistry()
	svc, err := New(st, fakeRegistry{}, builder.NewRegistry(), &framework.MemoryFactory{}, &fakeEvents{}, nil, nil, chReg)
	require.NoError(t, err)

	require.NoError(t, chReg.Register("taken", channels.Endpoint{FlowID: "other", BlockID: "x"}))

	flow := model.Flow{ID: "f1", Blocks: []model.BlockInstance{
		interOutputBlock("b1", "free-one"),
		interOutputBlock("b2", "taken"),
	}}

	_, err = svc.claimOutputChannels("f1", flow)
	require.Error(t, err)

	_, ok := chReg.Lookup("free-one")
	require.False(t, ok, "first claim must be rolled back when the second conflicts")
}
