// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package framework

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPipeline_AddElementDuplicate(t *testing.T) {
	f := NewMemoryFactory()
	p := f.NewPipeline("t")
	e1, _ := f.NewElement("a", "gain")
	require.NoError(t, p.AddElement(e1))
	e2, _ := f.NewElement("a", "gain")
	require.Error(t, p.AddElement(e2))
}

func TestMemoryPipeline_StateChangeBroadcastsMessage(t *testing.T) {
	f := NewMemoryFactory()
	p := f.NewPipeline("t")

	var got []Message
	unwatch := p.WatchBus(func(m Message) { got = append(got, m) })
	defer unwatch()

	res, err := p.SetState(context.Background(), StatePlaying)
	require.NoError(t, err)
	require.Equal(t, StateChangeSuccess, res)
	require.Len(t, got, 1)
	require.Equal(t, MessageStateChanged, got[0].Type)
	require.Equal(t, StatePlaying, got[0].NewState)

	cur, pending := p.State(0)
	require.Equal(t, StatePlaying, cur)
	require.Equal(t, StateVoidPending, pending)
}

func TestMemoryPipeline_UnwatchStopsDelivery(t *testing.T) {
	f := NewMemoryFactory()
	p := f.NewPipeline("t")
	count := 0
	unwatch := p.WatchBus(func(m Message) { count++ })
	unwatch()
	p.Post(Message{Type: MessageInfo})
	require.Equal(t, 0, count)
}
