// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

func TestBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(model.NewFlowEvent(model.EventFlowStarted, "flow1"))

	for _, s := range []*Subscription{s1, s2} {
		evt, lagged, ok := s.Next()
		require.True(t, ok)
		require.Equal(t, uint64(0), lagged)
		require.Equal(t, model.EventFlowStarted, evt.Type)
	}
}

func TestBroadcaster_LossyOverflowReportsLag(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Close()

	total := DefaultRingCapacity + 10
	for i := 0; i < total; i++ {
		b.Publish(model.NewFlowEvent(model.EventFlowStarted, "flow1"))
	}

	_, lagged, ok := sub.Next()
	require.True(t, ok)
	require.Equal(t, uint64(10), lagged)
}

func TestBroadcaster_CustomCapacity(t *testing.T) {
	b := NewWithCapacity(4)
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 6; i++ {
		b.Publish(model.NewFlowEvent(model.EventFlowStarted, flowName(i)))
	}

	evt, lagged, ok := sub.Next()
	require.True(t, ok)
	require.Equal(t, uint64(2), lagged)
	require.Equal(t, flowName(2), evt.Data.(model.FlowIDData).FlowID)
}

func TestBroadcaster_LaggingSubscriberDoesNotAffectOthers(t *testing.T) {
	b := New()
	prompt := b.Subscribe()
	laggard := b.Subscribe()
	defer prompt.Close()
	defer laggard.Close()

	// 200 events against the default capacity of 100: the prompt subscriber
	// sees all 200 in order, the laggard loses the oldest 100.
	const total = 200
	for i := 0; i < total; i++ {
		b.Publish(model.NewFlowEvent(model.EventFlowStarted, flowName(i)))

		evt, lagged, ok := prompt.Next()
		require.True(t, ok)
		require.Equal(t, uint64(0), lagged)
		require.Equal(t, flowName(i), evt.Data.(model.FlowIDData).FlowID)
	}

	// The laggard polled nothing: it observes the last 100 events preceded
	// by a lagged-by-100 signal reported once.
	evt, lagged, ok := laggard.Next()
	require.True(t, ok)
	require.Equal(t, uint64(100), lagged)
	require.Equal(t, flowName(100), evt.Data.(model.FlowIDData).FlowID)

	for i := 101; i < total; i++ {
		evt, lagged, ok := laggard.Next()
		require.True(t, ok)
		require.Equal(t, uint64(0), lagged)
		require.Equal(t, flowName(i), evt.Data.(model.FlowIDData).FlowID)
	}
}

func flowName(i int) string { return "flow-" + strconv.Itoa(i) }

func TestBroadcaster_CloseUnblocksNext(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	done := make(chan struct{})
	go func() {
		_, _, ok := sub.Next()
		require.False(t, ok)
		close(done)
	}()

	sub.Close()
	<-done
}

func TestBroadcaster_SubscriberCount(t *testing.T) {
	b := New()
	require.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	require.Equal(t, 0, b.SubscriberCount())
}
