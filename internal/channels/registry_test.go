// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("mix-bus", Endpoint{FlowID: "f1", BlockID: "b1"}))

	ep, ok := r.Lookup("mix-bus")
	require.True(t, ok)
	require.Equal(t, Endpoint{FlowID: "f1", BlockID: "b1"}, ep)
}

func TestRegistry_RegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("mix-bus", Endpoint{FlowID: "f1", BlockID: "b1"}))
	err := r.Register("mix-bus", Endpoint{FlowID: "f2", BlockID: "b2"})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_UnregisterClosesEOSForSubscribers(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("mix-bus", Endpoint{FlowID: "f1", BlockID: "b1"}))

	eos, ok := r.Subscribe("mix-bus")
	require.True(t, ok)

	require.NoError(t, r.Unregister("mix-bus"))

	select {
	case <-eos:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not observe EOS after unregister")
	}

	_, ok = r.Lookup("mix-bus")
	require.False(t, ok)
}

func TestRegistry_UnregisterUnknownNameFails(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Unregister("missing"), ErrNotRegistered)
}

func TestRegistry_UnregisterAllRemovesOnlyThatFlow(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", Endpoint{FlowID: "f1", BlockID: "b1"}))
	require.NoError(t, r.Register("b", Endpoint{FlowID: "f2", BlockID: "b2"}))

	r.UnregisterAll("f1")

	_, ok := r.Lookup("a")
	require.False(t, ok)
	_, ok = r.Lookup("b")
	require.True(t, ok)
}

func TestRegistry_NameReusableAfterUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("mix-bus", Endpoint{FlowID: "f1", BlockID: "b1"}))
	require.NoError(t, r.Unregister("mix-bus"))
	require.NoError(t, r.Register("mix-bus", Endpoint{FlowID: "f2", BlockID: "b2"}))
}
