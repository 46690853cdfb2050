// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"fmt"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
)

// PlayerState is the observable state of one media-player element: its
// playlist, the index of the current entry, whether it is playing, and the
// last requested position. It lives in the manager's runtime side-map and
// is never persisted with the flow.
type PlayerState struct {
	Playlist   []string `json:"playlist"`
	Index      int      `json:"index"`
	Playing    bool     `json:"playing"`
	PositionMs int64    `json:"position_ms"`
}

// playerFor returns (creating if needed) the runtime state for one
// media-player element, plus the element itself. Caller holds m.mu.
func (m *Manager) playerFor(elementID string) (*PlayerState, framework.Element, error) {
	elem, ok := m.pipeline.Element(elementID)
	if !ok {
		return nil, nil, fmt.Errorf("manager: unknown element %q", elementID)
	}
	if m.players == nil {
		m.players = map[string]*PlayerState{}
	}
	st, ok := m.players[elementID]
	if !ok {
		st = &PlayerState{}
		m.players[elementID] = st
	}
	return st, elem, nil
}

// PlayerSetPlaylist replaces the element's playlist and cues the first
// entry without starting playback.
func (m *Manager) PlayerSetPlaylist(elementID string, uris []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, elem, err := m.playerFor(elementID)
	if err != nil {
		return err
	}
	st.Playlist = append([]string(nil), uris...)
	st.Index = 0
	st.PositionMs = 0
	if len(st.Playlist) == 0 {
		return nil
	}
	return m.cueLocked(st, elem)
}

// PlayerPlay resumes (or starts) playback of the current playlist entry.
func (m *Manager) PlayerPlay(elementID string) error {
	return m.setPlaying(elementID, true)
}

// PlayerPause pauses playback, keeping the current entry and position.
func (m *Manager) PlayerPause(elementID string) error {
	return m.setPlaying(elementID, false)
}

func (m *Manager) setPlaying(elementID string, playing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, elem, err := m.playerFor(elementID)
	if err != nil {
		return err
	}
	if playing && len(st.Playlist) == 0 {
		return fmt.Errorf("manager: player %q has no playlist", elementID)
	}
	if err := elem.SetProperty("playing", playing); err != nil {
		return fmt.Errorf("manager: player %q: %w", elementID, err)
	}
	st.Playing = playing
	return nil
}

// PlayerNext advances to the next playlist entry, wrapping at the end.
func (m *Manager) PlayerNext(elementID string) error {
	return m.skip(elementID, 1)
}

// PlayerPrev steps back to the previous playlist entry, wrapping at the
// start.
func (m *Manager) PlayerPrev(elementID string) error {
	return m.skip(elementID, -1)
}

func (m *Manager) skip(elementID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, elem, err := m.playerFor(elementID)
	if err != nil {
		return err
	}
	n := len(st.Playlist)
	if n == 0 {
		return fmt.Errorf("manager: player %q has no playlist", elementID)
	}
	st.Index = ((st.Index+delta)%n + n) % n
	st.PositionMs = 0
	return m.cueLocked(st, elem)
}

// PlayerSeek repositions within the current entry. Negative positions are
// rejected; seeking past the entry's end is the element's concern.
func (m *Manager) PlayerSeek(elementID string, positionMs int64) error {
	if positionMs < 0 {
		return fmt.Errorf("manager: seek position must be >= 0")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, elem, err := m.playerFor(elementID)
	if err != nil {
		return err
	}
	if err := elem.SetProperty("seek-position-ms", positionMs); err != nil {
		return fmt.Errorf("manager: player %q seek: %w", elementID, err)
	}
	st.PositionMs = positionMs
	return nil
}

// PlayerStateOf returns a snapshot of the element's player state.
func (m *Manager) PlayerStateOf(elementID string) (PlayerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, _, err := m.playerFor(elementID)
	if err != nil {
		return PlayerState{}, err
	}
	out := *st
	out.Playlist = append([]string(nil), st.Playlist...)
	return out, nil
}

// cueLocked points the element at the current playlist entry. Caller holds
// m.mu.
func (m *Manager) cueLocked(st *PlayerState, elem framework.Element) error {
	if err := elem.SetProperty("uri", st.Playlist[st.Index]); err != nil {
		return fmt.Errorf("manager: player %q cue: %w", elem.ID(), err)
	}
	return nil
}
