// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/eyevinn-osaas/strom-go/internal/log"
)

// Holder holds an AppConfig with atomic hot-reloading from its source file.
// Reads never block on a reload in progress.
type Holder struct {
	loader *Loader
	path   string
	logger zerolog.Logger

	current atomic.Pointer[AppConfig]

	watcher *fsnotify.Watcher

	listenMu  sync.Mutex
	listeners []chan<- AppConfig
}

// NewHolder wraps an already-loaded AppConfig for hot reload from loader's
// source path.
func NewHolder(initial AppConfig, loader *Loader, path string) *Holder {
	h := &Holder{
		loader: loader,
		path:   path,
		logger: log.WithComponent("config"),
	}
	h.current.Store(&initial)
	return h
}

// Current returns the most recently loaded configuration.
func (h *Holder) Current() AppConfig {
	return *h.current.Load()
}

// Watch starts an fsnotify watch on the config file's directory and
// reloads on every write/create event targeting the file itself. It is a
// no-op if the holder was built with an empty path. Call Close to stop.
func (h *Holder) Watch() error {
	if h.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	h.watcher = watcher

	go h.watchLoop()
	return nil
}

func (h *Holder) watchLoop() {
	target := filepath.Clean(h.path)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			h.reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Msg("config watch error")
		}
	}
}

func (h *Holder) reload() {
	cfg, err := h.loader.Load()
	if err != nil {
		h.logger.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}
	h.current.Store(&cfg)
	h.logger.Info().Str("path", h.path).Msg("configuration reloaded")

	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Subscribe registers a channel to receive every successfully reloaded
// configuration. The channel must have spare capacity; a full channel
// drops the notification rather than blocking the reload.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// Close stops the watch goroutine.
func (h *Holder) Close() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Close()
}
