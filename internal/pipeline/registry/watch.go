// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/eyevinn-osaas/strom-go/internal/log"
)

// WatchFile reloads r from backend whenever the user-blocks file at path is
// written externally (e.g. restored from a backup while the server is
// running). It runs until ctx is cancelled. AddUser/UpdateUser/DeleteUser
// already go through the in-process registry, so this watcher only needs to
// notice changes it did not itself cause.
func (r *Registry) WatchFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Load(); err != nil {
					log.L().Warn().Err(err).Str("path", path).Msg("failed to reload user blocks after external change")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.L().Warn().Err(err).Msg("user block watcher error")
			}
		}
	}()
	return nil
}
