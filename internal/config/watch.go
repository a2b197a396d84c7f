package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay collapses the burst of events an editor produces for one save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the configuration whenever the file is written or replaced,
// until ctx is done. The directory is watched rather than the file so that
// editors saving through a rename are seen. A reload that fails is logged and
// the previous configuration stays in effect.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.configPath)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go m.watch(ctx, w)
	return nil
}

func (m *Manager) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	name := filepath.Base(m.configPath)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reload = time.After(reloadDelay)
		case <-reload:
			reload = nil
			if err := m.Load(); err != nil {
				log.Printf("Config: Reload failed, keeping previous configuration: %v", err)
				continue
			}
			log.Printf("Config: Reloaded %s", m.configPath)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("Config: Watch error: %v", err)
		}
	}
}
