package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/nghyane/query-gateway/internal/logging"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands the new
// configuration to onChange. Invalid edits are logged and skipped. The parent
// directory is watched so editors that replace the file are handled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		reload := func() {
			cfg, errLoad := LoadConfig(abs)
			if errLoad != nil {
				log.Warnf("config reload skipped: %v", errLoad)
				return
			}
			log.Infof("config reloaded from %s", abs)
			onChange(cfg)
		}
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, reload)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher: %v", errWatch)
			}
		}
	}()
	return nil
}
