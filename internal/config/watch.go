package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path on every write and invokes onChange
// with the freshly-loaded Config. Env vars are re-applied on each reload, so
// they continue to win over the file. The caller owns the returned
// watcher's lifetime and must Close it at shutdown; Watch returns a nil
// error and does nothing if path is empty (env-only configuration).
func Watch(path string, onChange func(*Config)) (*fsnotify.Watcher, error) {
	if path == "" {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					slog.Error("config: reload failed, keeping previous config", "err", err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config: watch error", "err", err)
			}
		}
	}()

	return watcher, nil
}
