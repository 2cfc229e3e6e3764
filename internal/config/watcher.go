package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"deltadeck/internal/logger"
)

// watchDebounce absorbs the write bursts editors and atomic-save tools
// produce for a single logical change.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the config file on change and hands each valid result
// to onChange. A reload that fails to parse or validate is logged and
// skipped; the previous configuration stays in effect. Blocks until the
// context ends.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than rewrite
	// them, which drops inode-level watches.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watch error: %v", err)
		case <-reload:
			cfg, err := Load(abs)
			if err != nil {
				logger.Warnf("config reload skipped: %v", err)
				continue
			}
			logger.Infof("config reloaded from %s", abs)
			onChange(cfg)
		}
	}
}
