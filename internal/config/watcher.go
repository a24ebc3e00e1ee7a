package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	debounceDelay      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watcher reloads the config file when it changes on disk and hands the
// parsed result to a callback. Reloads are debounced so editors that write
// in several steps trigger a single reload; a file that fails to parse is
// logged and ignored, keeping the last good config in effect.
type Watcher struct {
	path     string
	log      zerolog.Logger
	onChange func(*Config)
}

func NewWatcher(path string, log zerolog.Logger, onChange func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		log:      log.With().Str("component", "config-watch").Logger(),
		onChange: onChange,
	}
}

// Run blocks until ctx is canceled. The fsnotify watcher is recreated with
// backoff if it breaks, so a transient failure does not end hot reload for
// the life of the process.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	backoff := restartBackoffBase

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("config reload failed; keeping previous config")
				return
			}
			w.log.Info().Str("path", w.path).Msg("config reloaded")
			w.onChange(cfg)
		})
	}

	wait := func() bool {
		d := backoff
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			w.log.Warn().Err(err).Msg("config watch init failed")
			if !wait() {
				return nil
			}
			continue
		}
		// Watch the directory, not the file: editors that rename-on-save
		// would otherwise silently detach the watch.
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			w.log.Warn().Err(err).Str("dir", dir).Msg("config watch add failed")
			if !wait() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		w.log.Debug().Str("dir", dir).Str("file", file).Msg("config watcher started")

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					debounce()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				w.log.Warn().Err(err).Msg("config watch error")
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = fw.Close()
		if ctx.Err() != nil {
			return nil
		}
		w.log.Warn().Str("dir", dir).Msg("config watcher stopped; restarting")
		if !wait() {
			return nil
		}
	}
}
