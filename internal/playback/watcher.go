package playback

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// VoiceWatcher refreshes a VoiceCache when the synthesizer's voice data
// directory changes. Installing or removing a voice package is the
// voices-changed notification on this platform.
type VoiceWatcher struct {
	dir      string
	cache    *VoiceCache
	debounce time.Duration
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewVoiceWatcher(dir string, cache *VoiceCache, log zerolog.Logger) *VoiceWatcher {
	return &VoiceWatcher{
		dir:      dir,
		cache:    cache,
		debounce: 500 * time.Millisecond,
		log:      log.With().Str("component", "voice-watcher").Logger(),
	}
}

func (vw *VoiceWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(vw.dir); err != nil {
		w.Close()
		return err
	}
	vw.watcher = w

	ctx, cancel := context.WithCancel(context.Background())
	vw.cancel = cancel
	vw.wg.Add(1)
	go vw.loop(ctx)

	vw.log.Info().Str("dir", vw.dir).Msg("watching voice directory")
	return nil
}

func (vw *VoiceWatcher) Stop() {
	if vw.cancel != nil {
		vw.cancel()
	}
	if vw.watcher != nil {
		vw.watcher.Close()
	}
	vw.wg.Wait()
	vw.timerMu.Lock()
	if vw.timer != nil {
		vw.timer.Stop()
	}
	vw.timerMu.Unlock()
}

func (vw *VoiceWatcher) loop(ctx context.Context) {
	defer vw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-vw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			vw.schedule(ctx)
		case err, ok := <-vw.watcher.Errors:
			if !ok {
				return
			}
			vw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule coalesces a burst of file events (a package install touches many
// files) into one refresh.
func (vw *VoiceWatcher) schedule(ctx context.Context) {
	vw.timerMu.Lock()
	defer vw.timerMu.Unlock()
	if vw.timer != nil {
		vw.timer.Reset(vw.debounce)
		return
	}
	vw.timer = time.AfterFunc(vw.debounce, func() {
		vw.timerMu.Lock()
		vw.timer = nil
		vw.timerMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := vw.cache.Refresh(ctx); err != nil {
			vw.log.Warn().Err(err).Msg("voice refresh failed")
			return
		}
		vw.log.Info().Msg("voices changed, cache refreshed")
	})
}
