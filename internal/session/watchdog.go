package session

import (
	"sync"
	"time"
)

// watchdog is the single-shot auto-prompt timer that nudges the agent if it
// has not spoken within a window. It does not self-rearm: the caller re-arms
// on reconnection or on a manual prompt. At most one live handle exists;
// arming always cancels the previous one.
type watchdog struct {
	mu    sync.Mutex
	delay time.Duration
	fire  func()
	timer *time.Timer
	dead  bool
}

func newWatchdog(delay time.Duration, fire func()) *watchdog {
	return &watchdog{delay: delay, fire: fire}
}

func (w *watchdog) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

func (w *watchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// stop disarms and prevents any future arming. Used on teardown so an
// orphaned timer can never fire against a torn-down session.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dead = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
