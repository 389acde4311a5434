// Package presence derives the avatar activity state from active-speaker
// and connection-phase events.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MahammadWahab540/fullstackvoice/internal/metrics"
	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
)

// AvatarState is the visual activity state shown for the remote agent.
// Exactly one value holds at any instant.
type AvatarState int

const (
	StateIdle AvatarState = iota
	StateThinking
	StateSpeaking
	StateError
)

func (s AvatarState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Config controls synchronizer timing. Zero durations fall back to defaults.
type Config struct {
	LocalIdentity    string
	IdleSettle       time.Duration // silence debounce while Thinking
	ThinkingFallback time.Duration // stuck-Thinking guard after an agent utterance
}

const (
	defaultIdleSettle       = 1500 * time.Millisecond
	defaultThinkingFallback = 8 * time.Second
)

// Synchronizer maps raw "who is vocalizing" and connection-phase events into
// an AvatarState. Events can arrive in bursts and out of order across
// sources; every handler is idempotent.
type Synchronizer struct {
	mu  sync.Mutex
	cfg Config

	state        AvatarState
	userSpeaking bool

	idleSettle *time.Timer
	fallback   *time.Timer

	// OnState is invoked (outside the lock) after every state change.
	OnState func(AvatarState)
	// OnAgentActive is invoked when the agent is observed speaking; the
	// session uses it to disarm the auto-prompt watchdog.
	OnAgentActive func()
	// OnReconnected is invoked after a Reconnected phase has been applied;
	// the session uses it to re-arm the watchdog.
	OnReconnected func()
}

// NewSynchronizer creates a synchronizer starting in StateIdle.
func NewSynchronizer(cfg Config) *Synchronizer {
	if cfg.IdleSettle <= 0 {
		cfg.IdleSettle = defaultIdleSettle
	}
	if cfg.ThinkingFallback <= 0 {
		cfg.ThinkingFallback = defaultThinkingFallback
	}
	return &Synchronizer{cfg: cfg}
}

// SetOnState installs the state-change callback. Safe to call while events
// are flowing.
func (s *Synchronizer) SetOnState(cb func(AvatarState)) {
	s.mu.Lock()
	s.OnState = cb
	s.mu.Unlock()
}

// State returns the current avatar state.
func (s *Synchronizer) State() AvatarState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserSpeaking reports whether the local participant is currently the only
// one vocalizing.
func (s *Synchronizer) UserSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userSpeaking
}

// OnActiveSpeakers applies a new vocalizing set.
func (s *Synchronizer) OnActiveSpeakers(speakers []string) {
	s.mu.Lock()

	var local, remote bool
	for _, id := range speakers {
		if id == s.cfg.LocalIdentity {
			local = true
		} else {
			remote = true
		}
	}
	s.userSpeaking = local && !remote

	var notify func()
	switch {
	case remote:
		s.stopIdleSettleLocked()
		notify = s.setStateLocked(StateSpeaking)
		if cb := s.OnAgentActive; cb != nil {
			prev := notify
			notify = func() {
				if prev != nil {
					prev()
				}
				cb()
			}
		}
	case s.state == StateSpeaking:
		// end of agent speech is a clear signal; no debounce
		notify = s.setStateLocked(StateIdle)
	case s.state == StateThinking:
		// absorb brief silences inside an agent utterance
		s.armIdleSettleLocked()
	}

	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// OnPhase applies a connection-phase transition.
func (s *Synchronizer) OnPhase(phase rtc.ConnectionPhase) {
	s.mu.Lock()

	var notify, after func()
	switch phase {
	case rtc.PhaseConnected:
		if s.state == StateError {
			notify = s.setStateLocked(StateIdle)
		}
	case rtc.PhaseSignalReconnecting:
		s.userSpeaking = false
		notify = s.setStateLocked(StateThinking)
		after = s.OnAgentActive // disarms the watchdog
	case rtc.PhaseReconnected:
		if s.state != StateSpeaking {
			notify = s.setStateLocked(StateIdle)
		}
		after = s.OnReconnected
	case rtc.PhaseDisconnected:
		s.stopIdleSettleLocked()
		notify = s.setStateLocked(StateError)
	}

	s.mu.Unlock()
	if notify != nil {
		notify()
	}
	if after != nil {
		after()
	}
}

// MarkThinking enters StateThinking unless the agent is already speaking.
// Called when the user finishes an utterance and a reply is awaited.
func (s *Synchronizer) MarkThinking() {
	s.mu.Lock()
	var notify func()
	if s.state != StateSpeaking && s.state != StateError {
		notify = s.setStateLocked(StateThinking)
	}
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// ResetThinkingFallback re-arms the stuck-Thinking guard. If no further
// agent activity is observed within the window, the state is forced to
// Idle. Re-arming always cancels the previous handle.
func (s *Synchronizer) ResetThinkingFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback != nil {
		s.fallback.Stop()
	}
	s.fallback = time.AfterFunc(s.cfg.ThinkingFallback, s.fireThinkingFallback)
}

// Stop cancels all timers. The synchronizer may not be reused afterwards.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopIdleSettleLocked()
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}

func (s *Synchronizer) armIdleSettleLocked() {
	s.stopIdleSettleLocked()
	s.idleSettle = time.AfterFunc(s.cfg.IdleSettle, s.fireIdleSettle)
}

func (s *Synchronizer) stopIdleSettleLocked() {
	if s.idleSettle != nil {
		s.idleSettle.Stop()
		s.idleSettle = nil
	}
}

func (s *Synchronizer) fireIdleSettle() {
	s.mu.Lock()
	var notify func()
	if s.state == StateThinking {
		notify = s.setStateLocked(StateIdle)
	}
	s.idleSettle = nil
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (s *Synchronizer) fireThinkingFallback() {
	s.mu.Lock()
	var notify func()
	if s.state == StateThinking {
		slog.Warn("thinking fallback fired, forcing idle")
		notify = s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// setStateLocked updates the state and returns the notification to run once
// the lock is released, or nil if the state did not change.
func (s *Synchronizer) setStateLocked(next AvatarState) func() {
	if s.state == next {
		return nil
	}
	s.state = next
	metrics.AvatarTransitions.WithLabelValues(next.String()).Inc()
	if cb := s.OnState; cb != nil {
		return func() { cb(next) }
	}
	return nil
}
