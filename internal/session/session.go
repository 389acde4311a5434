package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MahammadWahab540/fullstackvoice/internal/archive"
	"github.com/MahammadWahab540/fullstackvoice/internal/flow"
	"github.com/MahammadWahab540/fullstackvoice/internal/metrics"
	"github.com/MahammadWahab540/fullstackvoice/internal/presence"
	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
	"github.com/MahammadWahab540/fullstackvoice/internal/transcript"
)

// Session is one live connection to the realtime backend. It owns the room
// handle and every timer; callers interact only through its public
// operations, all of which are safe for concurrent use.
type Session struct {
	id       string
	identity string
	room     rtc.Room
	arch     *archive.Recorder

	protocol    *flow.Protocol
	avatar      *presence.Synchronizer
	transcripts *transcript.Accumulator
	watchdog    *watchdog

	mu        sync.Mutex
	phase     rtc.ConnectionPhase
	readiness Readiness
	muted     bool
	farewell  string

	closed    atomic.Bool
	counted   atomic.Bool
	leaveOnce sync.Once
	done      chan struct{}
	loopDone  chan struct{}
}

func newSession(cfg Config, room rtc.Room, identity string) *Session {
	s := &Session{
		id:       uuid.NewString(),
		identity: identity,
		room:     room,
		arch:     cfg.Archive,
		phase:    rtc.PhaseConnecting,
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	s.watchdog = newWatchdog(cfg.WatchdogDelay, s.fireWatchdog)

	s.avatar = presence.NewSynchronizer(presence.Config{
		LocalIdentity:    identity,
		IdleSettle:       cfg.IdleSettle,
		ThinkingFallback: cfg.ThinkingFallback,
	})
	s.avatar.OnAgentActive = s.watchdog.disarm
	s.avatar.OnReconnected = s.watchdog.arm

	s.transcripts = transcript.NewAccumulator(identity)
	s.transcripts.OnAgentFinal = func(u transcript.Utterance) {
		s.avatar.ResetThinkingFallback()
		s.arch.UtteranceFinal(s.id, u.SpeakerID, u.Role.String(), u.Text)
	}

	s.protocol = flow.NewProtocol(flow.Config{
		Stages:     cfg.Stages,
		Publisher:  room,
		Retries:    cfg.PublishRetries,
		Backoff:    cfg.PublishBackoff,
		EndedGrace: cfg.EndedGrace,
		OnEnded: func(agentMessage string) {
			s.mu.Lock()
			s.farewell = agentMessage
			s.mu.Unlock()
		},
		OnDisconnect: s.Leave,
		OnStageChange: func(st flow.Stage) {
			s.arch.StageChanged(s.id, string(st.Key), st.Ordinal)
		},
	})

	return s
}

// run consumes room events until the room disconnects.
func (s *Session) run() {
	defer close(s.loopDone)
	for ev := range s.room.Events() {
		s.handleEvent(ev)
	}
	// the room is gone; make sure every timer dies with it
	s.Leave()
}

// handleEvent routes one room event. Events from different sources carry no
// ordering guarantee relative to each other, so every handler tolerates
// reordering.
func (s *Session) handleEvent(ev rtc.Event) {
	switch ev.Kind {
	case rtc.EventPhaseChange:
		s.handlePhase(ev.Phase)
	case rtc.EventActiveSpeakers:
		s.avatar.OnActiveSpeakers(ev.Speakers)
	case rtc.EventData:
		s.protocol.HandlePayload(ev.Payload)
	case rtc.EventTranscription:
		s.handleTranscription(ev)
	case rtc.EventParticipantActive, rtc.EventChannelOpen:
		// readiness signals arriving after the gate; nothing left to do
	}
}

// handlePhase is the reconnection handler: it mirrors connection-state
// transitions into presence and keeps dependent timers consistent.
func (s *Session) handlePhase(phase rtc.ConnectionPhase) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()

	if phase == rtc.PhaseSignalReconnecting {
		metrics.Reconnects.Inc()
		slog.Warn("signal reconnecting", "session_id", s.id)
	}
	s.avatar.OnPhase(phase)
}

func (s *Session) handleTranscription(ev rtc.Event) {
	s.transcripts.OnSegments(ev.Segments, ev.Participant)

	if ev.Participant != s.identity {
		return
	}
	for _, seg := range ev.Segments {
		if seg.Final {
			// user finished speaking; a reply is now awaited
			s.avatar.MarkThinking()
			if u, ok := s.transcripts.Last(ev.Participant); ok {
				s.arch.UtteranceFinal(s.id, u.SpeakerID, u.Role.String(), u.Text)
			}
			return
		}
	}
}

func (s *Session) fireWatchdog() {
	if s.closed.Load() {
		return
	}
	metrics.WatchdogFired.Inc()
	slog.Info("auto-prompt watchdog fired", "session_id", s.id)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.protocol.RequestReply(ctx, "auto_prompt")
}

// Leave tears the session down: every armed timer is cancelled and channel
// teardown is requested before Leave returns. Idempotent; calling it on a
// partially torn-down session is safe.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.closed.Store(true)
		s.watchdog.stop()
		s.protocol.Stop()
		s.avatar.Stop()
		s.room.Disconnect()

		s.mu.Lock()
		s.phase = rtc.PhaseDisconnected
		s.mu.Unlock()

		if s.counted.CompareAndSwap(true, false) {
			metrics.SessionsActive.Dec()
		}
		s.arch.SessionEnded(s.id)
		close(s.done)
		slog.Info("session left", "session_id", s.id)
	})
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ToggleMute flips the local microphone and returns the new muted state.
func (s *Session) ToggleMute(ctx context.Context) (bool, error) {
	s.mu.Lock()
	muted := !s.muted
	s.mu.Unlock()

	if err := s.room.SetMicrophoneEnabled(ctx, !muted); err != nil {
		return !muted, err
	}

	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	return muted, nil
}

// AdvanceStage moves to the next stage optimistically and announces it.
func (s *Session) AdvanceStage(ctx context.Context) {
	s.protocol.AdvanceToNext(ctx)
}

// SelectChoice records a structured choice (e.g. a payment route) and
// publishes it.
func (s *Session) SelectChoice(ctx context.Context, choice, title string, nextStage flow.StageKey) {
	s.protocol.SelectChoice(ctx, choice, title, nextStage)
}

// ManualPrompt nudges the agent to speak now and re-arms the watchdog.
func (s *Session) ManualPrompt(ctx context.Context) {
	s.protocol.RequestReply(ctx, "manual_prompt")
	s.watchdog.arm()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// AvatarState returns the current avatar activity state.
func (s *Session) AvatarState() presence.AvatarState { return s.avatar.State() }

// UserSpeaking reports whether the local participant is vocalizing alone.
func (s *Session) UserSpeaking() bool { return s.avatar.UserSpeaking() }

// CurrentStage returns the stage at the current ordinal position.
func (s *Session) CurrentStage() flow.Stage { return s.protocol.CurrentStage() }

// Choice returns the recorded active selection, if any.
func (s *Session) Choice() string { return s.protocol.Choice() }

// FlowComplete reports whether the agent has ended the flow.
func (s *Session) FlowComplete() bool { return s.protocol.Completed() }

// Farewell returns the agent's final message, if one was sent.
func (s *Session) Farewell() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.farewell
}

// Phase returns the current connection phase.
func (s *Session) Phase() rtc.ConnectionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Readiness returns the readiness gate outcome.
func (s *Session) Readiness() Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readiness
}

// Utterances returns a snapshot of the accumulated transcript.
func (s *Session) Utterances() []transcript.Utterance {
	return s.transcripts.Utterances()
}

func (s *Session) setReadiness(r Readiness) {
	s.mu.Lock()
	s.readiness = r
	s.phase = rtc.PhaseConnected
	s.mu.Unlock()
}

// OnAvatarState registers a UI callback for avatar state changes.
func (s *Session) OnAvatarState(cb func(presence.AvatarState)) {
	s.avatar.SetOnState(cb)
}
