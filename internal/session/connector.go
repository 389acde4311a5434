// Package session owns the live session lifecycle: credential fetch,
// connect, readiness, the staged conversation protocol, presence, and
// teardown.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MahammadWahab540/fullstackvoice/internal/archive"
	"github.com/MahammadWahab540/fullstackvoice/internal/flow"
	"github.com/MahammadWahab540/fullstackvoice/internal/metrics"
	"github.com/MahammadWahab540/fullstackvoice/internal/rtc"
	"github.com/MahammadWahab540/fullstackvoice/internal/token"
)

// Profile identifies the caller starting a session.
type Profile struct {
	DisplayName string
}

// CredentialFetcher obtains an access credential from the token service.
// token.Client satisfies it.
type CredentialFetcher interface {
	Fetch(ctx context.Context, roomName, identity string) (*token.Credential, error)
}

const (
	defaultReadinessTimeout = 8 * time.Second
	defaultWatchdogDelay    = 6 * time.Second
)

// Config wires a Connector. Zero durations fall back to defaults.
type Config struct {
	Tokens        CredentialFetcher
	RoomName      string
	DefaultRTCURL string

	// NewRoom constructs the platform room for an identity. Defaults to
	// the websocket room.
	NewRoom func(identity string) rtc.Room

	ConnectOptions   rtc.ConnectOptions
	Stages           flow.Stages
	ReadinessTimeout time.Duration
	WatchdogDelay    time.Duration
	IdleSettle       time.Duration
	ThinkingFallback time.Duration
	PublishRetries   int
	PublishBackoff   time.Duration
	EndedGrace       time.Duration

	// Archive is optional; nil disables persistence.
	Archive *archive.Recorder
}

// Connector establishes sessions. It is the exclusive owner of the Session
// it returns.
type Connector struct {
	cfg Config
}

// NewConnector creates a connector.
func NewConnector(cfg Config) *Connector {
	if cfg.NewRoom == nil {
		cfg.NewRoom = func(identity string) rtc.Room { return rtc.NewWSRoom(identity) }
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = defaultReadinessTimeout
	}
	if cfg.WatchdogDelay <= 0 {
		cfg.WatchdogDelay = defaultWatchdogDelay
	}
	if cfg.Stages.Len() == 0 {
		cfg.Stages = flow.DefaultStages()
	}
	return &Connector{cfg: cfg}
}

// Start establishes a session: fetch a credential, connect, wait for
// readiness, enable the microphone, announce the first stage, and arm the
// auto-prompt watchdog. Any failure after connect triggers full teardown
// before the error is surfaced, so the caller never observes a half-open
// session.
func (c *Connector) Start(ctx context.Context, profile Profile) (*Session, error) {
	started := time.Now()
	identity := profile.DisplayName
	if identity == "" {
		identity = "guest-" + uuid.NewString()[:8]
	}

	cred, err := c.cfg.Tokens.Fetch(ctx, c.cfg.RoomName, identity)
	if err != nil {
		metrics.ConnectErrors.WithLabelValues("credential").Inc()
		return nil, &CredentialError{Err: err}
	}

	endpoint := cred.URL
	if endpoint == "" {
		endpoint = c.cfg.DefaultRTCURL
	}

	room := c.cfg.NewRoom(identity)
	if err = room.Connect(ctx, endpoint, cred.Token, c.cfg.ConnectOptions); err != nil {
		metrics.ConnectErrors.WithLabelValues("connect").Inc()
		return nil, &ConnectError{Err: err}
	}

	s := newSession(c.cfg, room, identity)

	readiness, err := awaitReady(room.Events(), c.cfg.ReadinessTimeout, s.handleEvent)
	if err != nil {
		cause := "connect"
		var timeout *ChannelTimeoutError
		if errors.As(err, &timeout) {
			cause = "channel_timeout"
		}
		metrics.ConnectErrors.WithLabelValues(cause).Inc()
		s.Leave()
		return nil, err
	}
	s.setReadiness(readiness)

	if err = room.SetMicrophoneEnabled(ctx, true); err != nil {
		s.Leave()
		if errors.Is(err, rtc.ErrMicrophonePermission) {
			metrics.ConnectErrors.WithLabelValues("microphone").Inc()
			return nil, &MicrophonePermissionError{Err: err}
		}
		metrics.ConnectErrors.WithLabelValues("connect").Inc()
		return nil, &ConnectError{Err: err}
	}

	// a publish failure here was already retried and logged; the session
	// is still usable, so it is not fatal
	if err = s.protocol.PublishInitialStage(ctx); err != nil {
		slog.Warn("initial stage publish gave up", "error", err)
	}

	s.watchdog.arm()
	go s.run()

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	s.counted.Store(true)
	metrics.ConnectDuration.Observe(time.Since(started).Seconds())
	c.cfg.Archive.SessionStarted(s.ID(), c.cfg.RoomName, identity)
	slog.Info("session started", "session_id", s.ID(), "identity", identity,
		"participant_active", readiness.ParticipantActive)
	return s, nil
}
