// Package rtc abstracts the real-time communication platform that carries
// the audio stream and the reliable control channel. The session controller
// only depends on the Room interface; the websocket implementation lives in
// wsroom.go. Media transport internals and codec handling are the
// platform's business, not ours.
package rtc

import (
	"context"
	"errors"
	"time"
)

// ConnectionPhase is the lifecycle phase of a room connection.
type ConnectionPhase int

const (
	PhaseDisconnected ConnectionPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseSignalReconnecting
	PhaseReconnected
)

func (p ConnectionPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseSignalReconnecting:
		return "signal_reconnecting"
	case PhaseReconnected:
		return "reconnected"
	}
	return "unknown"
}

// EventKind discriminates room events.
type EventKind int

const (
	// EventPhaseChange reports a ConnectionPhase transition.
	EventPhaseChange EventKind = iota
	// EventActiveSpeakers reports the set of participants currently
	// producing audio above the detection threshold.
	EventActiveSpeakers
	// EventData carries one reliable-channel payload from a remote participant.
	EventData
	// EventTranscription carries streaming transcript segments for one speaker.
	EventTranscription
	// EventParticipantActive signals that the local participant has been
	// marked active by the backend.
	EventParticipantActive
	// EventChannelOpen signals that the reliable control channel is usable.
	EventChannelOpen
)

// TranscriptSegment is one streamed piece of a transcription.
type TranscriptSegment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Event is a single room event. Which fields are set depends on Kind.
type Event struct {
	Kind        EventKind
	Phase       ConnectionPhase
	Speakers    []string
	Payload     []byte
	Participant string
	Segments    []TranscriptSegment
}

// ReconnectPolicy bounds automatic signal reconnection.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultReconnectPolicy matches the platform defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// ConnectOptions is the session configuration passed at connect time.
type ConnectOptions struct {
	AdaptiveStream bool
	Dynacast       bool
	AudioBitrate   int // bits per second publish cap
	RelayOnly      bool
	Reconnect      ReconnectPolicy
}

// ErrMicrophonePermission is returned by SetMicrophoneEnabled when the
// platform denies audio capture.
var ErrMicrophonePermission = errors.New("microphone permission denied")

// ErrRoomClosed is returned by operations on a room that has disconnected.
var ErrRoomClosed = errors.New("room is closed")

// Room is the narrow surface of the realtime platform the controller uses.
// Events are delivered on a single channel, closed on disconnect; cross-source
// ordering between event kinds is not guaranteed.
type Room interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) error
	Events() <-chan Event
	PublishData(ctx context.Context, payload []byte, reliable bool) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	LocalIdentity() string
	Disconnect()
}
