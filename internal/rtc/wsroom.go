package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the wire frame exchanged with the realtime backend. Every
// frame is one UTF-8 JSON object.
type envelope struct {
	Type        string              `json:"type"`
	Phase       string              `json:"phase,omitempty"`
	Speakers    []string            `json:"speakers,omitempty"`
	Participant string              `json:"participant,omitempty"`
	Payload     json.RawMessage     `json:"payload,omitempty"`
	Segments    []TranscriptSegment `json:"segments,omitempty"`
	Reliable    bool                `json:"reliable,omitempty"`
	Enabled     bool                `json:"enabled,omitempty"`
}

// WSRoom is a websocket-backed Room. One read loop turns inbound frames
// into Events; writes are serialized with a mutex since the underlying
// connection permits a single concurrent writer.
type WSRoom struct {
	identity string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	events     chan Event
	closeOnce  sync.Once
	eventsOnce sync.Once

	url   string
	token string
	opts  ConnectOptions
}

// NewWSRoom creates an unconnected room for the given local identity.
func NewWSRoom(identity string) *WSRoom {
	return &WSRoom{
		identity: identity,
		events:   make(chan Event, 64),
	}
}

// Connect dials the realtime endpoint and starts the read loop.
// Connection options are carried as query parameters; the access token is
// sent as a bearer header.
func (r *WSRoom) Connect(ctx context.Context, endpoint, token string, opts ConnectOptions) error {
	wsURL, err := buildRoomURL(endpoint, r.identity, opts)
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.url = wsURL
	r.token = token
	r.opts = opts
	r.mu.Unlock()

	r.emit(Event{Kind: EventPhaseChange, Phase: PhaseConnected})
	go r.readLoop(conn)
	return nil
}

// Events returns the room event channel. It is closed after Disconnect or
// once reconnection is exhausted.
func (r *WSRoom) Events() <-chan Event {
	return r.events
}

// LocalIdentity returns the identity the room was created with.
func (r *WSRoom) LocalIdentity() string {
	return r.identity
}

// PublishData sends one payload over the data channel. The reliable flag
// requests ordered, guaranteed delivery.
func (r *WSRoom) PublishData(ctx context.Context, payload []byte, reliable bool) error {
	return r.writeEnvelope(envelope{Type: "data", Payload: payload, Reliable: reliable, Participant: r.identity})
}

// SetMicrophoneEnabled toggles publication of the local audio track.
func (r *WSRoom) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	return r.writeEnvelope(envelope{Type: "microphone", Enabled: enabled})
}

// Disconnect closes the connection and the event channel. Safe to call more
// than once and on a never-connected room.
func (r *WSRoom) Disconnect() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		conn := r.conn
		r.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		} else {
			// never connected; no read loop will close the channel for us
			r.finish()
		}
	})
}

func (r *WSRoom) writeEnvelope(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.conn == nil {
		return ErrRoomClosed
	}
	if err = r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (r *WSRoom) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.handleReadError(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("unparseable room frame", "error", err)
			continue
		}
		r.dispatch(env)
	}
}

func (r *WSRoom) dispatch(env envelope) {
	switch env.Type {
	case "phase":
		r.emit(Event{Kind: EventPhaseChange, Phase: parsePhase(env.Phase)})
	case "speakers":
		r.emit(Event{Kind: EventActiveSpeakers, Speakers: env.Speakers})
	case "data":
		r.emit(Event{Kind: EventData, Payload: []byte(env.Payload), Participant: env.Participant})
	case "transcription":
		r.emit(Event{Kind: EventTranscription, Participant: env.Participant, Segments: env.Segments})
	case "participant_active":
		r.emit(Event{Kind: EventParticipantActive})
	case "channel_open":
		r.emit(Event{Kind: EventChannelOpen})
	default:
		slog.Debug("unknown room frame", "type", env.Type)
	}
}

// handleReadError attempts signal reconnection within policy before
// declaring the room disconnected.
func (r *WSRoom) handleReadError(err error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()

	if closed || isNormalClose(err) {
		r.finish()
		return
	}

	slog.Warn("room connection lost", "error", err)
	policy := r.opts.Reconnect

	r.emit(Event{Kind: EventPhaseChange, Phase: PhaseSignalReconnecting})

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		time.Sleep(policy.BaseDelay * time.Duration(attempt))

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			r.finish()
			return
		}
		wsURL, token := r.url, r.token
		r.mu.Unlock()

		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+token)
		conn, _, dialErr := websocket.DefaultDialer.Dial(wsURL, headers)
		if dialErr != nil {
			slog.Warn("reconnect attempt failed", "attempt", attempt, "error", dialErr)
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		r.emit(Event{Kind: EventPhaseChange, Phase: PhaseReconnected})
		go r.readLoop(conn)
		return
	}

	r.emit(Event{Kind: EventPhaseChange, Phase: PhaseDisconnected})
	r.finish()
}

func (r *WSRoom) finish() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.eventsOnce.Do(func() { close(r.events) })
}

func (r *WSRoom) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		slog.Warn("room event dropped", "kind", ev.Kind)
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func parsePhase(s string) ConnectionPhase {
	switch s {
	case "connecting":
		return PhaseConnecting
	case "connected":
		return PhaseConnected
	case "signal_reconnecting":
		return PhaseSignalReconnecting
	case "reconnected":
		return PhaseReconnected
	default:
		return PhaseDisconnected
	}
}

func buildRoomURL(endpoint, identity string, opts ConnectOptions) (string, error) {
	base := strings.TrimSpace(endpoint)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	roomURL, err := url.Parse(base + "/rtc")
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint: %w", err)
	}

	query := roomURL.Query()
	query.Set("identity", identity)
	query.Set("adaptive_stream", strconv.FormatBool(opts.AdaptiveStream))
	query.Set("dynacast", strconv.FormatBool(opts.Dynacast))
	if opts.AudioBitrate > 0 {
		query.Set("max_audio_bitrate", strconv.Itoa(opts.AudioBitrate))
	}
	if opts.RelayOnly {
		query.Set("transport", "relay")
	}
	roomURL.RawQuery = query.Encode()
	return roomURL.String(), nil
}
