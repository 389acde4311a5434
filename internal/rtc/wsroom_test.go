package rtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startTestServer runs a websocket endpoint that invokes handle with each
// accepted connection.
func startTestServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectEvents(events <-chan Event, want int, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for len(out) < want {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestWSRoomConnectCarriesOptionsAndToken(t *testing.T) {
	t.Parallel()

	gotQuery := make(chan map[string]string, 1)
	gotAuth := make(chan string, 1)

	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		gotQuery <- q
		gotAuth <- r.Header.Get("Authorization")
		// hold the connection open until the client leaves
		conn.ReadMessage()
	})

	room := NewWSRoom("parent")
	err := room.Connect(context.Background(), srv.URL, "jwt-abc", ConnectOptions{
		AdaptiveStream: true,
		Dynacast:       true,
		AudioBitrate:   32000,
		RelayOnly:      true,
	})
	require.NoError(t, err)
	defer room.Disconnect()

	q := <-gotQuery
	assert.Equal(t, "parent", q["identity"])
	assert.Equal(t, "true", q["adaptive_stream"])
	assert.Equal(t, "true", q["dynacast"])
	assert.Equal(t, "32000", q["max_audio_bitrate"])
	assert.Equal(t, "relay", q["transport"])
	assert.Equal(t, "Bearer jwt-abc", <-gotAuth)

	evs := collectEvents(room.Events(), 1, time.Second)
	require.Len(t, evs, 1)
	assert.Equal(t, EventPhaseChange, evs[0].Kind)
	assert.Equal(t, PhaseConnected, evs[0].Phase)
}

func TestWSRoomDispatchesServerFrames(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		frames := []string{
			`{"type":"channel_open"}`,
			`{"type":"participant_active"}`,
			`{"type":"speakers","speakers":["agent"]}`,
			`{"type":"data","participant":"agent","payload":{"status":"ended"}}`,
			`{"type":"transcription","participant":"agent","segments":[{"text":"hi","final":true}]}`,
			`this is not json`,
			`{"type":"mystery"}`,
		}
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		conn.ReadMessage()
	})

	room := NewWSRoom("parent")
	require.NoError(t, room.Connect(context.Background(), srv.URL, "jwt", ConnectOptions{}))
	defer room.Disconnect()

	// connected phase + five recognized frames; junk frames are dropped
	evs := collectEvents(room.Events(), 6, 2*time.Second)
	require.Len(t, evs, 6)

	assert.Equal(t, EventChannelOpen, evs[1].Kind)
	assert.Equal(t, EventParticipantActive, evs[2].Kind)
	assert.Equal(t, []string{"agent"}, evs[3].Speakers)

	assert.Equal(t, EventData, evs[4].Kind)
	assert.JSONEq(t, `{"status":"ended"}`, string(evs[4].Payload))

	require.Len(t, evs[5].Segments, 1)
	assert.Equal(t, "hi", evs[5].Segments[0].Text)
	assert.True(t, evs[5].Segments[0].Final)
}

func TestWSRoomPublishDataWritesEnvelope(t *testing.T) {
	t.Parallel()

	received := make(chan envelope, 1)
	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		json.Unmarshal(data, &env)
		received <- env
		conn.ReadMessage()
	})

	room := NewWSRoom("parent")
	require.NoError(t, room.Connect(context.Background(), srv.URL, "jwt", ConnectOptions{}))
	defer room.Disconnect()

	require.NoError(t, room.PublishData(context.Background(), []byte(`{"stage":"payment"}`), true))

	select {
	case env := <-received:
		assert.Equal(t, "data", env.Type)
		assert.True(t, env.Reliable)
		assert.JSONEq(t, `{"stage":"payment"}`, string(env.Payload))
	case <-time.After(time.Second):
		t.Fatal("server never received the payload")
	}
}

func TestWSRoomDisconnectIsIdempotentAndClosesEvents(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})

	room := NewWSRoom("parent")
	require.NoError(t, room.Connect(context.Background(), srv.URL, "jwt", ConnectOptions{}))

	room.Disconnect()
	room.Disconnect()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-room.Events():
			if !ok {
				assert.ErrorIs(t, room.PublishData(context.Background(), []byte(`{}`), true), ErrRoomClosed)
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after disconnect")
		}
	}
}

func TestWSRoomDisconnectWithoutConnect(t *testing.T) {
	t.Parallel()

	room := NewWSRoom("parent")
	room.Disconnect()

	_, ok := <-room.Events()
	assert.False(t, ok)
}

func TestBuildRoomURLSchemes(t *testing.T) {
	t.Parallel()

	for input, wantPrefix := range map[string]string{
		"https://rt.example.com": "wss://rt.example.com/rtc",
		"http://localhost:7880/": "ws://localhost:7880/rtc",
		"ws://localhost:7880":    "ws://localhost:7880/rtc",
	} {
		got, err := buildRoomURL(input, "id", ConnectOptions{})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got, wantPrefix), "input %q gave %q", input, got)
	}
}
