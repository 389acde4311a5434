package archive

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type recordMsg struct {
	kind      string // "session_start", "session_end", "utterance", "stage"
	sessionID string
	roomName  string
	identity  string
	speaker   string
	role      string
	text      string
	stage     string
	ordinal   int
}

// Recorder writes archive rows asynchronously via a buffered channel so the
// session event path never waits on the database. All methods are nil-safe
// (no-op on nil receiver).
type Recorder struct {
	store *Store
	ch    chan recordMsg
	done  chan struct{}
}

// NewRecorder creates a recorder over the store. Must call Close when done.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan recordMsg, 128),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for msg := range r.ch {
		r.handle(msg)
	}
}

func (r *Recorder) handle(msg recordMsg) {
	var err error
	switch msg.kind {
	case "session_start":
		err = r.store.CreateSession(msg.sessionID, msg.roomName, msg.identity)
	case "session_end":
		err = r.store.EndSession(msg.sessionID)
	case "utterance":
		err = r.store.InsertUtterance(Utterance{
			ID:        uuid.NewString(),
			SessionID: msg.sessionID,
			Speaker:   msg.speaker,
			Role:      msg.role,
			Text:      msg.text,
			CreatedAt: time.Now().UTC(),
		})
	case "stage":
		err = r.store.InsertStageEvent(StageEvent{
			ID:        uuid.NewString(),
			SessionID: msg.sessionID,
			Stage:     msg.stage,
			Ordinal:   msg.ordinal,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err != nil {
		slog.Error("archive write", "kind", msg.kind, "error", err)
	}
}

func (r *Recorder) send(msg recordMsg) {
	if r == nil {
		return
	}
	select {
	case r.ch <- msg:
	default:
		slog.Warn("archive record dropped", "kind", msg.kind)
	}
}

// SessionStarted records the start of a session.
func (r *Recorder) SessionStarted(sessionID, roomName, identity string) {
	r.send(recordMsg{kind: "session_start", sessionID: sessionID, roomName: roomName, identity: identity})
}

// SessionEnded records the end of a session.
func (r *Recorder) SessionEnded(sessionID string) {
	r.send(recordMsg{kind: "session_end", sessionID: sessionID})
}

// UtteranceFinal records one finalized utterance.
func (r *Recorder) UtteranceFinal(sessionID, speaker, role, text string) {
	r.send(recordMsg{kind: "utterance", sessionID: sessionID, speaker: speaker, role: role, text: text})
}

// StageChanged records a stage-position change.
func (r *Recorder) StageChanged(sessionID, stage string, ordinal int) {
	r.send(recordMsg{kind: "stage", sessionID: sessionID, stage: stage, ordinal: ordinal})
}

// Close flushes pending records and stops the recorder.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
}
