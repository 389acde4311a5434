package archive

import "time"

// Session represents one live call session.
type Session struct {
	ID        string     `json:"id"`
	RoomName  string     `json:"room_name"`
	Identity  string     `json:"identity"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Utterance is one finalized transcript utterance.
type Utterance struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// StageEvent is one stage-position change during a session.
type StageEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Ordinal   int       `json:"ordinal"`
	CreatedAt time.Time `json:"created_at"`
}
