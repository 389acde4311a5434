// Package archive persists sessions, finalized utterances, and stage
// transitions to PostgreSQL. The archive is optional: a nil Recorder is a
// no-op, so the controller runs unchanged without a database.
package archive

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 200

// Store persists archive data to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the archive database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("archive open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and prunes old ones.
func (s *Store) CreateSession(id, roomName, identity string) error {
	_, err := s.db.Exec(
		`INSERT INTO call_sessions (id, room_name, identity, started_at) VALUES ($1, $2, $3, $4)`,
		id, roomName, identity, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM call_sessions WHERE id NOT IN (SELECT id FROM call_sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession sets the ended_at timestamp.
func (s *Store) EndSession(id string) error {
	_, err := s.db.Exec(
		`UPDATE call_sessions SET ended_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

// InsertUtterance stores one finalized utterance.
func (s *Store) InsertUtterance(u Utterance) error {
	_, err := s.db.Exec(
		`INSERT INTO utterances (id, session_id, speaker, role, text, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.SessionID, u.Speaker, u.Role, u.Text, u.CreatedAt,
	)
	return err
}

// InsertStageEvent stores one stage transition.
func (s *Store) InsertStageEvent(e StageEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO stage_events (id, session_id, stage, ordinal, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.SessionID, e.Stage, e.Ordinal, e.CreatedAt,
	)
	return err
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, room_name, identity, started_at, ended_at FROM call_sessions ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err = rows.Scan(&sess.ID, &sess.RoomName, &sess.Identity, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SessionUtterances returns a session's finalized utterances in order.
func (s *Store) SessionUtterances(sessionID string) ([]Utterance, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, role, text, created_at FROM utterances WHERE session_id = $1 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err = rows.Scan(&u.ID, &u.SessionID, &u.Speaker, &u.Role, &u.Text, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
