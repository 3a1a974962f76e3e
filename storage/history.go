package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hexapodctl/logbuf"
	"hexapodctl/models"
	"hexapodctl/protocol"
)

// Session is one recorded connection session.
type Session struct {
	ID            string
	Transport     string
	DeviceName    string
	DeviceAddress string
	DevicePort    int
	StartedAt     time.Time
	EndedAt       time.Time
}

// BeginSession opens a session row for a freshly connected device and returns
// its generated ID.
func (s *Store) BeginSession(transportLabel string, device models.Device) (string, error) {
	sessionID := uuid.NewString()

	_, err := s.db.Exec(`
INSERT INTO sessions (session_id, transport, device_name, device_address, device_port, started_at)
VALUES (?, ?, ?, ?, ?, ?);
`, sessionID, transportLabel, device.DisplayName, device.Address, device.Port, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	return sessionID, nil
}

// EndSession stamps the session's end time. Already-ended sessions keep their
// original stamp.
func (s *Store) EndSession(sessionID string) error {
	_, err := s.db.Exec(`
UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL;
`, time.Now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// RecordCommand appends one sent command to the session.
func (s *Store) RecordCommand(sessionID string, cmd protocol.Command) error {
	_, err := s.db.Exec(`
INSERT INTO commands (session_id, command, sent_at) VALUES (?, ?, ?);
`, sessionID, cmd.Token(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

// AppendLogEntry mirrors one classified log entry into the session.
func (s *Store) AppendLogEntry(sessionID string, entry logbuf.Entry) error {
	_, err := s.db.Exec(`
INSERT INTO log_entries (session_id, level, message, timestamp) VALUES (?, ?, ?, ?);
`, sessionID, string(entry.Level), entry.Message, entry.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// SessionEntries returns a session's log entries oldest-first, capped at
// limit when limit is positive.
func (s *Store) SessionEntries(sessionID string, limit int) ([]logbuf.Entry, error) {
	query := `
SELECT level, message, timestamp FROM log_entries
WHERE session_id = ? ORDER BY timestamp, id`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var out []logbuf.Entry
	for rows.Next() {
		var level, message string
		var stamp int64
		if err := rows.Scan(&level, &message, &stamp); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		out = append(out, logbuf.Entry{
			Timestamp: time.UnixMilli(stamp),
			Level:     logbuf.Level(level),
			Message:   message,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return out, nil
}

// RecentSessions returns the newest sessions first, capped at limit when
// limit is positive.
func (s *Store) RecentSessions(limit int) ([]Session, error) {
	query := `
SELECT session_id, transport, device_name, device_address, device_port, started_at, ended_at
FROM sessions ORDER BY started_at DESC, session_id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var session Session
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&session.ID, &session.Transport, &session.DeviceName,
			&session.DeviceAddress, &session.DevicePort, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.StartedAt = time.UnixMilli(startedAt)
		if endedAt.Valid {
			session.EndedAt = time.UnixMilli(endedAt.Int64)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
