package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexapodctl/logbuf"
	"hexapodctl/models"
	"hexapodctl/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, dbPath, err := Open(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, DefaultDBFileName, filepath.Base(dbPath))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	device := models.NewDevice("robot-spider", "192.168.1.42", 8080)
	sessionID, err := store.BeginSession("network", device)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	sessions, err := store.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
	assert.Equal(t, "network", sessions[0].Transport)
	assert.Equal(t, "robot-spider", sessions[0].DeviceName)
	assert.True(t, sessions[0].EndedAt.IsZero(), "open session has no end stamp")

	require.NoError(t, store.EndSession(sessionID))

	sessions, err = store.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	firstEnd := sessions[0].EndedAt
	assert.False(t, firstEnd.IsZero())

	// Ending again keeps the original stamp.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.EndSession(sessionID))
	sessions, err = store.RecentSessions(0)
	require.NoError(t, err)
	assert.Equal(t, firstEnd, sessions[0].EndedAt)
}

func TestSessionEntriesComeBackOldestFirst(t *testing.T) {
	store := newTestStore(t)

	sessionID, err := store.BeginSession("radio", models.NewDevice("robot-spider", "AA:BB:CC:DD:EE:FF", 0))
	require.NoError(t, err)

	base := time.Now()
	seed := []logbuf.Entry{
		{Timestamp: base, Level: logbuf.LevelInfo, Message: "Connected to robot-spider"},
		{Timestamp: base.Add(time.Second), Level: logbuf.LevelSuccess, Message: "OK: init"},
		{Timestamp: base.Add(2 * time.Second), Level: logbuf.LevelError, Message: "low battery"},
	}
	for _, entry := range seed {
		require.NoError(t, store.AppendLogEntry(sessionID, entry))
	}

	entries, err := store.SessionEntries(sessionID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, seed[i].Level, entry.Level)
		assert.Equal(t, seed[i].Message, entry.Message)
	}

	limited, err := store.SessionEntries(sessionID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "Connected to robot-spider", limited[0].Message)
}

func TestRecordCommand(t *testing.T) {
	store := newTestStore(t)

	sessionID, err := store.BeginSession("network", models.NewDevice("robot-spider", "192.168.1.42", 8080))
	require.NoError(t, err)

	require.NoError(t, store.RecordCommand(sessionID, protocol.CommandInit))
	require.NoError(t, store.RecordCommand(sessionID, protocol.CommandForward))

	var count int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM commands WHERE session_id = ?;", sessionID).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRecentSessionsNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.BeginSession("network", models.NewDevice("robot-spider", "192.168.1.42", 8080))
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	sessions, err := store.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, dbPath, err := Open(dir)
	require.NoError(t, err)

	sessionID, err := store.BeginSession("network", models.NewDevice("robot-spider", "192.168.1.42", 8080))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenPath(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	sessions, err := reopened.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].ID)
}

func TestBadTransportLabelIsRejected(t *testing.T) {
	store := newTestStore(t)

	_, err := store.BeginSession("telepathy", models.NewDevice("robot-spider", "192.168.1.42", 8080))
	require.Error(t, err)
}
