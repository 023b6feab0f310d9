package main

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chuckafile/config"
	"chuckafile/logging"
)

func useTestConfig(t *testing.T, dbPath string) {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })

	cfg = config.Config{
		DatabaseType:   config.DBTypeSQLite,
		DatabaseURL:    dbPath,
		JwtSecret:      "test-secret",
		BlobBackend:    config.BlobBackendDisk,
		MaxUploadBytes: 1 << 20,
	}
	logger = logging.Discard()
}

func TestReconcileReportsRowsRemovedWhileOpening(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			friend_code TEXT UNIQUE NOT NULL,
			is_admin INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_login DATETIME
		);
		CREATE TABLE friendships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			friend_id INTEGER NOT NULL,
			status TEXT DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, friend_id)
		);
		INSERT INTO users (username, password_hash, friend_code) VALUES
			('alice', 'h', 'AAAAAA'), ('bob', 'h', 'BBBBBB');
		INSERT INTO friendships (user_id, friend_id, status) VALUES
			(1, 2, 'pending'),
			(2, 1, 'accepted');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	useTestConfig(t, path)

	var out bytes.Buffer
	reconcileCmd.SetOut(&out)
	reconcileCmd.SetContext(context.Background())
	t.Cleanup(func() { reconcileCmd.SetOut(nil) })

	require.NoError(t, runReconcile(reconcileCmd, nil))
	assert.Equal(t, "Removed 1 duplicate friendship rows\n", out.String())

	out.Reset()
	require.NoError(t, runReconcile(reconcileCmd, nil))
	assert.Equal(t, "Removed 0 duplicate friendship rows\n", out.String())
}
