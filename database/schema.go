package database

import (
	"context"

	"github.com/pkg/errors"

	"chuckafile/config"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		friend_code TEXT UNIQUE NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_login DATETIME
	);

	CREATE TABLE IF NOT EXISTS friendships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		status TEXT DEFAULT 'pending',
		pair_key TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		FOREIGN KEY (friend_id) REFERENCES users (id) ON DELETE CASCADE,
		UNIQUE(user_id, friend_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		message_text TEXT,
		message_type TEXT DEFAULT 'text',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (sender_id) REFERENCES users (id) ON DELETE CASCADE,
		FOREIGN KEY (recipient_id) REFERENCES users (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT,
		sender_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		message_id INTEGER,
		uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		downloaded_at DATETIME,
		FOREIGN KEY (sender_id) REFERENCES users (id) ON DELETE CASCADE,
		FOREIGN KEY (recipient_id) REFERENCES users (id) ON DELETE CASCADE,
		FOREIGN KEY (message_id) REFERENCES messages (id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships(friend_id);
	CREATE INDEX IF NOT EXISTS idx_files_pair ON files(sender_id, recipient_id);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		friend_code TEXT UNIQUE NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_login TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS friendships (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		friend_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		status TEXT DEFAULT 'pending',
		pair_key TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(user_id, friend_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		recipient_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		message_text TEXT,
		message_type TEXT DEFAULT 'text',
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS files (
		id BIGSERIAL PRIMARY KEY,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		file_type TEXT,
		sender_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		recipient_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		message_id BIGINT REFERENCES messages (id),
		uploaded_at TIMESTAMPTZ DEFAULT NOW(),
		downloaded_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_friendships_friend ON friendships(friend_id);
	CREATE INDEX IF NOT EXISTS idx_files_pair ON files(sender_id, recipient_id);
	`

// pairKeyExpr computes the canonical pair key in SQL for rows written
// before the column existed.
const pairKeyExpr = `CASE WHEN user_id < friend_id
		THEN CAST(user_id AS TEXT) || '-' || CAST(friend_id AS TEXT)
		ELSE CAST(friend_id AS TEXT) || '-' || CAST(user_id AS TEXT) END`

// Migrate creates missing tables and brings the friendships table up to
// the one-row-per-pair invariant.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.dialect == config.DBTypePostgres {
		schema = postgresSchema
	}
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "database.Migrate.CreateTables")
	}

	removed, err := db.ReconcileFriendships(ctx)
	if err != nil {
		return err
	}
	db.migrated += removed
	if removed > 0 {
		db.logger.Warn("removed duplicate friendships during migration", "removed", removed)
	}

	_, err = db.conn.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_friendships_pair ON friendships(pair_key)`)
	return errors.Wrap(err, "database.Migrate.PairIndex")
}

// ReconcileFriendships back-fills pair keys and collapses any pair that
// has more than one row down to a single row. An accepted row wins over
// pending ones; otherwise the oldest row is kept. It returns the number of
// rows removed.
func (db *DB) ReconcileFriendships(ctx context.Context) (int64, error) {
	if err := db.ensurePairKeyColumn(ctx); err != nil {
		return 0, err
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE friendships SET pair_key = `+pairKeyExpr+` WHERE pair_key IS NULL`); err != nil {
		return 0, errors.Wrap(err, "database.ReconcileFriendships.Backfill")
	}

	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM friendships
		WHERE id NOT IN (
			SELECT COALESCE(MIN(CASE WHEN status = 'accepted' THEN id END), MIN(id))
			FROM friendships
			GROUP BY pair_key
		)`)
	if err != nil {
		return 0, errors.Wrap(err, "database.ReconcileFriendships.Delete")
	}
	removed, _ := result.RowsAffected()
	return removed, nil
}

func (db *DB) ensurePairKeyColumn(ctx context.Context) error {
	rows, err := db.conn.QueryContext(ctx, `SELECT pair_key FROM friendships LIMIT 1`)
	if err == nil {
		return rows.Close()
	}

	db.logger.Info("adding pair_key column to legacy friendships table")
	if _, err := db.conn.ExecContext(ctx, `ALTER TABLE friendships ADD COLUMN pair_key TEXT`); err != nil {
		return errors.Wrap(err, "database.ensurePairKeyColumn")
	}
	return nil
}
