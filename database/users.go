package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"chuckafile/apperr"
	"chuckafile/models"
)

const userColumns = `id, username, password_hash, friend_code, is_admin, created_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FriendCode,
		&user.IsAdmin, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

// CreateUser inserts a new user. A taken username is reported as a
// conflict; a taken friend code as apperr.CodeConflict with a distinct
// message so the caller can retry with a fresh code.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash, friendCode string) (*models.User, error) {
	var id int64
	err := db.queryRow(ctx,
		`INSERT INTO users (username, password_hash, friend_code, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		username, passwordHash, friendCode, now(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			if taken, _ := db.UsernameExists(ctx, username); taken {
				return nil, apperr.ErrUsernameTaken
			}
			return nil, apperr.Wrap(apperr.CodeConflict, "friend code collision", err)
		}
		return nil, errors.Wrap(err, "database.CreateUser")
	}
	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by their ID
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetUserByID")
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetUserByUsername")
	}
	return user, nil
}

// GetUserByFriendCode retrieves a user by their friend code
func (db *DB) GetUserByFriendCode(ctx context.Context, code string) (*models.User, error) {
	user, err := scanUser(db.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE friend_code = ?`, code))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetUserByFriendCode")
	}
	return user, nil
}

// UsernameExists reports whether the username is registered.
func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.queryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	return exists, errors.Wrap(err, "database.UsernameExists")
}

// FriendCodeExists reports whether the friend code is already assigned.
func (db *DB) FriendCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := db.queryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE friend_code = ?)`, code).Scan(&exists)
	return exists, errors.Wrap(err, "database.FriendCodeExists")
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, userID int64) error {
	_, err := db.exec(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, now(), userID)
	return errors.Wrap(err, "database.TouchLastLogin")
}

// SetAdmin grants or revokes the admin flag.
func (db *DB) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	result, err := db.exec(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, admin, userID)
	if err != nil {
		return errors.Wrap(err, "database.SetAdmin")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetAllUsers returns every user, newest first
func (db *DB) GetAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "database.GetAllUsers")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "database.GetAllUsers.Scan")
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}
