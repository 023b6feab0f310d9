package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"chuckafile/apperr"
	"chuckafile/models"
)

const friendshipColumns = `id, user_id, friend_id, status, pair_key, created_at`

func scanFriendship(row interface{ Scan(...any) error }) (*models.Friendship, error) {
	f := &models.Friendship{}
	var pairKey sql.NullString
	if err := row.Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &pairKey, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.PairKey = pairKey.String
	return f, nil
}

// CreateFriendRequest inserts a pending edge requester -> target. The
// pair_key unique index turns a second row for the same unordered pair,
// in either direction, into a conflict.
func (db *DB) CreateFriendRequest(ctx context.Context, requesterID, targetID int64) (*models.Friendship, error) {
	var id int64
	err := db.queryRow(ctx,
		`INSERT INTO friendships (user_id, friend_id, status, pair_key, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		requesterID, targetID, models.FriendStatusPending, models.PairKey(requesterID, targetID), now(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.CodeConflict, "Friend request already pending", err)
		}
		return nil, errors.Wrap(err, "database.CreateFriendRequest")
	}

	f, err := scanFriendship(db.queryRow(ctx,
		`SELECT `+friendshipColumns+` FROM friendships WHERE id = ?`, id))
	if err != nil {
		return nil, errors.Wrap(err, "database.CreateFriendRequest.Reload")
	}
	return f, nil
}

// GetFriendship retrieves the edge between two users in either direction
func (db *DB) GetFriendship(ctx context.Context, a, b int64) (*models.Friendship, error) {
	f, err := scanFriendship(db.queryRow(ctx,
		`SELECT `+friendshipColumns+` FROM friendships WHERE pair_key = ?`,
		models.PairKey(a, b),
	))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetFriendship")
	}
	return f, nil
}

// AcceptFriendRequest flips the pending edge requester -> accepter to
// accepted. sql.ErrNoRows means there was no such pending edge.
func (db *DB) AcceptFriendRequest(ctx context.Context, requesterID, accepterID int64) error {
	result, err := db.exec(ctx,
		`UPDATE friendships SET status = ? WHERE user_id = ? AND friend_id = ? AND status = ?`,
		models.FriendStatusAccepted, requesterID, accepterID, models.FriendStatusPending,
	)
	if err != nil {
		return errors.Wrap(err, "database.AcceptFriendRequest")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFriendRequest removes the pending edge requester -> rejecter, if any
func (db *DB) DeleteFriendRequest(ctx context.Context, requesterID, rejecterID int64) error {
	_, err := db.exec(ctx,
		`DELETE FROM friendships WHERE user_id = ? AND friend_id = ? AND status = ?`,
		requesterID, rejecterID, models.FriendStatusPending,
	)
	return errors.Wrap(err, "database.DeleteFriendRequest")
}

// DeleteFriendship removes an accepted friendship whichever way it was
// stored. sql.ErrNoRows means the two were not friends.
func (db *DB) DeleteFriendship(ctx context.Context, a, b int64) error {
	result, err := db.exec(ctx,
		`DELETE FROM friendships WHERE pair_key = ? AND status = ?`,
		models.PairKey(a, b), models.FriendStatusAccepted,
	)
	if err != nil {
		return errors.Wrap(err, "database.DeleteFriendship")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AreFriends reports whether an accepted edge exists over the pair
func (db *DB) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := db.queryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE pair_key = ? AND status = ?)`,
		models.PairKey(a, b), models.FriendStatusAccepted,
	).Scan(&exists)
	return exists, errors.Wrap(err, "database.AreFriends")
}

// GetFriends retrieves all accepted friends for a user
func (db *DB) GetFriends(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := db.query(ctx,
		`SELECT DISTINCT u.id, u.username, u.password_hash, u.friend_code, u.is_admin, u.created_at, u.last_login
		FROM friendships f
		JOIN users u ON (
			(f.user_id = ? AND u.id = f.friend_id) OR
			(f.friend_id = ? AND u.id = f.user_id)
		)
		WHERE (f.user_id = ? OR f.friend_id = ?) AND f.status = ?
		ORDER BY u.username`,
		userID, userID, userID, userID, models.FriendStatusAccepted,
	)
	if err != nil {
		return nil, errors.Wrap(err, "database.GetFriends")
	}
	defer rows.Close()

	var friends []models.User
	seen := make(map[int64]bool)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "database.GetFriends.Scan")
		}
		if !seen[user.ID] {
			friends = append(friends, *user)
			seen[user.ID] = true
		}
	}
	return friends, rows.Err()
}

// GetPendingFriendRequests retrieves requests addressed to userID, newest first
func (db *DB) GetPendingFriendRequests(ctx context.Context, userID int64) ([]models.FriendRequest, error) {
	rows, err := db.query(ctx,
		`SELECT u.id, u.username, u.friend_code, f.created_at
		FROM friendships f
		JOIN users u ON f.user_id = u.id
		WHERE f.friend_id = ? AND f.status = ?
		ORDER BY f.created_at DESC, f.id DESC`,
		userID, models.FriendStatusPending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "database.GetPendingFriendRequests")
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var req models.FriendRequest
		if err := rows.Scan(&req.From.ID, &req.From.Username, &req.From.FriendCode, &req.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "database.GetPendingFriendRequests.Scan")
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
