package database

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"

	"chuckafile/models"
)

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var text sql.NullString
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &text, &msg.Type,
		&msg.CreatedAt, &msg.SenderUsername); err != nil {
		return nil, err
	}
	if text.Valid {
		msg.Text = &text.String
	}
	return msg, nil
}

// CreateMessage appends a message and returns it with the sender's username
func (db *DB) CreateMessage(ctx context.Context, senderID, recipientID int64, text *string, msgType models.MessageType) (*models.Message, error) {
	var id int64
	err := db.queryRow(ctx,
		`INSERT INTO messages (sender_id, recipient_id, message_text, message_type, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		senderID, recipientID, text, msgType, now(),
	).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "database.CreateMessage")
	}
	return db.GetMessageByID(ctx, id)
}

// GetMessageByID retrieves a message by its ID
func (db *DB) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := scanMessage(db.queryRow(ctx,
		`SELECT m.id, m.sender_id, m.recipient_id, m.message_text, m.message_type, m.created_at, u.username
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.id = ?`,
		id,
	))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetMessageByID")
	}
	return msg, nil
}

// GetMessagesBetweenUsers pages through the pair's history newest first and
// returns the page in chronological order.
func (db *DB) GetMessagesBetweenUsers(ctx context.Context, userID1, userID2 int64, limit, offset int) ([]models.Message, error) {
	rows, err := db.query(ctx,
		`SELECT m.id, m.sender_id, m.recipient_id, m.message_text, m.message_type, m.created_at, u.username
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE (m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?`,
		userID1, userID2, userID2, userID1, limit, offset,
	)
	if err != nil {
		return nil, errors.Wrap(err, "database.GetMessagesBetweenUsers")
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "database.GetMessagesBetweenUsers.Scan")
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// GetLastMessage returns the newest message between two users, or
// sql.ErrNoRows if they never exchanged one.
func (db *DB) GetLastMessage(ctx context.Context, userID1, userID2 int64) (*models.Message, error) {
	msg, err := scanMessage(db.queryRow(ctx,
		`SELECT m.id, m.sender_id, m.recipient_id, m.message_text, m.message_type, m.created_at, u.username
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE (m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`,
		userID1, userID2, userID2, userID1,
	))
	if err != nil {
		return nil, errors.Wrap(err, "database.GetLastMessage")
	}
	return msg, nil
}

// GetConversations lists every accepted friend with the latest message
// exchanged. Friends with history come first, newest activity first.
func (db *DB) GetConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	friends, err := db.GetFriends(ctx, userID)
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(friends))
	for i := range friends {
		conv := models.Conversation{Friend: friends[i].Summary()}

		last, err := db.GetLastMessage(ctx, userID, friends[i].ID)
		switch {
		case err == nil:
			conv.LastMessage = last
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage, conversations[j].LastMessage
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return conversations, nil
}
