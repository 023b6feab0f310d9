// Package ledger holds the authoritative friend and conversation
// operations. Every check that decides whether a write is allowed lives
// here; callers only translate the returned apperr codes.
package ledger

import (
	"context"
	"time"

	"chuckafile/apperr"
	"chuckafile/metrics"
	"chuckafile/models"
)

// FriendStore is the relational state the relationship ledger needs.
type FriendStore interface {
	GetUserByFriendCode(ctx context.Context, code string) (*models.User, error)
	GetFriendship(ctx context.Context, a, b int64) (*models.Friendship, error)
	CreateFriendRequest(ctx context.Context, requesterID, targetID int64) (*models.Friendship, error)
	AcceptFriendRequest(ctx context.Context, requesterID, accepterID int64) error
	DeleteFriendRequest(ctx context.Context, requesterID, rejecterID int64) error
	DeleteFriendship(ctx context.Context, a, b int64) error
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	GetFriends(ctx context.Context, userID int64) ([]models.User, error)
	GetPendingFriendRequests(ctx context.Context, userID int64) ([]models.FriendRequest, error)
}

// ConversationStore is the relational state the conversation ledger needs.
type ConversationStore interface {
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	CreateMessage(ctx context.Context, senderID, recipientID int64, text *string, msgType models.MessageType) (*models.Message, error)
	GetMessagesBetweenUsers(ctx context.Context, userID1, userID2 int64, limit, offset int) ([]models.Message, error)
	GetConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
	CreateFileRecord(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error)
	GetFileByID(ctx context.Context, id int64) (*models.FileRecord, error)
	MarkFileDownloaded(ctx context.Context, id int64, at time.Time) (bool, error)
	GetFilesBetweenUsers(ctx context.Context, userID1, userID2 int64) ([]models.FileRecord, error)
}

func observe(m *metrics.Metrics, operation string, err error) {
	result := "ok"
	if err != nil {
		result = string(apperr.CodeOf(err))
	}
	m.ObserveLedger(operation, result)
}
