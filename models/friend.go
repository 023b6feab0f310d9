package models

import (
	"fmt"
	"time"
)

// FriendStatus represents the status of a friend request
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friendship is a directed edge from the requester (UserID) to the
// target (FriendID). PairKey is the same for both directions.
type Friendship struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"userId"`
	FriendID  int64        `json:"friendId"`
	Status    FriendStatus `json:"status"`
	PairKey   string       `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
}

// FriendRequest represents an incoming friend request
type FriendRequest struct {
	From      FriendSummary `json:"from"`
	CreatedAt time.Time     `json:"createdAt"`
}

// PairKey canonicalizes an unordered pair of user ids so that a->b and
// b->a produce the same key.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}
