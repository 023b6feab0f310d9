package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"chuckafile/apperr"
	"chuckafile/metrics"
	"chuckafile/models"
)

// Friends is the relationship ledger. At most one row exists per
// unordered pair, enforced by the store's pair key index.
type Friends struct {
	store   FriendStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewFriends(store FriendStore, logger *slog.Logger, m *metrics.Metrics) *Friends {
	return &Friends{store: store, logger: logger.With("component", "ledger.friends"), metrics: m}
}

// Request creates a pending edge requester -> owner of targetCode.
func (f *Friends) Request(ctx context.Context, requesterID int64, targetCode string) (friendship *models.Friendship, target *models.User, err error) {
	defer func() { observe(f.metrics, "friends.request", err) }()

	code := strings.ToUpper(strings.TrimSpace(targetCode))
	if code == "" {
		return nil, nil, apperr.ErrFriendCodeNotFound
	}

	target, err = f.store.GetUserByFriendCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperr.ErrFriendCodeNotFound
		}
		return nil, nil, err
	}
	if target.ID == requesterID {
		return nil, nil, apperr.ErrSelfReference
	}

	if err := f.existingEdge(ctx, requesterID, target.ID); err != nil {
		return nil, nil, err
	}

	friendship, err = f.store.CreateFriendRequest(ctx, requesterID, target.ID)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeConflict) {
			// Lost a race with a request over the same pair.
			if edgeErr := f.existingEdge(ctx, requesterID, target.ID); edgeErr != nil {
				return nil, nil, edgeErr
			}
			return nil, nil, apperr.ErrRequestPending
		}
		return nil, nil, err
	}

	f.logger.Info("friend request created", "requester", requesterID, "target", target.ID)
	return friendship, target, nil
}

// existingEdge returns the conflict describing an edge over the pair, or
// nil if there is none.
func (f *Friends) existingEdge(ctx context.Context, a, b int64) error {
	existing, err := f.store.GetFriendship(ctx, a, b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if existing.Status == models.FriendStatusAccepted {
		return apperr.ErrAlreadyFriends
	}
	return apperr.ErrRequestPending
}

// Accept flips the pending edge requester -> accepter. Only the target of
// a request can accept it.
func (f *Friends) Accept(ctx context.Context, accepterID, requesterID int64) (err error) {
	defer func() { observe(f.metrics, "friends.accept", err) }()

	if err := f.store.AcceptFriendRequest(ctx, requesterID, accepterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrFriendRequestMissing
		}
		return err
	}
	f.logger.Info("friend request accepted", "requester", requesterID, "accepter", accepterID)
	return nil
}

// Reject deletes the pending edge requester -> rejecter if there is one.
func (f *Friends) Reject(ctx context.Context, rejecterID, requesterID int64) (err error) {
	defer func() { observe(f.metrics, "friends.reject", err) }()
	return f.store.DeleteFriendRequest(ctx, requesterID, rejecterID)
}

// Unfriend removes an accepted friendship regardless of who requested it.
func (f *Friends) Unfriend(ctx context.Context, userID, friendID int64) (err error) {
	defer func() { observe(f.metrics, "friends.unfriend", err) }()

	if err := f.store.DeleteFriendship(ctx, userID, friendID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrFriendshipMissing
		}
		return err
	}
	f.logger.Info("friendship removed", "user", userID, "friend", friendID)
	return nil
}

func (f *Friends) ListAccepted(ctx context.Context, userID int64) ([]models.User, error) {
	friends, err := f.store.GetFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if friends == nil {
		friends = []models.User{}
	}
	return friends, nil
}

func (f *Friends) ListPendingIncoming(ctx context.Context, userID int64) ([]models.FriendRequest, error) {
	requests, err := f.store.GetPendingFriendRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	return requests, nil
}

func (f *Friends) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	return f.store.AreFriends(ctx, a, b)
}
