package handlers

import (
	"fmt"
	"net/http"

	"chuckafile/models"
)

type addFriendRequest struct {
	FriendCode string `json:"friendCode" validate:"required"`
}

type requesterRequest struct {
	RequesterID int64 `json:"requesterId" validate:"required,gt=0"`
}

type unfriendRequest struct {
	FriendID int64 `json:"friendId" validate:"required,gt=0"`
}

// GetFriends returns the user's accepted friends
func (h *Handler) GetFriends(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	friends, err := h.friends.ListAccepted(r.Context(), user.ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	out := make([]models.UserResponse, 0, len(friends))
	for i := range friends {
		out = append(out, h.userResponse(&friends[i]))
	}
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"friends": out})
}

// GetFriendRequests returns pending requests addressed to the user
func (h *Handler) GetFriendRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.friends.ListPendingIncoming(r.Context(), currentUser(r).ID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// AddFriend sends a friend request by friend code
func (h *Handler) AddFriend(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req addFriendRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	_, target, err := h.friends.Request(r.Context(), user.ID, req.FriendCode)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.notifyFriends(user.ID, target.ID)
	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Friend request sent to %s", target.Username),
		"friend":  target.Summary(),
	})
}

// AcceptFriend accepts a pending request from requesterId
func (h *Handler) AcceptFriend(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req requesterRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	if err := h.friends.Accept(r.Context(), user.ID, req.RequesterID); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.notifyFriends(user.ID, req.RequesterID)
	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("You are now friends with %s", h.usernameOf(r, req.RequesterID)),
	})
}

// RejectFriend drops a pending request from requesterId
func (h *Handler) RejectFriend(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req requesterRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	if err := h.friends.Reject(r.Context(), user.ID, req.RequesterID); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.notifyFriends(user.ID, req.RequesterID)
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"message": "Friend request rejected"})
}

// Unfriend removes an accepted friendship
func (h *Handler) Unfriend(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req unfriendRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	if err := h.friends.Unfriend(r.Context(), user.ID, req.FriendID); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.notifyFriends(user.ID, req.FriendID)
	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("You are no longer friends with %s", h.usernameOf(r, req.FriendID)),
	})
}

// usernameOf is only used for response text; a lookup failure falls back
// to a neutral name.
func (h *Handler) usernameOf(r *http.Request, id int64) string {
	u, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		return "this user"
	}
	return u.Username
}
