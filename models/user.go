package models

import "time"

// User represents a registered account
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Never send password hash in JSON
	FriendCode   string     `json:"friendCode"`
	IsAdmin      bool       `json:"isAdmin"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// UserResponse is the safe version of User for API responses
type UserResponse struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	FriendCode string    `json:"friendCode"`
	IsAdmin    bool      `json:"isAdmin"`
	CreatedAt  time.Time `json:"createdAt"`
	Online     bool      `json:"online"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		FriendCode: u.FriendCode,
		IsAdmin:    u.IsAdmin,
		CreatedAt:  u.CreatedAt,
	}
}

// FriendSummary is the public face of a friend: id, username and code.
type FriendSummary struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	FriendCode string `json:"friendCode"`
}

// Summary trims a user down to what friends may see.
func (u *User) Summary() FriendSummary {
	return FriendSummary{ID: u.ID, Username: u.Username, FriendCode: u.FriendCode}
}
