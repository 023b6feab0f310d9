package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"chuckafile/apperr"
	"chuckafile/auth"
	"chuckafile/models"
	"chuckafile/respond"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup loads the principal named by a token
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Auth resolves bearer tokens to users
type Auth struct {
	tokens *auth.Tokens
	users  UserLookup
	resp   *respond.Writer
}

func NewAuth(tokens *auth.Tokens, users UserLookup, resp *respond.Writer) *Auth {
	return &Auth{tokens: tokens, users: users, resp: resp}
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter used by websocket clients.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate verifies the request's token and loads its user
func (a *Auth) Authenticate(r *http.Request) (*models.User, error) {
	claims, err := a.tokens.Verify(bearerToken(r))
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Require rejects requests without a valid token and adds the user to
// the request context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Authenticate(r)
		if err != nil {
			a.resp.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin is Require plus the admin flag.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := GetUserFromContext(r); user == nil || !user.IsAdmin {
			a.resp.Error(w, r, apperr.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// WithUser stores the user in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
