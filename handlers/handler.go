package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"chuckafile/apperr"
	"chuckafile/auth"
	"chuckafile/ledger"
	"chuckafile/metrics"
	"chuckafile/middleware"
	"chuckafile/models"
	"chuckafile/realtime"
	"chuckafile/respond"
)

// UserStore is the principal store behind the auth endpoints
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash, friendCode string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	FriendCodeExists(ctx context.Context, code string) (bool, error)
	TouchLastLogin(ctx context.Context, userID int64) error
	GetAllUsers(ctx context.Context) ([]models.User, error)
}

// Options holds the request limits the handlers enforce
type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	WSRatePerSec   float64
	WSRateBurst    int
}

// Handler serves every HTTP and websocket endpoint
type Handler struct {
	users    UserStore
	friends  *ledger.Friends
	convs    *ledger.Conversations
	hub      *realtime.Hub
	tokens   *auth.Tokens
	auth     *middleware.Auth
	resp     *respond.Writer
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     Options
	origins  map[string]bool
}

// Deps bundles what New needs
type Deps struct {
	Users    UserStore
	Friends  *ledger.Friends
	Convs    *ledger.Conversations
	Hub      *realtime.Hub
	Tokens   *auth.Tokens
	Auth     *middleware.Auth
	Response *respond.Writer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Options  Options
}

func New(d Deps) *Handler {
	origins := make(map[string]bool, len(d.Options.AllowedOrigins))
	for _, o := range d.Options.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Handler{
		users:    d.Users,
		friends:  d.Friends,
		convs:    d.Convs,
		hub:      d.Hub,
		tokens:   d.Tokens,
		auth:     d.Auth,
		resp:     d.Response,
		validate: validate,
		logger:   d.Logger.With("component", "handlers"),
		metrics:  d.Metrics,
		opts:     d.Options,
		origins:  origins,
	}
}

// decode reads a JSON body into v and runs its validate tags.
func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeBadRequest, "Invalid request body", err)
	}
	return h.check(v)
}

func (h *Handler) check(v interface{}) error {
	if err := h.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return apperr.Wrap(apperr.CodeBadRequest, validationMessage(fieldErrs[0]), err)
		}
		return apperr.Wrap(apperr.CodeBadRequest, "Invalid request", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be a valid id", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// pathID parses a positive integer route variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest(fmt.Sprintf("%s is required", name))
	}
	return id, nil
}

// currentUser returns the principal set by the auth middleware.
func currentUser(r *http.Request) *models.User {
	return middleware.GetUserFromContext(r)
}

func (h *Handler) userResponse(u *models.User) models.UserResponse {
	resp := u.ToResponse()
	resp.Online = h.hub.IsOnline(u.ID)
	return resp
}

// refreshHint is the refresh-friends payload. The event carries no data;
// clients refetch their friend lists over REST.
var refreshHint = struct{}{}

// notifyFriends tells both sides of a relationship change to reload.
func (h *Handler) notifyFriends(userIDs ...int64) {
	h.hub.PublishAll(realtime.EventRefreshFriends, refreshHint, userIDs...)
}
