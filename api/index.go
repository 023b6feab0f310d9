// Package api assembles the HTTP surface: routes, shared middleware and
// the server lifecycle.
package api

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chuckafile/handlers"
	"chuckafile/metrics"
	"chuckafile/middleware"
	"chuckafile/respond"
)

// Pinger reports store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries what the router needs besides the handlers
type RouterConfig struct {
	Auth           *middleware.Auth
	Store          Pinger
	Metrics        *metrics.Metrics
	Response       *respond.Writer
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter wires every route onto a gorilla/mux router
func NewRouter(h *handlers.Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.SecureHeaders, observe(cfg.Metrics, cfg.Logger))

	protected := func(f http.HandlerFunc) http.Handler { return cfg.Auth.Require(f) }

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", health(cfg.Store, cfg.Response)).Methods(http.MethodGet)

	authRoutes := api.PathPrefix("/auth").Subrouter()
	authRoutes.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	authRoutes.Handle("/verify", protected(h.Me)).Methods(http.MethodGet)

	users := api.PathPrefix("/users").Subrouter()
	users.Handle("/profile", protected(h.Me)).Methods(http.MethodGet)
	users.Handle("/all", cfg.Auth.RequireAdmin(http.HandlerFunc(h.AllUsers))).Methods(http.MethodGet)
	users.Handle("/friends", protected(h.GetFriends)).Methods(http.MethodGet)
	users.Handle("/friend-requests", protected(h.GetFriendRequests)).Methods(http.MethodGet)
	users.Handle("/add-friend", protected(h.AddFriend)).Methods(http.MethodPost)
	users.Handle("/accept-friend", protected(h.AcceptFriend)).Methods(http.MethodPost)
	users.Handle("/reject-friend", protected(h.RejectFriend)).Methods(http.MethodPost)
	users.Handle("/unfriend", protected(h.Unfriend)).Methods(http.MethodPost)

	messages := api.PathPrefix("/messages").Subrouter()
	messages.Handle("/send", protected(h.SendMessage)).Methods(http.MethodPost)
	messages.Handle("/conversation/{friendId}", protected(h.GetConversation)).Methods(http.MethodGet)
	messages.Handle("/conversations", protected(h.GetConversations)).Methods(http.MethodGet)

	files := api.PathPrefix("/files").Subrouter()
	files.Handle("/upload", protected(h.UploadFile)).Methods(http.MethodPost)
	files.Handle("/download/{fileId}", protected(h.DownloadFile)).Methods(http.MethodGet)
	files.Handle("/conversation/{friendId}", protected(h.ConversationFiles)).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cfg.Response.JSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Endpoint not found",
		})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cfg.Response.JSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false,
			"message": "Method not allowed",
		})
	})

	// CORS sits outside the router so preflight requests never reach
	// method matching.
	return middleware.CORS(cfg.AllowedOrigins)(r)
}

func health(store Pinger, resp *respond.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "OK", http.StatusOK
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				status, code = "DEGRADED", http.StatusServiceUnavailable
			}
		}
		resp.JSON(w, code, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// statusRecorder captures the response status. It passes Hijack through
// so websocket upgrades still work behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// observe logs each request and records it in the HTTP metrics under its
// route template.
func observe(m *metrics.Metrics, logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			elapsed := time.Since(start)
			m.ObserveHTTP(route, r.Method, rec.status, elapsed)
			logger.Debug("request", "method", r.Method, "route", route, "status", rec.status, "duration", elapsed)
		})
	}
}
