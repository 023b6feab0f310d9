// Package respond writes the JSON envelope shared by every endpoint:
// {"success": true, ...} on success and
// {"success": false, "message", "code"} on failure.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chuckafile/apperr"
)

// Writer renders responses. DevMode adds the underlying error text to
// failure bodies.
type Writer struct {
	Logger  *slog.Logger
	DevMode bool
}

// JSON writes v with the given status.
func (rw *Writer) JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && rw.Logger != nil {
		rw.Logger.Warn("failed to write response", "error", err)
	}
}

// OK writes {"success": true} merged with fields.
func (rw *Writer) OK(w http.ResponseWriter, status int, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	rw.JSON(w, status, body)
}

// Error translates err into its status and failure body. Errors without
// a code are logged and reported as a generic internal error.
func (rw *Writer) Error(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	message := "Internal server error"
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError && rw.Logger != nil {
		rw.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	body := map[string]interface{}{
		"success": false,
		"message": message,
		"code":    code,
	}
	if rw.DevMode {
		body["error"] = err.Error()
	}
	rw.JSON(w, status, body)
}
