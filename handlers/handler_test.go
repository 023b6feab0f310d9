package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chuckafile/apperr"
	"chuckafile/logging"
)

func newTestHandler() *Handler {
	return New(Deps{Logger: logging.Discard()})
}

func TestCheckUsesJSONFieldNames(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name string
		req  interface{}
		want string
	}{
		{"missing username", &registerRequest{Password: "secret1"}, "username is required"},
		{"short username", &registerRequest{Username: "al", Password: "secret1"}, "username must be at least 3 characters long"},
		{"long username", &registerRequest{Username: "abcdefghijklmnopqrstu", Password: "secret1"}, "username must be at most 20 characters long"},
		{"short password", &registerRequest{Username: "alice", Password: "123"}, "password must be at least 6 characters long"},
		{"bad message type", &sendMessageRequest{RecipientID: 2, Message: "hi", MessageType: "snap"}, "messageType must be one of: text file"},
		{"negative id", &requesterRequest{RequesterID: -1}, "requesterId must be a valid id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.check(tt.req)
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, apperr.CodeBadRequest))

			var appErr *apperr.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.want, appErr.Message)
		})
	}

	assert.NoError(t, h.check(&sendMessageRequest{RecipientID: 2, Message: "hi"}))
}

func TestPathID(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"fileId": "42"})
	id, err := pathID(r, "fileId")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"", "abc", "0", "-3"} {
		r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"fileId": raw})
		_, err := pathID(r, "fileId")
		assert.True(t, apperr.HasCode(err, apperr.CodeBadRequest), raw)
	}
}

func TestDetectMimeType(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "picture")
	require.NoError(t, err)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	file, header, err := req.FormFile("file")
	require.NoError(t, err)
	defer file.Close()

	mimeType, err := detectMimeType(file, header)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	// The sniff must leave the file rewound for storage.
	head := make([]byte, len(png))
	_, err = file.Read(head)
	require.NoError(t, err)
	assert.Equal(t, png, head)

	header.Header.Set("Content-Type", "text/csv")
	mimeType, err = detectMimeType(file, header)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", mimeType)
}
