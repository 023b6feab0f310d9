package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chuckafile/config"
	"chuckafile/logging"
	"chuckafile/models"
)

type testServer struct {
	app *App
	srv *httptest.Server
}

type account struct {
	ID         int64
	Username   string
	FriendCode string
	Token      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DatabaseType:   config.DBTypeSQLite,
		DatabaseURL:    filepath.Join(dir, "chuckafile.db"),
		JwtSecret:      "test-secret",
		TokenTTL:       time.Hour,
		BlobBackend:    config.BlobBackendDisk,
		UploadDir:      filepath.Join(dir, "uploads"),
		MaxUploadBytes: 1 << 20,
		DevMode:        true,
		WSRatePerSec:   100,
		WSRateBurst:    100,
	}

	app, err := NewApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})
	return &testServer{app: app, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (ts *testServer) register(t *testing.T, username string) account {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status, body)

	user := body["user"].(map[string]interface{})
	return account{
		ID:         int64(user["id"].(float64)),
		Username:   username,
		FriendCode: user["friendCode"].(string),
		Token:      body["token"].(string),
	}
}

func (ts *testServer) befriend(t *testing.T, a, b account) {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/api/users/add-friend", a.Token, map[string]string{"friendCode": b.FriendCode})
	require.Equal(t, http.StatusOK, status, body)
	status, body = ts.do(t, http.MethodPost, "/api/users/accept-friend", b.Token, map[string]int64{"requesterId": a.ID})
	require.Equal(t, http.StatusOK, status, body)
}

func (ts *testServer) dial(t *testing.T, acct account) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + acct.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "join-room",
		"payload": map[string]int64{"userId": acct.ID},
	}))
	require.Eventually(t, func() bool { return ts.app.Hub.IsOnline(acct.ID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

type event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// nextEvent reads frames until one of the wanted type arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, want string) event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev
		}
	}
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body["status"])

	status, body = ts.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Endpoint not found", body["message"])
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	assert.Regexp(t, `^[A-Z0-9]{6}$`, alice.FriendCode)

	status, body := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "password": "password1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Username already exists", body["message"])

	status, body = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "password must be at least 6 characters long", body["message"])

	status, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "password1",
	})
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	status, body = ts.do(t, http.MethodGet, "/api/auth/verify", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user"].(map[string]interface{})["username"])

	status, _ = ts.do(t, http.MethodGet, "/api/users/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = ts.do(t, http.MethodGet, "/api/users/all", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	require.NoError(t, ts.app.DB.SetAdmin(context.Background(), alice.ID, true))
	status, body = ts.do(t, http.MethodGet, "/api/users/all", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["users"], 1)
}

func TestScenarioFriendshipAndRealtimeMessage(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	bobWS := ts.dial(t, bob)
	aliceWS := ts.dial(t, alice)

	status, body := ts.do(t, http.MethodPost, "/api/users/add-friend", alice.Token,
		map[string]string{"friendCode": strings.ToLower(bob.FriendCode)})
	require.Equal(t, http.StatusOK, status, body)
	nextEvent(t, bobWS, "refresh-friends")
	nextEvent(t, aliceWS, "refresh-friends")

	status, body = ts.do(t, http.MethodPost, "/api/users/add-friend", bob.Token,
		map[string]string{"friendCode": alice.FriendCode})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Friend request already pending", body["message"])

	status, body = ts.do(t, http.MethodGet, "/api/users/friend-requests", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	requests := body["requests"].([]interface{})
	require.Len(t, requests, 1)
	from := requests[0].(map[string]interface{})["from"].(map[string]interface{})
	assert.Equal(t, "alice", from["username"])

	status, _ = ts.do(t, http.MethodPost, "/api/users/accept-friend", alice.Token, map[string]int64{"requesterId": bob.ID})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.do(t, http.MethodPost, "/api/users/accept-friend", bob.Token, map[string]int64{"requesterId": alice.ID})
	require.Equal(t, http.StatusOK, status)
	nextEvent(t, aliceWS, "refresh-friends")

	for _, acct := range []account{alice, bob} {
		status, body = ts.do(t, http.MethodGet, "/api/users/friends", acct.Token, nil)
		require.Equal(t, http.StatusOK, status)
		friends := body["friends"].([]interface{})
		require.Len(t, friends, 1)
		friend := friends[0].(map[string]interface{})
		assert.NotEqual(t, acct.Username, friend["username"])
		assert.Equal(t, true, friend["online"])
	}

	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"type": "send-message",
		"payload": map[string]interface{}{
			"recipientId": bob.ID,
			"senderId":    alice.ID,
			"message":     "hi",
		},
	}))

	ev := nextEvent(t, bobWS, "new-message")
	var delivered models.Message
	require.NoError(t, json.Unmarshal(ev.Payload, &delivered))
	assert.Equal(t, "hi", *delivered.Text)
	assert.Equal(t, alice.ID, delivered.SenderID)
	nextEvent(t, aliceWS, "new-message")

	status, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/messages/conversation/%d", alice.ID), bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]interface{})
	assert.Equal(t, "hi", msg["text"])
	assert.Equal(t, "alice", msg["senderUsername"])
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, 50.0, pagination["limit"])
	assert.Equal(t, false, pagination["hasMore"])

	status, body = ts.do(t, http.MethodGet, "/api/messages/conversations", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["conversations"], 1)
}

func TestRealtimeRejectsForeignRoomAndNonFriends(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	aliceWS := ts.dial(t, alice)

	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"type":    "join-room",
		"payload": map[string]int64{"userId": bob.ID},
	}))
	ev := nextEvent(t, aliceWS, "message-error")
	assert.Contains(t, string(ev.Payload), "another user's room")
	assert.False(t, ts.app.Hub.IsOnline(bob.ID))

	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"type":    "send-message",
		"payload": map[string]interface{}{"recipientId": bob.ID, "message": "hi"},
	}))
	ev = nextEvent(t, aliceWS, "message-error")
	assert.Contains(t, string(ev.Payload), "only send messages to friends")

	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"type":    "send-message",
		"payload": map[string]interface{}{"recipientId": bob.ID, "senderId": bob.ID, "message": "hi"},
	}))
	ev = nextEvent(t, aliceWS, "message-error")
	assert.Contains(t, string(ev.Payload), "Sender does not match")
}

func TestWebSocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func (ts *testServer) upload(t *testing.T, token string, recipient int64, filename, content, message string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("recipientId", fmt.Sprint(recipient)))
	if message != "" {
		require.NoError(t, mw.WriteField("message", message))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/files/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return ts.send(t, req)
}

func (ts *testServer) download(t *testing.T, token string, fileID int64) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/files/download/%d", ts.srv.URL, fileID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestScenarioFileUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	carol := ts.register(t, "carol")

	status, body := ts.upload(t, alice.Token, bob.ID, "notes.txt", "hello bob", "here")
	assert.Equal(t, http.StatusForbidden, status, body)

	ts.befriend(t, alice, bob)

	status, body = ts.upload(t, alice.Token, bob.ID, "setup.EXE", "MZ", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "File type not allowed for security reasons", body["message"])

	status, body = ts.upload(t, alice.Token, bob.ID, "notes.txt", "hello bob", "here")
	require.Equal(t, http.StatusCreated, status, body)
	file := body["file"].(map[string]interface{})
	fileID := int64(file["id"].(float64))
	assert.Equal(t, "notes.txt", file["originalName"])
	assert.Equal(t, 9.0, file["size"])
	assert.True(t, strings.HasSuffix(file["filename"].(string), "-notes.txt"))

	rec, err := ts.app.DB.GetFileByID(ctx, fileID)
	require.NoError(t, err)
	require.NotNil(t, rec.LinkedMessageID)
	linked, err := ts.app.DB.GetMessageByID(ctx, *rec.LinkedMessageID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeFile, linked.Type)
	assert.Equal(t, "here", *linked.Text)

	status, _ = ts.download(t, carol.Token, fileID)
	assert.Equal(t, http.StatusForbidden, status)

	status, content := ts.download(t, bob.Token, fileID)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello bob", content)

	first, err := ts.app.DB.GetFileByID(ctx, fileID)
	require.NoError(t, err)
	require.NotNil(t, first.DownloadedAt)

	status, _ = ts.download(t, bob.Token, fileID)
	require.Equal(t, http.StatusOK, status)

	second, err := ts.app.DB.GetFileByID(ctx, fileID)
	require.NoError(t, err)
	assert.True(t, first.DownloadedAt.Equal(*second.DownloadedAt))

	status, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/files/conversation/%d", bob.ID), alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["files"], 1)

	require.NoError(t, ts.app.Blobs.Delete(ctx, rec.StorageKey))
	status, _ = ts.download(t, bob.Token, fileID)
	assert.Equal(t, http.StatusGone, status)
}

func TestScenarioUnfriendThenSendIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	ts.befriend(t, alice, bob)

	status, body := ts.do(t, http.MethodPost, "/api/messages/send", bob.Token,
		map[string]interface{}{"recipientId": alice.ID, "message": "still here?"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = ts.do(t, http.MethodPost, "/api/users/unfriend", alice.Token, map[string]int64{"friendId": bob.ID})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "You are no longer friends with bob", body["message"])

	status, body = ts.do(t, http.MethodPost, "/api/messages/send", bob.Token,
		map[string]interface{}{"recipientId": alice.ID, "message": "hello?"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "You can only send messages to friends", body["message"])

	status, _ = ts.do(t, http.MethodPost, "/api/users/unfriend", alice.Token, map[string]int64{"friendId": bob.ID})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(t, http.MethodPost, "/api/users/add-friend", bob.Token,
		map[string]string{"friendCode": alice.FriendCode})
	assert.Equal(t, http.StatusOK, status, body)
}

func TestSendMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")

	status, body := ts.do(t, http.MethodPost, "/api/messages/send", alice.Token, map[string]interface{}{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "recipientId is required", body["message"])

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/messages/send", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	status, body = ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/health", "", nil)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `chuckafile_http_requests_total{method="GET",route="/api/health",status="OK"}`)
}

func expectRefresh(t *testing.T, conns ...*websocket.Conn) {
	t.Helper()
	for _, conn := range conns {
		ev := nextEvent(t, conn, "refresh-friends")
		assert.JSONEq(t, `{}`, string(ev.Payload))
	}
}

func TestOnlyRealtimeSendFansOutMessages(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	aliceWS := ts.dial(t, alice)
	bobWS := ts.dial(t, bob)

	ts.befriend(t, alice, bob)
	expectRefresh(t, aliceWS, bobWS)
	expectRefresh(t, aliceWS, bobWS)

	status, body := ts.do(t, http.MethodPost, "/api/messages/send", alice.Token,
		map[string]interface{}{"recipientId": bob.ID, "message": "rest"})
	require.Equal(t, http.StatusCreated, status, body)
	status, body = ts.upload(t, alice.Token, bob.ID, "notes.txt", "hello bob", "upload")
	require.Equal(t, http.StatusCreated, status, body)

	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"type":    "send-message",
		"payload": map[string]interface{}{"recipientId": bob.ID, "message": "rt"},
	}))

	for _, conn := range []*websocket.Conn{bobWS, aliceWS} {
		ev := nextEvent(t, conn, "new-message")
		var delivered models.Message
		require.NoError(t, json.Unmarshal(ev.Payload, &delivered))
		assert.Equal(t, "rt", *delivered.Text)
	}

	// All three are stored even though only one was pushed.
	status, body = ts.do(t, http.MethodGet, fmt.Sprintf("/api/messages/conversation/%d", alice.ID), bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 3)
}

func TestRejectAndUnfriendRefreshBothSides(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	carol := ts.register(t, "carol")
	aliceWS := ts.dial(t, alice)
	bobWS := ts.dial(t, bob)
	carolWS := ts.dial(t, carol)

	status, body := ts.do(t, http.MethodPost, "/api/users/add-friend", carol.Token,
		map[string]string{"friendCode": alice.FriendCode})
	require.Equal(t, http.StatusOK, status, body)
	expectRefresh(t, aliceWS, carolWS)

	status, body = ts.do(t, http.MethodPost, "/api/users/reject-friend", alice.Token,
		map[string]int64{"requesterId": carol.ID})
	require.Equal(t, http.StatusOK, status, body)
	expectRefresh(t, aliceWS, carolWS)

	ts.befriend(t, alice, bob)
	expectRefresh(t, aliceWS, bobWS)
	expectRefresh(t, aliceWS, bobWS)

	status, body = ts.do(t, http.MethodPost, "/api/users/unfriend", bob.Token,
		map[string]int64{"friendId": alice.ID})
	require.Equal(t, http.StatusOK, status, body)
	expectRefresh(t, aliceWS, bobWS)

	status, body = ts.do(t, http.MethodGet, "/api/users/friends", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["friends"])
}
