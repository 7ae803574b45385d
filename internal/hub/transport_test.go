package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"focusflow/backend/internal/hub"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/repository"
	"focusflow/backend/internal/service"
)

type wsClient struct {
	conn    *websocket.Conn
	decoder *json.Decoder
	encoder *json.Encoder
}

func dialWS(t *testing.T, server *httptest.Server, token string) *wsClient {
	t.Helper()
	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "?token=" + token
	conn, err := websocket.Dial(wsURL, "", "http://localhost/")
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return &wsClient{
		conn:    conn,
		decoder: json.NewDecoder(conn),
		encoder: json.NewEncoder(conn),
	}
}

func (c *wsClient) sendFrame(t *testing.T, frameType, requestID string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, c.encoder.Encode(hub.Frame{Type: frameType, RequestID: requestID, Payload: raw}))
}

func (c *wsClient) readFrame(t *testing.T) hub.Frame {
	t.Helper()
	var frame hub.Frame
	require.NoError(t, c.decoder.Decode(&frame))
	return frame
}

func newTransportServer(t *testing.T) (*hubFixture, *httptest.Server, *service.AuthService) {
	t.Helper()
	f := newHubFixture(t)
	authService := service.NewAuthService(repository.NewUserRepository(f.db), "test-secret", time.Hour)
	server := httptest.NewServer(hub.Handler(f.hub, authService))
	t.Cleanup(server.Close)
	return f, server, authService
}

func registerToken(t *testing.T, authService *service.AuthService, email string) (string, string) {
	t.Helper()
	result, apiErr := authService.Register(context.Background(), email, "123456")
	require.Nil(t, apiErr)
	return result.User.ID, result.Token
}

func TestHandlerRejectsMissingOrBadToken(t *testing.T) {
	_, server, _ := newTransportServer(t)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL + "?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketJoinAndCommandRoundTrip(t *testing.T) {
	f, server, authService := newTransportServer(t)
	owner, token := registerToken(t, authService, "socket@example.com")
	ctx := context.Background()

	created, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)

	client := dialWS(t, server, token)

	client.sendFrame(t, "session.join", "req-1", map[string]string{"sessionId": created.ID})

	// Join pushes the snapshot first, then the ack.
	state := client.readFrame(t)
	require.Equal(t, "session.state", state.Type)
	view := decodeSnapshot(t, state)
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, model.StateIdle, view.State)

	joined := client.readFrame(t)
	assert.Equal(t, "session.joined", joined.Type)
	assert.Equal(t, "req-1", joined.RequestID)

	// Drive the session over the socket.
	client.sendFrame(t, "session.start", "req-2", map[string]string{"sessionId": created.ID})

	ack := client.readFrame(t)
	require.Equal(t, "session.ack", ack.Type)
	assert.Equal(t, "req-2", ack.RequestID)

	broadcast := client.readFrame(t)
	require.Equal(t, "session.state", broadcast.Type)
	view = decodeSnapshot(t, broadcast)
	assert.Equal(t, model.StateWorking, view.State)
	assert.Equal(t, 1, view.CurrentCycle)
}

func TestSocketCommandErrorsGoOnlyToInitiator(t *testing.T) {
	f, server, authService := newTransportServer(t)
	owner, token := registerToken(t, authService, "errors@example.com")
	ctx := context.Background()

	created, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)

	client := dialWS(t, server, token)

	// Pausing an idle session is an invalid transition.
	client.sendFrame(t, "session.pause", "req-1", map[string]string{"sessionId": created.ID})

	frame := client.readFrame(t)
	require.Equal(t, "session.error", frame.Type)
	assert.Equal(t, "req-1", frame.RequestID)
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "invalid_state", payload.Code)
}

func TestSocketRejectsUnknownFrameType(t *testing.T) {
	_, server, authService := newTransportServer(t)
	_, token := registerToken(t, authService, "unknown@example.com")

	client := dialWS(t, server, token)
	client.sendFrame(t, "session.destroy", "req-1", map[string]string{"sessionId": "x"})

	frame := client.readFrame(t)
	require.Equal(t, "session.error", frame.Type)
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "unsupported_frame", payload.Code)
}

func TestConnectPushesSnapshotOverSocket(t *testing.T) {
	f, server, authService := newTransportServer(t)
	owner, token := registerToken(t, authService, "reconnect@example.com")
	ctx := context.Background()

	created, apiErr := f.svc.CreateDefault(ctx, owner)
	require.Nil(t, apiErr)
	_, apiErr = f.svc.Start(ctx, owner, created.ID)
	require.Nil(t, apiErr)

	// A fresh connection hears about the active session without asking.
	client := dialWS(t, server, token)
	frame := client.readFrame(t)
	require.Equal(t, "session.state", frame.Type)
	view := decodeSnapshot(t, frame)
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, model.StateWorking, view.State)
}
