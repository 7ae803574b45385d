package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/model"
)

const maxDecodeErrorsPerConn = 3

// Authorizer resolves connection credentials to an owner id. The hub
// never parses credentials itself.
type Authorizer interface {
	ParseToken(token string) (string, *apperrors.APIError)
}

type joinPayload struct {
	SessionID string `json:"sessionId"`
}

type commandPayload struct {
	SessionID string `json:"sessionId"`
}

type ackPayload struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler upgrades authenticated requests to a hub connection and runs
// the frame loop until the client goes away. The token travels in the
// Authorization header or a token query parameter (browsers cannot set
// headers on websocket dials).
func Handler(h *Hub, auth Authorizer) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		ownerID, _ := conn.Request().Context().Value(ownerIDContextKey{}).(string)
		if ownerID == "" {
			_ = conn.Close()
			return
		}
		serveConn(conn, h, ownerID)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ownerID, apiErr := auth.ParseToken(token)
		if apiErr != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ownerIDContextKey{}, ownerID)
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ownerIDContextKey struct{}

func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func serveConn(conn *websocket.Conn, h *Hub, ownerID string) {
	defer func() {
		_ = conn.Close()
	}()

	peer := NewPeer(uuid.NewString(), ownerID, conn)
	ctx := conn.Request().Context()

	h.Connect(ctx, peer)
	defer h.Disconnect(peer)

	decoder := json.NewDecoder(conn)
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = sendError(peer, "", apperrors.BadRequest("invalid_frame", "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		dispatchFrame(ctx, h, peer, frame)
	}
}

func dispatchFrame(ctx context.Context, h *Hub, peer *Peer, frame Frame) {
	switch frame.Type {
	case "session.join":
		var payload joinPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.SessionID == "" {
			_ = sendError(peer, frame.RequestID, apperrors.BadRequest("invalid_payload", "sessionId is required"))
			return
		}
		if apiErr := h.Join(ctx, peer, payload.SessionID); apiErr != nil {
			_ = sendError(peer, frame.RequestID, apiErr)
			return
		}
		_ = sendAck(peer, frame.RequestID, frameTypeJoined, payload.SessionID)

	case "session.leave":
		var payload joinPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.SessionID == "" {
			_ = sendError(peer, frame.RequestID, apperrors.BadRequest("invalid_payload", "sessionId is required"))
			return
		}
		h.Leave(peer, payload.SessionID)
		_ = sendAck(peer, frame.RequestID, frameTypeLeft, payload.SessionID)

	case "session.start", "session.pause", "session.resume", "session.stop", "session.reset":
		handleCommandFrame(ctx, h, peer, frame)

	default:
		_ = sendError(peer, frame.RequestID, apperrors.BadRequest("unsupported_frame", "unsupported frame type"))
	}
}

// handleCommandFrame lets any live connection drive its owner's
// session, mirroring the REST command surface: mutate, ack the caller,
// broadcast the new state to the room.
func handleCommandFrame(ctx context.Context, h *Hub, peer *Peer, frame Frame) {
	var payload commandPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.SessionID == "" {
		_ = sendError(peer, frame.RequestID, apperrors.BadRequest("invalid_payload", "sessionId is required"))
		return
	}

	var session *model.Session
	var apiErr *apperrors.APIError
	switch frame.Type {
	case "session.start":
		session, apiErr = h.sessions.Start(ctx, peer.OwnerID(), payload.SessionID)
	case "session.pause":
		session, apiErr = h.sessions.Pause(ctx, peer.OwnerID(), payload.SessionID)
	case "session.resume":
		session, apiErr = h.sessions.Resume(ctx, peer.OwnerID(), payload.SessionID)
	case "session.stop":
		session, apiErr = h.sessions.Stop(ctx, peer.OwnerID(), payload.SessionID)
	case "session.reset":
		session, apiErr = h.sessions.Reset(ctx, peer.OwnerID(), payload.SessionID)
	}
	if apiErr != nil {
		// A failed command is reported only to its initiating
		// connection, never broadcast.
		_ = sendError(peer, frame.RequestID, apiErr)
		return
	}

	_ = sendAck(peer, frame.RequestID, frameTypeAck, session.ID)
	h.Broadcast(session)
}

func sendAck(peer *Peer, requestID, frameType, sessionID string) error {
	payload, err := json.Marshal(ackPayload{Status: "ok", SessionID: sessionID})
	if err != nil {
		return err
	}
	return peer.send(Frame{Type: frameType, RequestID: requestID, Payload: payload})
}

func sendError(peer *Peer, requestID string, apiErr *apperrors.APIError) error {
	payload, err := json.Marshal(errorPayload{Code: apiErr.Code, Message: apiErr.Message})
	if err != nil {
		return err
	}
	return peer.send(Frame{Type: frameTypeError, RequestID: requestID, Payload: payload})
}
