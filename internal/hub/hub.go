// Package hub tracks live connections per user and fans session
// snapshots out to every connection observing a session. The registry
// is process-local and never a system of record: losing it on restart
// is fine because clients resync on reconnect.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/service"
)

const (
	frameTypeState  = "session.state"
	frameTypeJoined = "session.joined"
	frameTypeLeft   = "session.left"
	frameTypeAck    = "session.ack"
	frameTypeError  = "session.error"
)

type Hub struct {
	sessions *service.SessionService
	logger   *log.Logger

	mu           sync.Mutex
	connsByOwner map[string]map[*Peer]struct{}
	rooms        map[string]map[*Peer]struct{}
	peerRooms    map[*Peer]map[string]struct{}
}

func New(sessions *service.SessionService, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		sessions:     sessions,
		logger:       logger,
		connsByOwner: make(map[string]map[*Peer]struct{}),
		rooms:        make(map[string]map[*Peer]struct{}),
		peerRooms:    make(map[*Peer]map[string]struct{}),
	}
}

// Connect registers an authenticated connection and immediately pushes
// the owner's active session, if any, to that connection alone. That
// single message repairs a reconnecting client's view without polling.
func (h *Hub) Connect(ctx context.Context, peer *Peer) {
	h.mu.Lock()
	conns, ok := h.connsByOwner[peer.ownerID]
	if !ok {
		conns = make(map[*Peer]struct{})
		h.connsByOwner[peer.ownerID] = conns
	}
	conns[peer] = struct{}{}
	h.mu.Unlock()

	session, apiErr := h.sessions.FindWorking(ctx, peer.ownerID)
	if apiErr != nil {
		h.logger.Error("failed to load active session on connect", "conn", peer.ID(), "owner", peer.OwnerID(), "err", apiErr.Message)
		return
	}
	if session == nil {
		return
	}
	h.sendState(peer, session)
}

// Disconnect removes the connection from the registry and from every
// room it had joined.
func (h *Hub) Disconnect(peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.connsByOwner[peer.ownerID]; ok {
		delete(conns, peer)
		if len(conns) == 0 {
			delete(h.connsByOwner, peer.ownerID)
		}
	}
	for sessionID := range h.peerRooms[peer] {
		h.removeFromRoomLocked(peer, sessionID)
	}
	delete(h.peerRooms, peer)
}

// Join subscribes the connection to a session's room after verifying
// the connection's owner matches the session's owner, or that the
// session was explicitly shared for read-only observation. The joining
// connection gets a status snapshot immediately.
func (h *Hub) Join(ctx context.Context, peer *Peer, sessionID string) *apperrors.APIError {
	session, apiErr := h.sessions.FindOne(ctx, peer.ownerID, sessionID)
	if apiErr != nil {
		if apiErr.Status != 403 {
			return apiErr
		}
		// Not the owner: a shared session still allows a read-only
		// join.
		view, sharedErr := h.sessions.SharedSnapshot(ctx, sessionID)
		if sharedErr != nil {
			return sharedErr
		}
		h.addToRoom(peer, sessionID)
		h.sendSnapshot(peer, *view)
		return nil
	}

	h.addToRoom(peer, sessionID)
	h.sendState(peer, session)
	return nil
}

// Leave unsubscribes the connection from the session's room.
func (h *Hub) Leave(peer *Peer, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(peer, sessionID)
	if rooms, ok := h.peerRooms[peer]; ok {
		delete(rooms, sessionID)
	}
}

// Broadcast pushes the session's snapshot to every connection in its
// room. Send failures are per-connection and never surface to the
// command that triggered the broadcast.
func (h *Hub) Broadcast(session *model.Session) {
	if session == nil {
		return
	}

	h.mu.Lock()
	members := make([]*Peer, 0, len(h.rooms[session.ID]))
	for peer := range h.rooms[session.ID] {
		members = append(members, peer)
	}
	h.mu.Unlock()

	if len(members) == 0 {
		return
	}

	view := h.sessions.Snapshot(session, time.Now().UTC())
	frame, err := stateFrame(view)
	if err != nil {
		h.logger.Error("failed to encode session snapshot", "session", session.ID, "err", err)
		return
	}

	for _, peer := range members {
		if err := peer.send(frame); err != nil {
			h.logger.Debug("dropping broadcast to dead connection", "conn", peer.ID(), "err", err)
		}
	}
}

// RoomSize reports the current number of observers of a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) addToRoom(peer *Peer, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Peer]struct{})
		h.rooms[sessionID] = room
	}
	room[peer] = struct{}{}

	rooms, ok := h.peerRooms[peer]
	if !ok {
		rooms = make(map[string]struct{})
		h.peerRooms[peer] = rooms
	}
	rooms[sessionID] = struct{}{}
}

func (h *Hub) removeFromRoomLocked(peer *Peer, sessionID string) {
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, peer)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}

func (h *Hub) sendState(peer *Peer, session *model.Session) {
	h.sendSnapshot(peer, h.sessions.Snapshot(session, time.Now().UTC()))
}

func (h *Hub) sendSnapshot(peer *Peer, view service.SnapshotView) {
	frame, err := stateFrame(view)
	if err != nil {
		h.logger.Error("failed to encode session snapshot", "session", view.ID, "err", err)
		return
	}
	if err := peer.send(frame); err != nil {
		h.logger.Debug("failed to push snapshot", "conn", peer.ID(), "err", err)
	}
}

func stateFrame(view service.SnapshotView) (Frame, error) {
	payload, err := json.Marshal(view)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameTypeState, Payload: payload}, nil
}
