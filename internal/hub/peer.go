package hub

import (
	"encoding/json"
	"io"
	"sync"
)

// Frame is the wire envelope for every hub message, both directions.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Peer wraps one live connection. The encoder lock keeps concurrent
// broadcasts from interleaving frames on the wire.
type Peer struct {
	id      string
	ownerID string

	mu      sync.Mutex
	encoder *json.Encoder
}

func NewPeer(id, ownerID string, w io.Writer) *Peer {
	return &Peer{id: id, ownerID: ownerID, encoder: json.NewEncoder(w)}
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) OwnerID() string {
	return p.ownerID
}

func (p *Peer) send(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}
