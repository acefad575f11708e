package gateway

import (
	"sort"

	"github.com/samber/lo"
)

// Position is a peer's 2D location in the shared space.
type Position struct {
	X float64
	Y float64
}

// Peer is one live connection's presence: last-known position plus an
// optional stable identity bound via registerPlayer.
type Peer struct {
	ID     string
	Pos    Position
	UserID string // empty until an identity is bound
}

// peerRegistry is the source of truth for who is currently online, plus the
// identity deduplication index (one identity, one live connection).
//
// It carries no lock: only the hub's run goroutine touches it.
type peerRegistry struct {
	peers      map[string]*Peer  // connection id -> presence
	identities map[string]string // user id -> connection id
}

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{
		peers:      make(map[string]*Peer),
		identities: make(map[string]string),
	}
}

func (r *peerRegistry) add(id string, spawn Position) *Peer {
	p := &Peer{ID: id, Pos: spawn}
	r.peers[id] = p
	return p
}

func (r *peerRegistry) get(id string) (*Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// remove deletes the peer and any identity binding pointing at it.
func (r *peerRegistry) remove(id string) {
	p, ok := r.peers[id]
	if !ok {
		return
	}
	if p.UserID != "" && r.identities[p.UserID] == id {
		delete(r.identities, p.UserID)
	}
	delete(r.peers, id)
}

// bind points userID at connID and reports the connection the identity was
// previously bound to, if that connection is still live and different.
// The caller is responsible for evicting the previous connection.
func (r *peerRegistry) bind(userID, connID string) (previous string, evict bool) {
	p, ok := r.peers[connID]
	if !ok {
		return "", false
	}

	// Rebinding this connection to a new identity drops its old binding.
	if p.UserID != "" && p.UserID != userID && r.identities[p.UserID] == connID {
		delete(r.identities, p.UserID)
	}

	prev, bound := r.identities[userID]
	r.identities[userID] = connID
	p.UserID = userID

	if bound && prev != connID {
		if _, alive := r.peers[prev]; alive {
			return prev, true
		}
	}
	return "", false
}

// snapshot returns the presence of every peer except the given one,
// in a stable order.
func (r *peerRegistry) snapshot(except string) []PlayerState {
	states := lo.FilterMap(lo.Values(r.peers), func(p *Peer, _ int) (PlayerState, bool) {
		return PlayerState{ID: p.ID, X: p.Pos.X, Y: p.Pos.Y}, p.ID != except
	})
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

func (r *peerRegistry) len() int {
	return len(r.peers)
}
