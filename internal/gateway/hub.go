package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Stats is a read-only snapshot of the hub's index sizes.
type Stats struct {
	Peers       int `json:"peers"`
	Rooms       int `json:"rooms"`
	Whiteboards int `json:"whiteboards"`
}

// Hub is the central brain of the presence server. It owns every index —
// peers, identities, conversation rooms, whiteboards — and all of them are
// mutated exclusively from the single goroutine draining its channels in
// Run. That single-writer loop is what makes every handler below safe
// without locks: each inbound event runs to completion before the next one
// is dispatched.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries every decoded client event into the run loop.
	Inbound chan *Message

	// statsReq carries snapshot requests from the HTTP surface.
	statsReq chan chan Stats

	log      *slog.Logger
	validate *validator.Validate
	spawn    Position

	clients     map[string]*Client // connection id -> transport
	registry    *peerRegistry
	rooms       *roomIndex
	whiteboards *whiteboardStore
}

// NewHub creates a new Hub instance. Peers appear at spawn until their
// first move event.
func NewHub(log *slog.Logger, spawn Position) *Hub {
	return &Hub{
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		Inbound:     make(chan *Message),
		statsReq:    make(chan chan Stats),
		log:         log,
		validate:    validator.New(),
		spawn:       spawn,
		clients:     make(map[string]*Client),
		registry:    newPeerRegistry(),
		rooms:       newRoomIndex(),
		whiteboards: newWhiteboardStore(),
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub stopping", "reason", ctx.Err())
			return

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case msg := <-h.Inbound:
			h.dispatch(msg)

		case reply := <-h.statsReq:
			reply <- Stats{
				Peers:       h.registry.len(),
				Rooms:       h.rooms.len(),
				Whiteboards: h.whiteboards.len(),
			}
		}
	}
}

// Snapshot asks the run loop for its current index sizes.
func (h *Hub) Snapshot(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsReq <- reply:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case stats := <-reply:
		return stats, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// addClient registers a fresh connection at the spawn position and announces
// it to everyone else. The new peer receives the scene snapshot only once it
// sends "ready" (two-phase join), so client-side scene setup can't race the
// arrival broadcast.
func (h *Hub) addClient(c *Client) {
	h.clients[c.ID] = c
	h.registry.add(c.ID, h.spawn)
	h.broadcastAll(c.ID, NewMessage(EventPlayerJoined, PlayerState{ID: c.ID, X: h.spawn.X, Y: h.spawn.Y}))
	h.log.Info("peer connected", "conn", c.ID, "online", h.registry.len())
}

// removeClient runs the full disconnect cascade: conversation room,
// whiteboard rooms, identity binding, peer registry, then the departure
// broadcast. Safe to call twice for the same client — eviction closes a
// connection whose read pump later unregisters it again.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)

	h.detachFromConversation(c.ID, false)

	for _, roomID := range h.whiteboards.leaveAll(c.ID) {
		h.broadcastWhiteboard(roomID, "", NewMessage(EventWhiteboardUserLeft, WhiteboardPresencePayload{
			RoomID: roomID, ID: c.ID, UserID: h.userIDOf(c.ID),
		}))
	}

	h.registry.remove(c.ID)
	h.broadcastAll("", NewMessage(EventPlayerDisconnected, PlayerIDPayload{ID: c.ID}))

	// Close the client's send channel to stop its WritePump.
	close(c.Send)
	h.log.Info("peer disconnected", "conn", c.ID, "online", h.registry.len())
}

func (h *Hub) userIDOf(connID string) string {
	if p, ok := h.registry.get(connID); ok {
		return p.UserID
	}
	return ""
}

// dispatch decodes and routes one inbound event. A malformed or invalid
// payload is logged and dropped; it must never corrupt state for other
// peers or take the loop down.
func (h *Hub) dispatch(msg *Message) {
	c := msg.client
	if _, ok := h.clients[c.ID]; !ok {
		// Event from a connection that was already evicted.
		return
	}

	switch msg.Type {
	case EventRegisterPlayer:
		if p, err := decodePayload[RegisterPlayerPayload](h, msg); err == nil {
			h.handleRegisterPlayer(c, p)
		}
	case EventReady:
		h.handleReady(c)
	case EventPlayerMove:
		if p, err := decodePayload[PlayerMovePayload](h, msg); err == nil {
			h.handlePlayerMove(c, p)
		}
	case EventJoinRoom:
		if p, err := decodePayload[JoinRoomPayload](h, msg); err == nil {
			h.handleJoinRoom(c, p)
		}
	case EventLeaveRoom:
		if _, err := decodePayload[LeaveRoomPayload](h, msg); err == nil {
			h.handleLeaveRoom(c)
		}
	case EventStartConversation:
		if p, err := decodePayload[StartConversationPayload](h, msg); err == nil {
			h.handleStartConversation(c, p)
		}
	case EventGotAway:
		if p, err := decodePayload[GotAwayPayload](h, msg); err == nil {
			h.handleGotAway(c, p)
		}
	case EventJoinWhiteboardRoom:
		if p, err := decodePayload[WhiteboardRoomPayload](h, msg); err == nil {
			h.handleJoinWhiteboard(c, p)
		}
	case EventLeaveWhiteboardRoom:
		if p, err := decodePayload[WhiteboardRoomPayload](h, msg); err == nil {
			h.handleLeaveWhiteboard(c, p)
		}
	case EventWhiteboardUpdate:
		if p, err := decodePayload[WhiteboardUpdatePayload](h, msg); err == nil {
			h.handleWhiteboardUpdate(c, p)
		}
	case EventExcalidraw:
		if p, err := decodePayload[ExcalidrawPayload](h, msg); err == nil {
			h.handleExcalidraw(c, p)
		}
	default:
		h.log.Debug("unknown event type", "type", msg.Type, "conn", c.ID)
	}
}

// decodePayload unmarshals and validates one inbound payload.
func decodePayload[T any](h *Hub, msg *Message) (T, error) {
	var p T
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.log.Warn("malformed payload", "type", msg.Type, "conn", msg.client.ID, "error", err)
			return p, err
		}
	}
	if err := h.validate.Struct(&p); err != nil {
		h.log.Warn("invalid payload", "type", msg.Type, "conn", msg.client.ID, "error", err)
		return p, err
	}
	return p, nil
}

// handleRegisterPlayer binds a stable identity to this connection. If the
// identity is already live on another connection, that connection gets a
// duplicateLogin signal and is terminated before the binding moves here.
func (h *Hub) handleRegisterPlayer(c *Client, p RegisterPlayerPayload) {
	prev, evict := h.registry.bind(p.UserID, c.ID)
	if evict {
		if stale, ok := h.clients[prev]; ok {
			h.log.Info("evicting duplicate session", "user", p.UserID, "stale", prev, "conn", c.ID)
			h.send(stale, NewMessage(EventDuplicateLogin, nil))
			h.removeClient(stale)
			if stale.Conn != nil {
				go stale.Conn.Close()
			}
		}
	}
}

// handleReady sends the new peer its one-time snapshot of everyone else.
func (h *Hub) handleReady(c *Client) {
	h.send(c, NewMessage(EventCurrentPlayers, h.registry.snapshot(c.ID)))
}

// handlePlayerMove overwrites the position and fans it out. Positions are
// not validated for plausibility; teleporting is allowed.
func (h *Hub) handlePlayerMove(c *Client, p PlayerMovePayload) {
	peer, ok := h.registry.get(c.ID)
	if !ok {
		return
	}
	peer.Pos = Position{X: p.X, Y: p.Y}
	h.broadcastAll(c.ID, NewMessage(EventPlayerMoved, PlayerState{ID: c.ID, X: p.X, Y: p.Y}))
}

// handleJoinRoom is the explicit, idempotent join. A peer occupies at most
// one conversation room, so joining a different room leaves the current one
// first (leave-before-join keeps the invariant by construction).
func (h *Hub) handleJoinRoom(c *Client, p JoinRoomPayload) {
	if cur, ok := h.rooms.roomOf(c.ID); !ok || cur != p.RoomID {
		if ok {
			h.detachFromConversation(c.ID, true)
		}
		h.rooms.add(p.RoomID, c.ID)
	}
	h.broadcastRoom(p.RoomID, "", NewMessage(EventJoinedRoom, RoomRosterPayload{
		RoomID: p.RoomID, Members: h.rooms.membersOf(p.RoomID),
	}))
}

func (h *Hub) handleLeaveRoom(c *Client) {
	h.detachFromConversation(c.ID, true)
}

// handleStartConversation is proximity-triggered pairing. resolvePairing
// picks exactly one outcome up front, then it is applied; only the run
// loop's serialization makes the read-then-apply sequence safe.
func (h *Hub) handleStartConversation(c *Client, p StartConversationPayload) {
	targetID := p.TargetSocketID
	callerRoom, _ := h.rooms.roomOf(c.ID)
	targetRoom, _ := h.rooms.roomOf(targetID)
	_, targetAlive := h.registry.get(targetID)

	switch resolvePairing(callerRoom, targetRoom, targetAlive) {
	case pairingTargetGone:
		h.send(c, NewMessage(EventConversationError, ConversationErrorPayload{
			Message: "player " + targetID + " is no longer connected",
		}))

	case pairingAlreadyTogether:
		// Already in a room together; nothing to do.

	case pairingTargetJoinsCaller:
		h.rooms.add(callerRoom, targetID)
		h.announceRoster(callerRoom)

	case pairingCallerJoinsTarget:
		if callerRoom != "" {
			h.detachFromConversation(c.ID, true)
		}
		h.rooms.add(targetRoom, c.ID)
		h.announceRoster(targetRoom)

	case pairingCreateRoom:
		roomID := newRoomID(c.ID, targetID)
		h.rooms.add(roomID, c.ID)
		h.rooms.add(roomID, targetID)
		h.announceRoster(roomID)
	}
}

// handleGotAway is the client-reported proximity heartbeat. If none of the
// peer's roommates appear in its nearby set, the peer leaves the room and is
// told to tear down its media channel. The server trusts the client's
// report; positions are stored but deliberately not re-checked here.
func (h *Hub) handleGotAway(c *Client, p GotAwayPayload) {
	roomID, ok := h.rooms.roomOf(c.ID)
	if !ok {
		return
	}
	for _, member := range h.rooms.membersOf(roomID) {
		if member == c.ID {
			continue
		}
		for _, nearby := range p.NearbyPlayers {
			if nearby == member {
				return // at least one roommate still nearby
			}
		}
	}
	h.detachFromConversation(c.ID, true)
}

func (h *Hub) handleJoinWhiteboard(c *Client, p WhiteboardRoomPayload) {
	room := h.whiteboards.join(p.RoomID, c.ID)
	h.send(c, NewMessage(EventWhiteboardRoomJoined, WhiteboardSnapshotPayload{
		RoomID:   room.ID,
		Elements: room.Elements,
		AppState: room.AppState,
		Files:    room.Files,
		Members:  h.whiteboards.membersOf(room.ID),
	}))
	h.broadcastWhiteboard(p.RoomID, c.ID, NewMessage(EventWhiteboardUserJoined, WhiteboardPresencePayload{
		RoomID: p.RoomID, ID: c.ID, UserID: h.userIDOf(c.ID),
	}))
}

func (h *Hub) handleLeaveWhiteboard(c *Client, p WhiteboardRoomPayload) {
	if !h.whiteboards.leave(p.RoomID, c.ID) {
		return
	}
	h.broadcastWhiteboard(p.RoomID, "", NewMessage(EventWhiteboardUserLeft, WhiteboardPresencePayload{
		RoomID: p.RoomID, ID: c.ID, UserID: h.userIDOf(c.ID),
	}))
}

// handleWhiteboardUpdate is the authoritative snapshot replace: last write
// wins, then fan out to everyone else in the room (never echoed back).
func (h *Hub) handleWhiteboardUpdate(c *Client, p WhiteboardUpdatePayload) {
	if !h.whiteboards.isMember(p.RoomID, c.ID) {
		h.log.Debug("whiteboard update from non-member", "room", p.RoomID, "conn", c.ID)
		return
	}
	h.whiteboards.replace(p.RoomID, p.Elements, p.AppState, p.Files)
	h.broadcastWhiteboard(p.RoomID, c.ID, NewMessage(EventWhiteboardUpdate, p))
}

// handleExcalidraw relays fine-grained drawing events to the rest of the
// room without interpreting or storing them.
func (h *Hub) handleExcalidraw(c *Client, p ExcalidrawPayload) {
	if !h.whiteboards.isMember(p.RoomID, c.ID) {
		return
	}
	h.broadcastWhiteboard(p.RoomID, c.ID, NewMessage(EventExcalidraw, p))
}

// detachFromConversation removes the peer from its conversation room and
// applies the emptiness policy: a room whose membership would drop to one
// is destroyed, and the last occupant is detached and told to tear down its
// media channel. Remaining members of a surviving room get the new roster.
func (h *Hub) detachFromConversation(connID string, notifyLeaver bool) {
	roomID, ok := h.rooms.remove(connID)
	if !ok {
		return
	}
	if notifyLeaver {
		h.sendTo(connID, NewMessage(EventLeaveChannel, LeaveChannelPayload{RoomID: roomID}))
	}

	remaining := h.rooms.membersOf(roomID)
	if len(remaining) <= 1 {
		for _, member := range remaining {
			h.rooms.remove(member)
			h.sendTo(member, NewMessage(EventLeaveChannel, LeaveChannelPayload{RoomID: roomID}))
		}
		h.log.Debug("room destroyed", "room", roomID)
		return
	}
	h.broadcastRoom(roomID, "", NewMessage(EventLeftRoom, RoomRosterPayload{RoomID: roomID, Members: remaining}))
}

func (h *Hub) announceRoster(roomID string) {
	h.broadcastRoom(roomID, "", NewMessage(EventJoinedRoom, RoomRosterPayload{
		RoomID: roomID, Members: h.rooms.membersOf(roomID),
	}))
}

// send queues a message for one client without ever blocking the run loop.
// A peer whose buffer is full is dropped; its read pump will unregister it.
func (h *Hub) send(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("send buffer full, dropping connection", "conn", c.ID)
		if c.Conn != nil {
			go c.Conn.Close()
		}
	}
}

func (h *Hub) sendTo(connID string, msg *Message) {
	if c, ok := h.clients[connID]; ok {
		h.send(c, msg)
	}
}

func (h *Hub) broadcastAll(except string, msg *Message) {
	for id, c := range h.clients {
		if id != except {
			h.send(c, msg)
		}
	}
}

func (h *Hub) broadcastRoom(roomID, except string, msg *Message) {
	for _, id := range h.rooms.membersOf(roomID) {
		if id != except {
			h.sendTo(id, msg)
		}
	}
}

func (h *Hub) broadcastWhiteboard(roomID, except string, msg *Message) {
	for _, id := range h.whiteboards.membersOf(roomID) {
		if id != except {
			h.sendTo(id, msg)
		}
	}
}
