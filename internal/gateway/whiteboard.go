package gateway

import (
	"encoding/json"
	"sort"

	"github.com/samber/lo"
)

// WhiteboardRoom holds one collaborative drawing session: an opaque scene
// (elements, app state, embedded files) plus its member set. Content is
// replaced wholesale on every update (last write wins) and never persisted;
// the room dies with its last member.
type WhiteboardRoom struct {
	ID       string
	Elements json.RawMessage
	AppState json.RawMessage
	Files    map[string]json.RawMessage

	members map[string]struct{}
}

// whiteboardStore maps caller-supplied room ids to whiteboard sessions.
// Its id namespace is independent of conversation rooms, and a peer may be
// in any number of whiteboard rooms at once, so it keeps its own reverse
// index for the disconnect cascade.
//
// Only the hub's run goroutine touches it.
type whiteboardStore struct {
	rooms  map[string]*WhiteboardRoom
	joined map[string]map[string]struct{} // connection id -> room ids
}

func newWhiteboardStore() *whiteboardStore {
	return &whiteboardStore{
		rooms:  make(map[string]*WhiteboardRoom),
		joined: make(map[string]map[string]struct{}),
	}
}

// join adds the peer to the room, lazily creating an empty session on first
// join, and returns the room so the caller can snapshot its content.
func (ws *whiteboardStore) join(roomID, connID string) *WhiteboardRoom {
	room, ok := ws.rooms[roomID]
	if !ok {
		room = &WhiteboardRoom{
			ID:      roomID,
			Files:   make(map[string]json.RawMessage),
			members: make(map[string]struct{}),
		}
		ws.rooms[roomID] = room
	}
	room.members[connID] = struct{}{}

	set, ok := ws.joined[connID]
	if !ok {
		set = make(map[string]struct{})
		ws.joined[connID] = set
	}
	set[roomID] = struct{}{}
	return room
}

// leave removes the peer from the room, destroying the room and its content
// once the member set is empty.
func (ws *whiteboardStore) leave(roomID, connID string) bool {
	room, ok := ws.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := room.members[connID]; !member {
		return false
	}
	delete(room.members, connID)
	if len(room.members) == 0 {
		delete(ws.rooms, roomID)
	}

	if set, ok := ws.joined[connID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(ws.joined, connID)
		}
	}
	return true
}

// leaveAll removes the peer from every whiteboard room it had joined and
// returns those room ids, for the disconnect cascade.
func (ws *whiteboardStore) leaveAll(connID string) []string {
	roomIDs := lo.Keys(ws.joined[connID])
	sort.Strings(roomIDs)
	for _, roomID := range roomIDs {
		ws.leave(roomID, connID)
	}
	return roomIDs
}

func (ws *whiteboardStore) get(roomID string) (*WhiteboardRoom, bool) {
	room, ok := ws.rooms[roomID]
	return room, ok
}

func (ws *whiteboardStore) isMember(roomID, connID string) bool {
	room, ok := ws.rooms[roomID]
	if !ok {
		return false
	}
	_, member := room.members[connID]
	return member
}

// membersOf returns the room's roster in a stable order.
func (ws *whiteboardStore) membersOf(roomID string) []string {
	room, ok := ws.rooms[roomID]
	if !ok {
		return nil
	}
	roster := lo.Keys(room.members)
	sort.Strings(roster)
	return roster
}

// replace overwrites the room's content fields. Last write wins: there is no
// merging or conflict resolution between concurrent editors.
func (ws *whiteboardStore) replace(roomID string, elements, appState json.RawMessage, files map[string]json.RawMessage) bool {
	room, ok := ws.rooms[roomID]
	if !ok {
		return false
	}
	room.Elements = elements
	room.AppState = appState
	if files == nil {
		files = make(map[string]json.RawMessage)
	}
	room.Files = files
	return true
}

func (ws *whiteboardStore) len() int {
	return len(ws.rooms)
}
