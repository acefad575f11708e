package gateway

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// roomIndex is the bidirectional conversation-room membership mapping:
// room -> member set and member -> room. The two maps must always agree;
// every mutation below updates both sides.
//
// Like peerRegistry, it is only ever touched by the hub's run goroutine.
type roomIndex struct {
	members  map[string]map[string]struct{} // room id -> connection ids
	peerRoom map[string]string              // connection id -> room id
}

func newRoomIndex() *roomIndex {
	return &roomIndex{
		members:  make(map[string]map[string]struct{}),
		peerRoom: make(map[string]string),
	}
}

// roomOf returns the conversation room the peer currently occupies.
func (ri *roomIndex) roomOf(connID string) (string, bool) {
	roomID, ok := ri.peerRoom[connID]
	return roomID, ok
}

// membersOf returns the room's roster in a stable order.
// Returns nil for an unknown room.
func (ri *roomIndex) membersOf(roomID string) []string {
	set, ok := ri.members[roomID]
	if !ok {
		return nil
	}
	roster := lo.Keys(set)
	sort.Strings(roster)
	return roster
}

// add puts the peer into the room, creating it if absent. The caller must
// ensure the peer is not in another room; a peer occupies at most one.
func (ri *roomIndex) add(roomID, connID string) {
	set, ok := ri.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		ri.members[roomID] = set
	}
	set[connID] = struct{}{}
	ri.peerRoom[connID] = roomID
}

// remove takes the peer out of its room, dropping the room entry when the
// member set empties. Reports which room was left.
func (ri *roomIndex) remove(connID string) (roomID string, ok bool) {
	roomID, ok = ri.peerRoom[connID]
	if !ok {
		return "", false
	}
	delete(ri.peerRoom, connID)
	if set, exists := ri.members[roomID]; exists {
		delete(set, connID)
		if len(set) == 0 {
			delete(ri.members, roomID)
		}
	}
	return roomID, true
}

func (ri *roomIndex) len() int {
	return len(ri.members)
}

// newRoomID derives a fresh conversation room id from both founding
// connections plus a timestamp, which keeps ids unique under rapid
// re-pairing of the same two peers.
func newRoomID(callerID, targetID string) string {
	return fmt.Sprintf("%s-%s-%d", callerID, targetID, time.Now().UnixMilli())
}

// pairingOutcome is the single action startConversation resolves to.
type pairingOutcome int

const (
	// pairingTargetGone: the target connection no longer exists.
	pairingTargetGone pairingOutcome = iota
	// pairingAlreadyTogether: caller and target share a room; nothing to do.
	pairingAlreadyTogether
	// pairingTargetJoinsCaller: target joins the caller's existing room.
	pairingTargetJoinsCaller
	// pairingCallerJoinsTarget: caller leaves its room (if any) and joins
	// the target's room.
	pairingCallerJoinsTarget
	// pairingCreateRoom: neither is in a room; a fresh one holds both.
	pairingCreateRoom
)

// resolvePairing decides what startConversation does, evaluated once so that
// exactly one branch can ever apply. Precedence: a dead target always wins,
// then the caller's room absorbs a roomless target, then the target's room
// absorbs the caller, then a new room is created.
func resolvePairing(callerRoom, targetRoom string, targetAlive bool) pairingOutcome {
	switch {
	case !targetAlive:
		return pairingTargetGone
	case callerRoom != "" && callerRoom == targetRoom:
		return pairingAlreadyTogether
	case callerRoom != "" && targetRoom == "":
		return pairingTargetJoinsCaller
	case targetRoom != "":
		return pairingCallerJoinsTarget
	default:
		return pairingCreateRoom
	}
}
