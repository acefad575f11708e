package gateway

import "encoding/json"

// Event types sent by clients (C2S).
const (
	EventRegisterPlayer      = "registerPlayer"
	EventReady               = "ready"
	EventPlayerMove          = "playerMove"
	EventJoinRoom            = "joinRoom"
	EventLeaveRoom           = "leaveRoom"
	EventStartConversation   = "startConversation"
	EventGotAway             = "gotAway"
	EventJoinWhiteboardRoom  = "joinWhiteboardRoom"
	EventLeaveWhiteboardRoom = "leaveWhiteboardRoom"
	EventWhiteboardUpdate    = "whiteboardUpdate"
	EventExcalidraw          = "excalidrawEvent"
)

// Event types sent by the server (S2C).
const (
	EventCurrentPlayers       = "currentPlayers"
	EventPlayerJoined         = "playerJoined"
	EventPlayerMoved          = "playerMoved"
	EventJoinedRoom           = "joinedRoom"
	EventLeftRoom             = "leftRoom"
	EventPlayerDisconnected   = "playerDisconnected"
	EventDuplicateLogin       = "duplicateLogin"
	EventWhiteboardRoomJoined = "whiteboardRoomJoined"
	EventWhiteboardUserJoined = "whiteboardUserJoined"
	EventWhiteboardUserLeft   = "whiteboardUserLeft"
	EventLeaveChannel         = "leaveChannel"
	EventConversationError    = "conversationError"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// NewMessage builds an outbound message, marshaling the payload.
// A payload that fails to marshal is a programming error, so it panics.
func NewMessage(eventType string, payload any) *Message {
	if payload == nil {
		return &Message{Type: eventType}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("gateway: unmarshalable payload for " + eventType)
	}
	return &Message{Type: eventType, Payload: raw}
}

// --- Inbound payloads ---

type RegisterPlayerPayload struct {
	UserID string `json:"userId" validate:"required"`
}

type PlayerMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// LeaveRoomPayload carries the leaver's own player id. The server acts on
// the sending connection regardless, so the field is informational.
type LeaveRoomPayload struct {
	PlayerID string `json:"playerId"`
}

type StartConversationPayload struct {
	TargetSocketID string `json:"targetSocketId" validate:"required"`
}

// GotAwayPayload is a client-reported proximity check: the set of peers the
// client still considers nearby. The server trusts this report.
type GotAwayPayload struct {
	OtherID       string   `json:"otherId"`
	NearbyPlayers []string `json:"nearbyPlayers"`
}

type WhiteboardRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type WhiteboardUpdatePayload struct {
	RoomID   string                     `json:"roomId" validate:"required"`
	Elements json.RawMessage            `json:"elements,omitempty"`
	AppState json.RawMessage            `json:"appState,omitempty"`
	Files    map[string]json.RawMessage `json:"files,omitempty"`
	UserID   string                     `json:"userId,omitempty"`
}

type ExcalidrawPayload struct {
	RoomID    string          `json:"roomId" validate:"required"`
	Event     string          `json:"event"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	UserID    string          `json:"userId,omitempty"`
}

// --- Outbound payloads ---

// PlayerState is one peer's presence as seen by other peers.
type PlayerState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type RoomRosterPayload struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}

type PlayerIDPayload struct {
	ID string `json:"id"`
}

type LeaveChannelPayload struct {
	RoomID string `json:"roomId"`
}

type ConversationErrorPayload struct {
	Message string `json:"message"`
}

// WhiteboardSnapshotPayload is the full content of a whiteboard room, sent
// to a joining peer only.
type WhiteboardSnapshotPayload struct {
	RoomID   string                     `json:"roomId"`
	Elements json.RawMessage            `json:"elements,omitempty"`
	AppState json.RawMessage            `json:"appState,omitempty"`
	Files    map[string]json.RawMessage `json:"files,omitempty"`
	Members  []string                   `json:"members"`
}

type WhiteboardPresencePayload struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id"`
	UserID string `json:"userId,omitempty"`
}
