package gateway

import (
	"encoding/json"

	"github.com/burstlab/burstd/internal/message"
)

// Frame is the universal WebSocket message format.
// Three types: "req" (peer→server), "res" (server→peer), "event" (server→peer push).
type Frame struct {
	Type    string          `json:"type"`              // "req" | "res" | "event"
	ID      string          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // for req: method name
	Params  json.RawMessage `json:"params,omitempty"`  // for req: method parameters
	OK      *bool           `json:"ok,omitempty"`      // for res: success flag
	Payload json.RawMessage `json:"payload,omitempty"` // for res: response data
	Error   *ErrorPayload   `json:"error,omitempty"`   // for res: error details
	Event   string          `json:"event,omitempty"`   // for event: event name
	Seq     int             `json:"seq,omitempty"`     // for event: sequence number
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Connection roles.
const (
	RoleBridge = "bridge" // chat-platform bridge: sources messages, sinks presence
	RoleAgent  = "agent"  // downstream generator: sinks finalized turn messages
	RoleClient = "client" // observers / management tooling
)

// ConnectParams is sent by the peer during handshake.
type ConnectParams struct {
	Role         string   `json:"role"` // "bridge" | "agent" | "client"
	Token        string   `json:"token"`
	Channel      string   `json:"channel,omitempty"`      // bridge only: channel name
	Capabilities []string `json:"capabilities,omitempty"` // bridge only
}

// PresenceParams carries a typing/presence update from a bridge. Either the
// single SenderID+State pair or, for group chats, a Participants list.
type PresenceParams struct {
	Channel      string                `json:"channel"`
	ChatID       string                `json:"chatId"`
	SenderID     string                `json:"senderId,omitempty"`
	State        string                `json:"state,omitempty"` // "composing" | "paused"
	Participants []ParticipantPresence `json:"participants,omitempty"`
}

type ParticipantPresence struct {
	ID    string `json:"id"`
	State string `json:"state"` // "composing" | "paused"
}

// Composing reports whether a presence state string means "typing".
func Composing(state string) bool {
	return state == "composing" || state == "recording"
}

// ScopeParams addresses one batching scope for status/flush requests.
type ScopeParams struct {
	ChatID        string `json:"chatId"`
	ParticipantID string `json:"participantId,omitempty"`
}

// TurnMessage is the payload of the "turn.message" event pushed to agent
// clients: one finalized message plus its batch metadata (nil on the
// independent-dispatch fallback path).
type TurnMessage struct {
	Message  *message.Inbound `json:"message"`
	Metadata any              `json:"metadata,omitempty"`
}

// Helpers to create response frames.

func ResOK(id string, payload any) Frame {
	data, _ := json.Marshal(payload)
	ok := true
	return Frame{Type: "res", ID: id, OK: &ok, Payload: data}
}

func ResErr(id string, code, message string) Frame {
	ok := false
	return Frame{Type: "res", ID: id, OK: &ok, Error: &ErrorPayload{Code: code, Message: message}}
}

func EventFrame(event string, seq int, payload any) Frame {
	data, _ := json.Marshal(payload)
	return Frame{Type: "event", Event: event, Seq: seq, Payload: data}
}
