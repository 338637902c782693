package batch

import "strings"

// ScopeKind distinguishes the two batching units.
type ScopeKind int

const (
	// ScopePersonal batches a whole single-party conversation.
	ScopePersonal ScopeKind = iota
	// ScopeGroupMember batches one participant inside a multi-party chat.
	ScopeGroupMember
)

// Scope identifies an independent batching unit. Group chats are sharded per
// participant so one member's burst never delays another's.
type Scope struct {
	Kind          ScopeKind
	ChatID        string
	ParticipantID string // set only for ScopeGroupMember
}

// ResolveScope classifies a conversation by the structural group suffix on
// its chat id and returns the batching scope for the sender.
func ResolveScope(chatID, senderID, groupSuffix string) Scope {
	if groupSuffix != "" && strings.HasSuffix(chatID, groupSuffix) {
		return Scope{Kind: ScopeGroupMember, ChatID: chatID, ParticipantID: senderID}
	}
	return Scope{Kind: ScopePersonal, ChatID: chatID}
}

// Key returns the composite lookup key for state tables and timers.
func (s Scope) Key() string {
	if s.Kind == ScopeGroupMember {
		return s.ChatID + "/" + s.ParticipantID
	}
	return s.ChatID
}

func (s Scope) String() string {
	if s.Kind == ScopeGroupMember {
		return "group " + s.ChatID + " member " + s.ParticipantID
	}
	return "chat " + s.ChatID
}
