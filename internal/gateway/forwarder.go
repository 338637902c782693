package gateway

import (
	"context"
	"fmt"

	"github.com/burstlab/burstd/internal/batch"
	"github.com/burstlab/burstd/internal/message"
)

// Forwarder implements the engine's outward collaborators on top of the
// connection manager: finalized messages go to agent clients, presence and
// receipts go back to the originating channel's bridges.
type Forwarder struct {
	Conns *ConnManager
}

var _ batch.Dispatcher = (*Forwarder)(nil)
var _ batch.Presence = (*Forwarder)(nil)

// Dispatch pushes one finalized message (with batch metadata, or nil on the
// fallback path) to connected agent clients.
func (f *Forwarder) Dispatch(ctx context.Context, msg *message.Inbound, meta *batch.Metadata) error {
	payload := TurnMessage{Message: msg}
	if meta != nil {
		payload.Metadata = meta
	}
	if sent := f.Conns.BroadcastToRole(RoleAgent, "turn.message", payload); sent == 0 {
		return fmt.Errorf("no agent connected for chat %s", msg.ChatID)
	}
	return nil
}

// SendTyping asks the channel's bridge to show a composing indicator.
func (f *Forwarder) SendTyping(channel, chatID string) error {
	if sent := f.Conns.BroadcastToChannel(channel, "typing.set", map[string]any{
		"chatId": chatID,
		"state":  "composing",
	}); sent == 0 {
		return fmt.Errorf("no bridge connected for channel %s", channel)
	}
	return nil
}

// MarkRead asks the channel's bridge to acknowledge one message as read.
func (f *Forwarder) MarkRead(channel, chatID, senderID, messageID string) error {
	if sent := f.Conns.BroadcastToChannel(channel, "receipt.read", map[string]any{
		"chatId":    chatID,
		"senderId":  senderID,
		"messageId": messageID,
	}); sent == 0 {
		return fmt.Errorf("no bridge connected for channel %s", channel)
	}
	return nil
}
