package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/burstlab/burstd/internal/message"
)

// handleRequest dispatches one WS request frame. Handlers are quick state
// mutations against the engine; actual batch processing happens later on the
// engine's own timers.
func (s *Server) handleRequest(conn *Conn, frame Frame) {
	var (
		result any
		err    error
	)
	switch frame.Method {
	case "inbound.message":
		result, err = s.handleInboundMessage(conn, frame.Params)
	case "presence.update":
		result, err = s.handlePresenceUpdate(conn, frame.Params)
	case "batch.status":
		result, err = s.handleBatchStatus(frame.Params)
	case "batch.flush":
		result, err = s.handleBatchFlush(frame.Params)
	default:
		conn.Send(ResErr(frame.ID, "UNKNOWN_METHOD", "unsupported method "+frame.Method))
		return
	}
	if err != nil {
		conn.Send(ResErr(frame.ID, "ERROR", err.Error()))
		return
	}
	conn.Send(ResOK(frame.ID, result))
}

// handleInboundMessage feeds one content event into the batch engine.
func (s *Server) handleInboundMessage(conn *Conn, params json.RawMessage) (any, error) {
	var msg message.Inbound
	if err := json.Unmarshal(params, &msg); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if msg.ChatID == "" {
		return nil, fmt.Errorf("chatId required")
	}
	if msg.Channel == "" {
		msg.Channel = conn.Channel
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if s.Dedup != nil && s.Dedup.Seen(msg.MessageID) {
		slog.Debug("duplicate message dropped", "chat", msg.ChatID, "message", msg.MessageID)
		return map[string]any{"accepted": false, "duplicate": true}, nil
	}

	s.Engine.OnMessage(&msg)
	return map[string]any{"accepted": true}, nil
}

// handlePresenceUpdate feeds typing signals into the engine, fanning out per
// participant for group updates.
func (s *Server) handlePresenceUpdate(conn *Conn, params json.RawMessage) (any, error) {
	var p PresenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ChatID == "" {
		return nil, fmt.Errorf("chatId required")
	}

	applied := 0
	if len(p.Participants) > 0 {
		for _, part := range p.Participants {
			s.Engine.OnTyping(p.ChatID, part.ID, Composing(part.State))
			applied++
		}
	} else {
		s.Engine.OnTyping(p.ChatID, p.SenderID, Composing(p.State))
		applied++
	}
	return map[string]any{"applied": applied}, nil
}

// handleBatchStatus returns the read-only snapshot for a scope. A group chat
// queried without a participant gets the aggregate of all active members.
func (s *Server) handleBatchStatus(params json.RawMessage) (any, error) {
	var p ScopeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ChatID == "" {
		return nil, fmt.Errorf("chatId required")
	}
	return s.scopeStatus(p.ChatID, p.ParticipantID), nil
}

func (s *Server) scopeStatus(chatID, participantID string) any {
	if participantID == "" && s.Engine.IsGroupChat(chatID) {
		if g := s.Engine.GroupStatusAll(chatID); g != nil {
			return g
		}
		return map[string]any{"batch": nil}
	}
	if st := s.Engine.Status(chatID, participantID); st != nil {
		return st
	}
	return map[string]any{"batch": nil}
}

// handleBatchFlush forces finalization, bypassing remaining timers.
func (s *Server) handleBatchFlush(params json.RawMessage) (any, error) {
	var p ScopeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.ChatID == "" {
		return nil, fmt.Errorf("chatId required")
	}
	flushed := s.Engine.Flush(p.ChatID, p.ParticipantID)
	return map[string]any{"flushed": flushed}, nil
}
