package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/burstlab/burstd/internal/message"
)

// Entry holds metadata for one conversation.
type Entry struct {
	ChatID       string    `json:"chatId"`
	Channel      string    `json:"channel"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Record is one transcript line, appended as JSONL.
type Record struct {
	SenderID  string          `json:"senderId"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	HasMedia  bool            `json:"hasMedia,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Store is the conversational-memory collaborator: per-chat metadata in
// meta.json plus an append-only JSONL transcript per chat.
type Store struct {
	mu      sync.RWMutex
	baseDir string
	chats   map[string]*Entry // chatID → entry
}

func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		chats:   make(map[string]*Entry),
	}
}

// Load reads conversation metadata from disk.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history store: %w", err)
	}

	var chats map[string]*Entry
	if err := json.Unmarshal(data, &chats); err != nil {
		return fmt.Errorf("parse history store: %w", err)
	}
	s.chats = chats
	return nil
}

// Save persists conversation metadata to disk (atomic write).
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metaPath := s.metaPath()
	if err := os.MkdirAll(filepath.Dir(metaPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.chats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history store: %w", err)
	}
	tmpPath := metaPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write history store: %w", err)
	}
	return os.Rename(tmpPath, metaPath)
}

// UpdateContext appends one message to the chat's transcript and bumps its
// metadata. Implements the batch engine's ContextStore collaborator.
func (s *Store) UpdateContext(ctx context.Context, chatID, senderID, text string, raw *message.Inbound) error {
	rec := Record{
		SenderID:  senderID,
		Text:      text,
		Timestamp: time.Now(),
	}
	if raw != nil {
		rec.HasMedia = raw.HasMedia()
		rec.Raw = raw.Raw
		if !raw.Timestamp.IsZero() {
			rec.Timestamp = raw.Timestamp
		}
	}

	if err := s.appendRecord(chatID, rec); err != nil {
		return err
	}

	s.mu.Lock()
	entry, ok := s.chats[chatID]
	if !ok {
		entry = &Entry{ChatID: chatID, CreatedAt: time.Now()}
		if raw != nil {
			entry.Channel = raw.Channel
		}
		s.chats[chatID] = entry
	}
	entry.MessageCount++
	entry.UpdatedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Get returns an existing conversation entry, or nil if not found.
func (s *Store) Get(chatID string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[chatID]
}

// List returns all conversation entries.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*Entry, 0, len(s.chats))
	for _, e := range s.chats {
		entries = append(entries, e)
	}
	return entries
}

// Transcript loads all records for a chat.
func (s *Store) Transcript(chatID string) ([]Record, error) {
	data, err := os.ReadFile(s.transcriptPath(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var out []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return out, fmt.Errorf("parse transcript: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) appendRecord(chatID string, rec Record) error {
	path := s.transcriptPath(chatID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *Store) transcriptPath(chatID string) string {
	return filepath.Join(s.baseDir, safeFileName(chatID)+".jsonl")
}

func (s *Store) metaPath() string {
	return filepath.Join(s.baseDir, "meta.json")
}

// safeFileName converts a chat id to a safe filename.
func safeFileName(key string) string {
	safe := make([]byte, 0, len(key))
	for _, c := range []byte(key) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			safe = append(safe, c)
		} else {
			safe = append(safe, '_')
		}
	}
	return string(safe)
}
