package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstlab/burstd/internal/message"
)

func TestUpdateContextAppendsTranscript(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	raw := &message.Inbound{
		Channel:   "whatsapp",
		ChatID:    "alice@s.net",
		SenderID:  "alice@s.net",
		Text:      "hello",
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpdateContext(ctx, raw.ChatID, raw.SenderID, raw.Text, raw))
	require.NoError(t, s.UpdateContext(ctx, raw.ChatID, raw.SenderID, "again", nil))

	entry := s.Get("alice@s.net")
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.MessageCount)
	assert.Equal(t, "whatsapp", entry.Channel)

	records, err := s.Transcript("alice@s.net")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "hello", records[0].Text)
	assert.Equal(t, raw.Timestamp, records[0].Timestamp.UTC())
	assert.Equal(t, "again", records[1].Text)
}

func TestTranscriptMissingChat(t *testing.T) {
	s := NewStore(t.TempDir())
	records, err := s.Transcript("ghost@s.net")
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.UpdateContext(context.Background(), "c1", "u1", "x", nil))
	require.NoError(t, s.Save())

	s2 := NewStore(dir)
	require.NoError(t, s2.Load())
	entry := s2.Get("c1")
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.MessageCount)
	assert.Len(t, s2.List(), 1)
}

func TestLoadMissingMetaIsFine(t *testing.T) {
	s := NewStore(t.TempDir())
	assert.NoError(t, s.Load())
}

func TestTranscriptPathIsSanitized(t *testing.T) {
	s := NewStore("/data/history")
	p := s.transcriptPath("team one@g.us/评论")
	base := filepath.Base(p)
	assert.True(t, strings.HasSuffix(base, ".jsonl"))
	assert.NotContains(t, base, "@")
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, " ")
}
