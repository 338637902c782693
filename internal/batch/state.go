package batch

import (
	"time"

	"github.com/google/uuid"
	"github.com/burstlab/burstd/internal/message"
)

// State is the live record for one scope: the remote party's typing signal
// plus the accumulating batch. Created lazily on the first message or typing
// event, destroyed when the batch finishes processing.
type State struct {
	Scope Scope

	Typing       bool
	LastTypingAt time.Time

	MessageCount   int
	FirstMessageAt time.Time

	Batch *Batch
}

// Batch is the ordered set of not-yet-dispatched messages for one turn.
type Batch struct {
	ID        string
	Messages  []*message.Inbound
	StartedAt time.Time
	// Processing blocks new timers for the scope; messages may still be
	// appended during the collection grace window.
	Processing bool
}

func newBatch(now time.Time) *Batch {
	return &Batch{
		ID:        uuid.NewString(),
		StartedAt: now,
	}
}

// Metadata is attached to each message of a finalized batch before dispatch.
// The original message content is never mutated.
type Metadata struct {
	BatchID  string        `json:"batchId"`
	Position int           `json:"position"` // 1-based
	Total    int           `json:"total"`
	First    bool          `json:"first"`
	Last     bool          `json:"last"`
	Elapsed  time.Duration `json:"elapsedMs"` // since the batch's first message
	Siblings []string      `json:"siblings"`  // other messages' text, for downstream context
}

func buildMetadata(batchID string, idx int, msgs []*message.Inbound, firstAt time.Time, now time.Time) *Metadata {
	siblings := make([]string, 0, len(msgs)-1)
	for i, m := range msgs {
		if i != idx {
			siblings = append(siblings, m.Text)
		}
	}
	return &Metadata{
		BatchID:  batchID,
		Position: idx + 1,
		Total:    len(msgs),
		First:    idx == 0,
		Last:     idx == len(msgs)-1,
		Elapsed:  now.Sub(firstAt),
		Siblings: siblings,
	}
}
