package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/burstlab/burstd/internal/message"
)

// batchError marks a failure that aborts the batched path and triggers the
// independent-dispatch fallback. Transient per-message failures (read
// receipts, single dispatches) are logged and never wrapped in it.
type batchError struct {
	stage string
	err   error
}

func (e *batchError) Error() string { return fmt.Sprintf("batch %s: %v", e.stage, e.err) }
func (e *batchError) Unwrap() error { return e.err }

// Finalize drains the scope's batch: waits out the minimum batch age, marks
// the batch processing, folds in grace-window arrivals, performs per-message
// side effects, then dispatches each message with batch metadata and pacing.
// Entry is a no-op when no live, non-empty, non-processing batch exists, so
// racing timers and manual flushes collapse to one run per scope.
func (e *Engine) Finalize(sc Scope) {
	now := time.Now()
	key := sc.Key()

	e.mu.Lock()
	opts := e.opts
	st, ok := e.store.Get(sc)
	if !ok || st.Batch == nil || st.Batch.Processing || len(st.Batch.Messages) == 0 {
		e.mu.Unlock()
		return
	}
	e.sched.CancelAll(key)
	firstAt := st.FirstMessageAt
	e.mu.Unlock()

	// Let extremely fast follow-ups join even when a timer fired early. The
	// batch is not yet marked processing, so such messages re-arm timers;
	// whichever finalize marks it first wins below.
	if wait := opts.MinWait - now.Sub(firstAt); wait > 0 {
		time.Sleep(wait)
	}

	e.mu.Lock()
	st, ok = e.store.Get(sc)
	if !ok || st.Batch == nil || st.Batch.Processing || len(st.Batch.Messages) == 0 {
		e.mu.Unlock()
		return
	}
	st.Batch.Processing = true
	e.sched.CancelAll(key)
	e.mu.Unlock()

	// Collection grace window: messages arriving in flight are appended by
	// OnMessage (no timers, batch already processing) and included below.
	time.Sleep(opts.graceWindow)

	e.mu.Lock()
	st, ok = e.store.Get(sc)
	if !ok || st.Batch == nil {
		e.mu.Unlock()
		return
	}
	// Snapshot, not reference: anything appended after this point is lost
	// with the torn-down state. Bounded window, known gap.
	msgs := make([]*message.Inbound, len(st.Batch.Messages))
	copy(msgs, st.Batch.Messages)
	batchID := st.Batch.ID
	firstAt = st.FirstMessageAt
	e.mu.Unlock()

	defer e.teardown(sc)

	if len(msgs) == 0 {
		return
	}

	ctx := context.Background()
	if err := e.drain(ctx, batchID, msgs, firstAt, opts.dispatchGap); err != nil {
		slog.Warn("batched processing failed, dispatching independently",
			"scope", key, "batch", batchID, "error", err)
		e.dispatchIndependently(ctx, msgs)
	}
}

// drain runs the two passes over the snapshot: side effects, then paced
// dispatch with metadata.
func (e *Engine) drain(ctx context.Context, batchID string, msgs []*message.Inbound, firstAt time.Time, gap time.Duration) error {
	chat := msgs[0].ChatID

	for _, m := range msgs {
		if m.HasMedia() {
			slog.Debug("batched message carries media", "chat", m.ChatID, "attachments", len(m.Attachments))
		}
		if e.contexts != nil {
			if err := e.contexts.UpdateContext(ctx, m.ChatID, m.SenderID, m.Text, m); err != nil {
				return &batchError{stage: "context update", err: err}
			}
		}
		if e.presence != nil {
			if err := e.presence.MarkRead(m.Channel, m.ChatID, m.SenderID, m.MessageID); err != nil {
				slog.Warn("mark-read failed", "chat", m.ChatID, "message", m.MessageID, "error", err)
			}
		}
	}

	// Paced dispatch reads as a natural multi-message turn downstream
	// instead of one combined call.
	// The limiter starts with one token, so the first dispatch is immediate
	// and each later one waits out the gap.
	pace := rate.NewLimiter(rate.Every(gap), 1)
	now := time.Now()
	for i, m := range msgs {
		if err := pace.Wait(ctx); err != nil {
			return &batchError{stage: "dispatch pacing", err: err}
		}
		meta := buildMetadata(batchID, i, msgs, firstAt, now)
		if err := e.dispatcher.Dispatch(ctx, m, meta); err != nil {
			slog.Warn("dispatch failed", "chat", chat, "batch", batchID, "position", meta.Position, "error", err)
		}
	}

	slog.Info("batch dispatched", "chat", chat, "batch", batchID, "messages", len(msgs),
		"elapsed", now.Sub(firstAt))
	return nil
}

// dispatchIndependently is the degraded path: each original message goes
// downstream without batch metadata, failures insulated per message.
func (e *Engine) dispatchIndependently(ctx context.Context, msgs []*message.Inbound) {
	for _, m := range msgs {
		if err := e.dispatcher.Dispatch(ctx, m, nil); err != nil {
			slog.Warn("independent dispatch failed", "chat", m.ChatID, "message", m.MessageID, "error", err)
		}
	}
}

// teardown destroys the scope's batch and typing state. Runs on success and
// failure alike, so no scope is ever left stuck processing.
func (e *Engine) teardown(sc Scope) {
	e.mu.Lock()
	e.sched.CancelAll(sc.Key())
	e.store.Delete(sc)
	e.mu.Unlock()
}
