package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/burstlab/burstd/internal/message"
)

// Dispatcher hands one finalized message to the downstream reply pipeline.
// meta is nil when the engine falls back to independent dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *message.Inbound, meta *Metadata) error
}

// ContextStore persists conversational memory. Failures are non-fatal to
// batching but abort the batched path (the fallback re-dispatches plainly).
type ContextStore interface {
	UpdateContext(ctx context.Context, chatID, senderID, text string, raw *message.Inbound) error
}

// Presence carries the cosmetic signals back to the chat platform.
type Presence interface {
	SendTyping(channel, chatID string) error
	MarkRead(channel, chatID, senderID, messageID string) error
}

// Engine is the per-scope batching and debounce state machine. A single
// mutex serializes every state mutation; the processor's suspensions
// (min-wait, grace window, dispatch pacing) sleep outside it so other scopes
// keep accumulating.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	store Store
	sched *Scheduler

	dispatcher Dispatcher
	contexts   ContextStore
	presence   Presence
}

func NewEngine(opts Options, store Store, d Dispatcher, cs ContextStore, p Presence) *Engine {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{
		opts:       opts,
		store:      store,
		sched:      NewScheduler(),
		dispatcher: d,
		contexts:   cs,
		presence:   p,
	}
}

// SetOptions swaps the timing knobs, affecting timers armed from now on.
// Called from the config hot-reload path.
func (e *Engine) SetOptions(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Fixed internals are not configurable; keep the current ones.
	opts.flushFloor = e.opts.flushFloor
	opts.graceWindow = e.opts.graceWindow
	opts.dispatchGap = e.opts.dispatchGap
	e.opts = opts
}

// OnMessage is the entry point for inbound content events.
func (e *Engine) OnMessage(msg *message.Inbound) {
	now := time.Now()

	e.mu.Lock()
	opts := e.opts
	sc := ResolveScope(msg.ChatID, msg.SenderID, opts.GroupSuffix)
	key := sc.Key()

	st := e.store.GetOrCreate(sc, func() *State { return &State{Scope: sc} })

	// A stale "still typing" signal must never block accumulation forever.
	if st.Typing && !st.LastTypingAt.IsZero() && now.Sub(st.LastTypingAt) > opts.staleAfter() {
		st.Typing = false
		slog.Debug("stale typing signal cleared", "scope", key, "age", now.Sub(st.LastTypingAt))
	}

	if st.Batch == nil {
		st.Batch = newBatch(now)
	}
	st.Batch.Messages = append(st.Batch.Messages, msg)
	st.MessageCount++
	if st.MessageCount == 1 {
		st.FirstMessageAt = now
	}

	// Every message restarts the debounce window.
	e.sched.Cancel(key, timerFlush)
	e.sched.Cancel(key, timerBackstop)
	e.sched.Cancel(key, timerFallback)

	if st.Batch.Processing {
		// Late arrival into an in-flight batch: appended above, folded in if
		// it lands inside the collection grace window. No new timers.
		e.mu.Unlock()
		slog.Debug("message joined in-flight batch", "scope", key, "count", st.MessageCount)
		return
	}

	if st.Typing {
		// Mid-sentence: no flush timer, only the guard against a missed
		// typing-stop event.
		e.sched.Schedule(key, timerFallback, opts.TypingFallback, func() { e.Finalize(sc) })
	} else {
		e.sched.Schedule(key, timerFlush, opts.flushDelay(), func() { e.Finalize(sc) })
	}

	// Composing indicator back to the remote party. Cosmetic only.
	channel, chatID := msg.Channel, msg.ChatID
	e.sched.Schedule(key, timerIndicator, opts.InitialDelay, func() {
		e.mu.Lock()
		st, ok := e.store.Get(sc)
		alive := ok && st.Batch != nil && !st.Batch.Processing
		e.mu.Unlock()
		if !alive || e.presence == nil {
			return
		}
		if err := e.presence.SendTyping(channel, chatID); err != nil {
			slog.Debug("typing indicator failed", "scope", key, "error", err)
		}
	})

	// Hard bound on turn latency, anchored to the first message. Re-armed
	// with the remaining time so the deadline survives the blanket cancel
	// above.
	remaining := opts.MaxWait - now.Sub(st.FirstMessageAt)
	if remaining < 0 {
		remaining = 0
	}
	e.sched.Schedule(key, timerBackstop, remaining, func() { e.Finalize(sc) })

	count, typing := st.MessageCount, st.Typing
	e.mu.Unlock()

	slog.Debug("message accumulated", "scope", key, "count", count, "typing", typing)
}

// OnTyping is the entry point for inbound typing/presence signals.
func (e *Engine) OnTyping(chatID, senderID string, typing bool) {
	now := time.Now()

	e.mu.Lock()
	opts := e.opts
	sc := ResolveScope(chatID, senderID, opts.GroupSuffix)
	key := sc.Key()

	// Recorded even before any message exists, so the first message that
	// follows reads an accurate typing state. No timers armed in that case.
	st := e.store.GetOrCreate(sc, func() *State { return &State{Scope: sc} })
	st.Typing = typing
	if typing {
		st.LastTypingAt = now
	}

	if st.Batch != nil && !st.Batch.Processing {
		if typing {
			// The user resumed typing: give them more time.
			e.sched.Cancel(key, timerFlush)
		} else if len(st.Batch.Messages) > 0 {
			e.sched.Schedule(key, timerFlush, opts.TypingTimeout, func() { e.Finalize(sc) })
		}
	}
	e.mu.Unlock()
}
