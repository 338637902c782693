package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burstlab/burstd/internal/message"
)

// testOptions returns millisecond-scale timings so scenarios run fast.
func testOptions() Options {
	o := DefaultOptions()
	o.TypingTimeout = 80 * time.Millisecond
	o.MaxWait = 400 * time.Millisecond
	o.MinWait = 40 * time.Millisecond
	o.InitialDelay = 25 * time.Millisecond
	o.TypingFallback = 250 * time.Millisecond
	o.flushFloor = 0
	o.graceWindow = 30 * time.Millisecond
	o.dispatchGap = 2 * time.Millisecond
	return o
}

type dispatched struct {
	msg  *message.Inbound
	meta *Metadata
	at   time.Time
}

// fakeSink implements all three collaborator interfaces and records calls.
type fakeSink struct {
	mu         sync.Mutex
	dispatches []dispatched
	contexts   []string // texts passed to UpdateContext
	reads      []string // message ids marked read
	typings    []string // chat ids that got a composing indicator

	ctxErr      error
	dispatchErr error
}

func (f *fakeSink) Dispatch(ctx context.Context, msg *message.Inbound, meta *Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, dispatched{msg: msg, meta: meta, at: time.Now()})
	return f.dispatchErr
}

func (f *fakeSink) UpdateContext(ctx context.Context, chatID, senderID, text string, raw *message.Inbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctxErr != nil {
		return f.ctxErr
	}
	f.contexts = append(f.contexts, text)
	return nil
}

func (f *fakeSink) SendTyping(channel, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typings = append(f.typings, chatID)
	return nil
}

func (f *fakeSink) MarkRead(channel, chatID, senderID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, messageID)
	return nil
}

func (f *fakeSink) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches)
}

func (f *fakeSink) snapshot() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatched, len(f.dispatches))
	copy(out, f.dispatches)
	return out
}

func newTestEngine(opts Options) (*Engine, *fakeSink) {
	sink := &fakeSink{}
	return NewEngine(opts, NewMemoryStore(), sink, sink, sink), sink
}

func inbound(chat, sender, text string) *message.Inbound {
	return &message.Inbound{
		Channel:   "test",
		ChatID:    chat,
		SenderID:  sender,
		Text:      text,
		MessageID: chat + "/" + text,
		Timestamp: time.Now(),
	}
}

func waitDispatches(t *testing.T, sink *fakeSink, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return sink.dispatchCount() >= want },
		3*time.Second, 5*time.Millisecond)
}

func TestFlushAfterSilence(t *testing.T) {
	// Scenario A: one message, not typing, batch finalizes after the flush
	// window with exactly that message.
	eng, sink := newTestEngine(testOptions())

	start := time.Now()
	eng.OnMessage(inbound("alice@s.net", "alice@s.net", "hi"))

	waitDispatches(t, sink, 1)
	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].msg.Text)
	require.NotNil(t, got[0].meta)
	assert.Equal(t, 1, got[0].meta.Position)
	assert.Equal(t, 1, got[0].meta.Total)
	assert.True(t, got[0].meta.First)
	assert.True(t, got[0].meta.Last)
	assert.Empty(t, got[0].meta.Siblings)

	// Not before the debounce window elapsed.
	assert.GreaterOrEqual(t, got[0].at.Sub(start), 70*time.Millisecond)

	// State torn down after processing.
	require.Eventually(t, func() bool { return eng.Status("alice@s.net", "") == nil },
		time.Second, 5*time.Millisecond)
}

func TestMessagesResetFlushTimer(t *testing.T) {
	// Scenario B: each message restarts the debounce window; the final batch
	// holds everything, in arrival order.
	eng, sink := newTestEngine(testOptions())

	eng.OnMessage(inbound("bob@s.net", "bob@s.net", "one"))
	time.Sleep(50 * time.Millisecond)
	eng.OnMessage(inbound("bob@s.net", "bob@s.net", "two"))
	time.Sleep(50 * time.Millisecond)
	eng.OnMessage(inbound("bob@s.net", "bob@s.net", "three"))

	waitDispatches(t, sink, 3)
	got := sink.snapshot()
	require.Len(t, got, 3)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, got[i].msg.Text)
		require.NotNil(t, got[i].meta)
		assert.Equal(t, i+1, got[i].meta.Position)
		assert.Equal(t, 3, got[i].meta.Total)
		assert.Len(t, got[i].meta.Siblings, 2)
	}
	assert.Equal(t, got[0].meta.BatchID, got[2].meta.BatchID)
}

func TestTypingExtendsWindow(t *testing.T) {
	// Scenario C: while typing no flush timer runs; a typing-stop arms one.
	opts := testOptions()
	opts.TypingFallback = time.Second // keep the fallback out of the way
	eng, sink := newTestEngine(opts)

	eng.OnTyping("carol@s.net", "carol@s.net", true)
	eng.OnMessage(inbound("carol@s.net", "carol@s.net", "first"))
	eng.OnMessage(inbound("carol@s.net", "carol@s.net", "second"))

	// Well past the flush window: still typing, so nothing dispatched.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, sink.dispatchCount())

	stopAt := time.Now()
	eng.OnTyping("carol@s.net", "carol@s.net", false)

	waitDispatches(t, sink, 2)
	got := sink.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].msg.Text)
	assert.Equal(t, "second", got[1].msg.Text)
	assert.GreaterOrEqual(t, got[0].at.Sub(stopAt), 70*time.Millisecond)
}

func TestTypingFallbackFires(t *testing.T) {
	// Scenario D: typing never stops; the fallback timer bounds the wait.
	eng, sink := newTestEngine(testOptions())

	eng.OnTyping("dave@s.net", "dave@s.net", true)
	sentAt := time.Now()
	eng.OnMessage(inbound("dave@s.net", "dave@s.net", "stuck"))

	waitDispatches(t, sink, 1)
	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "stuck", got[0].msg.Text)
	assert.GreaterOrEqual(t, got[0].at.Sub(sentAt), 240*time.Millisecond)
}

func TestBackstopBoundsLatency(t *testing.T) {
	// P3: messages keep arriving inside the flush window, but the batch
	// still finalizes no later than MaxWait after the first message.
	eng, sink := newTestEngine(testOptions())

	chat := "eve@s.net"
	firstAt := time.Now()
	stop := make(chan struct{})
	go func() {
		defer close(stop)
		for i := 0; ; i++ {
			if sink.dispatchCount() > 0 || time.Since(firstAt) > 2*time.Second {
				return
			}
			eng.OnMessage(inbound(chat, chat, "spam"))
			time.Sleep(40 * time.Millisecond)
		}
	}()

	waitDispatches(t, sink, 1)
	<-stop
	got := sink.snapshot()
	// MaxWait 400ms + min-wait/grace/scheduling slack.
	assert.Less(t, got[0].at.Sub(firstAt), time.Second)
	require.NotNil(t, got[0].meta)
	assert.Greater(t, got[0].meta.Total, 1)
}

func TestStaleTypingSignalCleared(t *testing.T) {
	// P5: a typing flag older than twice the typing timeout no longer
	// suppresses the flush timer.
	eng, sink := newTestEngine(testOptions())

	chat := "frank@s.net"
	eng.OnTyping(chat, chat, true)
	time.Sleep(200 * time.Millisecond) // staleAfter is 160ms

	sentAt := time.Now()
	eng.OnMessage(inbound(chat, chat, "hello?"))

	st := eng.Status(chat, "")
	require.NotNil(t, st)
	assert.False(t, st.Typing, "stale typing flag should be cleared on message arrival")

	waitDispatches(t, sink, 1)
	got := sink.snapshot()
	// Normal debounce, not the 250ms fallback.
	assert.Less(t, got[0].at.Sub(sentAt), 230*time.Millisecond)
}

func TestProcessingGuardIsNoOp(t *testing.T) {
	// P6: flushing a scope that is already processing does nothing.
	opts := testOptions()
	opts.graceWindow = 150 * time.Millisecond
	eng, sink := newTestEngine(opts)

	chat := "grace@s.net"
	eng.OnMessage(inbound(chat, chat, "only"))
	require.Equal(t, 1, eng.Flush(chat, ""))

	require.Eventually(t, func() bool {
		st := eng.Status(chat, "")
		return st != nil && st.Processing
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, eng.Flush(chat, ""))

	waitDispatches(t, sink, 1)
	assert.Equal(t, 1, sink.dispatchCount())
}

func TestGroupMembersBatchIndependently(t *testing.T) {
	// P7: two participants of one group accumulate and finalize separately.
	eng, sink := newTestEngine(testOptions())

	chat := "team@g.us"
	eng.OnMessage(inbound(chat, "ann", "a1"))
	eng.OnMessage(inbound(chat, "ann", "a2"))
	eng.OnMessage(inbound(chat, "ben", "b1"))

	g := eng.GroupStatusAll(chat)
	require.NotNil(t, g)
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, 2, g.Participants["ann"].MessageCount)
	assert.Equal(t, 1, g.Participants["ben"].MessageCount)

	waitDispatches(t, sink, 3)
	byBatch := map[string][]string{}
	for _, d := range sink.snapshot() {
		require.NotNil(t, d.meta)
		byBatch[d.meta.BatchID] = append(byBatch[d.meta.BatchID], d.msg.Text)
	}
	require.Len(t, byBatch, 2)
	for _, texts := range byBatch {
		switch len(texts) {
		case 2:
			assert.Equal(t, []string{"a1", "a2"}, texts)
		case 1:
			assert.Equal(t, []string{"b1"}, texts)
		default:
			t.Fatalf("unexpected batch %v", texts)
		}
	}

	// Both scopes torn down, group entry gone with them.
	require.Eventually(t, func() bool { return eng.GroupStatusAll(chat) == nil },
		time.Second, 5*time.Millisecond)
}

func TestGraceWindowFoldsLateMessage(t *testing.T) {
	opts := testOptions()
	opts.graceWindow = 120 * time.Millisecond
	eng, sink := newTestEngine(opts)

	chat := "henry@s.net"
	eng.OnMessage(inbound(chat, chat, "early"))
	require.Equal(t, 1, eng.Flush(chat, ""))

	require.Eventually(t, func() bool {
		st := eng.Status(chat, "")
		return st != nil && st.Processing
	}, time.Second, 5*time.Millisecond)

	// Lands inside the grace window: appended to the in-flight batch.
	eng.OnMessage(inbound(chat, chat, "late"))

	waitDispatches(t, sink, 2)
	got := sink.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].msg.Text)
	assert.Equal(t, "late", got[1].msg.Text)
	assert.Equal(t, 2, got[0].meta.Total)
}

func TestContextFailureFallsBackToIndependentDispatch(t *testing.T) {
	eng, sink := newTestEngine(testOptions())
	sink.ctxErr = errors.New("context store down")

	chat := "iris@s.net"
	eng.OnMessage(inbound(chat, chat, "one"))
	eng.OnMessage(inbound(chat, chat, "two"))

	waitDispatches(t, sink, 2)
	got := sink.snapshot()
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Nil(t, d.meta, "fallback dispatch carries no batch metadata")
	}
	assert.Equal(t, "one", got[0].msg.Text)
	assert.Equal(t, "two", got[1].msg.Text)

	// Scope still torn down despite the failure.
	require.Eventually(t, func() bool { return eng.Status(chat, "") == nil },
		time.Second, 5*time.Millisecond)
}

func TestDispatchErrorDoesNotAbortBatch(t *testing.T) {
	eng, sink := newTestEngine(testOptions())
	sink.dispatchErr = errors.New("generator busy")

	chat := "judy@s.net"
	eng.OnMessage(inbound(chat, chat, "x"))
	eng.OnMessage(inbound(chat, chat, "y"))

	// Both messages still offered, with metadata (the batched path ran).
	waitDispatches(t, sink, 2)
	for _, d := range sink.snapshot() {
		assert.NotNil(t, d.meta)
	}
}

func TestSideEffectsPerMessage(t *testing.T) {
	eng, sink := newTestEngine(testOptions())

	chat := "kate@s.net"
	eng.OnMessage(inbound(chat, chat, "m1"))
	eng.OnMessage(inbound(chat, chat, "m2"))

	waitDispatches(t, sink, 2)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"m1", "m2"}, sink.contexts)
	assert.Equal(t, []string{chat + "/m1", chat + "/m2"}, sink.reads)
	assert.NotEmpty(t, sink.typings, "composing indicator should fire after the initial delay")
}

func TestFlushWithoutBatch(t *testing.T) {
	eng, _ := newTestEngine(testOptions())
	assert.Equal(t, 0, eng.Flush("nobody@s.net", ""))
	assert.Nil(t, eng.Status("nobody@s.net", ""))
}

func TestTypingBeforeFirstMessageIsRecorded(t *testing.T) {
	opts := testOptions()
	opts.TypingFallback = 150 * time.Millisecond
	eng, sink := newTestEngine(opts)

	chat := "liam@s.net"
	eng.OnTyping(chat, chat, true)

	st := eng.Status(chat, "")
	require.NotNil(t, st)
	assert.True(t, st.Typing)
	assert.Equal(t, 0, st.MessageCount)
	assert.Equal(t, 0, sink.dispatchCount())

	// The first message reads the recorded flag and takes the typing branch:
	// no flush at 80ms, fallback at 150ms.
	sentAt := time.Now()
	eng.OnMessage(inbound(chat, chat, "here"))
	waitDispatches(t, sink, 1)
	assert.GreaterOrEqual(t, sink.snapshot()[0].at.Sub(sentAt), 140*time.Millisecond)
}

func TestPruneIdleTypingScopes(t *testing.T) {
	eng, _ := newTestEngine(testOptions())

	eng.OnTyping("mia@s.net", "mia@s.net", true)
	eng.OnMessage(inbound("busy@s.net", "busy@s.net", "keep me"))

	time.Sleep(30 * time.Millisecond)
	pruned := eng.PruneIdle(10 * time.Millisecond)
	assert.Equal(t, 1, pruned)
	assert.Nil(t, eng.Status("mia@s.net", ""))
	assert.NotNil(t, eng.Status("busy@s.net", ""))
}

func TestGroupFlushAll(t *testing.T) {
	opts := testOptions()
	opts.TypingTimeout = 500 * time.Millisecond // far off; the flush forces it
	eng, sink := newTestEngine(opts)

	chat := "crew@g.us"
	eng.OnMessage(inbound(chat, "ann", "a"))
	eng.OnMessage(inbound(chat, "ben", "b"))

	assert.Equal(t, 2, eng.Flush(chat, ""))
	waitDispatches(t, sink, 2)
}
