package batch

import "time"

// ScopeStatus is a read-only snapshot of one scope's batch and typing state.
type ScopeStatus struct {
	MessageCount int       `json:"messageCount"`
	StartedAt    time.Time `json:"startedAt"`
	Processing   bool      `json:"processing"`
	Typing       bool      `json:"typing"`
	LastTypingAt time.Time `json:"lastTypingAt,omitempty"`
}

// GroupStatus aggregates every active participant of a multi-party chat.
type GroupStatus struct {
	Participants map[string]*ScopeStatus `json:"participants"`
	Count        int                     `json:"count"`
}

func snapshot(st *State) *ScopeStatus {
	s := &ScopeStatus{
		MessageCount: st.MessageCount,
		Typing:       st.Typing,
		LastTypingAt: st.LastTypingAt,
	}
	if st.Batch != nil {
		s.StartedAt = st.Batch.StartedAt
		s.Processing = st.Batch.Processing
	}
	return s
}

// IsGroupChat reports whether chatID carries the configured group suffix.
func (e *Engine) IsGroupChat(chatID string) bool {
	e.mu.Lock()
	suffix := e.opts.GroupSuffix
	e.mu.Unlock()
	return ResolveScope(chatID, "", suffix).Kind == ScopeGroupMember
}

// Status returns the snapshot for a single scope, or nil if it has no live
// state. participantID is required for a specific group member.
func (e *Engine) Status(chatID, participantID string) *ScopeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	sc := ResolveScope(chatID, participantID, e.opts.GroupSuffix)
	st, ok := e.store.Get(sc)
	if !ok {
		return nil
	}
	return snapshot(st)
}

// GroupStatusAll returns snapshots for every active participant of a
// multi-party chat, or nil if none are active.
func (e *Engine) GroupStatusAll(chatID string) *GroupStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	members := e.store.Members(chatID)
	if len(members) == 0 {
		return nil
	}
	out := &GroupStatus{Participants: make(map[string]*ScopeStatus, len(members))}
	for id, st := range members {
		out.Participants[id] = snapshot(st)
	}
	out.Count = len(out.Participants)
	return out
}

// Flush immediately finalizes the scope's batch, bypassing remaining timers.
// With an empty participantID on a group chat it flushes every active
// participant. Returns how many finalizations were started.
func (e *Engine) Flush(chatID, participantID string) int {
	e.mu.Lock()
	groupSuffix := e.opts.GroupSuffix
	sc := ResolveScope(chatID, participantID, groupSuffix)

	var targets []Scope
	if sc.Kind == ScopeGroupMember && participantID == "" {
		for id := range e.store.Members(chatID) {
			targets = append(targets, Scope{Kind: ScopeGroupMember, ChatID: chatID, ParticipantID: id})
		}
	} else if st, ok := e.store.Get(sc); ok && st.Batch != nil && !st.Batch.Processing && len(st.Batch.Messages) > 0 {
		targets = append(targets, sc)
	}
	e.mu.Unlock()

	for _, t := range targets {
		go e.Finalize(t)
	}
	return len(targets)
}

// PruneIdle removes scopes that hold only a stale typing flag and no batch.
// Typing-only scopes are never torn down by the processor (teardown runs at
// batch completion), so a periodic sweep keeps the tables from leaking.
func (e *Engine) PruneIdle(olderThan time.Duration) int {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var stale []Scope
	e.store.Range(func(sc Scope, st *State) bool {
		if st.Batch != nil || st.MessageCount > 0 {
			return true
		}
		// A scope that only ever saw a typing-stop signal records no
		// timestamp; it carries no information and goes too.
		if st.LastTypingAt.IsZero() && !st.Typing {
			stale = append(stale, sc)
		} else if !st.LastTypingAt.IsZero() && now.Sub(st.LastTypingAt) > olderThan {
			stale = append(stale, sc)
		}
		return true
	})
	for _, sc := range stale {
		e.sched.CancelAll(sc.Key())
		e.store.Delete(sc)
	}
	return len(stale)
}
