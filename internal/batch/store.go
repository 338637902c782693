package batch

// Store holds per-scope state, keyed by the resolved Scope. Implementations
// need atomic get-or-create and delete per key; the engine serializes all
// calls under its own lock, so implementations are not required to be safe
// for concurrent use on their own.
type Store interface {
	// GetOrCreate returns the state for sc, creating it via create if absent.
	GetOrCreate(sc Scope, create func() *State) *State
	// Get returns the state for sc if present.
	Get(sc Scope) (*State, bool)
	// Delete removes the state for sc. Removing the last participant of a
	// group chat removes the chat's entry as well.
	Delete(sc Scope)
	// Members returns participant id -> state for a multi-party chat.
	Members(chatID string) map[string]*State
	// Range visits every live state until fn returns false.
	Range(fn func(sc Scope, st *State) bool)
}

// MemoryStore is the in-process Store used by default.
type MemoryStore struct {
	personal map[string]*State
	groups   map[string]map[string]*State // chatID -> participantID -> state
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		personal: make(map[string]*State),
		groups:   make(map[string]map[string]*State),
	}
}

func (m *MemoryStore) GetOrCreate(sc Scope, create func() *State) *State {
	if sc.Kind == ScopeGroupMember {
		members, ok := m.groups[sc.ChatID]
		if !ok {
			members = make(map[string]*State)
			m.groups[sc.ChatID] = members
		}
		if st, ok := members[sc.ParticipantID]; ok {
			return st
		}
		st := create()
		members[sc.ParticipantID] = st
		return st
	}
	if st, ok := m.personal[sc.ChatID]; ok {
		return st
	}
	st := create()
	m.personal[sc.ChatID] = st
	return st
}

func (m *MemoryStore) Get(sc Scope) (*State, bool) {
	if sc.Kind == ScopeGroupMember {
		members, ok := m.groups[sc.ChatID]
		if !ok {
			return nil, false
		}
		st, ok := members[sc.ParticipantID]
		return st, ok
	}
	st, ok := m.personal[sc.ChatID]
	return st, ok
}

func (m *MemoryStore) Delete(sc Scope) {
	if sc.Kind == ScopeGroupMember {
		members, ok := m.groups[sc.ChatID]
		if !ok {
			return
		}
		delete(members, sc.ParticipantID)
		if len(members) == 0 {
			delete(m.groups, sc.ChatID)
		}
		return
	}
	delete(m.personal, sc.ChatID)
}

func (m *MemoryStore) Members(chatID string) map[string]*State {
	members, ok := m.groups[chatID]
	if !ok {
		return nil
	}
	out := make(map[string]*State, len(members))
	for id, st := range members {
		out[id] = st
	}
	return out
}

func (m *MemoryStore) Range(fn func(sc Scope, st *State) bool) {
	for chatID, st := range m.personal {
		if !fn(Scope{Kind: ScopePersonal, ChatID: chatID}, st) {
			return
		}
	}
	for chatID, members := range m.groups {
		for pid, st := range members {
			if !fn(Scope{Kind: ScopeGroupMember, ChatID: chatID, ParticipantID: pid}, st) {
				return
			}
		}
	}
}
