package scene

import "sort"

// Snapshot records the most recently received edit per target.
// It is not safe for concurrent use; the relay loop owns it.
type Snapshot struct {
	entries map[string]EditEvent
}

func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]EditEvent)}
}

// Apply overwrites the entry for ev.Target.
func (s *Snapshot) Apply(ev EditEvent) {
	s.entries[ev.Target] = ev
}

func (s *Snapshot) Get(target string) (EditEvent, bool) {
	ev, ok := s.entries[target]
	return ev, ok
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns a copy of every entry ordered by target.
func (s *Snapshot) Entries() []EditEvent {
	out := make([]EditEvent, 0, len(s.entries))
	for _, ev := range s.entries {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target < out[j].Target
	})
	return out
}
