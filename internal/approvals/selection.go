package approvals

import (
	"sort"
	"sync"

	"adspilot/internal/api"
	"adspilot/internal/events"
)

// Selection tracks the proposal ids checked for a bulk approve. It only
// means anything on the pending tab: switching tabs clears it, and so does
// any successful transition (via the bus), so it can never reference
// proposals that already left the pending partition.
type Selection struct {
	mu  sync.Mutex
	tab api.Status
	ids map[int64]struct{}
}

func NewSelection(bus *events.Bus) *Selection {
	s := &Selection{
		tab: api.StatusPending,
		ids: make(map[int64]struct{}),
	}
	if bus != nil {
		bus.Subscribe(events.TopicApprovalsAll, s.Clear)
	}
	return s
}

// SetTab records the active status tab, clearing the selection whenever the
// tab actually changes.
func (s *Selection) SetTab(tab api.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tab != s.tab {
		s.tab = tab
		s.ids = make(map[int64]struct{})
	}
}

// Toggle adds the id if absent, removes it if present. Ignored off the
// pending tab.
func (s *Selection) Toggle(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab != api.StatusPending {
		return
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
}

// SelectAll replaces the selection with the given visible pending ids.
func (s *Selection) SelectAll(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab != api.StatusPending {
		return
	}
	s.ids = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[int64]struct{})
}

func (s *Selection) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the selected ids in ascending order. Membership is a set;
// ordering here is only for stable request bodies and display.
func (s *Selection) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
