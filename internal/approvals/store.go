package approvals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"adspilot/internal/api"
	"adspilot/internal/events"
)

var (
	// ErrNotPending refuses a transition for a proposal the client already
	// knows has left pending. No network call is made.
	ErrNotPending = errors.New("proposal is no longer pending")
	// ErrInFlight refuses a duplicate transition while one is in flight for
	// the same id. Duplicate approves could double-execute the action.
	ErrInFlight = errors.New("a decision for this proposal is already in flight")
	// ErrEmptySelection refuses a bulk approve with no ids.
	ErrEmptySelection = errors.New("no proposals selected")
)

// Audit receives successful decisions for local record-keeping. Optional.
type Audit interface {
	RecordDecision(approvalID int64, action, outcome, message string) error
}

// Backend is the slice of the API client the store needs.
type Backend interface {
	ListApprovals(ctx context.Context, status api.Status) ([]api.Approval, error)
	PendingCount(ctx context.Context) (int, error)
	Approve(ctx context.Context, id int64, notes string) (*api.DecisionResult, error)
	Reject(ctx context.Context, id int64, notes string) (*api.DecisionResult, error)
	BulkApprove(ctx context.Context, ids []int64) (*api.BulkResult, error)
}

type listEntry struct {
	items     []api.Approval
	fetchedAt time.Time
}

// Store is the cached client-side view of the proposal queue, partitioned by
// status. Reads tolerate a short staleness window; every mutation that
// succeeds publishes invalidations on the bus instead of patching cached
// items in place, so the next read refetches ground truth.
type Store struct {
	backend Backend
	bus     *events.Bus
	audit   Audit
	logger  *slog.Logger
	ttl     time.Duration

	mu           sync.Mutex
	lists        map[api.Status]listEntry
	count        int
	countFetched time.Time
	inFlight     map[int64]bool
	resolved     map[int64]api.Status
}

func NewStore(backend Backend, bus *events.Bus, audit Audit, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		backend:  backend,
		bus:      bus,
		audit:    audit,
		logger:   logger,
		ttl:      ttl,
		lists:    make(map[api.Status]listEntry),
		inFlight: make(map[int64]bool),
		resolved: make(map[int64]api.Status),
	}

	bus.Subscribe(events.TopicPendingList, func() { s.dropList(api.StatusPending) })
	bus.Subscribe(events.TopicApprovalsAll, s.dropAllLists)
	bus.Subscribe(events.TopicPendingCount, s.dropCount)

	return s
}

// List returns the proposals under a status tab, served from cache within
// the staleness window.
func (s *Store) List(ctx context.Context, status api.Status) ([]api.Approval, error) {
	s.mu.Lock()
	if entry, ok := s.lists[status]; ok && time.Since(entry.fetchedAt) <= s.ttl {
		items := make([]api.Approval, len(entry.items))
		copy(items, entry.items)
		s.mu.Unlock()
		return items, nil
	}
	s.mu.Unlock()

	items, err := s.backend.ListApprovals(ctx, status)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lists[status] = listEntry{items: items, fetchedAt: time.Now()}
	s.mu.Unlock()

	out := make([]api.Approval, len(items))
	copy(out, items)
	return out, nil
}

// PendingCount returns the pending counter, cached like a list.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.countFetched.IsZero() && time.Since(s.countFetched) <= s.ttl {
		count := s.count
		s.mu.Unlock()
		return count, nil
	}
	s.mu.Unlock()

	return s.RefreshPendingCount(ctx)
}

// RefreshPendingCount bypasses the cache; the poller uses it so the badge
// converges on the true count every interval.
func (s *Store) RefreshPendingCount(ctx context.Context) (int, error) {
	count, err := s.backend.PendingCount(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.count = count
	s.countFetched = time.Now()
	s.mu.Unlock()

	return count, nil
}

// Approve approves one pending proposal, which executes its action remotely.
// The result status is terminal: executed or failed.
func (s *Store) Approve(ctx context.Context, id int64, notes string) (*api.DecisionResult, error) {
	if err := s.begin(id); err != nil {
		return nil, err
	}
	defer s.end(id)

	result, err := s.backend.Approve(ctx, id, notes)
	if err != nil {
		// Caches stay untouched; the proposal is still pending for retry.
		return nil, err
	}

	outcome := api.Status(result.Status)
	if outcome != api.StatusExecuted && outcome != api.StatusFailed {
		outcome = api.StatusExecuted
	}
	s.markResolved(id, outcome)
	s.recordDecision(id, "approve", string(outcome), result.Message)
	s.publishMutation()

	return result, nil
}

// Reject rejects one pending proposal without executing anything.
func (s *Store) Reject(ctx context.Context, id int64, notes string) (*api.DecisionResult, error) {
	if err := s.begin(id); err != nil {
		return nil, err
	}
	defer s.end(id)

	result, err := s.backend.Reject(ctx, id, notes)
	if err != nil {
		return nil, err
	}

	s.markResolved(id, api.StatusRejected)
	s.recordDecision(id, "reject", string(api.StatusRejected), result.Message)
	s.publishMutation()

	return result, nil
}

// BulkApprove approves a set of pending proposals in one logical operation
// and reports how many were approved. Ids the client already knows are
// resolved get dropped from the batch before the call, so retrying a batch
// never re-submits decided proposals; the backend skips non-pending ids as
// well.
func (s *Store) BulkApprove(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptySelection
	}

	s.mu.Lock()
	batch := make([]int64, 0, len(ids))
	for _, id := range ids {
		if s.inFlight[id] {
			s.mu.Unlock()
			return 0, ErrInFlight
		}
		if status, ok := s.knownStatusLocked(id); ok && status != api.StatusPending {
			continue
		}
		batch = append(batch, id)
	}
	if len(batch) == 0 {
		s.mu.Unlock()
		return 0, ErrNotPending
	}
	for _, id := range batch {
		s.inFlight[id] = true
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		for _, id := range batch {
			delete(s.inFlight, id)
		}
		s.mu.Unlock()
	}()

	result, err := s.backend.BulkApprove(ctx, batch)
	if err != nil {
		// All-or-nothing from the client's perspective: caches untouched,
		// the whole batch is safe to retry.
		return 0, err
	}

	for _, item := range result.Results {
		if item.Status == "not_found" {
			continue
		}
		outcome := api.Status(item.Status)
		if outcome != api.StatusExecuted && outcome != api.StatusFailed {
			outcome = api.StatusExecuted
		}
		s.markResolved(item.ID, outcome)
		s.recordDecision(item.ID, "bulk-approve", string(outcome), item.Message)
	}
	s.publishMutation()

	return result.Approved(), nil
}

// begin runs the transition preconditions and claims the in-flight slot.
func (s *Store) begin(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[id] {
		return ErrInFlight
	}
	if status, ok := s.knownStatusLocked(id); ok && status != api.StatusPending {
		return fmt.Errorf("proposal %d is already %s: %w", id, status, ErrNotPending)
	}
	s.inFlight[id] = true
	return nil
}

func (s *Store) end(id int64) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// knownStatusLocked reports the client's best knowledge of a proposal's
// status: decisions this process made, then cached list entries. Unknown ids
// are let through; the backend is the authority.
func (s *Store) knownStatusLocked(id int64) (api.Status, bool) {
	if status, ok := s.resolved[id]; ok {
		return status, true
	}
	for _, entry := range s.lists {
		for _, a := range entry.items {
			if a.ID == id {
				return a.Status, true
			}
		}
	}
	return "", false
}

func (s *Store) markResolved(id int64, status api.Status) {
	s.mu.Lock()
	s.resolved[id] = status
	s.mu.Unlock()
}

// publishMutation announces a confirmed status change. The store's own
// caches clear through its subscriptions, along with any other subscriber.
func (s *Store) publishMutation() {
	s.bus.Publish(events.TopicApprovalsAll)
	s.bus.Publish(events.TopicPendingCount)
}

func (s *Store) recordDecision(id int64, action, outcome, message string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordDecision(id, action, outcome, message); err != nil {
		s.logger.Error("recording decision", "approval_id", id, "error", err)
	}
}

func (s *Store) dropList(status api.Status) {
	s.mu.Lock()
	delete(s.lists, status)
	s.mu.Unlock()
}

func (s *Store) dropAllLists() {
	s.mu.Lock()
	s.lists = make(map[api.Status]listEntry)
	s.mu.Unlock()
}

func (s *Store) dropCount() {
	s.mu.Lock()
	s.countFetched = time.Time{}
	s.mu.Unlock()
}
