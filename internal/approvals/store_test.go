package approvals_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adspilot/internal/api"
	"adspilot/internal/approvals"
	"adspilot/internal/events"
)

type fakeBackend struct {
	mu         sync.Mutex
	lists      map[api.Status][]api.Approval
	count      int
	approveRes *api.DecisionResult
	approveErr error
	rejectRes  *api.DecisionResult
	bulkRes    *api.BulkResult
	bulkErr    error

	listCalls    int
	countCalls   int
	approveCalls int
	bulkCalls    int
	lastBulkIDs  []int64
}

func (f *fakeBackend) ListApprovals(ctx context.Context, status api.Status) ([]api.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.lists[status], nil
}

func (f *fakeBackend) PendingCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return f.count, nil
}

func (f *fakeBackend) Approve(ctx context.Context, id int64, notes string) (*api.DecisionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls++
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return f.approveRes, nil
}

func (f *fakeBackend) Reject(ctx context.Context, id int64, notes string) (*api.DecisionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rejectRes, nil
}

func (f *fakeBackend) BulkApprove(ctx context.Context, ids []int64) (*api.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	f.lastBulkIDs = append([]int64(nil), ids...)
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	return f.bulkRes, nil
}

type memAudit struct {
	mu      sync.Mutex
	records []string
}

func (m *memAudit) RecordDecision(approvalID int64, action, outcome, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, action+":"+outcome)
	return nil
}

func pendingApproval(id int64) api.Approval {
	return api.Approval{ID: id, ActionType: api.ActionPauseCampaign, Status: api.StatusPending, CampaignName: "Campanha Teste"}
}

func TestStore_ListServedFromCache(t *testing.T) {
	backend := &fakeBackend{lists: map[api.Status][]api.Approval{
		api.StatusPending: {pendingApproval(1), pendingApproval(2)},
	}}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		items, err := s.List(context.Background(), api.StatusPending)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("got %d items", len(items))
		}
	}
	if backend.listCalls != 1 {
		t.Errorf("expected one backend fetch within the window, got %d", backend.listCalls)
	}
}

func TestStore_ApproveInvalidatesCaches(t *testing.T) {
	backend := &fakeBackend{
		lists: map[api.Status][]api.Approval{
			api.StatusPending: {pendingApproval(1)},
		},
		count:      1,
		approveRes: &api.DecisionResult{Message: "Ação executada com sucesso!", Status: "executed"},
	}
	audit := &memAudit{}
	s := approvals.NewStore(backend, events.NewBus(), audit, time.Minute, nil)

	if _, err := s.List(context.Background(), api.StatusPending); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PendingCount(context.Background()); err != nil {
		t.Fatal(err)
	}

	result, err := s.Approve(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if result.Status != "executed" {
		t.Errorf("result status %q", result.Status)
	}
	if len(audit.records) != 1 || audit.records[0] != "approve:executed" {
		t.Errorf("audit records %v", audit.records)
	}

	backend.mu.Lock()
	backend.lists[api.StatusPending] = nil
	backend.count = 0
	backend.mu.Unlock()

	items, err := s.List(context.Background(), api.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("cache should have been dropped, still serving %d items", len(items))
	}
	count, err := s.PendingCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count cache should have been dropped, got %d", count)
	}
	if backend.listCalls != 2 || backend.countCalls != 2 {
		t.Errorf("expected refetch after invalidation, list=%d count=%d", backend.listCalls, backend.countCalls)
	}
}

func TestStore_ApproveFailureLeavesCachesIntact(t *testing.T) {
	backend := &fakeBackend{
		lists: map[api.Status][]api.Approval{
			api.StatusPending: {pendingApproval(1)},
		},
		approveErr: errors.New("500 from backend"),
	}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.List(context.Background(), api.StatusPending); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Approve(context.Background(), 1, ""); err == nil {
		t.Fatal("expected an error")
	}

	if _, err := s.List(context.Background(), api.StatusPending); err != nil {
		t.Fatal(err)
	}
	if backend.listCalls != 1 {
		t.Errorf("failed approve must not invalidate, listCalls=%d", backend.listCalls)
	}

	// Still pending, so a retry goes through.
	backend.mu.Lock()
	backend.approveErr = nil
	backend.approveRes = &api.DecisionResult{Message: "ok", Status: "executed"}
	backend.mu.Unlock()
	if _, err := s.Approve(context.Background(), 1, ""); err != nil {
		t.Fatalf("retry after failure refused: %v", err)
	}
}

func TestStore_SecondApproveRefusedWithoutNetwork(t *testing.T) {
	backend := &fakeBackend{
		approveRes: &api.DecisionResult{Message: "ok", Status: "executed"},
	}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.Approve(context.Background(), 7, ""); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}

	_, err := s.Approve(context.Background(), 7, "")
	if !errors.Is(err, approvals.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if backend.approveCalls != 1 {
		t.Errorf("second approve must not reach the backend, calls=%d", backend.approveCalls)
	}
}

func TestStore_ApproveKnownRejectedRefused(t *testing.T) {
	backend := &fakeBackend{
		lists: map[api.Status][]api.Approval{
			api.StatusRejected: {{ID: 3, Status: api.StatusRejected}},
		},
	}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.List(context.Background(), api.StatusRejected); err != nil {
		t.Fatal(err)
	}

	_, err := s.Approve(context.Background(), 3, "")
	if !errors.Is(err, approvals.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if backend.approveCalls != 0 {
		t.Errorf("approve of a known-rejected proposal reached the backend")
	}
}

func TestStore_BulkApprove(t *testing.T) {
	bus := events.NewBus()
	backend := &fakeBackend{
		lists: map[api.Status][]api.Approval{
			api.StatusPending: {pendingApproval(1), pendingApproval(2), pendingApproval(3)},
		},
		bulkRes: &api.BulkResult{Results: []api.BulkItem{
			{ID: 1, Status: "executed", Message: "ok"},
			{ID: 2, Status: "failed", Message: "orçamento inválido"},
			{ID: 3, Status: "not_found"},
		}},
	}
	audit := &memAudit{}
	s := approvals.NewStore(backend, bus, audit, time.Minute, nil)
	sel := approvals.NewSelection(bus)
	sel.Toggle(1)
	sel.Toggle(2)
	sel.Toggle(3)

	approved, err := s.BulkApprove(context.Background(), sel.IDs())
	if err != nil {
		t.Fatalf("BulkApprove failed: %v", err)
	}
	if approved != 2 {
		t.Errorf("approved = %d, not_found rows must not count", approved)
	}
	if sel.Count() != 0 {
		t.Errorf("selection should clear on the mutation event, still %d", sel.Count())
	}
	if len(audit.records) != 2 {
		t.Errorf("audit records %v", audit.records)
	}

	// Executed and failed are both terminal; not_found stays unknown.
	if _, err := s.Approve(context.Background(), 2, ""); !errors.Is(err, approvals.ErrNotPending) {
		t.Errorf("failed outcome should still be terminal, got %v", err)
	}
}

func TestStore_BulkApproveFiltersResolvedIDs(t *testing.T) {
	backend := &fakeBackend{
		approveRes: &api.DecisionResult{Message: "ok", Status: "executed"},
		bulkRes: &api.BulkResult{Results: []api.BulkItem{
			{ID: 2, Status: "executed", Message: "ok"},
		}},
	}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.Approve(context.Background(), 1, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.BulkApprove(context.Background(), []int64{1, 2}); err != nil {
		t.Fatalf("BulkApprove failed: %v", err)
	}
	if len(backend.lastBulkIDs) != 1 || backend.lastBulkIDs[0] != 2 {
		t.Errorf("resolved id not filtered from batch: %v", backend.lastBulkIDs)
	}

	// All ids already resolved: refuse before the network.
	if _, err := s.BulkApprove(context.Background(), []int64{1, 2}); !errors.Is(err, approvals.ErrNotPending) {
		t.Errorf("expected ErrNotPending, got %v", err)
	}
	if backend.bulkCalls != 1 {
		t.Errorf("fully-resolved batch reached the backend, calls=%d", backend.bulkCalls)
	}
}

func TestStore_BulkApproveEmptySelection(t *testing.T) {
	s := approvals.NewStore(&fakeBackend{}, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.BulkApprove(context.Background(), nil); !errors.Is(err, approvals.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestStore_BulkApproveFailureKeepsBatchRetryable(t *testing.T) {
	backend := &fakeBackend{bulkErr: errors.New("timeout")}
	s := approvals.NewStore(backend, events.NewBus(), nil, time.Minute, nil)

	if _, err := s.BulkApprove(context.Background(), []int64{1, 2}); err == nil {
		t.Fatal("expected an error")
	}

	backend.mu.Lock()
	backend.bulkErr = nil
	backend.bulkRes = &api.BulkResult{Results: []api.BulkItem{
		{ID: 1, Status: "executed"},
		{ID: 2, Status: "executed"},
	}}
	backend.mu.Unlock()

	approved, err := s.BulkApprove(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if approved != 2 {
		t.Errorf("approved = %d", approved)
	}
}
