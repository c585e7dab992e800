package record

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"civicledger/internal/budget"
	"civicledger/pkg/errors"
)

func seedProject(t *testing.T, s Store, budgetUnits int64) *Project {
	t.Helper()
	p := &Project{
		ID:        uuid.NewString(),
		Name:      "Road Resurfacing",
		Ward:      "ward-7",
		Budget:    budgetUnits,
		CreatedBy: "official-1",
	}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := seedProject(t, s, 1_000_000)
	if p.Status != "active" || p.Ledger.SyncState != SyncUnsynced {
		t.Errorf("defaults not applied: %+v", p)
	}

	if err := s.CreateProject(ctx, &Project{ID: p.ID}); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("duplicate create = %v, want ErrConflict", err)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil || got.Budget != 1_000_000 {
		t.Fatalf("GetProject: %+v, %v", got, err)
	}

	if _, err := s.UpdateProjectBudget(ctx, p.ID, 1_200_000); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetProject(ctx, p.ID)
	if got.Budget != 1_200_000 {
		t.Errorf("budget = %d, want 1200000", got.Budget)
	}

	if _, err := s.GetProject(ctx, uuid.NewString()); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing project = %v, want ErrNotFound", err)
	}
}

func TestTransitionExpenditureAtomicDelta(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProject(t, s, 1_000_000)

	e := &Expenditure{ID: uuid.NewString(), ProjectID: p.ID, Amount: 200_000, Category: "materials"}
	if err := s.CreateExpenditure(ctx, e); err != nil {
		t.Fatal(err)
	}
	if e.ApprovalState != budget.StateNotApproved {
		t.Errorf("default approval state = %s", e.ApprovalState)
	}

	// 审批：spent +200000
	res, err := s.TransitionExpenditure(ctx, e.ID, budget.StateApproved, 200_000, "auditor-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewSpent != 200_000 || res.Budget != 1_000_000 {
		t.Errorf("after approve: spent=%d budget=%d", res.NewSpent, res.Budget)
	}

	// 已批准金额修订：按差额调整
	res, err = s.TransitionExpenditure(ctx, e.ID, budget.StateApproved, 250_000, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewSpent != 250_000 {
		t.Errorf("after revise: spent=%d, want 250000", res.NewSpent)
	}

	// 撤销：归零
	res, err = s.TransitionExpenditure(ctx, e.ID, budget.StateNotApproved, 250_000, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.NewSpent != 0 {
		t.Errorf("after revoke: spent=%d, want 0", res.NewSpent)
	}
}

// N 个并发审批后 spent 必须恰为 N*A，无丢失更新
func TestConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProject(t, s, 10_000_000)

	const n = 50
	const amount = 10_000
	ids := make([]string, n)
	for i := range ids {
		e := &Expenditure{ID: uuid.NewString(), ProjectID: p.ID, Amount: amount, Category: "labour", Description: fmt.Sprintf("crew %d", i)}
		if err := s.CreateExpenditure(ctx, e); err != nil {
			t.Fatal(err)
		}
		ids[i] = e.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.TransitionExpenditure(ctx, id, budget.StateApproved, amount, "auditor"); err != nil {
				t.Error(err)
			}
		}(id)
	}
	wg.Wait()

	got, _ := s.GetProject(ctx, p.ID)
	if got.Spent != n*amount {
		t.Errorf("spent = %d, want %d", got.Spent, n*amount)
	}
}

func TestComplaintOneWayResolution(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProject(t, s, 100)

	c := &Complaint{ID: uuid.NewString(), ProjectID: p.ID, Title: "stalled", Description: "no work for weeks", SubmittedBy: "citizen-9"}
	if err := s.CreateComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.Status != "open" {
		t.Errorf("default status = %s", c.Status)
	}

	resolved, err := s.ResolveComplaint(ctx, c.ID, "crew reassigned")
	if err != nil || resolved.Status != "resolved" {
		t.Fatalf("resolve: %+v, %v", resolved, err)
	}

	if _, err := s.ResolveComplaint(ctx, c.ID, "again"); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second resolve = %v, want ErrConflict", err)
	}
	if _, err := s.RejectComplaint(ctx, c.ID, "late"); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("reject after resolve = %v, want ErrConflict", err)
	}
}

func TestLedgerRefAndPendingSync(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProject(t, s, 100)

	pending, err := s.ListPendingSync(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if pending[0].RecordType != "project" || pending[0].RecordID != p.ID {
		t.Errorf("unexpected pending record %+v", pending[0])
	}

	ref := LedgerRef{Key: "0xabc", TxHash: "0xtx", BlockHeight: 7, SyncState: SyncCommitted, Attempts: 1}
	if err := s.UpdateLedgerRef(ctx, "project", p.ID, ref); err != nil {
		t.Fatal(err)
	}

	pending, _ = s.ListPendingSync(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("committed record still pending: %+v", pending)
	}

	stats, _ := s.GetStats(ctx)
	if stats.Projects != 1 || stats.CommittedProjects != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if err := s.UpdateLedgerRef(ctx, "widget", p.ID, ref); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("bad record type = %v, want ErrInvalidArg", err)
	}
}

func TestActorAddressRegistry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetActorAddress(ctx, "actor-1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing address = %v, want ErrNotFound", err)
	}
	if err := s.RegisterActorAddress(ctx, "actor-1", "0x0123456789abcdef0123456789abcdef01234567"); err != nil {
		t.Fatal(err)
	}
	addr, err := s.GetActorAddress(ctx, "actor-1")
	if err != nil || addr != "0x0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("GetActorAddress = %q, %v", addr, err)
	}
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		seedProject(t, s, int64(i))
	}

	page, err := s.ListProjects(ctx, 2, 0)
	if err != nil || len(page) != 2 {
		t.Fatalf("page = %d items, %v", len(page), err)
	}
	rest, _ := s.ListProjects(ctx, 10, 4)
	if len(rest) != 1 {
		t.Errorf("offset page = %d items, want 1", len(rest))
	}
	empty, _ := s.ListProjects(ctx, 10, 99)
	if len(empty) != 0 {
		t.Errorf("past-end page = %d items, want 0", len(empty))
	}
}
