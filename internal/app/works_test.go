package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"civicledger/internal/ledger"
	"civicledger/internal/ledgersync"
	"civicledger/internal/storage/cache"
	"civicledger/internal/storage/record"
	"civicledger/internal/verify"
	"civicledger/pkg/config"
	"civicledger/pkg/errors"
	"civicledger/pkg/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

func newService(t *testing.T, enabled bool) *WorksService {
	t.Helper()
	logger := testLogger(t)
	store := record.NewMemoryStore()
	cfg := config.LedgerConfig{Enabled: enabled, Type: "memory", SignerAddress: "0xowner"}
	var contract ledger.Contract
	if enabled {
		contract = ledger.NewMemoryContract("0xowner")
	}
	client := ledger.NewClientWithContract(cfg, contract, logger)
	sync := ledgersync.NewOrchestrator(store, client, logger)
	verifier := verify.NewEngine(store, client, logger)
	svc := NewWorksService(store, client, sync, verifier, cache.NewMemoryCache(), time.Minute, logger)
	svc.SetInlineSync()
	return svc
}

// 完整支出生命周期：1,000,000 预算，批 200,000，改 250,000，撤销归零
func TestExpenditureLifecycleBudgetConservation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Community Hall", Budget: 1_000_000, CreatedBy: "official-1"})
	if err != nil {
		t.Fatal(err)
	}

	e, err := svc.AddExpenditure(ctx, AddExpenditureInput{ProjectID: p.ID, Amount: 200_000, Category: "materials", Description: "cement", OccurredAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	// 未批准不计入 spent
	got, _ := svc.GetProject(ctx, p.ID)
	if got.Spent != 0 {
		t.Errorf("spent before approval = %d", got.Spent)
	}

	if _, err := svc.ApproveExpenditure(ctx, e.ID, 200_000, "auditor"); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	if got.Spent != 200_000 {
		t.Errorf("spent after approval = %d, want 200000", got.Spent)
	}

	if _, err := svc.ApproveExpenditure(ctx, e.ID, 250_000, "auditor"); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	if got.Spent != 250_000 {
		t.Errorf("spent after revision = %d, want 250000", got.Spent)
	}

	if _, err := svc.RevokeExpenditure(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	if got.Spent != 0 {
		t.Errorf("spent after revocation = %d, want 0", got.Spent)
	}
}

func TestConcurrentApprovalsSumExactly(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Sewer Line", Budget: 10_000_000})
	if err != nil {
		t.Fatal(err)
	}

	const n = 30
	const amount = 25_000
	ids := make([]string, n)
	for i := range ids {
		e, err := svc.AddExpenditure(ctx, AddExpenditureInput{ProjectID: p.ID, Amount: amount, Category: "labour", OccurredAt: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = e.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := svc.ApproveExpenditure(ctx, id, amount, "auditor"); err != nil {
				t.Error(err)
			}
		}(id)
	}
	wg.Wait()

	got, _ := svc.GetProject(ctx, p.ID)
	if got.Spent != n*amount {
		t.Errorf("spent = %d, want %d", got.Spent, n*amount)
	}
}

func TestCreateProjectSyncsAndVerifies(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Footbridge", Budget: 300_000})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := svc.GetProject(ctx, p.ID)
	if got.Ledger.SyncState != record.SyncCommitted {
		t.Fatalf("inline sync did not commit: %+v", got.Ledger)
	}

	rep, err := svc.VerifyProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Verified {
		t.Errorf("fresh project failed verification: %+v", rep)
	}
}

func TestLedgerDisabledStillRecords(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Offline Works", Budget: 100})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := svc.GetProject(ctx, p.ID)
	if got.Ledger.SyncState != record.SyncUnsynced {
		t.Errorf("disabled ledger changed sync state: %+v", got.Ledger)
	}

	rep, err := svc.VerifyProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Committed || rep.Verified {
		t.Errorf("disabled ledger verification: %+v", rep)
	}

	status, err := svc.LedgerStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Ledger.Enabled {
		t.Error("status reports enabled ledger")
	}
	if status.Stats.Projects != 1 {
		t.Errorf("stats = %+v", status.Stats)
	}
}

func TestComplaintFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Water Main", Budget: 2_000_000})
	if err != nil {
		t.Fatal(err)
	}

	c, err := svc.SubmitComplaint(ctx, SubmitComplaintInput{ProjectID: p.ID, Title: "leak", Description: "water pooling", SubmittedBy: "citizen-4"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResolveComplaint(ctx, c.ID, ""); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("empty response = %v, want ErrInvalidArg", err)
	}

	resolved, err := svc.ResolveComplaint(ctx, c.ID, "pipe replaced")
	if err != nil || resolved.Status != "resolved" {
		t.Fatalf("resolve: %+v, %v", resolved, err)
	}

	rep, err := svc.VerifyComplaint(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Verified {
		t.Errorf("resolved complaint failed verification: %+v", rep)
	}

	// 已解决后驳回必须失败
	if _, err := svc.RejectComplaint(ctx, c.ID, "duplicate"); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("reject after resolve = %v, want ErrConflict", err)
	}
}

func TestRegisterActorAddress(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	if err := svc.RegisterActorAddress(ctx, "official-1", "not-an-address"); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("bad address = %v, want ErrInvalidArg", err)
	}
	if err := svc.RegisterActorAddress(ctx, "official-1", "0x0123456789abcdef0123456789abcdef01234567"); err != nil {
		t.Fatal(err)
	}
}

func TestInputValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	if _, err := svc.CreateProject(ctx, CreateProjectInput{Budget: 1}); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("nameless project = %v", err)
	}
	if _, err := svc.CreateProject(ctx, CreateProjectInput{Name: "x", Budget: -1}); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("negative budget = %v", err)
	}
	if _, err := svc.AddExpenditure(ctx, AddExpenditureInput{ProjectID: "p", Amount: 0}); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("zero amount = %v", err)
	}
	if _, err := svc.SubmitComplaint(ctx, SubmitComplaintInput{ProjectID: "p"}); !errors.Is(err, errors.ErrInvalidArg) {
		t.Errorf("untitled complaint = %v", err)
	}
}

func TestLedgerStatusCached(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, true)

	if _, err := svc.CreateProject(ctx, CreateProjectInput{Name: "A", Budget: 1}); err != nil {
		t.Fatal(err)
	}
	first, err := svc.LedgerStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// 第二个项目入库，但缓存窗口内状态不变
	if _, err := svc.CreateProject(ctx, CreateProjectInput{Name: "B", Budget: 1}); err != nil {
		t.Fatal(err)
	}
	second, err := svc.LedgerStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Stats.Projects != first.Stats.Projects {
		t.Errorf("cached status refreshed early: %d -> %d", first.Stats.Projects, second.Stats.Projects)
	}
}
