package verify

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"civicledger/internal/budget"
	"civicledger/internal/ledger"
	"civicledger/internal/ledgersync"
	"civicledger/internal/storage/record"
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

type fixture struct {
	store  record.Store
	client *ledger.Client
	sync   *ledgersync.Orchestrator
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := record.NewMemoryStore()
	cfg := config.LedgerConfig{Enabled: true, Type: "memory", SignerAddress: "0xowner"}
	client := ledger.NewClientWithContract(cfg, ledger.NewMemoryContract("0xowner"), testLogger(t))
	return &fixture{
		store:  store,
		client: client,
		sync:   ledgersync.NewOrchestrator(store, client, testLogger(t)),
		engine: NewEngine(store, client, testLogger(t)),
	}
}

func (f *fixture) seedSyncedProject(t *testing.T) *record.Project {
	t.Helper()
	ctx := context.Background()
	p := &record.Project{ID: uuid.NewString(), Name: "Street Lighting", Budget: 800_000}
	if err := f.store.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.SyncProject(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestVerifyProjectMatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.seedSyncedProject(t)

	rep, err := f.engine.VerifyProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Committed || !rep.Verified {
		t.Errorf("report = %+v, want committed and verified", rep)
	}
	for name, d := range rep.Fields {
		if !d.Match {
			t.Errorf("field %s mismatched: %+v", name, d)
		}
	}
}

func TestVerifyProjectNotCommitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := &record.Project{ID: uuid.NewString(), Name: "Unsynced", Budget: 1}
	if err := f.store.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	rep, err := f.engine.VerifyProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Committed || rep.Verified {
		t.Errorf("unsynced record reported committed: %+v", rep)
	}
}

// 账本写入后权威记录被改动：必须报告逐字段不匹配
func TestVerifyProjectDetectsTampering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.seedSyncedProject(t)

	// 绕过同步直接改预算，模拟账外篡改
	if _, err := f.store.UpdateProjectBudget(ctx, p.ID, 999_999); err != nil {
		t.Fatal(err)
	}

	rep, err := f.engine.VerifyProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Committed || rep.Verified {
		t.Fatalf("tampered record passed verification: %+v", rep)
	}
	if d := rep.Fields["budget"]; d.Match || d.Authoritative != "999999" || d.Ledger != "800000" {
		t.Errorf("budget diff = %+v", d)
	}
	if !rep.Fields["name"].Match {
		t.Error("untouched field reported as mismatch")
	}
}

func TestVerifyExpenditureWritesBackVerified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.seedSyncedProject(t)

	e := &record.Expenditure{ID: uuid.NewString(), ProjectID: p.ID, Amount: 200_000, Category: "materials", Description: "asphalt", ProofDocument: "receipt-17.pdf"}
	if err := f.store.CreateExpenditure(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.TransitionExpenditure(ctx, e.ID, budget.StateApproved, 200_000, "auditor"); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.SyncExpenditure(ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	rep, err := f.engine.VerifyExpenditure(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Verified {
		t.Fatalf("synced expenditure failed verification: %+v", rep)
	}

	got, _ := f.store.GetExpenditure(ctx, e.ID)
	if !got.Verified {
		t.Error("verified flag not written back")
	}

	// 金额被修订但未重新同步：核验必须翻转 verified
	if _, err := f.store.TransitionExpenditure(ctx, e.ID, budget.StateApproved, 250_000, ""); err != nil {
		t.Fatal(err)
	}
	rep, err = f.engine.VerifyExpenditure(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Verified {
		t.Fatalf("stale ledger amount passed verification: %+v", rep)
	}
	got, _ = f.store.GetExpenditure(ctx, e.ID)
	if got.Verified {
		t.Error("verified flag not cleared after mismatch")
	}
}

func TestVerifyExpenditureMissingProofUsesSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.seedSyncedProject(t)

	e := &record.Expenditure{ID: uuid.NewString(), ProjectID: p.ID, Amount: 50_000, Category: "labour", Description: "crew"}
	if err := f.store.CreateExpenditure(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.TransitionExpenditure(ctx, e.ID, budget.StateApproved, 50_000, "auditor"); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.SyncExpenditure(ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	rep, err := f.engine.VerifyExpenditure(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d := rep.Fields["proof"]; !d.Match {
		t.Errorf("absent proof must match via sentinel: %+v", d)
	}
}

func TestVerifyComplaintLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.seedSyncedProject(t)

	c := &record.Complaint{ID: uuid.NewString(), ProjectID: p.ID, Title: "noise", Description: "night work", SubmittedBy: "citizen"}
	if err := f.store.CreateComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.SyncComplaint(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	rep, err := f.engine.VerifyComplaint(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Verified {
		t.Fatalf("open complaint failed verification: %+v", rep)
	}

	// 解决后双方都推进，核验仍应通过
	if _, err := f.store.ResolveComplaint(ctx, c.ID, "mitigated"); err != nil {
		t.Fatal(err)
	}
	if err := f.sync.SyncComplaint(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	rep, err = f.engine.VerifyComplaint(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Verified {
		t.Errorf("resolved complaint failed verification: %+v", rep)
	}
	if d, ok := rep.Fields["response"]; !ok || !d.Match {
		t.Errorf("response field: %+v", d)
	}
}

func TestVerifyMissingRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.engine.VerifyProject(ctx, uuid.NewString()); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing record = %v, want ErrNotFound", err)
	}
}
