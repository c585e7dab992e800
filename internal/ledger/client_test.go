package ledger

import (
	"context"
	"errors"
	"testing"

	"civicledger/internal/ledger/commitment"
	"civicledger/pkg/config"
	"civicledger/pkg/log"
	"civicledger/pkg/secrets"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	return logger
}

func TestClientDisabledNoOps(t *testing.T) {
	ctx := context.Background()
	c := NewClient(ctx, config.LedgerConfig{Enabled: false}, secrets.NewMemoryStore(), testLogger(t))

	rec, err := c.CreateProject(ctx, commitment.Commit("p"), commitment.Commit("n"), 100)
	if err != nil {
		t.Fatalf("disabled write: %v", err)
	}
	if !rec.Disabled {
		t.Error("disabled ledger must return Disabled receipt")
	}

	if _, found, err := c.GetProject(ctx, commitment.Commit("p")); err != nil || found {
		t.Errorf("disabled read: found=%v err=%v, want false,nil", found, err)
	}

	st := c.GetStatus(ctx)
	if st.Enabled || st.Initialized {
		t.Errorf("disabled status = %+v", st)
	}
}

func TestClientFailClosedOnBadInit(t *testing.T) {
	ctx := context.Background()
	// rpc 类型但机密存储里没有签名密钥
	cfg := config.LedgerConfig{
		Enabled:         true,
		Type:            "rpc",
		Endpoint:        "http://127.0.0.1:1",
		ContractAddress: "0x0123456789abcdef0123456789abcdef01234567",
		SignerAddress:   "0xsigner",
		SignerKeySecret: "MISSING_KEY",
	}
	c := NewClient(ctx, cfg, secrets.NewMemoryStore(), testLogger(t))

	if c.Ready() {
		t.Fatal("client with failed init must not be ready")
	}
	if _, err := c.CreateProject(ctx, "0xid", "0xname", 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("write on uninitialized client = %v, want ErrNotInitialized", err)
	}

	st := c.GetStatus(ctx)
	if !st.Enabled || st.Initialized || st.Error == "" {
		t.Errorf("uninitialized status = %+v", st)
	}
}

func TestClientMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.LedgerConfig{Enabled: true, Type: "memory", SignerAddress: "0xowner"}
	c := NewClient(ctx, cfg, secrets.NewMemoryStore(), testLogger(t))

	if !c.Ready() {
		t.Fatal("memory client should be ready")
	}

	projID := commitment.Commit("proj-roundtrip")
	rec, err := c.CreateProject(ctx, projID, commitment.Commit("Park"), 500_000)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if rec.Disabled || rec.TxRef.Hash == "" {
		t.Errorf("unexpected receipt %+v", rec)
	}

	snap, found, err := c.GetProject(ctx, projID)
	if err != nil || !found {
		t.Fatalf("GetProject: found=%v err=%v", found, err)
	}
	if snap.Budget != 500_000 {
		t.Errorf("budget = %d, want 500000", snap.Budget)
	}

	st := c.GetStatus(ctx)
	if !st.Initialized || st.BlockHeight != 1 {
		t.Errorf("status after one write = %+v", st)
	}
}

func TestClientRejectsBadOfficialAddress(t *testing.T) {
	ctx := context.Background()
	cfg := config.LedgerConfig{Enabled: true, Type: "memory", SignerAddress: "0xowner"}
	c := NewClient(ctx, cfg, secrets.NewMemoryStore(), testLogger(t))

	for _, bad := range []string{"", "owner", "0x123", "0x" + "zz"} {
		if _, err := c.AddOfficial(ctx, bad, false); !errors.Is(err, ErrReverted) {
			t.Errorf("AddOfficial(%q) = %v, want ErrReverted", bad, err)
		}
	}
	if _, err := c.AddOfficial(ctx, "0x0123456789abcdef0123456789abcdef01234567", false); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
}

func TestClientFeeCap(t *testing.T) {
	ctx := context.Background()
	// memory 合约估费固定 21000；上限设在其下写入应被拒
	cfg := config.LedgerConfig{Enabled: true, Type: "memory", SignerAddress: "0xowner", FeeCapUnits: 20_000}
	c := NewClient(ctx, cfg, secrets.NewMemoryStore(), testLogger(t))

	if _, err := c.CreateProject(ctx, commitment.Commit("fee"), commitment.Commit("n"), 1); !errors.Is(err, ErrReverted) {
		t.Errorf("write over fee cap = %v, want ErrReverted", err)
	}

	cfg.FeeCapUnits = 30_000
	c = NewClient(ctx, cfg, secrets.NewMemoryStore(), testLogger(t))
	if _, err := c.CreateProject(ctx, commitment.Commit("fee"), commitment.Commit("n"), 1); err != nil {
		t.Errorf("write under fee cap: %v", err)
	}
}

func TestValidAddress(t *testing.T) {
	if !ValidAddress("0x0123456789abcdef0123456789ABCDEF01234567") {
		t.Error("mixed-case 40-hex address should validate")
	}
	for _, bad := range []string{"0x012", "0123456789abcdef0123456789abcdef01234567", "0xg123456789abcdef0123456789abcdef0123456"} {
		if ValidAddress(bad) {
			t.Errorf("ValidAddress(%q) = true, want false", bad)
		}
	}
}
