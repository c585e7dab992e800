package secrets

import (
	"context"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default env", provider: "", wantErr: false},
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestMemoryStoreContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "signer-key"); err == nil {
		t.Fatal("missing secret should error")
	}
	if err := store.Set(ctx, "signer-key", "s3cret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "signer-key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("get = %q, want s3cret", got)
	}

	keys, err := store.List(ctx, "signer")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "signer-key" {
		t.Fatalf("list = %v, want [signer-key]", keys)
	}

	if err := store.Delete(ctx, "signer-key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "signer-key"); err == nil {
		t.Fatal("deleted secret should error")
	}
}

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	store := NewEnvStore()

	t.Setenv("CIVICLEDGER_TEST_SECRET", "value-1")
	got, err := store.Get(ctx, "CIVICLEDGER_TEST_SECRET")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "value-1" {
		t.Fatalf("get = %q, want value-1", got)
	}

	if _, err := store.Get(ctx, "CIVICLEDGER_TEST_SECRET_ABSENT"); err == nil {
		t.Fatal("unset env secret should error")
	}
}
