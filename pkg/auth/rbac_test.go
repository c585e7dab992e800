package auth

import (
	"context"
	"testing"
)

func TestHasPermission(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermissionOfficialManage, true},
		{RoleOfficial, PermissionExpenditureAudit, true},
		{RoleOfficial, PermissionOfficialManage, false},
		{RoleCitizen, PermissionComplaintSubmit, true},
		{RoleCitizen, PermissionLedgerVerify, false},
		{Role("unknown"), PermissionProjectView, false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.role, tc.perm); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if GetRole(ctx) != RoleCitizen {
		t.Error("default role should be citizen")
	}
	ctx = WithActorID(ctx, "user-1")
	ctx = WithRole(ctx, RoleOfficial)
	ctx = WithLedgerAddress(ctx, "0xabc")
	if GetActorID(ctx) != "user-1" {
		t.Error("actor id lost")
	}
	if GetRole(ctx) != RoleOfficial {
		t.Error("role lost")
	}
	if GetLedgerAddress(ctx) != "0xabc" {
		t.Error("ledger address lost")
	}
}
