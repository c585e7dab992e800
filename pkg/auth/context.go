// Copyright 2026 civicledger
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
)

type contextKey string

const (
	actorIDKey contextKey = "auth.actor_id"
	roleKey    contextKey = "auth.role"
	addressKey contextKey = "auth.ledger_address"
)

// WithActorID 将操作者 ID 注入 context
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// GetActorID 从 context 获取操作者 ID
func GetActorID(ctx context.Context) string {
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRole 将 role 注入 context
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// GetRole 从 context 获取 role
func GetRole(ctx context.Context) Role {
	if v, ok := ctx.Value(roleKey).(Role); ok {
		return v
	}
	return RoleCitizen // 默认公民角色
}

// WithLedgerAddress 将操作者的账本地址注入 context
func WithLedgerAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, addressKey, addr)
}

// GetLedgerAddress 从 context 获取账本地址，未注册时为空串
func GetLedgerAddress(ctx context.Context) string {
	if v, ok := ctx.Value(addressKey).(string); ok {
		return v
	}
	return ""
}
