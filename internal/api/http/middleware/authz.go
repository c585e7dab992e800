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

package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"civicledger/pkg/auth"
)

// AuthZMiddleware 授权中间件（角色-权限检查）
type AuthZMiddleware struct{}

// NewAuthZMiddleware 创建授权中间件
func NewAuthZMiddleware() *AuthZMiddleware {
	return &AuthZMiddleware{}
}

// RequirePermission 返回权限检查中间件
func (a *AuthZMiddleware) RequirePermission(permission auth.Permission) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		role := auth.GetRole(ctx)
		if !auth.HasPermission(role, permission) {
			c.JSON(consts.StatusForbidden, map[string]string{
				"error": "permission denied",
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// Identity 从请求头提取操作者身份写入 context；
// 启用 JWT 时由 JWT 中间件先行填充，这里只兜底
func (a *AuthZMiddleware) Identity() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if auth.GetActorID(ctx) == "" {
			if actor := string(c.GetHeader("X-Actor-ID")); actor != "" {
				ctx = auth.WithActorID(ctx, actor)
			}
			if role := string(c.GetHeader("X-Actor-Role")); role != "" {
				ctx = auth.WithRole(ctx, auth.Role(role))
			}
		}
		c.Next(ctx)
	}
}
