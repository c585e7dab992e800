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
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"civicledger/pkg/auth"
)

const (
	identityKey = "actor_id"
	roleKey     = "role"
)

// CredentialChecker 校验登录凭证，成功返回角色
type CredentialChecker func(ctx context.Context, actorID, password string) (auth.Role, error)

// NewJWTAuth 创建 JWT 认证中间件；LoginHandler 处理 POST /api/login
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration, check CredentialChecker) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "civicledger",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if id, ok := data.(*loginIdentity); ok {
				return jwt.MapClaims{
					identityKey: id.ActorID,
					roleKey:     string(id.Role),
				}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			id := &loginIdentity{}
			if v, ok := claims[identityKey].(string); ok {
				id.ActorID = v
			}
			if v, ok := claims[roleKey].(string); ok {
				id.Role = auth.Role(v)
			}
			return id
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req struct {
				ActorID  string `json:"actor_id"`
				Password string `json:"password"`
			}
			if err := c.BindJSON(&req); err != nil || req.ActorID == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			role, err := check(ctx, req.ActorID, req.Password)
			if err != nil {
				return nil, jwt.ErrFailedAuthentication
			}
			return &loginIdentity{ActorID: req.ActorID, Role: role}, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]string{"error": message})
		},
	})
}

type loginIdentity struct {
	ActorID string
	Role    auth.Role
}

// IdentityToContext 把 JWT 身份从 RequestContext 搬进 context.Context，
// 供业务层 auth.GetActorID / GetRole 读取
func IdentityToContext() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if v, exists := c.Get(identityKey); exists {
			if id, ok := v.(*loginIdentity); ok {
				ctx = auth.WithActorID(ctx, id.ActorID)
				ctx = auth.WithRole(ctx, id.Role)
			}
		}
		c.Next(ctx)
	}
}
