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
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"civicledger/pkg/auth"
	"civicledger/pkg/log"
)

// AuditMiddleware 访问审计中间件
type AuditMiddleware struct {
	auditStore AuditStore
}

// AuditStore 审计日志存储接口
type AuditStore interface {
	LogAccess(ctx context.Context, log AuditLog) error
}

// AuditLog 审计日志记录
type AuditLog struct {
	ActorID      string
	Role         string
	Action       string
	ResourceType string
	ResourceID   string
	Success      bool
	DurationMS   int64
	CreatedAt    time.Time
}

// NewAuditMiddleware 创建审计中间件
func NewAuditMiddleware(auditStore AuditStore) *AuditMiddleware {
	return &AuditMiddleware{auditStore: auditStore}
}

// logAuditStore 把审计日志落到结构化日志，未接入审计库时的默认实现
type logAuditStore struct {
	logger *log.Logger
}

// NewLogAuditStore 创建日志后端的审计存储
func NewLogAuditStore(logger *log.Logger) AuditStore {
	return &logAuditStore{logger: logger}
}

func (s *logAuditStore) LogAccess(ctx context.Context, entry AuditLog) error {
	s.logger.Info("api access",
		"actor", entry.ActorID,
		"role", entry.Role,
		"action", entry.Action,
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"success", entry.Success,
		"duration_ms", entry.DurationMS,
	)
	return nil
}

// AuditAccess 记录 API 访问
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		actorID := auth.GetActorID(ctx)
		role := auth.GetRole(ctx)

		c.Next(ctx)

		// 记录访问日志（异步，不阻塞请求）
		go func() {
			action := determineAction(string(c.Method()), string(c.Path()))
			resourceType, resourceID := extractResource(string(c.Path()))

			_ = a.auditStore.LogAccess(context.Background(), AuditLog{
				ActorID:      actorID,
				Role:         string(role),
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Success:      c.Response.StatusCode() < 400,
				DurationMS:   time.Since(start).Milliseconds(),
				CreatedAt:    time.Now().UTC(),
			})
		}()
	}
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method string, path string) string {
	if strings.Contains(path, "/verify/") {
		return "verify_record"
	}
	if strings.Contains(path, "/ledger/status") {
		return "view_ledger_status"
	}
	if strings.Contains(path, "/register-address") {
		return "register_address"
	}
	if strings.Contains(path, "/officials") {
		if method == "DELETE" {
			return "remove_official"
		}
		return "add_official"
	}
	if strings.Contains(path, "/approve") {
		return "approve_expenditure"
	}
	if strings.Contains(path, "/revoke") {
		return "revoke_expenditure"
	}
	if strings.Contains(path, "/resolve") {
		return "resolve_complaint"
	}
	if strings.Contains(path, "/reject") {
		return "reject_complaint"
	}
	switch method {
	case "GET":
		return "view"
	case "POST":
		return "create"
	case "PUT":
		return "update"
	case "DELETE":
		return "delete"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) >= 3 {
		switch parts[1] {
		case "projects":
			return "project", parts[2]
		case "expenditures":
			return "expenditure", parts[2]
		case "complaints":
			return "complaint", parts[2]
		case "ledger":
			if len(parts) >= 5 && parts[2] == "verify" {
				return parts[3], parts[4]
			}
			return "ledger", ""
		}
	}
	return "unknown", ""
}
