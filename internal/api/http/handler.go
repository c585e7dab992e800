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

package http

import (
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	works "civicledger/internal/app"
	"civicledger/internal/ledger"
	"civicledger/pkg/auth"
	"civicledger/pkg/errors"
	"civicledger/pkg/log"
	"civicledger/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	svc    *works.WorksService
	logger *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(svc *works.WorksService, logger *log.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// writeError 把业务错误映射到 HTTP 状态码
func writeError(c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, errors.ErrInvalidArg):
		status = consts.StatusBadRequest
	case errors.Is(err, errors.ErrConflict):
		status = consts.StatusConflict
	case errors.Is(err, ledger.ErrUnreachable), errors.Is(err, ledger.ErrTimeout):
		status = consts.StatusBadGateway
	case errors.Is(err, ledger.ErrNotInitialized):
		status = consts.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrUnauthorized):
		status = consts.StatusForbidden
	case errors.Is(err, ledger.ErrReverted):
		status = consts.StatusUnprocessableEntity
	}
	c.JSON(status, map[string]string{"error": err.Error()})
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "civicledger-api",
	})
}

// Metrics Prometheus 文本导出
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	c.Response.Header.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	c.SetStatusCode(consts.StatusOK)
	if err := metrics.WritePrometheus(c.Response.BodyWriter()); err != nil {
		hlog.CtxErrorf(ctx, "write metrics: %v", err)
	}
}

// CreateProject 创建项目
// POST /api/projects
func (h *Handler) CreateProject(ctx context.Context, c *app.RequestContext) {
	var in works.CreateProjectInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	in.CreatedBy = auth.GetActorID(ctx)
	p, err := h.svc.CreateProject(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, p)
}

// ListProjects 项目列表
// GET /api/projects
func (h *Handler) ListProjects(ctx context.Context, c *app.RequestContext) {
	limit, offset := pageParams(c)
	projects, err := h.svc.ListProjects(ctx, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"projects": projects,
		"total":    len(projects),
	})
}

// GetProject 项目详情
// GET /api/projects/:id
func (h *Handler) GetProject(ctx context.Context, c *app.RequestContext) {
	p, err := h.svc.GetProject(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, p)
}

// ReviseProjectBudget 修订项目预算
// PUT /api/projects/:id/budget
func (h *Handler) ReviseProjectBudget(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Budget int64 `json:"budget"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	p, err := h.svc.ReviseProjectBudget(ctx, c.Param("id"), req.Budget)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, p)
}

// AddExpenditure 新增支出
// POST /api/expenditures
func (h *Handler) AddExpenditure(ctx context.Context, c *app.RequestContext) {
	var in works.AddExpenditureInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	e, err := h.svc.AddExpenditure(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, e)
}

// GetExpenditure 支出详情
// GET /api/expenditures/:id
func (h *Handler) GetExpenditure(ctx context.Context, c *app.RequestContext) {
	e, err := h.svc.GetExpenditure(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, e)
}

// ListExpenditures 按项目列出支出
// GET /api/projects/:id/expenditures
func (h *Handler) ListExpenditures(ctx context.Context, c *app.RequestContext) {
	limit, offset := pageParams(c)
	items, err := h.svc.ListExpenditures(ctx, c.Param("id"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"expenditures": items,
		"total":        len(items),
	})
}

// ApproveExpenditure 批准支出
// POST /api/expenditures/:id/approve
func (h *Handler) ApproveExpenditure(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	e, err := h.svc.ApproveExpenditure(ctx, c.Param("id"), req.Amount, auth.GetActorID(ctx))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, e)
}

// RevokeExpenditure 撤销批准
// POST /api/expenditures/:id/revoke
func (h *Handler) RevokeExpenditure(ctx context.Context, c *app.RequestContext) {
	e, err := h.svc.RevokeExpenditure(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, e)
}

// SubmitComplaint 提交投诉
// POST /api/complaints
func (h *Handler) SubmitComplaint(ctx context.Context, c *app.RequestContext) {
	var in works.SubmitComplaintInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	in.SubmittedBy = auth.GetActorID(ctx)
	cp, err := h.svc.SubmitComplaint(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, cp)
}

// GetComplaint 投诉详情
// GET /api/complaints/:id
func (h *Handler) GetComplaint(ctx context.Context, c *app.RequestContext) {
	cp, err := h.svc.GetComplaint(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, cp)
}

// ListComplaints 按项目列出投诉
// GET /api/projects/:id/complaints
func (h *Handler) ListComplaints(ctx context.Context, c *app.RequestContext) {
	limit, offset := pageParams(c)
	items, err := h.svc.ListComplaints(ctx, c.Param("id"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"complaints": items,
		"total":      len(items),
	})
}

// ResolveComplaint 解决投诉
// POST /api/complaints/:id/resolve
func (h *Handler) ResolveComplaint(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Response string `json:"response"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cp, err := h.svc.ResolveComplaint(ctx, c.Param("id"), req.Response)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, cp)
}

// RejectComplaint 驳回投诉
// POST /api/complaints/:id/reject
func (h *Handler) RejectComplaint(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cp, err := h.svc.RejectComplaint(ctx, c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, cp)
}

// LedgerStatus 账本状态与统计
// GET /api/ledger/status
func (h *Handler) LedgerStatus(ctx context.Context, c *app.RequestContext) {
	rep, err := h.svc.LedgerStatus(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, rep)
}

// VerifyProject 核验项目
// POST /api/ledger/verify/project/:id
func (h *Handler) VerifyProject(ctx context.Context, c *app.RequestContext) {
	rep, err := h.svc.VerifyProject(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, rep)
}

// VerifyExpenditure 核验支出
// POST /api/ledger/verify/expenditure/:id
func (h *Handler) VerifyExpenditure(ctx context.Context, c *app.RequestContext) {
	rep, err := h.svc.VerifyExpenditure(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, rep)
}

// VerifyComplaint 核验投诉
// POST /api/ledger/verify/complaint/:id
func (h *Handler) VerifyComplaint(ctx context.Context, c *app.RequestContext) {
	rep, err := h.svc.VerifyComplaint(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, rep)
}

// RegisterAddress 登记操作者账本地址
// POST /api/ledger/register-address
func (h *Handler) RegisterAddress(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	actorID := auth.GetActorID(ctx)
	if actorID == "" {
		c.JSON(consts.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	if err := h.svc.RegisterActorAddress(ctx, actorID, req.Address); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"status": "registered", "address": req.Address})
}

// AddOfficial 授权账本写入身份
// POST /api/ledger/officials
func (h *Handler) AddOfficial(ctx context.Context, c *app.RequestContext) {
	var req struct {
		Address string `json:"address"`
		Admin   bool   `json:"admin"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.AddOfficial(ctx, req.Address, req.Admin); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"status": "added", "address": req.Address})
}

// RemoveOfficial 撤销账本写入身份
// DELETE /api/ledger/officials/:address
func (h *Handler) RemoveOfficial(ctx context.Context, c *app.RequestContext) {
	address := c.Param("address")
	if err := h.svc.RemoveOfficial(ctx, address); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"status": "removed", "address": address})
}

func pageParams(c *app.RequestContext) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
