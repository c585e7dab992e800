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

// Package app 组装公共工程台账的业务服务：记录保存是权威动作，
// 账本同步与核验围绕它展开。
package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"civicledger/internal/budget"
	"civicledger/internal/ledger"
	"civicledger/internal/ledgersync"
	"civicledger/internal/storage/cache"
	"civicledger/internal/storage/record"
	"civicledger/internal/verify"
	"civicledger/pkg/errors"
	"civicledger/pkg/log"
	"civicledger/pkg/metrics"
)

const statusCacheKey = "ledger:status"

// WorksService 公共工程台账的业务入口
type WorksService struct {
	store     record.Store
	client    *ledger.Client
	sync      *ledgersync.Orchestrator
	verifier  *verify.Engine
	cache     cache.Cache
	cacheTTL  time.Duration
	logger    *log.Logger
	asyncSync bool // false 时同步推送，测试用
}

// NewWorksService 构造业务服务
func NewWorksService(store record.Store, client *ledger.Client, sync *ledgersync.Orchestrator,
	verifier *verify.Engine, c cache.Cache, cacheTTL time.Duration, logger *log.Logger) *WorksService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &WorksService{
		store:     store,
		client:    client,
		sync:      sync,
		verifier:  verifier,
		cache:     c,
		cacheTTL:  cacheTTL,
		logger:    logger,
		asyncSync: true,
	}
}

// CreateProjectInput 新项目参数
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Ward        string `json:"ward"`
	Budget      int64  `json:"budget"`
	CreatedBy   string `json:"-"`
}

func (in *CreateProjectInput) validate() error {
	if in.Name == "" {
		return errors.Wrap(errors.ErrInvalidArg, "name required")
	}
	if in.Budget < 0 {
		return errors.Wrap(errors.ErrInvalidArg, "budget must be non-negative")
	}
	return nil
}

// CreateProject 保存项目并触发账本同步；账本失败不阻断保存
func (s *WorksService) CreateProject(ctx context.Context, in CreateProjectInput) (*record.Project, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &record.Project{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Ward:        in.Ward,
		Budget:      in.Budget,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("project created", "id", p.ID, "budget", p.Budget, "by", in.CreatedBy)
	s.triggerSync(ctx, "project", p.ID)
	return p, nil
}

func (s *WorksService) triggerSync(ctx context.Context, recordType, id string) {
	if s.asyncSync {
		switch recordType {
		case "project":
			s.sync.EnqueueProject(id)
		case "expenditure":
			s.sync.EnqueueExpenditure(id)
		case "complaint":
			s.sync.EnqueueComplaint(id)
		}
		return
	}
	var err error
	switch recordType {
	case "project":
		err = s.sync.SyncProject(ctx, id)
	case "expenditure":
		err = s.sync.SyncExpenditure(ctx, id)
	case "complaint":
		err = s.sync.SyncComplaint(ctx, id)
	}
	if err != nil {
		s.logger.Warn("inline ledger sync failed", "record_type", recordType, "id", id, "error", err)
	}
}

// GetProject 读取项目
func (s *WorksService) GetProject(ctx context.Context, id string) (*record.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListProjects 分页列出项目
func (s *WorksService) ListProjects(ctx context.Context, limit, offset int) ([]*record.Project, error) {
	return s.store.ListProjects(ctx, limit, offset)
}

// ReviseProjectBudget 修订项目预算并重新上账
func (s *WorksService) ReviseProjectBudget(ctx context.Context, id string, newBudget int64) (*record.Project, error) {
	if newBudget < 0 {
		return nil, errors.Wrap(errors.ErrInvalidArg, "budget must be non-negative")
	}
	p, err := s.store.UpdateProjectBudget(ctx, id, newBudget)
	if err != nil {
		return nil, err
	}
	s.triggerSync(ctx, "project", id)
	return p, nil
}

// AddExpenditureInput 新支出参数
type AddExpenditureInput struct {
	ProjectID     string    `json:"project_id"`
	Amount        int64     `json:"amount"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	OccurredAt    time.Time `json:"occurred_at"`
	ProofDocument string    `json:"proof_document"`
}

// AddExpenditure 记录一笔支出，初始为未批准，不上账不记账
func (s *WorksService) AddExpenditure(ctx context.Context, in AddExpenditureInput) (*record.Expenditure, error) {
	if in.Amount <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidArg, "amount must be positive")
	}
	if in.ProjectID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "project_id required")
	}
	e := &record.Expenditure{
		ID:            uuid.NewString(),
		ProjectID:     in.ProjectID,
		Amount:        in.Amount,
		Category:      in.Category,
		Description:   in.Description,
		OccurredAt:    in.OccurredAt,
		ProofDocument: in.ProofDocument,
	}
	if err := s.store.CreateExpenditure(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetExpenditure 读取支出
func (s *WorksService) GetExpenditure(ctx context.Context, id string) (*record.Expenditure, error) {
	return s.store.GetExpenditure(ctx, id)
}

// ListExpenditures 列出支出，projectID 为空时不过滤
func (s *WorksService) ListExpenditures(ctx context.Context, projectID string, limit, offset int) ([]*record.Expenditure, error) {
	return s.store.ListExpenditures(ctx, projectID, limit, offset)
}

// ApproveExpenditure 批准支出：原子记账、超支观测、触发上账
func (s *WorksService) ApproveExpenditure(ctx context.Context, id string, amount int64, approvedBy string) (*record.Expenditure, error) {
	if amount <= 0 {
		return nil, errors.Wrap(errors.ErrInvalidArg, "amount must be positive")
	}
	res, err := s.store.TransitionExpenditure(ctx, id, budget.StateApproved, amount, approvedBy)
	if err != nil {
		return nil, err
	}
	if budget.OverBudget(res.NewSpent, res.Budget) {
		metrics.OverBudgetTotal.Inc()
		s.logger.Warn("project over budget",
			"expenditure", id, "spent", res.NewSpent, "budget", res.Budget)
	}
	s.triggerSync(ctx, "expenditure", id)
	return s.store.GetExpenditure(ctx, id)
}

// RevokeExpenditure 撤销批准：spent 回退先前金额
func (s *WorksService) RevokeExpenditure(ctx context.Context, id string) (*record.Expenditure, error) {
	e, err := s.store.GetExpenditure(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.TransitionExpenditure(ctx, id, budget.StateNotApproved, e.Amount, ""); err != nil {
		return nil, err
	}
	return s.store.GetExpenditure(ctx, id)
}

// SubmitComplaintInput 新投诉参数
type SubmitComplaintInput struct {
	ProjectID     string `json:"project_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ProofDocument string `json:"proof_document"`
	SubmittedBy   string `json:"-"`
}

// SubmitComplaint 保存投诉并触发上账
func (s *WorksService) SubmitComplaint(ctx context.Context, in SubmitComplaintInput) (*record.Complaint, error) {
	if in.Title == "" || in.ProjectID == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "title and project_id required")
	}
	c := &record.Complaint{
		ID:            uuid.NewString(),
		ProjectID:     in.ProjectID,
		Title:         in.Title,
		Description:   in.Description,
		ProofDocument: in.ProofDocument,
		SubmittedBy:   in.SubmittedBy,
	}
	if err := s.store.CreateComplaint(ctx, c); err != nil {
		return nil, err
	}
	s.triggerSync(ctx, "complaint", c.ID)
	return c, nil
}

// GetComplaint 读取投诉
func (s *WorksService) GetComplaint(ctx context.Context, id string) (*record.Complaint, error) {
	return s.store.GetComplaint(ctx, id)
}

// ListComplaints 列出投诉
func (s *WorksService) ListComplaints(ctx context.Context, projectID string, limit, offset int) ([]*record.Complaint, error) {
	return s.store.ListComplaints(ctx, projectID, limit, offset)
}

// ResolveComplaint 解决投诉并把决议推上账本
func (s *WorksService) ResolveComplaint(ctx context.Context, id, response string) (*record.Complaint, error) {
	if response == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "response required")
	}
	c, err := s.store.ResolveComplaint(ctx, id, response)
	if err != nil {
		return nil, err
	}
	s.triggerSync(ctx, "complaint", id)
	return c, nil
}

// RejectComplaint 驳回投诉；驳回是台账侧决定，不上账
func (s *WorksService) RejectComplaint(ctx context.Context, id, reason string) (*record.Complaint, error) {
	if reason == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "reason required")
	}
	return s.store.RejectComplaint(ctx, id, reason)
}

// VerifyProject 核验项目
func (s *WorksService) VerifyProject(ctx context.Context, id string) (*verify.Report, error) {
	return s.verifier.VerifyProject(ctx, id)
}

// VerifyExpenditure 核验支出
func (s *WorksService) VerifyExpenditure(ctx context.Context, id string) (*verify.Report, error) {
	return s.verifier.VerifyExpenditure(ctx, id)
}

// VerifyComplaint 核验投诉
func (s *WorksService) VerifyComplaint(ctx context.Context, id string) (*verify.Report, error) {
	return s.verifier.VerifyComplaint(ctx, id)
}

// RegisterActorAddress 登记操作者的账本地址
func (s *WorksService) RegisterActorAddress(ctx context.Context, actorID, address string) error {
	if actorID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "actor id required")
	}
	if !ledger.ValidAddress(address) {
		return errors.Wrapf(errors.ErrInvalidArg, "invalid ledger address %q", address)
	}
	return s.store.RegisterActorAddress(ctx, actorID, address)
}

// AddOfficial 授权账本写入身份
func (s *WorksService) AddOfficial(ctx context.Context, address string, admin bool) error {
	_, err := s.client.AddOfficial(ctx, address, admin)
	return err
}

// RemoveOfficial 撤销账本写入身份
func (s *WorksService) RemoveOfficial(ctx context.Context, address string) error {
	_, err := s.client.RemoveOfficial(ctx, address)
	return err
}

// LedgerStatusReport 账本状态与记录统计
type LedgerStatusReport struct {
	Ledger ledger.Status `json:"ledger"`
	Stats  record.Stats  `json:"statistics"`
}

// LedgerStatus 汇总账本状态；结果短 TTL 缓存，避免状态页打爆账本节点
func (s *WorksService) LedgerStatus(ctx context.Context) (*LedgerStatusReport, error) {
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, statusCacheKey); err == nil && found {
			var rep LedgerStatusReport
			if json.Unmarshal(raw, &rep) == nil {
				return &rep, nil
			}
		}
	}

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	rep := &LedgerStatusReport{
		Ledger: s.client.GetStatus(ctx),
		Stats:  *stats,
	}

	if s.cache != nil {
		if raw, err := json.Marshal(rep); err == nil {
			_ = s.cache.Set(ctx, statusCacheKey, raw, s.cacheTTL)
		}
	}
	return rep, nil
}

// SetInlineSync 改为请求内同步推送，测试与 CLI 用
func (s *WorksService) SetInlineSync() { s.asyncSync = false }
