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

// Package record 定义权威记录存储。应用状态（项目、支出、投诉）以这里为准，
// 账本引用只是附着在记录上的同步元数据。
package record

import (
	"context"
	"time"

	"civicledger/internal/budget"
)

// SyncState 记录与账本的同步状态机
type SyncState string

const (
	// SyncUnsynced 尚未尝试写入账本
	SyncUnsynced SyncState = "unsynced"
	// SyncWriteInFlight 已提交、等待确认；超时恢复必须先回查账本
	SyncWriteInFlight SyncState = "write_in_flight"
	// SyncCommitted 账本已确认
	SyncCommitted SyncState = "committed"
	// SyncWriteFailed 写入失败，等待重试或人工处理
	SyncWriteFailed SyncState = "write_failed"
)

// LedgerRef 记录上的账本同步元数据
type LedgerRef struct {
	Key           string    `json:"key,omitempty"` // 标识符承诺，账本查询键
	TxHash        string    `json:"tx_hash,omitempty"`
	BlockHeight   int64     `json:"block_height,omitempty"`
	SyncState     SyncState `json:"sync_state"`
	SyncError     string    `json:"sync_error,omitempty"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
}

// Project 公共工程项目
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Ward        string    `json:"ward"`
	Budget      int64     `json:"budget"` // 最小面额整数
	Spent       int64     `json:"spent"`
	Status      string    `json:"status"` // active / completed / cancelled
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Ledger      LedgerRef `json:"ledger"`
}

// Expenditure 项目支出
type Expenditure struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id"`
	Amount        int64                `json:"amount"`
	Category      string               `json:"category"`
	Description   string               `json:"description"`
	OccurredAt    time.Time            `json:"occurred_at"`
	ApprovalState budget.ApprovalState `json:"approval_state"`
	ApprovedBy    string               `json:"approved_by,omitempty"`
	ProofDocument string               `json:"proof_document,omitempty"`
	Verified      bool                 `json:"verified"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Ledger        LedgerRef            `json:"ledger"`
}

// Complaint 市民投诉
type Complaint struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	ProofDocument   string    `json:"proof_document,omitempty"`
	SubmittedBy     string    `json:"submitted_by"`
	Status          string    `json:"status"` // open / resolved / rejected
	Response        string    `json:"response,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Ledger          LedgerRef `json:"ledger"`
}

// TransitionResult 支出审批迁移的原子快照，供预算增量计算
type TransitionResult struct {
	Prev budget.Transition
	// NewSpent / Budget 应用增量后的项目账面，用于超支观测
	NewSpent int64
	Budget   int64
}

// PendingRecord 待同步记录的最小视图，供后台 worker 扫描
type PendingRecord struct {
	RecordType string // project / expenditure / complaint
	RecordID   string
	SyncState  SyncState
	Attempts   int
}

// Stats 各类记录与已上账数量，状态端点使用
type Stats struct {
	Projects             int64 `json:"projects"`
	Expenditures         int64 `json:"expenditures"`
	Complaints           int64 `json:"complaints"`
	CommittedProjects    int64 `json:"committed_projects"`
	CommittedExpenditure int64 `json:"committed_expenditures"`
	CommittedComplaints  int64 `json:"committed_complaints"`
}

// Store 权威记录存储契约。实现：memoryStore、postgresStore。
//
// 所有金额变更通过 ApplySpentDelta / TransitionExpenditure 原子完成，
// 调用方不得读-改-写 spent。
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, limit, offset int) ([]*Project, error)
	UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (*Project, error)
	UpdateProjectStatus(ctx context.Context, id, status string) error
	// ApplySpentDelta 原子调整项目 spent，返回调整后的 spent 与 budget
	ApplySpentDelta(ctx context.Context, projectID string, delta int64) (spent, budgetTotal int64, err error)

	CreateExpenditure(ctx context.Context, e *Expenditure) error
	GetExpenditure(ctx context.Context, id string) (*Expenditure, error)
	ListExpenditures(ctx context.Context, projectID string, limit, offset int) ([]*Expenditure, error)
	// TransitionExpenditure 原子更新审批状态与金额，返回迁移前后视图
	TransitionExpenditure(ctx context.Context, id string, state budget.ApprovalState, amount int64, approvedBy string) (*TransitionResult, error)
	SetExpenditureVerified(ctx context.Context, id string, verified bool) error

	CreateComplaint(ctx context.Context, c *Complaint) error
	GetComplaint(ctx context.Context, id string) (*Complaint, error)
	ListComplaints(ctx context.Context, projectID string, limit, offset int) ([]*Complaint, error)
	ResolveComplaint(ctx context.Context, id, response string) (*Complaint, error)
	RejectComplaint(ctx context.Context, id, reason string) (*Complaint, error)

	// UpdateLedgerRef 覆写记录的账本同步元数据；recordType 取
	// project / expenditure / complaint
	UpdateLedgerRef(ctx context.Context, recordType, id string, ref LedgerRef) error
	ListPendingSync(ctx context.Context, limit int) ([]PendingRecord, error)

	RegisterActorAddress(ctx context.Context, actorID, address string) error
	GetActorAddress(ctx context.Context, actorID string) (string, error)

	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}
