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

// Package ledger 管理外部不可变账本：合约状态机模型、JSON-RPC 客户端与
// 进程内单签名身份的 Client 封装。
//
// 账本只是核验预言机（verification oracle），权威业务状态始终在记录存储；
// 金额一律使用最小面额整数，杜绝浮点往返误差。
package ledger

import (
	"errors"
	"time"
)

// TxRef 账本确认某次写入后返回的交易引用
type TxRef struct {
	Hash        string    `json:"hash"`
	BlockHeight int64     `json:"block_height"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ProjectSnapshot 链上项目最新快照
type ProjectSnapshot struct {
	ID             string `json:"id"` // 标识符承诺（账本键）
	NameCommitment string `json:"name_commitment"`
	Budget         int64  `json:"budget"`
	Spent          int64  `json:"spent"`
	CreatedAt      int64  `json:"created_at"` // unix 秒
	CreatedBy      string `json:"created_by"` // 操作者地址
	Active         bool   `json:"active"`
}

// ExpenditureSnapshot 链上支出最新快照；同一 ID 追加多次时取最新条目
type ExpenditureSnapshot struct {
	ID                    string `json:"id"`
	ProjectID             string `json:"project_id"`
	Amount                int64  `json:"amount"`
	CategoryCommitment    string `json:"category_commitment"`
	DescriptionCommitment string `json:"description_commitment"`
	OccurredAt            int64  `json:"occurred_at"`
	ApprovedBy            string `json:"approved_by"`
	ProofCommitment       string `json:"proof_commitment"`
	CreatedAt             int64  `json:"created_at"`
	Verified              bool   `json:"verified"`
}

// ComplaintSnapshot 链上投诉最新快照
type ComplaintSnapshot struct {
	ID                    string `json:"id"`
	ProjectID             string `json:"project_id"`
	TitleCommitment       string `json:"title_commitment"`
	DescriptionCommitment string `json:"description_commitment"`
	ProofCommitment       string `json:"proof_commitment"`
	SubmittedBy           string `json:"submitted_by"`
	SubmittedAt           int64  `json:"submitted_at"`
	Resolved              bool   `json:"resolved"`
	ResponseCommitment    string `json:"response_commitment"`
	ResolvedAt            int64  `json:"resolved_at"`
}

// 错误分类；写失败必须可用 errors.Is 区分瞬时与终态
var (
	// ErrNotInitialized 配置缺失或端点初始化失败（fail closed）
	ErrNotInitialized = errors.New("ledger: not initialized")
	// ErrUnreachable 端点网络瞬时故障，可重试
	ErrUnreachable = errors.New("ledger: endpoint unreachable")
	// ErrUnauthorized 签名身份无写权限；不修复授权则重试无意义
	ErrUnauthorized = errors.New("ledger: unauthorized signer")
	// ErrReverted 账本拒绝该操作的前置条件；对该次写入是终态
	ErrReverted = errors.New("ledger: execution reverted")
	// ErrTimeout 确认等待超时；结果未知，重试前必须按键回查账本
	ErrTimeout = errors.New("ledger: timed out awaiting confirmation")
)

// Classify 返回错误的度量标签；nil 返回空串
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrReverted):
		return "reverted"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	default:
		return "unknown"
	}
}

// Retryable 判断失败是否值得在不改配置的情况下重试；
// Timeout 特殊：结果未知，重试前必须先回查
func Retryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}
