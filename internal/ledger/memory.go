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

package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryLedger 进程内账本，开发与测试用。按合约语义执行：
// 追加式条目、owner/official 授权、一次性创建、单向 resolve。
// 每次成功写入推进一个区块高度。
type memoryLedger struct {
	mu sync.Mutex

	owner     string
	officials map[string]bool // address -> admin
	signer    string          // 当前签名身份

	projects     map[string]*ProjectSnapshot
	expenditures map[string][]*ExpenditureSnapshot // 追加式，查询取末尾
	complaints   map[string]*ComplaintSnapshot

	height  int64
	balance map[string]int64
}

// NewMemoryContract 返回进程内账本；signer 同时成为 owner
func NewMemoryContract(signer string) Contract {
	return &memoryLedger{
		owner:        signer,
		signer:       signer,
		officials:    map[string]bool{signer: true},
		projects:     make(map[string]*ProjectSnapshot),
		expenditures: make(map[string][]*ExpenditureSnapshot),
		complaints:   make(map[string]*ComplaintSnapshot),
		balance:      map[string]int64{signer: 1_000_000_000},
	}
}

// SetSigner 切换签名身份，仅测试授权路径使用
func (m *memoryLedger) SetSigner(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signer = address
}

func (m *memoryLedger) authorized() bool {
	return m.signer == m.owner || m.officials[m.signer]
}

func (m *memoryLedger) commitTx() TxRef {
	m.height++
	return TxRef{
		Hash:        "0x" + uuid.NewString(),
		BlockHeight: m.height,
		ConfirmedAt: time.Now().UTC(),
	}
}

func (m *memoryLedger) CreateProject(ctx context.Context, id, nameCommitment string, budget int64) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	if budget < 0 {
		return TxRef{}, fmt.Errorf("%w: negative budget", ErrReverted)
	}
	if _, ok := m.projects[id]; ok {
		return TxRef{}, fmt.Errorf("%w: project already exists", ErrReverted)
	}
	m.projects[id] = &ProjectSnapshot{
		ID:             id,
		NameCommitment: nameCommitment,
		Budget:         budget,
		CreatedAt:      time.Now().Unix(),
		CreatedBy:      m.signer,
		Active:         true,
	}
	return m.commitTx(), nil
}

func (m *memoryLedger) UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	p, ok := m.projects[id]
	if !ok {
		return TxRef{}, fmt.Errorf("%w: unknown project", ErrReverted)
	}
	if newBudget < 0 {
		return TxRef{}, fmt.Errorf("%w: negative budget", ErrReverted)
	}
	// 快照字段改写即"最新条目"；内存实现不保留历史
	p.Budget = newBudget
	return m.commitTx(), nil
}

func (m *memoryLedger) AddExpenditure(ctx context.Context, id, projectID string, amount int64, categoryCommitment, descriptionCommitment string, occurredAt int64, proofCommitment string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	p, ok := m.projects[projectID]
	if !ok {
		return TxRef{}, fmt.Errorf("%w: unknown project", ErrReverted)
	}
	if amount <= 0 {
		return TxRef{}, fmt.Errorf("%w: non-positive amount", ErrReverted)
	}
	entry := &ExpenditureSnapshot{
		ID:                    id,
		ProjectID:             projectID,
		Amount:                amount,
		CategoryCommitment:    categoryCommitment,
		DescriptionCommitment: descriptionCommitment,
		OccurredAt:            occurredAt,
		ApprovedBy:            m.signer,
		ProofCommitment:       proofCommitment,
		CreatedAt:             time.Now().Unix(),
	}
	prev := m.latestExpenditure(id)
	if prev != nil {
		// 更正条目：项目支出按差额调整
		p.Spent += amount - prev.Amount
	} else {
		p.Spent += amount
	}
	m.expenditures[id] = append(m.expenditures[id], entry)
	return m.commitTx(), nil
}

func (m *memoryLedger) VerifyExpenditure(ctx context.Context, id string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	e := m.latestExpenditure(id)
	if e == nil {
		return TxRef{}, fmt.Errorf("%w: unknown expenditure", ErrReverted)
	}
	e.Verified = true
	return m.commitTx(), nil
}

func (m *memoryLedger) SubmitComplaint(ctx context.Context, id, projectID, titleCommitment, descriptionCommitment, proofCommitment string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	if _, ok := m.projects[projectID]; !ok {
		return TxRef{}, fmt.Errorf("%w: unknown project", ErrReverted)
	}
	if _, ok := m.complaints[id]; ok {
		return TxRef{}, fmt.Errorf("%w: complaint already exists", ErrReverted)
	}
	m.complaints[id] = &ComplaintSnapshot{
		ID:                    id,
		ProjectID:             projectID,
		TitleCommitment:       titleCommitment,
		DescriptionCommitment: descriptionCommitment,
		ProofCommitment:       proofCommitment,
		SubmittedBy:           m.signer,
		SubmittedAt:           time.Now().Unix(),
	}
	return m.commitTx(), nil
}

func (m *memoryLedger) ResolveComplaint(ctx context.Context, id, responseCommitment string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized() {
		return TxRef{}, ErrUnauthorized
	}
	c, ok := m.complaints[id]
	if !ok {
		return TxRef{}, fmt.Errorf("%w: unknown complaint", ErrReverted)
	}
	if c.Resolved {
		return TxRef{}, fmt.Errorf("%w: complaint already resolved", ErrReverted)
	}
	c.Resolved = true
	c.ResponseCommitment = responseCommitment
	c.ResolvedAt = time.Now().Unix()
	return m.commitTx(), nil
}

func (m *memoryLedger) AddOfficial(ctx context.Context, address string, admin bool) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signer != m.owner {
		return TxRef{}, ErrUnauthorized
	}
	m.officials[address] = admin
	return m.commitTx(), nil
}

func (m *memoryLedger) RemoveOfficial(ctx context.Context, address string) (TxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signer != m.owner {
		return TxRef{}, ErrUnauthorized
	}
	if address == m.owner {
		return TxRef{}, fmt.Errorf("%w: cannot remove owner", ErrReverted)
	}
	delete(m.officials, address)
	return m.commitTx(), nil
}

func (m *memoryLedger) latestExpenditure(id string) *ExpenditureSnapshot {
	entries := m.expenditures[id]
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

func (m *memoryLedger) GetProject(ctx context.Context, id string) (*ProjectSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

func (m *memoryLedger) GetExpenditure(ctx context.Context, id string) (*ExpenditureSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.latestExpenditure(id)
	if e == nil {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *memoryLedger) GetComplaint(ctx context.Context, id string) (*ComplaintSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (m *memoryLedger) BlockHeight(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

func (m *memoryLedger) Balance(ctx context.Context, address string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance[address], nil
}

func (m *memoryLedger) EstimateFee(ctx context.Context, op string) (int64, error) {
	return 21000, nil
}
