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

package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"civicledger/internal/budget"
	"civicledger/pkg/errors"
)

// memoryStore 进程内记录存储，开发与测试用
type memoryStore struct {
	mu           sync.RWMutex
	projects     map[string]*Project
	expenditures map[string]*Expenditure
	complaints   map[string]*Complaint
	addresses    map[string]string
}

// NewMemoryStore 构造内存记录存储
func NewMemoryStore() Store {
	return &memoryStore{
		projects:     make(map[string]*Project),
		expenditures: make(map[string]*Expenditure),
		complaints:   make(map[string]*Complaint),
		addresses:    make(map[string]string),
	}
}

func (s *memoryStore) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return errors.Wrapf(errors.ErrConflict, "project %s", p.ID)
	}
	now := time.Now().UTC()
	cp := *p
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.Status == "" {
		cp.Status = "active"
	}
	if cp.Ledger.SyncState == "" {
		cp.Ledger.SyncState = SyncUnsynced
	}
	s.projects[p.ID] = &cp
	*p = cp
	return nil
}

func (s *memoryStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	cp := *p
	return &cp, nil
}

func (s *memoryStore) ListProjects(ctx context.Context, limit, offset int) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Project, 0, len(s.projects))
	for _, p := range s.projects {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), nil
}

func (s *memoryStore) UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	p.Budget = newBudget
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (s *memoryStore) UpdateProjectStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) ApplySpentDelta(ctx context.Context, projectID string, delta int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return 0, 0, errors.Wrapf(errors.ErrNotFound, "project %s", projectID)
	}
	p.Spent += delta
	p.UpdatedAt = time.Now().UTC()
	return p.Spent, p.Budget, nil
}

func (s *memoryStore) CreateExpenditure(ctx context.Context, e *Expenditure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenditures[e.ID]; ok {
		return errors.Wrapf(errors.ErrConflict, "expenditure %s", e.ID)
	}
	if _, ok := s.projects[e.ProjectID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "project %s", e.ProjectID)
	}
	now := time.Now().UTC()
	cp := *e
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.ApprovalState == "" {
		cp.ApprovalState = budget.StateNotApproved
	}
	if cp.Ledger.SyncState == "" {
		cp.Ledger.SyncState = SyncUnsynced
	}
	s.expenditures[e.ID] = &cp
	*e = cp
	return nil
}

func (s *memoryStore) GetExpenditure(ctx context.Context, id string) (*Expenditure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenditures[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
	}
	cp := *e
	return &cp, nil
}

func (s *memoryStore) ListExpenditures(ctx context.Context, projectID string, limit, offset int) ([]*Expenditure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Expenditure, 0)
	for _, e := range s.expenditures {
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		cp := *e
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), nil
}

func (s *memoryStore) TransitionExpenditure(ctx context.Context, id string, state budget.ApprovalState, amount int64, approvedBy string) (*TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenditures[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
	}
	p, ok := s.projects[e.ProjectID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", e.ProjectID)
	}

	tr := budget.Transition{
		PrevState:  e.ApprovalState,
		PrevAmount: e.Amount,
		CurState:   state,
		CurAmount:  amount,
	}
	e.ApprovalState = state
	e.Amount = amount
	if approvedBy != "" {
		e.ApprovedBy = approvedBy
	}
	e.UpdatedAt = time.Now().UTC()

	// 增量在同一临界区内落到项目账面，迁移与记账不可分离
	p.Spent += budget.Delta(tr)
	p.UpdatedAt = e.UpdatedAt

	return &TransitionResult{Prev: tr, NewSpent: p.Spent, Budget: p.Budget}, nil
}

func (s *memoryStore) SetExpenditureVerified(ctx context.Context, id string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenditures[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
	}
	e.Verified = verified
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) CreateComplaint(ctx context.Context, c *Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.complaints[c.ID]; ok {
		return errors.Wrapf(errors.ErrConflict, "complaint %s", c.ID)
	}
	if _, ok := s.projects[c.ProjectID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "project %s", c.ProjectID)
	}
	now := time.Now().UTC()
	cp := *c
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.Status == "" {
		cp.Status = "open"
	}
	if cp.Ledger.SyncState == "" {
		cp.Ledger.SyncState = SyncUnsynced
	}
	s.complaints[c.ID] = &cp
	*c = cp
	return nil
}

func (s *memoryStore) GetComplaint(ctx context.Context, id string) (*Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "complaint %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) ListComplaints(ctx context.Context, projectID string, limit, offset int) ([]*Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Complaint, 0)
	for _, c := range s.complaints {
		if projectID != "" && c.ProjectID != projectID {
			continue
		}
		cp := *c
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, limit, offset), nil
}

func (s *memoryStore) ResolveComplaint(ctx context.Context, id, response string) (*Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "complaint %s", id)
	}
	if c.Status != "open" {
		return nil, errors.Wrapf(errors.ErrConflict, "complaint %s already %s", id, c.Status)
	}
	c.Status = "resolved"
	c.Response = response
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (s *memoryStore) RejectComplaint(ctx context.Context, id, reason string) (*Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "complaint %s", id)
	}
	if c.Status != "open" {
		return nil, errors.Wrapf(errors.ErrConflict, "complaint %s already %s", id, c.Status)
	}
	c.Status = "rejected"
	c.RejectionReason = reason
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (s *memoryStore) UpdateLedgerRef(ctx context.Context, recordType, id string, ref LedgerRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch recordType {
	case "project":
		p, ok := s.projects[id]
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "project %s", id)
		}
		p.Ledger = ref
		p.UpdatedAt = time.Now().UTC()
	case "expenditure":
		e, ok := s.expenditures[id]
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
		}
		e.Ledger = ref
		e.UpdatedAt = time.Now().UTC()
	case "complaint":
		c, ok := s.complaints[id]
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "complaint %s", id)
		}
		c.Ledger = ref
		c.UpdatedAt = time.Now().UTC()
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "record type %s", recordType)
	}
	return nil
}

func (s *memoryStore) ListPendingSync(ctx context.Context, limit int) ([]PendingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := make([]PendingRecord, 0)
	appendIf := func(rt, id string, ref LedgerRef) {
		if ref.SyncState == SyncUnsynced || ref.SyncState == SyncWriteFailed || ref.SyncState == SyncWriteInFlight {
			pending = append(pending, PendingRecord{RecordType: rt, RecordID: id, SyncState: ref.SyncState, Attempts: ref.Attempts})
		}
	}
	for id, p := range s.projects {
		appendIf("project", id, p.Ledger)
	}
	for id, e := range s.expenditures {
		appendIf("expenditure", id, e.Ledger)
	}
	for id, c := range s.complaints {
		appendIf("complaint", id, c.Ledger)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].RecordType != pending[j].RecordType {
			return pending[i].RecordType < pending[j].RecordType
		}
		return pending[i].RecordID < pending[j].RecordID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *memoryStore) RegisterActorAddress(ctx context.Context, actorID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[actorID] = address
	return nil
}

func (s *memoryStore) GetActorAddress(ctx context.Context, actorID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.addresses[actorID]
	if !ok {
		return "", errors.Wrapf(errors.ErrNotFound, "address for actor %s", actorID)
	}
	return addr, nil
}

func (s *memoryStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &Stats{
		Projects:     int64(len(s.projects)),
		Expenditures: int64(len(s.expenditures)),
		Complaints:   int64(len(s.complaints)),
	}
	for _, p := range s.projects {
		if p.Ledger.SyncState == SyncCommitted {
			st.CommittedProjects++
		}
	}
	for _, e := range s.expenditures {
		if e.Ledger.SyncState == SyncCommitted {
			st.CommittedExpenditure++
		}
	}
	for _, c := range s.complaints {
		if c.Ledger.SyncState == SyncCommitted {
			st.CommittedComplaints++
		}
	}
	return st, nil
}

func (s *memoryStore) Close() error { return nil }

func paginate[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
