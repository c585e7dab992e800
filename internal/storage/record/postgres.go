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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicledger/internal/budget"
	"civicledger/pkg/errors"
)

const recordSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    ward             TEXT NOT NULL DEFAULT '',
    budget           BIGINT NOT NULL,
    spent            BIGINT NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'active',
    created_by       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    ledger_key       TEXT NOT NULL DEFAULT '',
    ledger_tx        TEXT NOT NULL DEFAULT '',
    ledger_height    BIGINT NOT NULL DEFAULT 0,
    sync_state       TEXT NOT NULL DEFAULT 'unsynced',
    sync_error       TEXT NOT NULL DEFAULT '',
    sync_attempts    INT NOT NULL DEFAULT 0,
    last_attempt_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS expenditures (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL REFERENCES projects(id),
    amount           BIGINT NOT NULL,
    category         TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    occurred_at      TIMESTAMPTZ,
    approval_state   TEXT NOT NULL DEFAULT 'notApproved',
    approved_by      TEXT NOT NULL DEFAULT '',
    proof_document   TEXT NOT NULL DEFAULT '',
    verified         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    ledger_key       TEXT NOT NULL DEFAULT '',
    ledger_tx        TEXT NOT NULL DEFAULT '',
    ledger_height    BIGINT NOT NULL DEFAULT 0,
    sync_state       TEXT NOT NULL DEFAULT 'unsynced',
    sync_error       TEXT NOT NULL DEFAULT '',
    sync_attempts    INT NOT NULL DEFAULT 0,
    last_attempt_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_expenditures_project ON expenditures(project_id);

CREATE TABLE IF NOT EXISTS complaints (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL REFERENCES projects(id),
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    proof_document   TEXT NOT NULL DEFAULT '',
    submitted_by     TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'open',
    response         TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    ledger_key       TEXT NOT NULL DEFAULT '',
    ledger_tx        TEXT NOT NULL DEFAULT '',
    ledger_height    BIGINT NOT NULL DEFAULT 0,
    sync_state       TEXT NOT NULL DEFAULT 'unsynced',
    sync_error       TEXT NOT NULL DEFAULT '',
    sync_attempts    INT NOT NULL DEFAULT 0,
    last_attempt_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_complaints_project ON complaints(project_id);

CREATE TABLE IF NOT EXISTS actor_addresses (
    actor_id   TEXT PRIMARY KEY,
    address    TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// postgresStore 生产用记录存储。spent 调整与审批迁移在数据库侧原子完成
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 连接 Postgres 并确保表结构存在
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, recordSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

const projectColumns = `id, name, description, ward, budget, spent, status, created_by,
	created_at, updated_at, ledger_key, ledger_tx, ledger_height, sync_state, sync_error, sync_attempts,
	COALESCE(last_attempt_at, 'epoch'::timestamptz)`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Ward, &p.Budget, &p.Spent, &p.Status, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt, &p.Ledger.Key, &p.Ledger.TxHash, &p.Ledger.BlockHeight,
		&p.Ledger.SyncState, &p.Ledger.SyncError, &p.Ledger.Attempts, &p.Ledger.LastAttemptAt)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *postgresStore) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = "active"
	}
	if p.Ledger.SyncState == "" {
		p.Ledger.SyncState = SyncUnsynced
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, name, description, ward, budget, spent, status, created_by, created_at, updated_at, sync_state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.Name, p.Description, p.Ward, p.Budget, p.Spent, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt, p.Ledger.SyncState)
	if err != nil {
		return errors.Wrapf(err, "insert project %s", p.ID)
	}
	return nil
}

func (s *postgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, errors.Wrapf(err, "project %s", id)
	}
	return p, nil
}

func (s *postgresStore) ListProjects(ctx context.Context, limit, offset int) ([]*Project, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (*Project, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET budget = $2, updated_at = now() WHERE id = $1`, id, newBudget)
	if err != nil {
		return nil, errors.Wrapf(err, "update budget %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	return s.GetProject(ctx, id)
}

func (s *postgresStore) UpdateProjectStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrapf(err, "update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	return nil
}

// ApplySpentDelta 单条 UPDATE ... RETURNING，并发安全无读-改-写窗口
func (s *postgresStore) ApplySpentDelta(ctx context.Context, projectID string, delta int64) (int64, int64, error) {
	var spent, budgetTotal int64
	err := s.pool.QueryRow(ctx, `
		UPDATE projects SET spent = spent + $2, updated_at = now()
		WHERE id = $1
		RETURNING spent, budget`, projectID, delta).Scan(&spent, &budgetTotal)
	if err == pgx.ErrNoRows {
		return 0, 0, errors.Wrapf(errors.ErrNotFound, "project %s", projectID)
	}
	if err != nil {
		return 0, 0, errors.Wrapf(err, "apply spent delta %s", projectID)
	}
	return spent, budgetTotal, nil
}

const expenditureColumns = `id, project_id, amount, category, description,
	COALESCE(occurred_at, 'epoch'::timestamptz), approval_state, approved_by, proof_document, verified,
	created_at, updated_at, ledger_key, ledger_tx, ledger_height, sync_state, sync_error, sync_attempts,
	COALESCE(last_attempt_at, 'epoch'::timestamptz)`

func scanExpenditure(row pgx.Row) (*Expenditure, error) {
	var e Expenditure
	err := row.Scan(&e.ID, &e.ProjectID, &e.Amount, &e.Category, &e.Description,
		&e.OccurredAt, &e.ApprovalState, &e.ApprovedBy, &e.ProofDocument, &e.Verified,
		&e.CreatedAt, &e.UpdatedAt, &e.Ledger.Key, &e.Ledger.TxHash, &e.Ledger.BlockHeight,
		&e.Ledger.SyncState, &e.Ledger.SyncError, &e.Ledger.Attempts, &e.Ledger.LastAttemptAt)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *postgresStore) CreateExpenditure(ctx context.Context, e *Expenditure) error {
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.ApprovalState == "" {
		e.ApprovalState = budget.StateNotApproved
	}
	if e.Ledger.SyncState == "" {
		e.Ledger.SyncState = SyncUnsynced
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO expenditures (id, project_id, amount, category, description, occurred_at, approval_state, approved_by, proof_document, created_at, updated_at, sync_state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.ProjectID, e.Amount, e.Category, e.Description, e.OccurredAt, e.ApprovalState, e.ApprovedBy, e.ProofDocument, e.CreatedAt, e.UpdatedAt, e.Ledger.SyncState)
	if err != nil {
		return errors.Wrapf(err, "insert expenditure %s", e.ID)
	}
	return nil
}

func (s *postgresStore) GetExpenditure(ctx context.Context, id string) (*Expenditure, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+expenditureColumns+` FROM expenditures WHERE id = $1`, id)
	e, err := scanExpenditure(row)
	if err != nil {
		return nil, errors.Wrapf(err, "expenditure %s", id)
	}
	return e, nil
}

func (s *postgresStore) ListExpenditures(ctx context.Context, projectID string, limit, offset int) ([]*Expenditure, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+expenditureColumns+` FROM expenditures
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list expenditures")
	}
	defer rows.Close()
	var out []*Expenditure
	for rows.Next() {
		e, err := scanExpenditure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TransitionExpenditure 在单个事务里完成：行锁读取旧视图、写入新状态、
// 按增量调整项目 spent
func (s *postgresStore) TransitionExpenditure(ctx context.Context, id string, state budget.ApprovalState, amount int64, approvedBy string) (*TransitionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transition")
	}
	defer tx.Rollback(ctx)

	var tr budget.Transition
	var projectID string
	err = tx.QueryRow(ctx, `
		SELECT project_id, approval_state, amount FROM expenditures WHERE id = $1 FOR UPDATE`, id).
		Scan(&projectID, &tr.PrevState, &tr.PrevAmount)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lock expenditure %s", id)
	}
	tr.CurState, tr.CurAmount = state, amount

	if approvedBy != "" {
		_, err = tx.Exec(ctx, `UPDATE expenditures SET approval_state = $2, amount = $3, approved_by = $4, updated_at = now() WHERE id = $1`,
			id, state, amount, approvedBy)
	} else {
		_, err = tx.Exec(ctx, `UPDATE expenditures SET approval_state = $2, amount = $3, updated_at = now() WHERE id = $1`,
			id, state, amount)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "update expenditure %s", id)
	}

	var spent, budgetTotal int64
	err = tx.QueryRow(ctx, `
		UPDATE projects SET spent = spent + $2, updated_at = now()
		WHERE id = $1
		RETURNING spent, budget`, projectID, budget.Delta(tr)).Scan(&spent, &budgetTotal)
	if err != nil {
		return nil, errors.Wrapf(err, "apply delta to project %s", projectID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit transition")
	}
	return &TransitionResult{Prev: tr, NewSpent: spent, Budget: budgetTotal}, nil
}

func (s *postgresStore) SetExpenditureVerified(ctx context.Context, id string, verified bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE expenditures SET verified = $2, updated_at = now() WHERE id = $1`, id, verified)
	if err != nil {
		return errors.Wrapf(err, "set verified %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "expenditure %s", id)
	}
	return nil
}

const complaintColumns = `id, project_id, title, description, proof_document, submitted_by, status, response, rejection_reason,
	created_at, updated_at, ledger_key, ledger_tx, ledger_height, sync_state, sync_error, sync_attempts,
	COALESCE(last_attempt_at, 'epoch'::timestamptz)`

func scanComplaint(row pgx.Row) (*Complaint, error) {
	var c Complaint
	err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Description, &c.ProofDocument, &c.SubmittedBy,
		&c.Status, &c.Response, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt,
		&c.Ledger.Key, &c.Ledger.TxHash, &c.Ledger.BlockHeight, &c.Ledger.SyncState,
		&c.Ledger.SyncError, &c.Ledger.Attempts, &c.Ledger.LastAttemptAt)
	if err == pgx.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *postgresStore) CreateComplaint(ctx context.Context, c *Complaint) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = "open"
	}
	if c.Ledger.SyncState == "" {
		c.Ledger.SyncState = SyncUnsynced
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO complaints (id, project_id, title, description, proof_document, submitted_by, status, created_at, updated_at, sync_state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.ProjectID, c.Title, c.Description, c.ProofDocument, c.SubmittedBy, c.Status, c.CreatedAt, c.UpdatedAt, c.Ledger.SyncState)
	if err != nil {
		return errors.Wrapf(err, "insert complaint %s", c.ID)
	}
	return nil
}

func (s *postgresStore) GetComplaint(ctx context.Context, id string) (*Complaint, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id)
	c, err := scanComplaint(row)
	if err != nil {
		return nil, errors.Wrapf(err, "complaint %s", id)
	}
	return c, nil
}

func (s *postgresStore) ListComplaints(ctx context.Context, projectID string, limit, offset int) ([]*Complaint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+complaintColumns+` FROM complaints
		WHERE ($1 = '' OR project_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, projectID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list complaints")
	}
	defer rows.Close()
	var out []*Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *postgresStore) ResolveComplaint(ctx context.Context, id, response string) (*Complaint, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE complaints SET status = 'resolved', response = $2, updated_at = now()
		WHERE id = $1 AND status = 'open'`, id, response)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve complaint %s", id)
	}
	if tag.RowsAffected() == 0 {
		// 不存在或已终态，细分后返回
		if _, err := s.GetComplaint(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(errors.ErrConflict, "complaint %s not open", id)
	}
	return s.GetComplaint(ctx, id)
}

func (s *postgresStore) RejectComplaint(ctx context.Context, id, reason string) (*Complaint, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE complaints SET status = 'rejected', rejection_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'open'`, id, reason)
	if err != nil {
		return nil, errors.Wrapf(err, "reject complaint %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetComplaint(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(errors.ErrConflict, "complaint %s not open", id)
	}
	return s.GetComplaint(ctx, id)
}

func tableFor(recordType string) (string, error) {
	switch recordType {
	case "project":
		return "projects", nil
	case "expenditure":
		return "expenditures", nil
	case "complaint":
		return "complaints", nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidArg, "record type %s", recordType)
	}
}

func (s *postgresStore) UpdateLedgerRef(ctx context.Context, recordType, id string, ref LedgerRef) error {
	table, err := tableFor(recordType)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+table+` SET ledger_key = $2, ledger_tx = $3, ledger_height = $4,
			sync_state = $5, sync_error = $6, sync_attempts = $7, last_attempt_at = $8, updated_at = now()
		WHERE id = $1`,
		id, ref.Key, ref.TxHash, ref.BlockHeight, ref.SyncState, ref.SyncError, ref.Attempts, ref.LastAttemptAt)
	if err != nil {
		return errors.Wrapf(err, "update ledger ref %s/%s", recordType, id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "%s %s", recordType, id)
	}
	return nil
}

func (s *postgresStore) ListPendingSync(ctx context.Context, limit int) ([]PendingRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT 'project', id, sync_state, sync_attempts FROM projects WHERE sync_state IN ('unsynced','write_failed','write_in_flight')
		UNION ALL
		SELECT 'expenditure', id, sync_state, sync_attempts FROM expenditures WHERE sync_state IN ('unsynced','write_failed','write_in_flight')
		UNION ALL
		SELECT 'complaint', id, sync_state, sync_attempts FROM complaints WHERE sync_state IN ('unsynced','write_failed','write_in_flight')
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list pending sync")
	}
	defer rows.Close()
	var out []PendingRecord
	for rows.Next() {
		var r PendingRecord
		if err := rows.Scan(&r.RecordType, &r.RecordID, &r.SyncState, &r.Attempts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) RegisterActorAddress(ctx context.Context, actorID, address string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actor_addresses (actor_id, address, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (actor_id) DO UPDATE SET address = EXCLUDED.address, updated_at = now()`,
		actorID, address)
	if err != nil {
		return errors.Wrapf(err, "register address for %s", actorID)
	}
	return nil
}

func (s *postgresStore) GetActorAddress(ctx context.Context, actorID string) (string, error) {
	var addr string
	err := s.pool.QueryRow(ctx, `SELECT address FROM actor_addresses WHERE actor_id = $1`, actorID).Scan(&addr)
	if err == pgx.ErrNoRows {
		return "", errors.Wrapf(errors.ErrNotFound, "address for actor %s", actorID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "get address for %s", actorID)
	}
	return addr, nil
}

func (s *postgresStore) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM projects),
			(SELECT count(*) FROM expenditures),
			(SELECT count(*) FROM complaints),
			(SELECT count(*) FROM projects WHERE sync_state = 'committed'),
			(SELECT count(*) FROM expenditures WHERE sync_state = 'committed'),
			(SELECT count(*) FROM complaints WHERE sync_state = 'committed')`).
		Scan(&st.Projects, &st.Expenditures, &st.Complaints,
			&st.CommittedProjects, &st.CommittedExpenditure, &st.CommittedComplaints)
	if err != nil {
		return nil, errors.Wrap(err, "stats")
	}
	return &st, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
