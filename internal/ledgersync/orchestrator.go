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

// Package ledgersync 把权威记录异步推送到账本，并维护每条记录的
// 同步状态机：unsynced -> write_in_flight -> committed / write_failed。
//
// 记录保存从不被账本失败阻断；失败只落在同步元数据上，由后台重试。
// 确认超时后结果未知，重试前先按标识符承诺回查账本，避免重复写入。
package ledgersync

import (
	"context"
	"time"

	"civicledger/internal/budget"
	"civicledger/internal/ledger"
	"civicledger/internal/ledger/commitment"
	"civicledger/internal/storage/record"
	"civicledger/pkg/errors"
	"civicledger/pkg/log"
	"civicledger/pkg/metrics"
)

const asyncTimeout = 2 * time.Minute

// Orchestrator 驱动记录与账本之间的同步
type Orchestrator struct {
	store  record.Store
	client *ledger.Client
	logger *log.Logger
}

// NewOrchestrator 构造同步编排器
func NewOrchestrator(store record.Store, client *ledger.Client, logger *log.Logger) *Orchestrator {
	return &Orchestrator{store: store, client: client, logger: logger}
}

// EnqueueProject 请求线程外触发项目同步，立即返回
func (o *Orchestrator) EnqueueProject(id string) { o.enqueue("project", id, o.SyncProject) }

// EnqueueExpenditure 异步触发支出同步
func (o *Orchestrator) EnqueueExpenditure(id string) { o.enqueue("expenditure", id, o.SyncExpenditure) }

// EnqueueComplaint 异步触发投诉同步
func (o *Orchestrator) EnqueueComplaint(id string) { o.enqueue("complaint", id, o.SyncComplaint) }

func (o *Orchestrator) enqueue(recordType, id string, sync func(context.Context, string) error) {
	if !o.client.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if err := sync(ctx, id); err != nil {
			o.logger.Warn("async ledger sync failed", "record_type", recordType, "id", id, "error", err)
		}
	}()
}

// markInFlight 推进状态机到 write_in_flight 并累加尝试次数
func (o *Orchestrator) markInFlight(ctx context.Context, recordType, id string, ref *record.LedgerRef) error {
	ref.SyncState = record.SyncWriteInFlight
	ref.Attempts++
	ref.LastAttemptAt = time.Now().UTC()
	metrics.SyncState.WithLabelValues(recordType, string(record.SyncWriteInFlight)).Inc()
	return o.store.UpdateLedgerRef(ctx, recordType, id, *ref)
}

func (o *Orchestrator) markCommitted(ctx context.Context, recordType, id string, ref *record.LedgerRef, tx ledger.TxRef) error {
	ref.SyncState = record.SyncCommitted
	ref.TxHash = tx.Hash
	ref.BlockHeight = tx.BlockHeight
	ref.SyncError = ""
	metrics.SyncState.WithLabelValues(recordType, string(record.SyncCommitted)).Inc()
	o.logger.Info("record committed to ledger", "record_type", recordType, "id", id, "tx", tx.Hash)
	return o.store.UpdateLedgerRef(ctx, recordType, id, *ref)
}

func (o *Orchestrator) markFailed(ctx context.Context, recordType, id string, ref *record.LedgerRef, cause error) error {
	ref.SyncState = record.SyncWriteFailed
	ref.SyncError = cause.Error()
	metrics.SyncState.WithLabelValues(recordType, string(record.SyncWriteFailed)).Inc()
	o.logger.Warn("record sync failed", "record_type", recordType, "id", id, "reason", ledger.Classify(cause))
	if err := o.store.UpdateLedgerRef(ctx, recordType, id, *ref); err != nil {
		return err
	}
	return cause
}

// recoverTimeout 超时后的幂等恢复：按键回查账本，已在账即视为提交成功
func (o *Orchestrator) recoverTimeout(ctx context.Context, recordType, id string, ref *record.LedgerRef, cause error,
	lookup func(context.Context, string) (bool, error)) error {
	found, err := lookup(ctx, ref.Key)
	if err == nil && found {
		// 写入其实已落账，只是确认没等到；交易引用缺失但键可查
		ref.SyncState = record.SyncCommitted
		ref.SyncError = ""
		metrics.SyncState.WithLabelValues(recordType, string(record.SyncCommitted)).Inc()
		o.logger.Info("timed-out write found on ledger, adopting as committed", "record_type", recordType, "id", id)
		return o.store.UpdateLedgerRef(ctx, recordType, id, *ref)
	}
	return o.markFailed(ctx, recordType, id, ref, cause)
}

// SyncProject 把项目推送到账本。首次提交创建条目；
// 已提交的项目按当前预算追加修正条目
func (o *Orchestrator) SyncProject(ctx context.Context, id string) error {
	p, err := o.store.GetProject(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "sync project %s", id)
	}
	ref := p.Ledger
	if ref.Key == "" {
		ref.Key = commitment.Commit(p.ID)
	}

	if ref.SyncState == record.SyncCommitted {
		rec, err := o.client.UpdateProjectBudget(ctx, ref.Key, p.Budget)
		if err != nil {
			return o.markFailed(ctx, "project", id, &ref, err)
		}
		if rec.Disabled {
			return nil
		}
		return o.markCommitted(ctx, "project", id, &ref, rec.TxRef)
	}

	if err := o.markInFlight(ctx, "project", id, &ref); err != nil {
		return err
	}
	rec, err := o.client.CreateProject(ctx, ref.Key, commitment.Commit(p.Name), p.Budget)
	switch {
	case err == nil && rec.Disabled:
		ref.SyncState = record.SyncUnsynced
		return o.store.UpdateLedgerRef(ctx, "project", id, ref)
	case err == nil:
		return o.markCommitted(ctx, "project", id, &ref, rec.TxRef)
	case errors.Is(err, ledger.ErrTimeout):
		return o.recoverTimeout(ctx, "project", id, &ref, err, func(ctx context.Context, key string) (bool, error) {
			_, found, lerr := o.client.GetProject(ctx, key)
			return found, lerr
		})
	case errors.Is(err, ledger.ErrReverted):
		// 多半是重复创建：账本上已有该键就直接采纳
		if _, found, lerr := o.client.GetProject(ctx, ref.Key); lerr == nil && found {
			ref.SyncError = ""
			ref.SyncState = record.SyncCommitted
			return o.store.UpdateLedgerRef(ctx, "project", id, ref)
		}
		return o.markFailed(ctx, "project", id, &ref, err)
	default:
		return o.markFailed(ctx, "project", id, &ref, err)
	}
}

// SyncExpenditure 把支出推送到账本；仅已批准的支出上账，
// 金额修订表现为追加修正条目
func (o *Orchestrator) SyncExpenditure(ctx context.Context, id string) error {
	e, err := o.store.GetExpenditure(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "sync expenditure %s", id)
	}
	if e.ApprovalState != budget.StateApproved {
		return nil
	}
	p, err := o.store.GetProject(ctx, e.ProjectID)
	if err != nil {
		return errors.Wrapf(err, "sync expenditure %s", id)
	}

	ref := e.Ledger
	if ref.Key == "" {
		ref.Key = commitment.Commit(e.ID)
	}
	projectKey := p.Ledger.Key
	if projectKey == "" {
		projectKey = commitment.Commit(p.ID)
	}

	if err := o.markInFlight(ctx, "expenditure", id, &ref); err != nil {
		return err
	}
	rec, err := o.client.AddExpenditure(ctx, ref.Key, projectKey, e.Amount,
		commitment.Commit(e.Category), commitment.Commit(e.Description),
		e.OccurredAt.Unix(), commitment.CommitOptional(e.ProofDocument))
	switch {
	case err == nil && rec.Disabled:
		ref.SyncState = record.SyncUnsynced
		return o.store.UpdateLedgerRef(ctx, "expenditure", id, ref)
	case err == nil:
		return o.markCommitted(ctx, "expenditure", id, &ref, rec.TxRef)
	case errors.Is(err, ledger.ErrTimeout):
		return o.recoverTimeout(ctx, "expenditure", id, &ref, err, func(ctx context.Context, key string) (bool, error) {
			snap, found, lerr := o.client.GetExpenditure(ctx, key)
			// 支出可追加：只有金额一致的最新条目才算本次写入已落账
			return found && snap != nil && snap.Amount == e.Amount, lerr
		})
	default:
		return o.markFailed(ctx, "expenditure", id, &ref, err)
	}
}

// SyncComplaint 把投诉推送到账本；已解决的投诉补推 resolve 条目
func (o *Orchestrator) SyncComplaint(ctx context.Context, id string) error {
	c, err := o.store.GetComplaint(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "sync complaint %s", id)
	}
	p, err := o.store.GetProject(ctx, c.ProjectID)
	if err != nil {
		return errors.Wrapf(err, "sync complaint %s", id)
	}

	ref := c.Ledger
	if ref.Key == "" {
		ref.Key = commitment.Commit(c.ID)
	}
	projectKey := p.Ledger.Key
	if projectKey == "" {
		projectKey = commitment.Commit(p.ID)
	}

	if ref.SyncState != record.SyncCommitted {
		if err := o.markInFlight(ctx, "complaint", id, &ref); err != nil {
			return err
		}
		rec, err := o.client.SubmitComplaint(ctx, ref.Key, projectKey,
			commitment.Commit(c.Title), commitment.Commit(c.Description),
			commitment.CommitOptional(c.ProofDocument))
		switch {
		case err == nil && rec.Disabled:
			ref.SyncState = record.SyncUnsynced
			return o.store.UpdateLedgerRef(ctx, "complaint", id, ref)
		case err == nil:
			if err := o.markCommitted(ctx, "complaint", id, &ref, rec.TxRef); err != nil {
				return err
			}
		case errors.Is(err, ledger.ErrTimeout):
			return o.recoverTimeout(ctx, "complaint", id, &ref, err, func(ctx context.Context, key string) (bool, error) {
				_, found, lerr := o.client.GetComplaint(ctx, key)
				return found, lerr
			})
		case errors.Is(err, ledger.ErrReverted):
			if _, found, lerr := o.client.GetComplaint(ctx, ref.Key); lerr == nil && found {
				ref.SyncError = ""
				ref.SyncState = record.SyncCommitted
				if err := o.store.UpdateLedgerRef(ctx, "complaint", id, ref); err != nil {
					return err
				}
			} else {
				return o.markFailed(ctx, "complaint", id, &ref, err)
			}
		default:
			return o.markFailed(ctx, "complaint", id, &ref, err)
		}
	}

	// 权威记录已解决而账本还未解决时补推
	if c.Status == "resolved" {
		snap, found, lerr := o.client.GetComplaint(ctx, ref.Key)
		if lerr == nil && found && !snap.Resolved {
			if _, err := o.client.ResolveComplaint(ctx, ref.Key, commitment.Commit(c.Response)); err != nil && !errors.Is(err, ledger.ErrReverted) {
				return o.markFailed(ctx, "complaint", id, &ref, err)
			}
		}
	}
	return nil
}

// SyncOne 按记录类型分派，后台 worker 使用
func (o *Orchestrator) SyncOne(ctx context.Context, rec record.PendingRecord) error {
	switch rec.RecordType {
	case "project":
		return o.SyncProject(ctx, rec.RecordID)
	case "expenditure":
		return o.SyncExpenditure(ctx, rec.RecordID)
	case "complaint":
		return o.SyncComplaint(ctx, rec.RecordID)
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "record type %s", rec.RecordType)
	}
}
