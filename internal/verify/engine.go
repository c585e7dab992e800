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

// Package verify 把权威记录与账本快照逐字段比对。
//
// 引擎对账本只读：比对结果只写回记录存储的 verified 标记，
// 绝不因核验触发账本写入。字段一律全等比较，承诺对承诺。
package verify

import (
	"context"
	"strconv"

	"civicledger/internal/ledger"
	"civicledger/internal/ledger/commitment"
	"civicledger/internal/storage/record"
	"civicledger/pkg/errors"
	"civicledger/pkg/log"
	"civicledger/pkg/metrics"
	"civicledger/pkg/tracing"
)

// FieldDiff 单字段比对结果；不匹配时带双方取值帮助排查
type FieldDiff struct {
	Match         bool   `json:"match"`
	Authoritative string `json:"database"`
	Ledger        string `json:"blockchain"`
}

// Report 一次核验的完整结论
type Report struct {
	RecordType string               `json:"record_type"`
	RecordID   string               `json:"record_id"`
	Committed  bool                 `json:"committed"` // 账本上是否存在该记录
	Verified   bool                 `json:"verified"`  // 全字段匹配
	Fields     map[string]FieldDiff `json:"fields,omitempty"`
}

// Engine 记录核验引擎
type Engine struct {
	store  record.Store
	client *ledger.Client
	logger *log.Logger
}

// NewEngine 构造核验引擎
func NewEngine(store record.Store, client *ledger.Client, logger *log.Logger) *Engine {
	return &Engine{store: store, client: client, logger: logger}
}

func diff(authoritative, onLedger string) FieldDiff {
	return FieldDiff{Match: authoritative == onLedger, Authoritative: authoritative, Ledger: onLedger}
}

func (e *Engine) finish(recordType string, rep *Report) *Report {
	rep.Verified = rep.Committed
	for _, d := range rep.Fields {
		if !d.Match {
			rep.Verified = false
			break
		}
	}
	result := "verified"
	switch {
	case !rep.Committed:
		result = "not_committed"
	case !rep.Verified:
		result = "mismatch"
	}
	metrics.VerificationTotal.WithLabelValues(recordType, result).Inc()
	if result == "mismatch" {
		e.logger.Warn("verification mismatch", "record_type", recordType, "id", rep.RecordID)
	}
	return rep
}

// VerifyProject 比对项目的名称承诺与预算
func (e *Engine) VerifyProject(ctx context.Context, id string) (*Report, error) {
	ctx, span := tracing.StartVerifySpan(ctx, "project", id)
	defer span.End()

	p, err := e.store.GetProject(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "verify project %s", id)
	}
	rep := &Report{RecordType: "project", RecordID: id}

	key := p.Ledger.Key
	if key == "" {
		key = commitment.Commit(p.ID)
	}
	snap, found, err := e.client.GetProject(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "verify project %s", id)
	}
	if !found {
		return e.finish("project", rep), nil
	}
	rep.Committed = true
	rep.Fields = map[string]FieldDiff{
		"name":   diff(commitment.Commit(p.Name), snap.NameCommitment),
		"budget": diff(strconv.FormatInt(p.Budget, 10), strconv.FormatInt(snap.Budget, 10)),
	}
	return e.finish("project", rep), nil
}

// VerifyExpenditure 比对支出各字段；全字段匹配时把 verified 写回记录存储
func (e *Engine) VerifyExpenditure(ctx context.Context, id string) (*Report, error) {
	ctx, span := tracing.StartVerifySpan(ctx, "expenditure", id)
	defer span.End()

	exp, err := e.store.GetExpenditure(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "verify expenditure %s", id)
	}
	rep := &Report{RecordType: "expenditure", RecordID: id}

	key := exp.Ledger.Key
	if key == "" {
		key = commitment.Commit(exp.ID)
	}
	snap, found, err := e.client.GetExpenditure(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "verify expenditure %s", id)
	}
	if !found {
		return e.finish("expenditure", rep), nil
	}
	rep.Committed = true
	rep.Fields = map[string]FieldDiff{
		"amount":      diff(strconv.FormatInt(exp.Amount, 10), strconv.FormatInt(snap.Amount, 10)),
		"category":    diff(commitment.Commit(exp.Category), snap.CategoryCommitment),
		"description": diff(commitment.Commit(exp.Description), snap.DescriptionCommitment),
		"proof":       diff(commitment.CommitOptional(exp.ProofDocument), snap.ProofCommitment),
	}
	rep = e.finish("expenditure", rep)

	// verified 标记只反映最近一次核验结论
	if exp.Verified != rep.Verified {
		if err := e.store.SetExpenditureVerified(ctx, id, rep.Verified); err != nil {
			return nil, errors.Wrapf(err, "record verification for %s", id)
		}
	}
	return rep, nil
}

// VerifyComplaint 比对投诉字段与解决状态
func (e *Engine) VerifyComplaint(ctx context.Context, id string) (*Report, error) {
	ctx, span := tracing.StartVerifySpan(ctx, "complaint", id)
	defer span.End()

	c, err := e.store.GetComplaint(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "verify complaint %s", id)
	}
	rep := &Report{RecordType: "complaint", RecordID: id}

	key := c.Ledger.Key
	if key == "" {
		key = commitment.Commit(c.ID)
	}
	snap, found, err := e.client.GetComplaint(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "verify complaint %s", id)
	}
	if !found {
		return e.finish("complaint", rep), nil
	}
	rep.Committed = true
	rep.Fields = map[string]FieldDiff{
		"title":       diff(commitment.Commit(c.Title), snap.TitleCommitment),
		"description": diff(commitment.Commit(c.Description), snap.DescriptionCommitment),
		"proof":       diff(commitment.CommitOptional(c.ProofDocument), snap.ProofCommitment),
		"resolved":    diff(strconv.FormatBool(c.Status == "resolved"), strconv.FormatBool(snap.Resolved)),
	}
	if c.Status == "resolved" {
		rep.Fields["response"] = diff(commitment.Commit(c.Response), snap.ResponseCommitment)
	}
	return e.finish("complaint", rep), nil
}
