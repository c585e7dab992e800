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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// JSON-RPC 错误码与失败分类的映射
const (
	rpcCodeUnauthorized = -32001
	rpcCodeReverted     = -32002
	rpcCodeNotFound     = -32004
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// txReceipt 节点对已提交写入的回执；Confirmed 为 false 时继续轮询
type txReceipt struct {
	Hash        string `json:"hash"`
	BlockHeight int64  `json:"block_height"`
	Confirmed   bool   `json:"confirmed"`
	Reverted    bool   `json:"reverted"`
	Reason      string `json:"reason,omitempty"`
}

// rpcContract 通过 JSON-RPC 2.0 访问远端账本节点。
// 每个请求携带 HMAC-SHA256 签名头，密钥来自机密存储，从不落盘
type rpcContract struct {
	http            *resty.Client
	contractAddress string
	signerAddress   string
	signingKey      []byte
	confirmTimeout  time.Duration
	pollInterval    time.Duration
	reqID           atomic.Int64
}

// RPCOptions 远端账本节点访问参数
type RPCOptions struct {
	Endpoint        string
	ContractAddress string
	SignerAddress   string
	SigningKey      []byte
	RequestTimeout  time.Duration
	ConfirmTimeout  time.Duration
}

// NewRPCContract 构造远端账本合约客户端
func NewRPCContract(opts RPCOptions) Contract {
	httpc := resty.New().
		SetBaseURL(opts.Endpoint).
		SetTimeout(opts.RequestTimeout).
		SetHeader("Content-Type", "application/json")
	return &rpcContract{
		http:            httpc,
		contractAddress: opts.ContractAddress,
		signerAddress:   opts.SignerAddress,
		signingKey:      opts.SigningKey,
		confirmTimeout:  opts.ConfirmTimeout,
		pollInterval:    500 * time.Millisecond,
	}
}

func (r *rpcContract) sign(body []byte) string {
	mac := hmac.New(sha256.New, r.signingKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// call 发送一次 JSON-RPC 请求并解码 result 到 out
func (r *rpcContract) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      r.reqID.Add(1),
		Method:  method,
		Params:  raw,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var rpcResp rpcResponse
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("X-Ledger-Signer", r.signerAddress).
		SetHeader("X-Ledger-Signature", r.sign(body)).
		SetBody(body).
		SetResult(&rpcResp).
		Post("/")
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("%w: node returned %d", ErrUnreachable, resp.StatusCode())
	}
	if rpcResp.Error != nil {
		return mapRPCError(rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode result for %s: %w", method, err)
		}
	}
	return nil
}

func mapRPCError(e *rpcError) error {
	switch e.Code {
	case rpcCodeUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Message)
	case rpcCodeReverted:
		return fmt.Errorf("%w: %s", ErrReverted, e.Message)
	case rpcCodeNotFound:
		return fmt.Errorf("%w: %s", errNotFoundRPC, e.Message)
	default:
		return fmt.Errorf("%w: rpc error %d: %s", ErrUnreachable, e.Code, e.Message)
	}
}

// errNotFoundRPC 节点侧 not found，只在读路径内部出现，对外转成 found=false
var errNotFoundRPC = fmt.Errorf("ledger: rpc not found")

// submit 发起写入并轮询回执直至确认或超时
func (r *rpcContract) submit(ctx context.Context, method string, params any) (TxRef, error) {
	var hash string
	if err := r.call(ctx, method, params, &hash); err != nil {
		return TxRef{}, err
	}

	deadline := time.Now().Add(r.confirmTimeout)
	for {
		var rc txReceipt
		err := r.call(ctx, "ledger_getReceipt", map[string]string{"hash": hash}, &rc)
		switch {
		case err != nil && Retryable(err):
			// 轮询期的瞬时故障不终止等待
		case err != nil:
			return TxRef{}, err
		case rc.Reverted:
			return TxRef{}, fmt.Errorf("%w: %s", ErrReverted, rc.Reason)
		case rc.Confirmed:
			return TxRef{Hash: rc.Hash, BlockHeight: rc.BlockHeight, ConfirmedAt: time.Now().UTC()}, nil
		}

		if time.Now().After(deadline) {
			return TxRef{}, fmt.Errorf("%w: tx %s", ErrTimeout, hash)
		}
		select {
		case <-ctx.Done():
			return TxRef{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(r.pollInterval):
		}
	}
}

type writeParams map[string]any

func (r *rpcContract) base() writeParams {
	return writeParams{"contract": r.contractAddress}
}

func (r *rpcContract) CreateProject(ctx context.Context, id, nameCommitment string, budget int64) (TxRef, error) {
	p := r.base()
	p["id"], p["name_commitment"], p["budget"] = id, nameCommitment, budget
	return r.submit(ctx, "ledger_createProject", p)
}

func (r *rpcContract) UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (TxRef, error) {
	p := r.base()
	p["id"], p["budget"] = id, newBudget
	return r.submit(ctx, "ledger_updateProjectBudget", p)
}

func (r *rpcContract) AddExpenditure(ctx context.Context, id, projectID string, amount int64, categoryCommitment, descriptionCommitment string, occurredAt int64, proofCommitment string) (TxRef, error) {
	p := r.base()
	p["id"], p["project_id"], p["amount"] = id, projectID, amount
	p["category_commitment"], p["description_commitment"] = categoryCommitment, descriptionCommitment
	p["occurred_at"], p["proof_commitment"] = occurredAt, proofCommitment
	return r.submit(ctx, "ledger_addExpenditure", p)
}

func (r *rpcContract) VerifyExpenditure(ctx context.Context, id string) (TxRef, error) {
	p := r.base()
	p["id"] = id
	return r.submit(ctx, "ledger_verifyExpenditure", p)
}

func (r *rpcContract) SubmitComplaint(ctx context.Context, id, projectID, titleCommitment, descriptionCommitment, proofCommitment string) (TxRef, error) {
	p := r.base()
	p["id"], p["project_id"] = id, projectID
	p["title_commitment"], p["description_commitment"], p["proof_commitment"] = titleCommitment, descriptionCommitment, proofCommitment
	return r.submit(ctx, "ledger_submitComplaint", p)
}

func (r *rpcContract) ResolveComplaint(ctx context.Context, id, responseCommitment string) (TxRef, error) {
	p := r.base()
	p["id"], p["response_commitment"] = id, responseCommitment
	return r.submit(ctx, "ledger_resolveComplaint", p)
}

func (r *rpcContract) AddOfficial(ctx context.Context, address string, admin bool) (TxRef, error) {
	p := r.base()
	p["address"], p["admin"] = address, admin
	return r.submit(ctx, "ledger_addOfficial", p)
}

func (r *rpcContract) RemoveOfficial(ctx context.Context, address string) (TxRef, error) {
	p := r.base()
	p["address"] = address
	return r.submit(ctx, "ledger_removeOfficial", p)
}

func (r *rpcContract) GetProject(ctx context.Context, id string) (*ProjectSnapshot, bool, error) {
	var snap ProjectSnapshot
	p := r.base()
	p["id"] = id
	if err := r.call(ctx, "ledger_getProject", p, &snap); err != nil {
		if isRPCNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snap, true, nil
}

func (r *rpcContract) GetExpenditure(ctx context.Context, id string) (*ExpenditureSnapshot, bool, error) {
	var snap ExpenditureSnapshot
	p := r.base()
	p["id"] = id
	if err := r.call(ctx, "ledger_getExpenditure", p, &snap); err != nil {
		if isRPCNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snap, true, nil
}

func (r *rpcContract) GetComplaint(ctx context.Context, id string) (*ComplaintSnapshot, bool, error) {
	var snap ComplaintSnapshot
	p := r.base()
	p["id"] = id
	if err := r.call(ctx, "ledger_getComplaint", p, &snap); err != nil {
		if isRPCNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &snap, true, nil
}

func isRPCNotFound(err error) bool {
	return errors.Is(err, errNotFoundRPC)
}

func (r *rpcContract) BlockHeight(ctx context.Context) (int64, error) {
	var h int64
	if err := r.call(ctx, "ledger_blockHeight", map[string]any{}, &h); err != nil {
		return 0, err
	}
	return h, nil
}

func (r *rpcContract) Balance(ctx context.Context, address string) (int64, error) {
	var b int64
	if err := r.call(ctx, "ledger_balance", map[string]string{"address": address}, &b); err != nil {
		return 0, err
	}
	return b, nil
}

func (r *rpcContract) EstimateFee(ctx context.Context, op string) (int64, error) {
	var fee int64
	p := r.base()
	p["op"] = op
	if err := r.call(ctx, "ledger_estimateFee", p, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}
