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
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"civicledger/pkg/config"
	"civicledger/pkg/log"
	"civicledger/pkg/metrics"
	"civicledger/pkg/secrets"
	"civicledger/pkg/tracing"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress 校验账本地址格式
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Receipt 写入结果；Disabled 为 true 表示账本关闭、本次为空操作
type Receipt struct {
	Disabled bool  `json:"disabled"`
	TxRef    TxRef `json:"tx_ref"`
}

// Status 账本连接状态快照，供状态端点展示
type Status struct {
	Enabled         bool   `json:"enabled"`
	Initialized     bool   `json:"initialized"`
	Type            string `json:"type,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	SignerAddress   string `json:"signer_address,omitempty"`
	BlockHeight     int64  `json:"block_height,omitempty"`
	Balance         int64  `json:"balance,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Client 账本访问的唯一入口。持有单一签名身份，所有写入串行化
// 以保持提交顺序；关闭或未初始化时读写都按"禁用"降级而非 panic。
type Client struct {
	logger  *log.Logger
	cfg     config.LedgerConfig
	enabled bool

	mu          sync.RWMutex // 保护 initialized/initErr
	initialized bool
	initErr     error
	contract    Contract

	submitMu sync.Mutex // 单签名身份：写入必须串行
	limiter  *rate.Limiter
}

// NewClient 构造账本客户端。签名密钥只通过机密存储取得；
// enabled 为 false 时返回可用但全空操作的客户端
func NewClient(ctx context.Context, cfg config.LedgerConfig, sec secrets.Store, logger *log.Logger) *Client {
	c := &Client{
		logger:  logger,
		cfg:     cfg,
		enabled: cfg.Enabled,
	}
	rps := cfg.SubmitRate
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 10
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)

	if !c.enabled {
		logger.Info("ledger disabled, all ledger operations become no-ops")
		return c
	}

	contract, err := buildContract(ctx, cfg, sec)
	if err != nil {
		// fail closed：初始化失败等同未初始化，写入一律拒绝
		c.initErr = err
		logger.Error("ledger initialization failed", "error", err)
		return c
	}
	c.contract = contract
	c.initialized = true
	logger.Info("ledger initialized",
		"type", cfg.Type,
		"contract", cfg.ContractAddress,
		"signer", cfg.SignerAddress,
	)
	return c
}

// NewClientWithContract 用现成合约实现构造客户端，组合根与测试使用
func NewClientWithContract(cfg config.LedgerConfig, contract Contract, logger *log.Logger) *Client {
	c := &Client{
		logger:  logger,
		cfg:     cfg,
		enabled: cfg.Enabled,
	}
	rps := cfg.SubmitRate
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 10
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	if c.enabled && contract != nil {
		c.contract = contract
		c.initialized = true
	}
	return c
}

func buildContract(ctx context.Context, cfg config.LedgerConfig, sec secrets.Store) (Contract, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryContract(cfg.SignerAddress), nil
	case "rpc":
		key, err := sec.Get(ctx, cfg.SignerKeySecret)
		if err != nil {
			return nil, fmt.Errorf("load signer key %q: %w", cfg.SignerKeySecret, err)
		}
		return NewRPCContract(RPCOptions{
			Endpoint:        cfg.Endpoint,
			ContractAddress: cfg.ContractAddress,
			SignerAddress:   cfg.SignerAddress,
			SigningKey:      []byte(key),
			RequestTimeout:  cfg.GetRequestTimeout(),
			ConfirmTimeout:  cfg.GetConfirmTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.Type)
	}
}

// Enabled 账本是否开启
func (c *Client) Enabled() bool { return c.enabled }

// Ready 账本开启且初始化成功
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.initialized
}

// gate 返回写入前的统一检查结果
func (c *Client) gate() (bool, error) {
	if !c.enabled {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		if c.initErr != nil {
			return true, fmt.Errorf("%w: %v", ErrNotInitialized, c.initErr)
		}
		return true, ErrNotInitialized
	}
	return true, nil
}

// write 执行一次串行化写入：限速、度量、trace 都在这里收口
func (c *Client) write(ctx context.Context, op string, fn func(ctx context.Context) (TxRef, error)) (Receipt, error) {
	on, err := c.gate()
	if !on {
		return Receipt{Disabled: true}, nil
	}
	if err != nil {
		return Receipt{}, err
	}

	ctx, span := tracing.StartLedgerSpan(ctx, op, "")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("%w: rate wait: %v", ErrTimeout, err)
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	// 提交前估费；超过配置上限按 Reverted 终态处理，留给运维调整
	fee, err := c.contract.EstimateFee(ctx, op)
	if err != nil {
		metrics.LedgerTxFailed.WithLabelValues(op, Classify(err)).Inc()
		return Receipt{}, fmt.Errorf("estimate fee for %s: %w", op, err)
	}
	if feeCap := c.cfg.FeeCapUnits; feeCap > 0 && fee > feeCap {
		err := fmt.Errorf("%w: estimated fee %d exceeds cap %d", ErrReverted, fee, feeCap)
		metrics.LedgerTxFailed.WithLabelValues(op, Classify(err)).Inc()
		c.logger.Warn("ledger write refused by fee cap", "op", op, "fee", fee, "cap", feeCap)
		return Receipt{}, err
	}

	metrics.LedgerTxSubmitted.WithLabelValues(op).Inc()
	start := time.Now()
	ref, err := fn(ctx)
	if err != nil {
		metrics.LedgerTxFailed.WithLabelValues(op, Classify(err)).Inc()
		c.logger.Warn("ledger write failed", "op", op, "reason", Classify(err), "error", err)
		return Receipt{}, err
	}
	metrics.LedgerTxConfirmed.WithLabelValues(op).Inc()
	metrics.LedgerConfirmLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.logger.Info("ledger write confirmed", "op", op, "tx", ref.Hash, "height", ref.BlockHeight)
	return Receipt{TxRef: ref}, nil
}

func (c *Client) CreateProject(ctx context.Context, id, nameCommitment string, budget int64) (Receipt, error) {
	return c.write(ctx, "create_project", func(ctx context.Context) (TxRef, error) {
		return c.contract.CreateProject(ctx, id, nameCommitment, budget)
	})
}

func (c *Client) UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (Receipt, error) {
	return c.write(ctx, "update_project_budget", func(ctx context.Context) (TxRef, error) {
		return c.contract.UpdateProjectBudget(ctx, id, newBudget)
	})
}

func (c *Client) AddExpenditure(ctx context.Context, id, projectID string, amount int64, categoryCommitment, descriptionCommitment string, occurredAt int64, proofCommitment string) (Receipt, error) {
	return c.write(ctx, "add_expenditure", func(ctx context.Context) (TxRef, error) {
		return c.contract.AddExpenditure(ctx, id, projectID, amount, categoryCommitment, descriptionCommitment, occurredAt, proofCommitment)
	})
}

func (c *Client) VerifyExpenditure(ctx context.Context, id string) (Receipt, error) {
	return c.write(ctx, "verify_expenditure", func(ctx context.Context) (TxRef, error) {
		return c.contract.VerifyExpenditure(ctx, id)
	})
}

func (c *Client) SubmitComplaint(ctx context.Context, id, projectID, titleCommitment, descriptionCommitment, proofCommitment string) (Receipt, error) {
	return c.write(ctx, "submit_complaint", func(ctx context.Context) (TxRef, error) {
		return c.contract.SubmitComplaint(ctx, id, projectID, titleCommitment, descriptionCommitment, proofCommitment)
	})
}

func (c *Client) ResolveComplaint(ctx context.Context, id, responseCommitment string) (Receipt, error) {
	return c.write(ctx, "resolve_complaint", func(ctx context.Context) (TxRef, error) {
		return c.contract.ResolveComplaint(ctx, id, responseCommitment)
	})
}

func (c *Client) AddOfficial(ctx context.Context, address string, admin bool) (Receipt, error) {
	if !ValidAddress(address) {
		return Receipt{}, fmt.Errorf("%w: invalid address %q", ErrReverted, address)
	}
	return c.write(ctx, "add_official", func(ctx context.Context) (TxRef, error) {
		return c.contract.AddOfficial(ctx, address, admin)
	})
}

func (c *Client) RemoveOfficial(ctx context.Context, address string) (Receipt, error) {
	if !ValidAddress(address) {
		return Receipt{}, fmt.Errorf("%w: invalid address %q", ErrReverted, address)
	}
	return c.write(ctx, "remove_official", func(ctx context.Context) (TxRef, error) {
		return c.contract.RemoveOfficial(ctx, address)
	})
}

// read 只读路径不排队也不限速；禁用或未初始化按"无结果"降级
func (c *Client) readGate() (Contract, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, false, ErrNotInitialized
	}
	return c.contract, true, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*ProjectSnapshot, bool, error) {
	contract, on, err := c.readGate()
	if !on || err != nil {
		return nil, false, err
	}
	return contract.GetProject(ctx, id)
}

func (c *Client) GetExpenditure(ctx context.Context, id string) (*ExpenditureSnapshot, bool, error) {
	contract, on, err := c.readGate()
	if !on || err != nil {
		return nil, false, err
	}
	return contract.GetExpenditure(ctx, id)
}

func (c *Client) GetComplaint(ctx context.Context, id string) (*ComplaintSnapshot, bool, error) {
	contract, on, err := c.readGate()
	if !on || err != nil {
		return nil, false, err
	}
	return contract.GetComplaint(ctx, id)
}

// GetStatus 汇总账本连接状态；节点不可达时返回带错误描述的部分状态
func (c *Client) GetStatus(ctx context.Context) Status {
	st := Status{Enabled: c.enabled}
	if !c.enabled {
		return st
	}
	c.mu.RLock()
	initialized, initErr, contract := c.initialized, c.initErr, c.contract
	c.mu.RUnlock()

	st.Initialized = initialized
	st.Type = c.cfg.Type
	st.ContractAddress = c.cfg.ContractAddress
	st.SignerAddress = c.cfg.SignerAddress
	if !initialized {
		if initErr != nil {
			st.Error = initErr.Error()
		}
		return st
	}

	if h, err := contract.BlockHeight(ctx); err != nil {
		st.Error = err.Error()
	} else {
		st.BlockHeight = h
	}
	if b, err := contract.Balance(ctx, c.cfg.SignerAddress); err == nil {
		st.Balance = b
	}
	return st
}
