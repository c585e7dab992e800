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

import "context"

// Contract 账本合约的行为契约。实现：memoryLedger（进程内，开发/测试）、
// rpcContract（远端 JSON-RPC 节点）。
//
// 语义约束：
//   - 账本只追加：同一支出 ID 可多次出现表示更正，查询返回最新条目；
//     任何"更新"都是新条目，绝不改写既有条目
//   - CreateProject 对同一 ID 只允许一次，重复创建返回 ErrReverted
//   - ResolveComplaint 单向：已解决的投诉再次 resolve 返回 ErrReverted
//   - 除只读操作外，所有写入要求授权签名者（owner 或 official）
//   - 读操作把"记录不存在"当正常结果（found=false），不是错误
type Contract interface {
	CreateProject(ctx context.Context, id, nameCommitment string, budget int64) (TxRef, error)
	UpdateProjectBudget(ctx context.Context, id string, newBudget int64) (TxRef, error)
	AddExpenditure(ctx context.Context, id, projectID string, amount int64, categoryCommitment, descriptionCommitment string, occurredAt int64, proofCommitment string) (TxRef, error)
	VerifyExpenditure(ctx context.Context, id string) (TxRef, error)
	SubmitComplaint(ctx context.Context, id, projectID, titleCommitment, descriptionCommitment, proofCommitment string) (TxRef, error)
	ResolveComplaint(ctx context.Context, id, responseCommitment string) (TxRef, error)

	AddOfficial(ctx context.Context, address string, admin bool) (TxRef, error)
	RemoveOfficial(ctx context.Context, address string) (TxRef, error)

	GetProject(ctx context.Context, id string) (*ProjectSnapshot, bool, error)
	GetExpenditure(ctx context.Context, id string) (*ExpenditureSnapshot, bool, error)
	GetComplaint(ctx context.Context, id string) (*ComplaintSnapshot, bool, error)

	BlockHeight(ctx context.Context) (int64, error)
	Balance(ctx context.Context, address string) (int64, error)
	EstimateFee(ctx context.Context, op string) (int64, error)
}
