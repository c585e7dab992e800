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

// Package budget 维护项目已用预算与支出审批状态之间的守恒：
// 项目 spent 恒等于其全部已批准支出金额之和。
//
// 只有"已批准"的支出计入 spent；增量是审批状态迁移的纯函数，
// 由存储层原子应用，杜绝读-改-写竞态。
package budget

// ApprovalState 支出审批状态
type ApprovalState string

const (
	StateNotApproved ApprovalState = "notApproved"
	StateApproved    ApprovalState = "Approved"
)

// Transition 一次支出变更前后的审批视图
type Transition struct {
	PrevState  ApprovalState
	PrevAmount int64
	CurState   ApprovalState
	CurAmount  int64
}

// Delta 计算一次状态迁移对项目 spent 的增量：
//
//	未批准 -> 已批准：+当前金额
//	已批准 -> 未批准：-先前金额
//	已批准 -> 已批准（金额变化）：当前金额 - 先前金额
//	其余迁移：0
func Delta(t Transition) int64 {
	approvedBefore := t.PrevState == StateApproved
	approvedAfter := t.CurState == StateApproved
	switch {
	case !approvedBefore && approvedAfter:
		return t.CurAmount
	case approvedBefore && !approvedAfter:
		return -t.PrevAmount
	case approvedBefore && approvedAfter:
		return t.CurAmount - t.PrevAmount
	default:
		return 0
	}
}

// OverBudget 判断应用增量后项目是否超出预算。
// 超支不阻断记账，只作为观测信号上报
func OverBudget(spent, budget int64) bool {
	return spent > budget
}
