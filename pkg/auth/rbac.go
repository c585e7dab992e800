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

package auth

// Permission 权限
type Permission string

const (
	PermissionProjectView      Permission = "project:view"
	PermissionProjectCreate    Permission = "project:create"
	PermissionBudgetRevise     Permission = "budget:revise"
	PermissionExpenditureWrite Permission = "expenditure:write"
	PermissionExpenditureAudit Permission = "expenditure:audit" // 审批/驳回/链上核验
	PermissionComplaintSubmit  Permission = "complaint:submit"
	PermissionComplaintResolve Permission = "complaint:resolve"
	PermissionLedgerVerify     Permission = "ledger:verify"
	PermissionOfficialManage   Permission = "official:manage" // 授权/回收官方签名身份
)

// Role 角色
type Role string

const (
	RoleAdmin    Role = "admin"    // 全部权限
	RoleOfficial Role = "official" // 审批、核验、处理投诉
	RoleCitizen  Role = "citizen"  // 查看 + 提交投诉
)

// RolePermissions 角色与权限映射
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionProjectView,
		PermissionProjectCreate,
		PermissionBudgetRevise,
		PermissionExpenditureWrite,
		PermissionExpenditureAudit,
		PermissionComplaintSubmit,
		PermissionComplaintResolve,
		PermissionLedgerVerify,
		PermissionOfficialManage,
	},
	RoleOfficial: {
		PermissionProjectView,
		PermissionProjectCreate,
		PermissionBudgetRevise,
		PermissionExpenditureWrite,
		PermissionExpenditureAudit,
		PermissionComplaintResolve,
		PermissionLedgerVerify,
	},
	RoleCitizen: {
		PermissionProjectView,
		PermissionComplaintSubmit,
	},
}

// HasPermission 判断角色是否具备权限
func HasPermission(role Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
