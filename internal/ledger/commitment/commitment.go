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

// Package commitment 提供确定性承诺摘要。
//
// 同一逻辑记录通过标识符承诺映射到固定账本键（"在哪查"），
// 字段内容通过内容承诺参与核验（"验什么"）；两者概念上独立，不得混用。
package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// noProofSentinel 可选内容缺失时的哨兵输入；
// 绝不对空串取承诺，否则"未提供证明"会被核验当作篡改
const noProofSentinel = "no-proof"

// Commit 计算文本的承诺：0x + hex(SHA256(text))，确定且无副作用
func Commit(text string) string {
	h := sha256.Sum256([]byte(text))
	return "0x" + hex.EncodeToString(h[:])
}

// CommitOptional 计算可选内容的承诺；空内容一律映射到同一哨兵承诺
func CommitOptional(text string) string {
	if text == "" {
		return Sentinel()
	}
	return Commit(text)
}

// Sentinel 返回"无证明"哨兵承诺
func Sentinel() string {
	return Commit(noProofSentinel)
}

var commitmentPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// IsCommitment 判断字符串是否为合法承诺格式
func IsCommitment(s string) bool {
	return commitmentPattern.MatchString(s)
}
