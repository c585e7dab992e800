package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		LedgerTxSubmitted, LedgerTxConfirmed, LedgerTxFailed,
		LedgerConfirmLatency, SyncState,
		VerificationTotal, OverBudgetTotal,
	)
}

// LedgerTxSubmitted 已提交账本交易数（按操作）
var LedgerTxSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "civicledger_tx_submitted_total",
		Help: "已提交账本交易总数（按操作）",
	},
	[]string{"op"}, // create_project | add_expenditure | verify_expenditure | submit_complaint | resolve_complaint | update_budget
)

// LedgerTxConfirmed 已确认账本交易数（按操作）
var LedgerTxConfirmed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "civicledger_tx_confirmed_total",
		Help: "已确认账本交易总数（按操作）",
	},
	[]string{"op"},
)

// LedgerTxFailed 失败账本交易数（按失败类别）
var LedgerTxFailed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "civicledger_tx_failed_total",
		Help: "失败账本交易总数（按失败类别）",
	},
	[]string{"op", "reason"}, // unreachable | unauthorized | reverted | timeout
)

// LedgerConfirmLatency 交易确认耗时（秒）
var LedgerConfirmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "civicledger_confirm_latency_seconds",
		Help:    "账本交易确认耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

// SyncState 各同步状态的记录数
var SyncState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "civicledger_sync_state",
		Help: "各同步状态的记录数",
	},
	[]string{"record_type", "state"}, // unsynced | in_flight | committed | failed
)

// VerificationTotal 核验次数（按结果）
var VerificationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "civicledger_verification_total",
		Help: "核验次数（按记录类型与结果）",
	},
	[]string{"record_type", "result"}, // verified | mismatch | not_committed
)

// OverBudgetTotal spent 超出 budget 的观测次数（不纠正只观测）
var OverBudgetTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "civicledger_over_budget_total",
		Help: "spent 超出 budget 的观测次数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	mfs, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
