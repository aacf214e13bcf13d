package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 四種非 HIT 判定在管線中的處理完全相同，
// 這裡是它們唯一被區分的地方：稽核與觀測。
var (
	cacheVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puckpicks_cache_verdicts_total",
		Help: "快取判定結果計數 (依判定類別)",
	}, []string{"verdict"})

	pickOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puckpicks_pick_outcomes_total",
		Help: "請求最終結果計數 (hit / created / updated / race_lost)",
	}, []string{"outcome"})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "puckpicks_generation_failures_total",
		Help: "生成管線失敗計數 (依錯誤代碼)",
	}, []string{"code"})

	staleRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "puckpicks_cache_stale_records",
		Help: "已超過時效上限的快取記錄數 (由稽核排程更新)",
	})
)

// RecordVerdict 記錄一次快取判定
func RecordVerdict(verdict string) {
	cacheVerdicts.WithLabelValues(verdict).Inc()
}

// RecordOutcome 記錄一次請求的最終結果
func RecordOutcome(outcome string) {
	pickOutcomes.WithLabelValues(outcome).Inc()
}

// RecordGenerationFailure 記錄一次生成管線失敗
func RecordGenerationFailure(code string) {
	generationFailures.WithLabelValues(code).Inc()
}

// SetStaleRecords 更新過期記錄數量
func SetStaleRecords(count int64) {
	staleRecords.Set(float64(count))
}
