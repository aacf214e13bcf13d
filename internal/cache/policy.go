package cache

import (
	"time"

	"PuckPicks-api/internal/models"
)

// Verdict 是快取判定結果
type Verdict string

const (
	VerdictMiss                Verdict = "MISS"                  // 該鍵尚無記錄
	VerdictHit                 Verdict = "HIT"                   // 記錄仍然有效，直接回傳
	VerdictStaleTime           Verdict = "STALE_TIME"            // 超過時效上限
	VerdictStaleOdds           Verdict = "STALE_ODDS"            // 賠率偏移超過門檻
	VerdictStaleDataIncomplete Verdict = "STALE_DATA_INCOMPLETE" // 歷史資料缺漏生成時賠率或時間戳
)

// RequiresGeneration 回報此判定是否需要 (重新) 生成。
// 四種非 HIT 判定在下游的處理完全相同，區分僅為了稽核與觀測。
func (v Verdict) RequiresGeneration() bool {
	return v != VerdictHit
}

// StalenessPolicy 是純邏輯元件：根據請求當下的賠率與時效上限，
// 判定既有快取記錄是否仍然有效。
type StalenessPolicy struct {
	MaxAge       time.Duration // 記錄生成後的有效時間上限
	MaxOddsDrift int           // 允許的賠率絕對偏移上限 (美式賠率點數)
}

// Evaluate 依優先序判定記錄狀態：
// 資料缺漏 > 時效 > 賠率偏移 > 有效。
// 缺漏的歷史資料不可信任，但也不得讓管線崩潰。
func (p StalenessPolicy) Evaluate(record *models.PickAnalysis, currentOdds int, now time.Time) Verdict {
	if record == nil {
		return VerdictMiss
	}
	if !record.OddsAtGeneration.Valid || !record.CreatedAt.Valid {
		return VerdictStaleDataIncomplete
	}
	if now.Sub(record.CreatedAt.Time) > p.MaxAge {
		return VerdictStaleTime
	}
	drift := record.OddsAtGeneration.Int64 - int64(currentOdds)
	if drift < 0 {
		drift = -drift
	}
	// 賠率大幅移動會使原本的期望值計算失效，即使記錄還很新
	if drift > int64(p.MaxOddsDrift) {
		return VerdictStaleOdds
	}
	return VerdictHit
}
