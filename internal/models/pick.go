package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MarketType 定義分析盤口的封閉枚舉
type MarketType string

const (
	MarketMoneyline MarketType = "moneyline" // 獨贏盤
	MarketPuckline  MarketType = "puckline"  // 讓分盤
	MarketTotal     MarketType = "total"     // 大小分盤
	MarketProp      MarketType = "prop"      // 特殊投注
)

// IsValid 檢查盤口類型是否在枚舉範圍內
func (m MarketType) IsValid() bool {
	switch m {
	case MarketMoneyline, MarketPuckline, MarketTotal, MarketProp:
		return true
	}
	return false
}

// MinReasoningLength 是分析理由的最低字元數門檻，
// 用於防止模型回傳被截斷或敷衍的內容。
const MinReasoningLength = 50

// PickAnalysis 對應 pick_analyses 資料表。
// 每個 (game_id, market_type) 組合最多只有一筆當前記錄，
// 由資料庫的唯一索引強制保證。
// odds_at_generation 和 created_at 使用 sql.Null* 類型，
// 因為歷史資料可能缺漏這些欄位，讀取端必須能辨識而不是崩潰。
type PickAnalysis struct {
	GameID             string          `json:"game_id"`
	MarketType         MarketType      `json:"market_type"`
	PickSide           string          `json:"pick_side"`
	ConfidenceScore    int             `json:"confidence_score"`
	ReasoningText      string          `json:"reasoning_text"`
	ReasoningEmbedding EmbeddingVector `json:"-"` // 僅供內部相似度搜尋使用，不對外回傳
	OddsAtGeneration   sql.NullInt64   `json:"-"`
	CreatedAt          sql.NullTime    `json:"-"`
}

// FieldViolation 描述單一欄位的驗證失敗原因
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v FieldViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// PickRequest 是 POST /api/picks 的請求內容，僅在請求期間存在，不落地。
// CurrentOdds 使用指標以區分「未提供」與「值為 0」。
type PickRequest struct {
	GameID      string                     `json:"game_id"`
	MarketType  MarketType                 `json:"market_type"`
	CurrentOdds *int                       `json:"current_odds"`
	GameContext map[string]json.RawMessage `json:"game_context"`
}

// Normalize 填入預設值：未指定盤口時視為獨贏盤
func (r *PickRequest) Normalize() {
	if strings.TrimSpace(string(r.MarketType)) == "" {
		r.MarketType = MarketMoneyline
	}
}

// Validate 在進入管線前做一次性的形狀驗證，
// 回傳所有違規項目，供 400 回應附上機器可讀的細節。
func (r *PickRequest) Validate() []FieldViolation {
	var violations []FieldViolation
	if strings.TrimSpace(r.GameID) == "" {
		violations = append(violations, FieldViolation{Field: "game_id", Reason: "必填，且不得為空字串"})
	}
	if !r.MarketType.IsValid() {
		violations = append(violations, FieldViolation{Field: "market_type", Reason: fmt.Sprintf("'%s' 不是合法的盤口類型 (moneyline|puckline|total|prop)", r.MarketType)})
	}
	if r.CurrentOdds == nil {
		violations = append(violations, FieldViolation{Field: "current_odds", Reason: "必填，須為整數賠率"})
	}
	if len(r.GameContext) == 0 {
		violations = append(violations, FieldViolation{Field: "game_context", Reason: "必填，且至少需包含一個鍵"})
	}
	return violations
}

// ReasoningLength 回傳理由文字的字元數 (以 rune 計)
func ReasoningLength(s string) int {
	return utf8.RuneCountInString(s)
}
