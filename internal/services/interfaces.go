package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"PuckPicks-api/internal/models"
)

// ErrDuplicatePick 是持久層在唯一索引拒絕插入時回傳的信號。
// 這不是錯誤狀況：代表另一個並行請求已先提交，呼叫端應重讀並回傳勝方記錄。
var ErrDuplicatePick = errors.New("該鍵已存在分析記錄")

// PickStore 介面定義了管線需要的持久層操作。
// 唯一索引 (game_id, market_type) 是整個系統唯一的同步原語。
type PickStore interface {
	// GetPickAnalysis 查無資料時回傳 (nil, nil)；讀取失敗才回傳 error
	GetPickAnalysis(ctx context.Context, gameID string, market models.MarketType) (*models.PickAnalysis, error)
	// InsertPickAnalysis 裸插入；唯一索引衝突時回傳 ErrDuplicatePick
	InsertPickAnalysis(ctx context.Context, analysis *models.PickAnalysis) error
	// ReplacePickAnalysis 樂觀更新：僅在 created_at 仍等於先前觀察到的值時覆寫，
	// 回傳是否實際更新了一列
	ReplacePickAnalysis(ctx context.Context, analysis *models.PickAnalysis, observedCreatedAt sql.NullTime) (bool, error)
	// UpsertPickAnalysis 無條件覆寫 (後寫者勝)，寫入端自行重設 created_at
	UpsertPickAnalysis(ctx context.Context, analysis *models.PickAnalysis) error
	// CountTimeStaleAnalyses 統計已超過時效的記錄數，供稽核排程使用
	CountTimeStaleAnalyses(ctx context.Context, maxAge time.Duration) (int64, error)
}

// PickGenerator 介面定義了生成協作者需要的方法 (單一部署假設單一供應商)
type PickGenerator interface {
	GeneratePick(ctx context.Context, systemInstruction string, userPayload string) (string, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
