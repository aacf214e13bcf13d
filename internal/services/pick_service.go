package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"PuckPicks-api/internal/apperr"
	"PuckPicks-api/internal/cache"
	"PuckPicks-api/internal/config"
	"PuckPicks-api/internal/metrics"
	"PuckPicks-api/internal/models"
)

// PickOutcome 描述請求最終如何取得記錄，三種成功結果對應不同的回應碼
type PickOutcome string

const (
	OutcomeHit      PickOutcome = "hit"       // 快取命中，記錄原樣回傳
	OutcomeCreated  PickOutcome = "created"   // 本次請求新建了記錄
	OutcomeUpdated  PickOutcome = "updated"   // 本次請求汰換了過期記錄
	OutcomeRaceLost PickOutcome = "race_lost" // 並行請求先提交，回傳勝方記錄
)

// PickResult 是管線的完整輸出
type PickResult struct {
	Analysis *models.PickAnalysis
	Verdict  cache.Verdict
	Outcome  PickOutcome
}

// PickService 串接快取讀取、生成與提交三個階段。
// 每個請求獨立處理，跨請求不共享任何程序內狀態；
// 讀取與寫入之間允許並行的重複生成，代價由提交階段的唯一索引解決，
// 而不是用跨越昂貴外部呼叫的鎖把熱門鍵的流量序列化。
type PickService struct {
	cfg       *config.Config
	db        PickStore
	generator *Generator
	policy    cache.StalenessPolicy
}

// NewPickService 建立 PickService 實例
func NewPickService(cfg *config.Config, db PickStore, generator *Generator) (*PickService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("PickService：設定不得為空")
	}
	if db == nil {
		return nil, fmt.Errorf("PickService：PickStore 不得為空")
	}
	if generator == nil {
		return nil, fmt.Errorf("PickService：Generator 不得為空")
	}
	log.Println("資訊：PickService 初始化完成。")
	return &PickService{
		cfg:       cfg,
		db:        db,
		generator: generator,
		policy: cache.StalenessPolicy{
			MaxAge:       time.Duration(cfg.PickCache.MaxAgeHours) * time.Hour,
			MaxOddsDrift: cfg.PickCache.MaxOddsDrift,
		},
	}, nil
}

// GetOrGeneratePick 是管線入口：判定快取 → (未命中/過期時) 生成 → 提交。
// 生成失敗時既有記錄保持原狀，直到新的寫入完整成功才會被汰換。
func (s *PickService) GetOrGeneratePick(ctx context.Context, req *models.PickRequest) (*PickResult, error) {
	existing, err := s.db.GetPickAnalysis(ctx, req.GameID, req.MarketType)
	if err != nil {
		// 讀取失敗不可默默當成未命中，否則會引發多餘又昂貴的重新生成風暴
		log.Printf("錯誤：[PickService] 讀取快取記錄失敗 (GameID: %s, 盤口: %s): %v\n", req.GameID, req.MarketType, err)
		return nil, apperr.NewPersistence("讀取分析記錄失敗", err)
	}

	verdict := s.policy.Evaluate(existing, *req.CurrentOdds, time.Now())
	metrics.RecordVerdict(string(verdict))
	log.Printf("資訊：[PickService] 快取判定 (GameID: %s, 盤口: %s): %s\n", req.GameID, req.MarketType, verdict)

	if !verdict.RequiresGeneration() {
		metrics.RecordOutcome(string(OutcomeHit))
		return &PickResult{Analysis: existing, Verdict: verdict, Outcome: OutcomeHit}, nil
	}

	generated, err := s.generator.Generate(ctx, req)
	if err != nil {
		metrics.RecordGenerationFailure(apperr.From(err).Code)
		return nil, err
	}

	now := time.Now()
	record := &models.PickAnalysis{
		GameID:             req.GameID,
		MarketType:         req.MarketType,
		PickSide:           generated.PickSide,
		ConfidenceScore:    generated.ConfidenceScore,
		ReasoningText:      generated.ReasoningText,
		ReasoningEmbedding: generated.Embedding,
		OddsAtGeneration:   sql.NullInt64{Int64: int64(*req.CurrentOdds), Valid: true},
		CreatedAt:          sql.NullTime{Time: now, Valid: true},
	}

	result, err := s.commit(ctx, record, existing, verdict)
	if err != nil {
		return nil, err
	}
	metrics.RecordOutcome(string(result.Outcome))
	return result, nil
}

// commit 將驗證過的生成結果落地。
// 預設策略是先提交者勝：未命中時裸插入，唯一索引衝突代表並行請求已先落地，
// 此時重讀並回傳勝方記錄；汰換過期記錄時以先前觀察到的 created_at 做樂觀更新，
// 更新不到任何列同樣代表輸掉競賽。輸家自己算出的結果絕不能以「已持久化」
// 的姿態回到客戶端手上。
func (s *PickService) commit(ctx context.Context, record *models.PickAnalysis, existing *models.PickAnalysis, verdict cache.Verdict) (*PickResult, error) {
	if s.cfg.PickCache.CommitStrategy == config.CommitStrategyLastWriteWins {
		if err := s.db.UpsertPickAnalysis(ctx, record); err != nil {
			return nil, apperr.NewPersistence("覆寫分析記錄失敗", err)
		}
		outcome := OutcomeCreated
		if existing != nil {
			outcome = OutcomeUpdated
		}
		return &PickResult{Analysis: record, Verdict: verdict, Outcome: outcome}, nil
	}

	if existing == nil {
		err := s.db.InsertPickAnalysis(ctx, record)
		if err == nil {
			return &PickResult{Analysis: record, Verdict: verdict, Outcome: OutcomeCreated}, nil
		}
		if !errors.Is(err, ErrDuplicatePick) {
			return nil, apperr.NewPersistence("插入分析記錄失敗", err)
		}
		log.Printf("資訊：[PickService] 插入時發現並行請求已先提交 (GameID: %s, 盤口: %s)，重讀勝方記錄。\n", record.GameID, record.MarketType)
		return s.readWinner(ctx, record.GameID, record.MarketType, verdict)
	}

	replaced, err := s.db.ReplacePickAnalysis(ctx, record, existing.CreatedAt)
	if err != nil {
		return nil, apperr.NewPersistence("汰換分析記錄失敗", err)
	}
	if !replaced {
		log.Printf("資訊：[PickService] 汰換時發現並行請求已先提交 (GameID: %s, 盤口: %s)，重讀勝方記錄。\n", record.GameID, record.MarketType)
		return s.readWinner(ctx, record.GameID, record.MarketType, verdict)
	}
	return &PickResult{Analysis: record, Verdict: verdict, Outcome: OutcomeUpdated}, nil
}

// readWinner 在輸掉提交競賽後重讀當前的權威記錄
func (s *PickService) readWinner(ctx context.Context, gameID string, market models.MarketType, verdict cache.Verdict) (*PickResult, error) {
	winner, err := s.db.GetPickAnalysis(ctx, gameID, market)
	if err != nil {
		return nil, apperr.NewPersistence("重讀勝方記錄失敗", err)
	}
	if winner == nil {
		// 唯一索引剛拒絕了插入，記錄卻不見了；此核心從不刪除記錄，只能視為持久層異常
		return nil, apperr.NewPersistence("重讀勝方記錄時查無資料", fmt.Errorf("gameID=%s market=%s", gameID, market))
	}
	return &PickResult{Analysis: winner, Verdict: verdict, Outcome: OutcomeRaceLost}, nil
}
