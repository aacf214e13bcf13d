package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"PuckPicks-api/internal/config"
	"PuckPicks-api/internal/models"
	"PuckPicks-api/internal/services"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore 結構
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立資料庫連線池。
// 協作者在服務初始化時建構一次，之後以介面注入各元件，沿用同一個連線池。
func NewMySQLStore(dbCfg config.DatabaseConfig) (*MySQLStore, error) {
	if dbCfg.Driver != "mysql" {
		return nil, fmt.Errorf("不支援的資料庫驅動程式: %s", dbCfg.Driver)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", dbCfg.User, dbCfg.Password, dbCfg.Host, dbCfg.Port, dbCfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("開啟資料庫連線失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("無法連線到資料庫 (ping 失敗): %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Println("資訊：成功連線到 MySQL 資料庫。")
	return &MySQLStore{db: db}, nil
}

// Close 關閉連線池
func (s *MySQLStore) Close() error {
	if s.db != nil {
		log.Println("資訊：正在關閉 MySQL 資料庫連線...")
		return s.db.Close()
	}
	return nil
}

// Ping 供健康檢查使用
func (s *MySQLStore) Ping() error {
	return s.db.Ping()
}

// isDuplicateKeyError 檢查是否為 MySQL 唯一索引衝突 (錯誤碼 1062)
func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// GetPickAnalysis 讀取該鍵的當前記錄。
// 查無資料回傳 (nil, nil)；其他讀取失敗回傳 error，呼叫端不得將其視為未命中。
func (s *MySQLStore) GetPickAnalysis(ctx context.Context, gameID string, market models.MarketType) (*models.PickAnalysis, error) {
	query := ` SELECT game_id, market_type, pick_side, confidence_score, reasoning_text, reasoning_embedding, odds_at_generation, created_at FROM pick_analyses WHERE game_id = ? AND market_type = ?;`
	row := s.db.QueryRowContext(ctx, query, gameID, market)
	var analysis models.PickAnalysis
	err := row.Scan(
		&analysis.GameID, &analysis.MarketType, &analysis.PickSide, &analysis.ConfidenceScore,
		&analysis.ReasoningText, &analysis.ReasoningEmbedding, &analysis.OddsAtGeneration, &analysis.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查詢分析記錄失敗 (GameID: %s, 盤口: %s): %w", gameID, market, err)
	}
	return &analysis, nil
}

// InsertPickAnalysis 裸插入一筆新記錄。
// 唯一索引 (game_id, market_type) 拒絕時回傳 services.ErrDuplicatePick，
// 代表並行請求已先落地，這是訊號而不是錯誤。
func (s *MySQLStore) InsertPickAnalysis(ctx context.Context, analysis *models.PickAnalysis) error {
	if analysis == nil || analysis.GameID == "" {
		return fmt.Errorf("無效的分析記錄或 GameID 為空")
	}
	query := `
		INSERT INTO pick_analyses (
			game_id, market_type, pick_side, confidence_score,
			reasoning_text, reasoning_embedding, odds_at_generation, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, query,
		analysis.GameID, analysis.MarketType, analysis.PickSide, analysis.ConfidenceScore,
		analysis.ReasoningText, analysis.ReasoningEmbedding, analysis.OddsAtGeneration, analysis.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("插入分析記錄時唯一索引衝突 (GameID: %s, 盤口: %s): %w", analysis.GameID, analysis.MarketType, services.ErrDuplicatePick)
		}
		return fmt.Errorf("插入分析記錄失敗 (GameID: %s, 盤口: %s): %w", analysis.GameID, analysis.MarketType, err)
	}
	log.Printf("資訊：分析記錄成功插入資料庫 (GameID: %s, 盤口: %s)\n", analysis.GameID, analysis.MarketType)
	return nil
}

// ReplacePickAnalysis 樂觀更新：只有在該列的 created_at 仍等於呼叫端先前
// 觀察到的值時才覆寫。更新到零列代表並行請求已先汰換這筆記錄。
// created_at 使用 <=> 比較，讓缺漏時間戳的歷史資料也能被汰換。
func (s *MySQLStore) ReplacePickAnalysis(ctx context.Context, analysis *models.PickAnalysis, observedCreatedAt sql.NullTime) (bool, error) {
	if analysis == nil || analysis.GameID == "" {
		return false, fmt.Errorf("無效的分析記錄或 GameID 為空")
	}
	query := `
		UPDATE pick_analyses SET
			pick_side = ?, confidence_score = ?, reasoning_text = ?,
			reasoning_embedding = ?, odds_at_generation = ?, created_at = ?
		WHERE game_id = ? AND market_type = ? AND created_at <=> ?;`
	res, err := s.db.ExecContext(ctx, query,
		analysis.PickSide, analysis.ConfidenceScore, analysis.ReasoningText,
		analysis.ReasoningEmbedding, analysis.OddsAtGeneration, analysis.CreatedAt,
		analysis.GameID, analysis.MarketType, observedCreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("汰換分析記錄失敗 (GameID: %s, 盤口: %s): %w", analysis.GameID, analysis.MarketType, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("取得汰換影響列數失敗 (GameID: %s, 盤口: %s): %w", analysis.GameID, analysis.MarketType, err)
	}
	if affected == 0 {
		return false, nil
	}
	log.Printf("資訊：分析記錄成功汰換 (GameID: %s, 盤口: %s)\n", analysis.GameID, analysis.MarketType)
	return true, nil
}

// UpsertPickAnalysis 無條件覆寫 (後寫者勝策略)。
// upsert 不會自動刷新時間戳欄位，created_at 必須由寫入端明確重設，
// 不可依賴資料庫的預設值。
func (s *MySQLStore) UpsertPickAnalysis(ctx context.Context, analysis *models.PickAnalysis) error {
	if analysis == nil || analysis.GameID == "" {
		return fmt.Errorf("無效的分析記錄或 GameID 為空")
	}
	query := `
		INSERT INTO pick_analyses (
			game_id, market_type, pick_side, confidence_score,
			reasoning_text, reasoning_embedding, odds_at_generation, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			pick_side = VALUES(pick_side), confidence_score = VALUES(confidence_score),
			reasoning_text = VALUES(reasoning_text), reasoning_embedding = VALUES(reasoning_embedding),
			odds_at_generation = VALUES(odds_at_generation), created_at = VALUES(created_at);`
	createdAt := analysis.CreatedAt
	if !createdAt.Valid {
		createdAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		analysis.GameID, analysis.MarketType, analysis.PickSide, analysis.ConfidenceScore,
		analysis.ReasoningText, analysis.ReasoningEmbedding, analysis.OddsAtGeneration, createdAt,
	)
	if err != nil {
		return fmt.Errorf("覆寫分析記錄失敗 (GameID: %s, 盤口: %s): %w", analysis.GameID, analysis.MarketType, err)
	}
	log.Printf("資訊：分析記錄成功覆寫 (GameID: %s, 盤口: %s)\n", analysis.GameID, analysis.MarketType)
	return nil
}

// CountTimeStaleAnalyses 統計已超過時效上限的記錄數，缺漏時間戳的記錄也計入
func (s *MySQLStore) CountTimeStaleAnalyses(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	query := `SELECT COUNT(*) FROM pick_analyses WHERE created_at IS NULL OR created_at < ?;`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("統計過期分析記錄失敗: %w", err)
	}
	return count, nil
}
