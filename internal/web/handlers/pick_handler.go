package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"PuckPicks-api/internal/apperr"
	"PuckPicks-api/internal/models"
	"PuckPicks-api/internal/services"

	"github.com/google/uuid"
)

// PickProvider 定義了處理器需要的管線入口
type PickProvider interface {
	GetOrGeneratePick(ctx context.Context, req *models.PickRequest) (*services.PickResult, error)
}

// PickHandler 負責 POST /api/picks：
// 驗證請求、呼叫管線、把三種成功結果與錯誤家族映射到回應碼。
type PickHandler struct {
	picks PickProvider
}

// NewPickHandler 建立一個 PickHandler 實例
func NewPickHandler(picks PickProvider) *PickHandler {
	if picks == nil {
		log.Panicln("PickHandler：PickProvider 不得為空")
	}
	return &PickHandler{picks: picks}
}

// pickResponse 是成功回應的內容：記錄欄位 (不含內部向量) 加上稽核資訊
type pickResponse struct {
	GameID           string            `json:"game_id"`
	MarketType       models.MarketType `json:"market_type"`
	PickSide         string            `json:"pick_side"`
	ConfidenceScore  int               `json:"confidence_score"`
	ReasoningText    string            `json:"reasoning_text"`
	OddsAtGeneration *int64            `json:"odds_at_generation"`
	CreatedAt        *time.Time        `json:"created_at"`
	CacheVerdict     string            `json:"cache_verdict"`
	Outcome          string            `json:"outcome"`
}

// errorResponse 是錯誤回應的內容；Details 只在驗證錯誤時出現
type errorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// writeCommonHeaders 設定所有回應都要帶的 CORS 與內容嗅探防護標頭
func writeCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// writeJSON 輸出 JSON 回應
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("錯誤：[PickHandler] 寫入回應失敗: %v\n", err)
	}
}

// ServeHTTP 實現 http.Handler 介面
func (h *PickHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log.Printf("資訊：[PickHandler] 收到請求: %s %s 來自 %s (請求ID: %s)\n", r.Method, r.URL.Path, r.RemoteAddr, requestID)
	writeCommonHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		// CORS 預檢，不回傳任何內容
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		log.Printf("警告：[PickHandler] 收到不支援的方法 (%s)，已拒絕。(請求ID: %s)\n", r.Method, requestID)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "僅支援 POST 方法", Code: "method_not_allowed"})
		return
	}

	var req models.PickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("警告：[PickHandler] 請求內容不是有效的 JSON: %v (請求ID: %s)\n", err, requestID)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "請求內容不是有效的 JSON", Code: apperr.CodeValidation})
		return
	}

	// 在任何外部呼叫之前完成一次性驗證，無效輸入不得消耗生成成本
	req.Normalize()
	if violations := req.Validate(); len(violations) > 0 {
		log.Printf("警告：[PickHandler] 請求驗證失敗: %v (請求ID: %s)\n", violations, requestID)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "請求欄位驗證失敗", Code: apperr.CodeValidation, Details: violations})
		return
	}

	result, err := h.picks.GetOrGeneratePick(r.Context(), &req)
	if err != nil {
		appErr := apperr.From(err)
		log.Printf("錯誤：[PickHandler] 管線處理失敗 (GameID: %s, 請求ID: %s): %v\n", req.GameID, requestID, err)
		writeJSON(w, appErr.Status, errorResponse{Error: appErr.Message, Code: appErr.Code, Details: appErr.Details})
		return
	}

	status := http.StatusOK
	if result.Outcome == services.OutcomeCreated || result.Outcome == services.OutcomeUpdated {
		status = http.StatusCreated
	}
	log.Printf("資訊：[PickHandler] 請求完成 (GameID: %s, 盤口: %s, 判定: %s, 結果: %s, 請求ID: %s)\n",
		req.GameID, req.MarketType, result.Verdict, result.Outcome, requestID)
	writeJSON(w, status, buildPickResponse(result))
}

// buildPickResponse 將管線輸出轉為對外的回應形狀
func buildPickResponse(result *services.PickResult) pickResponse {
	resp := pickResponse{
		GameID:          result.Analysis.GameID,
		MarketType:      result.Analysis.MarketType,
		PickSide:        result.Analysis.PickSide,
		ConfidenceScore: result.Analysis.ConfidenceScore,
		ReasoningText:   result.Analysis.ReasoningText,
		CacheVerdict:    string(result.Verdict),
		Outcome:         string(result.Outcome),
	}
	if result.Analysis.OddsAtGeneration.Valid {
		odds := result.Analysis.OddsAtGeneration.Int64
		resp.OddsAtGeneration = &odds
	}
	if result.Analysis.CreatedAt.Valid {
		createdAt := result.Analysis.CreatedAt.Time
		resp.CreatedAt = &createdAt
	}
	return resp
}
