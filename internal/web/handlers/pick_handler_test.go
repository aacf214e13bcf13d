package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PuckPicks-api/internal/apperr"
	"PuckPicks-api/internal/cache"
	"PuckPicks-api/internal/models"
	"PuckPicks-api/internal/services"
)

// fakePickProvider 是測試用的管線替身
type fakePickProvider struct {
	result *services.PickResult
	err    error
	calls  int
}

func (f *fakePickProvider) GetOrGeneratePick(ctx context.Context, req *models.PickRequest) (*services.PickResult, error) {
	f.calls++
	return f.result, f.err
}

func sampleResult(outcome services.PickOutcome, verdict cache.Verdict) *services.PickResult {
	return &services.PickResult{
		Analysis: &models.PickAnalysis{
			GameID:           "2024020123",
			MarketType:       models.MarketMoneyline,
			PickSide:         "主隊獨贏",
			ConfidenceScore:  72,
			ReasoningText:    "主隊近況優於客隊，且主場勝率顯著偏高。",
			OddsAtGeneration: sql.NullInt64{Int64: -110, Valid: true},
			CreatedAt:        sql.NullTime{Time: time.Now(), Valid: true},
		},
		Verdict: verdict,
		Outcome: outcome,
	}
}

func validBody() string {
	return `{"game_id": "2024020123", "current_odds": -110, "game_context": {"home_team": "TOR"}}`
}

func doRequest(t *testing.T, provider PickProvider, method string, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewPickHandler(provider)
	req := httptest.NewRequest(method, "/api/picks", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func assertCommonHeaders(t *testing.T, recorder *httptest.ResponseRecorder) {
	t.Helper()
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("所有回應都應帶 CORS 標頭，但得到 '%s'", got)
	}
	if got := recorder.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("所有回應都應帶內容嗅探防護標頭，但得到 '%s'", got)
	}
}

func TestOptionsPreflightReturnsNoBody(t *testing.T) {
	provider := &fakePickProvider{}
	recorder := doRequest(t, provider, http.MethodOptions, "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS 應回 204，但得到 %d", recorder.Code)
	}
	if recorder.Body.Len() != 0 {
		t.Fatalf("OPTIONS 不應回傳任何內容")
	}
	if provider.calls != 0 {
		t.Fatalf("OPTIONS 不應觸發管線")
	}
	assertCommonHeaders(t, recorder)
}

func TestNonPostMethodRejected(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		provider := &fakePickProvider{}
		recorder := doRequest(t, provider, method, "")
		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s 應回 405，但得到 %d", method, recorder.Code)
		}
		if provider.calls != 0 {
			t.Fatalf("%s 不應觸發管線", method)
		}
		assertCommonHeaders(t, recorder)
	}
}

func TestMalformedJSONReturns400(t *testing.T) {
	provider := &fakePickProvider{}
	recorder := doRequest(t, provider, http.MethodPost, `{"game_id": `)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("格式錯誤的 JSON 應回 400，但得到 %d", recorder.Code)
	}
	if provider.calls != 0 {
		t.Fatalf("格式錯誤的 JSON 不應觸發管線")
	}
}

func TestValidationFailureReturns400WithDetails(t *testing.T) {
	provider := &fakePickProvider{}
	// 缺少 game_context：必須在任何外部呼叫之前被拒絕
	recorder := doRequest(t, provider, http.MethodPost, `{"game_id": "2024020123", "current_odds": -110}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("驗證失敗應回 400，但得到 %d", recorder.Code)
	}
	if provider.calls != 0 {
		t.Fatalf("驗證失敗不應觸發管線 (不得消耗生成成本)")
	}
	var body struct {
		Code    string                  `json:"code"`
		Details []models.FieldViolation `json:"details"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("無法解析錯誤回應: %v", err)
	}
	if body.Code != apperr.CodeValidation {
		t.Fatalf("錯誤代碼應為 %s，但得到 %s", apperr.CodeValidation, body.Code)
	}
	if len(body.Details) == 0 || body.Details[0].Field != "game_context" {
		t.Fatalf("回應應包含 game_context 的欄位層級細節，但得到 %v", body.Details)
	}
}

func TestEmptyGameContextReturns400(t *testing.T) {
	provider := &fakePickProvider{}
	recorder := doRequest(t, provider, http.MethodPost, `{"game_id": "2024020123", "current_odds": -110, "game_context": {}}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("空的 game_context 應回 400，但得到 %d", recorder.Code)
	}
	if provider.calls != 0 {
		t.Fatalf("空的 game_context 不應觸發管線")
	}
}

func TestCacheHitReturns200(t *testing.T) {
	provider := &fakePickProvider{result: sampleResult(services.OutcomeHit, cache.VerdictHit)}
	recorder := doRequest(t, provider, http.MethodPost, validBody())
	if recorder.Code != http.StatusOK {
		t.Fatalf("快取命中應回 200，但得到 %d", recorder.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("無法解析回應: %v", err)
	}
	if body["outcome"] != "hit" {
		t.Fatalf("outcome 應為 hit，但得到 %v", body["outcome"])
	}
	if _, exists := body["reasoning_embedding"]; exists {
		t.Fatalf("內部向量不得出現在回應中")
	}
	assertCommonHeaders(t, recorder)
}

func TestRaceLostReturns200(t *testing.T) {
	provider := &fakePickProvider{result: sampleResult(services.OutcomeRaceLost, cache.VerdictMiss)}
	recorder := doRequest(t, provider, http.MethodPost, validBody())
	if recorder.Code != http.StatusOK {
		t.Fatalf("輸掉競賽應回 200 (成功回應，非錯誤)，但得到 %d", recorder.Code)
	}
}

func TestCreatedAndUpdatedReturn201(t *testing.T) {
	for _, outcome := range []services.PickOutcome{services.OutcomeCreated, services.OutcomeUpdated} {
		provider := &fakePickProvider{result: sampleResult(outcome, cache.VerdictMiss)}
		recorder := doRequest(t, provider, http.MethodPost, validBody())
		if recorder.Code != http.StatusCreated {
			t.Fatalf("%s 應回 201，但得到 %d", outcome, recorder.Code)
		}
	}
}

func TestUpstreamErrorReturns502(t *testing.T) {
	provider := &fakePickProvider{err: apperr.NewUpstream(apperr.CodeSchemaViolation, "上游生成服務回傳了違反結構約定的內容", nil)}
	recorder := doRequest(t, provider, http.MethodPost, validBody())
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("上游錯誤應回 502，但得到 %d", recorder.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("無法解析錯誤回應: %v", err)
	}
	if body["code"] != apperr.CodeSchemaViolation {
		t.Fatalf("錯誤代碼應為 %s，但得到 %v", apperr.CodeSchemaViolation, body["code"])
	}
}

func TestPersistenceErrorReturns500(t *testing.T) {
	provider := &fakePickProvider{err: apperr.NewPersistence("讀取分析記錄失敗", nil)}
	recorder := doRequest(t, provider, http.MethodPost, validBody())
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("持久層錯誤應回 500，但得到 %d", recorder.Code)
	}
}
