package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"PuckPicks-api/internal/apperr"
	"PuckPicks-api/internal/config"
	"PuckPicks-api/internal/models"
)

// GenerationResult 是一次完整成功的生成結果：
// 四個步驟 (生成呼叫、解析、結構驗證、向量化) 全數通過後才會產生。
type GenerationResult struct {
	PickSide        string
	ConfidenceScore int
	ReasoningText   string
	Embedding       models.EmbeddingVector
}

// Generator 負責組裝 Prompt、呼叫生成協作者、驗證其不可信任的輸出，
// 再呼叫向量化協作者並驗證結果。任一步驟失敗即整體失敗，不做元件層級的重試。
type Generator struct {
	cfg    *config.Config
	client PickGenerator
}

// NewGenerator 建立 Generator 實例
func NewGenerator(cfg *config.Config, client PickGenerator) (*Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("Generator：設定不得為空")
	}
	if client == nil {
		return nil, fmt.Errorf("Generator：生成客戶端不得為空")
	}
	log.Println("資訊：Generator 初始化完成。")
	return &Generator{cfg: cfg, client: client}, nil
}

// buildSystemInstruction 從設定檔的版本化 Prompt 組出系統指示，
// 內嵌盤口類型與當前賠率
func (g *Generator) buildSystemInstruction(market models.MarketType, currentOdds int) (string, string) {
	currentVersionKey := g.cfg.Prompts.PickAnalysis.CurrentVersion
	promptTemplate, ok := g.cfg.Prompts.PickAnalysis.Versions[currentVersionKey]
	if !ok || promptTemplate == "" {
		log.Printf("警告：[Generator] 設定檔中未找到名為 '%s' 的 pickAnalysis Prompt 版本，或其內容為空。將使用預設。", currentVersionKey)
		promptTemplate = "你是一位資深的冰球盤口分析師。針對 %s 盤口（目前賠率：%d）進行分析，" +
			"只回傳一個 JSON 物件：{\"pick_side\": ..., \"confidence\": ..., \"reasoning\": ...}"
		currentVersionKey = "default-pick-fallback-v0"
	}
	log.Printf("資訊：[Generator] 使用 PickAnalysis Prompt 版本: %s\n", currentVersionKey)
	return fmt.Sprintf(promptTemplate, market, currentOdds), currentVersionKey
}

// Generate 執行一次完整的生成嘗試。
// 失敗分三類，各自對應不同的運維補救手段：
//   - upstream_unavailable：呼叫本身失敗或回應被阻擋 (可能是服務中斷)
//   - invalid_output：回應為空或無法解析為 JSON (可能是 Prompt/格式退化)
//   - schema_violation：JSON 可解析但欄位違反結構約定
func (g *Generator) Generate(ctx context.Context, req *models.PickRequest) (*GenerationResult, error) {
	contextJSON, err := json.Marshal(req.GameContext)
	if err != nil {
		return nil, apperr.NewValidation("game_context 無法序列化為 JSON", nil)
	}
	systemInstruction, promptVersion := g.buildSystemInstruction(req.MarketType, *req.CurrentOdds)

	timeout := time.Duration(g.cfg.GeminiClient.RequestTimeoutSecs) * time.Second
	genCtx, cancelGen := context.WithTimeout(ctx, timeout)
	rawResponse, err := g.client.GeneratePick(genCtx, systemInstruction, string(contextJSON))
	cancelGen()
	if err != nil {
		log.Printf("錯誤：[Generator] 生成呼叫失敗 (GameID: %s, 盤口: %s, Prompt版本: %s): %v\n", req.GameID, req.MarketType, promptVersion, err)
		return nil, apperr.NewUpstream(apperr.CodeUpstreamUnavailable, "上游生成服務不可用", err)
	}

	if strings.TrimSpace(rawResponse) == "" {
		log.Printf("錯誤：[Generator] 生成回應為空 (GameID: %s, 盤口: %s)\n", req.GameID, req.MarketType)
		return nil, apperr.NewUpstream(apperr.CodeInvalidOutput, "上游生成服務回傳了空的內容", nil)
	}

	parsed, violations, parseErr := validatePickPayload([]byte(rawResponse))
	if parseErr != nil {
		log.Printf("錯誤：[Generator] 生成回應無法解析為 JSON (GameID: %s): %v\n原始回應:\n%s\n", req.GameID, parseErr, rawResponse)
		return nil, apperr.NewUpstream(apperr.CodeInvalidOutput, "上游生成服務回傳了無法解析的內容", parseErr)
	}
	if len(violations) > 0 {
		// 完整的驗證診斷只留在伺服器端日誌，客戶端只拿到最小訊息
		for _, v := range violations {
			log.Printf("錯誤：[Generator] 生成回應違反結構約定 (GameID: %s) - %s\n", req.GameID, v)
		}
		log.Printf("錯誤：[Generator] 原始回應 (GameID: %s):\n%s\n", req.GameID, rawResponse)
		return nil, apperr.NewUpstream(apperr.CodeSchemaViolation, "上游生成服務回傳了違反結構約定的內容", fmt.Errorf("%d 個欄位違規", len(violations)))
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, timeout)
	vector, err := g.client.EmbedText(embedCtx, parsed.Reasoning)
	cancelEmbed()
	if err != nil {
		log.Printf("錯誤：[Generator] 向量化呼叫失敗 (GameID: %s): %v\n", req.GameID, err)
		return nil, apperr.NewUpstream(apperr.CodeUpstreamUnavailable, "上游向量化服務不可用", err)
	}
	expectedDim := g.cfg.GeminiClient.EmbeddingDimension
	if len(vector) != expectedDim {
		log.Printf("錯誤：[Generator] 向量維度不符 (GameID: %s): 期望 %d，實際 %d\n", req.GameID, expectedDim, len(vector))
		return nil, apperr.NewUpstream(apperr.CodeUpstreamUnavailable, "上游向量化服務回傳了錯誤維度的向量", fmt.Errorf("期望維度 %d，實際 %d", expectedDim, len(vector)))
	}

	log.Printf("資訊：[Generator] 生成完成 (GameID: %s, 盤口: %s, 信心分數: %d)\n", req.GameID, req.MarketType, parsed.Confidence)
	return &GenerationResult{
		PickSide:        parsed.PickSide,
		ConfidenceScore: parsed.Confidence,
		ReasoningText:   parsed.Reasoning,
		Embedding:       models.EmbeddingVector(vector),
	}, nil
}

// parsedPick 是通過驗證後的生成結果欄位
type parsedPick struct {
	PickSide   string
	Confidence int
	Reasoning  string
}

// validatePickPayload 將不可信任的上游 JSON 驗證為型別化的結果，
// 或回傳結構化的違規清單。解析失敗 (parseErr) 與結構違規 (violations)
// 是兩種不同的失敗，即使都來自同一次外部呼叫。
func validatePickPayload(raw []byte) (*parsedPick, []models.FieldViolation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, fmt.Errorf("回應不是 JSON 物件: %w", err)
	}

	var violations []models.FieldViolation
	var result parsedPick

	if rawSide, ok := fields["pick_side"]; !ok {
		violations = append(violations, models.FieldViolation{Field: "pick_side", Reason: "欄位缺失"})
	} else if err := json.Unmarshal(rawSide, &result.PickSide); err != nil {
		violations = append(violations, models.FieldViolation{Field: "pick_side", Reason: "必須是字串"})
	} else if strings.TrimSpace(result.PickSide) == "" {
		violations = append(violations, models.FieldViolation{Field: "pick_side", Reason: "不得為空字串"})
	}

	if rawConf, ok := fields["confidence"]; !ok {
		violations = append(violations, models.FieldViolation{Field: "confidence", Reason: "欄位缺失"})
	} else {
		var num json.Number
		if err := json.Unmarshal(rawConf, &num); err != nil {
			violations = append(violations, models.FieldViolation{Field: "confidence", Reason: "必須是數字"})
		} else if confidence, err := num.Int64(); err != nil {
			violations = append(violations, models.FieldViolation{Field: "confidence", Reason: fmt.Sprintf("必須是整數，但得到 '%s'", num)})
		} else if confidence < 1 || confidence > 100 {
			violations = append(violations, models.FieldViolation{Field: "confidence", Reason: fmt.Sprintf("必須在 [1,100] 範圍內，但得到 %d", confidence)})
		} else {
			result.Confidence = int(confidence)
		}
	}

	if rawReasoning, ok := fields["reasoning"]; !ok {
		violations = append(violations, models.FieldViolation{Field: "reasoning", Reason: "欄位缺失"})
	} else if err := json.Unmarshal(rawReasoning, &result.Reasoning); err != nil {
		violations = append(violations, models.FieldViolation{Field: "reasoning", Reason: "必須是字串"})
	} else if models.ReasoningLength(result.Reasoning) < models.MinReasoningLength {
		violations = append(violations, models.FieldViolation{Field: "reasoning", Reason: fmt.Sprintf("長度 %d 低於最低門檻 %d", models.ReasoningLength(result.Reasoning), models.MinReasoningLength)})
	}

	if len(violations) > 0 {
		return nil, violations, nil
	}
	return &result, nil, nil
}
