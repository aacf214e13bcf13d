package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client 結構用於與 Gemini API 互動：
// 一個生成模型負責盤口分析，一個向量模型負責理由文字的向量化。
type Client struct {
	pickAnalysisModel *genai.GenerativeModel
	embeddingModel    *genai.EmbeddingModel
}

// NewClient 建立一個 Gemini 客戶端實例
func NewClient(apiKey string, generationModelName string, embeddingModelName string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 不得為空")
	}
	if generationModelName == "" {
		generationModelName = "gemini-1.5-flash-latest"
		log.Printf("警告：[Gemini Client] 未提供生成模型名稱，使用預設值: %s\n", generationModelName)
	}
	if embeddingModelName == "" {
		embeddingModelName = "text-embedding-004"
		log.Printf("警告：[Gemini Client] 未提供向量模型名稱，使用預設值: %s\n", embeddingModelName)
	}

	ctx := context.Background()
	genaiSDKClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("無法建立 Gemini GenAI SDK 客戶端: %w", err)
	}

	pickModel := genaiSDKClient.GenerativeModel(generationModelName)
	var genConfig genai.GenerationConfig
	genConfig.ResponseMIMEType = "application/json"
	pickModel.GenerationConfig = genConfig
	log.Printf("資訊：[Gemini Client] 盤口分析模型 '%s' 初始化成功。\n", generationModelName)

	embModel := genaiSDKClient.EmbeddingModel(embeddingModelName)
	log.Printf("資訊：[Gemini Client] 向量模型 '%s' 初始化成功。\n", embeddingModelName)

	return &Client{
		pickAnalysisModel: pickModel,
		embeddingModel:    embModel,
	}, nil
}

// cleanJSONString 清理從 LLM 收到的可能包含雜質的 JSON 字串
func cleanJSONString(rawResponse string) string {
	cleaned := strings.TrimSpace(rawResponse)

	// 移除可能的 markdown 代碼塊標記
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		if strings.HasSuffix(cleaned, "```") {
			cleaned = strings.TrimSuffix(cleaned, "```")
		}
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if strings.HasSuffix(cleaned, "```") {
			cleaned = strings.TrimSuffix(cleaned, "```")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	// 尋找最外層的 JSON 物件
	firstBrace := strings.Index(cleaned, "{")
	lastBrace := strings.LastIndex(cleaned, "}")
	if firstBrace != -1 && lastBrace != -1 && lastBrace > firstBrace {
		cleaned = cleaned[firstBrace : lastBrace+1]
	}
	cleaned = strings.TrimSpace(cleaned)

	// 處理 UTF-8 編碼問題
	if !utf8.ValidString(cleaned) {
		log.Println("警告：[Gemini Client Clean] 回應包含無效的 UTF-8 字元，嘗試替換...")
		cleaned = strings.ToValidUTF8(cleaned, "")
	}

	// 移除控制字元
	var sb strings.Builder
	for _, r := range cleaned {
		if (r >= 0 && r < 9) || (r > 10 && r < 13) || (r > 13 && r < 32) || r == 127 {
			continue
		}
		sb.WriteRune(r)
	}
	finalCleaned := strings.TrimPrefix(sb.String(), "\uFEFF")
	return finalCleaned
}

// GeneratePick 向 Gemini API 發送系統指示與比賽脈絡，期望回傳 JSON 字串。
// 回傳的字串僅經過清理，尚未做結構驗證；解析與驗證屬於呼叫端的責任。
// 任何呼叫層級的失敗 (API 錯誤、回應被阻擋、無候選內容) 都以 error 回報，
// 這一層不做任何重試。
func (c *Client) GeneratePick(ctx context.Context, systemInstruction string, userPayload string) (string, error) {
	log.Printf("資訊：[Gemini Client] GeneratePick - 開始分析 (脈絡長度: %d 字元)\n", len(userPayload))
	log.Printf("資訊：[Gemini Client] GeneratePick - 使用系統指示 (前100字元): %s...\n", firstNChars(systemInstruction, 100))
	if strings.TrimSpace(systemInstruction) == "" {
		return "", fmt.Errorf("系統指示不得為空")
	}
	if strings.TrimSpace(userPayload) == "" {
		return "", fmt.Errorf("要分析的比賽脈絡不得為空")
	}

	requestParts := []genai.Part{genai.Text(systemInstruction), genai.Text(userPayload)}
	log.Println("資訊：[Gemini Client] GeneratePick - 正在向 Gemini API 發送請求...")
	resp, err := c.pickAnalysisModel.GenerateContent(ctx, requestParts...)
	if err != nil {
		return "", fmt.Errorf("Gemini API 盤口分析 GenerateContent 失敗: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini API 盤口分析回應無效或為空 (nil response or no candidates)")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			if candidate.SafetyRatings != nil {
				for _, rating := range candidate.SafetyRatings {
					log.Printf("警告：[Gemini Client] 安全評級 (盤口分析) - Category: %s, Probability: %s\n", rating.Category, rating.Probability)
				}
			}
			return "", fmt.Errorf("Gemini API 盤口分析回應無效或內容被阻止，原因: %s", candidate.FinishReason.String())
		}
		return "", fmt.Errorf("Gemini API 盤口分析回應無效或為空 (no content parts, FinishReason: %s)", candidate.FinishReason.String())
	}
	var responseTextBuilder strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseTextBuilder.WriteString(string(txt))
		} else {
			log.Printf("警告：[Gemini Client] GeneratePick - 收到非預期的 Part 類型: %T\n", part)
		}
	}
	rawResponseString := responseTextBuilder.String()
	log.Printf("資訊：[Gemini Client] GeneratePick - 收到 API 的原始文字回應 (長度: %d)\n", len(rawResponseString))

	cleanedJSONString := cleanJSONString(rawResponseString)
	if !json.Valid([]byte(cleanedJSONString)) {
		// 解析失敗的分類交給呼叫端；這裡只留下完整內容供排查
		log.Printf("警告：[Gemini Client] GeneratePick - 清理後的字串不是有效的 JSON。完整內容:\n%s\n", cleanedJSONString)
	}
	return cleanedJSONString, nil
}

// EmbedText 向 Gemini API 發送理由文字以取得向量表示。
// 呼叫失敗或回應缺少向量都以 error 回報，維度檢查由呼叫端負責。
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("要向量化的文字不得為空")
	}
	log.Printf("資訊：[Gemini Client] EmbedText - 開始向量化文字 (長度: %d 字元)\n", len(text))
	resp, err := c.embeddingModel.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("Gemini API EmbedContent 失敗: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("Gemini API 向量化回應無效或為空 (missing embedding values)")
	}
	log.Printf("資訊：[Gemini Client] EmbedText - 向量化成功 (維度: %d)\n", len(resp.Embedding.Values))
	return resp.Embedding.Values, nil
}

// firstNChars 輔助函式，避免日誌截斷在 UTF-8 字元中間
func firstNChars(s string, n int) string {
	if len(s) > n {
		runes := []rune(s)
		if len(runes) > n {
			return string(runes[:n])
		}
	}
	return s
}
