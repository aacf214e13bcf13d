package config

import (
	"fmt"
	"strings"

	"PuckPicks-api/internal/apperr"

	"github.com/spf13/viper"
)

// PickAnalysisPrompts 管理盤口分析 Prompt 的版本
type PickAnalysisPrompts struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

// PromptConfig 結構
type PromptConfig struct {
	PickAnalysis PickAnalysisPrompts `mapstructure:"pickAnalysis"`
}

// SchedulerConfig 結構
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	StaleSweepCronSpec string `mapstructure:"staleSweepCronSpec"`
}

// ServerConfig 結構
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// GeminiClientConfig 結構
type GeminiClientConfig struct {
	APIKey             string `mapstructure:"apiKey"`
	GenerationModel    string `mapstructure:"generationModel"`
	EmbeddingModel     string `mapstructure:"embeddingModel"`
	EmbeddingDimension int    `mapstructure:"embeddingDimension"`
	RequestTimeoutSecs int    `mapstructure:"requestTimeoutSecs"`
}

// DatabaseConfig 結構
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
}

// 提交策略：miss 時裸插入、衝突時重讀 (先提交者勝)，或無條件覆寫 (後寫者勝)
const (
	CommitStrategyFirstCommitterWins = "first_committer_wins"
	CommitStrategyLastWriteWins      = "last_write_wins"
)

// PickCacheConfig 控制快取失效政策與提交策略
type PickCacheConfig struct {
	MaxAgeHours    int    `mapstructure:"maxAgeHours"`
	MaxOddsDrift   int    `mapstructure:"maxOddsDrift"`
	CommitStrategy string `mapstructure:"commitStrategy"`
}

// Config 結構
type Config struct {
	AppName      string             `mapstructure:"appName"`
	Server       ServerConfig       `mapstructure:"server"`
	GeminiClient GeminiClientConfig `mapstructure:"geminiClient"`
	Database     DatabaseConfig     `mapstructure:"database"`
	PickCache    PickCacheConfig    `mapstructure:"pickCache"`
	Prompts      PromptConfig       `mapstructure:"prompts"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
}

// Load 函式：讀取設定檔並套用預設值
func Load(configPath string, configName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 設定預設值
	v.SetDefault("appName", "PuckPicks-DefaultApp")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("geminiClient.generationModel", "gemini-1.5-flash-latest")
	v.SetDefault("geminiClient.embeddingModel", "text-embedding-004")
	v.SetDefault("geminiClient.embeddingDimension", 768)
	v.SetDefault("geminiClient.requestTimeoutSecs", 120)
	v.SetDefault("pickCache.maxAgeHours", 4)
	v.SetDefault("pickCache.maxOddsDrift", 20)
	v.SetDefault("pickCache.commitStrategy", CommitStrategyFirstCommitterWins)
	v.SetDefault("prompts.pickAnalysis.currentVersion", "default-v1")
	v.SetDefault("prompts.pickAnalysis.versions.default-v1",
		"你是一位資深的冰球盤口分析師。針對 %s 盤口（目前賠率：%d）進行分析，"+
			"只回傳一個 JSON 物件，不得包含任何其他文字，格式為："+
			`{"pick_side": "建議下注方", "confidence": 1到100的整數信心分數, "reasoning": "至少50字的詳細分析理由"}`)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.staleSweepCronSpec", "0 */15 * * * *")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("警告：找不到設定檔，將使用預設值和環境變數。")
		} else {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}

	fmt.Println("資訊：設定載入成功。")
	return &cfg, nil
}

// Validate 在服務建構時做一次性檢查，失敗時程序必須拒絕開始服務，
// 而不是把檢查推遲到每個請求的處理路徑中。
func (c *Config) Validate() error {
	if c.GeminiClient.APIKey == "" {
		return apperr.NewConfiguration("Gemini API Key 未設定 (geminiClient.apiKey)")
	}
	if c.GeminiClient.EmbeddingDimension <= 0 {
		return apperr.NewConfiguration("向量維度必須大於 0 (geminiClient.embeddingDimension)")
	}
	if c.Database.Driver != "mysql" {
		return apperr.NewConfiguration(fmt.Sprintf("不支援的資料庫驅動程式: %s", c.Database.Driver))
	}
	if c.Database.User == "" || c.Database.DBName == "" {
		return apperr.NewConfiguration("資料庫設定不完整 (database.user / database.dbName)")
	}
	if c.PickCache.MaxAgeHours <= 0 {
		return apperr.NewConfiguration("快取時效上限必須大於 0 (pickCache.maxAgeHours)")
	}
	if c.PickCache.MaxOddsDrift <= 0 {
		return apperr.NewConfiguration("賠率偏移門檻必須大於 0 (pickCache.maxOddsDrift)")
	}
	switch c.PickCache.CommitStrategy {
	case CommitStrategyFirstCommitterWins, CommitStrategyLastWriteWins:
	default:
		return apperr.NewConfiguration(fmt.Sprintf("未知的提交策略: %s", c.PickCache.CommitStrategy))
	}
	promptVersion := c.Prompts.PickAnalysis.CurrentVersion
	if prompt, ok := c.Prompts.PickAnalysis.Versions[promptVersion]; !ok || prompt == "" {
		return apperr.NewConfiguration(fmt.Sprintf("未設定有效的盤口分析 Prompt (版本: %s)", promptVersion))
	}
	return nil
}
