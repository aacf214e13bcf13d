package models

import (
	"encoding/json"
	"testing"
)

func intPtr(v int) *int { return &v }

func validRequest() *PickRequest {
	return &PickRequest{
		GameID:      "2024020123",
		MarketType:  MarketPuckline,
		CurrentOdds: intPtr(-110),
		GameContext: map[string]json.RawMessage{"home_team": json.RawMessage(`"TOR"`)},
	}
}

func TestValidateValidRequest(t *testing.T) {
	req := validRequest()
	req.Normalize()
	if violations := req.Validate(); len(violations) != 0 {
		t.Fatalf("合法請求不應有違規項目，但得到 %v", violations)
	}
}

func TestNormalizeDefaultsMarketType(t *testing.T) {
	req := validRequest()
	req.MarketType = ""
	req.Normalize()
	if req.MarketType != MarketMoneyline {
		t.Fatalf("未指定盤口時應預設為 moneyline，但得到 %s", req.MarketType)
	}
}

func TestValidateMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PickRequest)
		field  string
	}{
		{"缺少 game_id", func(r *PickRequest) { r.GameID = "  " }, "game_id"},
		{"非法盤口", func(r *PickRequest) { r.MarketType = "parlay" }, "market_type"},
		{"缺少 current_odds", func(r *PickRequest) { r.CurrentOdds = nil }, "current_odds"},
		{"缺少 game_context", func(r *PickRequest) { r.GameContext = nil }, "game_context"},
		{"空的 game_context", func(r *PickRequest) { r.GameContext = map[string]json.RawMessage{} }, "game_context"},
	}
	for _, tc := range cases {
		req := validRequest()
		tc.mutate(req)
		violations := req.Validate()
		if len(violations) == 0 {
			t.Fatalf("%s：應產生違規項目", tc.name)
		}
		found := false
		for _, v := range violations {
			if v.Field == tc.field {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s：違規項目應包含欄位 %s，但得到 %v", tc.name, tc.field, violations)
		}
	}
}

func TestMarketTypeIsValid(t *testing.T) {
	for _, m := range []MarketType{MarketMoneyline, MarketPuckline, MarketTotal, MarketProp} {
		if !m.IsValid() {
			t.Fatalf("%s 應為合法盤口類型", m)
		}
	}
	if MarketType("parlay").IsValid() {
		t.Fatalf("parlay 不應為合法盤口類型")
	}
}

func TestEmbeddingVectorRoundTrip(t *testing.T) {
	original := EmbeddingVector{0.1, -0.5, 2.25}
	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value 失敗: %v", err)
	}
	var scanned EmbeddingVector
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan 失敗: %v", err)
	}
	if len(scanned) != len(original) {
		t.Fatalf("維度不符：期望 %d，實際 %d", len(original), len(scanned))
	}
	for i := range original {
		if scanned[i] != original[i] {
			t.Fatalf("索引 %d 的值不符：期望 %f，實際 %f", i, original[i], scanned[i])
		}
	}
}

func TestEmbeddingVectorScanNil(t *testing.T) {
	var v EmbeddingVector
	if err := v.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) 不應失敗: %v", err)
	}
	if v != nil {
		t.Fatalf("Scan(nil) 後應為 nil 向量")
	}
}
