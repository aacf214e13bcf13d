package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// EmbeddingVector 是固定維度的數值向量，以 JSON 陣列形式存放在資料庫欄位中。
// 實作 driver.Valuer / sql.Scanner，讓 database/sql 可以直接讀寫。
type EmbeddingVector []float32

// Value 實現 driver.Valuer 介面
func (v EmbeddingVector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, fmt.Errorf("EmbeddingVector: 序列化為 JSON 失敗: %w", err)
	}
	return data, nil
}

// Scan 實現 sql.Scanner 介面
func (v *EmbeddingVector) Scan(src interface{}) error {
	if src == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("EmbeddingVector: 不支援的來源類型 %T", src)
	}
	var values []float32
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("EmbeddingVector: 解析資料庫 JSON 欄位失敗: %w", err)
	}
	*v = values
	return nil
}
