package handlers

import (
	"log"
	"net/http"
)

// Pinger 定義了健康檢查需要的持久層探測
type Pinger interface {
	Ping() error
}

// HealthHandler 回報服務與資料庫連線的存活狀態
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler 建立一個 HealthHandler 實例
func NewHealthHandler(db Pinger) *HealthHandler {
	if db == nil {
		log.Panicln("HealthHandler：Pinger 不得為空")
	}
	return &HealthHandler{db: db}
}

// ServeHTTP 實現 http.Handler 介面
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCommonHeaders(w)
	if err := h.db.Ping(); err != nil {
		log.Printf("錯誤：[HealthHandler] 資料庫 ping 失敗: %v\n", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
