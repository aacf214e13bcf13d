package web

import (
	"log"
	"net/http"

	"PuckPicks-api/internal/web/handlers"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store 聚合路由層需要的持久層能力
type Store interface {
	handlers.Pinger
}

// SetupRouter 組裝 HTTP 路由
func SetupRouter(db Store, pickService handlers.PickProvider) http.Handler {
	mux := http.NewServeMux()

	if pickService == nil {
		log.Panicln("SetupRouter：PickProvider 不得為空")
	}
	pickHandler := handlers.NewPickHandler(pickService)
	mux.Handle("/api/picks", pickHandler)

	healthHandler := handlers.NewHealthHandler(db)
	mux.Handle("/healthz", healthHandler)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("警告：未匹配的路由: %s", r.URL.Path)
		http.NotFound(w, r)
	})

	log.Println("資訊：HTTP 路由設定完成。")
	return mux
}
