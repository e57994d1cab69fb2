package http

import (
	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/toole/internal/config"
	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/internal/http/handlers"
	"github.com/steveyiyo/toole/pkg/ws"
)

func NewRouter(cfg config.ServerConfig, svc *analysis.Service, speech tts.Provider, hub *ws.Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 32 << 20

	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	ah := handlers.NewAnalysesHandler(svc, svc.Repo, scheme, cfg.PublicHost)
	wsh := handlers.NewStreamHandler(hub, svc, scheme, cfg.PublicHost)
	th := handlers.NewTTSHandler(speech)
	mh := handlers.NewMetaHandler(svc.Backend(), hub)

	r.GET("/healthz", mh.Health)
	api := r.Group("/v1")
	api.GET("/languages", mh.Languages)
	api.POST("/analyze", ah.Analyze)
	api.GET("/analyses/:id", ah.Get)
	api.GET("/analyses/:id/image", ah.Image)
	api.GET("/analyses/:id/audio", ah.Audio)
	api.POST("/tts", th.Synthesize)
	api.GET("/stream", wsh.WS)
	return r
}
