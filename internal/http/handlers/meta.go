package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/toole/internal/core/language"
	"github.com/steveyiyo/toole/pkg/types"
	"github.com/steveyiyo/toole/pkg/ws"
)

type MetaHandler struct {
	Backend string
	Hub     *ws.Hub
}

func NewMetaHandler(backend string, hub *ws.Hub) *MetaHandler {
	return &MetaHandler{Backend: backend, Hub: hub}
}

func (h *MetaHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResp{Status: "ok", Backend: h.Backend, LiveStreams: h.Hub.Len()})
}

func (h *MetaHandler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, types.LanguageListResp{Languages: language.All()})
}
