package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/toole/internal/core/language"
	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/pkg/types"
)

type TTSHandler struct {
	Provider tts.Provider
}

// NewTTSHandler takes the configured provider; nil disables synthesis.
func NewTTSHandler(p tts.Provider) *TTSHandler {
	return &TTSHandler{Provider: p}
}

func (h *TTSHandler) Synthesize(c *gin.Context) {
	var req types.TTSReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	lang, err := language.Resolve(req.Language)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if h.Provider == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "tts_failed"})
		return
	}
	audio, err := h.Provider.Synthesize(c.Request.Context(), req.Text, lang.SpeechCode)
	if err != nil {
		slog.Warn("tts request failed", "provider", h.Provider.Name(), "lang", lang.SpeechCode, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "tts_failed"})
		return
	}
	c.Header("X-Audio-Duration-Ms", strconv.FormatInt(audio.DurationMs, 10))
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}
