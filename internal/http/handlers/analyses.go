package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/language"
	"github.com/steveyiyo/toole/internal/repo/memory"
	"github.com/steveyiyo/toole/pkg/types"
)

const (
	maxUpload = 20 << 20
	// base64 of a maxUpload image plus room for the other fields
	maxJSONBody = maxUpload/3*4 + 64<<10
	// multipart framing and form fields on top of the file
	maxFormBody = maxUpload + 1<<20
)

var (
	errNoImage  = errors.New("no image")
	errTooLarge = errors.New("upload too large")
)

type AnalysesHandler struct {
	Svc    *analysis.Service
	Repo   *memory.AnalysisRepo
	Scheme string
	Host   string
}

func NewAnalysesHandler(svc *analysis.Service, repo *memory.AnalysisRepo, scheme, host string) *AnalysesHandler {
	return &AnalysesHandler{Svc: svc, Repo: repo, Scheme: scheme, Host: host}
}

// Analyze accepts a multipart upload (image, goal, language) or a JSON body
// with a base64 image.
func (h *AnalysesHandler) Analyze(c *gin.Context) {
	var req types.AnalyzeReq
	var photo []byte
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFormBody)
		photo, err = formImage(c)
		req.Goal = c.PostForm("goal")
		req.Language = c.PostForm("language")
	} else {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBody)
		if err = c.ShouldBindJSON(&req); err == nil {
			photo, err = decodeBase64Image(req.ImageBase64)
		}
	}
	if tooLarge(err) || len(photo) > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "bad_request"})
		return
	}
	if err != nil || len(photo) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	lang, err := language.Resolve(req.Language)
	if err != nil {
		abortWithError(c, err)
		return
	}
	a, err := h.Svc.Analyze(c.Request.Context(), photo, strings.TrimSpace(req.Goal), lang)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.resp(c, a, true))
}

func (h *AnalysesHandler) Get(c *gin.Context) {
	a, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, h.resp(c, a, false))
}

func (h *AnalysesHandler) Image(c *gin.Context) {
	a, ok := h.Repo.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Data(http.StatusOK, a.ImageType, a.Image)
}

func (h *AnalysesHandler) Audio(c *gin.Context) {
	a, ok := h.Repo.Get(c.Param("id"))
	if !ok || len(a.Audio) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Data(http.StatusOK, a.AudioType, a.Audio)
}

func (h *AnalysesHandler) baseURL(c *gin.Context) string {
	host := h.Host
	if host == "" {
		host = c.Request.Host
	}
	return h.Scheme + "://" + host
}

func (h *AnalysesHandler) resp(c *gin.Context, a *memory.Analysis, inline bool) types.AnalysisResp {
	return toResp(a, h.baseURL(c), inline)
}

func toResp(a *memory.Analysis, base string, inline bool) types.AnalysisResp {
	r := types.AnalysisResp{
		ID:         a.ID,
		CreatedAt:  a.CreatedAt.UnixMilli(),
		Language:   a.Language,
		Goal:       a.Goal,
		Result:     a.Result,
		StepLines:  a.StepLines,
		Narration:  a.Narration,
		ImageURL:   base + "/v1/analyses/" + a.ID + "/image",
		ImageType:  a.ImageType,
		DurationMs: a.DurationMs,
		Width:      a.Width,
		Height:     a.Height,
	}
	if len(a.Audio) > 0 {
		r.AudioURL = base + "/v1/analyses/" + a.ID + "/audio"
		r.AudioType = a.AudioType
	}
	if inline {
		r.ImageBase64 = base64.StdEncoding.EncodeToString(a.Image)
		if len(a.Audio) > 0 {
			r.AudioBase64 = base64.StdEncoding.EncodeToString(a.Audio)
		}
	}
	return r
}

func formImage(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, err
	}
	if fh.Size > maxUpload {
		return nil, errTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxUpload {
		return nil, errTooLarge
	}
	return data, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.Is(err, errTooLarge) || errors.As(err, &mbe)
}

// decodeBase64Image accepts raw base64 or a data URL.
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errNoImage
	}
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errNoImage
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
