package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/language"
	"github.com/steveyiyo/toole/pkg/types"
	"github.com/steveyiyo/toole/pkg/ws"
)

const (
	readLimit    = 8 << 20
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
	pingPeriod   = readTimeout * 9 / 10
)

type StreamHandler struct {
	Hub      *ws.Hub
	Svc      *analysis.Service
	Scheme   string
	Host     string
	Upgrader websocket.Upgrader
}

func NewStreamHandler(h *ws.Hub, s *analysis.Service, scheme, host string) *StreamHandler {
	return &StreamHandler{
		Hub:    h,
		Svc:    s,
		Scheme: scheme,
		Host:   host,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// liveConn is one live scanner session. Frames run one at a time; frames
// that arrive during a run are dropped.
type liveConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	busy atomic.Bool
	wg   sync.WaitGroup

	goal string
	lang types.Language
}

func (lc *liveConn) send(v any) error {
	lc.wmu.Lock()
	defer lc.wmu.Unlock()
	lc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return lc.conn.WriteJSON(v)
}

func (lc *liveConn) ping() error {
	lc.wmu.Lock()
	defer lc.wmu.Unlock()
	return lc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *StreamHandler) WS(c *gin.Context) {
	lang, err := language.Resolve(c.Query("language"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_language"})
		return
	}
	base := h.Scheme + "://" + h.Host
	if h.Host == "" {
		base = h.Scheme + "://" + c.Request.Host
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	id := uuid.NewString()
	log := slog.With("stream", id)
	lc := &liveConn{conn: conn, goal: c.Query("goal"), lang: lang}

	ctx, cancel := context.WithCancel(context.Background())
	h.Hub.Add(id, conn)
	defer func() {
		cancel()
		lc.wg.Wait()
		h.Hub.Remove(id)
		conn.Close()
		log.Info("live stream closed")
	}()
	log.Info("live stream opened", "lang", lang.SpeechCode)

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if lc.ping() != nil {
					return
				}
			}
		}
	}()

	_ = lc.send(types.StreamMsg{Type: "hello", TS: time.Now().UnixMilli()})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame []byte
		switch mt {
		case websocket.BinaryMessage:
			frame = msg
		case websocket.TextMessage:
			var in types.StreamMsg
			if err := json.Unmarshal(msg, &in); err != nil {
				_ = lc.send(types.StreamMsg{Type: "error", Error: "bad_request"})
				continue
			}
			switch in.Type {
			case "config":
				if in.Language != "" {
					l, err := language.Resolve(in.Language)
					if err != nil {
						_ = lc.send(types.StreamMsg{Type: "error", Error: "unsupported_language"})
						continue
					}
					lc.lang = l
				}
				if in.Goal != "" {
					lc.goal = in.Goal
				}
				continue
			case "frame":
				frame, err = base64.StdEncoding.DecodeString(in.Image)
				if err != nil || len(frame) == 0 {
					_ = lc.send(types.StreamMsg{Type: "error", Error: "bad_request"})
					continue
				}
			default:
				continue
			}
		default:
			continue
		}

		if !lc.busy.CompareAndSwap(false, true) {
			_ = lc.send(types.StreamMsg{Type: "busy", TS: time.Now().UnixMilli()})
			continue
		}
		lc.wg.Add(1)
		go h.run(ctx, lc, frame, lc.goal, lc.lang, base, log)
	}
}

func (h *StreamHandler) run(ctx context.Context, lc *liveConn, frame []byte, goal string, lang types.Language, base string, log *slog.Logger) {
	defer lc.wg.Done()
	defer lc.busy.Store(false)

	a, err := h.Svc.Analyze(ctx, frame, goal, lang)
	if err != nil {
		_, code := errorCode(err)
		log.Warn("live frame failed", "code", code, "error", err)
		_ = lc.send(types.StreamMsg{Type: "error", Error: code})
		return
	}
	_ = lc.send(struct {
		Type string `json:"type"`
		types.AnalysisResp
	}{"result", toResp(a, base, true)})
}
