package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steveyiyo/toole/internal/config"
	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/annotate"
	"github.com/steveyiyo/toole/internal/core/instruct"
	"github.com/steveyiyo/toole/internal/core/narration"
	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/internal/repo/memory"
	"github.com/steveyiyo/toole/pkg/types"
	"github.com/steveyiyo/toole/pkg/ws"
)

type fakeRequester struct {
	res   *types.InstructionResult
	err   error
	delay time.Duration
}

func (f *fakeRequester) Backend() string { return "fake" }

func (f *fakeRequester) Request(ctx context.Context, _ []byte, _, _ string, _ types.Language) (*types.InstructionResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.res, f.err
}

type fakeSpeech struct{ err error }

func (f fakeSpeech) Name() string { return "fake" }

func (f fakeSpeech) Synthesize(_ context.Context, text, _ string) (*tts.Audio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Audio{Data: []byte(text), ContentType: tts.ContentTypeMP3, DurationMs: 500}, nil
}

func toaster() *types.InstructionResult {
	b := types.Box{100, 100, 600, 600}
	return &types.InstructionResult{
		DeviceName: "Toaster",
		Steps:      []types.Step{{Order: 1, Text: "Press lever", ActionType: "tap", Box: &b}},
	}
}

func newTestRouter(req *fakeRequester, sp tts.Provider) (nethttp.Handler, *ws.Hub) {
	repo := memory.NewAnalysisRepo(time.Minute)
	svc := analysis.NewService(repo, req, annotate.NewRenderer(annotate.Options{}), narration.New(sp), analysis.Options{})
	hub := ws.NewHub()
	return NewRouter(config.ServerConfig{PublicHost: "toole.test"}, svc, sp, hub), hub
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func doJSON(h nethttp.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestHealthAndLanguages(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{}, nil)

	w := doJSON(h, nethttp.MethodGet, "/healthz", nil)
	var health types.HealthResp
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if w.Code != 200 || health.Status != "ok" || health.Backend != "fake" {
		t.Fatalf("health = %d %+v", w.Code, health)
	}

	w = doJSON(h, nethttp.MethodGet, "/v1/languages", nil)
	var langs types.LanguageListResp
	_ = json.Unmarshal(w.Body.Bytes(), &langs)
	if len(langs.Languages) != 8 || langs.Languages[0].Name != "English" {
		t.Fatalf("languages = %+v", langs)
	}
}

func TestAnalyzeJSON(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{res: toaster()}, fakeSpeech{})
	w := doJSON(h, nethttp.MethodPost, "/v1/analyze", types.AnalyzeReq{
		ImageBase64: base64.StdEncoding.EncodeToString(pngBytes(t)),
		Goal:        "make toast",
		Language:    "fr",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp types.AnalysisResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Language.SpeechCode != "fr" || resp.Goal != "make toast" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ImageBase64 == "" || resp.AudioBase64 == "" {
		t.Fatal("inline payloads missing")
	}
	if !strings.HasPrefix(resp.ImageURL, "http://toole.test/v1/analyses/") {
		t.Fatalf("image url = %q", resp.ImageURL)
	}

	w = doJSON(h, nethttp.MethodGet, "/v1/analyses/"+resp.ID, nil)
	var stored types.AnalysisResp
	_ = json.Unmarshal(w.Body.Bytes(), &stored)
	if w.Code != 200 || stored.ImageBase64 != "" || stored.StepLines[0] != "Step 1: Press lever" {
		t.Fatalf("stored = %d %+v", w.Code, stored)
	}

	w = doJSON(h, nethttp.MethodGet, "/v1/analyses/"+resp.ID+"/image", nil)
	if w.Code != 200 || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("image = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	w = doJSON(h, nethttp.MethodGet, "/v1/analyses/"+resp.ID+"/audio", nil)
	if w.Code != 200 || w.Header().Get("Content-Type") != tts.ContentTypeMP3 {
		t.Fatalf("audio = %d", w.Code)
	}
}

func TestAnalyzeMultipart(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{res: toaster()}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "photo.png")
	_, _ = fw.Write(pngBytes(t))
	_ = mw.WriteField("language", "Japanese")
	_ = mw.Close()

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp types.AnalysisResp
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Goal != analysis.DefaultGoal || resp.Language.SpeechCode != "ja" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.AudioURL != "" {
		t.Fatal("audio url without audio")
	}

	w = doJSON(h, nethttp.MethodGet, "/v1/analyses/"+resp.ID+"/audio", nil)
	if w.Code != 404 {
		t.Fatalf("audio status = %d", w.Code)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	img := base64.StdEncoding.EncodeToString(pngBytes(t))
	cases := []struct {
		name   string
		req    *fakeRequester
		body   types.AnalyzeReq
		status int
		code   string
	}{
		{"no image", &fakeRequester{}, types.AnalyzeReq{}, 400, "bad_request"},
		{"bad base64", &fakeRequester{}, types.AnalyzeReq{ImageBase64: "%%%"}, 400, "bad_request"},
		{"bad language", &fakeRequester{}, types.AnalyzeReq{ImageBase64: img, Language: "Klingon"}, 400, "unsupported_language"},
		{"bad image", &fakeRequester{}, types.AnalyzeReq{ImageBase64: base64.StdEncoding.EncodeToString([]byte("nope"))}, 400, "bad_image"},
		{"busy", &fakeRequester{err: instruct.ErrBusy}, types.AnalyzeReq{ImageBase64: img}, 503, "server_busy"},
		{"bad reply", &fakeRequester{err: instruct.ErrBadResponse}, types.AnalyzeReq{ImageBase64: img}, 502, "model_error"},
		{"permanent", &fakeRequester{err: errors.New("invalid key")}, types.AnalyzeReq{ImageBase64: img}, 502, "model_error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, _ := newTestRouter(c.req, nil)
			w := doJSON(h, nethttp.MethodPost, "/v1/analyze", c.body)
			if w.Code != c.status || errorOf(t, w) != c.code {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAnalysisNotFound(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{}, nil)
	for _, p := range []string{"/v1/analyses/nope", "/v1/analyses/nope/image", "/v1/analyses/nope/audio"} {
		w := doJSON(h, nethttp.MethodGet, p, nil)
		if w.Code != 404 || errorOf(t, w) != "not_found" {
			t.Fatalf("%s: %d", p, w.Code)
		}
	}
}

func TestTTS(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{}, fakeSpeech{})
	w := doJSON(h, nethttp.MethodPost, "/v1/tts", types.TTSReq{Text: "hello", Language: "Hindi"})
	if w.Code != 200 || w.Body.String() != "hello" || w.Header().Get("X-Audio-Duration-Ms") != "500" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}

	w = doJSON(h, nethttp.MethodPost, "/v1/tts", types.TTSReq{})
	if w.Code != 400 {
		t.Fatalf("empty text = %d", w.Code)
	}

	h, _ = newTestRouter(&fakeRequester{}, fakeSpeech{err: errors.New("down")})
	w = doJSON(h, nethttp.MethodPost, "/v1/tts", types.TTSReq{Text: "hello"})
	if w.Code != 502 || errorOf(t, w) != "tts_failed" {
		t.Fatalf("failing provider = %d", w.Code)
	}
}

func dialStream(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello types.StreamMsg
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		t.Fatalf("hello = %+v, %v", hello, err)
	}
	return conn
}

func TestStreamResult(t *testing.T) {
	h, hub := newTestRouter(&fakeRequester{res: toaster()}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialStream(t, srv, "?language=ta&goal=toast")
	defer conn.Close()
	if hub.Len() != 1 {
		t.Fatalf("hub = %d", hub.Len())
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type string `json:"type"`
		types.AnalysisResp
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "result" || msg.Language.SpeechCode != "ta" || msg.Goal != "toast" {
		t.Fatalf("msg = %+v", msg)
	}

	frame, _ := json.Marshal(types.StreamMsg{Type: "frame", Image: "!!"})
	_ = conn.WriteMessage(websocket.TextMessage, frame)
	var errMsg types.StreamMsg
	if err := conn.ReadJSON(&errMsg); err != nil || errMsg.Type != "error" || errMsg.Error != "bad_request" {
		t.Fatalf("error msg = %+v, %v", errMsg, err)
	}
}

func TestStreamDropsFramesWhileBusy(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{res: toaster(), delay: 300 * time.Millisecond}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialStream(t, srv, "")
	defer conn.Close()

	img := pngBytes(t)
	_ = conn.WriteMessage(websocket.BinaryMessage, img)
	_ = conn.WriteMessage(websocket.BinaryMessage, img)

	var first, second types.StreamMsg
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if first.Type != "busy" || second.Type != "result" {
		t.Fatalf("got %q then %q", first.Type, second.Type)
	}
}

func TestStreamRejectsUnknownLanguage(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{}, nil)
	w := doJSON(h, nethttp.MethodGet, "/v1/stream?language=xx", nil)
	if w.Code != 400 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAnalyzeRejectsOversizedUploads(t *testing.T) {
	h, _ := newTestRouter(&fakeRequester{res: toaster()}, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "huge.png")
	_, _ = fw.Write(make([]byte, 20<<20+1))
	_ = mw.Close()
	req := httptest.NewRequest(nethttp.MethodPost, "/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != nethttp.StatusRequestEntityTooLarge {
		t.Fatalf("multipart: got %d %s", w.Code, w.Body.String())
	}

	huge := `{"image_base64":"` + strings.Repeat("A", 28<<20) + `"}`
	req = httptest.NewRequest(nethttp.MethodPost, "/v1/analyze", strings.NewReader(huge))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != nethttp.StatusRequestEntityTooLarge {
		t.Fatalf("json: got %d %s", w.Code, w.Body.String())
	}
}
