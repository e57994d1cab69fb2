package openaivision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/steveyiyo/toole/internal/core/instruct"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(`{"device_name":"Blender"}`)))
	}))
	defer srv.Close()

	c, err := New(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Generate(context.Background(), instruct.Request{Prompt: "p", Image: []byte("img"), MIMEType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"device_name":"Blender"}` {
		t.Errorf("reply %q", out)
	}
	if body["model"] != "gpt-test" {
		t.Errorf("model %v", body["model"])
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format %v", body["response_format"])
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), "data:image/jpeg;base64,aW1n") {
		t.Errorf("image part missing: %s", raw)
	}
}

func TestGenerateStatusClassification(t *testing.T) {
	for _, c := range []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
		}))
		cl, _ := New(Options{APIKey: "k", BaseURL: srv.URL})
		_, err := cl.Generate(context.Background(), instruct.Request{MIMEType: "image/png"})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", c.status)
		}
		if instruct.IsTransient(err) != c.transient {
			t.Errorf("status %d: transient = %v", c.status, instruct.IsTransient(err))
		}
	}
}

func TestGenerateEmptyChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("")))
	}))
	defer srv.Close()
	cl, _ := New(Options{APIKey: "k", BaseURL: srv.URL})
	if _, err := cl.Generate(context.Background(), instruct.Request{}); !instruct.IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error")
	}
}
