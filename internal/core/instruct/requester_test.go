package instruct

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steveyiyo/toole/pkg/types"
)

const okReply = `{"device_name":"Toaster","risk_alert":null,"steps":[{"order":1,"text":"Press lever","action_type":"tap","box_2d":[1,2,3,4]}]}`

type reply struct {
	text string
	err  error
}

type stubBackend struct {
	replies []reply
	calls   int
	last    Request
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Generate(_ context.Context, req Request) (string, error) {
	s.last = req
	r := s.replies[s.calls]
	s.calls++
	return r.text, r.err
}

var english = types.Language{Name: "English", SpeechCode: "en"}

func TestRequesterRetriesTransient(t *testing.T) {
	b := &stubBackend{replies: []reply{
		{err: Transient(errors.New("503 UNAVAILABLE: model overloaded"))},
		{err: Transient(errors.New("503 UNAVAILABLE: model overloaded"))},
		{text: okReply},
	}}
	r := NewRequester(b, 3, 0)
	res, err := r.Request(context.Background(), []byte{1}, "image/jpeg", "make toast", english)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if b.calls != 3 {
		t.Errorf("calls = %d", b.calls)
	}
	if res.DeviceName != "Toaster" || len(res.Steps) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if b.last.MIMEType != "image/jpeg" || len(b.last.Image) != 1 {
		t.Errorf("image not forwarded: %+v", b.last)
	}
}

func TestRequesterPermanentAbortsImmediately(t *testing.T) {
	perm := errors.New("400 INVALID_ARGUMENT: API key not valid")
	b := &stubBackend{replies: []reply{{err: perm}, {text: okReply}}}
	_, err := NewRequester(b, 3, 0).Request(context.Background(), nil, "image/jpeg", "g", english)
	if !errors.Is(err, perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if errors.Is(err, ErrBusy) {
		t.Error("permanent error reported as busy")
	}
	if b.calls != 1 {
		t.Errorf("calls = %d", b.calls)
	}
}

func TestRequesterExhaustsTransient(t *testing.T) {
	b := &stubBackend{replies: []reply{
		{err: Transient(errors.New("timeout"))},
		{err: Transient(errors.New("timeout"))},
		{err: Transient(errors.New("timeout"))},
	}}
	_, err := NewRequester(b, 3, 0).Request(context.Background(), nil, "image/jpeg", "g", english)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if b.calls != 3 {
		t.Errorf("calls = %d", b.calls)
	}
}

func TestRequesterRetriesBadReply(t *testing.T) {
	b := &stubBackend{replies: []reply{{text: "not json"}, {text: okReply}}}
	res, err := NewRequester(b, 3, 0).Request(context.Background(), nil, "image/jpeg", "g", english)
	if err != nil || res.DeviceName != "Toaster" {
		t.Fatalf("expected recovery, got %v %v", res, err)
	}

	b = &stubBackend{replies: []reply{{text: "x"}, {text: "y"}, {text: "z"}}}
	if _, err := NewRequester(b, 3, 0).Request(context.Background(), nil, "image/jpeg", "g", english); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestRequesterHonoursContextDuringBackoff(t *testing.T) {
	b := &stubBackend{replies: []reply{{err: Transient(errors.New("timeout"))}, {text: okReply}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewRequester(b, 3, time.Minute).Request(ctx, nil, "image/jpeg", "g", english)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if b.calls != 1 {
		t.Errorf("calls = %d", b.calls)
	}
}

func TestRequesterUsesLanguageName(t *testing.T) {
	b := &stubBackend{replies: []reply{{text: okReply}}}
	lang := types.Language{Name: "Japanese", SpeechCode: "ja"}
	if _, err := NewRequester(b, 1, 0).Request(context.Background(), nil, "image/png", "g", lang); err != nil {
		t.Fatal(err)
	}
	if want := BuildPrompt("g", "Japanese"); b.last.Prompt != want {
		t.Errorf("prompt not built for target language")
	}
}

func TestTransientHelpers(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	base := errors.New("x")
	wrapped := Transient(base)
	if !IsTransient(wrapped) || !errors.Is(wrapped, base) {
		t.Error("Transient lost its cause")
	}
	if IsTransient(base) {
		t.Error("plain error reported transient")
	}
	for _, s := range []string{"unexpected EOF", "i/o timeout", "stream error: RST_STREAM", "read: connection reset by peer"} {
		if !TransportRetriable(errors.New(s)) {
			t.Errorf("%q should be retriable", s)
		}
	}
	if TransportRetriable(errors.New("permission denied")) {
		t.Error("permission denied should not be retriable")
	}
	if !RetriableStatus(503) || RetriableStatus(401) {
		t.Error("status classification wrong")
	}
}
