package instruct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyiyo/toole/pkg/types"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = time.Second
)

// Request is one multimodal call: a prompt plus a single encoded image.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// Backend sends a request to a hosted model and returns its raw text reply.
// Implementations wrap retryable failures with Transient.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Requester asks a Backend for device instructions with a bounded retry.
type Requester struct {
	backend  Backend
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func NewRequester(b Backend, attempts int, backoff time.Duration) *Requester {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	return &Requester{
		backend:  b,
		attempts: attempts,
		backoff:  backoff,
		log:      slog.With("component", "instruct", "backend", b.Name()),
	}
}

func (r *Requester) Backend() string { return r.backend.Name() }

// Request runs the model for one image and goal. Transient backend errors
// and unparseable replies are retried after a fixed delay; any other error
// is returned at once.
func (r *Requester) Request(ctx context.Context, img []byte, mime, goal string, lang types.Language) (*types.InstructionResult, error) {
	req := Request{Prompt: BuildPrompt(goal, lang.Name), Image: img, MIMEType: mime}

	var lastErr error
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}
		start := time.Now()
		raw, err := r.backend.Generate(ctx, req)
		if err != nil {
			if !IsTransient(err) {
				return nil, fmt.Errorf("%s: %w", r.backend.Name(), err)
			}
			r.log.Warn("model call failed, retrying", "attempt", i+1, "error", err)
			lastErr = err
			continue
		}
		res, err := Parse(raw)
		if err != nil {
			r.log.Warn("unparseable reply", "attempt", i+1, "error", err, "bytes", len(raw))
			lastErr = err
			continue
		}
		r.log.Info("instructions received",
			"attempt", i+1,
			"device", res.DeviceName,
			"risk", res.HasRisk(),
			"steps", len(res.Steps),
			"elapsed", time.Since(start))
		return res, nil
	}
	if errors.Is(lastErr, ErrBadResponse) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", ErrBusy, lastErr)
}
