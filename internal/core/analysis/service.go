// Package analysis runs the full pipeline for one photo: model request,
// annotation, narration and artifact encoding.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/toole/internal/core/annotate"
	"github.com/steveyiyo/toole/internal/core/imageio"
	"github.com/steveyiyo/toole/internal/core/narration"
	"github.com/steveyiyo/toole/internal/repo/memory"
	"github.com/steveyiyo/toole/pkg/types"
)

const DefaultGoal = "How do I use this?"

var (
	ErrBadImage = errors.New("bad image")
	ErrModel    = errors.New("model request failed")
)

// Requester is the model side of the pipeline.
type Requester interface {
	Backend() string
	Request(ctx context.Context, img []byte, mime, goal string, lang types.Language) (*types.InstructionResult, error)
}

type Options struct {
	MaxImageSide int
	JPEGQuality  int
	Format       imageio.Format
	Quality      int
}

type Service struct {
	Repo     *memory.AnalysisRepo
	req      Requester
	renderer *annotate.Renderer
	narrator *narration.Composer
	opts     Options
}

// NewService wires the pipeline. repo may be nil when results are not kept.
func NewService(repo *memory.AnalysisRepo, req Requester, r *annotate.Renderer, n *narration.Composer, opts Options) *Service {
	if opts.Format == "" {
		opts.Format = imageio.PNG
	}
	return &Service{Repo: repo, req: req, renderer: r, narrator: n, opts: opts}
}

func (s *Service) Backend() string { return s.req.Backend() }

// Analyze runs one interaction end to end. Model failures are returned;
// speech failures only drop the audio.
func (s *Service) Analyze(ctx context.Context, photo []byte, goal string, lang types.Language) (*memory.Analysis, error) {
	start := time.Now()
	if goal == "" {
		goal = DefaultGoal
	}
	img, err := imageio.Decode(photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	payload, mime, err := imageio.PrepareForModel(img, s.opts.MaxImageSide, s.opts.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	res, err := s.req.Request(ctx, payload, mime, goal, lang)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	annotated := s.renderer.Render(img, res)
	out, err := imageio.EncodeBytes(annotated, s.opts.Format, s.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}

	nar := s.narrator.Narrate(ctx, res, lang)

	lines := make([]string, len(res.Steps))
	for i, st := range res.Steps {
		lines[i] = st.Line()
	}
	b := annotated.Bounds()
	a := &memory.Analysis{
		ID:        "an_" + uuid.NewString(),
		CreatedAt: time.Now(),
		Language:  lang,
		Goal:      goal,
		Result:    res,
		StepLines: lines,
		Narration: nar.Script,
		Image:     out,
		ImageType: s.opts.Format.ContentType(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
	if nar.Audio != nil {
		a.Audio = nar.Audio.Data
		a.AudioType = nar.Audio.ContentType
		a.DurationMs = nar.Audio.DurationMs
	}
	if s.Repo != nil {
		s.Repo.Save(a)
	}
	slog.Info("analysis complete",
		"id", a.ID,
		"device", res.DeviceName,
		"steps", len(res.Steps),
		"lang", lang.SpeechCode,
		"audio", a.Audio != nil,
		"elapsed", time.Since(start))
	return a, nil
}
