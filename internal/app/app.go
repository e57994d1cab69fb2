// Package app assembles the analysis pipeline from configuration. Both the
// server and the CLI start here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/steveyiyo/toole/internal/config"
	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/annotate"
	"github.com/steveyiyo/toole/internal/core/gemini"
	"github.com/steveyiyo/toole/internal/core/imageio"
	"github.com/steveyiyo/toole/internal/core/instruct"
	"github.com/steveyiyo/toole/internal/core/narration"
	"github.com/steveyiyo/toole/internal/core/ollama"
	"github.com/steveyiyo/toole/internal/core/openaivision"
	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/internal/repo/memory"
)

type App struct {
	Service *analysis.Service
	Speech  tts.Provider
	Repo    *memory.AnalysisRepo
}

// New builds the backend, speech provider, renderer and service. repo may
// be nil.
func New(ctx context.Context, cfg *config.Config, repo *memory.AnalysisRepo) (*App, error) {
	format, err := imageio.ParseFormat(cfg.Render.Format)
	if err != nil {
		return nil, err
	}

	var gc *genai.Client
	if cfg.Model.Backend == "gemini" {
		gc, err = gemini.NewGenAI(ctx, gemini.Options{
			APIKey:     cfg.Model.APIKey,
			APIVersion: cfg.Model.APIVersion,
			Timeout:    cfg.Model.Timeout,
		})
		if err != nil {
			return nil, err
		}
	}

	backend, err := newBackend(cfg.Model, gc)
	if err != nil {
		return nil, err
	}
	speech, err := newSpeech(cfg.TTS, gc)
	if err != nil {
		return nil, err
	}

	renderer := annotate.NewRenderer(annotate.Options{
		FontPath:    cfg.Render.FontPath,
		FontSize:    cfg.Render.FontSize,
		StrokeWidth: cfg.Render.StrokeWidth,
	})
	svc := analysis.NewService(
		repo,
		instruct.NewRequester(backend, cfg.Model.Attempts, cfg.Model.Backoff),
		renderer,
		narration.New(speech),
		analysis.Options{
			MaxImageSide: cfg.Model.MaxImageSide,
			JPEGQuality:  cfg.Model.JPEGQuality,
			Format:       format,
			Quality:      cfg.Render.Quality,
		},
	)
	return &App{Service: svc, Speech: speech, Repo: repo}, nil
}

func newBackend(m config.ModelConfig, gc *genai.Client) (instruct.Backend, error) {
	switch m.Backend {
	case "gemini":
		slog.Info("using Gemini backend", "model", modelOr(m.ID, gemini.DefaultModel))
		return gemini.New(gc, m.ID), nil
	case "openai":
		slog.Info("using OpenAI backend", "model", modelOr(m.ID, openaivision.DefaultModel), "base_url", m.BaseURL)
		return openaivision.New(openaivision.Options{
			APIKey:  m.APIKey,
			BaseURL: m.BaseURL,
			Model:   m.ID,
			Timeout: m.Timeout,
		})
	case "ollama":
		slog.Info("using Ollama backend", "model", modelOr(m.ID, ollama.DefaultModel), "url", modelOr(m.BaseURL, ollama.DefaultURL))
		return ollama.NewClient(m.BaseURL, m.ID, m.Timeout)
	}
	return nil, fmt.Errorf("unknown model backend %q", m.Backend)
}

func newSpeech(t config.TTSConfig, gc *genai.Client) (tts.Provider, error) {
	switch t.Backend {
	case "gtranslate", "":
		return tts.NewGoogleTranslate(t.BaseURL, t.Timeout), nil
	case "gemini":
		if gc == nil {
			return nil, fmt.Errorf("gemini speech needs the gemini model backend")
		}
		return tts.NewGeminiSpeech(gc, t.Model, t.Voice), nil
	case "none":
		slog.Info("speech synthesis disabled")
		return nil, nil
	}
	return nil, fmt.Errorf("unknown tts backend %q", t.Backend)
}

func modelOr(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
