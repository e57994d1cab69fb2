// Command toole runs one analysis for a local photo and writes the
// annotated image, narration audio and step list to a directory.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/steveyiyo/toole/internal/app"
	"github.com/steveyiyo/toole/internal/config"
	"github.com/steveyiyo/toole/internal/core/analysis"
	"github.com/steveyiyo/toole/internal/core/language"
	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/internal/repo/memory"
)

func main() {
	imagePath := cli.StringP("image", "i", "", "Photo of the device (JPEG, PNG or WebP)")
	goal := cli.StringP("goal", "g", analysis.DefaultGoal, "What you want to do")
	lang := cli.StringP("lang", "l", "English", "Target language, name or code")
	outDir := cli.StringP("out", "o", "toole-out", "Output directory")
	play := cli.BoolP("play", "p", false, "Play the narration when done")
	configFile := cli.StringP("config", "c", "", "Config file path")
	cli.Parse()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "usage: toole --image photo.jpg [--goal ...] [--lang ...]")
		cli.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Logging.Format = "text"
	logs := config.SetupLogging(cfg.Logging)
	defer logs.Close()

	if err := run(*imagePath, *goal, *lang, *outDir, *play, cfg); err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(imagePath, goal, langName, outDir string, play bool, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lang, err := language.Resolve(langName)
	if err != nil {
		return err
	}
	photo, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	res, err := a.Service.Analyze(ctx, photo, goal, lang)
	if err != nil {
		return err
	}
	if err := writeArtifacts(outDir, res); err != nil {
		return err
	}

	fmt.Println(res.Result.DeviceName)
	if res.Result.HasRisk() {
		fmt.Println("WARNING:", *res.Result.RiskAlert)
	}
	for _, l := range res.StepLines {
		fmt.Println(l)
	}
	fmt.Println("written to", outDir)

	if play && len(res.Audio) > 0 {
		return playAudio(res.Audio, res.AudioType)
	}
	return nil
}

// writeArtifacts stores annotated.<ext>, narration.<ext>, steps.txt and
// result.json under dir.
func writeArtifacts(dir string, a *memory.Analysis) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	imgExt := strings.TrimPrefix(a.ImageType, "image/")
	if err := os.WriteFile(filepath.Join(dir, "annotated."+imgExt), a.Image, 0o644); err != nil {
		return err
	}
	if len(a.Audio) > 0 {
		ext := "mp3"
		if a.AudioType == tts.ContentTypeWAV {
			ext = "wav"
		}
		if err := os.WriteFile(filepath.Join(dir, "narration."+ext), a.Audio, 0o644); err != nil {
			return err
		}
	}
	steps := strings.Join(append(append([]string{}, a.StepLines...), ""), "\n")
	if err := os.WriteFile(filepath.Join(dir, "steps.txt"), []byte(steps), 0o644); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(struct {
		Goal      string `json:"goal"`
		Language  string `json:"language"`
		Narration string `json:"narration"`
		Result    any    `json:"result"`
	}{a.Goal, a.Language.Name, a.Narration, a.Result}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "result.json"), raw, 0o644)
}
