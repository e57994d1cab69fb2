package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
	"google.golang.org/genai"
)

const (
	DefaultGeminiSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultGeminiVoice       = "Kore"

	geminiSampleRate = 24000
)

type speechGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSpeech uses Gemini native audio output. The model returns raw 16-bit
// mono PCM at 24 kHz which is wrapped into WAV.
type GeminiSpeech struct {
	models speechGenerator
	model  string
	voice  string
}

func NewGeminiSpeech(c *genai.Client, model, voice string) *GeminiSpeech {
	if model == "" {
		model = DefaultGeminiSpeechModel
	}
	if voice == "" {
		voice = DefaultGeminiVoice
	}
	return &GeminiSpeech{models: c.Models, model: model, voice: voice}
}

func (g *GeminiSpeech) Name() string { return "gemini" }

func (g *GeminiSpeech) Synthesize(ctx context.Context, text, lang string) (*Audio, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: lang,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	pcm := audioPart(resp)
	if len(pcm) == 0 {
		return nil, errors.New("no audio in response")
	}
	data, err := pcmToWAV(pcm, geminiSampleRate)
	if err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	return &Audio{
		Data:        data,
		ContentType: ContentTypeWAV,
		DurationMs:  int64(len(pcm)/2) * 1000 / geminiSampleRate,
	}, nil
}

func audioPart(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}

// pcmToWAV wraps little-endian 16-bit mono PCM.
func pcmToWAV(pcm []byte, rate int) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.Reader())
}
