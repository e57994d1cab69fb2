package tts

import (
	"bytes"
	"context"

	"github.com/hajimehoshi/go-mp3"
)

const (
	ContentTypeMP3 = "audio/mpeg"
	ContentTypeWAV = "audio/wav"
)

// Audio is one synthesized narration.
type Audio struct {
	Data        []byte
	ContentType string
	DurationMs  int64
}

// Provider turns text into speech for a speech language code such as "en" or "zh-CN".
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, lang string) (*Audio, error)
}

// mp3DurationMs decodes the frame headers to measure playback length.
// It returns 0 when the stream cannot be decoded.
func mp3DurationMs(data []byte) int64 {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil || d.SampleRate() == 0 {
		return 0
	}
	// go-mp3 always emits 16-bit stereo: 4 bytes per sample frame.
	samples := d.Length() / 4
	return samples * 1000 / int64(d.SampleRate())
}
