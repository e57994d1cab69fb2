package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/steveyiyo/toole/internal/core/tts"
)

// playAudio decodes the narration and blocks until playback ends.
func playAudio(data []byte, contentType string) error {
	streamer, format, err := decodeAudio(data, contentType)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

func decodeAudio(data []byte, contentType string) (beep.StreamSeekCloser, beep.Format, error) {
	switch contentType {
	case tts.ContentTypeMP3:
		return mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case tts.ContentTypeWAV:
		return wav.Decode(bytes.NewReader(data))
	}
	return nil, beep.Format{}, fmt.Errorf("cannot play %q", contentType)
}
