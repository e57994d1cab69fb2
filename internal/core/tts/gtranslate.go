package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTranslateBase = "https://translate.google.com"
	maxChunkRunes        = 100
)

// GoogleTranslate speaks through the public translate_tts endpoint and
// returns MP3.
type GoogleTranslate struct {
	Base string
	hc   *http.Client
}

func NewGoogleTranslate(base string, timeout time.Duration) *GoogleTranslate {
	if base == "" {
		base = DefaultTranslateBase
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GoogleTranslate{
		Base: strings.TrimSuffix(base, "/"),
		hc:   &http.Client{Timeout: timeout},
	}
}

func (g *GoogleTranslate) Name() string { return "gtranslate" }

func (g *GoogleTranslate) Synthesize(ctx context.Context, text, lang string) (*Audio, error) {
	chunks := splitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, errors.New("empty text")
	}
	var buf bytes.Buffer
	for i, c := range chunks {
		data, err := g.fetch(ctx, c, lang, i, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		buf.Write(data)
	}
	out := buf.Bytes()
	return &Audio{Data: out, ContentType: ContentTypeMP3, DurationMs: mp3DurationMs(out)}, nil
}

func (g *GoogleTranslate) fetch(ctx context.Context, chunk, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Base+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (toole)")
	req.Header.Set("Referer", g.Base+"/")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty audio")
	}
	return data, nil
}

// splitText cuts text into pieces of at most max runes, preferring to break
// after punctuation, then at whitespace, and only mid-word as a last resort.
func splitText(text string, max int) []string {
	var out []string
	rest := []rune(strings.TrimSpace(text))
	for len(rest) > 0 {
		if len(rest) <= max {
			out = appendChunk(out, string(rest))
			break
		}
		cut := -1
		for i := max - 1; i > 0; i-- {
			if isSentenceBreak(rest[i]) {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			for i := max; i > 0; i-- {
				if unicode.IsSpace(rest[i]) {
					cut = i
					break
				}
			}
		}
		if cut < 0 {
			cut = max
		}
		out = appendChunk(out, string(rest[:cut]))
		rest = []rune(strings.TrimLeftFunc(string(rest[cut:]), unicode.IsSpace))
	}
	return out
}

func appendChunk(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	return append(out, s)
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '।', '。', '、', '，', '！', '？':
		return true
	}
	return false
}
