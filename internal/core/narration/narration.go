// Package narration turns an instruction result into the spoken script.
package narration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steveyiyo/toole/internal/core/tts"
	"github.com/steveyiyo/toole/pkg/types"
)

type Narration struct {
	Script string
	Audio  *tts.Audio
}

// Compose builds the script: device, optional warning, then every step in
// order.
func Compose(res *types.InstructionResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s. ", res.DeviceName)
	if res.HasRisk() {
		fmt.Fprintf(&b, "Warning: %s. ", *res.RiskAlert)
	}
	b.WriteString("Instructions: ")
	for _, s := range res.Steps {
		fmt.Fprintf(&b, "Step %d: %s. ", s.Order, s.Text)
	}
	return b.String()
}

type Composer struct {
	provider tts.Provider
}

// New returns a composer; a nil provider yields script-only narrations.
func New(p tts.Provider) *Composer { return &Composer{provider: p} }

// Narrate composes the script and synthesizes it. Speech failure is not an
// error: the script is still returned without audio.
func (c *Composer) Narrate(ctx context.Context, res *types.InstructionResult, lang types.Language) *Narration {
	n := &Narration{Script: Compose(res)}
	if c.provider == nil || n.Script == "" {
		return n
	}
	audio, err := c.provider.Synthesize(ctx, n.Script, lang.SpeechCode)
	if err != nil {
		slog.Warn("speech synthesis failed", "provider", c.provider.Name(), "lang", lang.SpeechCode, "error", err)
		return n
	}
	n.Audio = audio
	return n
}
