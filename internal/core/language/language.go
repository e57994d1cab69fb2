package language

import (
	"errors"
	"strings"

	"github.com/steveyiyo/toole/pkg/types"
)

var ErrUnsupported = errors.New("unsupported language")

// Default is used when a request names no language.
var Default = types.Language{Name: "English", SpeechCode: "en"}

var supported = []types.Language{
	Default,
	{Name: "Hindi", SpeechCode: "hi"},
	{Name: "Tamil", SpeechCode: "ta"},
	{Name: "Telugu", SpeechCode: "te"},
	{Name: "French", SpeechCode: "fr"},
	{Name: "Russian", SpeechCode: "ru"},
	{Name: "Japanese", SpeechCode: "ja"},
	{Name: "Chinese", SpeechCode: "zh-CN"},
}

// All returns the supported languages in display order.
func All() []types.Language {
	out := make([]types.Language, len(supported))
	copy(out, supported)
	return out
}

// Resolve looks a language up by display name or speech code, ignoring case.
// An empty string resolves to Default.
func Resolve(s string) (types.Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Default, nil
	}
	for _, l := range supported {
		if strings.EqualFold(l.Name, s) || strings.EqualFold(l.SpeechCode, s) {
			return l, nil
		}
	}
	return types.Language{}, ErrUnsupported
}
