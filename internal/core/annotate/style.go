package annotate

import (
	"image/color"
	"strings"
)

// Style is the stroke and label-patch color chosen for a step.
type Style struct {
	Name  string
	Color color.NRGBA
}

var (
	Hazard = Style{Name: "hazard", Color: color.NRGBA{R: 0xFF, A: 0xFF}}
	Hold   = Style{Name: "hold", Color: color.NRGBA{R: 0xFF, G: 0xFF, A: 0xFF}}
	Rotate = Style{Name: "rotate", Color: color.NRGBA{G: 0xFF, B: 0xFF, A: 0xFF}}
	Tap    = Style{Name: "tap", Color: color.NRGBA{G: 0xFF, A: 0xFF}}
)

// StyleFor picks the style for one step. A flagged hazard wins over the
// step's own action so every box reads as "proceed with caution".
func StyleFor(riskPresent bool, action string) Style {
	a := strings.ToLower(action)
	switch {
	case riskPresent:
		return Hazard
	case strings.Contains(a, "hold"):
		return Hold
	case strings.Contains(a, "rotate"):
		return Rotate
	default:
		return Tap
	}
}

func isHold(action string) bool {
	return strings.Contains(strings.ToLower(action), "hold")
}
