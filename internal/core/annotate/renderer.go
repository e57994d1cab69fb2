// Package annotate draws the model's step boxes onto the user's photo.
package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/steveyiyo/toole/pkg/types"
)

const (
	DefaultFontPath    = "arial.ttf"
	DefaultFontSize    = 20
	DefaultStrokeWidth = 5

	labelPad = 5
)

type Options struct {
	FontPath    string
	FontSize    float64
	StrokeWidth int
}

// Renderer is safe for concurrent use; text drawing is serialized because
// font faces keep internal buffers.
type Renderer struct {
	mu     sync.Mutex
	face   font.Face
	marker string
	stroke int
}

// NewRenderer loads the label font, falling back to the built-in face when
// the font cannot be loaded.
func NewRenderer(opts Options) *Renderer {
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultFontSize
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = DefaultStrokeWidth
	}
	r := &Renderer{face: fallbackFace(), marker: holdMarkerNoHand, stroke: opts.StrokeWidth}
	if opts.FontPath == "" {
		return r
	}
	face, hasHand, err := loadFace(opts.FontPath, opts.FontSize)
	if err != nil {
		slog.Warn("label font unavailable, using built-in face", "path", opts.FontPath, "error", err)
		return r
	}
	r.face = face
	if hasHand {
		r.marker = holdMarker
	}
	return r
}

// Rect is a box in pixel space, before rounding.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// MapBox scales a 0-1000 normalized box onto an image of the given size.
func MapBox(b types.Box, width, height int) Rect {
	w, h := float64(width), float64(height)
	return Rect{
		Left:   float64(b.XMin()) / 1000 * w,
		Top:    float64(b.YMin()) / 1000 * h,
		Right:  float64(b.XMax()) / 1000 * w,
		Bottom: float64(b.YMax()) / 1000 * h,
	}
}

// Pixels rounds the rectangle to whole pixels with corners ordered, so an
// inverted box draws as the same rectangle with its corners swapped.
func (r Rect) Pixels() (x0, y0, x1, y1 int) {
	x0, x1 = round(r.Left), round(r.Right)
	y0, y1 = round(r.Top), round(r.Bottom)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return
}

// Label is the text drawn next to a step's box.
func (r *Renderer) Label(s types.Step) string {
	l := strconv.Itoa(s.Order)
	if isHold(s.ActionType) {
		l += " " + r.marker
	}
	return l
}

// Render returns an annotated copy of src; src itself is left untouched.
func (r *Renderer) Render(src image.Image, res *types.InstructionResult) *image.NRGBA {
	dst := imaging.Clone(src)
	r.Draw(dst, res)
	return dst
}

// Draw annotates dst in place and returns how many boxes were drawn. Steps
// without a usable box are skipped.
func (r *Renderer) Draw(dst *image.NRGBA, res *types.InstructionResult) int {
	if res == nil {
		return 0
	}
	b := dst.Bounds()
	risk := res.HasRisk()
	drawn := 0
	for _, s := range res.Steps {
		if s.Box == nil {
			slog.Debug("step has no box, skipping", "order", s.Order)
			continue
		}
		style := StyleFor(risk, s.ActionType)
		x0, y0, x1, y1 := MapBox(*s.Box, b.Dx(), b.Dy()).Pixels()
		x0, y0, x1, y1 = x0+b.Min.X, y0+b.Min.Y, x1+b.Min.X, y1+b.Min.Y
		r.strokeRect(dst, x0, y0, x1, y1, style.Color)
		r.drawLabel(dst, x0, y0, r.Label(s), style.Color)
		drawn++
	}
	return drawn
}

// strokeRect outlines [x0,x1]x[y0,y1] inclusive, growing the stroke inward.
func (r *Renderer) strokeRect(dst *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	w := r.stroke
	fill(dst, image.Rect(x0, y0, x1+1, min(y0+w, y1+1)), c)
	fill(dst, image.Rect(x0, max(y1-w+1, y0), x1+1, y1+1), c)
	fill(dst, image.Rect(x0, y0, min(x0+w, x1+1), y1+1), c)
	fill(dst, image.Rect(max(x1-w+1, x0), y0, x1+1, y1+1), c)
}

// drawLabel puts the label on a solid patch just above (x, y), clamped so
// the patch never leaves the top of the canvas.
func (r *Renderer) drawLabel(dst *image.NRGBA, x, y int, label string, c color.NRGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tb, _ := font.BoundString(r.face, label)
	tw := (tb.Max.X - tb.Min.X).Ceil()
	th := (tb.Max.Y - tb.Min.Y).Ceil()

	top := max(dst.Bounds().Min.Y, y-th-2*labelPad)
	fill(dst, image.Rect(x, top, x+tw+2*labelPad, top+th+2*labelPad), c)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: r.face,
		Dot: fixed.Point26_6{
			X: fixed.I(x+labelPad) - tb.Min.X,
			Y: fixed.I(top+labelPad) - tb.Min.Y,
		},
	}
	d.DrawString(label)
}

func fill(dst draw.Image, rect image.Rectangle, c color.NRGBA) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func round(v float64) int {
	return int(math.Round(v))
}
