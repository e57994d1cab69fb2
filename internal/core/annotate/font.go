package annotate

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

const (
	handGlyph        = '✋'
	holdMarker       = "✋"
	holdMarkerNoHand = "H"
)

// loadFace opens a TrueType/OpenType font. The bool reports whether the
// face can draw the hand glyph.
func loadFace(path string, size float64) (font.Face, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, false, fmt.Errorf("face %s: %w", path, err)
	}
	idx, err := f.GlyphIndex(&sfnt.Buffer{}, handGlyph)
	return face, err == nil && idx != 0, nil
}

func fallbackFace() font.Face {
	return basicfont.Face7x13
}
