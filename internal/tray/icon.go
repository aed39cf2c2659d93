package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const iconSize = 22

// icon draws the menu bar template icon: four bars of decreasing length,
// black on transparent so macOS can tint it.
func icon() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	for i, width := range []int{18, 14, 10, 6} {
		y0 := 3 + i*5
		for y := y0; y < y0+3; y++ {
			for x := 2; x < 2+width; x++ {
				img.Set(x, y, color.NRGBA{A: 0xff})
			}
		}
	}
	var buf bytes.Buffer
	// Encoding an in-memory NRGBA image cannot fail.
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
