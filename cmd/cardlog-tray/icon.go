package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// iconData draws the tray icon: a rounded badge with a magnetic stripe.
func iconData() []byte {
	const size = 32
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	body := color.NRGBA{R: 0x66, G: 0x7e, B: 0xea, A: 0xff}
	stripe := color.NRGBA{R: 0x22, G: 0x22, B: 0x33, A: 0xff}

	for y := 6; y < 26; y++ {
		for x := 2; x < 30; x++ {
			// clip the corners
			if (x == 2 || x == 29) && (y == 6 || y == 25) {
				continue
			}
			c := body
			if y >= 10 && y < 14 {
				c = stripe
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
