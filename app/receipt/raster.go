package receipt

import (
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

// rasterQRSize is the rendered QR side length in pixels. 168px fits centered
// on 80mm paper (384 dots at 203 DPI) with comfortable quiet zones.
const rasterQRSize = 168

// rasterQR renders the verification payload as a QR image and encodes it as
// a GS v 0 raster bitmap, for printers without native GS ( k QR support.
func rasterQR(payload string) ([]byte, error) {
	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("generating QR code: %w", err)
	}
	qr.DisableBorder = false
	return rasterBitmap(qr.Image(rasterQRSize)), nil
}

// rasterBitmap converts img to the GS v 0 raster command:
// GS v 0 m xL xH yL yH d1..dk, one bit per pixel, dark pixels set.
func rasterBitmap(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	widthBytes := (width + 7) / 8

	out := make([]byte, 0, 8+widthBytes*height)
	out = append(out, GS, 'v', '0', 0,
		byte(widthBytes%256), byte(widthBytes/256),
		byte(height%256), byte(height/256))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 8 {
			var b byte
			for bit := 0; bit < 8; bit++ {
				px := x + bit
				if px >= width {
					continue
				}
				r, g, bl, _ := img.At(bounds.Min.X+px, bounds.Min.Y+y).RGBA()
				gray := (299*(r>>8) + 587*(g>>8) + 114*(bl>>8)) / 1000
				if gray < 128 {
					b |= 0x80 >> bit
				}
			}
			out = append(out, b)
		}
	}
	return out
}
