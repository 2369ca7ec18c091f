package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// WritePreviewTIFF writes an 8-bit grayscale TIFF rendering of the raster,
// linearly stretched between the valid minimum and maximum. No-data samples
// render as 0. The preview is for quick inspection only; the ASCII grid is
// the authoritative output (it preserves float samples and no-data exactly).
func WritePreviewTIFF(path string, r *Raster) error {
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if !r.Valid(col, row) {
				continue
			}
			v := r.At(col, row)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	img := image.NewGray(image.Rect(0, 0, r.Cols, r.Rows))
	scale := 0.0
	if hi > lo {
		scale = 254.0 / (hi - lo)
	}
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			if !r.Valid(col, row) {
				continue
			}
			// Valid samples occupy 1..255 so 0 stays reserved for no-data.
			g := uint8(1 + math.Round((r.At(col, row)-lo)*scale))
			img.SetGray(col, row, color.Gray{Y: g})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating preview: %w", err)
	}
	opts := &tiff.Options{Compression: tiff.Deflate}
	if err := tiff.Encode(f, img, opts); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
