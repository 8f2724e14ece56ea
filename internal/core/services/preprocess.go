package services

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"

	"leaf-disease-service/internal/core/domain"
)

type Layout string

const (
	// LayoutNHWC is [1, size, size, 3].
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is [1, 3, size, size].
	LayoutNCHW Layout = "nchw"
)

const channels = 3

// InputShape returns the tensor shape Preprocess produces.
func InputShape(size int, layout Layout) []int64 {
	s := int64(size)
	if layout == LayoutNCHW {
		return []int64{1, channels, s, s}
	}
	return []int64{1, s, s, channels}
}

// Preprocess converts img to RGB, resizes it to size x size and scales every
// channel to [0,1]. The returned slice always holds 3*size*size values.
func Preprocess(img image.Image, size int, layout Layout) ([]float32, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image bounds %v", domain.ErrInvalidImage, b)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	rb := resized.Bounds()

	plane := size * size
	data := make([]float32, channels*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			// Un-premultiply, then drop alpha.
			c := color.NRGBAModel.Convert(resized.At(rb.Min.X+x, rb.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			g := float32(c.G) / 255.0
			bl := float32(c.B) / 255.0

			p := y*size + x
			if layout == LayoutNCHW {
				data[p] = r
				data[plane+p] = g
				data[2*plane+p] = bl
			} else {
				data[channels*p] = r
				data[channels*p+1] = g
				data[channels*p+2] = bl
			}
		}
	}

	return data, nil
}
