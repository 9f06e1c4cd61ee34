package vision

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
)

// Preprocessor turns the surface into a 1x3xHxW float32 tensor scaled to [0,1].
type Preprocessor struct {
	Width  int
	Height int
}

func (p *Preprocessor) Preprocess(surface *frame.Surface) (inference.Tensor, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return inference.Tensor{}, fmt.Errorf("invalid model input size %dx%d", p.Width, p.Height)
	}
	src := surface.Snapshot()
	if src.Rect.Empty() {
		return inference.Tensor{}, fmt.Errorf("surface is empty")
	}
	return ImageToTensor(src, p.Width, p.Height), nil
}

// ImageToTensor resizes img to width x height and lays it out planar RGB.
func ImageToTensor(img image.Image, width, height int) inference.Tensor {
	resized := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := width * height
	data := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < width; x++ {
			i := y*width + x
			data[i] = float32(row[x*4]) / 255
			data[plane+i] = float32(row[x*4+1]) / 255
			data[2*plane+i] = float32(row[x*4+2]) / 255
		}
	}
	return inference.Tensor{
		Shape: []int64{1, 3, int64(height), int64(width)},
		Data:  data,
	}
}
