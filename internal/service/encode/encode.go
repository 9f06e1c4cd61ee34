// Package encode turns rendered surfaces into JPEG bytes with OpenCV.
package encode

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// JPEG encodes RGBA images as JPEG at the given quality (1-100).
type JPEG struct {
	Quality int
}

func (e JPEG) Encode(img *image.RGBA) ([]byte, error) {
	size := img.Rect.Size()
	if size.X == 0 || size.Y == 0 {
		return nil, fmt.Errorf("cannot encode empty image")
	}

	mat, err := gocv.NewMatFromBytes(size.Y, size.X, gocv.MatTypeCV8UC3, toBGR(img))
	if err != nil {
		return nil, fmt.Errorf("failed to create mat: %w", err)
	}
	defer mat.Close()

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// toBGR drops alpha and swaps to OpenCV channel order. Transparent pixels end
// up black.
func toBGR(img *image.RGBA) []byte {
	size := img.Rect.Size()
	out := make([]byte, 0, size.X*size.Y*3)
	for y := 0; y < size.Y; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+size.X*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x+2], row[x+1], row[x])
		}
	}
	return out
}
