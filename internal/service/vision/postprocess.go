package vision

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"livedetect/internal/model"
	"livedetect/internal/service/frame"
	"livedetect/internal/service/inference"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Postprocessor decodes YOLO style output ([1, 4+classes, anchors], boxes as
// cx, cy, w, h in model input pixels) and draws the surviving boxes.
type Postprocessor struct {
	InputWidth  int
	InputHeight int
	Labels      []string
	Threshold   float32
	IoU         float32
}

// Postprocess draws detections on surface and returns them in surface
// coordinates.
func (p *Postprocessor) Postprocess(output inference.Tensor, elapsed time.Duration, surface *frame.Surface) ([]model.Detection, error) {
	boxes, err := p.decode(output)
	if err != nil {
		return nil, err
	}
	boxes = nonMaxSuppression(boxes, p.IoU)

	size := surface.Size()
	sx := float32(size.X) / float32(p.InputWidth)
	sy := float32(size.Y) / float32(p.InputHeight)

	detections := make([]model.Detection, 0, len(boxes))
	for _, b := range boxes {
		r := image.Rect(int(b.x1*sx), int(b.y1*sy), int(b.x2*sx), int(b.y2*sy)).Intersect(image.Rectangle{Max: size})
		if r.Empty() {
			continue
		}
		detections = append(detections, model.Detection{
			Label:      labelFor(p.Labels, b.class),
			Class:      b.class,
			Confidence: float64(b.score),
			Box:        r,
		})
	}

	surface.Draw(func(dc *gg.Context) {
		dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: 14}))
		for _, d := range detections {
			dc.SetColor(boxColor)
			dc.SetLineWidth(2)
			dc.DrawRectangle(float64(d.Box.Min.X), float64(d.Box.Min.Y), float64(d.Box.Dx()), float64(d.Box.Dy()))
			dc.Stroke()

			label := fmt.Sprintf("%s %.0f%%", d.Label, d.Confidence*100)
			w, h := dc.MeasureString(label)
			dc.DrawRectangle(float64(d.Box.Min.X), float64(d.Box.Min.Y)-h-4, w+6, h+4)
			dc.Fill()
			dc.SetColor(textColor)
			dc.DrawString(label, float64(d.Box.Min.X)+3, float64(d.Box.Min.Y)-3)
		}
		dc.SetColor(textColor)
		dc.DrawString(fmt.Sprintf("inference %dms", elapsed.Milliseconds()), 6, 18)
	})

	return detections, nil
}

func (p *Postprocessor) decode(output inference.Tensor) ([]box, error) {
	if len(output.Shape) != 3 || output.Shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", output.Shape)
	}
	channels, anchors := int(output.Shape[1]), int(output.Shape[2])
	classes := channels - 4
	if classes <= 0 || len(output.Data) < channels*anchors {
		return nil, fmt.Errorf("unexpected output shape %v", output.Shape)
	}

	at := func(c, a int) float32 { return output.Data[c*anchors+a] }
	var boxes []box
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, p.Threshold
		for c := 0; c < classes; c++ {
			if s := at(4+c, a); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 {
			continue
		}
		cx, cy, w, h := at(0, a), at(1, a), at(2, a), at(3, a)
		boxes = append(boxes, box{
			x1: cx - w/2, y1: cy - h/2,
			x2: cx + w/2, y2: cy + h/2,
			class: best,
			score: bestScore,
		})
	}
	return boxes, nil
}
