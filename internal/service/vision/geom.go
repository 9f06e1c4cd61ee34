package vision

import (
	"sort"

	"github.com/chewxy/math32"
)

// box is a detection box in model input coordinates.
type box struct {
	x1, y1, x2, y2 float32
	class          int
	score          float32
}

func (b box) area() float32 {
	return math32.Max(0, b.x2-b.x1) * math32.Max(0, b.y2-b.y1)
}

func (b box) iou(o box) float32 {
	ix := math32.Max(0, math32.Min(b.x2, o.x2)-math32.Max(b.x1, o.x1))
	iy := math32.Max(0, math32.Min(b.y2, o.y2)-math32.Max(b.y1, o.y1))
	inter := ix * iy
	union := b.area() + o.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// nonMaxSuppression keeps the best scoring box of each overlapping group of the
// same class.
func nonMaxSuppression(boxes []box, maxIoU float32) []box {
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].score > boxes[j].score })
	kept := make([]box, 0, len(boxes))
	for _, b := range boxes {
		keep := true
		for _, k := range kept {
			if k.class == b.class && k.iou(b) > maxIoU {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, b)
		}
	}
	return kept
}
