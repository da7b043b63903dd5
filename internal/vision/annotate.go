package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// 矩形とラベルの色（BGR表示で青）
var boxColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}

// Annotate は検出した顔を矩形で囲み、上にラベルを描く
func Annotate(img *gocv.Mat, rects []image.Rectangle, label string) {
	for _, r := range rects {
		gocv.Rectangle(img, r, boxColor, 2)
		if label != "" {
			gocv.PutText(img, label, image.Pt(r.Min.X, r.Min.Y-10), gocv.FontHersheySimplex, 0.9, boxColor, 2)
		}
	}
}
