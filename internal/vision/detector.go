package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detector はHaar cascadeによる正面顔検出器
type Detector struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	gray         gocv.Mat
}

// NewDetector はcascadeファイルを読み込んで検出器を作成する
func NewDetector(cascade string, scaleFactor float64, minNeighbors int) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascade) {
		_ = classifier.Close()
		return nil, fmt.Errorf("cascadeファイルの読み込みに失敗: %s", cascade)
	}

	return &Detector{
		classifier:   classifier,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
		gray:         gocv.NewMat(),
	}, nil
}

// Detect はグレースケールに変換した画像から顔領域を検出する
// 複数の領域の順序は保証しない
func (d *Detector) Detect(img gocv.Mat) []image.Rectangle {
	gocv.CvtColor(img, &d.gray, gocv.ColorBGRToGray)
	return d.classifier.DetectMultiScaleWithParams(d.gray, d.scaleFactor, d.minNeighbors, 0, image.Point{}, image.Point{})
}

// Close は検出器を解放する
func (d *Detector) Close() error {
	_ = d.gray.Close()
	return d.classifier.Close()
}
