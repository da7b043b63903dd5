package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// Source はフレームの読み込み元
type Source interface {
	Read(dst *gocv.Mat) error
}

// FaceDetector は画像から顔領域を検出する
type FaceDetector interface {
	Detect(img gocv.Mat) []image.Rectangle
}

// Pipeline は 読み込み → 検出 → 描画 → 表示 を1フレームずつ行う
type Pipeline struct {
	source   Source
	detector FaceDetector
	renderer Renderer
	label    string
	frame    gocv.Mat
}

// NewPipeline は新しいPipelineを作成する
func NewPipeline(source Source, detector FaceDetector, renderer Renderer, label string) *Pipeline {
	if renderer == nil {
		renderer = Headless{}
	}
	return &Pipeline{
		source:   source,
		detector: detector,
		renderer: renderer,
		label:    label,
		frame:    gocv.NewMat(),
	}
}

// Step は1フレームを処理し、検出した顔の数と終了要求の有無を返す
// 読み込みに失敗した場合は ErrFrameRead を返す（呼び出し側で次のフレームへ進む）
func (p *Pipeline) Step() (faces int, quit bool, err error) {
	if err := p.source.Read(&p.frame); err != nil {
		return 0, false, err
	}

	rects := p.detector.Detect(p.frame)
	Annotate(&p.frame, rects, p.label)

	return len(rects), p.renderer.Show(p.frame), nil
}

// Close は作業用のフレームとレンダラーを解放する
func (p *Pipeline) Close() error {
	_ = p.frame.Close()
	return p.renderer.Close()
}
