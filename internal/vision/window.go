package vision

import "gocv.io/x/gocv"

// Renderer は注釈付きフレームを表示する
type Renderer interface {
	// Show はフレームを表示し、終了が要求されたかを返す
	Show(img gocv.Mat) (quit bool)
	Close() error
}

// Window はOpenCVのウィンドウに映像を表示する
type Window struct {
	window  *gocv.Window
	quitKey int
}

// NewWindow は新しいウィンドウを作成する
func NewWindow(name string, width, height int, quitKey byte) *Window {
	w := gocv.NewWindow(name)
	if width > 0 && height > 0 {
		w.ResizeWindow(width, height)
	}
	return &Window{window: w, quitKey: int(quitKey)}
}

// Show はフレームを表示し、終了キーが押されたかを返す
func (w *Window) Show(img gocv.Mat) bool {
	w.window.IMShow(img)
	return w.window.WaitKey(1)&0xFF == w.quitKey
}

// Close はウィンドウを閉じる
func (w *Window) Close() error {
	return w.window.Close()
}

// Headless は表示を行わない Renderer 実装
type Headless struct{}

// Show は何も表示しない
func (Headless) Show(gocv.Mat) bool { return false }

// Close は何もしない
func (Headless) Close() error { return nil }
