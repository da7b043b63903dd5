package vision

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"kaomiru/internal/camera"
)

// ErrFrameRead はデバイス取得後の一時的なフレーム読み込み失敗を表す
var ErrFrameRead = errors.New("フレームの読み込みに失敗")

// Opener は gocv.VideoCapture でカメラを開く camera.Opener 実装
type Opener struct{}

// NewOpener は新しいOpenerを作成する
func NewOpener() *Opener {
	return &Opener{}
}

// Open は候補のデバイスを開く。数値の候補はインデックスとして扱う
func (o *Opener) Open(candidate camera.Candidate) (camera.Device, error) {
	var source interface{} = string(candidate)
	if index, ok := candidate.Index(); ok {
		source = index
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("%s のオープンに失敗: %w", candidate, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%s を開けません", candidate)
	}

	return &Capture{name: string(candidate), vc: vc}, nil
}

// Version はOpenCVとgocvのバージョンを返す
func (o *Opener) Version() string {
	return fmt.Sprintf("OpenCV %s (gocv %s)", gocv.OpenCVVersion(), gocv.Version())
}

// Capture は開かれたキャプチャデバイス
type Capture struct {
	name string
	vc   *gocv.VideoCapture

	closeOnce sync.Once
	closeErr  error
}

// Name はデバイスを開いた候補を返す
func (c *Capture) Name() string {
	return c.name
}

// Configure は希望設定を適用する。非対応の値はデバイス側で無視される
func (c *Capture) Configure(settings camera.Settings) {
	if len(settings.Format) == 4 {
		c.vc.Set(gocv.VideoCaptureFOURCC, float64(c.vc.ToCodec(settings.Format)))
	}
	if settings.Width > 0 {
		c.vc.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	}
	if settings.Height > 0 {
		c.vc.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	}
	if settings.FPS > 0 {
		c.vc.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	}
}

// ReadLiveness はテストフレームを1枚読み込む
func (c *Capture) ReadLiveness() bool {
	img := gocv.NewMat()
	defer img.Close()
	return c.vc.Read(&img) && !img.Empty()
}

// Read は次のフレームを dst に読み込む
func (c *Capture) Read(dst *gocv.Mat) error {
	if ok := c.vc.Read(dst); !ok || dst.Empty() {
		return ErrFrameRead
	}
	return nil
}

// Property はキャプチャプロパティの名前と現在値
type Property struct {
	Name  string
	Value float64
}

var reportedProperties = []struct {
	prop gocv.VideoCaptureProperties
	name string
}{
	{gocv.VideoCaptureFrameWidth, "Width"},
	{gocv.VideoCaptureFrameHeight, "Height"},
	{gocv.VideoCaptureFPS, "FPS"},
	{gocv.VideoCaptureFOURCC, "FOURCC"},
	{gocv.VideoCaptureBrightness, "Brightness"},
	{gocv.VideoCaptureContrast, "Contrast"},
	{gocv.VideoCaptureSaturation, "Saturation"},
	{gocv.VideoCaptureHue, "Hue"},
	{gocv.VideoCaptureGain, "Gain"},
	{gocv.VideoCaptureExposure, "Exposure"},
}

// Properties はデバイスが実際に採用した設定値を返す
func (c *Capture) Properties() []Property {
	props := make([]Property, 0, len(reportedProperties))
	for _, p := range reportedProperties {
		props = append(props, Property{Name: p.name, Value: c.vc.Get(p.prop)})
	}
	return props
}

// FourCC はFOURCCプロパティの数値を文字列に変換する
func FourCC(value float64) string {
	code := uint32(value)
	b := []byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)}
	for _, ch := range b {
		if ch < 0x20 || ch > 0x7e {
			return fmt.Sprintf("0x%08x", code)
		}
	}
	return string(b)
}

// Close はデバイスを解放する。2回目以降の呼び出しは最初の結果を返す
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.vc.Close()
	})
	return c.closeErr
}
