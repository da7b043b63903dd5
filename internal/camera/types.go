package camera

import (
	"context"
	"strconv"
	"strings"
)

// Candidate は取得を試みるカメラの識別子（デバイスパスまたはインデックス）
type Candidate string

// IsPath は候補がファイルシステム上のパスかどうかを返す
func (c Candidate) IsPath() bool {
	return strings.HasPrefix(string(c), "/")
}

// Index は候補が数値インデックスの場合にその値を返す
func (c Candidate) Index() (int, bool) {
	n, err := strconv.Atoi(string(c))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseCandidates はカンマ区切りの文字列を候補リストに変換する
// 空要素は無視し、順序は保持する
func ParseCandidates(s string) []Candidate {
	var candidates []Candidate
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		candidates = append(candidates, Candidate(part))
	}
	return candidates
}

// Settings はキャプチャの希望設定（ベストエフォートで適用される）
type Settings struct {
	Width  int    // 画像幅
	Height int    // 画像高さ
	FPS    int    // フレームレート
	Format string // ピクセルフォーマット（FOURCC、例: MJPG）
}

// Device は開かれたキャプチャデバイス
// 呼び出し側が排他的に所有し、Close はちょうど1回呼ぶ
type Device interface {
	// Name はデバイスを開いた候補を返す
	Name() string

	// Configure は設定を適用する。デバイスが無視しても失敗にはならない
	Configure(settings Settings)

	// ReadLiveness はテスト読み込みを1回行い、フレームが得られたかを返す
	ReadLiveness() bool

	// Close はデバイスを解放する
	Close() error
}

// Opener は候補からデバイスを開く
type Opener interface {
	Open(candidate Candidate) (Device, error)

	// Version は下位のキャプチャライブラリのバージョンを返す
	Version() string
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   // デバイスパス
	Name    string   // デバイス名
	Driver  string   // ドライバー名
	Formats []string // サポートされるフォーマット
}
