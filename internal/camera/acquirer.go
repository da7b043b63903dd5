package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
)

// ErrDeviceUnavailable は全候補を試しても使えるカメラがなかったことを表す
var ErrDeviceUnavailable = errors.New("利用可能なカメラデバイスがありません")

// Attempt は1候補分の試行結果
type Attempt struct {
	Candidate Candidate
	Reason    string
}

// DeviceUnavailableError は診断情報付きの取得失敗エラー
type DeviceUnavailableError struct {
	Platform       string
	LibraryVersion string
	GoVersion      string
	Attempted      []Attempt
}

// Error はエラーメッセージを返す
func (e *DeviceUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Attempted))
	for _, a := range e.Attempted {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Candidate, a.Reason))
	}
	return fmt.Sprintf("%v: platform=%s library=%s go=%s attempted=[%s]",
		ErrDeviceUnavailable, e.Platform, e.LibraryVersion, e.GoVersion, strings.Join(parts, ", "))
}

// Is は errors.Is(err, ErrDeviceUnavailable) を成立させる
func (e *DeviceUnavailableError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

// Hints はオペレーター向けの確認事項を返す
func (e *DeviceUnavailableError) Hints() []string {
	return []string{
		"Webカメラが正しく接続されているか確認してください",
		"デバイスへのアクセス権限を確認してください (sudo usermod -a -G video $USER)",
		"v4l2-ctl --list-devices でデバイス一覧を確認してください",
	}
}

// Report はオペレーター向けの診断情報を書き出す
func (e *DeviceUnavailableError) Report(w io.Writer) {
	fmt.Fprintln(w, "エラー: カメラを初期化できませんでした。診断情報:")
	fmt.Fprintf(w, "  ライブラリ: %s\n", e.LibraryVersion)
	fmt.Fprintf(w, "  プラットフォーム: %s\n", e.Platform)
	fmt.Fprintf(w, "  Go: %s\n", e.GoVersion)
	for _, a := range e.Attempted {
		fmt.Fprintf(w, "  試行: %s (%s)\n", a.Candidate, a.Reason)
	}
	fmt.Fprintln(w, "確認事項:")
	for i, hint := range e.Hints() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, hint)
	}
}

// 試行失敗の理由
const (
	reasonNotFound   = "not found"
	reasonOpenFailed = "open failed"
	reasonNoFrame    = "no frame"
)

// Acquirer は候補リストからカメラを取得する
type Acquirer struct {
	opener   Opener
	settings Settings

	// stat はパス候補の存在確認に使う（テストで差し替え可能）
	stat func(name string) error
}

// NewAcquirer は新しいAcquirerを作成する
func NewAcquirer(opener Opener, settings Settings) *Acquirer {
	return &Acquirer{
		opener:   opener,
		settings: settings,
		stat: func(name string) error {
			_, err := os.Stat(name)
			return err
		},
	}
}

// Acquire は候補を先頭から順に試し、最初にテスト読み込みに成功したデバイスを返す
// 残りの候補は試さない。全候補が失敗した場合は *DeviceUnavailableError を返す
func (a *Acquirer) Acquire(ctx context.Context, candidates []Candidate) (Device, error) {
	attempted := make([]Attempt, 0, len(candidates))

	for _, candidate := range candidates {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if candidate.IsPath() {
			if err := a.stat(string(candidate)); err != nil {
				attempted = append(attempted, Attempt{Candidate: candidate, Reason: reasonNotFound})
				continue
			}
		}

		log.Printf("%s を試しています...", candidate)
		device, err := a.opener.Open(candidate)
		if err != nil {
			log.Printf("%s を開けませんでした: %v", candidate, err)
			attempted = append(attempted, Attempt{Candidate: candidate, Reason: reasonOpenFailed})
			continue
		}
		log.Printf("%s を開きました", candidate)

		device.Configure(a.settings)

		if !device.ReadLiveness() {
			log.Printf("%s からテストフレームを読み込めませんでした", candidate)
			if err := device.Close(); err != nil {
				log.Printf("%s の解放に失敗: %v", candidate, err)
			}
			attempted = append(attempted, Attempt{Candidate: candidate, Reason: reasonNoFrame})
			continue
		}

		log.Printf("%s からテストフレームを読み込みました", candidate)
		return device, nil
	}

	return nil, &DeviceUnavailableError{
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		LibraryVersion: a.opener.Version(),
		GoVersion:      runtime.Version(),
		Attempted:      attempted,
	}
}
