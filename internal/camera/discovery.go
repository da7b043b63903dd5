package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	videoDevicePattern = regexp.MustCompile(`^/dev/video(\d+)$`)
	formatLinePattern  = regexp.MustCompile(`\[\d+\]:\s*'(\w+)'`)
)

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct {
	// pattern は検出対象のグロブパターン
	pattern string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{pattern: "/dev/video*"}
}

// ScanDevices はシステム内の利用可能なカメラデバイスを番号順に返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.IsDeviceAvailable(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが存在し、読み取り可能なV4L2デバイスかチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !videoDevicePattern.MatchString(device) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// GetDeviceInfo は v4l2-ctl を使ってデバイスの詳細情報を取得する
// v4l2-ctl が使えない場合はデバイス番号から名前を生成する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	info := &DeviceInfo{Device: device}

	if out, err := runV4L2Ctl(ctx, device, "--info"); err == nil {
		info.Name, info.Driver = parseV4L2Info(out)
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	if out, err := runV4L2Ctl(ctx, device, "--list-formats"); err == nil {
		info.Formats = parseV4L2Formats(out)
	}

	return info, nil
}

// runV4L2Ctl は v4l2-ctl を5秒のタイムアウト付きで実行する
func runV4L2Ctl(ctx context.Context, device string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", append([]string{"--device", device}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("v4l2-ctl の実行に失敗: %w", err)
	}
	return string(output), nil
}

// parseV4L2Info は v4l2-ctl --info の出力からカード名とドライバー名を抽出する
func parseV4L2Info(output string) (name, driver string) {
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Card type":
			if name == "" {
				name = value
			}
		case "Driver name":
			if driver == "" {
				driver = value
			}
		}
	}
	return name, driver
}

// parseV4L2Formats は v4l2-ctl --list-formats の出力からFOURCCを抽出する
func parseV4L2Formats(output string) []string {
	var formats []string
	for _, m := range formatLinePattern.FindAllStringSubmatch(output, -1) {
		formats = append(formats, m[1])
	}
	return formats
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoDevicePattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MergeCandidates は設定された候補の順序を保ったまま、未登録の検出済みデバイスを末尾に追加する
func MergeCandidates(configured []Candidate, discovered []string) []Candidate {
	seen := make(map[Candidate]bool, len(configured))
	merged := make([]Candidate, 0, len(configured)+len(discovered))

	for _, c := range configured {
		if seen[c] {
			continue
		}
		seen[c] = true
		merged = append(merged, c)
	}
	for _, d := range discovered {
		c := Candidate(d)
		if seen[c] {
			continue
		}
		seen[c] = true
		merged = append(merged, c)
	}
	return merged
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []string
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	return &MockDiscovery{devices: devices}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	return m.devices, nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	for _, d := range m.devices {
		if d == device {
			return true
		}
	}
	return false
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !m.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}
	return &DeviceInfo{
		Device:  device,
		Name:    fmt.Sprintf("テストカメラ %d", extractDeviceNumber(device)),
		Driver:  "mock",
		Formats: []string{"MJPG", "YUYV"},
	}, nil
}
