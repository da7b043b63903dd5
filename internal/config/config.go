package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kaomiru/internal/action"
	"kaomiru/internal/camera"
	"kaomiru/internal/presence"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Presence PresenceConfig `yaml:"presence"`
	Action   ActionConfig   `yaml:"action"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Debug    bool           `yaml:"debug"`
}

// CameraConfig はカメラ取得の設定
type CameraConfig struct {
	// 優先順位の高い順に並べたデバイスパスまたはインデックス
	Candidates []string `yaml:"candidates"`

	// 検出した /dev/video* を候補の末尾に追加するか
	AutoDiscover bool `yaml:"auto_discover"`

	Width  int    `yaml:"width"`  // 画像幅
	Height int    `yaml:"height"` // 画像高さ
	FPS    int    `yaml:"fps"`    // フレームレート (fps)
	Format string `yaml:"format"` // FOURCC
}

// DetectorConfig は顔検出器の設定
type DetectorConfig struct {
	Cascade      string  `yaml:"cascade"`       // Haar cascade のXMLファイル
	ScaleFactor  float64 `yaml:"scale_factor"`  // 探索窓の拡大率
	MinNeighbors int     `yaml:"min_neighbors"` // 採用に必要な近傍矩形数
	Label        string  `yaml:"label"`         // 矩形の上に描くラベル
}

// PresenceConfig は在席判定のしきい値（フレーム数）
type PresenceConfig struct {
	PresentThreshold int `yaml:"present_threshold"`
	AbsentThreshold  int `yaml:"absent_threshold"`
}

// ActionConfig は在席時に起動する外部コマンドの設定
type ActionConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Command     []string      `yaml:"command"`      // 実行ファイルと引数
	Argument    string        `yaml:"argument"`     // 末尾に付与するファイルパス
	GracePeriod time.Duration `yaml:"grace_period"` // 強制終了までの猶予
}

// DisplayConfig は映像表示の設定
type DisplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Window  string `yaml:"window"`   // ウィンドウ名
	QuitKey string `yaml:"quit_key"` // 終了キー
}

// ServerConfig はステータスHTTPサーバーの設定
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"` // リッスンするホスト
	Port    int    `yaml:"port"` // リッスンするポート番号

	ReadTimeout time.Duration `yaml:"read_timeout"` // 読み込みタイムアウト
}

// MQTTConfig は在席イベントの配信先
// Broker が空の場合は配信しない
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Candidates: []string{"/dev/video2", "/dev/video3", "/dev/video1", "/dev/video0"},
			Width:      640,
			Height:     480,
			FPS:        30,
			Format:     "MJPG",
		},
		Detector: DetectorConfig{
			Cascade:      "haarcascade_frontalface_default.xml",
			ScaleFactor:  1.1,
			MinNeighbors: 4,
			Label:        "Face",
		},
		Presence: PresenceConfig{
			PresentThreshold: presence.DefaultPresentThreshold,
			AbsentThreshold:  presence.DefaultAbsentThreshold,
		},
		Action: ActionConfig{
			Enabled:     true,
			Command:     []string{"sudo", "python3", "gif-viewer.py"},
			Argument:    "1.gif",
			GracePeriod: action.DefaultGracePeriod,
		},
		Display: DisplayConfig{
			Enabled: true,
			Window:  "Camera Feed",
			QuitKey: "q",
		},
		Server: ServerConfig{
			Enabled:     false,
			Host:        "0.0.0.0",
			Port:        8080,
			ReadTimeout: 10 * time.Second,
		},
		MQTT: MQTTConfig{
			Topic: "kaomiru/presence",
		},
	}
}

// Load はデフォルト設定に環境変数を反映して読み込む
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

// LoadFile はYAMLファイルをデフォルト設定に重ね、環境変数を反映して読み込む
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	if v := os.Getenv("CAMERA_CANDIDATES"); v != "" {
		c.Camera.Candidates = c.Camera.Candidates[:0]
		for _, candidate := range camera.ParseCandidates(v) {
			c.Camera.Candidates = append(c.Camera.Candidates, string(candidate))
		}
	}
	c.Detector.Cascade = getEnvOrDefault("CASCADE_FILE", c.Detector.Cascade)
	c.Action.Argument = getEnvOrDefault("ACTION_ARGUMENT", c.Action.Argument)
	c.Presence.PresentThreshold = getEnvAsIntOrDefault("PRESENT_THRESHOLD", c.Presence.PresentThreshold)
	c.Presence.AbsentThreshold = getEnvAsIntOrDefault("ABSENT_THRESHOLD", c.Presence.AbsentThreshold)
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.MQTT.Broker = getEnvOrDefault("MQTT_BROKER", c.MQTT.Broker)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if len(c.Camera.Candidates) == 0 && !c.Camera.AutoDiscover {
		return fmt.Errorf("カメラ候補が設定されていません")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS)
	}
	if len(c.Camera.Format) != 4 {
		return fmt.Errorf("無効なピクセルフォーマット: %q", c.Camera.Format)
	}

	if c.Detector.Cascade == "" {
		return fmt.Errorf("cascadeファイルが設定されていません")
	}
	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("無効なscale_factor: %v", c.Detector.ScaleFactor)
	}
	if c.Detector.MinNeighbors < 0 {
		return fmt.Errorf("無効なmin_neighbors: %d", c.Detector.MinNeighbors)
	}

	if c.Presence.PresentThreshold < 1 || c.Presence.AbsentThreshold < 1 {
		return fmt.Errorf("無効なしきい値: present=%d absent=%d",
			c.Presence.PresentThreshold, c.Presence.AbsentThreshold)
	}

	if c.Action.Enabled {
		if len(c.Action.Command) == 0 || c.Action.Command[0] == "" {
			return fmt.Errorf("外部コマンドが設定されていません")
		}
		if c.Action.GracePeriod <= 0 {
			return fmt.Errorf("無効な猶予期間: %v", c.Action.GracePeriod)
		}
	}

	if c.Display.Enabled && len(c.Display.QuitKey) != 1 {
		return fmt.Errorf("終了キーは1文字で指定してください: %q", c.Display.QuitKey)
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTTトピックが設定されていません")
	}

	return nil
}

// CameraCandidates は候補を camera.Candidate として返す
func (c *Config) CameraCandidates() []camera.Candidate {
	candidates := make([]camera.Candidate, 0, len(c.Camera.Candidates))
	for _, s := range c.Camera.Candidates {
		candidates = append(candidates, camera.Candidate(strings.TrimSpace(s)))
	}
	return candidates
}

// CaptureSettings はキャプチャの希望設定を返す
func (c *Config) CaptureSettings() camera.Settings {
	return camera.Settings{
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
		Format: c.Camera.Format,
	}
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合や不正な場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
