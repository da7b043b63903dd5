package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kaomiru/internal/action"
	"kaomiru/internal/camera"
	"kaomiru/internal/config"
	"kaomiru/internal/notify"
	"kaomiru/internal/presence"
	"kaomiru/internal/server"
	"kaomiru/internal/session"
	"kaomiru/internal/vision"
)

func main() {
	os.Exit(run())
}

// run はアプリケーションを実行し、終了コードを返す
// 0: 正常終了（シグナルまたは終了キー）、1: カメラ取得失敗・初期化失敗
func run() int {
	var (
		configFile = flag.String("config", "", "設定ファイル (YAML)")
		candidates = flag.String("candidates", "", "カメラ候補 (カンマ区切り、優先順)")
		cascade    = flag.String("cascade", "", "Haar cascade のXMLファイル")
		headless   = flag.Bool("headless", false, "映像を表示しない")
		noAction   = flag.Bool("no-action", false, "外部コマンドを起動しない")
		serve      = flag.Bool("server", false, "ステータスHTTPサーバーを起動する")
		port       = flag.Int("port", 0, "ステータスHTTPサーバーのポート")
		debug      = flag.Bool("debug", false, "デバッグログを有効にする")
	)
	flag.Parse()

	// 設定を読み込む
	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Printf("設定の読み込みに失敗しました: %v", err)
		return 1
	}

	// コマンドラインオプションで設定を上書き
	if *candidates != "" {
		cfg.Camera.Candidates = cfg.Camera.Candidates[:0]
		for _, c := range camera.ParseCandidates(*candidates) {
			cfg.Camera.Candidates = append(cfg.Camera.Candidates, string(c))
		}
	}
	if *cascade != "" {
		cfg.Detector.Cascade = *cascade
	}
	if *headless {
		cfg.Display.Enabled = false
	}
	if *noAction {
		cfg.Action.Enabled = false
	}
	if *serve {
		cfg.Server.Enabled = true
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	cfg.Debug = cfg.Debug || *debug
	if err := cfg.Validate(); err != nil {
		log.Printf("設定が不正です: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// カメラを取得
	device, err := acquire(ctx, cfg)
	if err != nil {
		var unavailable *camera.DeviceUnavailableError
		if errors.As(err, &unavailable) {
			unavailable.Report(os.Stderr)
		} else {
			log.Printf("カメラの取得に失敗しました: %v", err)
		}
		return 1
	}
	capture := device.(*vision.Capture)
	logProperties(capture)

	// 顔検出器を準備
	detector, err := vision.NewDetector(cfg.Detector.Cascade, cfg.Detector.ScaleFactor, cfg.Detector.MinNeighbors)
	if err != nil {
		log.Printf("顔検出器の初期化に失敗しました: %v", err)
		_ = device.Close()
		return 1
	}
	defer detector.Close()

	var renderer vision.Renderer = vision.Headless{}
	if cfg.Display.Enabled {
		renderer = vision.NewWindow(cfg.Display.Window, cfg.Camera.Width, cfg.Camera.Height, cfg.Display.QuitKey[0])
	}
	pipeline := vision.NewPipeline(capture, detector, renderer, cfg.Detector.Label)

	var actuator session.Actuator = action.Nop{}
	if cfg.Action.Enabled {
		actuator = action.NewDispatcher(action.NewProcess(cfg.Action.Command, cfg.Action.Argument, cfg.Action.GracePeriod))
	}

	opts := []session.Option{
		session.WithDebug(cfg.Debug),
		session.WithShutdownTimeout(cfg.Action.GracePeriod + 5*time.Second),
	}

	hub := server.NewHub()
	if cfg.Server.Enabled {
		opts = append(opts, session.WithSinks(hub))
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := notify.Connect(notify.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			// 配信できなくても検出は続ける
			log.Printf("MQTTを使わずに続行します: %v", err)
		} else {
			defer publisher.Close()
			opts = append(opts, session.WithSinks(publisher))
		}
	}

	gate := presence.NewGate(cfg.Presence.PresentThreshold, cfg.Presence.AbsentThreshold)
	sess := session.New(device, pipeline, gate, actuator, opts...)

	// ステータスサーバーを起動
	serverDone := make(chan struct{})
	serverCtx, stopServer := context.WithCancel(context.Background())
	if cfg.Server.Enabled {
		srv := server.New(cfg, sess, hub)
		go func() {
			defer close(serverDone)
			if err := srv.Start(serverCtx); err != nil {
				log.Printf("サーバーエラー: %v", err)
			}
		}()
	} else {
		close(serverDone)
	}

	if err := sess.Run(ctx); err != nil {
		// 後始末の失敗で終了を妨げない
		log.Printf("後始末でエラーが発生しました: %v", err)
	}

	stopServer()
	<-serverDone
	return 0
}

// loadConfig は設定ファイルが指定されていればそれを、なければデフォルト設定を読み込む
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// acquire は候補リストからカメラを取得する
func acquire(ctx context.Context, cfg *config.Config) (camera.Device, error) {
	candidates := cfg.CameraCandidates()
	if cfg.Camera.AutoDiscover {
		discovered, err := camera.NewLinuxDiscovery().ScanDevices(ctx)
		if err != nil {
			log.Printf("デバイスの検出に失敗しました: %v", err)
		}
		candidates = camera.MergeCandidates(candidates, discovered)
	}

	log.Println("カメラを初期化しています...")
	return camera.NewAcquirer(vision.NewOpener(), cfg.CaptureSettings()).Acquire(ctx, candidates)
}

// logProperties はデバイスが実際に採用した設定を出力する
func logProperties(capture *vision.Capture) {
	log.Println("カメラのプロパティ:")
	for _, p := range capture.Properties() {
		if p.Name == "FOURCC" {
			log.Printf("  %s: %s", p.Name, vision.FourCC(p.Value))
			continue
		}
		log.Printf("  %s: %v", p.Name, p.Value)
	}
}
