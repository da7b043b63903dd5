// Package main はカメラの検出と取得を確認する診断コマンドです
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kaomiru/internal/camera"
	"kaomiru/internal/config"
	"kaomiru/internal/vision"
)

func main() {
	// コマンドラインオプション
	var (
		configFile = flag.String("config", "", "設定ファイル (YAML)")
		candidates = flag.String("candidates", "", "カメラ候補 (カンマ区切り、優先順)")
		list       = flag.Bool("list", false, "検出したデバイスを表示して終了")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("kaomiru probe")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  probe [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 検出したデバイスの一覧
	discovery := camera.NewLinuxDiscovery()
	devices, err := discovery.ScanDevices(ctx)
	if err != nil {
		log.Printf("デバイスの検出に失敗しました: %v", err)
	}
	fmt.Println("検出したデバイス:")
	for _, device := range devices {
		info, err := discovery.GetDeviceInfo(ctx, device)
		if err != nil {
			fmt.Printf("  %s (情報取得に失敗: %v)\n", device, err)
			continue
		}
		fmt.Printf("  %s: %s [%s] %s\n", info.Device, info.Name, info.Driver, strings.Join(info.Formats, ","))
	}
	if *list {
		return
	}

	// 候補の決定
	targets := cfg.CameraCandidates()
	if *candidates != "" {
		targets = camera.ParseCandidates(*candidates)
	}
	if cfg.Camera.AutoDiscover {
		targets = camera.MergeCandidates(targets, devices)
	}

	// 取得を試す
	acquirer := camera.NewAcquirer(vision.NewOpener(), cfg.CaptureSettings())
	device, err := acquirer.Acquire(ctx, targets)
	if err != nil {
		var unavailable *camera.DeviceUnavailableError
		if errors.As(err, &unavailable) {
			unavailable.Report(os.Stderr)
		} else {
			log.Printf("カメラの取得に失敗しました: %v", err)
		}
		os.Exit(1)
	}
	defer device.Close()

	fmt.Printf("\n%s を使用できます\n", device.Name())
	fmt.Println("カメラのプロパティ:")
	for _, p := range device.(*vision.Capture).Properties() {
		if p.Name == "FOURCC" {
			fmt.Printf("  %s: %s\n", p.Name, vision.FourCC(p.Value))
			continue
		}
		fmt.Printf("  %s: %v\n", p.Name, p.Value)
	}
}
