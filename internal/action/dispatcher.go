package action

import (
	"context"
	"log"

	"kaomiru/internal/presence"
)

// Runner は起動・停止できる外部アクション
type Runner interface {
	Start() error
	Stop() error
	Running() bool
}

// Dispatcher はフレームループから受け取ったシグナルをバックグラウンドで処理する
// 起動・停止の待ち時間がキャプチャを止めないようにするためのもの
type Dispatcher struct {
	runner   Runner
	requests chan presence.Signal // 容量1。未処理の要求は最新のものに置き換える
	done     chan struct{}
}

// NewDispatcher は新しいDispatcherを作成し、処理ゴルーチンを開始する
func NewDispatcher(runner Runner) *Dispatcher {
	d := &Dispatcher{
		runner:   runner,
		requests: make(chan presence.Signal, 1),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Submit はシグナルを処理キューに入れる。ブロックしない
// None は無視する
func (d *Dispatcher) Submit(sig presence.Signal) {
	if sig == presence.None {
		return
	}
	for {
		select {
		case d.requests <- sig:
			return
		default:
		}
		// 未処理の要求を捨てて最新の要求で置き換える
		select {
		case old := <-d.requests:
			log.Printf("未処理の要求 %s を %s で置き換えます", old, sig)
		default:
		}
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for sig := range d.requests {
		d.apply(sig)
	}
}

// apply は要求を反映する。既に望む状態であれば何もしない
func (d *Dispatcher) apply(sig presence.Signal) {
	switch sig {
	case presence.Start:
		if d.runner.Running() {
			return
		}
		if err := d.runner.Start(); err != nil {
			log.Printf("外部アクションの起動に失敗: %v", err)
		}
	case presence.Stop:
		if !d.runner.Running() {
			return
		}
		if err := d.runner.Stop(); err != nil {
			log.Printf("外部アクションの停止に失敗: %v", err)
		}
	}
}

// Close は受付を終了し、処理中の要求を待ってから外部アクションを停止する
// 以降 Submit を呼んではならない
func (d *Dispatcher) Close(ctx context.Context) error {
	close(d.requests)

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !d.runner.Running() {
		return nil
	}
	stopped := make(chan error, 1)
	go func() {
		stopped <- d.runner.Stop()
	}()
	select {
	case err := <-stopped:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop は外部アクションが無効な場合に使う何もしない実装
type Nop struct{}

// Submit は何もしない
func (Nop) Submit(presence.Signal) {}

// Close は何もしない
func (Nop) Close(context.Context) error { return nil }
