// Package session はカメラ1台分の 取得済みデバイス・在席判定・外部アクション を所有し、
// フレームループを駆動する
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"kaomiru/internal/camera"
	"kaomiru/internal/presence"
)

// DefaultShutdownTimeout は外部アクション停止を待つ最大時間
// 猶予期間（5秒）後の強制終了まで含めて収まる長さにする
const DefaultShutdownTimeout = 10 * time.Second

// Stepper は1フレーム分の 読み込み・検出・描画・表示 を行う
type Stepper interface {
	// Step は検出した顔の数と終了要求の有無を返す
	// エラーは一時的な読み込み失敗として扱われる
	Step() (faces int, quit bool, err error)
}

// Actuator はシグナルに応じて外部アクションを起動・停止する
type Actuator interface {
	// Submit はブロックせずに要求を受け付ける
	Submit(sig presence.Signal)

	// Close は外部アクションを停止する
	Close(ctx context.Context) error
}

// EventSink は在席イベントの配信先。Publish はブロックしてはならない
type EventSink interface {
	Publish(event Event)
}

// Event は在席状態の変化
type Event struct {
	Session string    `json:"session"`
	Device  string    `json:"device"`
	Signal  string    `json:"signal"`
	Frame   uint64    `json:"frame"`
	Faces   int       `json:"faces"`
	At      time.Time `json:"at"`
}

// Status はセッションの状態のスナップショット
type Status struct {
	ID           string         `json:"id"`
	Device       string         `json:"device"`
	Running      bool           `json:"running"`
	StartedAt    time.Time      `json:"started_at"`
	Frames       uint64         `json:"frames"`
	ReadFailures uint64         `json:"read_failures"`
	LastFaces    int            `json:"last_faces"`
	Starts       int            `json:"starts"`
	Stops        int            `json:"stops"`
	Presence     presence.State `json:"presence"`
}

// Option はSessionの任意設定
type Option func(*Session)

// WithSinks はイベント配信先を追加する
func WithSinks(sinks ...EventSink) Option {
	return func(s *Session) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithDebug はフレームごとのデバッグログを有効にする
func WithDebug(debug bool) Option {
	return func(s *Session) {
		s.debug = debug
	}
}

// WithShutdownTimeout は外部アクション停止の待ち時間を設定する
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Session はデバイスと在席状態を所有するフレームループ
type Session struct {
	id              string
	device          camera.Device
	stepper         Stepper
	gate            *presence.Gate
	actuator        Actuator
	sinks           []EventSink
	debug           bool
	shutdownTimeout time.Duration

	mu     sync.RWMutex
	status Status
	ran    bool
}

// New は新しいSessionを作成する。device の所有権は Session に移る
func New(device camera.Device, stepper Stepper, gate *presence.Gate, actuator Actuator, opts ...Option) *Session {
	s := &Session{
		id:              uuid.NewString(),
		device:          device,
		stepper:         stepper,
		gate:            gate,
		actuator:        actuator,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status = Status{
		ID:       s.id,
		Device:   device.Name(),
		Presence: gate.State(),
	}
	return s
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// Status は現在の状態を返す
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run はコンテキストがキャンセルされるか終了が要求されるまでフレームループを回す
// 終了時は ループ停止 → デバイス解放 → 外部アクション停止 の順に後始末する
// 1つのSessionにつき1回だけ呼び出せる
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return errors.New("セッションは既に実行済みです")
	}
	s.ran = true
	s.status.Running = true
	s.status.StartedAt = time.Now()
	s.mu.Unlock()

	log.Printf("セッションを開始します (id=%s, device=%s)", s.id, s.device.Name())

	s.loop(ctx)

	s.mu.Lock()
	s.status.Running = false
	s.mu.Unlock()

	return s.shutdown()
}

// loop はフレームループ本体
func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("停止要求を受信しました")
			return
		default:
		}

		faces, quit, err := s.stepper.Step()
		if err != nil {
			s.mu.Lock()
			s.status.ReadFailures++
			s.mu.Unlock()
			s.debugf("フレームをスキップします: %v", err)
			continue
		}

		sig := s.gate.Observe(faces > 0)
		frame := s.record(faces, sig)

		if sig != presence.None {
			log.Printf("在席状態が変化しました: %s (frame=%d, faces=%d)", sig, frame, faces)
			s.actuator.Submit(sig)
			s.publish(Event{
				Session: s.id,
				Device:  s.device.Name(),
				Signal:  sig.String(),
				Frame:   frame,
				Faces:   faces,
				At:      time.Now(),
			})
		}
		s.debugf("frame=%d faces=%d state=%+v", frame, faces, s.gate.State())

		if quit {
			log.Println("終了キーが押されました")
			return
		}
	}
}

// record はフレームの処理結果を状態に反映し、フレーム番号を返す
func (s *Session) record(faces int, sig presence.Signal) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Frames++
	s.status.LastFaces = faces
	s.status.Presence = s.gate.State()
	switch sig {
	case presence.Start:
		s.status.Starts++
	case presence.Stop:
		s.status.Stops++
	}
	return s.status.Frames
}

func (s *Session) publish(event Event) {
	for _, sink := range s.sinks {
		sink.Publish(event)
	}
}

// shutdown はデバイスを解放してから外部アクションを停止する
// どの段階で失敗しても残りの後始末は続ける
func (s *Session) shutdown() error {
	var errs []error

	if err := s.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("デバイスの解放に失敗: %w", err))
	}
	if closer, ok := s.stepper.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("表示の終了に失敗: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.actuator.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("外部アクションの停止に失敗: %w", err))
	}

	log.Printf("セッションを終了しました (id=%s)", s.id)
	return errors.Join(errs...)
}

func (s *Session) debugf(format string, args ...interface{}) {
	if s.debug {
		log.Printf("DEBUG: "+format, args...)
	}
}
