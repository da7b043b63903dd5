package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kaomiru/internal/camera"
	"kaomiru/internal/presence"
)

// recorder は後始末の呼び出し順を記録する
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type mockDevice struct {
	rec      *recorder
	closeErr error
}

func (d *mockDevice) Name() string { return "/dev/video2" }

func (d *mockDevice) Configure(camera.Settings) {}

func (d *mockDevice) ReadLiveness() bool { return true }

func (d *mockDevice) Close() error {
	d.rec.add("device")
	return d.closeErr
}

// frame はスクリプト化された1フレーム分の結果
type frame struct {
	faces int
	quit  bool
	err   error
}

// scriptedStepper は決められた順にフレーム結果を返す
// スクリプトを使い切った後は onExhausted を呼び、顔なしのフレームを返し続ける
type scriptedStepper struct {
	rec         *recorder
	frames      []frame
	pos         int
	onExhausted func()
}

func (s *scriptedStepper) Step() (int, bool, error) {
	if s.pos >= len(s.frames) {
		if s.onExhausted != nil {
			s.onExhausted()
			s.onExhausted = nil
		}
		time.Sleep(time.Millisecond)
		return 0, false, nil
	}
	f := s.frames[s.pos]
	s.pos++
	return f.faces, f.quit, f.err
}

func (s *scriptedStepper) Close() error {
	s.rec.add("stepper")
	return nil
}

type mockActuator struct {
	rec      *recorder
	mu       sync.Mutex
	signals  []presence.Signal
	closeErr error
}

func (a *mockActuator) Submit(sig presence.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signals = append(a.signals, sig)
}

func (a *mockActuator) Close(context.Context) error {
	a.rec.add("actuator")
	return a.closeErr
}

type mockSink struct {
	events []Event
}

func (m *mockSink) Publish(e Event) { m.events = append(m.events, e) }

func faces(n, count int) []frame {
	out := make([]frame, count)
	for i := range out {
		out[i] = frame{faces: n}
	}
	return out
}

func TestSession_RunEmitsSignalsAndQuits(t *testing.T) {
	rec := &recorder{}
	// 5フレーム目で Start、読み込み失敗を1回挟み、その後10フレーム目で Stop
	script := faces(1, 5)
	script = append(script, frame{err: errors.New("read")})
	script = append(script, faces(0, 10)...)
	script = append(script, frame{faces: 2, quit: true})

	stepper := &scriptedStepper{rec: rec, frames: script}
	actuator := &mockActuator{rec: rec}
	sink := &mockSink{}

	s := New(&mockDevice{rec: rec}, stepper, presence.NewGate(5, 10), actuator, WithSinks(sink))
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(actuator.signals) != 2 || actuator.signals[0] != presence.Start || actuator.signals[1] != presence.Stop {
		t.Errorf("Expected [start stop], got %v", actuator.signals)
	}

	if len(sink.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(sink.events))
	}
	if sink.events[0].Signal != "start" || sink.events[0].Frame != 5 || sink.events[0].Session != s.ID() {
		t.Errorf("Unexpected start event: %+v", sink.events[0])
	}
	if sink.events[1].Signal != "stop" || sink.events[1].Frame != 15 {
		t.Errorf("Unexpected stop event: %+v", sink.events[1])
	}

	st := s.Status()
	if st.Running {
		t.Error("Expected session not to be running after Run returns")
	}
	if st.Frames != 16 || st.ReadFailures != 1 || st.Starts != 1 || st.Stops != 1 || st.LastFaces != 2 {
		t.Errorf("Unexpected status: %+v", st)
	}
	if st.Device != "/dev/video2" || st.StartedAt.IsZero() {
		t.Errorf("Unexpected status metadata: %+v", st)
	}

	calls := rec.list()
	want := []string{"device", "stepper", "actuator"}
	if len(calls) != len(want) {
		t.Fatalf("Expected teardown %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Expected teardown %v, got %v", want, calls)
			break
		}
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stepper := &scriptedStepper{rec: rec, frames: faces(1, 5), onExhausted: cancel}
	actuator := &mockActuator{rec: rec}

	s := New(&mockDevice{rec: rec}, stepper, presence.NewGate(5, 10), actuator)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if len(actuator.signals) != 1 || actuator.signals[0] != presence.Start {
		t.Errorf("Expected a single start, got %v", actuator.signals)
	}
	if calls := rec.list(); len(calls) != 3 || calls[2] != "actuator" {
		t.Errorf("Expected actuator to be stopped last, got %v", calls)
	}
}

func TestSession_TeardownContinuesAfterFailures(t *testing.T) {
	rec := &recorder{}
	deviceErr := errors.New("release failed")
	actuatorErr := errors.New("kill failed")

	stepper := &scriptedStepper{rec: rec, frames: []frame{{quit: true}}}
	actuator := &mockActuator{rec: rec, closeErr: actuatorErr}

	s := New(&mockDevice{rec: rec, closeErr: deviceErr}, stepper, presence.NewGate(5, 10), actuator)
	err := s.Run(context.Background())
	if !errors.Is(err, deviceErr) || !errors.Is(err, actuatorErr) {
		t.Errorf("Expected both teardown errors, got %v", err)
	}
	if calls := rec.list(); len(calls) != 3 {
		t.Errorf("Expected all teardown steps to run, got %v", calls)
	}
}

func TestSession_RunOnlyOnce(t *testing.T) {
	rec := &recorder{}
	stepper := &scriptedStepper{rec: rec, frames: []frame{{quit: true}}}
	s := New(&mockDevice{rec: rec}, stepper, presence.NewGate(5, 10), &mockActuator{rec: rec})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("Expected error on second Run")
	}
}

func TestNew_Options(t *testing.T) {
	rec := &recorder{}
	s := New(&mockDevice{rec: rec}, &scriptedStepper{rec: rec}, presence.NewGate(5, 10), &mockActuator{rec: rec},
		WithDebug(true), WithShutdownTimeout(time.Second), WithShutdownTimeout(0))

	if !s.debug {
		t.Error("Expected debug to be enabled")
	}
	if s.shutdownTimeout != time.Second {
		t.Errorf("Expected shutdown timeout 1s, got %v", s.shutdownTimeout)
	}
	if s.ID() == "" || s.Status().ID != s.ID() {
		t.Error("Expected session ID to be set")
	}
}
