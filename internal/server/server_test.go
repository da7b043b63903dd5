package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kaomiru/internal/config"
	"kaomiru/internal/presence"
	"kaomiru/internal/session"
)

// fixedStatus はテスト用のStatusProvider実装
type fixedStatus struct {
	status session.Status
}

func (f fixedStatus) Status() session.Status { return f.status }

func newTestServer(t *testing.T) (*Server, *Hub, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Enabled = true
	cfg.Server.Host = "127.0.0.1"

	hub := NewHub()
	status := fixedStatus{status: session.Status{
		ID:       "test-session",
		Device:   "/dev/video2",
		Running:  true,
		Frames:   42,
		Starts:   1,
		Presence: presence.State{ConsecutivePresent: 7, Active: true},
	}}

	srv := New(cfg, status, hub)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})
	return srv, hub, ts
}

// TestServerEndpoints はサーバーのエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	_, _, ts := newTestServer(t)

	testCases := []struct {
		path        string
		contentType string
		contains    string
	}{
		{path: "/health", contentType: "application/json", contains: `"status":"healthy"`},
		{path: "/api/status", contentType: "application/json", contains: `"id":"test-session"`},
		{path: "/", contentType: "text/html", contains: "kaomiru"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			if err != nil {
				t.Fatalf("リクエストに失敗しました: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("期待されるステータスコード 200, 実際: %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, tc.contentType) {
				t.Errorf("期待されるContent-Type %s, 実際: %s", tc.contentType, ct)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("レスポンスの読み込みに失敗しました: %v", err)
			}
			if !strings.Contains(string(body), tc.contains) {
				t.Errorf("レスポンスに %s が含まれていません: %s", tc.contains, body)
			}
		})
	}
}

// TestServerStatusJSON はステータスのJSON構造をテストする
func TestServerStatusJSON(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("リクエストに失敗しました: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Session    session.Status `json:"session"`
		Thresholds struct {
			Present int `json:"present"`
			Absent  int `json:"absent"`
		} `json:"thresholds"`
		Subscribers int `json:"subscribers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("JSONのデコードに失敗しました: %v", err)
	}

	if body.Session.Frames != 42 || !body.Session.Presence.Active || body.Session.Presence.ConsecutivePresent != 7 {
		t.Errorf("セッション状態が想定と異なります: %+v", body.Session)
	}
	if body.Thresholds.Present != 5 || body.Thresholds.Absent != 10 {
		t.Errorf("しきい値が想定と異なります: %+v", body.Thresholds)
	}
}

// TestServerEvents はWebSocketでのイベント配信をテストする
func TestServerEvents(t *testing.T) {
	_, hub, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗しました: %v", err)
	}
	defer conn.Close()

	// 登録されるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("クライアントが登録されませんでした")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(session.Event{Session: "test-session", Signal: "start", Frame: 5, Faces: 1, At: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event session.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("イベントの受信に失敗しました: %v", err)
	}
	if event.Signal != "start" || event.Frame != 5 || event.Session != "test-session" {
		t.Errorf("受信したイベントが想定と異なります: %+v", event)
	}

	// 切断するとクライアントが解除される
	_ = conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("切断したクライアントが解除されませんでした")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ランダムポートを使用

	srv := New(cfg, fixedStatus{}, NewHub())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestHubDropsForSlowClient は送信キューが溢れてもPublishがブロックしないことをテストする
func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{id: "slow", send: make(chan []byte, 1)}
	hub.register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(session.Event{Signal: "start"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish がブロックしました")
	}
	if len(c.send) != 1 {
		t.Errorf("送信キューには1件だけ残るはずです: %d", len(c.send))
	}

	hub.CloseAll()
	if hub.Count() != 0 {
		t.Error("CloseAll 後にクライアントが残っています")
	}
}
