// Package presence は顔の連続検出・連続未検出をもとに外部アクションの開始・停止を判定する
//
// フレームごとに Observe を1回呼び出し、返された Signal に応じて呼び出し側が
// 外部アクションを起動・停止する。Gate 自体は副作用を持たない。
package presence

import "fmt"

// Signal は Observe が返すエッジトリガーの判定結果
type Signal int

const (
	None  Signal = iota // 状態変化なし
	Start               // 非アクティブからアクティブへ遷移した
	Stop                // アクティブから非アクティブへ遷移した
)

// String はシグナル名を返す
func (s Signal) String() string {
	switch s {
	case None:
		return "none"
	case Start:
		return "start"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// デフォルトのしきい値（フレーム数）
const (
	DefaultPresentThreshold = 5
	DefaultAbsentThreshold  = 10
)

// State はゲートの内部カウンタのスナップショット
type State struct {
	ConsecutivePresent int  `json:"consecutive_present"`
	ConsecutiveAbsent  int  `json:"consecutive_absent"`
	Active             bool `json:"active"`
}

// Gate は連続フレーム数によるヒステリシス判定を行う
// 並行利用は想定していない（フレームループからのみ呼び出す）
type Gate struct {
	presentThreshold int
	absentThreshold  int
	state            State
}

// NewGate は新しいGateを作成する
// しきい値が1未満の場合は1として扱う
func NewGate(presentThreshold, absentThreshold int) *Gate {
	if presentThreshold < 1 {
		presentThreshold = 1
	}
	if absentThreshold < 1 {
		absentThreshold = 1
	}
	return &Gate{
		presentThreshold: presentThreshold,
		absentThreshold:  absentThreshold,
	}
}

// Observe は1フレーム分の検出結果を取り込み、しきい値を跨いだ瞬間だけ Start/Stop を返す
func (g *Gate) Observe(facePresent bool) Signal {
	if facePresent {
		g.state.ConsecutivePresent++
		g.state.ConsecutiveAbsent = 0
		if g.state.ConsecutivePresent == g.presentThreshold && !g.state.Active {
			g.state.Active = true
			return Start
		}
		return None
	}

	g.state.ConsecutiveAbsent++
	g.state.ConsecutivePresent = 0
	if g.state.ConsecutiveAbsent == g.absentThreshold && g.state.Active {
		g.state.Active = false
		return Stop
	}
	return None
}

// Active は現在アクティブかどうかを返す
func (g *Gate) Active() bool {
	return g.state.Active
}

// State は現在の状態を返す
func (g *Gate) State() State {
	return g.state
}

// Thresholds は設定されたしきい値を返す
func (g *Gate) Thresholds() (present, absent int) {
	return g.presentThreshold, g.absentThreshold
}
