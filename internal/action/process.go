// Package action は顔検出の結果に応じて外部コマンドを起動・停止する
package action

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// DefaultGracePeriod は停止要求から強制終了までの猶予
const DefaultGracePeriod = 5 * time.Second

// Process は固定引数で起動する外部コマンドを1つだけ管理する
type Process struct {
	command  []string
	argument string
	grace    time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{} // プロセス終了でクローズされる
}

// NewProcess は新しいProcessを作成する
// command の先頭が実行ファイル、残りが引数で、argument は末尾に付与される
func NewProcess(command []string, argument string, grace time.Duration) *Process {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Process{
		command:  append([]string(nil), command...),
		argument: argument,
		grace:    grace,
	}
}

// Args は実行されるコマンドライン全体を返す
func (p *Process) Args() []string {
	args := append([]string(nil), p.command...)
	if p.argument != "" {
		args = append(args, p.argument)
	}
	return args
}

// Running はプロセスが実行中かどうかを返す
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Process) runningLocked() bool {
	if p.cmd == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Start はプロセスを起動する。既に実行中の場合は何もしない
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		return nil
	}

	args := p.Args()
	if len(args) == 0 {
		return errors.New("コマンドが設定されていません")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// 子プロセスごと停止できるようにプロセスグループを分ける
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		p.cmd = nil
		return fmt.Errorf("%s の起動に失敗: %w", args[0], err)
	}

	done := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("外部コマンドが終了しました (pid=%d): %v", cmd.Process.Pid, err)
		}
		close(done)
	}()

	p.cmd = cmd
	p.done = done
	log.Printf("外部コマンドを起動しました (pid=%d): %v", cmd.Process.Pid, args)
	return nil
}

// Stop はプロセスにSIGTERMを送り、猶予期間内に終了しなければSIGKILLで強制終了する
// 実行中でなければ何もしない
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.runningLocked() {
		p.cmd = nil
		return nil
	}

	cmd, done := p.cmd, p.done
	pid := cmd.Process.Pid
	defer func() {
		p.cmd = nil
	}()

	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		log.Printf("SIGTERMの送信に失敗 (pid=%d): %v", pid, err)
	}

	select {
	case <-done:
		log.Printf("外部コマンドを停止しました (pid=%d)", pid)
		return nil
	case <-time.After(p.grace):
	}

	log.Printf("外部コマンドが %v 以内に終了しないため強制終了します (pid=%d)", p.grace, pid)
	if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
		return fmt.Errorf("強制終了に失敗 (pid=%d): %w", pid, err)
	}
	<-done
	return nil
}

// signalGroup はプロセスグループ全体にシグナルを送る
// グループへの送信に失敗した場合はプロセス単体に送る
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
		return nil
	}
	err := cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
