package engine

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Transport is the byte channel to one engine execution unit: commands
// go in one line at a time, output comes back as a raw stream that the
// handle splits on line boundaries.
type Transport interface {
	Send(cmd string) error
	Output() io.Reader
	Close() error
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu     sync.Mutex
	closed bool
}

// StartProcess launches an engine binary and returns a transport wired
// to its stdin/stdout.
func StartProcess(path string, args ...string) (Transport, error) {
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}

	return &process{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (p *process) Send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("engine process closed")
	}
	_, err := io.WriteString(p.stdin, cmd+"\n")
	return err
}

func (p *process) Output() io.Reader {
	return p.stdout
}

func (p *process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	_, _ = io.WriteString(p.stdin, "quit\n")
	_ = p.stdin.Close()
	p.mu.Unlock()

	// Give the engine a moment to exit on its own before killing it.
	done := make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = p.cmd.Process.Kill()
		<-done
	}
	return nil
}
