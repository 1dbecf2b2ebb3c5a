package ptypool

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// spawnPollWindow is how long Create waits after spawning the child before
// checking whether it already exited (a fast-failing shell or nspawn
// invocation).
const spawnPollWindow = 200 * time.Millisecond

// staleContainerReleaseDelay is the pause after terminating a stale
// machine of the same name, to let systemd-nspawn release the rootfs
// directory lock before re-entering it.
const staleContainerReleaseDelay = 500 * time.Millisecond

// unboundedQueue is a goroutine-backed queue with no fixed capacity: Push
// never blocks the caller on a slow consumer. It is the session's input
// channel, matching the "unbounded input channel" contract — a caller
// forwarding WebSocket frames must never stall behind a wedged PTY.
type unboundedQueue struct {
	in  chan []byte
	out chan []byte
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{in: make(chan []byte), out: make(chan []byte)}
	go q.run()
	return q
}

func (q *unboundedQueue) run() {
	var buf [][]byte
	for {
		if len(buf) == 0 {
			v, ok := <-q.in
			if !ok {
				close(q.out)
				return
			}
			buf = append(buf, v)
			continue
		}

		select {
		case v, ok := <-q.in:
			if !ok {
				for _, b := range buf {
					q.out <- b
				}
				close(q.out)
				return
			}
			buf = append(buf, v)
		case q.out <- buf[0]:
			buf = buf[1:]
		}
	}
}

func (q *unboundedQueue) Push(v []byte) { q.in <- v }
func (q *unboundedQueue) Close()        { close(q.in) }

// Session is one pseudo-terminal and everything attached to it.
type Session struct {
	key string

	mu              sync.Mutex
	ptmx            *os.File
	cmd             *exec.Cmd
	connectionCount int
	disconnectedAt  *time.Time
	exited          bool

	input       *unboundedQueue
	broadcaster *broadcaster
}

// hasExited reports whether the child process has already exited, without
// blocking.
func (s *Session) hasExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

func (s *Session) markExited() {
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()
	s.broadcaster.closeAll()
}

// Connect registers a new attachment, clearing any pending idle deadline.
func (s *Session) connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionCount++
	s.disconnectedAt = nil
}

// Disconnect unregisters an attachment. If this was the last one, the
// session starts its idle-eviction countdown; the child is never killed
// here.
func (s *Session) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionCount > 0 {
		s.connectionCount--
	}
	if s.connectionCount == 0 {
		now := time.Now()
		s.disconnectedAt = &now
	}
}

// idleFor reports how long the session has had zero connections, or false
// if it currently has at least one.
func (s *Session) idleFor(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectionCount > 0 || s.disconnectedAt == nil {
		return 0, false
	}
	return now.Sub(*s.disconnectedAt), true
}

// WriteInput queues data for the PTY without blocking the caller.
func (s *Session) WriteInput(data string) {
	if data == "" {
		return
	}
	s.input.Push([]byte(data))
}

// Resize changes the PTY's window size.
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid dimensions: cols=%d rows=%d", cols, rows)
	}
	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Subscribe attaches a new output listener.
func (s *Session) Subscribe() (int, <-chan outputMsg) {
	return s.broadcaster.Subscribe()
}

// Unsubscribe detaches an output listener.
func (s *Session) Unsubscribe(id int) {
	s.broadcaster.Unsubscribe(id)
}

// kill terminates the child's process group and releases the PTY.
func (s *Session) kill() {
	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if pgid, err := syscall.Getpgid(s.cmd.Process.Pid); err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		} else {
			_ = s.cmd.Process.Kill()
		}
	}
	s.input.Close()
	if s.cmd != nil {
		_ = s.cmd.Wait()
	}
}

func (s *Session) runInputPump() {
	for data := range s.input.out {
		if _, err := s.ptmx.Write(data); err != nil {
			return
		}
	}
}

func (s *Session) runOutputPump() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.broadcaster.Publish(chunk)
		}
		if err != nil {
			s.markExited()
			return
		}
	}
}

// Pool is the keyed registry of live sessions.
type Pool struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session

	stopSweep chan struct{}
}

// New starts a pool and its idle-sweep background loop.
func New(cfg Config) *Pool {
	p := &Pool{
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// Close stops the sweep loop and kills every live session.
func (p *Pool) Close() {
	close(p.stopSweep)

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.sessions {
		s.kill()
		delete(p.sessions, key)
	}
}

// Get returns the session for key, reusable if its child hasn't exited.
func (p *Pool) Get(key string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[key]
	if !ok || s.hasExited() {
		return nil, false
	}
	return s, true
}

// Attach implements the reuse-or-create flow: an existing live session is
// reused; otherwise a fresh PTY is created per spec and evicts any stale
// record under the same key.
func (p *Pool) Attach(spec AttachSpec) (*Session, error) {
	if existing, ok := p.Get(spec.Key); ok {
		existing.connect()
		return existing, nil
	}

	s, err := p.create(spec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if stale, ok := p.sessions[spec.Key]; ok {
		stale.kill()
	}
	p.sessions[spec.Key] = s
	p.mu.Unlock()

	s.connect()
	return s, nil
}

func (p *Pool) create(spec AttachSpec) (*Session, error) {
	cmd, err := buildShellCommand(spec)
	if err != nil {
		return nil, err
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	s := &Session{
		key:         spec.Key,
		ptmx:        ptmx,
		cmd:         cmd,
		input:       newUnboundedQueue(),
		broadcaster: newBroadcaster(),
	}

	time.Sleep(spawnPollWindow)
	var ws syscall.WaitStatus
	if pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil); err == nil && pid == cmd.Process.Pid {
		_ = ptmx.Close()
		return nil, fmt.Errorf("session process exited immediately: %s", spec.Key)
	}

	go s.runInputPump()
	go s.runOutputPump()
	return s, nil
}

// Detach unregisters one connection from the session at key. The child is
// left running; the session becomes sweep-eligible once idle.
func (p *Pool) Detach(key string) {
	p.mu.RLock()
	s, ok := p.sessions[key]
	p.mu.RUnlock()
	if ok {
		s.disconnect()
	}
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.cfg.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

// sweepOnce removes every session idle past the configured timeout. It
// inspects candidates under a try-lock on the session's own mutex — a
// session mid-attach is simply skipped for this pass.
func (p *Pool) sweepOnce() {
	now := time.Now()
	timeout := p.cfg.idleTimeout()

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, s := range p.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.connectionCount == 0 && s.disconnectedAt != nil && now.Sub(*s.disconnectedAt) >= timeout
		s.mu.Unlock()

		if idle || s.hasExited() {
			s.kill()
			delete(p.sessions, key)
			logging.Debug(logging.CompPTY, "swept idle session %s", key)
		}
	}
}

// buildShellCommand resolves the interactive shell to launch: bash if
// present under the execution root, else sh, run with --login -i. For
// container workspaces it instead builds a systemd-nspawn invocation that
// enters the running machine, terminating any stale machine of the same
// name first.
func buildShellCommand(spec AttachSpec) (*exec.Cmd, error) {
	env := mergedEnv(spec.Env)

	if !spec.IsContainer {
		shell := resolveShell("/")
		cmd := exec.Command(shell, "--login", "-i")
		if shell == "/bin/sh" {
			cmd = exec.Command(shell, "-i")
		}
		if spec.WorkspaceRoot != "" {
			cmd.Dir = spec.WorkspaceRoot
		}
		cmd.Env = env
		return cmd, nil
	}

	if spec.ContainerPath == "" {
		return nil, errors.New("container path is required for container sessions")
	}

	terminateStaleMachine(spec.MachineName)
	time.Sleep(staleContainerReleaseDelay)

	shell := resolveShell(spec.ContainerPath)
	args := []string{"-D", spec.ContainerPath, "--machine", spec.MachineName, "--quiet", shell}
	if shell == "/bin/bash" {
		args = append(args, "--login", "-i")
	} else {
		args = append(args, "-i")
	}
	cmd := exec.Command("systemd-nspawn", args...)
	cmd.Env = env
	return cmd, nil
}

func resolveShell(root string) string {
	if _, err := os.Stat(filepath.Join(root, "bin", "bash")); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

func terminateStaleMachine(name string) {
	if name == "" {
		return
	}
	_ = exec.Command("machinectl", "terminate", name).Run()
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
