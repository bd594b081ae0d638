package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
)

// TokenEnvVar carries the origin token into a launched runner process.
const TokenEnvVar = "AINB_SANDBOX_TOKEN"

// recvBuffer bounds how many undelivered messages a context may queue.
const recvBuffer = 16

// MaxLineBytes caps a single protocol line in either direction. The
// runner applies the same bound on its stdin.
const MaxLineBytes = 8 * 1024 * 1024

// Process is a launched runner process.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	// Kill terminates the process and everything it spawned.
	Kill() error
	// PID reports the operating system process id.
	PID() int
}

// StartProcess launches a runner and hands back the process plus the
// stdio pipes the protocol runs over. Tests swap in fakes backed by
// in-memory pipes.
type StartProcess func(ctx context.Context, path string, args []string, env []string) (Process, io.WriteCloser, io.ReadCloser, error)

// ExecStartProcess starts the real runner binary in its own process
// group so Kill can take the whole tree down. The runner's stderr is
// passed through for operator visibility.
func ExecStartProcess(ctx context.Context, path string, args []string, env []string) (Process, io.WriteCloser, io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = env
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return &execProcess{cmd: cmd}, stdin, stdout, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	// Negative pid addresses the whole process group.
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// SubprocessLauncher runs one local runner process per cell, speaking
// newline-delimited JSON over the child's stdin and stdout.
type SubprocessLauncher struct {
	path  string
	args  []string
	start StartProcess
}

var _ Launcher = (*SubprocessLauncher)(nil)

// NewSubprocessLauncher builds a launcher for the runner binary at path.
// A nil start falls back to ExecStartProcess.
func NewSubprocessLauncher(path string, args []string, start StartProcess) *SubprocessLauncher {
	if start == nil {
		start = ExecStartProcess
	}
	return &SubprocessLauncher{path: path, args: args, start: start}
}

// Launch starts a fresh runner process for the cell. The freshly minted
// handle ID is exported to the child as AINB_SANDBOX_TOKEN so the
// runner can echo it on every reply.
func (l *SubprocessLauncher) Launch(ctx context.Context, cellID api.CellID) (*Handle, error) {
	id := api.NewSandboxID()
	env := append(os.Environ(), TokenEnvVar+"="+id)
	proc, stdin, stdout, err := l.start(ctx, l.path, l.args, env)
	if err != nil {
		return nil, api.NewSandboxUnavailableError(fmt.Sprintf("starting runner %s: %v", l.path, err))
	}
	debug.Log("sandbox", "runner started", "cell_id", cellID, "pid", proc.PID())
	return &Handle{ID: id, CellID: cellID, Conn: newPipeConn(id, stdin, stdout, proc)}, nil
}

// pipeConn speaks the message protocol over a runner's stdio.
type pipeConn struct {
	token string
	proc  Process

	writeMu sync.Mutex
	stdin   io.WriteCloser

	recv      chan Message
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newPipeConn(token string, stdin io.WriteCloser, stdout io.ReadCloser, proc Process) *pipeConn {
	c := &pipeConn{
		token:  token,
		proc:   proc,
		stdin:  stdin,
		recv:   make(chan Message, recvBuffer),
		closed: make(chan struct{}),
	}
	go c.run(stdout)
	return c
}

// run owns the read side for the connection's whole lifetime. The
// process is reaped only after all stdout reads are done, as exec.Cmd
// requires, and the connection finishes closing itself when the runner
// exits on its own so receivers always observe the channel close.
func (c *pipeConn) run(stdout io.ReadCloser) {
	c.readLoop(stdout)
	if c.proc != nil {
		_ = c.proc.Wait()
	}
	_ = c.Close()
}

// readLoop turns runner stdout lines into messages. Lines that do not
// parse, carry a foreign token, or are the hello handshake never reach
// the caller.
func (c *pipeConn) readLoop(stdout io.ReadCloser) {
	defer close(c.recv)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			debug.Log("sandbox", "dropping unparseable runner output", "error", err)
			continue
		}
		if msg.Token != c.token {
			debug.Log("sandbox", "dropping message with foreign token", "kind", string(msg.Kind))
			continue
		}
		if msg.Kind == KindHello {
			debug.Log("sandbox", "runner handshake complete")
			continue
		}
		select {
		case c.recv <- msg:
		case <-c.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		debug.Log("sandbox", "runner output ended", "error", err)
	}
}

func (c *pipeConn) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return api.NewSandboxUnavailableError("execution context is closed")
	default:
	}
	if msg.ID == "" {
		msg.ID = api.NewMessageID()
	}
	msg.Token = c.token
	data, err := json.Marshal(msg)
	if err != nil {
		return api.NewExecutionError(fmt.Sprintf("encoding message: %v", err))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return api.NewSandboxUnavailableError(fmt.Sprintf("writing to runner: %v", err))
	}
	return nil
}

func (c *pipeConn) Recv() <-chan Message { return c.recv }

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		// Closing stdin without the write lock unblocks a Send stuck
		// mid-write on a pipe the runner stopped draining.
		_ = c.stdin.Close()
		if c.proc != nil {
			c.closeErr = c.proc.Kill()
		}
	})
	return c.closeErr
}
