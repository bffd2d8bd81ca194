package node

import (
	"os"
	"os/exec"
	"syscall"
)

// process wraps a spawned external binary. The exit status is collected by a
// dedicated waiter goroutine and published through the done channel, so
// Exited is a non-blocking poll that is safe from any goroutine.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// startProcess spawns bin with the given arguments and environment, in its
// own process group, with stdout and stderr appended to logPath.
func startProcess(logPath string, env []string, bin string, args ...string) (*process, error) {
	cmd := exec.Command(bin, args...)
	cmd.Env = env

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, err
	}

	p := &process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		defer out.Close()
		cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the OS pid of the process.
func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the process has terminated.
func (p *process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code of a terminated process, or -1 if it is
// still running or was killed by a signal.
func (p *process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Terminate sends SIGTERM to the process group. There is no graceful
// handshake with the child.
func (p *process) Terminate() {
	if p.Exited() {
		return
	}
	syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
}
