// Package supervisor owns the agent child process: spawning it
// detached from the launcher, tracking it across launcher invocations
// via a pidfile, and terminating it gracefully with a forced-kill
// fallback.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// State is the supervisor's position in the agent lifecycle.
type State int

const (
	// StateNotRunning means no agent process is owned.
	StateNotRunning State = iota
	// StateStarting means a spawn is in progress.
	StateStarting
	// StateRunning means the agent process is live.
	StateRunning
	// StateStopping means termination has been requested.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateNotRunning:
		return "not-running"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// StopGracePeriod is how long the agent gets to exit after
	// SIGTERM before it is killed.
	StopGracePeriod = 5 * time.Second

	// killWait bounds the wait for the process to disappear after
	// SIGKILL.
	killWait = 2 * time.Second

	pollInterval = 50 * time.Millisecond

	agentFileMode = 0o755
)

// ErrAgentNotFound reports a Start with no agent binary on disk.
// Callers are expected to run the integrity verifier first.
var ErrAgentNotFound = errors.New("agent binary not found")

// AssetPusher mirrors the persistent asset store into the runtime
// tree. The push runs before the agent spawns; a failed push is
// reported but does not block the launch.
type AssetPusher interface {
	PushToRuntime() error
}

// Supervisor manages at most one agent process. All state transitions
// are serialized by a mutex so rapid repeated start/stop requests
// cannot race a second process into existence.
type Supervisor struct {
	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	waitCh chan struct{}

	pidPath string
	logPath string
	pusher  AssetPusher
	log     *zap.Logger
}

// New creates a Supervisor. pidPath tracks the agent across launcher
// invocations; logPath receives the agent's stdout and stderr.
func New(pidPath, logPath string, pusher AssetPusher, log *zap.Logger) *Supervisor {
	return &Supervisor{
		pidPath: pidPath,
		logPath: logPath,
		pusher:  pusher,
		log:     log,
	}
}

// Start launches the agent at agentPath as a detached child process.
// A Start while an agent is already running is a logged no-op; no
// second process is spawned. The asset push happens before the spawn.
func (s *Supervisor) Start(agentPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotRunning {
		s.log.Warn("agent already running, ignoring start", zap.Stringer("state", s.state))
		return nil
	}
	if running, info, err := CheckPIDFile(s.pidPath); err != nil {
		s.log.Warn("failed to read pidfile, proceeding", zap.Error(err))
	} else if running {
		s.log.Warn("agent already running, ignoring start", zap.Int("pid", info.PID))
		return nil
	}

	if _, err := os.Stat(agentPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, agentPath)
		}
		return fmt.Errorf("stat agent binary: %w", err)
	}

	s.state = StateStarting

	// Idempotent; a binary placed by hand may lack the bit.
	if err := os.Chmod(agentPath, agentFileMode); err != nil {
		s.log.Warn("could not ensure executable bit", zap.Error(err))
	}

	if s.pusher != nil {
		if err := s.pusher.PushToRuntime(); err != nil {
			s.log.Error("asset push failed, launching anyway", zap.Error(err))
		}
	}

	logFile := s.openAgentLog()

	cmd := exec.Command(agentPath) //nolint:gosec // G204 - agent path from launcher home, spawned without a shell
	cmd.Dir = filepath.Dir(agentPath)
	cmd.Stdin = nil
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		// Keep crash diagnostics visible even without a log file.
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // survive the launcher exiting
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		s.state = StateNotRunning
		return fmt.Errorf("spawn agent: %w", err)
	}
	if logFile != nil {
		// The child holds its own descriptor now.
		_ = logFile.Close()
	}

	info := PIDInfo{
		PID:       cmd.Process.Pid,
		AgentPath: agentPath,
		StartedAt: time.Now().UTC(),
	}
	if err := WritePIDFile(s.pidPath, info); err != nil {
		// Stop still works through the in-memory handle.
		s.log.Warn("failed to write pidfile", zap.Error(err))
	}

	s.cmd = cmd
	s.waitCh = make(chan struct{})
	go s.reap(cmd, s.waitCh)

	s.state = StateRunning
	s.log.Info("agent started", zap.Int("pid", info.PID), zap.String("path", agentPath))
	return nil
}

// openAgentLog opens (truncating) the agent log file, creating the
// parent directory as needed. Returns nil on failure.
func (s *Supervisor) openAgentLog() *os.File {
	if s.logPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0700); err != nil {
		s.log.Warn("could not create agent log directory", zap.Error(err))
		return nil
	}
	f, err := os.OpenFile(s.logPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) //nolint:gosec // G304 - path from launcher var directory
	if err != nil {
		s.log.Warn("could not open agent log file", zap.Error(err))
		return nil
	}
	return f
}

// reap waits for a spawned agent to exit, then clears the handle if
// the exit was not driven by Stop. waitCh is closed before taking the
// lock so Stop can select on it while holding the mutex.
func (s *Supervisor) reap(cmd *exec.Cmd, waitCh chan struct{}) {
	err := cmd.Wait()
	close(waitCh)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != cmd || s.state == StateStopping {
		// Stop owns the cleanup.
		return
	}
	s.log.Info("agent exited on its own", zap.Error(err))
	s.cmd = nil
	_ = RemovePIDFile(s.pidPath)
	s.state = StateNotRunning
}

// Stop terminates the agent: SIGTERM, a bounded grace period, then
// SIGKILL. It never returns an error and always ends in NotRunning.
// With no live agent (in-memory or pidfile) it is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		s.stopOwned()
		return
	}

	running, info, err := CheckPIDFile(s.pidPath)
	if err != nil {
		s.log.Warn("failed to read pidfile", zap.Error(err))
	}
	if !running {
		if info.PID != 0 {
			s.log.Debug("removing stale pidfile", zap.Int("pid", info.PID))
		}
		_ = RemovePIDFile(s.pidPath)
		s.state = StateNotRunning
		s.log.Debug("agent not running, nothing to stop")
		return
	}

	// Agent spawned by an earlier launcher invocation.
	s.state = StateStopping
	s.stopByPID(info.PID)
	_ = RemovePIDFile(s.pidPath)
	s.state = StateNotRunning
	s.log.Info("agent stopped", zap.Int("pid", info.PID))
}

// stopOwned terminates the agent spawned by this process, using the
// reaper channel to observe the exit. Caller holds the mutex.
func (s *Supervisor) stopOwned() {
	s.state = StateStopping
	pid := s.cmd.Process.Pid

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("SIGTERM delivery failed", zap.Error(err))
	}

	select {
	case <-s.waitCh:
	case <-time.After(StopGracePeriod):
		s.log.Warn("agent ignored SIGTERM, killing",
			zap.Int("pid", pid),
			zap.Duration("grace", StopGracePeriod))
		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Debug("SIGKILL delivery failed", zap.Error(err))
		}
		select {
		case <-s.waitCh:
		case <-time.After(killWait):
			s.log.Error("agent did not exit after SIGKILL", zap.Int("pid", pid))
		}
	}

	s.cmd = nil
	_ = RemovePIDFile(s.pidPath)
	s.state = StateNotRunning
	s.log.Info("agent stopped", zap.Int("pid", pid))
}

// stopByPID terminates an agent this process did not spawn, polling
// for process death instead of waiting on a child handle.
func (s *Supervisor) stopByPID(pid int) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("SIGTERM delivery failed", zap.Error(err))
	}
	if waitForDeath(pid, StopGracePeriod) {
		return
	}

	s.log.Warn("agent ignored SIGTERM, killing",
		zap.Int("pid", pid),
		zap.Duration("grace", StopGracePeriod))
	if err := process.Signal(syscall.SIGKILL); err != nil {
		s.log.Debug("SIGKILL delivery failed", zap.Error(err))
	}
	if !waitForDeath(pid, killWait) {
		s.log.Error("agent did not exit after SIGKILL", zap.Int("pid", pid))
	}
}

func waitForDeath(pid int, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !processAlive(pid)
}

// Info is a point-in-time view of the supervised agent.
type Info struct {
	State     State
	PID       int
	AgentPath string
	StartedAt time.Time
	Uptime    time.Duration
}

// Status reports whether an agent is running, based on the pidfile so
// it works across launcher invocations.
func (s *Supervisor) Status() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, pidInfo, err := CheckPIDFile(s.pidPath)
	if err != nil {
		return Info{State: s.state}, err
	}
	if !running {
		return Info{State: StateNotRunning}, nil
	}

	info := Info{
		State:     StateRunning,
		PID:       pidInfo.PID,
		AgentPath: pidInfo.AgentPath,
		StartedAt: pidInfo.StartedAt,
	}
	if !pidInfo.StartedAt.IsZero() {
		info.Uptime = time.Since(pidInfo.StartedAt)
	}
	return info, nil
}
