package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

// writeAgentScript creates a fake agent binary. Body runs under /bin/sh.
func writeAgentScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "daemon")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write agent script: %v", err)
	}
	return path
}

func newSupervisor(t *testing.T, pusher AssetPusher) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "var", "agent.pid")
	logPath := filepath.Join(dir, "var", "agent.log")
	return New(pidPath, logPath, pusher, zap.NewNop()), dir
}

type countingPusher struct {
	calls int
}

func (p *countingPusher) PushToRuntime() error {
	p.calls++
	return nil
}

func TestStart_MissingAgent(t *testing.T) {
	s, dir := newSupervisor(t, nil)

	err := s.Start(filepath.Join(dir, "daemon"))
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("Start error = %v, want ErrAgentNotFound", err)
	}

	info, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.State != StateNotRunning {
		t.Errorf("state = %v, want not-running", info.State)
	}
}

func TestStop_WhileNotRunning(t *testing.T) {
	s, _ := newSupervisor(t, nil)

	// Must be a quiet no-op.
	s.Stop()

	info, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.State != StateNotRunning {
		t.Errorf("state = %v, want not-running", info.State)
	}
}

func TestStartStop_Graceful(t *testing.T) {
	pusher := &countingPusher{}
	s, dir := newSupervisor(t, pusher)
	agent := writeAgentScript(t, dir, `trap 'exit 0' TERM
while :; do sleep 0.1; done`)

	if err := s.Start(agent); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if pusher.calls != 1 {
		t.Errorf("asset pushes = %d, want 1 before spawn", pusher.calls)
	}

	info, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.State != StateRunning || info.PID == 0 {
		t.Fatalf("status after start = %+v, want running with PID", info)
	}

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > StopGracePeriod {
		t.Errorf("graceful stop took %v, should finish well before the grace period", elapsed)
	}

	info, err = s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.State != StateNotRunning {
		t.Errorf("state after stop = %v, want not-running", info.State)
	}
}

func TestStop_ForcedKillAfterGracePeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full grace period")
	}
	s, dir := newSupervisor(t, nil)
	agent := writeAgentScript(t, dir, `trap '' TERM
while :; do sleep 0.1; done`)

	if err := s.Start(agent); err != nil {
		t.Fatalf("Start: %v", err)
	}
	info, err := s.Status()
	if err != nil || info.State != StateRunning {
		t.Fatalf("status after start = %+v (err %v)", info, err)
	}
	pid := info.PID

	start := time.Now()
	s.Stop()
	elapsed := time.Since(start)

	if elapsed < StopGracePeriod {
		t.Errorf("stop returned after %v, should have waited the %v grace period", elapsed, StopGracePeriod)
	}
	if elapsed > StopGracePeriod+killWait+time.Second {
		t.Errorf("stop took %v, forced kill should bound it near %v", elapsed, StopGracePeriod+killWait)
	}
	if processAlive(pid) {
		t.Error("agent process still alive after forced kill")
	}

	info, err = s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.State != StateNotRunning {
		t.Errorf("state after stop = %v, want not-running", info.State)
	}
}

func TestStart_WhileRunningIsNoOp(t *testing.T) {
	s, dir := newSupervisor(t, nil)
	agent := writeAgentScript(t, dir, `trap 'exit 0' TERM
while :; do sleep 0.1; done`)

	if err := s.Start(agent); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	first, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	// Second start must not spawn a second process.
	if err := s.Start(agent); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	second, err := s.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if second.PID != first.PID {
		t.Errorf("PID changed %d -> %d, second start must be a no-op", first.PID, second.PID)
	}
}

func TestReap_AgentSelfExitClearsState(t *testing.T) {
	s, dir := newSupervisor(t, nil)
	agent := writeAgentScript(t, dir, `exit 0`)

	if err := s.Start(agent); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The agent exits immediately; the reaper should observe it and
	// clear the handle without a Stop call.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		info, err := s.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if info.State == StateNotRunning {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("supervisor never observed the agent's exit")
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "agent.pid")
	want := PIDInfo{
		PID:       os.Getpid(),
		AgentPath: "/srv/better/daemon",
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := WritePIDFile(path, want); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	got, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if got.PID != want.PID || got.AgentPath != want.AgentPath || !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("ReadPIDFile = %+v, want %+v", got, want)
	}

	running, info, err := CheckPIDFile(path)
	if err != nil {
		t.Fatalf("CheckPIDFile: %v", err)
	}
	if !running {
		t.Error("current process should be reported running")
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
}

func TestCheckPIDFile_Missing(t *testing.T) {
	running, info, err := CheckPIDFile(filepath.Join(t.TempDir(), "agent.pid"))
	if err != nil {
		t.Fatalf("CheckPIDFile: %v", err)
	}
	if running || info.PID != 0 {
		t.Errorf("missing pidfile reported running=%v pid=%d", running, info.PID)
	}
}

func TestCheckPIDFile_StaleProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")
	// A PID beyond pid_max can never name a live process.
	if err := WritePIDFile(path, PIDInfo{PID: 1 << 30}); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}

	running, _, err := CheckPIDFile(path)
	if err != nil {
		t.Fatalf("CheckPIDFile: %v", err)
	}
	if running {
		t.Error("absurd PID reported as running")
	}
}
