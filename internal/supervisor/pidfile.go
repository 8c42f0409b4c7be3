package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// PIDInfo is the agent process metadata persisted in the pidfile, so a
// later launcher invocation can stop or report on an agent it did not
// spawn itself.
type PIDInfo struct {
	PID       int       `json:"pid"`
	AgentPath string    `json:"agent_path,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// WritePIDFile writes agent process metadata to path in JSON format.
func WritePIDFile(path string, info PIDInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pidfile directory: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pid info: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

// ReadPIDFile reads agent process metadata from path.
func ReadPIDFile(path string) (PIDInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from launcher var directory
	if err != nil {
		// Not wrapped so callers can use os.IsNotExist.
		return PIDInfo{}, err
	}
	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PIDInfo{}, fmt.Errorf("invalid pidfile format: %w", err)
	}
	return info, nil
}

// CheckPIDFile reports whether the pidfile at path names a live
// process. A missing file is not an error; it means no agent is
// running. A file naming a dead process is stale.
func CheckPIDFile(path string) (bool, PIDInfo, error) {
	info, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, PIDInfo{}, nil
		}
		return false, PIDInfo{}, err
	}
	return processAlive(info.PID), info, nil
}

// RemovePIDFile removes the pidfile, tolerating its absence.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

// processAlive checks for process existence with the null signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return err == syscall.EPERM
}
