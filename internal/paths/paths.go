// Package paths derives the launcher's filesystem layout from a single
// home directory. Nothing here is persisted; every path is recomputed
// from the home on each invocation.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppName namespaces the volatile runtime directory under the
	// system temp root.
	AppName = "BetterLauncher"

	// AgentFileName is the on-disk name of the supervised binary.
	AgentFileName = "daemon"

	// ConfigFileName is the flat key-value settings document kept in
	// the launcher home. The .txt name is a wire-compatibility holdover.
	ConfigFileName = "config.txt"

	varDirName        = "var"
	assetStoreDirName = "assets"
)

// ResolveHome returns the absolute launcher home directory. An empty
// value means the current working directory.
func ResolveHome(home string) (string, error) {
	if home == "" {
		home = "."
	}
	abs, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("resolve launcher home: %w", err)
	}
	return abs, nil
}

// AgentPath returns the persistent location of the agent binary.
func AgentPath(home string) string {
	return filepath.Join(home, AgentFileName)
}

// ConfigFile returns the settings document path.
func ConfigFile(home string) string {
	return filepath.Join(home, ConfigFileName)
}

// AssetStore returns the persistent asset tree kept beside the launcher.
func AssetStore(home string) string {
	return filepath.Join(home, assetStoreDirName)
}

// RuntimeAssets returns the volatile per-run asset tree under the
// system temp root, namespaced by application name.
func RuntimeAssets() string {
	return filepath.Join(os.TempDir(), AppName, assetStoreDirName)
}

// VarDir returns the runtime bookkeeping directory.
// Contains agent.pid, agent.log and journal.db.
func VarDir(home string) string {
	return filepath.Join(home, varDirName)
}

// PIDFile returns the agent pidfile path.
func PIDFile(home string) string {
	return filepath.Join(VarDir(home), "agent.pid")
}

// AgentLog returns the file receiving the agent's stdout and stderr.
func AgentLog(home string) string {
	return filepath.Join(VarDir(home), "agent.log")
}

// JournalDB returns the launch journal database path.
func JournalDB(home string) string {
	return filepath.Join(VarDir(home), "journal.db")
}

// EnsureVarDir creates the var directory if it does not exist.
func EnsureVarDir(home string) error {
	if err := os.MkdirAll(VarDir(home), 0700); err != nil {
		return fmt.Errorf("create var directory: %w", err)
	}
	return nil
}
