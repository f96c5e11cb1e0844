package env

import (
	"os"
	"path/filepath"
)

// RunnerMapEnv supplies a serialized runner address map to a worker launched
// standalone, without going through the topology planner.
const RunnerMapEnv = "MODELKEEPER_RUNNER_MAP"

// (default: %USERPROFILE%/.modelkeeper on Windows, $HOME/.modelkeeper on Linux)
var ModelkeeperDir string = GetModelkeeperDir()

/**
 * Get modelkeeper directory path
 * @returns {string} Returns modelkeeper directory path
 */
func GetModelkeeperDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".modelkeeper")
}
