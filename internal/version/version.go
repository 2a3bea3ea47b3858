package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns the full version line printed by the version command.
func String() string {
	return fmt.Sprintf("taskmill %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}
