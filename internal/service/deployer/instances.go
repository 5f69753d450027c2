package deployer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/rss-r/deploy/internal/logger"
)

// maxProcessNameLength is how much of an executable name Linux keeps in /proc/<pid>/stat.
const maxProcessNameLength = 15

// warnIfAlreadyRunning logs other local processes of this executable.
// Concurrent runs are not coordinated, so this only warns.
func warnIfAlreadyRunning(ctx context.Context) {
	self, err := os.Executable()
	if err != nil {
		return
	}

	processes, err := ps.Processes()
	if err != nil {
		logger.DebugKV(ctx, "Could not list processes", "error", err)
		return
	}

	name := filepath.Base(self)
	ownPID, parentPID := os.Getpid(), os.Getppid()

	for _, process := range processes {
		if process.Pid() == ownPID || process.Pid() == parentPID {
			continue
		}

		if matchesExecutable(process.Executable(), name) {
			logger.WarnKV(ctx, "Another deployment appears to be running, concurrent runs are not coordinated",
				"pid", process.Pid())
		}
	}
}

// matchesExecutable compares a process name against an executable name,
// allowing for the kernel truncating long names.
func matchesExecutable(processName, executable string) bool {
	if processName == "" || executable == "" {
		return false
	}

	if processName == executable {
		return true
	}

	return len(processName) == maxProcessNameLength && strings.HasPrefix(executable, processName)
}
