//go:build !linux

package sandbox

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func applyMemoryLimit(cmd *exec.Cmd, memoryMb int64) {}

// peakMemoryKb is unavailable off Linux; memory limits are not enforced.
func peakMemoryKb(state *os.ProcessState) int64 {
	return 0
}
