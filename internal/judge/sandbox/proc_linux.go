//go:build linux

package sandbox

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own process group so the kill on
// timeout reaches forked grandchildren too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// applyMemoryLimit caps the child's address space at the memory ceiling so a
// submission cannot allocate past its limit while running. A child that
// already exited makes prlimit fail with ESRCH, which is fine.
func applyMemoryLimit(cmd *exec.Cmd, memoryMb int64) {
	if memoryMb <= 0 || cmd.Process == nil {
		return
	}
	limit := uint64(memoryMb) << 20
	rlim := unix.Rlimit{Cur: limit, Max: limit}
	_ = unix.Prlimit(cmd.Process.Pid, unix.RLIMIT_AS, &rlim, nil)
}

// peakMemoryKb reads the peak resident set size from rusage. Linux reports
// ru_maxrss in kilobytes.
func peakMemoryKb(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	rusage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return 0
	}
	return rusage.Maxrss
}
