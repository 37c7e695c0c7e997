//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// gracefulSignals lists the signals that trigger an orderly server shutdown.
// Windows delivers os.Interrupt for Ctrl+C; there is no SIGTERM equivalent.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive asks the kernel for the exit code of the PID. A process
// that has not exited reports STILL_ACTIVE.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	const stillActive = 259
	return exitCode == stillActive
}

// sendGracefulStop stops a running server. Without signal delivery the best
// Windows offers is TerminateProcess, which Kill wraps.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
