// Package proc handles termination and liveness checks for subprocess
// groups. Agent runs and supervised project processes both start in their
// own process group so the whole tree can be signalled at once.
package proc

import (
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is how often TerminateGroup rechecks liveness while
// waiting out the grace period.
const pollInterval = 100 * time.Millisecond

// Alive checks if a process with the given PID is currently running.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 doesn't actually send a signal, but checks if we can signal the process
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

// GroupAlive checks if any process in the group led by pid is running.
func GroupAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(-pid, syscall.Signal(0)) == nil
}

// TerminateGroup terminates the process group led by pid.
// It uses a two-phase approach:
//  1. Send SIGTERM to the group and wait up to gracefulWait
//  2. Send SIGKILL to the group if it is still alive
//
// pid must be a group leader (started with Setpgid). Signalling the whole
// group reaches descendants a leader-only signal would miss.
func TerminateGroup(logger zerolog.Logger, pid int, gracefulWait time.Duration) {
	if pid <= 0 {
		return
	}

	logger.Info().
		Int("pid", pid).
		Dur("graceful_wait", gracefulWait).
		Msg("terminating process group")

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		// Group already gone.
		logger.Debug().Int("pid", pid).Msg("process group not found (already terminated)")
		return
	}

	deadline := time.Now().Add(gracefulWait)
	for time.Now().Before(deadline) {
		if !GroupAlive(pid) {
			logger.Debug().Int("pid", pid).Msg("process group terminated gracefully")
			return
		}
		time.Sleep(pollInterval)
	}

	logger.Warn().Int("pid", pid).Msg("process group did not terminate gracefully, sending SIGKILL")
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		logger.Error().Err(err).Int("pid", pid).Msg("failed to send SIGKILL")
	}
}
