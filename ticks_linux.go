//go:build linux

package aloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// monotonicNanos reads CLOCK_MONOTONIC, the clock the kernel timer wheel runs on.
func monotonicNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Since(processStart))
	}

	return uint64(ts.Nano())
}

var processStart = time.Now()
