//go:build !linux

package aloop

import "time"

var processStart = time.Now()

func monotonicNanos() uint64 {
	return uint64(time.Since(processStart))
}
