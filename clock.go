package aloop

import "math"

// PositionClock converts elapsed scheduler ticks into whole bytes without long-run drift.
//
// The position is kept in fractional units of bytes*ticksPerSecond, so the division by the tick
// rate only ever truncates the reported byte count and never the accumulated position.
// A PositionClock is not safe for concurrent use; the Device guards it with its short lock.
type PositionClock struct {
	ticksPerSecond uint64
	bps            uint64
	periodFrac     uint64

	irqPos   uint64
	lastTick uint64
	pending  uint32
}

// Configure sets the byte rate and period size. The accumulated position is kept.
func (c *PositionClock) Configure(bps uint64, periodBytes uint32, ticksPerSecond uint64) {
	c.bps = bps
	c.ticksPerSecond = ticksPerSecond
	c.periodFrac = uint64(periodBytes) * ticksPerSecond
}

// Reset clears the fractional position and any pending crossings.
func (c *PositionClock) Reset() {
	c.irqPos = 0
	c.pending = 0
}

// Start records the tick from which the next Advance measures elapsed time.
func (c *PositionClock) Start(now uint64) {
	c.lastTick = now
}

// Advance moves the clock to now and returns the whole bytes elapsed since the last call.
// Period crossings are counted, saturating at math.MaxUint32, until TakePending.
func (c *PositionClock) Advance(now uint64) uint64 {
	delta := now - c.lastTick
	if delta == 0 || c.ticksPerSecond == 0 {
		return 0
	}

	c.lastTick += delta

	last := c.irqPos / c.ticksPerSecond
	c.irqPos += delta * c.bps
	count := c.irqPos/c.ticksPerSecond - last

	if count == 0 {
		return 0
	}

	if c.periodFrac > 0 && c.irqPos >= c.periodFrac {
		crossings := c.irqPos / c.periodFrac
		c.irqPos %= c.periodFrac

		if crossings > uint64(math.MaxUint32-c.pending) {
			c.pending = math.MaxUint32
		} else {
			c.pending += uint32(crossings)
		}
	}

	return count
}

// TakePending returns the number of period crossings since the previous call and clears it.
func (c *PositionClock) TakePending() uint32 {
	n := c.pending
	c.pending = 0

	return n
}

// Pending returns the number of crossings not yet taken.
func (c *PositionClock) Pending() uint32 {
	return c.pending
}

// Pos returns the fractional position, always less than the period fraction after a crossing.
func (c *PositionClock) Pos() uint64 {
	return c.irqPos
}

// LastTick returns the tick of the last advance.
func (c *PositionClock) LastTick() uint64 {
	return c.lastTick
}

// TicksUntilPeriod returns the ticks until the next period boundary, rounded up and at least 1.
func (c *PositionClock) TicksUntilPeriod() uint64 {
	if c.bps == 0 || c.irqPos >= c.periodFrac {
		return 1
	}

	ticks := (c.periodFrac - c.irqPos + c.bps - 1) / c.bps
	if ticks == 0 {
		return 1
	}

	return ticks
}
