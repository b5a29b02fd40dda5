package hashwheel

import "time"

func delayToTicks(delay, tick time.Duration) int64 {
	// truncating: up to one tick early
	return int64(delay / tick)
}

func targetSlot(cursor, ticks, slotCount int64) int64 {
	return (cursor%slotCount + ticks%slotCount) % slotCount
}

func roundsFor(ticks, slotCount int64) int64 {
	if ticks <= 0 {
		return 0
	}
	// a delay of exactly k revolutions is due on the k-th visit, not the k+1-th
	return (ticks - 1) / slotCount
}
