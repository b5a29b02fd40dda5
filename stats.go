package hashwheel

import (
	"slices"
	"time"
)

// Stats is a point-in-time copy of the wheel's counters and geometry.
type Stats struct {
	SlotCount       int           `json:"slot_count"`
	TickDuration    time.Duration `json:"tick_duration"`
	CurrentIndex    int           `json:"current_index"`
	TotalScheduled  int64         `json:"total_scheduled"`
	TotalCompleted  int64         `json:"total_completed"`
	TotalFailed     int64         `json:"total_failed"`
	TotalCancelled  int64         `json:"total_cancelled"`
	ActiveTaskCount int           `json:"active_task_count"`
	RunningTasks    int64         `json:"running_tasks"`
	SlotSizes       []int         `json:"per_slot_sizes"`
}

// Stats only performs atomic reads and never waits on a slot lock, so the
// figures may be mutually inconsistent while schedules or ticks are in flight.
func (tw *TimeWheel) Stats() Stats {
	st := Stats{
		SlotCount:      int(tw.slotCount),
		TickDuration:   tw.tick,
		CurrentIndex:   tw.CurrentIndex(),
		TotalScheduled: tw.scheduled.Load(),
		TotalCompleted: tw.completed.Load(),
		TotalFailed:    tw.failed.Load(),
		TotalCancelled: tw.cancelled.Load(),
		RunningTasks:   tw.running.Load(),
		SlotSizes:      make([]int, len(tw.slots)),
	}
	for i, s := range tw.slots {
		n := s.size()
		st.SlotSizes[i] = n
		st.ActiveTaskCount += n
	}
	return st
}

// GetTask returns a snapshot of a pending task, or of a finished one that is
// still inside the retention window.
func (tw *TimeWheel) GetTask(id string) (TaskSnapshot, bool) {
	v, ok := tw.registry.Get(id)
	if !ok {
		return TaskSnapshot{}, false
	}
	return v.(*Task).Snapshot(), true
}

// ListActiveTasks returns every task that has not reached a terminal state,
// ordered by nominal fire time.
func (tw *TimeWheel) ListActiveTasks() []TaskSnapshot {
	items := tw.registry.Items()
	out := make([]TaskSnapshot, 0, len(items))
	for _, item := range items {
		t := item.Object.(*Task)
		if t.State().Terminal() {
			continue
		}
		out = append(out, t.Snapshot())
	}
	slices.SortFunc(out, func(a, b TaskSnapshot) int {
		return a.ScheduledAt.Add(a.Delay).Compare(b.ScheduledAt.Add(b.Delay))
	})
	return out
}
