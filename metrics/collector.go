package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KFCxMcDonalds/hashwheel"
)

type StatsSource interface {
	Stats() hashwheel.Stats
}

type wheelCollector struct {
	src StatsSource

	active   *prometheus.Desc
	running  *prometheus.Desc
	index    *prometheus.Desc
	slots    *prometheus.Desc
	maxSlot  *prometheus.Desc
	tickSecs *prometheus.Desc
}

func newWheelCollector(namespace string, src StatsSource) *wheelCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "wheel", name), help, nil, nil)
	}
	return &wheelCollector{
		src:      src,
		active:   desc("active_tasks", "Tasks currently waiting in a slot."),
		running:  desc("running_tasks", "Tasks currently executing on a worker."),
		index:    desc("current_index", "Slot the pointer last visited."),
		slots:    desc("slot_count", "Number of slots in the wheel."),
		maxSlot:  desc("max_slot_size", "Size of the fullest slot."),
		tickSecs: desc("tick_seconds", "Configured tick duration."),
	}
}

func (c *wheelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.running
	ch <- c.index
	ch <- c.slots
	ch <- c.maxSlot
	ch <- c.tickSecs
}

func (c *wheelCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	largest := 0
	for _, n := range st.SlotSizes {
		largest = max(largest, n)
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.ActiveTaskCount))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(st.RunningTasks))
	ch <- prometheus.MustNewConstMetric(c.index, prometheus.GaugeValue, float64(st.CurrentIndex))
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(st.SlotCount))
	ch <- prometheus.MustNewConstMetric(c.maxSlot, prometheus.GaugeValue, float64(largest))
	ch <- prometheus.MustNewConstMetric(c.tickSecs, prometheus.GaugeValue, st.TickDuration.Seconds())
}
