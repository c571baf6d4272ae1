// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports segq queue diagnostics as Prometheus metrics.
//
// A Collector reads [segq.Stats] on every scrape; the queue itself keeps no
// metric state and is never slowed down by registration.
//
//	q := segq.NewUnbounded[Job](0)
//	prometheus.MustRegister(metrics.NewCollector("jobs", q))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/segq"
)

const namespace = "segq"

// Source is anything that can report queue diagnostics.
// *segq.Unbounded[T] satisfies Source for every T.
type Source interface {
	Stats() segq.Stats
}

// Collector is a prometheus.Collector for one named queue.
//
// The queue name is a constant label, so several collectors can be
// registered with the same registry as long as their names differ.
type Collector struct {
	src Source

	capacity  *prometheus.Desc
	size      *prometheus.Desc
	segments  *prometheus.Desc
	pushIndex *prometheus.Desc
	popIndex  *prometheus.Desc
	created   *prometheus.Desc
	retired   *prometheus.Desc
}

// NewCollector returns a collector labelling every metric with queue=name.
func NewCollector(name string, src Source) *Collector {
	if src == nil {
		panic("metrics: nil source")
	}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", metric),
			help,
			nil,
			prometheus.Labels{"queue": name},
		)
	}
	return &Collector{
		src:       src,
		capacity:  desc("capacity", "Sum of the capacities of every segment allocated so far."),
		size:      desc("size", "Approximate number of queued elements."),
		segments:  desc("segments", "Number of live segments."),
		pushIndex: desc("push_segment_index", "Tier of the segment producers currently push into."),
		popIndex:  desc("pop_segment_index", "Tier of the oldest segment not yet retired."),
		created:   desc("segments_created_total", "Segments allocated since the queue was created."),
		retired:   desc("segments_retired_total", "Segments drained and retired since the queue was created."),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.capacity
	descs <- c.size
	descs <- c.segments
	descs <- c.pushIndex
	descs <- c.popIndex
	descs <- c.created
	descs <- c.retired
}

func (c *Collector) Collect(m chan<- prometheus.Metric) {
	st := c.src.Stats()

	gauge := func(d *prometheus.Desc, v int) {
		m <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	gauge(c.capacity, st.Capacity)
	gauge(c.size, st.Size)
	gauge(c.segments, st.Segments)
	gauge(c.pushIndex, st.PushIndex)
	gauge(c.popIndex, st.PopIndex)

	m <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.Created))
	m <- prometheus.MustNewConstMetric(c.retired, prometheus.CounterValue, float64(st.Retired))
}
