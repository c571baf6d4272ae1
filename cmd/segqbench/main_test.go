// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.hybscloud.com/segq"
	"code.hybscloud.com/segq/metrics"
)

func validConfig() config {
	return config{
		Producers:   2,
		Consumers:   2,
		Items:       10000,
		Reps:        2,
		MaxSegments: segq.MaxSegments,
		Timeout:     30 * time.Second,
		LogLevel:    "info",
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	tests := []struct {
		name   string
		mutate func(*config)
	}{
		{"no producers", func(c *config) { c.Producers = 0 }},
		{"no consumers", func(c *config) { c.Consumers = 0 }},
		{"negative items", func(c *config) { c.Items = -1 }},
		{"no reps", func(c *config) { c.Reps = 0 }},
		{"negative capacity", func(c *config) { c.InitialCapacity = -1 }},
		{"zero segments", func(c *config) { c.MaxSegments = 0 }},
		{"too many segments", func(c *config) { c.MaxSegments = segq.MaxSegments + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)

	level.Info(logger).Log("msg", "hidden")
	level.Warn(logger).Log("msg", "shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "level=warn")

	_, err = newLogger(&buf, "verbose")
	assert.Error(t, err)
}

func TestGatherGauges(t *testing.T) {
	q := segq.NewUnbounded[int](0)
	for i := range 5 {
		q.Push(&i)
	}
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(metrics.NewCollector("t", q)))

	gauges, err := gatherGauges(reg)
	require.NoError(t, err)
	assert.Equal(t, 5.0, gauges["segq_size"])
	assert.Equal(t, float64(segq.BaseSegmentCap), gauges["segq_capacity"])
	assert.Equal(t, 1.0, gauges["segq_segments_created_total"])
}

func TestRun(t *testing.T) {
	if segq.RaceEnabled {
		t.Skip("skip: generic slot values are ordered by the state word")
	}
	var logs, progress bytes.Buffer
	logger := log.NewLogfmtLogger(&logs)

	cfg := validConfig()
	rpt, err := run(cfg, logger, &progress)
	require.NoError(t, err)

	require.Len(t, rpt.Reps, cfg.Reps)
	for _, r := range rpt.Reps {
		assert.Equal(t, int64(cfg.Items), r.Consumed)
		assert.GreaterOrEqual(t, r.SegmentsCreated, uint64(1))
		assert.Less(t, r.SegmentsRetired, r.SegmentsCreated)
	}
	assert.Positive(t, rpt.Mean)
	assert.Equal(t, cfg.Producers, rpt.Producers)
	assert.NotEmpty(t, rpt.System.GOARCH)
	assert.True(t, strings.Contains(logs.String(), "msg=done"))

	var decoded map[string]any
	b, err := json.Marshal(rpt)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "mean_throughput_ops_sec")
	assert.Contains(t, decoded, "system_info")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Reps = 0
	_, err := run(cfg, log.NewNopLogger(), nil)
	assert.Error(t, err)
}
