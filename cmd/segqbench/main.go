// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command segqbench runs repeated producer/consumer cycles against an
// Unbounded queue and checks that every value is delivered exactly once
// and in per-producer order.
//
//	segqbench --producers=8 --consumers=8 --items=1000000 --reps=20 --json
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"code.hybscloud.com/segq"
	"code.hybscloud.com/segq/internal/testbench"
	"code.hybscloud.com/segq/metrics"
)

type config struct {
	Producers       int
	Consumers       int
	Items           int
	Reps            int
	FillFirst       bool
	Jitter          bool
	InitialCapacity int
	MaxSegments     int
	Timeout         time.Duration
	JSON            bool
	Progress        bool
	LogLevel        string
}

func (c config) validate() error {
	switch {
	case c.Producers < 1 || c.Consumers < 1:
		return fmt.Errorf("producers and consumers must be positive, got %d/%d", c.Producers, c.Consumers)
	case c.Items < 0:
		return fmt.Errorf("items must not be negative, got %d", c.Items)
	case c.Reps < 1:
		return fmt.Errorf("reps must be positive, got %d", c.Reps)
	case c.InitialCapacity < 0:
		return fmt.Errorf("initial capacity must not be negative, got %d", c.InitialCapacity)
	case c.MaxSegments < 1 || c.MaxSegments > segq.MaxSegments:
		return fmt.Errorf("max segments must be in [1, %d], got %d", segq.MaxSegments, c.MaxSegments)
	}
	return nil
}

func (c config) bench() testbench.Config {
	return testbench.Config{
		Producers: c.Producers,
		Consumers: c.Consumers,
		Items:     c.Items,
		FillFirst: c.FillFirst,
		Jitter:    c.Jitter,
		Timeout:   c.Timeout,
	}
}

// systemInfo describes the host a report was taken on.
type systemInfo struct {
	NumCPU      int     `json:"num_cpu"`
	GOMAXPROCS  int     `json:"gomaxprocs"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	CPUSpeedMHz float64 `json:"cpu_speed_mhz,omitempty"`
	GOARCH      string  `json:"go_arch"`
	GoVersion   string  `json:"go_version"`
	TotalMemory uint64  `json:"total_memory_bytes,omitempty"`
}

// repResult holds one cycle's outcome and the queue state after it.
type repResult struct {
	Rep             int     `json:"rep"`
	Consumed        int64   `json:"consumed"`
	Elapsed         string  `json:"elapsed"`
	Throughput      float64 `json:"throughput_ops_sec"`
	SegmentsCreated uint64  `json:"segments_created"`
	SegmentsRetired uint64  `json:"segments_retired"`
	FinalCapacity   int     `json:"final_capacity"`
}

type report struct {
	SessionTime string      `json:"session_time"`
	System      systemInfo  `json:"system_info"`
	Producers   int         `json:"producers"`
	Consumers   int         `json:"consumers"`
	Items       int         `json:"items"`
	MaxSegments int         `json:"max_segments"`
	Reps        []repResult `json:"reps"`
	Mean        float64     `json:"mean_throughput_ops_sec"`
}

func gatherSystemInfo() systemInfo {
	info := systemInfo{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		GOARCH:     runtime.GOARCH,
		GoVersion:  runtime.Version(),
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUSpeedMHz = infos[0].Mhz
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
	}
	return info
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "info":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC), nil
}

// gatherGauges returns the value of every single-sample metric in reg,
// keyed by family name.
func gatherGauges(reg prometheus.Gatherer) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		if len(mf.GetMetric()) != 1 {
			continue
		}
		m := mf.GetMetric()[0]
		switch {
		case m.GetGauge() != nil:
			out[mf.GetName()] = m.GetGauge().GetValue()
		case m.GetCounter() != nil:
			out[mf.GetName()] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}

// runRep builds a fresh queue and runs one cycle on it.
func runRep(cfg config, rep int, logger log.Logger) (repResult, error) {
	q := segq.Build[int](segq.New(cfg.InitialCapacity).MaxSegments(cfg.MaxSegments))

	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector("bench", q)); err != nil {
		return repResult{}, fmt.Errorf("register collector: %w", err)
	}

	res, err := testbench.Run(q, cfg.bench())
	if err != nil {
		return repResult{}, fmt.Errorf("rep %d: %w", rep, err)
	}
	if err := res.Err(); err != nil {
		return repResult{}, fmt.Errorf("rep %d: %w", rep, err)
	}

	gauges, err := gatherGauges(reg)
	if err != nil {
		return repResult{}, err
	}
	out := repResult{
		Rep:             rep,
		Consumed:        res.Consumed,
		Elapsed:         res.Elapsed.String(),
		Throughput:      res.Throughput(),
		SegmentsCreated: uint64(gauges["segq_segments_created_total"]),
		SegmentsRetired: uint64(gauges["segq_segments_retired_total"]),
		FinalCapacity:   int(gauges["segq_capacity"]),
	}
	level.Debug(logger).Log(
		"msg", "rep done",
		"rep", rep,
		"elapsed", res.Elapsed,
		"throughput", humanize.SIWithDigits(out.Throughput, 2, "ops/s"),
		"segments_created", out.SegmentsCreated,
		"segments_retired", out.SegmentsRetired,
		"capacity", humanize.Comma(int64(out.FinalCapacity)),
	)
	return out, nil
}

func run(cfg config, logger log.Logger, progress io.Writer) (report, error) {
	if err := cfg.validate(); err != nil {
		return report{}, err
	}

	rpt := report{
		SessionTime: time.Now().UTC().Format(time.RFC3339),
		System:      gatherSystemInfo(),
		Producers:   cfg.Producers,
		Consumers:   cfg.Consumers,
		Items:       cfg.Items,
		MaxSegments: cfg.MaxSegments,
	}
	level.Info(logger).Log(
		"msg", "starting",
		"producers", cfg.Producers,
		"consumers", cfg.Consumers,
		"items", humanize.Comma(int64(cfg.Items)),
		"reps", cfg.Reps,
		"cpu", rpt.System.CPUModel,
		"memory", humanize.Bytes(rpt.System.TotalMemory),
	)

	var bar *progressbar.ProgressBar
	if progress != nil {
		bar = progressbar.NewOptions(cfg.Reps,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("cycles"),
			progressbar.OptionShowCount(),
		)
	}

	var sum float64
	for rep := range cfg.Reps {
		r, err := runRep(cfg, rep, logger)
		if err != nil {
			return rpt, err
		}
		rpt.Reps = append(rpt.Reps, r)
		sum += r.Throughput
		if bar != nil {
			bar.Add(1) // nolint:errcheck
		}
	}
	if bar != nil {
		bar.Finish() // nolint:errcheck
	}
	rpt.Mean = sum / float64(len(rpt.Reps))

	level.Info(logger).Log(
		"msg", "done",
		"reps", len(rpt.Reps),
		"mean_throughput", humanize.SIWithDigits(rpt.Mean, 2, "ops/s"),
	)
	return rpt, nil
}

func main() {
	var cfg config

	app := kingpin.New("segqbench", "Stress and benchmark the segq growable MPMC queue.")
	app.HelpFlag.Short('h')
	app.Flag("producers", "Producer goroutines.").Default("4").IntVar(&cfg.Producers)
	app.Flag("consumers", "Consumer goroutines.").Default("4").IntVar(&cfg.Consumers)
	app.Flag("items", "Items pushed per cycle, across all producers.").Default("100000").IntVar(&cfg.Items)
	app.Flag("reps", "Cycles to run, each on a fresh queue.").Default("50").IntVar(&cfg.Reps)
	app.Flag("fill-first", "Run producers to completion before consumers start.").BoolVar(&cfg.FillFirst)
	app.Flag("jitter", "Make producers yield at random points.").BoolVar(&cfg.Jitter)
	app.Flag("initial-capacity", "Initial queue capacity, rounded up to a segment tier.").Default("0").IntVar(&cfg.InitialCapacity)
	app.Flag("max-segments", "Segment tiers the queue may allocate.").Default(strconv.Itoa(segq.MaxSegments)).IntVar(&cfg.MaxSegments)
	app.Flag("timeout", "Abort a cycle after this long.").Default("1m").DurationVar(&cfg.Timeout)
	app.Flag("json", "Write a JSON report to stdout.").BoolVar(&cfg.JSON)
	app.Flag("progress", "Show a progress bar on stderr.").BoolVar(&cfg.Progress)
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&cfg.LogLevel, "debug", "info", "warn", "error")
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := newLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var progress io.Writer
	if cfg.Progress {
		progress = os.Stderr
	}
	rpt, err := run(cfg, logger, progress)
	if err != nil {
		level.Error(logger).Log("msg", "bench failed", "err", err)
		os.Exit(1)
	}

	if cfg.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rpt); err != nil {
			level.Error(logger).Log("msg", "failed to write report", "err", err)
			os.Exit(1)
		}
	}
}
