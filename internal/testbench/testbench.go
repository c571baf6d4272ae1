// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package testbench runs producer/consumer cycles against a queue and
// checks delivery: every value exactly once, and each producer's values
// in push order as seen by every consumer.
package testbench

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"github.com/valyala/fastrand"
)

// Queue is the queue surface the bench drives.
// Push must not fail; Enqueue reports ErrWouldBlock when there is no room;
// TryPop reports false when nothing is available.
type Queue interface {
	Push(elem *int)
	Enqueue(elem *int) error
	TryPop() (int, bool)
}

// Config describes one cycle.
type Config struct {
	Producers int
	Consumers int
	Items     int // total across producers

	// FillFirst runs every producer to completion before any consumer
	// starts.
	FillFirst bool

	// Jitter makes producers yield at random points.
	Jitter bool

	// Timeout aborts the cycle; zero means no limit. With a timeout,
	// producers use Enqueue and give up once it expires, so a queue held
	// at its ceiling cannot stall the cycle.
	Timeout time.Duration
}

func (c Config) validate() error {
	switch {
	case c.Producers < 1:
		return errors.New("testbench: at least one producer required")
	case c.Consumers < 1:
		return errors.New("testbench: at least one consumer required")
	case c.Items < 0:
		return errors.New("testbench: negative item count")
	}
	return nil
}

// Result reports what one cycle observed.
type Result struct {
	Produced        int64
	Consumed        int64
	Duplicates      int // values popped more than once
	Missing         int // values never popped
	OrderViolations int // a consumer saw a producer's values out of order
	TimedOut        bool
	Elapsed         time.Duration
}

// ErrDelivery is returned by Result.Err for any delivery violation.
var ErrDelivery = errors.New("testbench: delivery violation")

// Err returns nil if every value was delivered exactly once and in order.
func (r Result) Err() error {
	if r.TimedOut {
		return fmt.Errorf("%w: timed out (produced=%d consumed=%d)", ErrDelivery, r.Produced, r.Consumed)
	}
	if r.Duplicates != 0 || r.Missing != 0 || r.OrderViolations != 0 {
		return fmt.Errorf("%w: duplicates=%d missing=%d order=%d",
			ErrDelivery, r.Duplicates, r.Missing, r.OrderViolations)
	}
	return nil
}

// Throughput returns consumed elements per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Consumed) / r.Elapsed.Seconds()
}

// Run executes one cycle against q.
//
// Producer p pushes values p*stride+seq for seq in increasing order, so
// each value is unique and identifies its producer and position.
func Run(q Queue, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}

	base := cfg.Items / cfg.Producers
	extra := cfg.Items % cfg.Producers
	stride := base + 1
	counts := make([]int, cfg.Producers)
	for p := range counts {
		counts[p] = base
		if p < extra {
			counts[p]++
		}
	}

	seen := make([]atomix.Int32, cfg.Producers*stride)
	var produced, consumed, violations atomix.Int64
	var timedOut atomix.Bool
	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}
	expired := func() bool {
		if deadline.IsZero() || !time.Now().After(deadline) {
			return false
		}
		timedOut.Store(true)
		return true
	}

	start := time.Now()

	var prodWg sync.WaitGroup
	for p := range cfg.Producers {
		prodWg.Add(1)
		go func(id int) {
			defer prodWg.Done()
			backoff := iox.Backoff{}
			for seq := range counts[id] {
				v := id*stride + seq
				if deadline.IsZero() {
					q.Push(&v)
				} else {
					for q.Enqueue(&v) != nil {
						if expired() {
							return
						}
						backoff.Wait()
					}
					backoff.Reset()
				}
				produced.Add(1)
				if cfg.Jitter && fastrand.Uint32n(64) == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	if cfg.FillFirst {
		prodWg.Wait()
	}

	var consWg sync.WaitGroup
	for range cfg.Consumers {
		consWg.Add(1)
		go func() {
			defer consWg.Done()
			last := make([]int, cfg.Producers)
			for i := range last {
				last[i] = -1
			}
			backoff := iox.Backoff{}
			for consumed.Load() < int64(cfg.Items) {
				v, ok := q.TryPop()
				if !ok {
					if expired() {
						return
					}
					backoff.Wait()
					continue
				}
				backoff.Reset()
				consumed.Add(1)
				if v < 0 || v >= len(seen) {
					violations.Add(1)
					continue
				}
				seen[v].Add(1)
				p, seq := v/stride, v%stride
				if seq <= last[p] {
					violations.Add(1)
				}
				last[p] = seq
			}
		}()
	}

	prodWg.Wait()
	consWg.Wait()

	r := Result{
		Produced:        produced.Load(),
		Consumed:        consumed.Load(),
		OrderViolations: int(violations.Load()),
		TimedOut:        timedOut.Load(),
		Elapsed:         time.Since(start),
	}
	for p, n := range counts {
		for seq := range n {
			switch c := seen[p*stride+seq].Load(); {
			case c == 0:
				r.Missing++
			case c > 1:
				r.Duplicates++
			}
		}
	}
	return r, nil
}
