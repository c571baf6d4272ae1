// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package segq

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Participation gate layout.
//
//	writers: bit 31 closed  | bits [29:0] in-flight producers
//	readers: bit 31 retired | bit 30 open | bits [29:0] in-flight consumers
const (
	gateClosed  = 1 << 31
	gateRetired = 1 << 31
	gateOpen    = 1 << 30
	gateCount   = 1<<30 - 1
)

// writerGate counts producers operating on one segment.
// Once closed, no new producer can enter.
type writerGate struct {
	v atomix.Uint64
}

func (g *writerGate) enter() bool {
	sw := spin.Wait{}
	for {
		v := g.v.LoadAcquire()
		if v&gateClosed != 0 {
			return false
		}
		if g.v.CompareAndSwapAcqRel(v, v+1) {
			return true
		}
		sw.Once()
	}
}

func (g *writerGate) leave() {
	if v := g.v.AddAcqRel(^uint64(0)); v&gateCount == gateCount {
		panic("segq: writer gate left more often than entered")
	}
}

func (g *writerGate) close() {
	for {
		v := g.v.LoadAcquire()
		if v&gateClosed != 0 || g.v.CompareAndSwapAcqRel(v, v|gateClosed) {
			return
		}
	}
}

// idle reports whether the gate is closed with no producer inside.
func (g *writerGate) idle() bool {
	return g.v.LoadAcquire() == gateClosed
}

// readerGate counts consumers operating on one segment.
// It starts open; retire closes it for good.
type readerGate struct {
	v atomix.Uint64
}

func (g *readerGate) enter() bool {
	sw := spin.Wait{}
	for {
		v := g.v.LoadAcquire()
		if v&gateOpen == 0 {
			return false
		}
		if g.v.CompareAndSwapAcqRel(v, v+1) {
			return true
		}
		sw.Once()
	}
}

// leave returns the gate value after the caller has left.
func (g *readerGate) leave() uint64 {
	v := g.v.AddAcqRel(^uint64(0))
	if v&gateCount == gateCount {
		panic("segq: reader gate left more often than entered")
	}
	return v
}

// retire closes an open gate that has no consumer inside.
// Exactly one caller observes true.
func (g *readerGate) retire() bool {
	return g.v.CompareAndSwapAcqRel(gateOpen, gateRetired)
}

func (g *readerGate) retired() bool {
	return g.v.LoadAcquire()&gateRetired != 0
}

// spinLock is a single-word busy-wait lock.
// Critical sections must be O(1).
type spinLock struct {
	v atomix.Uint64
}

func (l *spinLock) lock() {
	sw := spin.Wait{}
	for !l.v.CompareAndSwapAcqRel(0, 1) {
		sw.Once()
	}
}

func (l *spinLock) unlock() {
	l.v.StoreRelease(0)
}
