package governor

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// Sampler reports memory usage as a fraction of what is available.
type Sampler interface {
	Usage() float64
}

// Charger is implemented by samplers that account bytes explicitly.
type Charger interface {
	Charge(n int64)
	Release(n int64)
}

// UnknownUsage is reported when the platform gives no limit to compare to.
const UnknownUsage = 0.0

// RuntimeSampler compares the live Go heap with Limit, or with the runtime
// soft memory limit when Limit is zero.
type RuntimeSampler struct {
	Limit uint64
}

func (s RuntimeSampler) Usage() float64 {
	limit := s.Limit
	if limit == 0 {
		l := debug.SetMemoryLimit(-1)
		if l <= 0 || l == math.MaxInt64 {
			return UnknownUsage
		}
		limit = uint64(l)
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / float64(limit)
}

// Accountant tracks bytes an operation has touched against a fixed ceiling.
type Accountant struct {
	ceiling int64
	used    atomic.Int64
}

func NewAccountant(ceiling int64) *Accountant {
	return &Accountant{ceiling: ceiling}
}

func (a *Accountant) Charge(n int64)  { a.used.Add(n) }
func (a *Accountant) Release(n int64) { a.used.Add(-n) }
func (a *Accountant) Used() int64     { return a.used.Load() }

func (a *Accountant) Usage() float64 {
	if a.ceiling <= 0 {
		return UnknownUsage
	}
	used := a.used.Load()
	if used < 0 {
		used = 0
	}
	return float64(used) / float64(a.ceiling)
}

// Fixed reports a constant usage. Useful for tests and for hosts that
// measure memory elsewhere.
type Fixed float64

func (f Fixed) Usage() float64 { return float64(f) }
