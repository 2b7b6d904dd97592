package timing

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
	"time"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// StrongSource reads from the operating system CSPRNG. It backs every draw
// that an observer could correlate across actions (base delays, entropy, persona).
type StrongSource struct{}

func (StrongSource) Float64() float64 {
	var b [8]byte
	_, _ = crand.Read(b[:])
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// FastSource is a seeded PCG generator for cosmetic jitter.
type FastSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewFastSource seeds a PCG generator from the strong source.
func NewFastSource() *FastSource {
	var s StrongSource
	seed1 := uint64(s.Float64() * (1 << 53))
	seed2 := uint64(time.Now().UnixNano())
	return &FastSource{rng: mrand.New(mrand.NewPCG(seed1, seed2))}
}

func (f *FastSource) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64()
}

// Range is an inclusive duration interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a uniform sample from r.
func (r Range) Draw(src Source) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(src.Float64()*float64(r.Max-r.Min))
}

// IntRange is an inclusive integer interval.
type IntRange struct {
	Min int
	Max int
}

// Draw returns a uniform integer in [Min, Max].
func (r IntRange) Draw(src Source) int {
	if r.Max <= r.Min {
		return r.Min
	}
	n := r.Min + int(src.Float64()*float64(r.Max-r.Min+1))
	if n > r.Max {
		n = r.Max
	}
	return n
}

func between(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

func chance(src Source, p float64) bool {
	return src.Float64() < p
}
