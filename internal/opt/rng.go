package opt

import (
	"math/rand"
	randv2 "math/rand/v2"
	"time"
)

// pcgSource adapts a 64-bit PCG generator to math/rand.Source64 so the
// whole seed selects the stream; rand.NewSource keeps only seed mod 2³¹−1.
type pcgSource struct{ pcg *randv2.PCG }

func (s pcgSource) Uint64() uint64 { return s.pcg.Uint64() }
func (s pcgSource) Int63() int64   { return int64(s.pcg.Uint64() >> 1) }
func (s pcgSource) Seed(seed int64) {
	s.pcg.Seed(uint64(seed), DeriveSeed(uint64(seed), 0))
}

// NewRand returns the deterministic stream for seed. math/rand.Rand is not
// goroutine-safe; every attempt owns its own.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(pcgSource{pcg: randv2.NewPCG(seed, DeriveSeed(seed, 0))})
}

// ResolveSeed maps seed 0 to a time-derived value so the caller can report
// and replay it.
func ResolveSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	s := uint64(time.Now().UnixNano())
	if s == 0 {
		s = 1
	}
	return s
}

// DeriveSeed mixes a parent seed and a stream id with the SplitMix64
// finalizer.
func DeriveSeed(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
