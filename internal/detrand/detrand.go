// Package detrand provides seeded, reproducible randomness for scheduling
// decisions. Everything here is a pure function of its inputs: the same seed
// always yields the same draws, which lets tie-breaks and challenger picks be
// replayed from history alone.
package detrand

// Hash32 hashes a seed string with 32-bit FNV-1a: the accumulator starts at
// 2166136261 and each byte is XORed in then multiplied by 16777619, wrapping
// mod 2^32.
func Hash32(seed string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= 16777619
	}
	return h
}

// Source is a small deterministic generator (mulberry32 mixing). It is not
// cryptographic and not safe for concurrent use; callers create one per
// decision from a string seed.
type Source struct {
	state uint32
}

// New returns a Source seeded with the given 32-bit state.
func New(seed uint32) *Source {
	return &Source{state: seed}
}

// FromString returns a Source seeded with Hash32(seed).
func FromString(seed string) *Source {
	return New(Hash32(seed))
}

// Float64 advances the generator and returns the next value in [0, 1).
func (s *Source) Float64() float64 {
	s.state += 0x6D2B79F5
	z := s.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return float64(z^(z>>14)) / 4294967296.0
}

// Intn advances the generator and returns an integer in [0, n). n must be
// positive.
func (s *Source) Intn(n int) int {
	return int(s.Float64() * float64(n))
}

// Shuffle returns a new slice holding a Fisher–Yates permutation of items
// driven by a generator seeded from the string. The input is never mutated,
// and equal seeds always produce equal permutations.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)
	src := FromString(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
