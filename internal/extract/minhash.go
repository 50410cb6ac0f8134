package extract

import (
	"hash/fnv"
	"strings"
)

// Signature defaults: 128 permutations over 3-word shingles.
const (
	NumPermutations = 128
	ShingleSize     = 3
)

// Simple multiply-shift permutation constants derived from the permutation
// index; fixed so signatures are stable across runs and processes.
const (
	hashPrimeA = 0x9e3779b97f4a7c15
	hashPrimeB = 0xc2b2ae3d27d4eb4f
)

// Shingles returns the set of k-word shingles over the normalized text.
func Shingles(text string, k int) map[string]struct{} {
	normalized := NormalizeText(text)
	words := strings.Fields(normalized)
	shingles := make(map[string]struct{})
	if len(words) == 0 {
		return shingles
	}
	if len(words) < k {
		shingles[strings.Join(words, " ")] = struct{}{}
		return shingles
	}
	for i := 0; i+k <= len(words); i++ {
		shingles[strings.Join(words[i:i+k], " ")] = struct{}{}
	}
	return shingles
}

// MinHash computes an n-permutation minhash signature over the shingled
// text. Identical text always yields an identical signature.
func MinHash(text string, numPerm int) []uint64 {
	if numPerm <= 0 {
		numPerm = NumPermutations
	}
	sig := make([]uint64, numPerm)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for shingle := range Shingles(text, ShingleSize) {
		h := fnv.New64a()
		h.Write([]byte(shingle))
		base := h.Sum64()
		for i := 0; i < numPerm; i++ {
			v := (base + uint64(i)*hashPrimeA) * hashPrimeB
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Similarity estimates the Jaccard similarity of the shingle sets behind two
// signatures as the fraction of agreeing permutation slots.
func Similarity(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
