// Package partition splits a MIR module into codegen units with stable
// per-function content fingerprints for incremental object caching.
package partition

import (
	"fmt"
	"sort"

	"github.com/lumen-lang/lumenc/pkg/mir"
)

// golden is the 64-bit golden-ratio constant used by the hash combiner for
// its avalanche behavior.
const golden = 0x9e3779b97f4a7c15

// fnv64 offset/prime for string hashing inside the combiner.
const (
	fnvOffset = 0xcbf29ce484222325
	fnvPrime  = 0x100000001b3
)

func hashString(s string) uint64 {
	h := uint64(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

// mix folds v into h, boost-combiner style.
func mix(h, v uint64) uint64 {
	h ^= v + golden + (h << 12) + (h >> 4)
	return h
}

// FingerprintFunction hashes a function's MIR content into a stable 64-bit
// value. The mix order is fixed: name, parameters,
// block count, per-block name and instruction count, per-instruction variant
// discriminator and result id, terminator discriminator, attributes, flags.
// Two invocations on the same MIR produce the same value; any structural
// change perturbs it.
func FingerprintFunction(fn *mir.Function) uint64 {
	h := uint64(fnvOffset)
	h = mix(h, hashString(fn.Name))
	for _, p := range fn.Params {
		h = mix(h, hashString(p.Name))
		h = mix(h, uint64(p.Value.ID()))
	}
	blocks := fn.Blocks()
	h = mix(h, uint64(len(blocks)))
	for _, b := range blocks {
		h = mix(h, hashString(b.Name))
		h = mix(h, uint64(len(b.Instructions())))
		for _, rec := range b.Instructions() {
			h = mix(h, uint64(rec.Inst.Opcode()))
			h = mix(h, uint64(rec.Result.ID()))
		}
		if t := b.Terminator(); t != nil {
			h = mix(h, uint64(t.Kind()))
		}
	}
	for _, a := range fn.Attributes {
		h = mix(h, hashString(a))
	}
	h = mix(h, boolBit(fn.Flags.IsPublic)|boolBit(fn.Flags.IsAsync)<<1|boolBit(fn.Flags.UsesSret)<<2)
	return h
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// CombineFingerprints folds the sorted per-function fingerprints of one CGU
// into its identity. Sorting makes the digest
// independent of assignment order.
func CombineFingerprints(fps []uint64) uint64 {
	sorted := append([]uint64(nil), fps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	h := uint64(fnvOffset)
	for _, fp := range sorted {
		h = mix(h, fp)
	}
	return h
}

// FingerprintHex renders a fingerprint as the 16-digit hex string used as
// the CGU identity; the first 12 digits form the object cache key.
func FingerprintHex(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
