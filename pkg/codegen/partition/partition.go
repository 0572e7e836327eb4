package partition

import (
	"fmt"
	"slices"

	"github.com/lumen-lang/lumenc/pkg/logger"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

// sortedKeys gives deterministic iteration over registration maps; byte-
// identical output from identical input is part of the partitioner contract.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Unit is one codegen unit: a disjoint subset of the module's functions
// compiled to a single object file.
type Unit struct {
	Index                int
	FunctionNames        []string
	FunctionFingerprints []uint64
	Fingerprint          string
	IRText               string
}

// ObjectName is the cache-keyed object file name for this unit:
// <module>.cgu<index>.<fp12>.o.
func (u *Unit) ObjectName(moduleName string) string {
	return fmt.Sprintf("%s.cgu%d.%s.o", moduleName, u.Index, u.Fingerprint[:12])
}

// Result is the immutable partitioning outcome. The partitioner runs
// sequentially; each unit owns its output buffer, so the host driver may
// compile units in parallel without synchronization.
type Result struct {
	ModuleName string
	Units      []Unit
}

// Option configures Partition.
type Option func(*config)

type config struct {
	requested int
}

// WithUnits requests n codegen units; the effective count is capped by the
// module's function count.
func WithUnits(n int) Option {
	return func(c *config) { c.requested = n }
}

// Partition assigns every function to a unit by name hash, fingerprints each
// function and unit, and emits per-unit LLVM IR with external declarations
// for out-of-unit functions. An empty module partitions to zero units; a
// request of one unit (or a single-function module) takes the monolithic
// path.
func Partition(mod *mir.Module, opts ...Option) (*Result, error) {
	cfg := config{requested: 1}
	for _, o := range opts {
		o(&cfg)
	}

	res := &Result{ModuleName: mod.Name}
	if len(mod.Functions) == 0 {
		return res, nil
	}

	n := cfg.requested
	if n > len(mod.Functions) {
		n = len(mod.Functions)
	}
	if n < 1 {
		n = 1
	}

	fps := make(map[string]uint64, len(mod.Functions))
	for _, fn := range mod.Functions {
		fps[fn.Name] = FingerprintFunction(fn)
	}

	if n == 1 {
		unit, err := buildUnit(mod, 0, mod.Functions, fps)
		if err != nil {
			return nil, err
		}
		res.Units = []Unit{unit}
		logger.LogPartition("cgu0 (monolithic)", len(unit.FunctionNames), unit.Fingerprint)
		return res, nil
	}

	// Deterministic assignment: cgu_of(name) = hash(name) mod n.
	buckets := make([][]*mir.Function, n)
	for _, fn := range mod.Functions {
		idx := int(hashString(fn.Name) % uint64(n))
		buckets[idx] = append(buckets[idx], fn)
	}

	for i, fns := range buckets {
		unit, err := buildUnit(mod, i, fns, fps)
		if err != nil {
			return nil, err
		}
		res.Units = append(res.Units, unit)
		logger.LogPartition(fmt.Sprintf("cgu%d", i), len(unit.FunctionNames), unit.Fingerprint)
	}
	return res, nil
}

func buildUnit(mod *mir.Module, index int, fns []*mir.Function, fps map[string]uint64) (Unit, error) {
	unit := Unit{Index: index}
	for _, fn := range fns {
		unit.FunctionNames = append(unit.FunctionNames, fn.Name)
		unit.FunctionFingerprints = append(unit.FunctionFingerprints, fps[fn.Name])
	}
	unit.Fingerprint = FingerprintHex(CombineFingerprints(unit.FunctionFingerprints))

	ir, err := emitUnitIR(mod, fns)
	if err != nil {
		return Unit{}, fmt.Errorf("emit cgu%d: %w", index, err)
	}
	unit.IRText = ir
	return unit, nil
}
