package partition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourFnModule builds a four-function [A, B, C, D] module.
func fourFnModule() *mir.Module {
	mod := mir.NewModule("quad")
	i64 := types.I64()
	for _, name := range []string{"A", "B", "C", "D"} {
		fn := mir.NewFunction(name, i64)
		entry := fn.NewBlock("entry")
		v := mir.NewValue(fn.NewValueID(), i64)
		entry.Append(mir.InstructionRecord{
			Inst: &mir.ConstIntInst{Value: int64(len(name)), Bits: 64, Signed: true}, Result: v, Type: i64,
		})
		entry.SetTerminator(&mir.ReturnTerm{Value: v})
		mod.AddFunction(fn)
	}
	return mod
}

func TestPartitionStability(t *testing.T) {
	mod := fourFnModule()
	first, err := Partition(mod, WithUnits(2))
	require.NoError(t, err)
	second, err := Partition(mod, WithUnits(2))
	require.NoError(t, err)

	require.Len(t, first.Units, 2)
	require.Len(t, second.Units, 2)
	for i := range first.Units {
		assert.Equal(t, first.Units[i].Fingerprint, second.Units[i].Fingerprint)
		assert.Equal(t, first.Units[i].FunctionNames, second.Units[i].FunctionNames)
		assert.Equal(t, first.Units[i].IRText, second.Units[i].IRText)
	}
}

func TestPartitionBodyChangeIsLocal(t *testing.T) {
	mod := fourFnModule()
	before, err := Partition(mod, WithUnits(2))
	require.NoError(t, err)

	// Change A's body only.
	a := mod.Function("A")
	entry := a.Entry()
	v := mir.NewValue(a.NewValueID(), types.I64())
	insts := entry.Instructions()
	entry.SetInstructions(append(insts, mir.InstructionRecord{
		Inst: &mir.ConstIntInst{Value: 99, Bits: 64, Signed: true}, Result: v, Type: types.I64(),
	}))

	after, err := Partition(mod, WithUnits(2))
	require.NoError(t, err)

	var aUnit int = -1
	for i, u := range before.Units {
		for _, name := range u.FunctionNames {
			if name == "A" {
				aUnit = i
			}
		}
	}
	require.GreaterOrEqual(t, aUnit, 0)
	for i := range before.Units {
		if i == aUnit {
			assert.NotEqual(t, before.Units[i].Fingerprint, after.Units[i].Fingerprint,
				"the unit containing A must change")
		} else {
			assert.Equal(t, before.Units[i].Fingerprint, after.Units[i].Fingerprint,
				"units without A must not change")
		}
	}
}

func TestPartitionEmptyModule(t *testing.T) {
	res, err := Partition(mir.NewModule("empty"), WithUnits(4))
	require.NoError(t, err)
	assert.Empty(t, res.Units)
}

func TestPartitionMonolithicPath(t *testing.T) {
	mod := mir.NewModule("solo")
	fn := mir.NewFunction("only", types.Unit())
	fn.NewBlock("entry").SetTerminator(&mir.ReturnTerm{})
	mod.AddFunction(fn)

	// Requested N far above the function count collapses to one unit.
	res, err := Partition(mod, WithUnits(16))
	require.NoError(t, err)
	require.Len(t, res.Units, 1)
	assert.Equal(t, []string{"only"}, res.Units[0].FunctionNames)
}

func TestFingerprintStability(t *testing.T) {
	mod := fourFnModule()
	a := mod.Function("A")
	assert.Equal(t, FingerprintFunction(a), FingerprintFunction(a))

	b := mod.Function("B")
	assert.NotEqual(t, FingerprintFunction(a), FingerprintFunction(b))
}

func TestFingerprintSensitivity(t *testing.T) {
	mod := fourFnModule()
	a := mod.Function("A")
	before := FingerprintFunction(a)

	a.AddAttribute("pure")
	afterAttr := FingerprintFunction(a)
	assert.NotEqual(t, before, afterAttr, "attributes are part of the content hash")

	a.Flags.UsesSret = true
	assert.NotEqual(t, afterAttr, FingerprintFunction(a), "flags are part of the content hash")
}

func TestCombineFingerprintsOrderIndependent(t *testing.T) {
	fps := []uint64{3, 1, 2}
	rev := []uint64{2, 1, 3}
	assert.Equal(t, CombineFingerprints(fps), CombineFingerprints(rev))
}

func TestObjectName(t *testing.T) {
	u := Unit{Index: 1, Fingerprint: "0123456789abcdef"}
	assert.Equal(t, "mod.cgu1.0123456789ab.o", u.ObjectName("mod"))
}

func TestEmittedIRContainsDefsAndDecls(t *testing.T) {
	mod := fourFnModule()
	res, err := Partition(mod, WithUnits(2))
	require.NoError(t, err)

	for _, u := range res.Units {
		inUnit := map[string]bool{}
		for _, n := range u.FunctionNames {
			inUnit[n] = true
		}
		for _, fn := range mod.Functions {
			if inUnit[fn.Name] {
				assert.Contains(t, u.IRText, "define", "unit defines its own functions")
				assert.Contains(t, u.IRText, "@"+fn.Name+"(")
			} else {
				assert.Contains(t, u.IRText, "declare", "out-of-unit functions are declared")
			}
		}
	}
}

func TestCacheTempRenameProtocol(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)

	assert.False(t, cache.Hit("x.o"))
	require.NoError(t, cache.Put("x.o", []byte("obj")))
	assert.True(t, cache.Hit("x.o"))

	// A duplicate writer leaves the existing object intact and no temp
	// files behind.
	require.NoError(t, cache.Put("x.o", []byte("other")))
	data, err := os.ReadFile(cache.Path("x.o"))
	require.NoError(t, err)
	assert.Equal(t, "obj", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp."), "no temp residue: %s", e.Name())
	}
	assert.Equal(t, filepath.Join(dir, "x.o"), cache.Path("x.o"))
}
