package mir

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond constructs:
//
//	entry: %1 = const.bool true; br.cond %1, then, else
//	then:  %2 = const.i32 1; br join
//	else:  %3 = const.i32 2; br join
//	join:  %4 = phi [%2, then], [%3, else]; ret %4
func buildDiamond(t *testing.T) *Function {
	t.Helper()
	i32 := types.I32()
	fn := NewFunction("diamond", i32)

	entry := fn.NewBlock("entry")
	then := fn.NewBlock("then")
	els := fn.NewBlock("else")
	join := fn.NewBlock("join")

	cond := NewValue(fn.NewValueID(), types.Bool())
	entry.Append(InstructionRecord{Inst: &ConstBoolInst{Value: true}, Result: cond, Type: types.Bool()})
	entry.SetTerminator(&CondBranchTerm{Cond: cond, TrueBlk: then.ID, FalseBlk: els.ID})

	v1 := NewValue(fn.NewValueID(), i32)
	then.Append(InstructionRecord{Inst: &ConstIntInst{Value: 1, Bits: 32, Signed: true}, Result: v1, Type: i32})
	then.SetTerminator(&BranchTerm{Target: join.ID})

	v2 := NewValue(fn.NewValueID(), i32)
	els.Append(InstructionRecord{Inst: &ConstIntInst{Value: 2, Bits: 32, Signed: true}, Result: v2, Type: i32})
	els.SetTerminator(&BranchTerm{Target: join.ID})

	phi := NewValue(fn.NewValueID(), i32)
	join.Append(InstructionRecord{
		Inst:   &PhiInst{Incoming: []PhiIncoming{{Value: v1, Block: then.ID}, {Value: v2, Block: els.ID}}},
		Result: phi, Type: i32,
	})
	join.SetTerminator(&ReturnTerm{Value: phi})

	return fn
}

func TestBlockSealingPanics(t *testing.T) {
	fn := NewFunction("f", types.Unit())
	b := fn.NewBlock("entry")
	b.SetTerminator(&ReturnTerm{})
	assert.Panics(t, func() {
		b.Append(InstructionRecord{Inst: &ConstUnitInst{}})
	})
	assert.Panics(t, func() {
		b.SetTerminator(&UnreachableTerm{})
	})
}

func TestPredecessorsFollowTopology(t *testing.T) {
	fn := buildDiamond(t)
	blocks := fn.Blocks()
	entry, then, els, join := blocks[0], blocks[1], blocks[2], blocks[3]

	assert.Empty(t, fn.Predecessors(entry.ID))
	assert.ElementsMatch(t, []BlockID{entry.ID}, fn.Predecessors(then.ID))
	assert.ElementsMatch(t, []BlockID{entry.ID}, fn.Predecessors(els.ID))
	assert.ElementsMatch(t, []BlockID{then.ID, els.ID}, fn.Predecessors(join.ID))
}

func TestDominatorTreeDiamond(t *testing.T) {
	fn := buildDiamond(t)
	blocks := fn.Blocks()
	entry, then, els, join := blocks[0], blocks[1], blocks[2], blocks[3]
	dom := fn.Dominators()

	assert.True(t, dom.Dominates(entry.ID, join.ID))
	assert.False(t, dom.StrictlyDominates(then.ID, join.ID))
	assert.False(t, dom.StrictlyDominates(els.ID, join.ID))

	idomJoin, ok := dom.IDom(join.ID)
	require.True(t, ok)
	assert.Equal(t, entry.ID, idomJoin)
}

func TestVerifyAcceptsWellFormedDiamond(t *testing.T) {
	fn := buildDiamond(t)
	assert.Empty(t, Verify(fn))
}

func TestVerifyCatchesUnsealedBlock(t *testing.T) {
	fn := NewFunction("f", types.Unit())
	fn.NewBlock("entry")
	errs := Verify(fn)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no terminator")
}

func TestVerifyCatchesBadPhiArity(t *testing.T) {
	fn := buildDiamond(t)
	join := fn.Blocks()[3]
	rec := join.Instructions()[0]
	phi := rec.Inst.(*PhiInst)
	phi.Incoming = phi.Incoming[:1] // drop one incoming edge

	errs := Verify(fn)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if assert.ObjectsAreEqual(true, true) && (contains(e.Error(), "incoming edges")) {
			found = true
		}
	}
	assert.True(t, found)
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func TestReversePostOrderStartsAtEntry(t *testing.T) {
	fn := buildDiamond(t)
	rpo := fn.ReversePostOrder()
	require.NotEmpty(t, rpo)
	assert.Equal(t, fn.Blocks()[0].ID, rpo[0])
	assert.Len(t, rpo, 4)
}

func TestTouchInvalidatesDominatorCache(t *testing.T) {
	fn := buildDiamond(t)
	first := fn.Dominators()
	fn.Touch()
	second := fn.Dominators()
	assert.NotSame(t, first, second)
}
