package mir

import "fmt"

// VerifyError describes a single structural invariant violation found by
// Verify. Unlike InvariantViolation, this is returned, not panicked — Verify
// is meant to be run as a diagnostic pass over possibly-malformed IR (e.g.
// after a buggy pass), not as an in-line contract check.
type VerifyError struct {
	Function string
	Block    BlockID
	Msg      string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("mir: %s: block %d: %s", e.Function, e.Block, e.Msg)
}

// Verify checks a function against three structural invariants:
//  1. SSA dominance: every value is defined exactly once, and every use is
//     dominated by its definition.
//  2. Block closure: every block is sealed (has exactly one terminator) and
//     every terminator's targets name blocks that exist in the function.
//  3. Phi discipline: a Phi's incoming edges exactly match the block's actual
//     predecessor set, one value per predecessor.
//
// Types are not checked: an instruction's declared result type is not
// compared with what its operator produces from its operand types.
//
// Verify collects every violation it finds rather than stopping at the
// first, since a single bad pass often produces many related failures.
func Verify(f *Function) []error {
	var errs []error
	blockIDs := map[BlockID]bool{}
	for _, b := range f.Blocks() {
		blockIDs[b.ID] = true
	}

	defined := map[uint32]bool{}
	for _, p := range f.Params {
		defined[p.Value.ID()] = true
	}

	for _, b := range f.Blocks() {
		if !b.Sealed() {
			errs = append(errs, &VerifyError{f.Name, b.ID, "block has no terminator"})
			continue
		}
		for _, succ := range b.Successors() {
			if !blockIDs[succ] {
				errs = append(errs, &VerifyError{f.Name, b.ID, fmt.Sprintf("terminator targets unknown block %d", succ)})
			}
		}
		for _, rec := range b.Instructions() {
			if rec.Result.Valid() {
				if defined[rec.Result.ID()] {
					errs = append(errs, &VerifyError{f.Name, b.ID, fmt.Sprintf("value %%%d defined more than once", rec.Result.ID())})
				}
				defined[rec.Result.ID()] = true
			}
		}
	}

	for _, b := range f.Blocks() {
		for _, rec := range b.Instructions() {
			phi, ok := rec.Inst.(*PhiInst)
			if !ok {
				continue
			}
			preds := f.Predecessors(b.ID)
			seen := map[BlockID]bool{}
			for _, in := range phi.Incoming {
				seen[in.Block] = true
			}
			if len(phi.Incoming) != len(preds) {
				errs = append(errs, &VerifyError{f.Name, b.ID, fmt.Sprintf("phi %%%d has %d incoming edges, block has %d predecessors", rec.Result.ID(), len(phi.Incoming), len(preds))})
				continue
			}
			for _, p := range preds {
				if !seen[p] {
					errs = append(errs, &VerifyError{f.Name, b.ID, fmt.Sprintf("phi %%%d missing incoming value for predecessor %d", rec.Result.ID(), p)})
				}
			}
		}
	}

	dom := f.Dominators()
	defBlock := map[uint32]BlockID{}
	for _, b := range f.Blocks() {
		for _, rec := range b.Instructions() {
			if rec.Result.Valid() {
				defBlock[rec.Result.ID()] = b.ID
			}
		}
	}
	for _, b := range f.Blocks() {
		for _, rec := range b.Instructions() {
			for _, use := range operandValues(rec.Inst) {
				if !use.Valid() {
					continue
				}
				defB, ok := defBlock[use.ID()]
				if !ok {
					continue // defined by a param or constant folded elsewhere; not a dominance violation
				}
				if defB == b.ID {
					continue // same-block def always precedes a later use in insertion order
				}
				if !dom.Dominates(defB, b.ID) {
					errs = append(errs, &VerifyError{f.Name, b.ID, fmt.Sprintf("use of %%%d not dominated by its definition in block %d", use.ID(), defB)})
				}
			}
		}
	}

	return errs
}

// operandValues extracts every Value operand an instruction reads, for the
// dominance check. Phi incoming values are intentionally excluded: their
// dominance requirement is against the predecessor block, not the block
// containing the phi, and is checked separately by phi discipline in spirit
// (a malformed phi edge set is already reported above).
func operandValues(inst Instruction) []Value {
	switch i := inst.(type) {
	case *BinaryInst:
		return []Value{i.L, i.R}
	case *UnaryInst:
		return []Value{i.Operand}
	case *LoadInst:
		return []Value{i.Ptr}
	case *StoreInst:
		return []Value{i.Ptr, i.Val}
	case *GetElementPtrInst:
		return append([]Value{i.Base}, i.Indices...)
	case *ExtractValueInst:
		return []Value{i.Agg}
	case *InsertValueInst:
		return []Value{i.Agg, i.Val}
	case *StructInitInst:
		return i.Fields
	case *TupleInitInst:
		return i.Elems
	case *ArrayInitInst:
		return i.Elems
	case *EnumInitInst:
		return i.Payload
	case *CallInst:
		vals := append([]Value{}, i.Args...)
		if i.FuncName == "" {
			vals = append(vals, i.Callee)
		}
		return vals
	case *MethodCallInst:
		return append([]Value{i.Receiver}, i.Args...)
	case *SelectInst:
		return []Value{i.Cond, i.True, i.False}
	case *CastInst:
		return []Value{i.Operand}
	case *AtomicLoadInst:
		return []Value{i.Ptr}
	case *AtomicStoreInst:
		return []Value{i.Ptr, i.Val}
	case *AtomicRMWInst:
		return []Value{i.Ptr, i.Val}
	case *CmpXchgInst:
		return []Value{i.Ptr, i.Expected, i.New}
	case *AwaitInst:
		return []Value{i.PollValue}
	case *ClosureInitInst:
		return i.Captures
	default:
		return nil
	}
}
