package mir

import "fmt"

// BlockID identifies a BasicBlock within its owning Function.
type BlockID uint32

// InvariantViolation is panicked for programmer-error contract violations:
// appending to a sealed block, referencing an unknown value,
// mismatched operand types. These are never meant to surface to a compiler
// user — the driver does not recover them for anything but a crash report.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "mir: invariant violation: " + e.Msg }

func violate(format string, args ...any) {
	panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
}

// BasicBlock is a maximal straight-line instruction sequence ending in a
// single terminator. A block is sealed once its terminator is set; no
// further instructions may be appended.
type BasicBlock struct {
	ID   BlockID
	Name string

	insts []InstructionRecord
	term  Terminator

	// preds is computed lazily from the owning Function's terminators and
	// cached until the function's mutation version changes.
	preds []BlockID
}

// Instructions returns the block's instruction records in insertion order.
func (b *BasicBlock) Instructions() []InstructionRecord { return b.insts }

// SetInstructions replaces the block's instruction list wholesale. Passes use
// this after filtering or rewriting records; sealing state is unaffected.
func (b *BasicBlock) SetInstructions(insts []InstructionRecord) { b.insts = insts }

// Terminator returns the block's terminator, or nil if unsealed.
func (b *BasicBlock) Terminator() Terminator { return b.term }

// ReplaceTerminator swaps the terminator of an already-sealed block. Passes
// that rewrite control flow (async lowering, loop transforms) use this; the
// owning Function's Touch() must be called afterward since block topology may
// have changed. Panics if the block was never sealed — that would hide a
// builder bug behind a pass.
func (b *BasicBlock) ReplaceTerminator(t Terminator) {
	if !b.Sealed() {
		violate("replace terminator of unsealed block %q (%d)", b.Name, b.ID)
	}
	b.term = t
}

// Sealed reports whether the block's terminator has been set.
func (b *BasicBlock) Sealed() bool { return b.term != nil }

// Append adds an instruction record to the block. Panics (InvariantViolation)
// if the block is already sealed.
func (b *BasicBlock) Append(rec InstructionRecord) {
	if b.Sealed() {
		violate("append to sealed block %q (%d)", b.Name, b.ID)
	}
	b.insts = append(b.insts, rec)
}

// SetTerminator seals the block. Panics if already sealed.
func (b *BasicBlock) SetTerminator(t Terminator) {
	if b.Sealed() {
		violate("re-terminate sealed block %q (%d)", b.Name, b.ID)
	}
	b.term = t
}

// Successors returns the block IDs this block's terminator can transfer
// control to, in terminator-defined order. Returns nil for an unsealed block.
func (b *BasicBlock) Successors() []BlockID {
	switch t := b.term.(type) {
	case *BranchTerm:
		return []BlockID{t.Target}
	case *CondBranchTerm:
		return []BlockID{t.TrueBlk, t.FalseBlk}
	case *SwitchTerm:
		out := make([]BlockID, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			out = append(out, c.Block)
		}
		return append(out, t.Default)
	default:
		return nil
	}
}

// Predecessors returns the cached predecessor set computed by the owning
// Function. Callers must route through Function.Predecessors(blockID) to get
// a version-correct result; this field is what that method populates.
func (b *BasicBlock) Predecessors() []BlockID { return b.preds }
