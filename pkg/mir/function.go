package mir

import "github.com/lumen-lang/lumenc/pkg/types"

// Param is one formal parameter: its front-end name, MIR type, and the Value
// bound to it on entry.
type Param struct {
	Name  string
	Type  *types.Type
	Value Value
}

// FunctionFlags are the function-level boolean attributes.
type FunctionFlags struct {
	IsPublic bool
	IsAsync  bool
	UsesSret bool
}

// Function owns its basic blocks in insertion order along with the id
// counters that give it arena-style value/block identity.
type Function struct {
	Name             string
	Params           []Param
	ReturnType       *types.Type
	OriginalReturnType *types.Type // preserved across sret conversion
	Attributes       []string      // e.g. "pure", "nothrow", "readonly", "norecurse", "willreturn", "speculatable"
	Flags            FunctionFlags

	blocks []*BasicBlock

	nextValueID uint32
	nextBlockID uint32

	// cfgVersion is bumped by Touch(); dominator/predecessor caches compare
	// against it to decide whether to recompute.
	cfgVersion   uint64
	predCache    map[BlockID][]BlockID
	predVersion  uint64
	domCache     *DominatorTree
	domVersion   uint64
}

// NewFunction constructs an empty function whose value id counter starts at 1
// (id 0 is reserved as invalid).
func NewFunction(name string, returnType *types.Type) *Function {
	return &Function{
		Name:        name,
		ReturnType:  returnType,
		nextValueID: 1,
	}
}

// NewValueID allocates the next unique value id for this function.
func (f *Function) NewValueID() uint32 {
	id := f.nextValueID
	f.nextValueID++
	return id
}

// BindParam registers a parameter, allocating it a fresh Value.
func (f *Function) BindParam(name string, t *types.Type) Param {
	v := NewValue(f.NewValueID(), t)
	p := Param{Name: name, Type: t, Value: v}
	f.Params = append(f.Params, p)
	return p
}

// NewBlock appends and returns a fresh, unsealed basic block. The first block
// ever created (index 0) is the entry block.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{ID: BlockID(f.nextBlockID), Name: name}
	f.nextBlockID++
	f.blocks = append(f.blocks, b)
	f.Touch()
	return b
}

// Blocks returns the function's blocks in insertion order. The slice and its
// elements are mutable by design — passes rewrite terminators and instruction
// lists in place and must call Touch() afterward if block topology changed.
func (f *Function) Blocks() []*BasicBlock { return f.blocks }

// SetBlocks replaces the block list wholesale (used by passes that delete,
// reorder, or clone blocks) and invalidates caches.
func (f *Function) SetBlocks(blocks []*BasicBlock) {
	f.blocks = blocks
	f.Touch()
}

// Entry returns the entry block (index 0), or nil for an empty function.
func (f *Function) Entry() *BasicBlock {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// Block looks up a block by id.
func (f *Function) Block(id BlockID) *BasicBlock {
	for _, b := range f.blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Touch invalidates predecessor and dominator caches. Call after mutating
// block topology (terminators, block list) outside of NewBlock.
func (f *Function) Touch() {
	f.cfgVersion++
}

// Predecessors returns the predecessor set of block id, computed from every
// block's terminator and cached until the next Touch().
func (f *Function) Predecessors(id BlockID) []BlockID {
	if f.predCache == nil || f.predVersion != f.cfgVersion {
		f.rebuildPredecessors()
	}
	return f.predCache[id]
}

func (f *Function) rebuildPredecessors() {
	f.predCache = make(map[BlockID][]BlockID, len(f.blocks))
	for _, b := range f.blocks {
		for _, succ := range b.Successors() {
			f.predCache[succ] = append(f.predCache[succ], b.ID)
		}
	}
	for _, b := range f.blocks {
		b.preds = f.predCache[b.ID]
	}
	f.predVersion = f.cfgVersion
}

// ReversePostOrder returns block ids reachable from the entry block in
// reverse postorder, the deterministic traversal every pass iterates in.
func (f *Function) ReversePostOrder() []BlockID {
	if len(f.blocks) == 0 {
		return nil
	}
	visited := make(map[BlockID]bool, len(f.blocks))
	var post []BlockID
	var visit func(BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		b := f.Block(id)
		if b == nil {
			return
		}
		for _, s := range b.Successors() {
			visit(s)
		}
		post = append(post, id)
	}
	visit(f.blocks[0].ID)
	// reverse
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Dominators returns the dominator tree, computed on demand and cached until
// the next Touch().
func (f *Function) Dominators() *DominatorTree {
	if f.domCache == nil || f.domVersion != f.cfgVersion {
		f.domCache = computeDominators(f)
		f.domVersion = f.cfgVersion
	}
	return f.domCache
}

// HasAttribute reports whether an inferred/declared attribute is present.
func (f *Function) HasAttribute(name string) bool {
	for _, a := range f.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// AddAttribute appends name if not already present.
func (f *Function) AddAttribute(name string) {
	if !f.HasAttribute(name) {
		f.Attributes = append(f.Attributes, name)
	}
}
