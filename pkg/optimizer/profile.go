package optimizer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/pass"
)

// Profile is the profile-guided data payload attached to the pass manager.
// Counts come from an earlier instrumented run; the inliner
// widens its budget for hot callees and the layout pass marks hot
// functions with the "hot" attribute.
type Profile struct {
	FuncCounts   map[string]uint64
	HotThreshold uint64
}

// IsHot reports whether fn's entry count clears the hotness threshold.
func (p *Profile) IsHot(fn string) bool {
	if p == nil || p.FuncCounts == nil {
		return false
	}
	threshold := p.HotThreshold
	if threshold == 0 {
		threshold = 1000
	}
	return p.FuncCounts[fn] >= threshold
}

// LoadProfile reads the `function count` line format an instrumented binary
// dumps.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	defer f.Close()

	prof := &Profile{FuncCounts: map[string]uint64{}}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		prof.FuncCounts[fields[0]] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return prof, nil
}

// ProfileFrom unwraps the opaque pass.ProfileData payload.
func ProfileFrom(pd *pass.ProfileData) *Profile {
	if pd == nil {
		return nil
	}
	p, _ := pd.Payload.(*Profile)
	return p
}

// BranchHintStats reports layout/hint activity.
type BranchHintStats struct {
	Reordered int
	Hinted    int
}

func (s *BranchHintStats) Summary() string {
	return fmt.Sprintf("reordered %d function(s), hinted %d branch(es)", s.Reordered, s.Hinted)
}

// BlockLayout reorders a function's blocks so the likely path falls through:
// reverse postorder, with cold blocks (paths into panic/unreachable) sunk to
// the end. Hot functions per the profile get a "hot" attribute the back-end
// maps to a section hint.
type BlockLayout struct {
	Profile *Profile
	stats   BranchHintStats
}

func (p *BlockLayout) Name() string          { return "block-layout" }
func (p *BlockLayout) LastStats() pass.Stats { return &p.stats }

func (p *BlockLayout) Run(fn *mir.Function, mod *mir.Module) bool {
	changed := false
	if p.Profile.IsHot(fn.Name) && !fn.HasAttribute("hot") {
		fn.AddAttribute("hot")
		p.stats.Hinted++
		changed = true
	}

	blocks := fn.Blocks()
	if len(blocks) < 3 {
		return changed
	}

	cold := map[mir.BlockID]bool{}
	for _, b := range blocks {
		if isColdBlock(b) {
			cold[b.ID] = true
		}
	}
	if len(cold) == 0 {
		return changed
	}

	rpo := fn.ReversePostOrder()
	byID := map[mir.BlockID]*mir.BasicBlock{}
	for _, b := range blocks {
		byID[b.ID] = b
	}
	var hot, coldTail, unreachable []*mir.BasicBlock
	seen := map[mir.BlockID]bool{}
	for i, id := range rpo {
		seen[id] = true
		// The entry block stays at index 0 regardless of temperature.
		if cold[id] && i > 0 {
			coldTail = append(coldTail, byID[id])
		} else {
			hot = append(hot, byID[id])
		}
	}
	for _, b := range blocks {
		if !seen[b.ID] {
			unreachable = append(unreachable, b)
		}
	}
	ordered := append(append(hot, coldTail...), unreachable...)

	if sameOrder(blocks, ordered) {
		return changed
	}
	fn.SetBlocks(ordered)
	p.stats.Reordered++
	return true
}

// isColdBlock: ends unreachable, or exists only to call panic/abort.
func isColdBlock(b *mir.BasicBlock) bool {
	if _, ok := b.Terminator().(*mir.UnreachableTerm); ok {
		return true
	}
	for _, rec := range b.Instructions() {
		if call, ok := rec.Inst.(*mir.CallInst); ok && isPanicCall(call.FuncName) {
			return true
		}
	}
	return false
}

func sameOrder(a, b []*mir.BasicBlock) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
