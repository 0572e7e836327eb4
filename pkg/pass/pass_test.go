package pass

import (
	"testing"

	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/mir"
	"github.com/lumen-lang/lumenc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModule(fns ...string) *mir.Module {
	mod := mir.NewModule("test")
	for _, name := range fns {
		fn := mir.NewFunction(name, types.Unit())
		fn.NewBlock("entry").SetTerminator(&mir.ReturnTerm{})
		mod.AddFunction(fn)
	}
	return mod
}

// countingPass reports change for the first n calls per function.
type countingPass struct {
	name     string
	budget   map[string]int
	runs     int
	fixpoint bool
}

func (p *countingPass) Name() string   { return p.name }
func (p *countingPass) Fixpoint() bool { return p.fixpoint }

func (p *countingPass) Run(fn *mir.Function, mod *mir.Module) bool {
	p.runs++
	if p.budget[fn.Name] > 0 {
		p.budget[fn.Name]--
		return true
	}
	return false
}

func TestManagerRunsInOrder(t *testing.T) {
	mod := testModule("a", "b")
	var order []string
	p1 := &orderPass{name: "first", order: &order}
	p2 := &orderPass{name: "second", order: &order}

	m := NewManager(O1)
	m.AddFunctionPass(p1).AddFunctionPass(p2)
	m.Run(mod)
	assert.Equal(t, []string{"first:a", "first:b", "second:a", "second:b"}, order)
}

type orderPass struct {
	name  string
	order *[]string
}

func (p *orderPass) Name() string { return p.name }
func (p *orderPass) Run(fn *mir.Function, mod *mir.Module) bool {
	*p.order = append(*p.order, p.name+":"+fn.Name)
	return false
}

func TestManagerFixpointReruns(t *testing.T) {
	mod := testModule("a")
	p := &countingPass{name: "fp", budget: map[string]int{"a": 3}, fixpoint: true}
	m := NewManager(O2)
	m.AddFunctionPass(p)
	m.Run(mod)
	// Three changing runs plus the quiescent one.
	assert.Equal(t, 4, p.runs)
	assert.Equal(t, 3, m.ChangeCounts()["fp"])
}

func TestManagerFixpointCap(t *testing.T) {
	mod := testModule("a")
	p := &countingPass{name: "fp", budget: map[string]int{"a": 1 << 20}, fixpoint: true}
	m := NewManager(O2)
	m.AddFunctionPass(p)
	m.Run(mod)
	assert.Equal(t, maxFixpointIterations, p.runs, "the iteration cap guarantees termination")
}

type diagPass struct{ sev diag.Severity }

func (p *diagPass) Name() string { return "diagpass" }
func (p *diagPass) Run(fn *mir.Function, mod *mir.Module) bool {
	return false
}
func (p *diagPass) Diagnostics() []diag.Diagnostic {
	return []diag.Diagnostic{{Severity: p.sev, Pass: p.Name(), Function: "a", Message: "finding"}}
}

func TestManagerCollectsDiagnostics(t *testing.T) {
	mod := testModule("a")
	m := NewManager(O0)
	m.AddFunctionPass(&diagPass{sev: diag.SeverityWarning})
	m.Run(mod)
	require.Len(t, m.Diagnostics(), 1)
	assert.False(t, m.HasErrors())

	m2 := NewManager(O0)
	m2.AddFunctionPass(&diagPass{sev: diag.SeverityError})
	m2.Run(mod)
	assert.True(t, m2.HasErrors())
}

func TestOptLevelString(t *testing.T) {
	assert.Equal(t, "O0", O0.String())
	assert.Equal(t, "O3", O3.String())
}

func TestProfileDataRoundTrip(t *testing.T) {
	m := NewManager(O2)
	assert.Nil(t, m.GetProfileData())
	pd := &ProfileData{Payload: 42}
	m.SetProfileData(pd)
	assert.Same(t, pd, m.GetProfileData())
}
