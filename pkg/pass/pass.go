// Package pass defines the uniform interface every MIR analysis and
// transformation implements, plus the PassManager that sequences them into
// the O0-O3 optimization-level pipelines.
//
// Design: two narrow interfaces (FunctionPass, ModulePass), not a single
// visitor hierarchy, the same closed-sum philosophy the instruction model
// uses applied to passes. A pass reports
// whether it changed anything so the manager can re-run fixed-point passes
// to quiescence.
package pass

import (
	"github.com/lumen-lang/lumenc/pkg/diag"
	"github.com/lumen-lang/lumenc/pkg/logger"
	"github.com/lumen-lang/lumenc/pkg/mir"
)

// FunctionPass runs once per function. Run reports whether it modified the
// function's IR; Name is used for statistics and logging.
type FunctionPass interface {
	Name() string
	Run(fn *mir.Function, mod *mir.Module) bool
}

// ModulePass runs once over the whole module.
type ModulePass interface {
	Name() string
	Run(mod *mir.Module) bool
}

// Fixpoint marks a FunctionPass as safe and useful to re-run until it
// reports no further change, up to Manager's hard iteration cap.
type Fixpoint interface {
	Fixpoint() bool
}

// Stats carries pass-specific metrics queried by the driver/diagnostic layer
// after a pass's Run completes. Passes that have nothing structured to say
// leave this nil; passes that do (BCE's eliminated-check count, the
// inliner's inlined-call count, ...) implement it on their own type and the
// manager stores it keyed by pass name.
type Stats interface {
	// Summary renders a one-line, human-readable account of what changed.
	// The manager stores the Stats value (see Manager.Stats); it logs only
	// the change count, not the summary.
	Summary() string
}

// DiagnosticReporter is implemented by analysis passes that report
// user-facing findings (memory leak, infinite loop, ...). The manager drains
// Diagnostics after each Run and accumulates them; the driver inspects
// Manager.HasErrors after the pipeline completes and aborts the build on any
// error-severity finding.
type DiagnosticReporter interface {
	Diagnostics() []diag.Diagnostic
}

// StatsReporter is implemented by passes that want their Stats recorded
// after each Run, independent of the bool change signal (a pass can report
// zero-valued stats on a "no change" run, which the manager still records).
type StatsReporter interface {
	LastStats() Stats
}

// OptLevel is the optimization level a PassManager pipeline targets.
type OptLevel int

const (
	O0 OptLevel = iota
	O1
	O2
	O3
)

func (l OptLevel) String() string {
	switch l {
	case O0:
		return "O0"
	case O1:
		return "O1"
	case O2:
		return "O2"
	case O3:
		return "O3"
	default:
		return "O?"
	}
}

// maxFixpointIterations bounds re-running fixed-point passes, guaranteeing
// termination even if a pass's convergence proof has a bug.
const maxFixpointIterations = 32

// step is one entry in the pipeline: exactly one of FunctionPass/ModulePass
// is set.
type step struct {
	fnPass  FunctionPass
	modPass ModulePass
}

// Manager owns an ordered pipeline of passes and runs them against a module
// at a fixed optimization level. It is single-threaded and not reentrant
// across modules: construct a fresh Manager per compilation unit.
type Manager struct {
	level       OptLevel
	steps       []step
	profileData *ProfileData
	stats       map[string]Stats
	changed     map[string]int // pass name -> number of functions/modules it changed, this Run
	diags       []diag.Diagnostic
}

// ProfileData is the opaque profile payload the inliner and PGO passes
// consume when attached via SetProfileData. The concrete
// shape lives in pkg/optimizer (Profile); pass only needs to thread the
// pointer through without depending on optimizer, which would be a cycle.
type ProfileData struct {
	Payload any
}

// NewManager constructs an empty Manager at the given optimization level.
// Use AddFunctionPass/AddModulePass to build the pipeline, or a builder in
// pkg/optimizer that assembles the standard O0-O3 pipelines.
func NewManager(level OptLevel) *Manager {
	return &Manager{level: level, stats: map[string]Stats{}, changed: map[string]int{}}
}

func (m *Manager) Level() OptLevel { return m.level }

// AddFunctionPass appends a function-level pass to the pipeline.
func (m *Manager) AddFunctionPass(p FunctionPass) *Manager {
	m.steps = append(m.steps, step{fnPass: p})
	return m
}

// AddModulePass appends a module-level pass to the pipeline.
func (m *Manager) AddModulePass(p ModulePass) *Manager {
	m.steps = append(m.steps, step{modPass: p})
	return m
}

// SetProfileData attaches profile-guided data, consumed by the inliner and
// later by branch-hint/block-layout passes.
func (m *Manager) SetProfileData(p *ProfileData) { m.profileData = p }

// GetProfileData returns the attached profile data, or nil.
func (m *Manager) GetProfileData() *ProfileData { return m.profileData }

// Run executes every pass in the pipeline, in order, against mod. Function
// passes that implement Fixpoint are re-run per function until they report
// no change or the iteration cap is hit. Run is deterministic: iteration is
// always over mod.Functions in insertion order.
func (m *Manager) Run(mod *mir.Module) {
	for _, s := range m.steps {
		switch {
		case s.fnPass != nil:
			m.runFunctionPass(s.fnPass, mod)
		case s.modPass != nil:
			m.runModulePass(s.modPass, mod)
		}
	}
}

func (m *Manager) runFunctionPass(p FunctionPass, mod *mir.Module) {
	name := p.Name()
	_, fixpoint := p.(Fixpoint)
	total := 0
	for _, fn := range mod.Functions {
		changedThisFn := false
		for i := 0; i < maxFixpointIterations; i++ {
			changed := p.Run(fn, mod)
			if changed {
				changedThisFn = true
				total++
			}
			if !changed || !fixpoint {
				break
			}
		}
		if changedThisFn {
			logger.LogPassComplete(name, fn.Name, 1)
		}
		if r, ok := p.(StatsReporter); ok {
			if st := r.LastStats(); st != nil {
				m.stats[name] = st
			}
		}
	}
	if r, ok := p.(DiagnosticReporter); ok {
		m.diags = append(m.diags, r.Diagnostics()...)
	}
	m.changed[name] = total
	logger.LogOptimization(name, total)
}

func (m *Manager) runModulePass(p ModulePass, mod *mir.Module) {
	name := p.Name()
	changed := p.Run(mod)
	n := 0
	if changed {
		n = 1
	}
	m.changed[name] = n
	if r, ok := p.(StatsReporter); ok {
		if st := r.LastStats(); st != nil {
			m.stats[name] = st
		}
	}
	if r, ok := p.(DiagnosticReporter); ok {
		m.diags = append(m.diags, r.Diagnostics()...)
	}
	logger.LogOptimization(name, n)
}

// Diagnostics returns every diagnostic reported by analysis passes during the
// last Run, in pipeline order.
func (m *Manager) Diagnostics() []diag.Diagnostic { return m.diags }

// HasErrors reports whether any reported diagnostic is error-severity.
func (m *Manager) HasErrors() bool {
	for _, d := range m.diags {
		if d.Severity == diag.SeverityError {
			return true
		}
	}
	return false
}

// Stats returns the last-recorded Stats for passName, or nil if the pass
// never ran or reported none.
func (m *Manager) Stats(passName string) Stats { return m.stats[passName] }

// AllStats returns every pass's recorded Stats, keyed by pass name.
func (m *Manager) AllStats() map[string]Stats { return m.stats }

// ChangeCounts returns, per pass name, how many functions/modules that pass
// reported a change for during the last Run.
func (m *Manager) ChangeCounts() map[string]int { return m.changed }
