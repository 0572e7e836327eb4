package optimizer

import "github.com/lumen-lang/lumenc/pkg/pass"

// BuildPipeline assembles the standard pipeline for an optimization level.
// Ordering constraints honored here:
//   - the analysis checks (memory leak, infinite loop) run first, over the
//     least-transformed IR, so diagnostics point at recognizable code;
//   - sret conversion runs strictly after all inlining;
//   - async lowering runs after every other optimization pass, so they see
//     the pre-state-machine form; only block layout and the final DCE
//     follow it;
//   - a final DCE sweeps out whatever the late passes orphaned.
func BuildPipeline(level pass.OptLevel, profile *Profile) *pass.Manager {
	m := pass.NewManager(level)
	if profile != nil {
		m.SetProfileData(&pass.ProfileData{Payload: profile})
	}

	m.AddFunctionPass(&MemLeakCheck{})
	m.AddFunctionPass(&InfLoopCheck{})

	if level >= pass.O1 {
		m.AddFunctionPass(&ConstFold{})
		m.AddFunctionPass(&CSE{})
		m.AddFunctionPass(&DCE{})
		m.AddModulePass(&Inliner{Profile: profile})
	}

	if level >= pass.O2 {
		m.AddModulePass(&Ipo{})
		m.AddFunctionPass(&StackPromotion{})
		m.AddFunctionPass(&BoundsCheckElim{})
		m.AddModulePass(&ModuleRvo{})
		m.AddFunctionPass(&SimpleLoopOpts{})
		m.AddFunctionPass(&ConstFold{})
		m.AddFunctionPass(&DCE{})
	}

	if level >= pass.O3 {
		m.AddFunctionPass(&AdvancedLoopOpts{})
		m.AddFunctionPass(&Vectorize{})
		m.AddModulePass(&Inliner{Aggressive: true, Profile: profile})
		m.AddFunctionPass(&DCE{})
	}

	// Essential late passes, present at every level including O0.
	m.AddModulePass(&SretConversion{})
	m.AddFunctionPass(&AsyncLowering{})
	if level >= pass.O1 {
		m.AddFunctionPass(&BlockLayout{Profile: profile})
		m.AddFunctionPass(&DCE{})
	}
	return m
}
