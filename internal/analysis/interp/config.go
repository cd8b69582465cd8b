package interp

// Config tunes the fixpoint driver. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	// Entry lists the functions analyzed first. When empty, main is used
	// if defined, otherwise every defined function nothing calls.
	Entry []string `yaml:"entry,omitempty"`
	// AnalyzeAll also analyzes functions no entry reaches, with unknown
	// arguments.
	AnalyzeAll bool `yaml:"analyze_all"`
	// WideningDelay is the number of joins a loop header accepts over a
	// back edge before widening.
	WideningDelay int `yaml:"widening_delay"`
	// MaxCallDepth bounds the nesting of analyzed calls. Deeper calls
	// return an unknown result.
	MaxCallDepth int `yaml:"max_call_depth"`
	// MaxArrayElements bounds the arrays tracked cell by cell.
	MaxArrayElements int `yaml:"max_array_elements"`
	// RefineBranches narrows comparison operands along conditional edges.
	RefineBranches bool `yaml:"refine_branches"`
}

func DefaultConfig() Config {
	return Config{
		AnalyzeAll:       true,
		WideningDelay:    3,
		MaxCallDepth:     8,
		MaxArrayElements: 64,
		RefineBranches:   true,
	}
}
