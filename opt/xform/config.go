package xform

import "go.uber.org/zap"

// Config holds the search knobs, constructed explicitly by the caller
// and scoped to one query. There are no package-level globals and no
// per-thread singleton.
type Config struct {
	// MaxRuleApplicationsPerGroup bounds how many new expressions rule
	// applications (all rules together) may add to any one group during
	// one exploration or implementation pass before optimization gives up
	// with ErrIterationBudgetExceeded, guarding against a pathological or
	// non-confluent rule set. Firings that only rediscover an existing
	// expression are not counted. Zero means "use DefaultMaxRuleApplicationsPerGroup".
	MaxRuleApplicationsPerGroup int

	// Alternate holds the (0-indexed) rank of the plan a caller wants,
	// zero meaning the best plan. The optimizer itself does not read it:
	// OptimizeNth takes the rank as its own argument (cmd/optdemo passes
	// this value there).
	Alternate int

	// Logger receives low-volume structural trace events (rule firings
	// and new-best updates) at Debug level. A nil Logger is a
	// safe no-op; the optimizer core otherwise performs no logging, since
	// it is CPU-bound and issues no I/O.
	Logger *zap.Logger
}

// DefaultMaxRuleApplicationsPerGroup is used when Config.MaxRuleApplicationsPerGroup is zero.
const DefaultMaxRuleApplicationsPerGroup = 10000

func (c Config) maxRuleApplications() int {
	if c.MaxRuleApplicationsPerGroup > 0 {
		return c.MaxRuleApplicationsPerGroup
	}
	return DefaultMaxRuleApplicationsPerGroup
}

func (c Config) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
