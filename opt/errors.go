package opt

import "github.com/cockroachdb/errors"

// Error taxonomy for the search framework. Callers distinguish
// these with errors.Is against the sentinels below; the concrete errors
// returned by the memo and the search driver carry additional context
// via errors.Wrapf/Newf but are always marked with one of these.
var (
	// ErrEmptyInput is returned when there is no statement to optimize;
	// callers should treat it as "nothing to do", not a failure.
	ErrEmptyInput = errors.New("opt: empty input")

	// ErrNoPlan is returned when extraction found no physical expression
	// satisfying the required properties at some reachable group.
	ErrNoPlan = errors.New("opt: no physical plan satisfies required properties")

	// ErrInvariantViolated marks a memo/search invariant failure: a bug in
	// the framework or in a rule, not a property of the input query. It is
	// fatal to the current optimization.
	ErrInvariantViolated = errors.New("opt: memo invariant violated")

	// ErrCancelled is returned when the caller's context was cancelled
	// during optimization; the memo is discarded.
	ErrCancelled = errors.New("opt: optimization cancelled")

	// ErrIterationBudgetExceeded is returned when a per-group rule
	// application bound (xform.Config.MaxRuleApplicationsPerGroup) is
	// exceeded, guarding against a pathological or non-confluent rule set.
	ErrIterationBudgetExceeded = errors.New("opt: rule application budget exceeded")
)
