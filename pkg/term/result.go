package term

// EvaluationResult pairs an evaluated term with the state-tokens that were
// consulted while producing it (spec.md §3.5).
type EvaluationResult struct {
	Result       *Term
	Dependencies DependencyList
}

// NewEvaluationResult constructs an EvaluationResult.
func NewEvaluationResult(result *Term, deps DependencyList) EvaluationResult {
	return EvaluationResult{Result: result, Dependencies: deps}
}

// IsResolved reports whether the result carries no unresolved (Pending or
// Custom) signal — an Error-only signal still counts as resolved, since
// errors are permanent and will not be retried (spec.md §3.2, §4.4.3).
func (r EvaluationResult) IsResolved() bool {
	return !r.Result.IsUnresolved()
}
