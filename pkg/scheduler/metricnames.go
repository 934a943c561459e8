package scheduler

// MetricNames makes the evaluate handler's metric identifiers configurable
// instead of hardcoded literals, so a host application can namespace them
// (SPEC_FULL.md §12, from the original evaluate_handler.rs
// EvaluateHandlerMetricNames).
type MetricNames struct {
	WorkerCount           string
	StateCacheSize        string
	ThrottledUpdateCount  string
	EvaluateResultLatency string
}

// DefaultMetricNames returns the names the handler uses when the caller
// does not override them.
func DefaultMetricNames() MetricNames {
	return MetricNames{
		WorkerCount:           "reflex_evaluate_worker_count",
		StateCacheSize:        "reflex_evaluate_state_cache_size",
		ThrottledUpdateCount:  "reflex_evaluate_throttled_update_count",
		EvaluateResultLatency: "reflex_evaluate_result_latency_seconds",
	}
}
