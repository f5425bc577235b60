package usage

// AggregatedStats represents summary statistics for a time period.
type AggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	FailureCount  int64 `json:"failure_count"`
	StreamedCount int64 `json:"streamed_count"`
	TotalTokens   int64 `json:"total_tokens"`
}

// DailyStats represents aggregated metrics for a single day.
type DailyStats struct {
	Day      string `json:"day"` // Format: "2006-01-02"
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

// HourlyStats represents aggregated metrics for an hour of the day.
type HourlyStats struct {
	Hour     int   `json:"hour"` // 0-23
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
}

// TargetStats represents aggregated metrics per execution target.
type TargetStats struct {
	Kind             string  `json:"kind"`
	Name             string  `json:"name"`
	Requests         int64   `json:"requests"`
	SuccessCount     int64   `json:"success_count"`
	FailureCount     int64   `json:"failure_count"`
	StreamedCount    int64   `json:"streamed_count"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// Snapshot combines counters with database query results for the
// GET /api/v1/usage response.
type Snapshot struct {
	// From atomic counters (instant)
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	FailureCount  int64 `json:"failure_count"`
	StreamedCount int64 `json:"streamed_count"`
	TotalTokens   int64 `json:"total_tokens"`

	// From database queries
	RequestsByDay  map[string]int64 `json:"requests_by_day,omitempty"`
	RequestsByHour map[string]int64 `json:"requests_by_hour,omitempty"`
	TokensByDay    map[string]int64 `json:"tokens_by_day,omitempty"`
	TokensByHour   map[string]int64 `json:"tokens_by_hour,omitempty"`
	Targets        []TargetStats    `json:"targets,omitempty"`
}
