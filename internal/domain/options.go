package domain

import "time"

// Valid ranges for caller-supplied check options. Values outside a range are
// clamped at the submission boundary, never rejected.
const (
	MinBatchSize = 1
	MaxBatchSize = 50

	MinConcurrentBatches = 1
	MaxConcurrentBatches = 10

	MinWorkersPerBatch = 1
	MaxWorkersPerBatch = 10

	MaxSubmitDelay = 1 * time.Second
	MaxRetries     = 5
	MaxRetryDelay  = 10 * time.Second
)

// CheckOptions controls batching, concurrency and retry behaviour of one
// submission. When UseAutoBalancing is set, every field except ProxyList is
// recomputed server-side from the input size.
type CheckOptions struct {
	UseAutoBalancing     bool          `json:"use_auto_balancing"`
	ProxyList            string        `json:"proxy_list,omitempty"` // newline-delimited URIs
	LogicalBatchSize     int           `json:"logical_batch_size"`
	MaxConcurrentBatches int           `json:"max_concurrent_batches"`
	MaxWorkersPerBatch   int           `json:"max_workers_per_batch"`
	SubmitDelay          time.Duration `json:"inter_request_submit_delay"`
	MaxRetriesPerID      int           `json:"max_retries_per_url"`
	RetryDelay           time.Duration `json:"retry_delay_seconds"`
}

// DefaultCheckOptions are the effective options for a manual submission that
// leaves everything unset.
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		LogicalBatchSize:     10,
		MaxConcurrentBatches: 2,
		MaxWorkersPerBatch:   2,
		SubmitDelay:          100 * time.Millisecond,
		MaxRetriesPerID:      2,
		RetryDelay:           2 * time.Second,
	}
}

// Clamped returns a copy with every field forced into its valid range.
// Clamping already-valid options is a no-op.
func (o CheckOptions) Clamped() CheckOptions {
	o.LogicalBatchSize = clampInt(o.LogicalBatchSize, MinBatchSize, MaxBatchSize)
	o.MaxConcurrentBatches = clampInt(o.MaxConcurrentBatches, MinConcurrentBatches, MaxConcurrentBatches)
	o.MaxWorkersPerBatch = clampInt(o.MaxWorkersPerBatch, MinWorkersPerBatch, MaxWorkersPerBatch)
	o.SubmitDelay = clampDuration(o.SubmitDelay, 0, MaxSubmitDelay)
	o.MaxRetriesPerID = clampInt(o.MaxRetriesPerID, 0, MaxRetries)
	o.RetryDelay = clampDuration(o.RetryDelay, 0, MaxRetryDelay)
	return o
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
