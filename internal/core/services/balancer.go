package services

import (
	"time"

	"github.com/banwatch/backend/internal/domain"
)

// MaxGlobalInFlight caps total concurrent outbound calls for one task
// (concurrent batches x workers per batch). The upstream status service
// throttles aggressively above this.
const MaxGlobalInFlight = 8

// BalanceOptions derives the effective options for a submission of n
// identifiers. Manual options are clamped and returned as-is. Auto-balanced
// options follow a stepwise curve: batch size and total concurrency grow with
// n while staying under MaxGlobalInFlight, and the submit delay and retry
// budget get more conservative for large inputs. Deterministic for fixed n.
func BalanceOptions(n int, opts domain.CheckOptions) domain.CheckOptions {
	out := opts.Clamped()
	if !opts.UseAutoBalancing {
		return out
	}

	switch {
	case n <= 10:
		out.LogicalBatchSize = 5
		out.MaxConcurrentBatches = 2
	case n <= 50:
		out.LogicalBatchSize = 10
		out.MaxConcurrentBatches = 2
	case n <= 200:
		out.LogicalBatchSize = 25
		out.MaxConcurrentBatches = 3
	default:
		out.LogicalBatchSize = 50
		out.MaxConcurrentBatches = 4
	}

	out.MaxWorkersPerBatch = 2
	if out.MaxConcurrentBatches*out.MaxWorkersPerBatch > MaxGlobalInFlight {
		out.MaxWorkersPerBatch = MaxGlobalInFlight / out.MaxConcurrentBatches
		if out.MaxWorkersPerBatch < 1 {
			out.MaxWorkersPerBatch = 1
		}
	}

	switch {
	case n <= 100:
		out.SubmitDelay = 100 * time.Millisecond
	case n <= 500:
		out.SubmitDelay = 250 * time.Millisecond
	default:
		out.SubmitDelay = 500 * time.Millisecond
	}

	if n <= 200 {
		out.MaxRetriesPerID = 3
		out.RetryDelay = 2 * time.Second
	} else {
		out.MaxRetriesPerID = 2
		out.RetryDelay = 3 * time.Second
	}

	return out
}
