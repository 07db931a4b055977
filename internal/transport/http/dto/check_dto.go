package dto

import (
	"time"

	"github.com/banwatch/backend/internal/domain"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// OptionsPayload is the caller-facing shape of check options. Durations come
// in as seconds (submit delay as milliseconds) to keep the JSON flat.
type OptionsPayload struct {
	UseAutoBalancing     *bool   `json:"use_auto_balancing,omitempty"`
	ProxyList            string  `json:"proxy_list,omitempty"`
	LogicalBatchSize     int     `json:"logical_batch_size,omitempty"`
	MaxConcurrentBatches int     `json:"max_concurrent_batches,omitempty"`
	MaxWorkersPerBatch   int     `json:"max_workers_per_batch,omitempty"`
	SubmitDelayMS        int     `json:"inter_request_submit_delay_ms,omitempty"`
	MaxRetriesPerURL     *int    `json:"max_retries_per_url,omitempty"`
	RetryDelaySeconds    float64 `json:"retry_delay_seconds,omitempty"`
}

// ToOptions maps the payload onto domain options. Absent fields fall back to
// the defaults; an entirely absent payload means auto-balancing.
func (p *OptionsPayload) ToOptions() domain.CheckOptions {
	if p == nil {
		opts := domain.DefaultCheckOptions()
		opts.UseAutoBalancing = true
		return opts
	}

	opts := domain.DefaultCheckOptions()
	if p.UseAutoBalancing != nil {
		opts.UseAutoBalancing = *p.UseAutoBalancing
	}
	opts.ProxyList = p.ProxyList
	if p.LogicalBatchSize != 0 {
		opts.LogicalBatchSize = p.LogicalBatchSize
	}
	if p.MaxConcurrentBatches != 0 {
		opts.MaxConcurrentBatches = p.MaxConcurrentBatches
	}
	if p.MaxWorkersPerBatch != 0 {
		opts.MaxWorkersPerBatch = p.MaxWorkersPerBatch
	}
	if p.SubmitDelayMS != 0 {
		opts.SubmitDelay = time.Duration(p.SubmitDelayMS) * time.Millisecond
	}
	if p.MaxRetriesPerURL != nil {
		opts.MaxRetriesPerID = *p.MaxRetriesPerURL
	}
	if p.RetryDelaySeconds != 0 {
		opts.RetryDelay = time.Duration(p.RetryDelaySeconds * float64(time.Second))
	}
	return opts
}

type SubmitCheckRequest struct {
	SteamIDs []string        `json:"steam_ids"`
	Options  *OptionsPayload `json:"options,omitempty"`
}

func (r *SubmitCheckRequest) Validate() []string {
	var errors []string
	if p := r.Options; p != nil {
		if p.LogicalBatchSize < 0 {
			errors = append(errors, "logical_batch_size must not be negative")
		}
		if p.MaxConcurrentBatches < 0 {
			errors = append(errors, "max_concurrent_batches must not be negative")
		}
		if p.MaxWorkersPerBatch < 0 {
			errors = append(errors, "max_workers_per_batch must not be negative")
		}
		if p.SubmitDelayMS < 0 {
			errors = append(errors, "inter_request_submit_delay_ms must not be negative")
		}
		if p.MaxRetriesPerURL != nil && *p.MaxRetriesPerURL < 0 {
			errors = append(errors, "max_retries_per_url must not be negative")
		}
		if p.RetryDelaySeconds < 0 {
			errors = append(errors, "retry_delay_seconds must not be negative")
		}
	}
	return errors
}

type ResultResponse struct {
	SteamID       string `json:"steam_id"`
	StatusSummary string `json:"status_summary"`
	Details       string `json:"details"`
}

type TaskResponse struct {
	TaskID     string           `json:"task_id"`
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	Progress   float64          `json:"progress"`
	Total      int              `json:"total"`
	Results    []ResultResponse `json:"results"`
	ProxyStats domain.JSONB     `json:"proxy_stats,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func TaskToResponse(task *domain.CheckTask) TaskResponse {
	results := make([]ResultResponse, 0, len(task.Results))
	for _, r := range task.Results {
		results = append(results, ResultResponse{
			SteamID:       r.SteamID,
			StatusSummary: string(r.Summary),
			Details:       r.Details,
		})
	}
	return TaskResponse{
		TaskID:     task.TaskID,
		Status:     string(task.Status),
		Message:    task.Message,
		Progress:   task.Progress,
		Total:      task.Total,
		Results:    results,
		ProxyStats: task.ProxyStats,
		CreatedAt:  task.CreatedAt,
		UpdatedAt:  task.UpdatedAt,
	}
}

func TasksToResponse(tasks []domain.CheckTask) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, TaskToResponse(&tasks[i]))
	}
	return out
}
