package services

import "errors"

// Task errors
var (
	ErrTaskNotFound       = errors.New("task: not found")
	ErrTaskInvalidInput   = errors.New("task: invalid input")
	ErrTooManyIdentifiers = errors.New("task: identifier list exceeds limit")
)

// CSV ingestion errors
var (
	ErrCSVEmpty          = errors.New("csv: file is empty")
	ErrCSVColumnNotFound = errors.New("csv: identifier column not found")
)

// Proxy errors
var (
	ErrNoUsableProxy   = errors.New("proxy: no usable proxy and direct connections disallowed")
	ErrProxiesRequired = errors.New("proxy: policy requires proxies but none were usable")
)

// Status client errors
var (
	ErrRateLimited = errors.New("status: rate limited by upstream")
)
