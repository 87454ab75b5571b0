package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyBatch      = errors.New("batch has no tasks")
	ErrBatchInProgress = errors.New("batch already running for this session")
	ErrNoCredential    = errors.New("no api key configured")
)
