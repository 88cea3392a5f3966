// Package imagegen renders character portraits through an asynchronous
// image service: submit a prompt, then poll the job until it settles.
package imagegen

import (
	"context"
	"errors"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

var (
	ErrGenerationFailed = errors.New("image generation failed")
	ErrPollExhausted    = errors.New("image not ready within poll budget")
)

// Job is the state of one generation. URL is set once Status is COMPLETE.
type Job struct {
	ID     string
	Status Status
	URL    string
}

type Client interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Status(ctx context.Context, jobID string) (Job, error)
}
