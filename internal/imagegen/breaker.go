package imagegen

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerClient guards a Client with a circuit breaker and a per-call timeout.
type BreakerClient struct {
	client  Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewBreakerClient(client Client, log logrus.FieldLogger) *BreakerClient {
	st := gobreaker.Settings{
		Name:        "ImageService",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &BreakerClient{
		client:  client,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: 15 * time.Second,
	}
}

func (w *BreakerClient) Submit(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.cb.Execute(func() (interface{}, error) {
		return w.client.Submit(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (w *BreakerClient) Status(ctx context.Context, jobID string) (Job, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.cb.Execute(func() (interface{}, error) {
		return w.client.Status(ctx, jobID)
	})
	if err != nil {
		return Job{}, err
	}
	return res.(Job), nil
}

func (w *BreakerClient) State() gobreaker.State {
	return w.cb.State()
}
