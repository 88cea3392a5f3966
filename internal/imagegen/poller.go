package imagegen

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPolls     = 10
	DefaultPollDelay = time.Second
)

// Poller submits a prompt and polls the job until it completes, fails or
// runs out of polls.
type Poller struct {
	client Client
	polls  int
	delay  time.Duration
	log    logrus.FieldLogger
}

func NewPoller(client Client, polls int, delay time.Duration, log logrus.FieldLogger) *Poller {
	if polls <= 0 {
		polls = DefaultPolls
	}
	if delay < 0 {
		delay = DefaultPollDelay
	}
	return &Poller{client: client, polls: polls, delay: delay, log: log}
}

// Render returns the URL of the finished image.
func (p *Poller) Render(ctx context.Context, prompt string) (string, error) {
	jobID, err := p.client.Submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	log := p.log.WithField("job_id", jobID)

	for i := 1; i <= p.polls; i++ {
		job, err := p.client.Status(ctx, jobID)
		if err != nil {
			return "", err
		}

		switch job.Status {
		case StatusComplete:
			log.WithField("polls", i).Info("image ready")
			return job.URL, nil
		case StatusFailed:
			return "", fmt.Errorf("%w: job %s", ErrGenerationFailed, jobID)
		}

		log.WithField("poll", i).Debug("image pending")
		if i < p.polls {
			if err := sleep(ctx, p.delay); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("%w: job %s after %d polls", ErrPollExhausted, jobID, p.polls)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
