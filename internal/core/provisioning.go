package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/store"
)

const tracerName = "github.com/astroulette/backend/internal/core"

// tracer resolves against the global provider on every call, so a provider
// installed after package init is still used.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// ImageRenderer turns an image prompt into the URL of a finished image.
type ImageRenderer interface {
	Render(ctx context.Context, prompt string) (string, error)
}

type CharacterProvisioner interface {
	ProvisionCharacter(ctx context.Context, userID int64) (*store.Character, error)
}

// Provisioner creates a new character end to end: sheet, row, portrait.
type Provisioner struct {
	store     *store.Store
	generator llm.CharacterGenerator
	images    ImageRenderer
	attempts  int
	backoff   time.Duration
	log       logrus.FieldLogger
}

func NewProvisioner(s *store.Store, generator llm.CharacterGenerator, images ImageRenderer, attempts int, backoff time.Duration, log logrus.FieldLogger) *Provisioner {
	if attempts < 1 {
		attempts = 1
	}
	return &Provisioner{
		store:     s,
		generator: generator,
		images:    images,
		attempts:  attempts,
		backoff:   backoff,
		log:       log,
	}
}

// ProvisionCharacter retries whole attempts with a fixed backoff. Every
// attempt either commits a finished character or leaves nothing behind.
// The sheet and the portrait are produced first; the row is written in one
// short transaction at the end.
func (p *Provisioner) ProvisionCharacter(ctx context.Context, userID int64) (*store.Character, error) {
	log := p.log.WithField("user_id", userID)

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := p.attempt(ctx, userID, attempt)
		if err == nil {
			log.WithFields(logrus.Fields{"attempt": attempt, "character_id": c.ID}).Info("character provisioned")
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("character provisioning attempt failed")

		if attempt < p.attempts {
			if err := sleep(ctx, p.backoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrProvisioningFailed, p.attempts, lastErr)
}

func (p *Provisioner) attempt(ctx context.Context, userID int64, n int) (_ *store.Character, err error) {
	ctx, span := tracer().Start(ctx, "provision.attempt", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("attempt", n),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sheet, err := p.generator.GenerateCharacter(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate character: %w", err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, err
	}

	// Rendered outside the transaction so no connection is held while polling.
	url, err := p.images.Render(ctx, sheet.ImagePrompt)
	if err != nil {
		return nil, fmt.Errorf("render portrait: %w", err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("render portrait: empty image url")
	}

	var out *store.Character
	err = p.store.InTx(ctx, func(ctx context.Context, repos store.Repos) error {
		c, err := repos.Characters().Create(ctx, &store.Character{
			ImagePrompt:       sheet.ImagePrompt,
			ImageURL:          store.ImagePending,
			GeneratedBy:       userID,
			Name:              sheet.Name,
			PlanetName:        sheet.PlanetName,
			PlanetDescription: sheet.PlanetDescription,
			PersonalityTraits: sheet.PersonalityTraits,
			SpeechStyle:       sheet.SpeechStyle,
			Quirks:            sheet.Quirks,
			HumanRelationship: sheet.HumanRelationship,
		})
		if err != nil {
			return err
		}
		out, err = repos.Characters().Update(ctx, c.ID, store.CharacterPatch{ImageURL: &url})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
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
