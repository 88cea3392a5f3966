package core

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/store"
)

// Resolver pairs a user with a character they have not met yet.
type Resolver struct {
	store       *store.Store
	provisioner CharacterProvisioner
	log         logrus.FieldLogger
}

func NewResolver(s *store.Store, provisioner CharacterProvisioner, log logrus.FieldLogger) *Resolver {
	return &Resolver{store: s, provisioner: provisioner, log: log}
}

// ResolveSession returns a new thread between the user and an unmet
// character, provisioning a fresh character when every existing one has
// been met. A resolver that loses a race for the same character on the
// unique (user, character) index looks again once before giving up.
func (r *Resolver) ResolveSession(ctx context.Context, userID int64) (*store.Thread, error) {
	thread, err := r.pair(ctx, userID)
	if errors.Is(err, store.ErrDuplicateKey) {
		r.log.WithField("user_id", userID).Info("character taken by a concurrent resolver, retrying")
		thread, err = r.pair(ctx, userID)
	}
	return thread, err
}

func (r *Resolver) pair(ctx context.Context, userID int64) (*store.Thread, error) {
	log := r.log.WithField("user_id", userID)

	c, err := r.store.UnmetCharacter(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrRecordNotFound):
		log.Info("no unmet characters left, provisioning a new one")
		c, err = r.provisioner.ProvisionCharacter(ctx, userID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	thread, err := r.store.Threads().Create(ctx, &store.Thread{UserID: userID, CharacterID: c.ID})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"thread_id": thread.ID, "character_id": c.ID}).Info("thread created")
	return thread, nil
}
