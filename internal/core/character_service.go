package core

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/store"
)

// CharacterService covers character management outside the chat flow.
type CharacterService struct {
	store       *store.Store
	provisioner CharacterProvisioner
	log         logrus.FieldLogger
}

func NewCharacterService(s *store.Store, provisioner CharacterProvisioner, log logrus.FieldLogger) *CharacterService {
	return &CharacterService{store: s, provisioner: provisioner, log: log}
}

func (s *CharacterService) Generate(ctx context.Context, userID int64) (*store.Character, error) {
	return s.provisioner.ProvisionCharacter(ctx, userID)
}

// Add stores a hand-written character. Without an image URL it stays PENDING.
func (s *CharacterService) Add(ctx context.Context, userID int64, c store.Character) (*store.Character, error) {
	c.ID = 0
	c.GeneratedBy = userID
	if c.ImageURL == "" {
		c.ImageURL = store.ImagePending
	}
	created, err := s.store.Characters().Create(ctx, &c)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"character_id": created.ID, "user_id": userID}).Info("character added")
	return created, nil
}

func (s *CharacterService) List(ctx context.Context) ([]store.Character, error) {
	return s.store.Characters().ReadAll(ctx)
}

func (s *CharacterService) Get(ctx context.Context, id int64) (*store.Character, error) {
	return s.store.Characters().Get(ctx, id)
}

func (s *CharacterService) Update(ctx context.Context, id int64, patch store.CharacterPatch) (*store.Character, error) {
	return s.store.Characters().Update(ctx, id, patch)
}

// Delete removes the character along with every thread opened with it.
func (s *CharacterService) Delete(ctx context.Context, id int64) (*store.Character, error) {
	return s.store.Characters().Delete(ctx, id)
}
