package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/store"
)

type ChatService struct {
	store    *store.Store
	resolver *Resolver
	streamer llm.ReplyStreamer
	log      logrus.FieldLogger
}

func NewChatService(s *store.Store, resolver *Resolver, streamer llm.ReplyStreamer, log logrus.FieldLogger) *ChatService {
	return &ChatService{
		store:    s,
		resolver: resolver,
		streamer: streamer,
		log:      log,
	}
}

// StartChat pairs the user with an unmet character and returns the new
// thread together with that character.
func (s *ChatService) StartChat(ctx context.Context, userID int64) (*store.Thread, *store.Character, error) {
	thread, err := s.resolver.ResolveSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.store.Characters().Get(ctx, thread.CharacterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load character for thread %d: %w", thread.ID, err)
	}
	return thread, c, nil
}

// ThreadForUser returns the thread if it belongs to userID.
func (s *ChatService) ThreadForUser(ctx context.Context, userID, threadID int64) (*store.Thread, error) {
	thread, err := s.store.Threads().Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.UserID != userID {
		return nil, fmt.Errorf("%w: thread %d", ErrForbidden, threadID)
	}
	return thread, nil
}

func (s *ChatService) ListThreads(ctx context.Context, userID int64) ([]store.Thread, error) {
	return s.store.Threads().ReadAll(ctx, store.ByUser(userID))
}

// History returns the thread's messages oldest first.
func (s *ChatService) History(ctx context.Context, userID, threadID int64) ([]store.Message, error) {
	if _, err := s.ThreadForUser(ctx, userID, threadID); err != nil {
		return nil, err
	}
	return s.store.ThreadMessages(ctx, threadID)
}

// DeleteThread removes the thread and its messages.
func (s *ChatService) DeleteThread(ctx context.Context, userID, threadID int64) error {
	if _, err := s.ThreadForUser(ctx, userID, threadID); err != nil {
		return err
	}
	if _, err := s.store.Threads().Delete(ctx, threadID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"thread_id": threadID, "user_id": userID}).Info("thread deleted")
	return nil
}

// OpenSession checks ownership and prepares a session on the thread. The
// session is CONNECTING until Run is called.
func (s *ChatService) OpenSession(ctx context.Context, user *store.User, threadID int64, transport Transport) (*Session, error) {
	thread, err := s.ThreadForUser(ctx, user.ID, threadID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Characters().Get(ctx, thread.CharacterID)
	if err != nil {
		return nil, err
	}
	return NewSession(s.store.Repos, s.streamer, transport, thread, c, user.Username, s.log), nil
}
