package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/store"
)

// Transport carries text frames between a Session and its client. ReadText
// and WriteText return ErrDisconnected once the client is gone.
type Transport interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
	Close() error
}

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

// errTurnDropped ends a turn without an assistant message while the session stays up.
var errTurnDropped = errors.New("turn dropped")

// Session relays one client's conversation on one thread. Turns run strictly
// one after another.
type Session struct {
	repos     store.Repos
	streamer  llm.ReplyStreamer
	transport Transport
	thread    *store.Thread
	persona   llm.Persona
	username  string
	log       logrus.FieldLogger
	state     atomic.Int32
}

func NewSession(repos store.Repos, streamer llm.ReplyStreamer, transport Transport, thread *store.Thread, character *store.Character, username string, log logrus.FieldLogger) *Session {
	return &Session{
		repos:     repos,
		streamer:  streamer,
		transport: transport,
		thread:    thread,
		persona:   PersonaOf(character),
		username:  username,
		log:       log.WithFields(logrus.Fields{"thread_id": thread.ID, "user_id": thread.UserID}),
	}
}

// PersonaOf extracts what the reply service needs from a character.
func PersonaOf(c *store.Character) llm.Persona {
	return llm.Persona{
		Name:              c.Name,
		PlanetName:        c.PlanetName,
		PlanetDescription: c.PlanetDescription,
		PersonalityTraits: c.PersonalityTraits,
		SpeechStyle:       c.SpeechStyle,
		Quirks:            c.Quirks,
		HumanRelationship: c.HumanRelationship,
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run serves turns until the client disconnects or an unrecoverable error
// occurs. A disconnect is an orderly close and returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.state.Store(int32(StateActive))
	s.log.Info("chat session active")
	defer func() {
		s.state.Store(int32(StateClosed))
		if err := s.transport.Close(); err != nil {
			s.log.WithError(err).Debug("closing transport")
		}
		s.log.Info("chat session closed")
	}()

	for {
		text, err := s.transport.ReadText(ctx)
		if err != nil {
			if errors.Is(err, ErrDisconnected) || ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("reading from client")
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		err = s.turn(ctx, text)
		switch {
		case err == nil, errors.Is(err, errTurnDropped):
		case errors.Is(err, ErrDisconnected), ctx.Err() != nil:
			s.log.Info("client disconnected mid-turn, assistant reply dropped")
			return nil
		default:
			s.log.WithError(err).Error("chat turn failed")
			return err
		}
	}
}

func (s *Session) turn(ctx context.Context, text string) error {
	ctx, span := tracer().Start(ctx, "chat.turn", trace.WithAttributes(attribute.Int64("thread_id", s.thread.ID)))
	defer span.End()

	userMsg, err := s.repos.Messages().Create(ctx, &store.Message{
		ThreadID: s.thread.ID,
		Role:     store.MessageRoleUser,
		Content:  text,
	})
	if err != nil {
		return err
	}

	var previous string
	last, err := s.repos.LastAssistantMessage(ctx, s.thread.ID)
	switch {
	case err == nil:
		if last.ExternalResponseID != nil {
			previous = *last.ExternalResponseID
		}
	case errors.Is(err, store.ErrRecordNotFound):
	default:
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.streamer.StreamReply(streamCtx, llm.ReplyRequest{
		Persona:            s.persona,
		Input:              text,
		PreviousResponseID: previous,
		User:               s.username,
	})
	if err != nil {
		s.log.WithError(err).Warn("reply stream could not start")
		return errTurnDropped
	}

	for ev := range events {
		switch e := ev.(type) {
		case llm.Delta:
			if err := s.transport.WriteText(ctx, e.Text); err != nil {
				return err
			}
		case llm.Completed:
			return s.complete(ctx, userMsg, e)
		case llm.Failed:
			s.log.WithError(e.Err).Warn("reply stream failed")
			return errTurnDropped
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Warn("reply stream ended without completion")
	return errTurnDropped
}

func (s *Session) complete(ctx context.Context, userMsg *store.Message, done llm.Completed) error {
	if done.ResponseID == "" || done.Text == "" {
		s.log.WithField("response_id", done.ResponseID).Warn("malformed completion, assistant reply dropped")
		return errTurnDropped
	}
	// A client gone by the time the reply finished loses the turn.
	if err := ctx.Err(); err != nil {
		return err
	}

	// The assistant turn must sort after the user turn it answers.
	created := done.CreatedAt
	if !created.After(userMsg.CreatedAt) {
		created = userMsg.CreatedAt.Add(time.Microsecond)
	}

	id := done.ResponseID
	_, err := s.repos.Messages().Create(ctx, &store.Message{
		ThreadID:           s.thread.ID,
		ExternalResponseID: &id,
		CreatedAt:          created,
		Role:               store.MessageRoleAssistant,
		Content:            done.Text,
	})
	return err
}
