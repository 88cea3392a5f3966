package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/astroulette/backend/internal/llm"
	"github.com/astroulette/backend/internal/store"
)

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:", nullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func insertUser(t *testing.T, s *store.Store, id int64) {
	t.Helper()
	_, err := s.DB().Exec(`INSERT INTO users (id, username, email) VALUES ($1, $2, $3)`,
		id, fmt.Sprintf("user%d", id), fmt.Sprintf("user%d@example.com", id))
	require.NoError(t, err)
}

func insertCharacter(t *testing.T, s *store.Store, id, by int64) {
	t.Helper()
	_, err := s.DB().Exec(`INSERT INTO characters (id, image_prompt, image_url, generated_by, name, planet_name,
		planet_description, personality_traits, speech_style, quirks, human_relationship)
		VALUES ($1, 'prompt', 'https://img/x.png', $2, $3, 'Kormoth', 'copper seas', 'bold', 'nautical', 'clicks', 'curious')`,
		id, by, fmt.Sprintf("char%d", id))
	require.NoError(t, err)
}

func countRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func validSheet(name string) *llm.CharacterSheet {
	return &llm.CharacterSheet{
		ImagePrompt: "a violet alien", Name: name, PlanetName: "Kormoth", PlanetDescription: "copper seas",
		PersonalityTraits: "bold", SpeechStyle: "nautical", Quirks: "clicks", HumanRelationship: "curious",
	}
}

// fakeGenerator replays results in order; the last one repeats.
type fakeGenerator struct {
	mu      sync.Mutex
	results []func() (*llm.CharacterSheet, error)
	calls   int
}

func (g *fakeGenerator) GenerateCharacter(context.Context) (*llm.CharacterSheet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.results[min(g.calls, len(g.results)-1)]
	g.calls++
	return r()
}

func sheetResult(name string) func() (*llm.CharacterSheet, error) {
	return func() (*llm.CharacterSheet, error) { return validSheet(name), nil }
}

func errResult(err error) func() (*llm.CharacterSheet, error) {
	return func() (*llm.CharacterSheet, error) { return nil, err }
}

type renderFunc func(ctx context.Context, prompt string) (string, error)

func (f renderFunc) Render(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type countingProvisioner struct {
	inner CharacterProvisioner
	calls int
}

func (p *countingProvisioner) ProvisionCharacter(ctx context.Context, userID int64) (*store.Character, error) {
	p.calls++
	return p.inner.ProvisionCharacter(ctx, userID)
}

// fakeTransport delivers queued inbound frames, then reports a disconnect.
type fakeTransport struct {
	in        chan string
	mu        sync.Mutex
	out       []string
	failAfter int // writes allowed before ErrDisconnected; negative means unlimited
	closed    bool
}

func newFakeTransport(failAfter int, frames ...string) *fakeTransport {
	in := make(chan string, len(frames))
	for _, f := range frames {
		in <- f
	}
	close(in)
	return &fakeTransport{in: in, failAfter: failAfter}
}

func (t *fakeTransport) ReadText(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-t.in:
		if !ok {
			return "", ErrDisconnected
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *fakeTransport) WriteText(_ context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failAfter >= 0 && len(t.out) >= t.failAfter {
		return ErrDisconnected
	}
	t.out = append(t.out, text)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// fakeStreamer answers each call with the next scripted event list.
type fakeStreamer struct {
	mu       sync.Mutex
	scripts  [][]llm.Event
	requests []llm.ReplyRequest
	startErr error
}

func (s *fakeStreamer) StreamReply(_ context.Context, req llm.ReplyRequest) (<-chan llm.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.startErr != nil {
		return nil, s.startErr
	}
	script := s.scripts[min(len(s.requests)-1, len(s.scripts)-1)]
	ch := make(chan llm.Event, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}
