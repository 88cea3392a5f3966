package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sheetJSON = `{
	"image_prompt": "Retrofuturism frontal close-up of a female robot space pirate",
	"name": "Vexa",
	"planet_name": "Kormoth",
	"planet_description": "A storm-wrapped world of copper seas.",
	"personality_traits": "bold, sarcastic",
	"speech_style": "nautical slang",
	"quirks": "ends sentences with a click",
	"human_relationship": "finds humans adorable but slow"
}`

func TestParseSheet(t *testing.T) {
	sheet, err := parseSheet("```json\n" + sheetJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "Vexa", sheet.Name)
	assert.Equal(t, "Kormoth", sheet.PlanetName)

	_, err = parseSheet("not json")
	require.ErrorIs(t, err, ErrMalformedSheet)

	_, err = parseSheet(`{"name": "Vexa", "planet_name": "  "}`)
	require.ErrorIs(t, err, ErrMalformedSheet)
	assert.Contains(t, err.Error(), "planet_name")
	assert.Contains(t, err.Error(), "human_relationship")
}

func TestGeminiGenerator_UsesTraitsInPrompt(t *testing.T) {
	log, _ := test.NewNullLogger()
	var prompt string
	g := &GeminiGenerator{
		randomizer: NewRandomizer(rand.New(rand.NewPCG(1, 2))),
		log:        log,
		generate: func(_ context.Context, p string) (string, error) {
			prompt = p
			return sheetJSON, nil
		},
	}

	sheet, err := g.GenerateCharacter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Vexa", sheet.Name)
	assert.Contains(t, prompt, "Retrofuturism frontal close-up of a ")

	upstream := errors.New("quota exceeded")
	g.generate = func(context.Context, string) (string, error) { return "", upstream }
	_, err = g.GenerateCharacter(context.Background())
	require.ErrorIs(t, err, upstream)
}

func TestRandomizer_PicksFromLists(t *testing.T) {
	r := NewRandomizer(rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 50; i++ {
		tr := r.Pick()
		assert.Contains(t, genders, tr.Gender)
		assert.Contains(t, species, tr.Species)
		assert.Contains(t, archetypes, tr.Archetype)
	}

	var global *Randomizer
	assert.Contains(t, genders, global.Pick().Gender)
}

func TestPersonaInstructions(t *testing.T) {
	out := PersonaInstructions(Persona{
		Name: "Vexa", PlanetName: "Kormoth", PlanetDescription: "copper seas",
		PersonalityTraits: "bold", SpeechStyle: "nautical", Quirks: "clicks", HumanRelationship: "adores them",
	})
	assert.True(t, strings.HasPrefix(out, "You are roleplaying as Vexa, an alien from the planet Kormoth: copper seas."))
	assert.Contains(t, out, "Never use emojis.")
	assert.Contains(t, out, "how you feel about them: adores them.")
	assert.Contains(t, out, "unique quirks: clicks.")
}

func sseServer(t *testing.T, events []string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, ev := range events {
			var typ struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal([]byte(ev), &typ))
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ.Type, ev)
			flusher.Flush()
		}
	}))
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestOpenAIStreamer_RelaysDeltasAndCompletion(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_abc","object":"response","created_at":1700000000,"status":"in_progress","output":[]}}`,
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Greet"}`,
		`{"type":"response.output_text.delta","sequence_number":2,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"ings"}`,
		`{"type":"response.completed","sequence_number":3,"response":{"id":"resp_abc","object":"response","created_at":1700000000,"status":"completed","output":[{"type":"message","id":"msg_1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"Greetings","annotations":[]}]}]}}`,
	}, &body)
	defer srv.Close()

	log, _ := test.NewNullLogger()
	s := NewOpenAIStreamer("sk-test", "", log, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))

	ch, err := s.StreamReply(context.Background(), ReplyRequest{
		Persona:            Persona{Name: "Vexa"},
		Input:              "hello",
		PreviousResponseID: "resp_prev",
		User:               "ana",
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, Delta{Text: "Greet"}, events[0])
	assert.Equal(t, Delta{Text: "ings"}, events[1])
	done, ok := events[2].(Completed)
	require.True(t, ok)
	assert.Equal(t, "resp_abc", done.ResponseID)
	assert.Equal(t, "Greetings", done.Text)
	assert.Equal(t, int64(1700000000), done.CreatedAt.Unix())

	assert.Equal(t, "resp_prev", body["previous_response_id"])
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, "hello", body["input"])
	assert.Equal(t, "ana", body["user"])
	assert.Equal(t, true, body["stream"])
}

func TestOpenAIStreamer_StreamEndsWithoutCompletion(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hal"}`,
	}, nil)
	defer srv.Close()

	log, _ := test.NewNullLogger()
	s := NewOpenAIStreamer("sk-test", "gpt-4o-mini", log, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))

	ch, err := s.StreamReply(context.Background(), ReplyRequest{Input: "hi"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)
	_, failed := events[1].(Failed)
	assert.True(t, failed)
}

func TestUnixFloat(t *testing.T) {
	assert.True(t, unixFloat(0).IsZero())
	ts := unixFloat(1700000000.25)
	assert.Equal(t, int64(1700000000), ts.Unix())
	assert.Equal(t, 250*time.Millisecond, time.Duration(ts.Nanosecond()))
}
