// Package llm holds the text-service side of the chat backend: character
// sheet generation and streamed persona replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedSheet is returned when a generated character sheet is not
// valid JSON or is missing fields.
var ErrMalformedSheet = errors.New("malformed character sheet")

// CharacterSheet is a generated character before it is stored.
type CharacterSheet struct {
	ImagePrompt       string `json:"image_prompt"`
	Name              string `json:"name"`
	PlanetName        string `json:"planet_name"`
	PlanetDescription string `json:"planet_description"`
	PersonalityTraits string `json:"personality_traits"`
	SpeechStyle       string `json:"speech_style"`
	Quirks            string `json:"quirks"`
	HumanRelationship string `json:"human_relationship"`
}

// Validate reports every empty field of the sheet.
func (c *CharacterSheet) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"image_prompt", c.ImagePrompt},
		{"name", c.Name},
		{"planet_name", c.PlanetName},
		{"planet_description", c.PlanetDescription},
		{"personality_traits", c.PersonalityTraits},
		{"speech_style", c.SpeechStyle},
		{"quirks", c.Quirks},
		{"human_relationship", c.HumanRelationship},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedSheet, strings.Join(missing, ", "))
	}
	return nil
}

// Persona is what a reply needs to know about the character speaking.
type Persona struct {
	Name              string
	PlanetName        string
	PlanetDescription string
	PersonalityTraits string
	SpeechStyle       string
	Quirks            string
	HumanRelationship string
}

type ReplyRequest struct {
	Persona Persona
	Input   string
	// PreviousResponseID continues the server-side conversation. Empty starts a new one.
	PreviousResponseID string
	User               string
}

// Event is one item of a reply stream: Delta, Completed or Failed.
type Event interface {
	isEvent()
}

type Delta struct {
	Text string
}

// Completed ends a successful stream. ResponseID is the continuation token
// for the next turn.
type Completed struct {
	ResponseID string
	Text       string
	CreatedAt  time.Time
}

type Failed struct {
	Err error
}

func (Delta) isEvent()     {}
func (Completed) isEvent() {}
func (Failed) isEvent()    {}

type CharacterGenerator interface {
	GenerateCharacter(ctx context.Context) (*CharacterSheet, error)
}

// ReplyStreamer streams a persona reply. The returned channel is closed
// after a Completed or Failed event, or when ctx is done.
type ReplyStreamer interface {
	StreamReply(ctx context.Context, req ReplyRequest) (<-chan Event, error)
}
