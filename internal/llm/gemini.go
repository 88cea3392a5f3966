package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-1.5-flash-latest"

var sheetFields = []string{
	"image_prompt", "name", "planet_name", "planet_description",
	"personality_traits", "speech_style", "quirks", "human_relationship",
}

// GeminiGenerator produces character sheets with Gemini's JSON output mode.
type GeminiGenerator struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	randomizer *Randomizer
	log        logrus.FieldLogger

	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, randomizer *Randomizer, log logrus.FieldLogger) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(designerInstruction)},
	}
	model.SetTemperature(0.9)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = sheetSchema()

	g := &GeminiGenerator{client: client, model: model, randomizer: randomizer, log: log}
	g.generate = g.generateContent
	return g, nil
}

func sheetSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(sheetFields))
	for _, f := range sheetFields {
		props[f] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   sheetFields,
	}
}

func (g *GeminiGenerator) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		g.log.WithError(err).Warn("error closing GenAI client")
	}
}

// GenerateCharacter asks the model for a new character. A reply that does
// not decode into a complete sheet fails with ErrMalformedSheet.
func (g *GeminiGenerator) GenerateCharacter(ctx context.Context) (*CharacterSheet, error) {
	traits := g.randomizer.Pick()
	g.log.WithFields(logrus.Fields{
		"gender":    traits.Gender,
		"species":   traits.Species,
		"archetype": traits.Archetype,
	}).Debug("generating character")

	text, err := g.generate(ctx, CharacterPrompt(traits))
	if err != nil {
		return nil, err
	}
	return parseSheet(text)
}

func (g *GeminiGenerator) generateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini character request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response from gemini", ErrMalformedSheet)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String(), nil
}

func parseSheet(text string) (*CharacterSheet, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(text, "```")), "```")

	var sheet CharacterSheet
	if err := json.Unmarshal([]byte(text), &sheet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSheet, err)
	}
	if err := sheet.Validate(); err != nil {
		return nil, err
	}
	return &sheet, nil
}
