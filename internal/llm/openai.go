package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"
)

const (
	DefaultOpenAIModel = "gpt-4o"

	replyMaxTokens   = 500
	replyTemperature = 0.7
)

// OpenAIStreamer streams persona replies through the Responses API, which
// keeps conversation state server side under the previous response id.
type OpenAIStreamer struct {
	client openai.Client
	model  string
	log    logrus.FieldLogger
}

// NewOpenAIStreamer builds a streamer. Extra options (base URL, HTTP client)
// are passed to the SDK client.
func NewOpenAIStreamer(apiKey, model string, log logrus.FieldLogger, opts ...option.RequestOption) *OpenAIStreamer {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIStreamer{
		client: openai.NewClient(opts...),
		model:  model,
		log:    log,
	}
}

func (s *OpenAIStreamer) StreamReply(ctx context.Context, req ReplyRequest) (<-chan Event, error) {
	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(s.model),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(req.Input)},
		Instructions:    openai.String(PersonaInstructions(req.Persona)),
		MaxOutputTokens: openai.Int(replyMaxTokens),
		Temperature:     openai.Float(replyTemperature),
		Store:           openai.Bool(true),
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	stream := s.client.Responses.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai stream request failed: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer stream.Close()

		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			ev := stream.Current()
			switch ev.Type {
			case "response.output_text.delta":
				if !send(Delta{Text: ev.AsResponseOutputTextDelta().Delta}) {
					return
				}
			case "response.completed":
				resp := ev.AsResponseCompleted().Response
				send(Completed{
					ResponseID: resp.ID,
					Text:       resp.OutputText(),
					CreatedAt:  unixFloat(resp.CreatedAt),
				})
				return
			case "response.failed", "response.incomplete", "error":
				send(Failed{Err: fmt.Errorf("openai stream ended with %s", ev.Type)})
				return
			}
		}

		err := stream.Err()
		if err == nil {
			err = errors.New("openai stream closed before completion")
		}
		send(Failed{Err: err})
	}()

	return events, nil
}

func unixFloat(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}
