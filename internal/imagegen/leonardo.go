package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultLeonardoURL = "https://cloud.leonardo.ai/api/rest/v1"

	phoenixModelID = "de7d3faf-762f-48e0-b3b7-9d0ac3a3fcf3"
	styleUUID      = "8e2bc543-6ee2-45f9-bcd9-594b6ce84dcd"
	portraitSize   = 800
)

// LeonardoClient talks to the Leonardo generations REST API.
type LeonardoClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewLeonardoClient(baseURL, apiKey string, httpClient *http.Client) *LeonardoClient {
	if baseURL == "" {
		baseURL = DefaultLeonardoURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &LeonardoClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}
}

type generationRequest struct {
	ModelID       string  `json:"modelId"`
	Prompt        string  `json:"prompt"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	NumImages     int     `json:"num_images"`
	Alchemy       bool    `json:"alchemy"`
	Contrast      float64 `json:"contrast"`
	EnhancePrompt bool    `json:"enhancePrompt"`
	StyleUUID     string  `json:"styleUUID"`
	Ultra         bool    `json:"ultra"`
}

type generationResponse struct {
	SDGenerationJob struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type generationInfo struct {
	GenerationsByPK *struct {
		Status          Status `json:"status"`
		GeneratedImages []struct {
			URL string `json:"url"`
		} `json:"generated_images"`
	} `json:"generations_by_pk"`
}

func (c *LeonardoClient) Submit(ctx context.Context, prompt string) (string, error) {
	payload := generationRequest{
		ModelID:   phoenixModelID,
		Prompt:    prompt,
		Width:     portraitSize,
		Height:    portraitSize,
		NumImages: 1,
		Contrast:  3.5,
		StyleUUID: styleUUID,
	}

	var out generationResponse
	if err := c.do(ctx, http.MethodPost, "/generations", payload, &out); err != nil {
		return "", fmt.Errorf("leonardo submit: %w", err)
	}
	if out.SDGenerationJob.GenerationID == "" {
		return "", fmt.Errorf("leonardo submit: response has no generation id")
	}
	return out.SDGenerationJob.GenerationID, nil
}

func (c *LeonardoClient) Status(ctx context.Context, jobID string) (Job, error) {
	var out generationInfo
	if err := c.do(ctx, http.MethodGet, "/generations/"+jobID, nil, &out); err != nil {
		return Job{}, fmt.Errorf("leonardo status %s: %w", jobID, err)
	}
	if out.GenerationsByPK == nil {
		return Job{}, fmt.Errorf("leonardo status %s: generation not found", jobID)
	}

	job := Job{ID: jobID, Status: out.GenerationsByPK.Status}
	if job.Status == StatusComplete {
		if len(out.GenerationsByPK.GeneratedImages) == 0 || out.GenerationsByPK.GeneratedImages[0].URL == "" {
			return Job{}, fmt.Errorf("leonardo status %s: complete without images", jobID)
		}
		job.URL = out.GenerationsByPK.GeneratedImages[0].URL
	}
	return job, nil
}

func (c *LeonardoClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
