package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AnTengye/legalease/backend/config"
	"github.com/AnTengye/legalease/backend/model"
	"google.golang.org/genai"
)

// ModelClient is the capability set of the remote language model: one
// structured call constrained by a response schema, and one conversational
// call. Tests substitute stubs.
type ModelClient interface {
	GenerateJSON(ctx context.Context, parts []*genai.Part, schema *genai.Schema, thinkingBudget int) (string, error)
	Chat(ctx context.Context, systemInstruction string, turns []Turn) (string, error)
}

// Turn is one conversational message sent to the model
type Turn struct {
	Role model.Role
	Text string
}

// GeminiClient adapts the Gen AI SDK client to ModelClient
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds the SDK client for the Gemini API backend. An empty
// api_url or api_version keeps the SDK defaults.
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig) (*GeminiClient, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.APIURL,
			APIVersion: cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// GenerateJSON sends the parts with a JSON response schema and returns the raw JSON text
func (c *GeminiClient) GenerateJSON(ctx context.Context, parts []*genai.Part, schema *genai.Schema, thinkingBudget int) (string, error) {
	gen := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if thinkingBudget > 0 {
		budget := int32(thinkingBudget)
		gen.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	contents := []*genai.Content{{Role: string(genai.RoleUser), Parts: parts}}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gen)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

// Chat replays all but the last turn as chat history and sends the last
// turn as the new message.
func (c *GeminiClient) Chat(ctx context.Context, systemInstruction string, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("chat needs at least one turn")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, t := range turns[:len(turns)-1] {
		history = append(history, &genai.Content{
			Role:  sdkRole(t.Role),
			Parts: []*genai.Part{genai.NewPartFromText(t.Text)},
		})
	}

	var gen *genai.GenerateContentConfig
	if systemInstruction != "" {
		gen = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(systemInstruction)}},
		}
	}

	chat, err := c.client.Chats.Create(ctx, c.model, gen, history)
	if err != nil {
		return "", fmt.Errorf("failed to create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: turns[len(turns)-1].Text})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return responseText(resp)
}

func sdkRole(r model.Role) string {
	if r == model.RoleAssistant {
		return string(genai.RoleModel)
	}
	return string(genai.RoleUser)
}

// responseText returns the first candidate's text, empty when there is none.
// A blocked prompt is an error.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", fb.BlockReason)
	}
	return resp.Text(), nil
}
