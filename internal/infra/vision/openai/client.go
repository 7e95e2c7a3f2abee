package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

const maxTokens = 2048

// Client implements domain Detector di atas chat completions vision
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) DetectLabels(ctx context.Context, imageURL string) ([]domain.Label, error) {
	raw, err := c.complete(ctx, labelsPrompt, imageURL)
	if err != nil {
		return nil, err
	}
	return ParseLabels(raw)
}

func (c *Client) DetectModeration(ctx context.Context, imageURL string) ([]domain.ModerationLabel, error) {
	raw, err := c.complete(ctx, moderationPrompt, imageURL)
	if err != nil {
		return nil, err
	}
	return ParseModeration(raw)
}

func (c *Client) DetectText(ctx context.Context, imageURL string) ([]domain.TextDetection, error) {
	raw, err := c.complete(ctx, textPrompt, imageURL)
	if err != nil {
		return nil, err
	}
	return ParseText(raw)
}

func (c *Client) complete(ctx context.Context, prompt, imageURL string) (string, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

//
// ==== PARSING ====
//

// ParseLabels parse response model ke domain shape.
// Exported supaya bisa dites tanpa koneksi API.
func ParseLabels(raw string) ([]domain.Label, error) {
	var out struct {
		Labels []domain.Label `json:"labels"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse labels response: %w", err)
	}
	return out.Labels, nil
}

func ParseModeration(raw string) ([]domain.ModerationLabel, error) {
	var out struct {
		ModerationLabels []domain.ModerationLabel `json:"moderationLabels"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse moderation response: %w", err)
	}
	return out.ModerationLabels, nil
}

func ParseText(raw string) ([]domain.TextDetection, error) {
	var out struct {
		TextDetections []domain.TextDetection `json:"textDetections"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse text response: %w", err)
	}
	return out.TextDetections, nil
}

// cleanJSON buang code fence kalau model bandel tetap kirim markdown
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
