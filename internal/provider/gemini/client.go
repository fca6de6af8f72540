// Package gemini answers assistant chat turns with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/digkill/nexora/internal/provider"
)

const name = "gemini"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models generator
	log    *slog.Logger
}

func NewClient(ctx context.Context, apiKey string, log *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{models: client.Models, log: log}, nil
}

func (c *Client) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	contents, system := toContents(p)
	if len(contents) == 0 {
		return provider.Asset{}, provider.Malformed(name, "no user content")
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.7)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.models.GenerateContent(ctx, p.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return provider.Asset{}, &provider.Error{
				Provider:  name,
				Status:    apiErr.Code,
				Message:   apiErr.Message,
				Retryable: apiErr.Code == 429 || apiErr.Code >= 500,
			}
		}
		return provider.Asset{}, fmt.Errorf("%s: generate content: %w", name, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return provider.Asset{}, provider.Malformed(name, "empty response text")
	}
	return provider.Asset{Text: text, ContentType: "text/plain"}, nil
}

// toContents maps chat messages to Gemini turns; system messages become the system instruction.
func toContents(p provider.Payload) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string
	for _, m := range p.ChatMessages() {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n")
}
