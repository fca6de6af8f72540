// Package openai covers the DALL-E image and GPT chat endpoints.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
)

const name = "openai"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	switch p.Kind {
	case models.KindImage:
		return c.generateImage(ctx, p)
	case models.KindChat:
		return c.chat(ctx, p)
	default:
		return provider.Asset{}, provider.Malformed(name, "unsupported kind %q", p.Kind)
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (c *Client) generateImage(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	size := p.Size
	if size == "" {
		size = "1024x1024"
	}
	req := imageRequest{Model: p.Model, Prompt: p.Prompt, N: 1, Size: size, ResponseFormat: "url"}

	var resp imageResponse
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodPost, c.baseURL+"/images/generations", c.header(), req, &resp); err != nil {
		return provider.Asset{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return provider.Asset{}, provider.Malformed(name, "image response has no url")
	}
	c.log.Debug("openai image generated", "model", p.Model, "revised_prompt", resp.Data[0].RevisedPrompt)
	return provider.Asset{URL: resp.Data[0].URL, ContentType: "image/png"}, nil
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	var resp chatResponse
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodPost, c.baseURL+"/chat/completions", c.header(), chatRequest{Model: p.Model, Messages: p.ChatMessages()}, &resp); err != nil {
		return provider.Asset{}, err
	}
	if len(resp.Choices) == 0 {
		return provider.Asset{}, provider.Malformed(name, "chat response has no choices")
	}
	return provider.Asset{Text: resp.Choices[0].Message.Content, ContentType: "text/plain"}, nil
}
