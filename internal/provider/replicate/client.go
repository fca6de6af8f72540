// Package replicate runs video models through the Replicate predictions API.
package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/provider"
)

const name = "replicate"

type Client struct {
	token        string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	log          *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		token:        cfg.ReplicateAPIToken,
		baseURL:      strings.TrimRight(cfg.ReplicateBaseURL, "/"),
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// Invoke submits a prediction for the payload's model ("owner/name") and polls it.
func (c *Client) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	if !strings.Contains(p.Model, "/") {
		return provider.Asset{}, provider.Malformed(name, "model %q is not owner/name", p.Model)
	}

	var pred prediction
	url := fmt.Sprintf("%s/models/%s/predictions", c.baseURL, p.Model)
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodPost, url, c.header(), map[string]any{"input": buildInput(p)}, &pred); err != nil {
		return provider.Asset{}, fmt.Errorf("create prediction: %w", err)
	}
	if pred.ID == "" {
		return provider.Asset{}, provider.Malformed(name, "prediction response has no id")
	}
	c.log.Info("replicate prediction created", "prediction_id", pred.ID, "model", p.Model)

	err := provider.Poll(ctx, c.pollInterval, func(ctx context.Context) (bool, error) {
		if pred.Status != "" && pred.Status != "starting" && pred.Status != "processing" {
			return true, nil
		}
		return false, provider.DoJSON(ctx, c.httpClient, name, http.MethodGet, c.baseURL+"/predictions/"+pred.ID, c.header(), nil, &pred)
	})
	if err != nil {
		return provider.Asset{}, err
	}

	switch pred.Status {
	case "succeeded":
		out := firstOutput(pred.Output)
		if out == "" {
			return provider.Asset{}, provider.Malformed(name, "prediction %s has no output", pred.ID)
		}
		return provider.Asset{URL: out, ContentType: "video/mp4"}, nil
	default:
		msg := strings.Trim(string(pred.Error), `"`)
		if msg == "" || msg == "null" {
			msg = "prediction " + pred.Status
		}
		c.log.Error("replicate prediction failed", "prediction_id", pred.ID, "status", pred.Status, "error", msg)
		return provider.Asset{}, &provider.Error{Provider: name, Message: msg}
	}
}

func buildInput(p provider.Payload) map[string]any {
	input := map[string]any{}
	if p.Prompt != "" {
		input["prompt"] = p.Prompt
	}
	if p.AspectRatio != "" {
		input["aspect_ratio"] = p.AspectRatio
	}
	if p.Duration > 0 {
		input["duration"] = p.Duration
	}
	if len(p.ImageURLs) > 0 {
		if strings.HasPrefix(p.Model, "luma/") {
			input["start_image_url"] = p.ImageURLs[0]
		} else {
			input["first_frame_image"] = p.ImageURLs[0]
		}
	}
	return input
}

// firstOutput accepts both a single URL and a list of URLs.
func firstOutput(raw json.RawMessage) string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
