// Package kie calls the KIE jobs API for the Flux 2 and Nano Banana image models.
package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/provider"
)

const (
	name         = "kie"
	outputFormat = "png"
)

const (
	ModelFlux2Text  = "flux-2/pro-text-to-image"
	ModelFlux2Image = "flux-2/pro-image-to-image"
	ModelNanoBanana = "nano-banana-pro"
)

type Client struct {
	apiKey       string
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
		apiKey:       cfg.KIEAPIKey,
		baseURL:      strings.TrimRight(cfg.KIEBaseURL, "/"),
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

// Invoke creates a task for the payload's model and polls until it finishes.
func (c *Client) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	body, err := buildTask(p)
	if err != nil {
		return provider.Asset{}, err
	}

	taskID, err := c.createTask(ctx, body)
	if err != nil {
		return provider.Asset{}, fmt.Errorf("create task: %w", err)
	}

	var resultURL string
	err = provider.Poll(ctx, c.pollInterval, func(ctx context.Context) (bool, error) {
		done, u, err := c.taskStatus(ctx, taskID)
		resultURL = u
		return done, err
	})
	if err != nil {
		return provider.Asset{}, err
	}
	return provider.Asset{URL: resultURL, ContentType: "image/" + outputFormat}, nil
}

func buildTask(p provider.Payload) (map[string]any, error) {
	aspect := p.AspectRatio
	if aspect == "" {
		aspect = "1:1"
	}
	resolution := p.Resolution
	if resolution == "" {
		resolution = "1K"
	}

	switch p.Model {
	case ModelFlux2Text, ModelFlux2Image, "flux-2":
		model := ModelFlux2Text
		input := map[string]any{
			"prompt":       p.Prompt,
			"aspect_ratio": aspect,
			"resolution":   resolution,
		}
		if len(p.ImageURLs) > 0 {
			model = ModelFlux2Image
			input["input_urls"] = p.ImageURLs
		}
		return map[string]any{"model": model, "input": input}, nil
	case ModelNanoBanana:
		input := map[string]any{
			"prompt":        p.Prompt,
			"aspect_ratio":  aspect,
			"resolution":    resolution,
			"output_format": outputFormat,
		}
		if len(p.ImageURLs) > 0 {
			input["image_input"] = p.ImageURLs
		}
		return map[string]any{"model": ModelNanoBanana, "input": input}, nil
	default:
		return nil, provider.Malformed(name, "unsupported model %q", p.Model)
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) createTask(ctx context.Context, body map[string]any) (string, error) {
	c.log.Info("creating KIE task", "model", body["model"])

	var resp envelope
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodPost, c.baseURL+"/api/v1/jobs/createTask", c.header(), body, &resp); err != nil {
		return "", err
	}
	if resp.Code != http.StatusOK {
		return "", &provider.Error{Provider: name, Status: resp.Code, Message: resp.Msg}
	}
	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.TaskID == "" {
		return "", provider.Malformed(name, "empty taskId in response")
	}
	c.log.Info("KIE task created", "task_id", data.TaskID)
	return data.TaskID, nil
}

// taskStatus reports whether the task reached a final state and its first result URL.
func (c *Client) taskStatus(ctx context.Context, taskID string) (bool, string, error) {
	params := url.Values{}
	params.Set("taskId", taskID)

	var resp envelope
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodGet, c.baseURL+"/api/v1/jobs/recordInfo?"+params.Encode(), c.header(), nil, &resp); err != nil {
		return false, "", err
	}
	if resp.Code != http.StatusOK {
		return false, "", &provider.Error{Provider: name, Status: resp.Code, Message: resp.Msg}
	}

	var data struct {
		State      string `json:"state"`
		ResultJSON string `json:"resultJson"`
		FailCode   string `json:"failCode"`
		FailMsg    string `json:"failMsg"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return false, "", provider.Malformed(name, "decode task status: %v", err)
	}

	switch data.State {
	case "success":
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(data.ResultJSON), &result); err != nil {
			return false, "", provider.Malformed(name, "parse resultJson: %v", err)
		}
		if len(result.ResultURLs) == 0 {
			return false, "", provider.Malformed(name, "no resultUrls in result")
		}
		c.log.Info("KIE task completed", "task_id", taskID)
		return true, result.ResultURLs[0], nil
	case "fail":
		msg := data.FailMsg
		if msg == "" {
			msg = "unknown error"
		}
		c.log.Error("KIE task failed", "task_id", taskID, "fail_code", data.FailCode, "fail_msg", msg)
		return false, "", &provider.Error{Provider: name, Message: fmt.Sprintf("task failed: %s (code: %s)", msg, data.FailCode)}
	case "waiting", "generating", "processing", "queued", "queueing":
		return false, "", nil
	default:
		return false, "", provider.Malformed(name, "unknown task state %q", data.State)
	}
}
