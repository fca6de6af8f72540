// Package higgsfield drives the Director Studio camera-motion video jobs.
package higgsfield

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/nexora/internal/config"
	"github.com/digkill/nexora/internal/provider"
)

const name = "higgsfield"

type Client struct {
	apiKey       string
	apiSecret    string
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
		apiKey:       cfg.HiggsfieldAPIKey,
		apiSecret:    cfg.HiggsfieldAPISecret,
		baseURL:      strings.TrimRight(cfg.HiggsfieldBaseURL, "/"),
		pollInterval: cfg.PollInterval,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
	}
}

type inputImage struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

type motion struct {
	ID       string  `json:"id"`
	Strength float64 `json:"strength"`
}

type jobParams struct {
	Model       string       `json:"model"`
	Prompt      string       `json:"prompt,omitempty"`
	InputImages []inputImage `json:"input_images,omitempty"`
	Motions     []motion     `json:"motions,omitempty"`
}

type jobSet struct {
	ID   string `json:"id"`
	Jobs []struct {
		Status  string `json:"status"`
		Results *struct {
			Raw struct {
				URL string `json:"url"`
			} `json:"raw"`
		} `json:"results"`
	} `json:"jobs"`
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("hf-api-key", c.apiKey)
	h.Set("hf-secret", c.apiSecret)
	return h
}

// Invoke submits a job set and polls it until its first job settles.
func (c *Client) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	params := jobParams{Model: p.Model, Prompt: p.Prompt}
	for _, u := range p.ImageURLs {
		params.InputImages = append(params.InputImages, inputImage{Type: "image_url", ImageURL: u})
	}
	if p.Motion != "" {
		params.Motions = []motion{{ID: p.Motion, Strength: 0.8}}
	}

	var created jobSet
	if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodPost, c.baseURL+"/v1/image2video/dop", c.header(), map[string]any{"params": params}, &created); err != nil {
		return provider.Asset{}, fmt.Errorf("submit job: %w", err)
	}
	if created.ID == "" {
		return provider.Asset{}, provider.Malformed(name, "job set response has no id")
	}
	c.log.Info("higgsfield job submitted", "job_set_id", created.ID)

	var resultURL string
	err := provider.Poll(ctx, c.pollInterval, func(ctx context.Context) (bool, error) {
		var set jobSet
		if err := provider.DoJSON(ctx, c.httpClient, name, http.MethodGet, c.baseURL+"/v1/job-sets/"+created.ID, c.header(), nil, &set); err != nil {
			return false, err
		}
		if len(set.Jobs) == 0 {
			return false, nil
		}
		job := set.Jobs[0]
		switch job.Status {
		case "completed":
			if job.Results == nil || job.Results.Raw.URL == "" {
				return false, provider.Malformed(name, "completed job has no result url")
			}
			resultURL = job.Results.Raw.URL
			return true, nil
		case "failed", "nsfw", "canceled":
			return false, &provider.Error{Provider: name, Message: "job " + job.Status}
		default:
			return false, nil
		}
	})
	if err != nil {
		return provider.Asset{}, err
	}
	return provider.Asset{URL: resultURL, ContentType: "video/mp4"}, nil
}
