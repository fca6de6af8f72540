package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/digkill/nexora/internal/provider"
)

const maxMirrorBytes = 512 << 20

type AssetUploader interface {
	Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error)
}

// Mirror wraps an invoker and re-hosts media results in our bucket, since
// provider URLs expire. Text replies pass through untouched.
type Mirror struct {
	next       provider.Invoker
	uploader   AssetUploader
	httpClient *http.Client
	log        *slog.Logger
}

func NewMirror(next provider.Invoker, uploader AssetUploader, httpClient *http.Client, log *slog.Logger) *Mirror {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Mirror{next: next, uploader: uploader, httpClient: httpClient, log: log}
}

func (m *Mirror) Invoke(ctx context.Context, p provider.Payload) (provider.Asset, error) {
	asset, err := m.next.Invoke(ctx, p)
	if err != nil || asset.URL == "" {
		return asset, err
	}

	data, contentType, err := m.download(ctx, asset.URL)
	if err != nil {
		return provider.Asset{}, fmt.Errorf("mirror asset: %w", err)
	}
	if contentType == "" {
		contentType = asset.ContentType
	}

	hosted, err := m.uploader.Upload(ctx, string(p.Kind), data, contentType)
	if err != nil {
		return provider.Asset{}, fmt.Errorf("mirror asset: %w", err)
	}
	m.log.Debug("asset mirrored", "source", asset.URL, "url", hosted, "bytes", len(data))
	return provider.Asset{URL: hosted, ContentType: contentType}, nil
}

func (m *Mirror) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMirrorBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > maxMirrorBytes {
		return nil, "", fmt.Errorf("asset %s exceeds %d bytes", url, maxMirrorBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
