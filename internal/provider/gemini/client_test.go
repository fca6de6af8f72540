package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/digkill/nexora/internal/provider"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func newTestClient(gen generator) *Client {
	return &Client{models: gen, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestInvokeMapsMessages(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, "gemini-2.5-flash",
		mock.MatchedBy(func(contents []*genai.Content) bool {
			return len(contents) == 2 && contents[0].Role == genai.RoleUser && contents[1].Role == genai.RoleModel
		}),
		mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
			return cfg.SystemInstruction != nil && cfg.SystemInstruction.Parts[0].Text == "You write ad copy."
		}),
	).Return(textResponse("Fresh roast, bold taste."), nil).Once()

	asset, err := newTestClient(gen).Invoke(context.Background(), provider.Payload{
		Model: "gemini-2.5-flash",
		Messages: []provider.Message{
			{Role: "system", Content: "You write ad copy."},
			{Role: "user", Content: "coffee tagline"},
			{Role: "assistant", Content: "draft"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Fresh roast, bold taste.", asset.Text)
	gen.AssertExpectations(t)
}

func TestInvokeAPIError(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: 503, Message: "overloaded"})

	_, err := newTestClient(gen).Invoke(context.Background(), provider.Payload{Model: "gemini-2.5-flash", Prompt: "hi"})
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 503, perr.Status)
	assert.True(t, perr.Retryable)
}

func TestInvokeEmptyText(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&genai.GenerateContentResponse{}, nil)

	_, err := newTestClient(gen).Invoke(context.Background(), provider.Payload{Model: "gemini-2.5-flash", Prompt: "hi"})
	assert.Error(t, err)
}

func TestToContentsFromPrompt(t *testing.T) {
	contents, system := toContents(provider.Payload{Prompt: "hello"})
	require.Len(t, contents, 1)
	assert.Empty(t, system)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)
}

func TestToContentsAppendsPromptAfterMessages(t *testing.T) {
	contents, system := toContents(provider.Payload{
		Prompt: "now shorter",
		Messages: []provider.Message{
			{Role: "system", Content: "You write ad copy."},
			{Role: "user", Content: "coffee tagline"},
			{Role: "assistant", Content: "Bold roast for bold mornings."},
		},
	})
	assert.Equal(t, "You write ad copy.", system)
	require.Len(t, contents, 3)
	last := contents[2]
	assert.Equal(t, genai.RoleUser, last.Role)
	assert.Equal(t, "now shorter", last.Parts[0].Text)
}
