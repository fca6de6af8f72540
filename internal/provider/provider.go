// Package provider defines the contract between the metered executor and the
// external generation services. Adapters live in subpackages; none of them
// touch credits or plan state.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/nexora/internal/models"
)

var ErrEmptyAsset = errors.New("provider returned no usable asset")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the caller-supplied input for a single provider call.
type Payload struct {
	Kind        models.GenerationKind
	Model       string
	Prompt      string
	Size        string
	AspectRatio string
	Resolution  string
	ImageURLs   []string
	Duration    int
	Motion      string
	Messages    []Message
}

// Summary is the text stored in generation history for this payload.
func (p Payload) Summary() string {
	if strings.TrimSpace(p.Prompt) != "" {
		return p.Prompt
	}
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" && strings.TrimSpace(p.Messages[i].Content) != "" {
			return p.Messages[i].Content
		}
	}
	if len(p.ImageURLs) > 0 {
		return p.ImageURLs[0]
	}
	return ""
}

// ChatMessages is the conversation sent to a chat model. A prompt given
// alongside messages becomes the final user turn.
func (p Payload) ChatMessages() []Message {
	prompt := strings.TrimSpace(p.Prompt)
	msgs := make([]Message, 0, len(p.Messages)+1)
	msgs = append(msgs, p.Messages...)
	if prompt != "" {
		msgs = append(msgs, Message{Role: "user", Content: p.Prompt})
	}
	return msgs
}

// Asset is a normalised provider result: a hosted media URL or a chat reply.
type Asset struct {
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (a Asset) Empty() bool {
	return strings.TrimSpace(a.URL) == "" && strings.TrimSpace(a.Text) == ""
}

// Ref is the value recorded as the generation output.
func (a Asset) Ref() string {
	if a.URL != "" {
		return a.URL
	}
	return a.Text
}

type Invoker interface {
	Invoke(ctx context.Context, payload Payload) (Asset, error)
}

type InvokerFunc func(ctx context.Context, payload Payload) (Asset, error)

func (f InvokerFunc) Invoke(ctx context.Context, payload Payload) (Asset, error) {
	return f(ctx, payload)
}

// Error is returned by adapters for non-2xx or malformed provider responses.
type Error struct {
	Provider  string
	Status    int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// StatusError builds an Error for an HTTP response status, marking 429 and 5xx retryable.
func StatusError(name string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &Error{
		Provider:  name,
		Status:    status,
		Message:   msg,
		Retryable: status == 429 || status >= 500,
	}
}

// IsRetryable reports whether err carries a provider Error marked retryable.
func IsRetryable(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Retryable
}

// Malformed reports a response that could not be interpreted.
func Malformed(name string, format string, args ...any) *Error {
	return &Error{Provider: name, Message: fmt.Sprintf(format, args...)}
}
