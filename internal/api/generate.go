package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/digkill/nexora/internal/models"
	"github.com/digkill/nexora/internal/provider"
	"github.com/digkill/nexora/internal/service"
)

const maxBodyBytes = 1 << 20

type imageRequest struct {
	Model       string   `json:"model" validate:"max=64"`
	Prompt      string   `json:"prompt" validate:"required,max=4000"`
	Size        string   `json:"size" validate:"omitempty,oneof=256x256 512x512 1024x1024 1792x1024 1024x1792"`
	AspectRatio string   `json:"aspect_ratio" validate:"omitempty,max=16"`
	Resolution  string   `json:"resolution" validate:"omitempty,oneof=1K 2K 4K"`
	ImageURLs   []string `json:"image_urls" validate:"max=8,dive,http_url"`
}

type videoRequest struct {
	Model       string `json:"model" validate:"max=64"`
	Prompt      string `json:"prompt" validate:"max=4000"`
	ImageURL    string `json:"image_url" validate:"omitempty,http_url"`
	Duration    int    `json:"duration" validate:"omitempty,min=1,max=20"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,max=16"`
}

type directorRequest struct {
	Model    string `json:"model" validate:"max=64"`
	Prompt   string `json:"prompt" validate:"max=4000"`
	ImageURL string `json:"image_url" validate:"omitempty,http_url"`
	Motion   string `json:"motion" validate:"max=64"`
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,max=16000"`
}

type chatRequest struct {
	Model    string        `json:"model" validate:"max=64"`
	Prompt   string        `json:"prompt" validate:"max=16000"`
	Messages []chatMessage `json:"messages" validate:"max=64,dive"`
}

// generateResponse carries the asset as a plain string: a media URL for image
// and video kinds, the reply text for chat.
type generateResponse struct {
	Asset       string                `json:"asset"`
	ContentType string                `json:"content_type,omitempty"`
	Model       string                `json:"model"`
	Cost        int64                 `json:"cost"`
	Kind        models.GenerationKind `json:"kind"`
	HistoryID   string                `json:"history_id"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.generate(w, r, models.KindImage, req.Model, provider.Payload{
		Prompt:      req.Prompt,
		Size:        req.Size,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		ImageURLs:   req.ImageURLs,
	})
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.generate(w, r, models.KindVideo, req.Model, provider.Payload{
		Prompt:      req.Prompt,
		ImageURLs:   optionalURL(req.ImageURL),
		Duration:    req.Duration,
		AspectRatio: req.AspectRatio,
	})
}

func (s *Server) handleGenerateDirector(w http.ResponseWriter, r *http.Request) {
	var req directorRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.generate(w, r, models.KindDirector, req.Model, provider.Payload{
		Prompt:    req.Prompt,
		ImageURLs: optionalURL(req.ImageURL),
		Motion:    req.Motion,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	messages := make([]provider.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}
	s.generate(w, r, models.KindChat, req.Model, provider.Payload{
		Prompt:   req.Prompt,
		Messages: messages,
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, kind models.GenerationKind, modelID string, payload provider.Payload) {
	modelID = strings.TrimSpace(modelID)
	res, err := s.deps.Executor.Execute(r.Context(), service.Request{
		UserID:  userIDFrom(r.Context()),
		Kind:    kind,
		ModelID: modelID,
		Payload: payload,
	}, s.invokerFor(kind, modelID))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Asset:       res.Asset.Ref(),
		ContentType: res.Asset.ContentType,
		Model:       res.Model.ID,
		Cost:        res.Cost,
		Kind:        res.Model.Kind,
		HistoryID:   res.HistoryID,
	})
}

// invokerFor returns the adapter serving the requested model, or nil. Unknown
// models and unconfigured providers are rejected by the executor, after the
// tier gate.
func (s *Server) invokerFor(kind models.GenerationKind, modelID string) provider.Invoker {
	catalog := s.deps.Executor.Catalog()
	id, err := catalog.Resolve(kind, modelID)
	if err != nil {
		return nil
	}
	model, ok := catalog.Lookup(id)
	if !ok || model.Kind != kind {
		return nil
	}
	return s.deps.Invokers[model.Provider]
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func optionalURL(u string) []string {
	if u == "" {
		return nil
	}
	return []string{u}
}
