package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/internal/pkg/env"
)

var (
	// ErrDisabled is returned when the assistant is switched off in the
	// admin configuration or no API key is configured.
	ErrDisabled = errors.New("assistant is disabled")

	// ErrUnavailable wraps upstream model API failures.
	ErrUnavailable = errors.New("assistant unavailable")
)

// Document content beyond this many runes is cut before prompting; the
// models in use stop accepting input far earlier than our storage limit.
const maxDocumentRunes = 48000

const requestTimeout = 60 * time.Second

// completionAPI is the slice of the OpenAI client the service uses.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service answers user questions against a single document using the
// admin-configured chat model.
type Service struct {
	api completionAPI
}

// NewService wraps an existing completion API.
func NewService(api completionAPI) *Service {
	return &Service{api: api}
}

// NewServiceFromEnv builds the service from OPENAI_API_KEY. Returns nil when
// no key is configured; callers treat a nil service as disabled.
func NewServiceFromEnv() *Service {
	key := env.GetEnv("OPENAI_API_KEY", "")
	if key == "" {
		return nil
	}
	return NewService(openai.NewClient(key))
}

// Answer asks the configured model the given question about the document and
// returns the model's reply.
func (s *Service) Answer(ctx context.Context, doc *models.Document, question string) (string, error) {
	if s == nil || s.api == nil {
		return "", ErrDisabled
	}
	cfg := models.GetAssistantConfig()
	if !cfg.Enabled {
		return "", ErrDisabled
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is required")
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(doc, question)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(doc *models.Document, question string) string {
	content := doc.Content
	if runes := []rune(content); len(runes) > maxDocumentRunes {
		content = string(runes[:maxDocumentRunes])
	}
	var b strings.Builder
	b.WriteString("Document title: ")
	b.WriteString(doc.Title)
	b.WriteString("\n\nDocument content:\n")
	b.WriteString(content)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
