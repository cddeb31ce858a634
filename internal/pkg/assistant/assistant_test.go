package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docquery/docquery/app/models"
)

type fakeAPI struct {
	lastReq openai.ChatCompletionRequest
	reply   string
	err     error
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func testDoc() *models.Document {
	return &models.Document{Title: "Q3 Report", Content: "Revenue grew 12% quarter over quarter."}
}

func TestAnswerBuildsPromptFromDocument(t *testing.T) {
	api := &fakeAPI{reply: "  Revenue grew 12%.  "}
	svc := NewService(api)

	answer, err := svc.Answer(context.Background(), testDoc(), "How did revenue develop?")
	if err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if answer != "Revenue grew 12%." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(api.lastReq.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(api.lastReq.Messages))
	}
	user := api.lastReq.Messages[1].Content
	if !strings.Contains(user, "Q3 Report") || !strings.Contains(user, "How did revenue develop?") {
		t.Fatalf("prompt missing document or question: %q", user)
	}
	if api.lastReq.Model != models.GetAssistantConfig().Model {
		t.Fatalf("request did not use configured model: %q", api.lastReq.Model)
	}
}

func TestAnswerWrapsUpstreamError(t *testing.T) {
	svc := NewService(&fakeAPI{err: errors.New("rate limited")})

	_, err := svc.Answer(context.Background(), testDoc(), "anything?")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	svc := NewService(&fakeAPI{reply: "x"})

	if _, err := svc.Answer(context.Background(), testDoc(), "   "); err == nil {
		t.Fatalf("expected error for empty question")
	}
}

func TestAnswerNilServiceIsDisabled(t *testing.T) {
	var svc *Service

	if _, err := svc.Answer(context.Background(), testDoc(), "q?"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestAnswerTruncatesOversizedDocument(t *testing.T) {
	api := &fakeAPI{reply: "ok"}
	svc := NewService(api)
	doc := testDoc()
	doc.Content = strings.Repeat("a", maxDocumentRunes+1000)

	if _, err := svc.Answer(context.Background(), doc, "q?"); err != nil {
		t.Fatalf("Answer returned error: %v", err)
	}
	if len(api.lastReq.Messages[1].Content) > maxDocumentRunes+500 {
		t.Fatalf("document not truncated: %d runes", len(api.lastReq.Messages[1].Content))
	}
}
