package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/driveline/driveline/internal/classify"
	"github.com/driveline/driveline/internal/history"
	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClassifier struct {
	automotive bool
	method     string
	gotContext bool
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, hasContext bool) classify.Result {
	f.gotContext = hasContext
	return classify.Result{Automotive: f.automotive, Method: f.method}
}

type fakeCompleter struct {
	enabled bool
	answer  string
	err     error
	calls   int
	lastReq llm.CompletionRequest
}

func (f *fakeCompleter) Enabled() bool { return f.enabled }

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.calls++
	f.lastReq = req
	return f.answer, f.err
}

type fakeSink struct {
	mu      sync.Mutex
	records []history.RecordPayload
}

func (f *fakeSink) PublishAsync(record history.RecordPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func waitForRecords(t *testing.T, sink *fakeSink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink has %d records, want %d", sink.count(), want)
}

func TestChatAsk_AnswersAutomotiveQuestion(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "  Check the gas cap first.  "}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	sink := &fakeSink{}
	svc := NewChatService(completer, classifier, nil, nil, sink, nil, discardLogger())

	result, err := svc.Ask(context.Background(), AskInput{
		Message:  "what does P0455 mean?",
		Level:    model.LevelBeginner,
		Endpoint: "/api/chat",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !result.Automotive {
		t.Error("expected automotive result")
	}
	if result.Answer != "Check the gas cap first." {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.ClassificationMethod != classify.MethodInstant {
		t.Errorf("method = %q", result.ClassificationMethod)
	}
	if completer.calls != 1 {
		t.Errorf("llm calls = %d", completer.calls)
	}
	waitForRecords(t, sink, 1)
}

func TestChatAsk_RejectsOffTopic(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "should not be called"}
	classifier := &fakeClassifier{automotive: false, method: classify.MethodInstant}
	svc := NewChatService(completer, classifier, nil, nil, nil, nil, discardLogger())

	result, err := svc.Ask(context.Background(), AskInput{Message: "write me a poem"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if result.Automotive {
		t.Error("expected rejection")
	}
	if completer.calls != 0 {
		t.Errorf("llm should not be called for rejected questions, got %d calls", completer.calls)
	}
	if !strings.Contains(result.Answer, "automotive") {
		t.Errorf("rejection message = %q", result.Answer)
	}
}

func TestChatAsk_EmptyMessage(t *testing.T) {
	t.Parallel()

	svc := NewChatService(&fakeCompleter{enabled: true}, &fakeClassifier{}, nil, nil, nil, nil, discardLogger())
	if _, err := svc.Ask(context.Background(), AskInput{Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestChatAsk_LLMDisabled(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	svc := NewChatService(&fakeCompleter{enabled: false}, classifier, nil, nil, nil, nil, discardLogger())

	if _, err := svc.Ask(context.Background(), AskInput{Message: "car won't start"}); !errors.Is(err, ErrLLMUnavailable) {
		t.Errorf("expected ErrLLMUnavailable, got %v", err)
	}
}

func TestChatAsk_ContextSkipsClassification(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "Replace the thermostat."}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodContext}
	svc := NewChatService(completer, classifier, nil, nil, nil, nil, discardLogger())

	diagCtx := &model.DiagnosticContext{DTCCodes: []string{"P0128"}}
	result, err := svc.Ask(context.Background(), AskInput{
		Message: "what should I do?",
		Context: diagCtx,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !classifier.gotContext {
		t.Error("classifier should see hasContext=true")
	}
	if len(result.Suggestions) == 0 {
		t.Error("context-bearing questions should get followup suggestions")
	}

	prompt := completer.lastReq.Messages[len(completer.lastReq.Messages)-1].Content
	if !strings.Contains(prompt, "P0128") {
		t.Errorf("context codes missing from prompt: %q", prompt)
	}
}

func TestChatAsk_MissingLevelGetsLevelPrompt(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "should not be called"}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	sink := &fakeSink{}
	svc := NewChatService(completer, classifier, nil, nil, sink, nil, discardLogger())

	result, err := svc.Ask(context.Background(), AskInput{
		Message:      "my brakes squeal",
		RequireLevel: true,
		Endpoint:     "/api/chat",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if completer.calls != 0 {
		t.Errorf("llm should not be called without a level, got %d calls", completer.calls)
	}
	if !strings.Contains(result.Answer, "experience level") {
		t.Errorf("answer = %q, want level prompt", result.Answer)
	}
	for _, want := range []string{"BEGINNER", "EXPERT"} {
		if !strings.Contains(result.Answer, want) {
			t.Errorf("level prompt missing %q option", want)
		}
	}
	if !result.Automotive {
		t.Error("level prompt should not be flagged as a rejection")
	}
	waitForRecords(t, sink, 1)
}

func TestChatAsk_LevelOptionalForQuick(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "Top up the coolant."}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	svc := NewChatService(completer, classifier, nil, nil, nil, nil, discardLogger())

	result, err := svc.Ask(context.Background(), AskInput{
		Message:  "coolant light is on",
		Endpoint: "/api/chat/quick",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if completer.calls != 1 {
		t.Errorf("llm calls = %d, want 1", completer.calls)
	}
	if result.Answer != "Top up the coolant." {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestChatAsk_ExpertLevelPrompt(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, answer: "Scope the crank sensor."}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	svc := NewChatService(completer, classifier, nil, nil, nil, nil, discardLogger())

	if _, err := svc.Ask(context.Background(), AskInput{Message: "no spark on cylinder 3", Level: model.LevelExpert}); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	system := completer.lastReq.Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "experienced") {
		t.Errorf("expert prompt not selected: %q", system.Content)
	}
}

func TestChatAsk_LLMFailurePropagates(t *testing.T) {
	t.Parallel()

	completer := &fakeCompleter{enabled: true, err: llm.ErrUpstream}
	classifier := &fakeClassifier{automotive: true, method: classify.MethodInstant}
	svc := NewChatService(completer, classifier, nil, nil, nil, nil, discardLogger())

	if _, err := svc.Ask(context.Background(), AskInput{Message: "car shakes at idle"}); !errors.Is(err, llm.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestUserMessage_RendersContext(t *testing.T) {
	t.Parallel()

	diagCtx := &model.DiagnosticContext{
		VIN:         "1HGBH41JXMN109186",
		DTCCodes:    []string{"P0300", "P0301"},
		SensorData:  map[string]any{"010C": 850.0},
		VehicleInfo: map[string]string{"make": "Honda", "year": "Unknown"},
	}

	out := userMessage("why does it misfire?", diagCtx)

	for _, want := range []string{"1HGBH41JXMN109186", "P0300, P0301", "010C", "Honda", "why does it misfire?"} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Unknown") {
		t.Error("unknown attributes should be omitted from the prompt")
	}
}

func TestUserMessage_NoContext(t *testing.T) {
	t.Parallel()

	if out := userMessage("hello", nil); out != "hello" {
		t.Errorf("userMessage without context = %q", out)
	}
}
