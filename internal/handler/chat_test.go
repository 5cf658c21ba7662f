package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/classify"
	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCompleter struct {
	answer string
	err    error
}

func (s *stubCompleter) Enabled() bool { return true }

func (s *stubCompleter) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return s.answer, s.err
}

type stubClassifier struct {
	automotive bool
}

func (s *stubClassifier) Classify(context.Context, string, bool) classify.Result {
	return classify.Result{Automotive: s.automotive, Method: classify.MethodInstant}
}

func authedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	identity := &auth.Identity{UserID: "usr_1", Email: "a@b.dev"}
	return req.WithContext(auth.ContextWithIdentity(req.Context(), identity))
}

func TestChatAsk_OK(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{answer: "Start with the battery terminals."},
		&stubClassifier{automotive: true},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Ask(rec, authedRequest(http.MethodPost, "/api/chat", `{"message":"car won't start","level":"beginner"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body service.AskResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Automotive {
		t.Error("expected automotive answer")
	}
	if !strings.Contains(body.Answer, "battery") {
		t.Errorf("answer = %q", body.Answer)
	}
}

func TestChatAsk_MissingLevel(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{answer: "should not be reached"},
		&stubClassifier{automotive: true},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Ask(rec, authedRequest(http.MethodPost, "/api/chat", `{"message":"car won't start"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body service.AskResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Answer, "experience level") {
		t.Errorf("answer = %q, want the level prompt", body.Answer)
	}
}

func TestChatAsk_Rejected(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{answer: "unused"},
		&stubClassifier{automotive: false},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Ask(rec, authedRequest(http.MethodPost, "/api/chat", `{"message":"tell me a joke"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body service.AskResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Automotive {
		t.Error("off-topic question should be rejected")
	}
}

func TestChatAsk_BadRequests(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{answer: "x"},
		&stubClassifier{automotive: true},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{not json`, http.StatusBadRequest},
		{"empty message", `{"message":"  "}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			h.Ask(rec, authedRequest(http.MethodPost, "/api/chat", tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChatAsk_UpstreamFailure(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{err: llm.ErrUpstream},
		&stubClassifier{automotive: true},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Ask(rec, authedRequest(http.MethodPost, "/api/chat", `{"message":"misfire on 3","level":"expert"}`))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestQuickAsk_Anonymous(t *testing.T) {
	t.Parallel()

	svc := service.NewChatService(
		&stubCompleter{answer: "Check tire pressure monthly."},
		&stubClassifier{automotive: true},
		nil, nil, nil, nil, testLogger(),
	)
	h := NewChatHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/quick", strings.NewReader(`{"message":"tire care tips"}`))
	rec := httptest.NewRecorder()
	h.QuickAsk(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
