package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/driveline/driveline/internal/classify"
	"github.com/driveline/driveline/internal/history"
	"github.com/driveline/driveline/internal/llm"
	"github.com/driveline/driveline/internal/metrics"
	"github.com/driveline/driveline/internal/model"
	"github.com/driveline/driveline/internal/repository"
)

// Chat service errors.
var (
	ErrEmptyMessage   = errors.New("message is required")
	ErrLLMUnavailable = errors.New("chat is not available: no language model configured")
)

// rejectionMessage is returned for questions that are not automotive.
const rejectionMessage = "I can only help with car and vehicle questions. " +
	"Ask me about trouble codes, maintenance, repairs, or anything else automotive."

// levelPromptMessage is returned when a full chat request arrives
// without an experience level. The answer depends on it, so the
// question is bounced back instead of guessing.
const levelPromptMessage = "Before I provide mechanical advice, please specify your experience level:\n\n" +
	"**BEGINNER**: New to car maintenance, prefer simple explanations and basic steps\n" +
	"**EXPERT**: Experienced with automotive work, want detailed technical information\n\n" +
	"Please ask your question again and include your level (beginner or expert)."

const beginnerPrompt = `You are a friendly automotive advisor talking to someone with no
mechanical background. Explain in plain language, avoid jargon, and when a
repair needs tools or experience, say so and suggest seeing a mechanic.
Keep answers short and practical.`

const expertPrompt = `You are an automotive diagnostic assistant talking to an experienced
mechanic. Be precise and technical: reference components, specifications,
test procedures and common failure modes directly. Skip safety caveats
they already know.`

// Classifier decides whether a question is automotive.
type Classifier interface {
	Classify(ctx context.Context, question string, hasContext bool) classify.Result
}

// HistorySink records chat exchanges. *history.Publisher satisfies it.
type HistorySink interface {
	PublishAsync(record history.RecordPayload)
}

// ChatService answers automotive questions with vehicle context.
type ChatService struct {
	llm        Completer
	classifier Classifier
	repo       *repository.Repository
	vehicles   *VehicleService
	sink       HistorySink
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// Completer is the LLM dependency shared by chat services.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// NewChatService creates a new ChatService.
func NewChatService(
	completer Completer,
	classifier Classifier,
	repo *repository.Repository,
	vehicles *VehicleService,
	sink HistorySink,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *ChatService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ChatService{
		llm:        completer,
		classifier: classifier,
		repo:       repo,
		vehicles:   vehicles,
		sink:       sink,
		metrics:    recorder,
		logger:     logger.With("component", "service.chat"),
	}
}

// AskInput defines input for a chat question.
type AskInput struct {
	UserID    string
	VehicleID string
	Message   string
	Level     string
	// RequireLevel bounces the question back with a level prompt when
	// Level is empty. The full chat endpoint sets it; quick chat does not.
	RequireLevel bool
	Context      *model.DiagnosticContext
	Endpoint     string
}

// AskResult is the answer with its classification metadata.
type AskResult struct {
	Answer               string   `json:"response"`
	Automotive           bool     `json:"automotive"`
	ClassificationMethod string   `json:"classification_method"`
	ResponseTimeMs       int64    `json:"response_time_ms"`
	Suggestions          []string `json:"suggestions,omitempty"`
}

// Ask answers one question. Off-topic questions are rejected without an
// LLM call. When the user has a primary vehicle and no explicit context,
// the vehicle's attributes are attached automatically.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	start := time.Now()

	diagCtx := input.Context
	if diagCtx.IsEmpty() && input.UserID != "" {
		diagCtx = s.autoContext(ctx, input.UserID, input.VehicleID)
	}

	verdict := s.classifier.Classify(ctx, message, !diagCtx.IsEmpty())
	if !verdict.Automotive {
		s.metrics.IncChatRejected()
		result := &AskResult{
			Answer:               rejectionMessage,
			Automotive:           false,
			ClassificationMethod: verdict.Method,
			ResponseTimeMs:       time.Since(start).Milliseconds(),
		}
		s.record(input, result)
		return result, nil
	}

	if input.RequireLevel && strings.TrimSpace(input.Level) == "" {
		result := &AskResult{
			Answer:               levelPromptMessage,
			Automotive:           true,
			ClassificationMethod: verdict.Method,
			ResponseTimeMs:       time.Since(start).Milliseconds(),
		}
		s.record(input, result)
		return result, nil
	}

	if !s.llm.Enabled() {
		return nil, ErrLLMUnavailable
	}

	answer, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(input.Level)},
			{Role: llm.RoleUser, Content: userMessage(message, diagCtx)},
		},
		Temperature: 0.7,
		MaxTokens:   700,
	})
	if err != nil {
		s.metrics.IncLLMCall("failed")
		return nil, err
	}
	s.metrics.IncLLMCall("success")

	result := &AskResult{
		Answer:               strings.TrimSpace(answer),
		Automotive:           true,
		ClassificationMethod: verdict.Method,
		ResponseTimeMs:       time.Since(start).Milliseconds(),
		Suggestions:          suggestions(diagCtx),
	}

	s.metrics.IncChatRequest(verdict.Method)
	s.metrics.ObserveChatDuration(time.Since(start))
	s.record(input, result)

	return result, nil
}

// Stats returns classification statistics over stored history.
func (s *ChatService) Stats(ctx context.Context) (*repository.ChatStats, error) {
	return s.repo.GetChatStats(ctx)
}

// History returns the user's recent exchanges.
func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]*model.ChatRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListChatRecords(ctx, userID, limit)
}

// autoContext builds diagnostic context from the user's vehicle.
func (s *ChatService) autoContext(ctx context.Context, userID, vehicleID string) *model.DiagnosticContext {
	if s.vehicles == nil {
		return nil
	}

	var vehicle *model.Vehicle
	var err error
	if vehicleID != "" {
		vehicle, err = s.vehicles.Get(ctx, userID, vehicleID)
	} else {
		vehicle, err = s.vehicles.Primary(ctx, userID)
	}
	if err != nil || vehicle == nil {
		return nil
	}

	info := vehicle.Info()
	return &model.DiagnosticContext{
		VIN: vehicle.VIN,
		VehicleInfo: map[string]string{
			"make":         info.Make,
			"model":        info.Model,
			"year":         info.Year,
			"vehicle_type": info.VehicleType,
		},
	}
}

// record publishes the exchange to the history stream. Fire and forget.
func (s *ChatService) record(input AskInput, result *AskResult) {
	if s.sink == nil {
		return
	}
	s.sink.PublishAsync(history.RecordPayload{
		UserID:               input.UserID,
		VehicleID:            input.VehicleID,
		Message:              input.Message,
		Response:             result.Answer,
		Level:                input.Level,
		Context:              input.Context,
		ResponseTimeMs:       result.ResponseTimeMs,
		ClassificationMethod: result.ClassificationMethod,
		Endpoint:             input.Endpoint,
		AskedAt:              time.Now().UnixMilli(),
	})
}

func systemPrompt(level string) string {
	if level == model.LevelExpert {
		return expertPrompt
	}
	return beginnerPrompt
}

// userMessage renders the question with its diagnostic context block.
func userMessage(message string, diagCtx *model.DiagnosticContext) string {
	if diagCtx.IsEmpty() {
		return message
	}

	var b strings.Builder
	b.WriteString("Vehicle context:\n")
	if diagCtx.VIN != "" {
		fmt.Fprintf(&b, "- VIN: %s\n", diagCtx.VIN)
	}
	for key, value := range diagCtx.VehicleInfo {
		if value != "" && value != "Unknown" {
			fmt.Fprintf(&b, "- %s: %s\n", key, value)
		}
	}
	if len(diagCtx.DTCCodes) > 0 {
		fmt.Fprintf(&b, "- Trouble codes: %s\n", strings.Join(diagCtx.DTCCodes, ", "))
	}
	for pid, value := range diagCtx.SensorData {
		fmt.Fprintf(&b, "- Sensor %s: %v\n", pid, value)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(message)
	return b.String()
}

// suggestions proposes followups based on the attached context.
func suggestions(diagCtx *model.DiagnosticContext) []string {
	if diagCtx.IsEmpty() {
		return nil
	}

	var out []string
	if len(diagCtx.DTCCodes) > 0 {
		out = append(out, "Ask how urgent these trouble codes are")
		out = append(out, "Ask what a repair shop would typically charge")
	}
	if len(diagCtx.SensorData) > 0 {
		out = append(out, "Ask whether these sensor readings look normal")
	}
	if len(out) == 0 {
		out = append(out, "Ask about recommended maintenance for this vehicle")
	}
	return out
}
