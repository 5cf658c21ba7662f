// Package classify decides whether a chat question is automotive. It runs
// three tiers in order: instant keyword and DTC matching, a shared cache
// of prior verdicts, and finally an LLM yes/no call.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/driveline/driveline/internal/llm"
)

// Classification methods, reported back to callers for stats.
const (
	MethodContext  = "context"
	MethodInstant  = "instant"
	MethodCache    = "cache"
	MethodLLM      = "llm"
	MethodFallback = "fallback"
)

// dtcPattern matches a diagnostic trouble code anywhere in a question.
var dtcPattern = regexp.MustCompile(`\b[PBCU][0-9A-F]{4}\b`)

// automotiveKeywords settle a question as automotive without any LLM call.
var automotiveKeywords = []string{
	"engine", "transmission", "brake", "brakes", "tire", "tires",
	"oil change", "coolant", "radiator", "exhaust", "muffler",
	"catalytic", "alternator", "battery", "spark plug", "ignition",
	"clutch", "suspension", "steering", "axle", "drivetrain",
	"check engine", "dashboard light", "obd", "dtc", "rpm",
	"fuel pump", "fuel injector", "throttle", "turbo", "camshaft",
	"crankshaft", "timing belt", "serpentine belt", "head gasket",
	"my car", "my truck", "my vehicle", "vin",
}

// nonAutomotiveKeywords settle a question as off topic the same way.
var nonAutomotiveKeywords = []string{
	"recipe", "cooking", "bake", "weather forecast", "movie",
	"song", "lyrics", "homework", "essay", "poem", "stock market",
	"cryptocurrency", "football score", "basketball score",
	"medical advice", "prescription", "lawsuit",
}

// Cache stores prior verdicts keyed by question hash.
// Implemented by internal/cache.
type Cache interface {
	GetClassification(ctx context.Context, key string) (automotive, ok bool)
	SetClassification(ctx context.Context, key string, automotive bool)
}

// Completer is the LLM tier. *llm.Client satisfies it.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Result is one classification verdict.
type Result struct {
	Automotive bool   `json:"automotive"`
	Method     string `json:"method"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// Classifier runs the tiered classification pipeline.
type Classifier struct {
	cache  Cache
	llm    Completer
	logger *slog.Logger
}

// New creates a Classifier. cache and completer may be nil; missing tiers
// are skipped.
func New(cache Cache, completer Completer, logger *slog.Logger) *Classifier {
	return &Classifier{
		cache:  cache,
		llm:    completer,
		logger: logger.With("component", "classify"),
	}
}

// Classify returns whether the question is automotive. hasContext short
// circuits the pipeline: a question asked with live vehicle context
// attached is automotive by definition.
func (c *Classifier) Classify(ctx context.Context, question string, hasContext bool) Result {
	start := time.Now()

	if hasContext {
		return finish(Result{Automotive: true, Method: MethodContext}, start)
	}

	if verdict, ok := instantVerdict(question); ok {
		return finish(Result{Automotive: verdict, Method: MethodInstant}, start)
	}

	key := CacheKey(question)
	if c.cache != nil {
		if verdict, ok := c.cache.GetClassification(ctx, key); ok {
			return finish(Result{Automotive: verdict, Method: MethodCache}, start)
		}
	}

	verdict, err := c.llmVerdict(ctx, question)
	if err != nil {
		// No tier could decide. Treat the question as off topic rather
		// than spending tokens answering arbitrary prompts.
		if !errors.Is(err, llm.ErrNotConfigured) {
			c.logger.Warn("llm classification failed", "error", err)
		}
		return finish(Result{Automotive: false, Method: MethodFallback}, start)
	}

	if c.cache != nil {
		c.cache.SetClassification(ctx, key, verdict)
	}
	return finish(Result{Automotive: verdict, Method: MethodLLM}, start)
}

func finish(r Result, start time.Time) Result {
	r.ElapsedMs = time.Since(start).Milliseconds()
	return r
}

// CacheKey hashes a normalized question for cache lookups.
func CacheKey(question string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// instantVerdict handles the cases that never need a model: trouble codes,
// obvious automotive vocabulary, and obvious off-topic vocabulary.
func instantVerdict(question string) (automotive, ok bool) {
	trimmed := strings.TrimSpace(question)
	if len(trimmed) < 3 {
		return false, true
	}

	if dtcPattern.MatchString(strings.ToUpper(trimmed)) {
		return true, true
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range automotiveKeywords {
		if strings.Contains(lower, kw) {
			return true, true
		}
	}
	for _, kw := range nonAutomotiveKeywords {
		if strings.Contains(lower, kw) {
			return false, true
		}
	}
	return false, false
}

const classifierPrompt = `You are a classifier. Answer with exactly one word, YES or NO.
Is the following question about cars, vehicles, automotive repair, or vehicle diagnostics?`

func (c *Classifier) llmVerdict(ctx context.Context, question string) (bool, error) {
	if c.llm == nil || !c.llm.Enabled() {
		return false, llm.ErrNotConfigured
	}

	answer, err := c.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifierPrompt},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, err
	}

	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES"), nil
}
