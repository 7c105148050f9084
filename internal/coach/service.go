// Package coach is the chat orchestrator: it runs detection and the guard
// for an inbound message, picks the prompt and asks the generator for a
// reply. It never persists anything; the caller stores the returned stage
// and appends the turns to history.
package coach

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/plan"
	"github.com/vidasmart/coachgw/internal/prompt"
	"github.com/vidasmart/coachgw/internal/stage"
	"github.com/vidasmart/coachgw/internal/telemetry"
	"github.com/vidasmart/coachgw/internal/tokens"
)

// Generator produces the assistant reply.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error) {
	return f(ctx, systemPrompt, history, userMessage)
}

// Request is one inbound message with everything needed to answer it.
type Request struct {
	Message string
	Profile domain.UserProfile
	History []domain.ChatMessage
	Stage   domain.Stage
	Flags   guard.Flags

	// Plans and Completed feed the proactive suggestions.
	Plans     []plan.ActivePlan
	Completed map[string]bool

	Debug bool
}

// Response is the reply and the stage the caller should persist.
type Response struct {
	Reply     string          `json:"reply"`
	Stage     domain.Stage    `json:"stage"`
	Fallback  bool            `json:"fallback,omitempty"`
	Detection stage.Detection `json:"-"`
	Decision  guard.Decision  `json:"-"`
	Debug     *Debug          `json:"debugStage,omitempty"`
}

// Debug exposes the internals of a response when requested.
type Debug struct {
	Persisted      domain.Stage      `json:"persistedStage"`
	PromptStage    domain.Stage      `json:"promptStage,omitempty"`
	Detection      stage.Detection   `json:"detection"`
	Guard          guard.Decision    `json:"guard"`
	HistoryWindow  int               `json:"historyWindow"`
	Suggestions    []plan.Suggestion `json:"suggestions,omitempty"`
	FallbackReason string            `json:"fallbackReason,omitempty"`
}

// Service is the orchestrator. It is safe for concurrent use.
type Service struct {
	detector  *stage.Detector
	guard     *guard.Guard
	prompts   *prompt.Builder
	generator Generator

	cfg      Config
	location *time.Location
	counter  tokens.Counter
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the time source. Tests use it to make detection
// reproducible.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCounter(c tokens.Counter) Option {
	return func(s *Service) { s.counter = c }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService wires the orchestrator.
func NewService(detector *stage.Detector, g *guard.Guard, prompts *prompt.Builder, gen Generator, opts ...Option) *Service {
	s := &Service{
		detector:  detector,
		guard:     g,
		prompts:   prompts,
		generator: gen,
		cfg:       DefaultConfig(),
		counter:   tokens.NewEstimator(),
		logger:    slog.Default(),
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := time.LoadLocation(s.cfg.TimeZone)
	if err != nil {
		s.logger.Warn("unknown time zone, using UTC", slog.String("time_zone", s.cfg.TimeZone))
		loc = time.UTC
	}
	s.location = loc

	return s
}

// HandleMessage answers one message. The only errors it returns are
// *domain.APIError validation failures; generator failures become a
// fallback reply.
func (s *Service) HandleMessage(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.ErrMissingField("messageContent")
	}
	if strings.TrimSpace(req.Profile.ID) == "" {
		return nil, domain.ErrMissingField("userProfile")
	}

	ctx, span := s.tracer.Start(ctx, "coach.HandleMessage")
	defer span.End()

	now := s.now()
	persisted := req.Stage
	if !persisted.Valid() {
		persisted = domain.StageLead
	}

	det := s.detector.Detect(stage.Input{
		History:   req.History,
		Message:   req.Message,
		Profile:   req.Profile,
		Persisted: persisted,
		Now:       now,
	})

	dec := s.guard.Evaluate(guard.Input{
		Detection: det,
		Persisted: persisted,
		Message:   req.Message,
		History:   req.History,
		Flags:     req.Flags,
	})
	s.metrics.GuardDecision(string(dec.Action), issueLabels(dec.Issues))

	span.SetAttributes(
		attribute.String("coach.user_id", req.Profile.ID),
		attribute.String("coach.stage.persisted", string(persisted)),
		attribute.String("coach.stage.detected", string(det.Stage)),
		attribute.String("coach.rule", string(det.Rule)),
		attribute.Float64("coach.confidence", det.Confidence),
		attribute.String("coach.guard.action", string(dec.Action)),
	)

	resp := &Response{Stage: persisted, Detection: det, Decision: dec}
	var dbg *Debug
	if req.Debug {
		dbg = &Debug{Persisted: persisted, Detection: det, Guard: dec}
		resp.Debug = dbg
	}

	if dec.Action == guard.ActionBlockReply {
		resp.Reply = s.prompts.BlockReply(dec.Issues)
		s.logger.InfoContext(ctx, "reply blocked",
			slog.String("user_id", req.Profile.ID),
			slog.String("stage", string(persisted)),
			slog.Any("issues", dec.Issues),
		)
		return resp, nil
	}

	promptStage := persisted
	if dec.Action == guard.ActionForceStage {
		resp.Stage = dec.Stage
		promptStage = dec.Stage
	} else if h, ok := dec.Hint(guard.HintConsiderStagePrompt); ok && h.Stage.Valid() {
		promptStage = h.Stage
	}

	window := s.historyWindow(req.History)
	suggestions := plan.Suggest(req.Plans, req.Completed, now.In(s.location).Hour(), s.cfg.SuggestionLimit)

	if dbg != nil {
		dbg.PromptStage = promptStage
		dbg.HistoryWindow = len(window)
		dbg.Suggestions = suggestions
	}

	reply, reason := s.generate(ctx, req, prompt.Data{
		Profile:     req.Profile,
		Persisted:   persisted,
		Stage:       promptStage,
		Moment:      det.Metrics.Moment,
		AgeDays:     det.Metrics.AccountAgeDays,
		Hints:       dec.Hints,
		Suggestions: suggestions,
	}, window, resp.Stage)

	resp.Reply = reply
	if reason != "" {
		resp.Fallback = true
		span.SetAttributes(attribute.String("coach.fallback", reason))
		if dbg != nil {
			dbg.FallbackReason = reason
		}
	}

	s.metrics.StageTransition(string(persisted), string(resp.Stage))
	return resp, nil
}

// historyWindow keeps the newest HistoryMessages turns and then trims
// them to the token budget.
func (s *Service) historyWindow(history []domain.ChatMessage) []domain.ChatMessage {
	n := s.cfg.HistoryMessages
	if n > len(history) {
		n = len(history)
	}
	window := history[len(history)-n:]
	return tokens.Trim(s.counter, window, s.cfg.HistoryTokens)
}

// generate calls the generator and returns the reply, or the fallback
// reply and a reason when generation failed.
func (s *Service) generate(ctx context.Context, req Request, data prompt.Data, window []domain.ChatMessage, resolved domain.Stage) (string, string) {
	system, err := s.prompts.System(data)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to render system prompt",
			slog.String("user_id", req.Profile.ID),
			slog.String("stage", string(data.Stage)),
			slog.String("error", err.Error()),
		)
		s.metrics.Fallback("prompt")
		return s.prompts.Fallback(), "prompt"
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	genCtx, span := s.tracer.Start(genCtx, "coach.generate")
	defer span.End()

	start := time.Now()
	reply, err := s.generator.Generate(genCtx, system, window, req.Message)
	latency := time.Since(start)

	if err == nil && strings.TrimSpace(reply) == "" {
		err = domain.ErrUpstream("generator returned an empty reply").WithCode(domain.ErrorCodeEmptyCompletion)
	}

	if err != nil {
		reason := failureReason(genCtx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		s.metrics.Generation("error", latency)
		s.metrics.Fallback(reason)
		level := slog.LevelWarn
		if apiErr, ok := domain.AsAPIError(err); ok && !apiErr.Recoverable() {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "generation failed, sending fallback reply",
			slog.String("user_id", req.Profile.ID),
			slog.String("stage", string(resolved)),
			slog.Duration("latency", latency),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return s.prompts.Fallback(), reason
	}

	s.metrics.Generation("ok", latency)
	return strings.TrimSpace(reply), ""
}

func failureReason(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return string(domain.ErrorTypeTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if apiErr, ok := domain.AsAPIError(err); ok {
		return string(apiErr.Type)
	}
	return string(domain.ErrorTypeServer)
}

func issueLabels(issues []guard.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = string(issue)
	}
	return out
}
