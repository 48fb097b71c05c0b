// Package streaming turns a chat request into a stream of tokens: it checks
// the response cache and the user's quota, builds the prompt, runs the model
// with retries and a wall-clock timeout, and records the result.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/cache"
	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/prompts"
	"github.com/ekaya-inc/ekaya-drafts/pkg/quality"
	"github.com/ekaya-inc/ekaya-drafts/pkg/retry"
)

// DefaultTemperature is used when a request does not set one.
const DefaultTemperature = 0.7

// Options tunes the orchestrator.
type Options struct {
	MaxRetries              int           // total attempts per generation
	RetryDelay              time.Duration // backoff base; attempt n waits RetryDelay*2^n
	Timeout                 time.Duration // wall-clock limit per generation
	BatchSize               int
	ReplayDelay             time.Duration // pause between replayed words on a cache hit
	UseFallbackModel        bool          // use the fast tier on attempts after the first
	MinQualityScore         float64
	MaxConcurrentVariations int
	Compaction              bool // summarize dropped history with the fast model
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:              3,
		RetryDelay:              time.Second,
		Timeout:                 30 * time.Second,
		BatchSize:               DefaultBatchSize,
		ReplayDelay:             50 * time.Millisecond,
		UseFallbackModel:        true,
		MinQualityScore:         0.7,
		MaxConcurrentVariations: 4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries < 1 {
		o.MaxRetries = d.MaxRetries
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.BatchSize < 1 {
		o.BatchSize = d.BatchSize
	}
	if o.ReplayDelay < 0 {
		o.ReplayDelay = 0
	}
	if o.MaxConcurrentVariations < 1 {
		o.MaxConcurrentVariations = d.MaxConcurrentVariations
	}
	return o
}

// Request is one chat turn to answer.
type Request struct {
	UserID string
	// ConversationID, when set, receives the completed assistant turn.
	ConversationID uuid.UUID
	// Messages is the full conversation, newest last.
	Messages    []models.ChatMessage
	Platform    models.Platform
	Draft       *models.DraftContext
	Temperature float64
	Category    string
	// OnAccepted, when set, runs once the request has passed validation and
	// the quota check, before any token is produced or turn recorded. It is
	// not called when Stream returns an error.
	OnAccepted func(ctx context.Context)
}

func (r *Request) validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrInvalidInput)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", apperrors.ErrInvalidInput)
	}
	for _, m := range r.Messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("%w: unknown role %q", apperrors.ErrInvalidInput, m.Role)
		}
	}
	return nil
}

func (r *Request) platform() models.Platform {
	if r.Platform == models.PlatformNone && r.Draft != nil {
		return r.Draft.Platform
	}
	return r.Platform
}

// QuotaGate rejects calls that would exceed the user's limits.
type QuotaGate interface {
	EnforceQuotas(ctx context.Context, userID string, estimatedTokens int64) error
}

// UsageTracker records a completed model invocation. It must not block the
// stream and must not fail it.
type UsageTracker interface {
	TrackUsage(ctx context.Context, in models.UsageInput)
}

// TurnRecorder appends a conversation turn.
type TurnRecorder interface {
	Append(ctx context.Context, turn *models.ConversationTurn) error
}

// Deps are the collaborators of an Orchestrator. Provider, Cache and Builder
// are required; the rest are optional.
type Deps struct {
	Provider  llm.Provider
	Cache     *cache.ResponseCache
	Builder   *prompts.Builder
	Compactor *prompts.Compactor
	Quota     QuotaGate
	Usage     UsageTracker
	Turns     TurnRecorder
	Scorer    *quality.Scorer
}

// Orchestrator runs generations. It is safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	opts   Options
	pool   *llm.WorkerPool
	logger *zap.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps, opts Options, logger *zap.Logger) *Orchestrator {
	opts = opts.withDefaults()
	if deps.Scorer == nil {
		deps.Scorer = quality.NewScorer()
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		pool:   llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: opts.MaxConcurrentVariations}, logger),
		logger: logger.Named("stream-orchestrator"),
		now:    time.Now,
	}
}

// runConfig varies a single generation inside the composite modes.
type runConfig struct {
	variation   int
	temperature float64
	readCache   bool
	writeCache  bool
	recordTurn  bool
	skipQuota   bool
	accepted    bool // run req.OnAccepted
	category    string
	// instruction is appended as a system message for the model only; it
	// is not part of the cache key.
	instruction string
}

func defaultRun() runConfig {
	return runConfig{readCache: true, writeCache: true, recordTurn: true, accepted: true}
}

var errHalted = errors.New("generation already finished")

// Stream answers req. A cache hit is replayed without touching quota or the
// model. A quota rejection is returned as *apperrors.QuotaError before any
// model call; every other failure arrives as the terminal token.
func (o *Orchestrator) Stream(ctx context.Context, req *Request) (*Subscription, error) {
	return o.start(ctx, req, defaultRun())
}

func (o *Orchestrator) start(ctx context.Context, req *Request, rc runConfig) (*Subscription, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if rc.category == "" {
		rc.category = req.Category
	}
	if rc.category == "" {
		rc.category = models.UsageCategoryChat
	}

	key := cache.GenerateKey(req.Messages, req.platform())

	if rc.readCache {
		if response, ok := o.deps.Cache.Get(ctx, key); ok {
			o.logger.Debug("Cache hit, replaying response",
				zap.String("user_id", req.UserID),
				zap.Int("variation", rc.variation))
			o.accept(ctx, req, rc)
			sub, em, runCtx := newSubscription(ctx)
			go o.replay(runCtx, req, rc, response, em)
			return sub, nil
		}
	}

	if !rc.skipQuota && o.deps.Quota != nil {
		if err := o.deps.Quota.EnforceQuotas(ctx, req.UserID, estimateTokens(req.Messages)); err != nil {
			return nil, err
		}
	}

	o.accept(ctx, req, rc)
	sub, em, runCtx := newSubscription(ctx)
	go o.generate(runCtx, req, rc, key, em)
	return sub, nil
}

func (o *Orchestrator) accept(ctx context.Context, req *Request, rc runConfig) {
	if rc.accepted && req.OnAccepted != nil {
		req.OnAccepted(ctx)
	}
}

// replay streams a cached response word by word.
func (o *Orchestrator) replay(ctx context.Context, req *Request, rc runConfig, response string, em *emitter) {
	start := o.now()
	buf := NewTokenBuffer(o.opts.BatchSize, func(batch []string) {
		em.emit(models.StreamToken{Token: strings.Join(batch, ""), Variation: rc.variation})
	})

	words := strings.SplitAfter(response, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if i > 0 {
			if err := retry.Wait(ctx, o.opts.ReplayDelay); err != nil {
				buf.Clear()
				em.finish(models.StreamToken{
					Error:     "Generation canceled",
					Variation: rc.variation,
					Metadata:  &models.StreamMetadata{Model: models.ModelCached},
				})
				return
			}
		}
		buf.Add(w)
	}
	buf.Flush()

	if !em.claim() {
		return
	}
	if rc.recordTurn {
		o.recordTurn(context.WithoutCancel(ctx), req, response)
	}
	em.deliver(models.StreamToken{
		Variation: rc.variation,
		Metadata: &models.StreamMetadata{
			Model:            models.ModelCached,
			ProcessingTimeMs: o.now().Sub(start).Milliseconds(),
		},
	})
}

type attemptResult struct {
	text  string
	usage *llm.Usage
}

func (o *Orchestrator) generate(ctx context.Context, req *Request, rc runConfig, key string, em *emitter) {
	start := o.now()
	logger := o.logger.With(zap.String("user_id", req.UserID), zap.Int("variation", rc.variation))

	var attempt atomic.Int64
	timer := time.AfterFunc(o.opts.Timeout, func() {
		if !em.claim() {
			return
		}
		logger.Warn("Generation timed out", zap.Duration("timeout", o.opts.Timeout))
		em.deliver(models.StreamToken{
			Error:     fmt.Sprintf("%s after %s", apperrors.ErrTimeout, o.opts.Timeout),
			Variation: rc.variation,
			Metadata: &models.StreamMetadata{
				ProcessingTimeMs: o.now().Sub(start).Milliseconds(),
				RetryCount:       int(attempt.Load()),
			},
		})
	})
	defer timer.Stop()

	request := o.buildRequest(ctx, req, rc)

	policy := retry.Exponential(o.opts.MaxRetries, o.opts.RetryDelay)
	stop := func(err error) bool {
		return errors.Is(err, errHalted) || retry.IsPermanent(err)
	}

	result, last, err := retry.DoWithResult(ctx, policy, stop, func(n int) (attemptResult, error) {
		if em.finished() {
			return attemptResult{}, errHalted
		}
		attempt.Store(int64(n))

		call := *request
		call.Tier = llm.TierStandard
		if n > 0 && o.opts.UseFallbackModel {
			call.Tier = llm.TierFast
		}

		var text strings.Builder
		buf := NewTokenBuffer(o.opts.BatchSize, func(batch []string) {
			em.emit(models.StreamToken{Token: strings.Join(batch, ""), Variation: rc.variation})
		})

		usage, err := o.deps.Provider.Stream(ctx, &call, func(fragment string) {
			text.WriteString(fragment)
			buf.Add(fragment)
		})
		if err != nil {
			buf.Clear()
			logger.Warn("Model attempt failed",
				zap.Int("attempt", n+1),
				zap.Int("max_attempts", o.opts.MaxRetries),
				zap.String("model", o.deps.Provider.Model(call.Tier)),
				zap.String("error_type", string(llm.GetErrorType(err))),
				zap.Bool("retryable", llm.IsRetryable(err)),
				zap.String("error", logging.SanitizeError(err)))

			if n < o.opts.MaxRetries-1 && !retry.IsPermanent(err) {
				em.emit(models.StreamToken{
					Token:     fmt.Sprintf("Retrying (attempt %d of %d)...", n+2, o.opts.MaxRetries),
					Notice:    true,
					Variation: rc.variation,
				})
			}
			return attemptResult{}, err
		}

		buf.Flush()
		if usage == nil {
			usage = &llm.Usage{
				Model:        o.deps.Provider.Model(call.Tier),
				InputTokens:  llm.EstimateRequestTokens(&call),
				OutputTokens: llm.EstimateTokens(text.String()),
				Estimated:    true,
			}
		}
		return attemptResult{text: text.String(), usage: usage}, nil
	})

	if errors.Is(err, errHalted) {
		return
	}

	if err != nil {
		if !em.claim() {
			logger.Debug("Discarding late failure", zap.Error(err))
			return
		}
		timer.Stop()
		em.deliver(models.StreamToken{
			Error:     failureMessage(err, last+1),
			Variation: rc.variation,
			Metadata: &models.StreamMetadata{
				ProcessingTimeMs: o.now().Sub(start).Milliseconds(),
				RetryCount:       last,
			},
		})
		return
	}

	if !em.claim() {
		logger.Debug("Discarding late result", zap.Int("attempt", last+1))
		return
	}
	timer.Stop()

	// The consumer may disconnect from here on; side effects still complete.
	sideCtx := context.WithoutCancel(ctx)
	if rc.writeCache {
		o.deps.Cache.Set(sideCtx, key, result.text)
	}
	o.trackUsage(sideCtx, req, rc, result.usage, last)
	if rc.recordTurn {
		o.recordTurn(sideCtx, req, result.text)
	}

	elapsed := o.now().Sub(start)
	logger.Debug("Generation completed",
		zap.String("model", result.usage.Model),
		zap.Int("retry_count", last),
		zap.Duration("elapsed", elapsed),
		zap.String("response_preview", logging.Preview(result.text)))

	em.deliver(models.StreamToken{
		Variation: rc.variation,
		Metadata: &models.StreamMetadata{
			Model:            result.usage.Model,
			TotalTokens:      result.usage.TotalTokens(),
			ProcessingTimeMs: elapsed.Milliseconds(),
			RetryCount:       last,
		},
	})
}

// buildRequest assembles the model input, compacting dropped history first
// when enabled.
func (o *Orchestrator) buildRequest(ctx context.Context, req *Request, rc runConfig) *llm.Request {
	in := prompts.Input{
		Platform: req.platform(),
		Draft:    req.Draft,
		Messages: req.Messages,
	}
	p := o.deps.Builder.Build(in)

	if o.opts.Compaction && o.deps.Compactor != nil && len(p.Dropped) > 0 {
		digest, usage := o.deps.Compactor.Digest(ctx, p.Dropped)
		if usage != nil {
			o.trackUsage(context.WithoutCancel(ctx), req, runConfig{category: models.UsageCategoryCompaction}, usage, 0)
		}
		if digest != "" {
			in.Digest = digest
			p = o.deps.Builder.Build(in)
		}
	}

	messages := p.Messages
	if rc.instruction != "" {
		messages = append(append([]models.ChatMessage{}, messages...),
			models.ChatMessage{Role: models.RoleSystem, Content: rc.instruction})
	}

	temperature := req.Temperature
	if rc.temperature > 0 {
		temperature = rc.temperature
	}
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	return &llm.Request{
		Messages:     messages,
		SystemPrompt: p.System,
		Temperature:  temperature,
	}
}

func (o *Orchestrator) trackUsage(ctx context.Context, req *Request, rc runConfig, usage *llm.Usage, retryCount int) {
	if o.deps.Usage == nil || usage == nil {
		return
	}
	metadata := map[string]any{
		"retry_count": retryCount,
		"estimated":   usage.Estimated,
	}
	if p := req.platform(); p != models.PlatformNone {
		metadata["platform"] = string(p)
	}
	if rc.variation > 0 || rc.category == models.UsageCategoryVariation {
		metadata["variation"] = rc.variation
	}
	if req.ConversationID != uuid.Nil {
		metadata["conversation_id"] = req.ConversationID.String()
	}
	o.deps.Usage.TrackUsage(ctx, models.UsageInput{
		UserID:       req.UserID,
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Category:     rc.category,
		Metadata:     metadata,
	})
}

func (o *Orchestrator) recordTurn(ctx context.Context, req *Request, content string) {
	if o.deps.Turns == nil || req.ConversationID == uuid.Nil {
		return
	}
	err := o.deps.Turns.Append(ctx, &models.ConversationTurn{
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		Timestamp:      o.now(),
	})
	if err != nil {
		o.logger.Warn("Failed to record conversation turn",
			zap.String("conversation_id", req.ConversationID.String()),
			zap.Error(err))
	}
}

func failureMessage(err error, attempts int) string {
	if retry.IsPermanent(err) {
		return fmt.Sprintf("Generation failed: %s", logging.SanitizeError(err))
	}
	return fmt.Sprintf("Generation failed after %d attempts (%s): %s",
		attempts, apperrors.ErrRetriesExhausted, logging.SanitizeError(err))
}

func estimateTokens(messages []models.ChatMessage) int64 {
	var total int64
	for _, m := range messages {
		total += int64(llm.EstimateTokens(m.Content))
	}
	return total
}
