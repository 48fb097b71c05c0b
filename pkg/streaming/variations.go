package streaming

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/llm"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// MaxVariations caps a single StreamVariations call.
const MaxVariations = 8

// VariationTemperature is the sampling temperature of variation i.
func VariationTemperature(i int) float64 {
	return DefaultTemperature + 0.1*float64(i)
}

// StreamVariations runs n independent generations concurrently, each at a
// different temperature, and merges their tokens into one subscription.
// Every token carries its variation index; each variation ends with its own
// terminal token and the channel closes after all n have ended. Variations
// bypass the response cache since identical input would collapse them.
func (o *Orchestrator) StreamVariations(ctx context.Context, req *Request, n int) (*Subscription, error) {
	if n < 1 || n > MaxVariations {
		return nil, fmt.Errorf("%w: variations must be between 1 and %d", apperrors.ErrInvalidInput, MaxVariations)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if o.deps.Quota != nil {
		if err := o.deps.Quota.EnforceQuotas(ctx, req.UserID, estimateTokens(req.Messages)*int64(n)); err != nil {
			return nil, err
		}
	}

	sub, em, runCtx := newSubscription(ctx)

	items := make([]llm.WorkItem[struct{}], n)
	for i := range items {
		items[i] = llm.WorkItem[struct{}]{
			ID: fmt.Sprintf("variation-%d", i),
			Execute: func(ctx context.Context) (struct{}, error) {
				return struct{}{}, o.runVariation(ctx, req, i, em)
			},
		}
	}

	go func() {
		defer em.end()
		results := llm.Process(runCtx, o.pool, items, nil)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		o.logger.Debug("Variations finished",
			zap.String("user_id", req.UserID),
			zap.Int("count", n),
			zap.Int("max_concurrent", o.pool.MaxConcurrent()),
			zap.Int("failed", failed))
	}()

	return sub, nil
}

func (o *Orchestrator) runVariation(ctx context.Context, req *Request, i int, em *emitter) error {
	member, err := o.start(ctx, req, runConfig{
		variation:   i,
		temperature: VariationTemperature(i),
		recordTurn:  false,
		skipQuota:   true,
		category:    models.UsageCategoryVariation,
	})
	if err != nil {
		em.forward(models.StreamToken{Done: true, Error: logging.SanitizeError(err), Variation: i})
		return err
	}
	defer member.Close()

	for tok := range member.Tokens() {
		em.forward(tok)
		if tok.IsError() {
			return fmt.Errorf("variation %d: %s", i, tok.Error)
		}
	}
	return nil
}
