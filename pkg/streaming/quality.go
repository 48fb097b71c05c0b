package streaming

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-drafts/pkg/cache"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// RegenerationInstruction is appended as a system message when a response
// is regenerated for low quality.
const RegenerationInstruction = "Your previous answer was too generic. Answer again with more specific, " +
	"concrete and actionable content tailored to the platform and audience."

// StreamWithQualityScore streams like Stream, then scores the completed
// response. Below MinQualityScore the response is regenerated once with
// RegenerationInstruction and the second result is accepted as is. The
// terminal token carries the quality score.
func (o *Orchestrator) StreamWithQualityScore(ctx context.Context, req *Request) (*Subscription, error) {
	rc := defaultRun()
	rc.recordTurn = false

	first, err := o.start(ctx, req, rc)
	if err != nil {
		return nil, err
	}

	sub, em, runCtx := newSubscription(ctx)
	go o.qualityGate(runCtx, req, first, em)
	return sub, nil
}

func (o *Orchestrator) qualityGate(ctx context.Context, req *Request, first *Subscription, em *emitter) {
	defer first.Close()
	sideCtx := context.WithoutCancel(ctx)
	qc := QualityContextFor(req)

	text, term, ok := relay(ctx, first, em)
	if !ok {
		em.finish(canceledToken())
		return
	}
	if term.IsError() {
		em.finish(term)
		return
	}

	report := o.deps.Scorer.ScoreResponse(text, qc)
	if report.OverallScore >= o.opts.MinQualityScore {
		withQuality(&term, report.OverallScore, false)
		if em.claim() {
			o.recordTurn(sideCtx, req, text)
			em.deliver(term)
		}
		return
	}

	o.logger.Info("Response below quality threshold, regenerating",
		zap.String("user_id", req.UserID),
		zap.Float64("score", report.OverallScore),
		zap.Float64("threshold", o.opts.MinQualityScore),
		zap.Strings("weaknesses", report.Weaknesses))

	em.emit(models.StreamToken{
		Token: fmt.Sprintf("Response scored %.2f (minimum %.2f). Regenerating with more specific guidance...",
			report.OverallScore, o.opts.MinQualityScore),
		Notice: true,
	})

	// The low-quality response must not be served again from cache.
	o.deps.Cache.Invalidate(sideCtx, cache.GenerateKey(req.Messages, req.platform()))

	second, err := o.start(ctx, req, runConfig{
		writeCache:  true,
		category:    models.UsageCategoryRegenerate,
		instruction: RegenerationInstruction,
	})
	if err != nil {
		// The first response was already streamed in full; keep it.
		o.logger.Warn("Regeneration refused, keeping first response",
			zap.String("user_id", req.UserID),
			zap.String("error", logging.SanitizeError(err)))
		withQuality(&term, report.OverallScore, false)
		if em.claim() {
			o.recordTurn(sideCtx, req, text)
			em.deliver(term)
		}
		return
	}
	defer second.Close()

	text, term, ok = relay(ctx, second, em)
	if !ok {
		em.finish(canceledToken())
		return
	}
	if term.IsError() {
		withQuality(&term, -1, true)
		em.finish(term)
		return
	}

	// Accepted regardless of score; the score is reported, not acted on.
	report = o.deps.Scorer.ScoreResponse(text, qc)
	withQuality(&term, report.OverallScore, true)
	if em.claim() {
		o.recordTurn(sideCtx, req, text)
		em.deliver(term)
	}
}

// relay forwards a member stream's tokens to em until the member's terminal
// token, which it returns instead of forwarding. It also returns the text
// of the final attempt: a notice starts a new attempt and resets it.
func relay(ctx context.Context, member *Subscription, em *emitter) (string, models.StreamToken, bool) {
	var text strings.Builder
	for {
		select {
		case tok, open := <-member.Tokens():
			if !open {
				return text.String(), models.StreamToken{}, false
			}
			if tok.Done {
				return text.String(), tok, true
			}
			if tok.Notice {
				text.Reset()
			} else {
				text.WriteString(tok.Token)
			}
			em.emit(tok)
		case <-ctx.Done():
			return text.String(), models.StreamToken{}, false
		}
	}
}

// QualityContextFor derives the scoring context of a request.
func QualityContextFor(req *Request) *models.QualityContext {
	qc := &models.QualityContext{Platform: req.platform()}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == models.RoleUser {
			qc.Prompt = req.Messages[i].Content
			break
		}
	}
	if req.Draft != nil {
		qc.Goals = req.Draft.Goals
		qc.TargetAudience = req.Draft.Audience
	}
	return qc
}

func withQuality(tok *models.StreamToken, score float64, regenerated bool) {
	if tok.Metadata == nil {
		tok.Metadata = &models.StreamMetadata{}
	}
	if score >= 0 {
		s := score
		tok.Metadata.QualityScore = &s
	}
	tok.Metadata.Regenerated = regenerated
}

func canceledToken() models.StreamToken {
	return models.StreamToken{Error: apperrors.ErrCanceled.Error()}
}
