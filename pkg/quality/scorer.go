// Package quality scores generated responses with deterministic text
// heuristics. Each dimension is an independent, replaceable scorer; the
// weighting and aggregation do not depend on how a dimension is scored.
package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

const (
	StrengthThreshold = 0.8
	WeaknessThreshold = 0.5
)

var baseWeights = map[models.Dimension]float64{
	models.DimensionRelevance:            0.20,
	models.DimensionClarity:              0.15,
	models.DimensionCompleteness:         0.15,
	models.DimensionActionability:        0.10,
	models.DimensionCreativity:           0.10,
	models.DimensionTone:                 0.10,
	models.DimensionPlatformOptimization: 0.10,
	models.DimensionEngagement:           0.10,
}

var strengthText = map[models.Dimension]string{
	models.DimensionRelevance:            "Stays on topic with the request",
	models.DimensionClarity:              "Clear, readable sentences",
	models.DimensionCompleteness:         "Covers the request thoroughly",
	models.DimensionActionability:        "Gives concrete next steps",
	models.DimensionCreativity:           "Fresh, varied wording",
	models.DimensionTone:                 "Tone fits the audience",
	models.DimensionPlatformOptimization: "Well suited to the target platform",
	models.DimensionEngagement:           "Invites the reader to respond",
}

var weaknessText = map[models.Dimension]string{
	models.DimensionRelevance:            "Drifts from what was asked",
	models.DimensionClarity:              "Sentences are hard to follow",
	models.DimensionCompleteness:         "Too brief to fully address the request",
	models.DimensionActionability:        "No concrete actions or steps",
	models.DimensionCreativity:           "Wording is flat or repetitive",
	models.DimensionTone:                 "Tone is off for the audience",
	models.DimensionPlatformOptimization: "Not adapted to the target platform",
	models.DimensionEngagement:           "Gives the reader no reason to engage",
}

var suggestionText = map[models.Dimension]string{
	models.DimensionRelevance:            "Reuse the key terms from the request and answer it directly",
	models.DimensionClarity:              "Aim for 8-20 words per sentence and prefer simpler words",
	models.DimensionCompleteness:         "Expand with supporting detail, an example or a short list",
	models.DimensionActionability:        "Add specific action verbs or a numbered list of steps",
	models.DimensionCreativity:           "Vary word choice and try a vivid image or a question",
	models.DimensionTone:                 "Avoid all caps, repeated exclamation marks and negative wording",
	models.DimensionPlatformOptimization: "Match the platform's length, hashtag and formatting conventions",
	models.DimensionEngagement:           "End with a question or a clear call to action",
}

// Scorer computes QualityReports. The zero value is not usable; use
// NewScorer.
type Scorer struct {
	scorers map[models.Dimension]DimensionScorer
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithScorer replaces the heuristic for one dimension.
func WithScorer(d models.Dimension, fn DimensionScorer) Option {
	return func(s *Scorer) {
		s.scorers[d] = fn
	}
}

// NewScorer creates a scorer with the default heuristics.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{scorers: DefaultScorers()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the dimension weights for qc, normalized to sum to 1.
func Weights(qc *models.QualityContext) map[models.Dimension]float64 {
	w := make(map[models.Dimension]float64, len(baseWeights))
	for d, v := range baseWeights {
		w[d] = v
	}

	if qc.HasGoal(models.GoalEngagement) {
		w[models.DimensionEngagement] += 0.10
		w[models.DimensionCreativity] += 0.05
	}
	if qc.HasGoal(models.GoalConversion) {
		w[models.DimensionActionability] += 0.10
		w[models.DimensionClarity] += 0.05
	}
	if qc != nil && qc.Platform != models.PlatformNone {
		w[models.DimensionPlatformOptimization] += 0.10
	}

	total := 0.0
	for _, d := range models.AllDimensions {
		total += w[d]
	}
	for d := range w {
		w[d] /= total
	}
	return w
}

// ScoreResponse evaluates response against qc. It performs no I/O and is
// deterministic for identical inputs.
func (s *Scorer) ScoreResponse(response string, qc *models.QualityContext) *models.QualityReport {
	a := Analyze(response)
	weights := Weights(qc)

	report := &models.QualityReport{
		Strengths:   []string{},
		Weaknesses:  []string{},
		Suggestions: []string{},
	}

	overall := 0.0
	for _, d := range models.AllDimensions {
		score := round(clamp(s.scorers[d](a, qc)))
		report.Dimensions.Set(d, score)
		overall += weights[d] * score

		switch {
		case score >= StrengthThreshold:
			report.Strengths = append(report.Strengths, fmt.Sprintf("%s: %s", d, strengthText[d]))
		case score < WeaknessThreshold:
			report.Weaknesses = append(report.Weaknesses, fmt.Sprintf("%s: %s", d, weaknessText[d]))
			report.Suggestions = append(report.Suggestions, suggestionText[d])
		}
	}

	if qc != nil {
		if limit, over := OverPlatformLimit(a, qc.Platform); over {
			report.Suggestions = append(report.Suggestions,
				fmt.Sprintf("Shorten to fit the %d-character limit for %s (currently %d)", limit, qc.Platform, a.Chars))
		}
	}

	report.OverallScore = round(overall)
	report.Confidence = confidence(a, qc)
	return report
}

// CompareResponses scores each response and returns them ranked by
// descending overall score. Ties keep input order.
func (s *Scorer) CompareResponses(responses []string, qc *models.QualityContext) []models.RankedResponse {
	ranked := make([]models.RankedResponse, len(responses))
	for i, r := range responses {
		ranked[i] = models.RankedResponse{
			Index:    i,
			Response: r,
			Report:   s.ScoreResponse(r, qc),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Report.OverallScore > ranked[j].Report.OverallScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// confidence grows with the amount of text and with the context available
// to score against.
func confidence(a *Analysis, qc *models.QualityContext) float64 {
	c := 0.4 + 0.4*math.Min(1, float64(a.WordCount())/100)
	if qc != nil && qc.Prompt != "" {
		c += 0.1
	}
	if qc != nil && qc.Platform != models.PlatformNone {
		c += 0.1
	}
	return round(clamp(c))
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
