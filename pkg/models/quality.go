package models

// Dimension names one axis of response quality.
type Dimension string

const (
	DimensionRelevance            Dimension = "relevance"
	DimensionClarity              Dimension = "clarity"
	DimensionCompleteness         Dimension = "completeness"
	DimensionActionability        Dimension = "actionability"
	DimensionCreativity           Dimension = "creativity"
	DimensionTone                 Dimension = "tone"
	DimensionPlatformOptimization Dimension = "platformOptimization"
	DimensionEngagement           Dimension = "engagement"
)

// AllDimensions lists every dimension in reporting order.
var AllDimensions = []Dimension{
	DimensionRelevance,
	DimensionClarity,
	DimensionCompleteness,
	DimensionActionability,
	DimensionCreativity,
	DimensionTone,
	DimensionPlatformOptimization,
	DimensionEngagement,
}

// QualityContext is what a response is scored against.
type QualityContext struct {
	Prompt         string   `json:"prompt,omitempty"`
	Platform       Platform `json:"platform,omitempty"`
	Goals          []Goal   `json:"goals,omitempty"`
	TargetAudience string   `json:"target_audience,omitempty"`
	Tone           string   `json:"tone,omitempty"`
}

// HasGoal reports whether g is among the context goals.
func (c *QualityContext) HasGoal(g Goal) bool {
	if c == nil {
		return false
	}
	for _, goal := range c.Goals {
		if goal == g {
			return true
		}
	}
	return false
}

// QualityDimensions holds a score in [0,1] per dimension.
type QualityDimensions struct {
	Relevance            float64 `json:"relevance"`
	Clarity              float64 `json:"clarity"`
	Completeness         float64 `json:"completeness"`
	Actionability        float64 `json:"actionability"`
	Creativity           float64 `json:"creativity"`
	Tone                 float64 `json:"tone"`
	PlatformOptimization float64 `json:"platformOptimization"`
	Engagement           float64 `json:"engagement"`
}

// Get returns the score for d.
func (q *QualityDimensions) Get(d Dimension) float64 {
	switch d {
	case DimensionRelevance:
		return q.Relevance
	case DimensionClarity:
		return q.Clarity
	case DimensionCompleteness:
		return q.Completeness
	case DimensionActionability:
		return q.Actionability
	case DimensionCreativity:
		return q.Creativity
	case DimensionTone:
		return q.Tone
	case DimensionPlatformOptimization:
		return q.PlatformOptimization
	case DimensionEngagement:
		return q.Engagement
	}
	return 0
}

// Set stores v as the score for d.
func (q *QualityDimensions) Set(d Dimension, v float64) {
	switch d {
	case DimensionRelevance:
		q.Relevance = v
	case DimensionClarity:
		q.Clarity = v
	case DimensionCompleteness:
		q.Completeness = v
	case DimensionActionability:
		q.Actionability = v
	case DimensionCreativity:
		q.Creativity = v
	case DimensionTone:
		q.Tone = v
	case DimensionPlatformOptimization:
		q.PlatformOptimization = v
	case DimensionEngagement:
		q.Engagement = v
	}
}

// QualityReport is a transient evaluation of one response. It is never persisted.
type QualityReport struct {
	OverallScore float64           `json:"overallScore"`
	Dimensions   QualityDimensions `json:"dimensions"`
	Strengths    []string          `json:"strengths"`
	Weaknesses   []string          `json:"weaknesses"`
	Suggestions  []string          `json:"suggestions"`
	Confidence   float64           `json:"confidence"`
}

// RankedResponse is one entry of a CompareResponses result.
type RankedResponse struct {
	Index    int            `json:"index"`
	Rank     int            `json:"rank"`
	Response string         `json:"response"`
	Report   *QualityReport `json:"report"`
}
