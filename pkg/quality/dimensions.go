package quality

import (
	"math"
	"strings"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// DimensionScorer scores one dimension of a response in [0,1].
type DimensionScorer func(a *Analysis, qc *models.QualityContext) float64

// DefaultScorers returns the heuristic scorer for every dimension.
func DefaultScorers() map[models.Dimension]DimensionScorer {
	return map[models.Dimension]DimensionScorer{
		models.DimensionRelevance:            scoreRelevance,
		models.DimensionClarity:              scoreClarity,
		models.DimensionCompleteness:         scoreCompleteness,
		models.DimensionActionability:        scoreActionability,
		models.DimensionCreativity:           scoreCreativity,
		models.DimensionTone:                 scoreTone,
		models.DimensionPlatformOptimization: scorePlatformOptimization,
		models.DimensionEngagement:           scoreEngagement,
	}
}

// neutralScore is used where there is nothing to measure against.
const neutralScore = 0.5

func scoreRelevance(a *Analysis, qc *models.QualityContext) float64 {
	if qc == nil || strings.TrimSpace(qc.Prompt) == "" {
		return neutralScore
	}
	want := Keywords(qc.Prompt)
	if len(want) == 0 {
		return neutralScore
	}
	have := Keywords(a.Text)
	matched := 0
	for k := range want {
		if _, ok := have[k]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}

func scoreClarity(a *Analysis, _ *models.QualityContext) float64 {
	if a.WordCount() == 0 {
		return 0
	}

	avg := a.AvgSentenceWords()
	var sentence float64
	switch {
	case avg < 8:
		sentence = 0.5 + 0.5*avg/8
	case avg <= 20:
		sentence = 1
	default:
		sentence = math.Max(0, 1-(avg-20)/20)
	}

	vocabulary := 1 - math.Min(1, a.ComplexWordRatio()*2)
	return clamp(0.6*sentence + 0.4*vocabulary)
}

func scoreCompleteness(a *Analysis, _ *models.QualityContext) float64 {
	score := math.Min(1, float64(a.WordCount())/60)
	if len(a.Sentences) >= 3 {
		score += 0.1
	}
	if a.ListItems > 0 || len(a.Lines) > 1 {
		score += 0.1
	}
	return clamp(score)
}

func scoreActionability(a *Analysis, _ *models.QualityContext) float64 {
	verbs := a.CountTerms(actionVerbs)
	return clamp(0.2*float64(verbs) + 0.15*float64(a.ListItems))
}

func scoreCreativity(a *Analysis, _ *models.QualityContext) float64 {
	if a.WordCount() == 0 {
		return 0
	}
	lengthFactor := math.Min(1, float64(a.WordCount())/20)
	score := 0.6 * a.UniqueRatio() * lengthFactor
	score += math.Min(0.2, 0.1*float64(a.CountTerms(vividWords)))
	if a.Questions > 0 || hasEmoji(a.Text) {
		score += 0.2
	}
	return clamp(score)
}

func scoreTone(a *Analysis, qc *models.QualityContext) float64 {
	if a.WordCount() == 0 {
		return 0
	}
	score := 0.8

	shouting := 0
	for _, w := range strings.Fields(a.Text) {
		if len(w) > 3 && w == strings.ToUpper(w) && strings.ToLower(w) != w {
			shouting++
		}
	}
	score -= math.Min(0.3, 0.1*float64(shouting))
	if strings.Contains(a.Text, "!!") {
		score -= 0.2
	}
	score -= math.Min(0.3, 0.15*float64(a.CountTerms(negativeWords)))

	if qc != nil {
		switch strings.ToLower(qc.Tone) {
		case "professional", "formal":
			score -= math.Min(0.3, 0.1*float64(a.CountTerms(slangWords)))
			if a.Exclamations == 0 {
				score += 0.1
			}
		case "casual", "friendly", "conversational":
			if strings.Contains(a.Lower, "'") || strings.Contains(a.Lower, "you") {
				score += 0.1
			}
		}
	}
	return clamp(score)
}

// platformProfile is what platform optimization checks for.
type platformProfile struct {
	charLimit     int
	idealMaxChars int
	minHashtags   int
	maxHashtags   int
	multiline     bool
}

var platformProfiles = map[models.Platform]platformProfile{
	models.PlatformTwitter:   {charLimit: 280, idealMaxChars: 280, minHashtags: 0, maxHashtags: 2},
	models.PlatformLinkedIn:  {charLimit: 3000, idealMaxChars: 1300, minHashtags: 0, maxHashtags: 5, multiline: true},
	models.PlatformInstagram: {charLimit: 2200, idealMaxChars: 1000, minHashtags: 3, maxHashtags: 15},
	models.PlatformFacebook:  {charLimit: 63206, idealMaxChars: 500, minHashtags: 0, maxHashtags: 3},
	models.PlatformEmail:     {idealMaxChars: 2000, maxHashtags: 0, multiline: true},
	models.PlatformBlog:      {idealMaxChars: 0, maxHashtags: 0, multiline: true},
}

func scorePlatformOptimization(a *Analysis, qc *models.QualityContext) float64 {
	if qc == nil {
		return neutralScore
	}
	profile, ok := platformProfiles[qc.Platform]
	if !ok {
		return neutralScore
	}
	if a.Chars == 0 {
		return 0
	}

	score := 0.0
	switch {
	case profile.charLimit > 0 && a.Chars > profile.charLimit:
		// over the hard limit earns nothing for length
	case profile.idealMaxChars > 0 && a.Chars > profile.idealMaxChars:
		score += 0.25
	default:
		score += 0.5
	}

	if a.Hashtags >= profile.minHashtags && a.Hashtags <= profile.maxHashtags {
		score += 0.25
	}

	if !profile.multiline || len(a.Lines) > 1 {
		score += 0.25
	}
	return clamp(score)
}

func scoreEngagement(a *Analysis, _ *models.QualityContext) float64 {
	if a.WordCount() == 0 {
		return 0
	}
	score := math.Min(0.3, 0.15*float64(a.CountTerms(emotionalWords)))
	score += math.Min(0.4, 0.2*float64(a.CountPhrases(ctaPhrases)))
	if a.Questions > 0 {
		score += 0.15
	}
	if a.CountTerms(secondPerson) > 0 {
		score += 0.15
	}
	return clamp(score)
}

// OverPlatformLimit reports whether text exceeds the platform's hard limit.
func OverPlatformLimit(a *Analysis, p models.Platform) (int, bool) {
	profile, ok := platformProfiles[p]
	if !ok || profile.charLimit == 0 {
		return 0, false
	}
	return profile.charLimit, a.Chars > profile.charLimit
}

func hasEmoji(s string) bool {
	for _, r := range s {
		if r >= 0x1F300 && r <= 0x1FAFF || r >= 0x2600 && r <= 0x27BF {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
