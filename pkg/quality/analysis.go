package quality

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
)

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}']+`)
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
	hashtagPattern  = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	listItemPattern = regexp.MustCompile(`(?m)^\s*(\d+[.)]|[-*•])\s+\S`)
	vowelGroup      = regexp.MustCompile(`[aeiouy]+`)
)

// Analysis holds text features shared by the dimension scorers.
type Analysis struct {
	Text         string
	Lower        string
	Words        []string // lowercase
	Sentences    []string
	Lines        []string // non-empty lines
	Chars        int      // rune count
	Hashtags     int
	ListItems    int
	Questions    int
	Exclamations int
}

// Analyze extracts features from text.
func Analyze(text string) *Analysis {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	a := &Analysis{
		Text:         trimmed,
		Lower:        lower,
		Words:        wordPattern.FindAllString(lower, -1),
		Chars:        utf8.RuneCountInString(trimmed),
		Hashtags:     len(hashtagPattern.FindAllString(trimmed, -1)),
		ListItems:    len(listItemPattern.FindAllString(trimmed, -1)),
		Questions:    strings.Count(trimmed, "?"),
		Exclamations: strings.Count(trimmed, "!"),
	}

	for _, s := range sentencePattern.FindAllString(trimmed, -1) {
		if s = strings.TrimSpace(s); wordPattern.MatchString(s) {
			a.Sentences = append(a.Sentences, s)
		}
	}
	for _, l := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(l) != "" {
			a.Lines = append(a.Lines, l)
		}
	}
	return a
}

// WordCount returns the number of words.
func (a *Analysis) WordCount() int {
	return len(a.Words)
}

// AvgSentenceWords returns the mean words per sentence.
func (a *Analysis) AvgSentenceWords() float64 {
	if len(a.Sentences) == 0 {
		return 0
	}
	return float64(len(a.Words)) / float64(len(a.Sentences))
}

// ComplexWordRatio is the share of words with three or more syllables.
func (a *Analysis) ComplexWordRatio() float64 {
	if len(a.Words) == 0 {
		return 0
	}
	complexWords := 0
	for _, w := range a.Words {
		if syllables(w) >= 3 {
			complexWords++
		}
	}
	return float64(complexWords) / float64(len(a.Words))
}

// UniqueRatio is distinct words over total words.
func (a *Analysis) UniqueRatio() float64 {
	if len(a.Words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(a.Words))
	for _, w := range a.Words {
		seen[w] = struct{}{}
	}
	return float64(len(seen)) / float64(len(a.Words))
}

// CountTerms counts words of a that are in terms.
func (a *Analysis) CountTerms(terms map[string]struct{}) int {
	n := 0
	for _, w := range a.Words {
		if _, ok := terms[w]; ok {
			n++
		}
	}
	return n
}

// CountPhrases counts occurrences of multi-word phrases in the lowercase text.
func (a *Analysis) CountPhrases(phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(a.Lower, p)
	}
	return n
}

// Keywords returns the distinct content words of text, singularized so
// "posts" and "post" match.
func Keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 4 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[inflection.Singular(w)] = struct{}{}
	}
	return out
}

// syllables approximates the syllable count of an English word.
func syllables(word string) int {
	n := len(vowelGroup.FindAllString(word, -1))
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && n > 1 {
		n--
	}
	if n == 0 {
		n = 1
	}
	return n
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var stopWords = set(
	"about", "above", "after", "again", "also", "been", "before", "being", "could",
	"does", "doing", "from", "have", "having", "here", "into", "just", "make",
	"more", "most", "much", "only", "other", "please", "should", "some", "such",
	"than", "that", "their", "them", "then", "there", "these", "they", "this",
	"those", "very", "want", "were", "what", "when", "where", "which", "while",
	"will", "with", "would", "your", "yours", "improve", "rewrite", "help",
)

var actionVerbs = set(
	"add", "apply", "ask", "avoid", "book", "build", "buy", "call", "check", "choose",
	"click", "consider", "contact", "create", "cut", "define", "download", "focus",
	"follow", "get", "highlight", "include", "join", "lead", "learn", "limit", "list",
	"mention", "move", "open", "order", "plan", "read", "reduce", "register", "remove",
	"replace", "review", "schedule", "share", "shorten", "sign", "simplify", "start",
	"subscribe", "swap", "test", "track", "try", "use", "visit", "write",
)

var emotionalWords = set(
	"amazing", "awesome", "beautiful", "brilliant", "delighted", "excited", "exciting",
	"fantastic", "fear", "free", "grateful", "happy", "incredible", "inspiring", "love",
	"loved", "passionate", "powerful", "proud", "remarkable", "secret", "stunning",
	"surprising", "thrilled", "unbelievable", "wonderful", "worried",
)

var vividWords = set(
	"imagine", "picture", "story", "journey", "spark", "unlock", "discover", "hidden",
	"bold", "fresh", "vivid", "whisper", "roar", "dream", "magic", "secret",
)

var ctaPhrases = []string{
	"click", "sign up", "learn more", "comment", "share", "join", "buy", "shop now",
	"get started", "subscribe", "download", "book a", "try it", "reply", "let me know",
	"dm me", "link in bio", "register",
}

var secondPerson = set("you", "your", "you're", "yourself")

var slangWords = set("gonna", "wanna", "lol", "omg", "kinda", "ya", "gotta", "btw", "tbh")

var negativeWords = set("hate", "stupid", "terrible", "awful", "worst", "useless", "boring", "ugly")
