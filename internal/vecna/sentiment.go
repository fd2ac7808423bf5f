package vecna

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultSentimentThreshold — intensity at or above this sets TriggersSupport.
const DefaultSentimentThreshold = 0.6

// LexiconEntry maps an indicator term to its emotional contribution.
type LexiconEntry struct {
	Emotion  Emotion
	Weight   float64 // intensity contribution, summed then capped at 1.0
	Polarity float64 // -1..1, weight-averaged into the result
}

// Classifier scores emotional intensity and polarity of a single message.
// Deterministic: identical text always yields identical results. It never
// returns an error; malformed input degrades to a neutral result.
type Classifier struct {
	threshold float64
	words     map[string]LexiconEntry
	phrases   []PhraseEntry // matched before words, matched span is consumed
}

type PhraseEntry struct {
	Phrase string
	Entry  LexiconEntry
}

// NewClassifier creates a Classifier with the default lexicon.
func NewClassifier(threshold float64) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSentimentThreshold
	}
	return &Classifier{
		threshold: threshold,
		words:     defaultWordLexicon(),
		phrases:   defaultPhraseLexicon(),
	}
}

// SetLexicon replaces the word and phrase tables. Phrases are normalized the
// same way message text is.
func (c *Classifier) SetLexicon(words map[string]LexiconEntry, phrases []PhraseEntry) {
	c.words = words
	c.phrases = phrases
}

// Classify scores one message. The caller has already trimmed/normalized the
// text; empty or non-textual input yields a neutral result, never an error.
func (c *Classifier) Classify(text string) SentimentResult {
	normalized := normalizeText(text)
	if normalized == "" {
		return SentimentResult{}
	}

	var sum, polaritySum float64
	tagged := make(map[Emotion]bool)

	// Phrases first; each match is consumed so its words don't double-count.
	for _, p := range c.phrases {
		for strings.Contains(normalized, p.Phrase) {
			normalized = strings.Replace(normalized, p.Phrase, " ", 1)
			sum += p.Entry.Weight
			polaritySum += p.Entry.Polarity * p.Entry.Weight
			tagged[p.Entry.Emotion] = true
		}
	}

	for _, tok := range strings.Fields(normalized) {
		e, ok := c.words[tok]
		if !ok {
			continue
		}
		sum += e.Weight
		polaritySum += e.Polarity * e.Weight
		tagged[e.Emotion] = true
	}

	intensity := clamp01(sum)
	var polarity float64
	if sum > 0 {
		polarity = polaritySum / sum
		if polarity < -1 {
			polarity = -1
		}
		if polarity > 1 {
			polarity = 1
		}
	}

	emotions := make([]Emotion, 0, len(tagged))
	for e := range tagged {
		emotions = append(emotions, e)
	}
	sort.Slice(emotions, func(i, j int) bool { return emotions[i] < emotions[j] })

	return SentimentResult{
		Polarity:        polarity,
		Intensity:       intensity,
		Emotions:        emotions,
		TriggersSupport: intensity >= c.threshold,
	}
}

// normalizeText lowercases and strips everything but letters, digits and
// spaces, collapsing runs of whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func defaultWordLexicon() map[string]LexiconEntry {
	return map[string]LexiconEntry{
		// anger
		"hate":    {EmotionAnger, 0.45, -0.9},
		"angry":   {EmotionAnger, 0.35, -0.7},
		"furious": {EmotionAnger, 0.45, -0.9},
		"rage":    {EmotionAnger, 0.40, -0.8},
		"stupid":  {EmotionAnger, 0.25, -0.6},
		"worst":   {EmotionAnger, 0.25, -0.6},

		// sadness
		"sad":       {EmotionSadness, 0.30, -0.6},
		"lonely":    {EmotionSadness, 0.35, -0.7},
		"alone":     {EmotionSadness, 0.25, -0.5},
		"cry":       {EmotionSadness, 0.30, -0.6},
		"crying":    {EmotionSadness, 0.35, -0.7},
		"miserable": {EmotionSadness, 0.40, -0.8},
		"hopeless":  {EmotionSadness, 0.45, -0.9},
		"empty":     {EmotionSadness, 0.25, -0.5},

		// frustration
		"frustrated": {EmotionFrustration, 0.40, -0.7},
		"annoying":   {EmotionFrustration, 0.30, -0.6},
		"tired":      {EmotionFrustration, 0.25, -0.4},
		"ugh":        {EmotionFrustration, 0.20, -0.4},
		"broken":     {EmotionFrustration, 0.25, -0.5},
		"useless":    {EmotionFrustration, 0.35, -0.7},

		// anxiety
		"scared":  {EmotionAnxiety, 0.35, -0.7},
		"afraid":  {EmotionAnxiety, 0.35, -0.7},
		"anxious": {EmotionAnxiety, 0.40, -0.7},
		"worried": {EmotionAnxiety, 0.30, -0.5},
		"panic":   {EmotionAnxiety, 0.40, -0.8},
		"nervous": {EmotionAnxiety, 0.30, -0.5},
	}
}

func defaultPhraseLexicon() []PhraseEntry {
	return []PhraseEntry{
		{"leave me alone", LexiconEntry{EmotionSadness, 0.37, -0.8}},
		{"sick of", LexiconEntry{EmotionFrustration, 0.35, -0.7}},
		{"nobody cares", LexiconEntry{EmotionSadness, 0.40, -0.8}},
		{"cant take it", LexiconEntry{EmotionAnxiety, 0.40, -0.8}},
		{"shut up", LexiconEntry{EmotionAnger, 0.30, -0.7}},
	}
}
