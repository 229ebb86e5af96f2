package evaluator

// Result is the outcome of scoring one recognized utterance.
type Result struct {
	Score        float64    `json:"score"`
	MissingWords []string   `json:"missing_words"`
	Feedback     string     `json:"feedback"`
	NearMisses   []NearMiss `json:"near_misses,omitempty"`
}

// Evaluator scores utterances with a fixed feedback locale. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	templates         Templates
	nearMissThreshold float64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTemplates sets the feedback templates (default EnglishTemplates).
func WithTemplates(t Templates) Option {
	return func(e *Evaluator) { e.templates = t }
}

// WithNearMissThreshold sets the Jaro-Winkler threshold for near misses.
// A value <= 0 disables near-miss detection.
func WithNearMissThreshold(threshold float64) Option {
	return func(e *Evaluator) { e.nearMissThreshold = threshold }
}

// New returns an Evaluator with English feedback and the default near-miss threshold.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		templates:         EnglishTemplates,
		nearMissThreshold: DefaultNearMissThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores candidate against reference. Every step sees the same raw inputs.
func (e *Evaluator) Evaluate(reference, candidate string) Result {
	score := Score(reference, candidate)
	missing := MissingWords(reference, candidate)
	res := Result{
		Score:        score,
		MissingWords: missing,
		Feedback:     e.templates.Compose(score, missing, reference, candidate),
	}
	if e.nearMissThreshold > 0 {
		res.NearMisses = NearMisses(missing, reference, candidate, e.nearMissThreshold)
	}
	return res
}

// Evaluate scores candidate against reference with English feedback.
func Evaluate(reference, candidate string) Result {
	return New().Evaluate(reference, candidate)
}
