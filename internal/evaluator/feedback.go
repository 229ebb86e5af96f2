package evaluator

import (
	"fmt"
	"strings"
)

// Templates holds the sentences feedback is composed from. MissingWords is a
// format string receiving the comma-joined word list.
type Templates struct {
	Excellent                string
	Good                     string
	NeedsPractice            string
	NeedsSignificantPractice string
	MissingWords             string
	TooShort                 string
	TooLong                  string
}

// EnglishTemplates is the default feedback locale.
var EnglishTemplates = Templates{
	Excellent:                "Excellent! Your pronunciation is very accurate.",
	Good:                     "Good! A little more practice and it will be perfect.",
	NeedsPractice:            "Not bad. More practice is needed.",
	NeedsSignificantPractice: "Needs a lot more practice. Try reading along slowly.",
	MissingWords:             "Missing words: %s. Pay attention to pronouncing these words.",
	TooShort:                 "Please read the full sentence.",
	TooLong:                  "Extra words were added.",
}

// KoreanTemplates mirrors EnglishTemplates for Korean-speaking learners.
var KoreanTemplates = Templates{
	Excellent:                "훌륭합니다! 발음이 매우 정확합니다.",
	Good:                     "좋습니다! 조금만 더 연습하면 완벽해질 것 같아요.",
	NeedsPractice:            "괜찮습니다. 더 연습이 필요합니다.",
	NeedsSignificantPractice: "많은 연습이 필요합니다. 천천히 따라 읽어보세요.",
	MissingWords:             "누락된 단어: %s. 이 단어들을 신경써서 발음해보세요.",
	TooShort:                 "문장을 끝까지 읽어주세요.",
	TooLong:                  "불필요한 단어가 추가되었습니다.",
}

// TemplatesForLocale returns the templates for locale ("en", "ko").
func TemplatesForLocale(locale string) (Templates, error) {
	switch strings.ToLower(locale) {
	case "", "en":
		return EnglishTemplates, nil
	case "ko":
		return KoreanTemplates, nil
	default:
		return Templates{}, fmt.Errorf("unknown feedback locale: %s (supported: en, ko)", locale)
	}
}

// Feedback composes English feedback. See Templates.Compose.
func Feedback(score float64, missing []string, reference, candidate string) string {
	return EnglishTemplates.Compose(score, missing, reference, candidate)
}

// Compose builds the feedback text: the quality sentence for the score bracket,
// then the missing-words sentence when missing is non-empty, then a length
// sentence when the raw word counts of candidate and reference differ.
func (t Templates) Compose(score float64, missing []string, reference, candidate string) string {
	parts := make([]string, 0, 3)
	switch {
	case score >= 90:
		parts = append(parts, t.Excellent)
	case score >= 70:
		parts = append(parts, t.Good)
	case score >= 50:
		parts = append(parts, t.NeedsPractice)
	default:
		parts = append(parts, t.NeedsSignificantPractice)
	}

	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf(t.MissingWords, strings.Join(missing, ", ")))
	}

	spoken, expected := len(fields(candidate)), len(fields(reference))
	if spoken < expected {
		parts = append(parts, t.TooShort)
	} else if spoken > expected {
		parts = append(parts, t.TooLong)
	}
	return strings.Join(parts, " ")
}
