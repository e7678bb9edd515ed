package quiz

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/example/mindmentor/internal/ai"
)

// NumericPolicy decides credit for numeric answers by relative error.
// The thresholds are product settings.
type NumericPolicy struct {
	FullTolerance    float64 `json:"full_tolerance"`
	PartialTolerance float64 `json:"partial_tolerance"`
	PartialCredit    float64 `json:"partial_credit"`
}

// DefaultNumericPolicy gives full credit within 0.1% and half credit within 0.5%
func DefaultNumericPolicy() NumericPolicy {
	return NumericPolicy{FullTolerance: 0.001, PartialTolerance: 0.005, PartialCredit: 0.5}
}

// Credit returns 1, PartialCredit or 0. The error is absolute when the
// expected value is zero.
func (p NumericPolicy) Credit(expected, given float64) float64 {
	diff := math.Abs(given - expected)
	if expected != 0 {
		diff /= math.Abs(expected)
	}
	switch {
	case diff <= p.FullTolerance:
		return 1
	case diff <= p.PartialTolerance:
		return p.PartialCredit
	default:
		return 0
	}
}

// ParseNumber reads the leading number of an answer like "9.81 m/s^2"
func ParseNumber(s string) (float64, error) {
	fields := strings.Fields(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if len(fields) == 0 {
		return 0, errors.New("empty answer")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", fields[0])
	}
	return v, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "that": true, "with": true, "from": true, "this": true,
	"into": true, "when": true, "then": true, "than": true, "which": true, "their": true,
	"there": true, "have": true, "been": true, "will": true, "also": true, "each": true,
}

func keywords(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if len(w) < 4 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// KeywordScore grades a descriptive answer without a model: a key point is
// covered when at least half of its keywords occur in the answer. Marks
// are rounded down to half marks.
func KeywordScore(keyPoints []string, reference, answer string, totalMarks float64) ai.GradingResult {
	res := ai.GradingResult{TotalMarks: totalMarks, Fallback: true}
	if len(keyPoints) == 0 && strings.TrimSpace(reference) != "" {
		keyPoints = []string{reference}
	}
	have := make(map[string]bool)
	for _, w := range keywords(answer) {
		have[w] = true
	}

	scored := 0
	for _, kp := range keyPoints {
		kws := keywords(kp)
		if len(kws) == 0 {
			continue
		}
		scored++
		hit := 0
		for _, w := range kws {
			if have[w] {
				hit++
			}
		}
		if hit*2 >= len(kws) {
			res.CorrectPoints = append(res.CorrectPoints, kp)
		} else {
			res.MissingPoints = append(res.MissingPoints, kp)
		}
	}
	if scored > 0 {
		raw := totalMarks * float64(len(res.CorrectPoints)) / float64(scored)
		res.MarksAwarded = math.Floor(raw*2) / 2
	}
	res.Feedback = fmt.Sprintf("Covered %d of %d key points (automatic keyword check).", len(res.CorrectPoints), scored)
	return res
}
