package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// LessonContent is the structured output of the lesson template
type LessonContent struct {
	Explanation    string           `json:"explanation"`
	KeyPoints      []string         `json:"key_points"`
	Formulas       []string         `json:"formulas"`
	Examples       []ExampleProblem `json:"examples"`
	CommonMistakes []string         `json:"common_mistakes"`
	ExamTips       []string         `json:"exam_tips"`
}

type ExampleProblem struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

func (l *LessonContent) Validate() error {
	if strings.TrimSpace(l.Explanation) == "" {
		return errors.New("lesson has no explanation")
	}
	return nil
}

// Question types produced by the question template
const (
	QuestionMCQ         = "MCQ"
	QuestionNumeric     = "NUMERIC"
	QuestionDescriptive = "DESCRIPTIVE"
)

type Question struct {
	Text          string   `json:"question_text"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Marks         float64  `json:"marks,omitempty"`
	KeyPoints     []string `json:"key_points,omitempty"`
}

// QuestionSet is the structured output of the question template. Models
// sometimes answer with a bare array, which is accepted as well.
type QuestionSet struct {
	Questions []Question `json:"questions"`
}

func (q *QuestionSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &q.Questions)
	}
	type plain QuestionSet
	return json.Unmarshal(trimmed, (*plain)(q))
}

func (q *QuestionSet) Validate() error {
	if len(q.Questions) == 0 {
		return errors.New("no questions")
	}
	for i, qq := range q.Questions {
		if strings.TrimSpace(qq.Text) == "" {
			return fmt.Errorf("question %d has no text", i+1)
		}
		if strings.TrimSpace(qq.CorrectAnswer) == "" && strings.ToUpper(qq.Type) != QuestionDescriptive {
			return fmt.Errorf("question %d has no correct answer", i+1)
		}
		if strings.ToUpper(qq.Type) == QuestionMCQ {
			if len(qq.Options) < 2 {
				return fmt.Errorf("question %d has %d options", i+1, len(qq.Options))
			}
			if OptionLetter(qq.CorrectAnswer, qq.Options) == "" {
				return fmt.Errorf("question %d answer %q matches no option", i+1, qq.CorrectAnswer)
			}
		}
	}
	return nil
}

// OptionLetter normalises "b", "B)", "(B) text" to "B". Answers that match
// an option's text, with or without its "A)" label, map to that option's
// letter. Letters past the last option are rejected when options are given.
func OptionLetter(answer string, options []string) string {
	a := strings.TrimLeft(strings.TrimSpace(answer), "([ ")
	if a == "" {
		return ""
	}
	for i, opt := range options {
		opt = strings.TrimSpace(opt)
		if strings.EqualFold(opt, strings.TrimSpace(answer)) ||
			strings.EqualFold(stripOptionLabel(opt), strings.TrimSpace(answer)) {
			return string(rune('A' + i))
		}
	}
	r := unicode.ToUpper(rune(a[0]))
	if r < 'A' || r > 'Z' {
		return ""
	}
	if len(a) > 1 {
		next := rune(a[1])
		if unicode.IsLetter(next) || unicode.IsDigit(next) {
			return ""
		}
	}
	if len(options) > 0 && int(r-'A') >= len(options) {
		return ""
	}
	return string(r)
}

// stripOptionLabel turns "A) Newton" or "(A) Newton" into "Newton"
func stripOptionLabel(opt string) string {
	s := strings.TrimLeft(opt, "( ")
	if len(s) < 2 || !unicode.IsLetter(rune(s[0])) {
		return opt
	}
	switch s[1] {
	case ')', '.', ':':
		return strings.TrimSpace(s[2:])
	}
	return opt
}

// GradingResult is the structured output of the descriptive grading template
type GradingResult struct {
	MarksAwarded  float64  `json:"marks_awarded"`
	TotalMarks    float64  `json:"total_marks"`
	CorrectPoints []string `json:"correct_points"`
	MissingPoints []string `json:"missing_points"`
	Errors        []string `json:"errors"`
	Feedback      string   `json:"feedback"`
	// Fallback is set when the result came from keyword overlap instead of the model
	Fallback bool `json:"fallback,omitempty"`
}

func (g *GradingResult) Validate() error {
	if g.TotalMarks <= 0 {
		return fmt.Errorf("total marks %.2f not positive", g.TotalMarks)
	}
	if g.MarksAwarded < 0 || g.MarksAwarded > g.TotalMarks {
		return fmt.Errorf("marks %.2f outside 0..%.2f", g.MarksAwarded, g.TotalMarks)
	}
	return nil
}

// WorkedExample is the structured output of the example template
type WorkedExample struct {
	Problem       string   `json:"problem"`
	SolutionSteps []string `json:"solution_steps"`
	FinalAnswer   string   `json:"final_answer"`
	KeyConcept    string   `json:"key_concept"`
}

func (w *WorkedExample) Validate() error {
	if strings.TrimSpace(w.Problem) == "" {
		return errors.New("example has no problem statement")
	}
	return nil
}

type validatable interface {
	Validate() error
}

// decodeAs parses raw into T and validates it
func decodeAs[T any, PT interface {
	*T
	validatable
}](raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, PT(&v)); err != nil {
		return v, err
	}
	if err := PT(&v).Validate(); err != nil {
		return v, err
	}
	return v, nil
}

// checker returns a validator that only reports decode/validation errors
func checker[T any, PT interface {
	*T
	validatable
}]() func([]byte) error {
	return func(raw []byte) error {
		_, err := decodeAs[T, PT](raw)
		return err
	}
}
