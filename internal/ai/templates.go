package ai

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/example/mindmentor/pkg/models"
)

// OutputFormat says how provider text is turned into a payload
type OutputFormat int

const (
	FormatJSON OutputFormat = iota
	FormatText
)

// Template ids
const (
	TemplateLesson      = "lesson"
	TemplateQuestions   = "questions"
	TemplateGrading     = "grading"
	TemplateHint        = "hint"
	TemplateExplanation = "explanation"
	TemplateExample     = "example"
)

// PromptTemplate is a registered prompt with its required parameters and
// an optional validator for its structured output
type PromptTemplate struct {
	ID       string
	Format   OutputFormat
	Params   []string
	Validate func([]byte) error

	tmpl *template.Template
}

// Render fills the template. Missing parameters are a validation error.
func (p *PromptTemplate) Render(params map[string]any) (string, error) {
	var missing []string
	for _, name := range p.Params {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: template %q missing params %s", models.ErrValidation, p.ID, strings.Join(missing, ", "))
	}
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, params); err != nil {
		return "", fmt.Errorf("%w: template %q: %v", models.ErrValidation, p.ID, err)
	}
	return sb.String(), nil
}

// TemplateRegistry resolves template ids
type TemplateRegistry struct {
	templates map[string]*PromptTemplate
}

// NewTemplateRegistry returns an empty registry
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*PromptTemplate)}
}

// Register parses text and stores the template under id
func (r *TemplateRegistry) Register(id string, format OutputFormat, params []string, validate func([]byte) error, text string) error {
	tmpl, err := template.New(id).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %v", id, err)
	}
	r.templates[id] = &PromptTemplate{ID: id, Format: format, Params: params, Validate: validate, tmpl: tmpl}
	return nil
}

// Lookup returns the template or ErrValidation for an unknown id
func (r *TemplateRegistry) Lookup(id string) (*PromptTemplate, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template %q", models.ErrValidation, id)
	}
	return t, nil
}

// DefaultTemplates registers the built-in prompts
func DefaultTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(TemplateLesson, FormatJSON,
		[]string{"subject", "topic", "difficulty"},
		checker[LessonContent](), lessonPrompt))
	must(r.Register(TemplateQuestions, FormatJSON,
		[]string{"subject", "topic", "question_type", "difficulty", "count"},
		checker[QuestionSet](), questionsPrompt))
	must(r.Register(TemplateGrading, FormatJSON,
		[]string{"question", "key_points", "answer", "total_marks"},
		checker[GradingResult](), gradingPrompt))
	must(r.Register(TemplateHint, FormatText,
		[]string{"subject", "topic", "question"},
		nil, hintPrompt))
	must(r.Register(TemplateExplanation, FormatText,
		[]string{"subject", "topic", "concept"},
		nil, explanationPrompt))
	must(r.Register(TemplateExample, FormatJSON,
		[]string{"subject", "topic", "difficulty", "concept"},
		checker[WorkedExample](), examplePrompt))
	return r
}

const lessonPrompt = `Teach {{.subject}} to an exam candidate.

Topic: {{.topic}}
Difficulty: {{.difficulty}}

Explain the core concepts, key formulas, two or three worked examples,
common mistakes and exam tips.

Respond with JSON only:
{"explanation": "...", "key_points": ["..."], "formulas": ["..."],
 "examples": [{"problem": "...", "solution": "..."}],
 "common_mistakes": ["..."], "exam_tips": ["..."]}`

const questionsPrompt = `Write {{.count}} {{.question_type}} practice questions.

Subject: {{.subject}}
Topic: {{.topic}}
Difficulty: {{.difficulty}}

Use plain text math (x^2, 1/2), no LaTeX or backslashes.
MCQ questions have four options and a single letter answer.
NUMERIC questions have a number as the answer.
DESCRIPTIVE questions list the key points a full answer must cover.

Respond with JSON only:
{"questions": [{"question_text": "...", "type": "{{.question_type}}",
 "options": ["..."], "correct_answer": "...", "explanation": "...",
 "difficulty": "{{.difficulty}}", "marks": 4, "key_points": ["..."]}]}`

const gradingPrompt = `Grade a descriptive exam answer strictly.

Question: {{.question}}
Total marks: {{.total_marks}}
Key points expected: {{.key_points}}

Student answer:
{{.answer}}

Respond with JSON only:
{"marks_awarded": 0, "total_marks": {{.total_marks}}, "correct_points": ["..."],
 "missing_points": ["..."], "errors": ["..."], "feedback": "..."}`

const hintPrompt = `A student is stuck on this {{.subject}} question about {{.topic}}:

{{.question}}

Give a two or three sentence hint naming the key concept and the first
step, without revealing the answer.`

const explanationPrompt = `Explain the {{.subject}} concept "{{.concept}}" from {{.topic}}
step by step, with one analogy and one short example, in under 300 words.`

const examplePrompt = `Create one solved {{.difficulty}} example problem in {{.subject}} ({{.topic}})
demonstrating {{.concept}}.

Respond with JSON only:
{"problem": "...", "solution_steps": ["..."], "final_answer": "...", "key_concept": "..."}`
