package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/mindmentor/internal/ai"
	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/internal/spaced_repetition"
	"github.com/example/mindmentor/pkg/models"
)

// Generator produces and grades questions
type Generator interface {
	Questions(ctx context.Context, p ai.QuestionParams) (ai.QuestionSet, bool, error)
	Grade(ctx context.Context, p ai.GradingParams) (ai.GradingResult, bool, error)
}

// TopicGetter resolves topics, returning ErrNotFound for unknown ids
type TopicGetter interface {
	Get(ctx context.Context, id int64) (*models.Topic, error)
}

// AttemptSaver persists graded attempts
type AttemptSaver interface {
	Create(ctx context.Context, a *models.Attempt) error
}

// QuizQuestion is a generated question assigned to a topic
type QuizQuestion struct {
	ID        int    `json:"id"`
	TopicID   int64  `json:"topic_id"`
	TopicName string `json:"topic_name"`
	ai.Question
}

// Quiz is a generated question set handed to the user
type Quiz struct {
	ID         string            `json:"id"`
	UserID     int64             `json:"user_id"`
	TopicIDs   []int64           `json:"topic_ids"`
	Difficulty models.Difficulty `json:"difficulty"`
	Questions  []QuizQuestion    `json:"questions"`
	WasCached  bool              `json:"was_cached"`
	CreatedAt  time.Time         `json:"created_at"`
}

// BuildRequest describes a quiz to generate
type BuildRequest struct {
	UserID       int64   `json:"user_id"`
	TopicIDs     []int64 `json:"topic_ids"`
	Count        int     `json:"count"`
	QuestionType string  `json:"question_type,omitempty"`
}

// QuestionResult is the grading of one answer
type QuestionResult struct {
	QuestionID    int               `json:"question_id"`
	TopicID       int64             `json:"topic_id"`
	UserAnswer    string            `json:"user_answer"`
	CorrectAnswer string            `json:"correct_answer"`
	Credit        float64           `json:"credit"` // 0..1
	Correct       bool              `json:"correct"`
	Explanation   string            `json:"explanation,omitempty"`
	Grading       *ai.GradingResult `json:"grading,omitempty"`
}

// Result summarises a submitted quiz
type Result struct {
	QuizID          string           `json:"quiz_id"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	Score           float64          `json:"score"`
	ScorePercentage float64          `json:"score_percentage"`
	Questions       []QuestionResult `json:"questions"`
	// Duplicate is set when this quiz was already submitted; nothing was recorded
	Duplicate bool `json:"duplicate"`
}

// Service builds quizzes and folds graded results into mastery
type Service struct {
	gen      Generator
	topics   TopicGetter
	mastery  *mastery.Model
	attempts AttemptSaver
	Numeric  NumericPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a quiz service. attempts may be nil.
func NewService(gen Generator, topics TopicGetter, model *mastery.Model, attempts AttemptSaver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gen:      gen,
		topics:   topics,
		mastery:  model,
		attempts: attempts,
		Numeric:  DefaultNumericPolicy(),
		logger:   logger,
		now:      time.Now,
	}
}

// Build generates count questions over the topics. Difficulty follows the
// user's mastery of the first topic; questions go to topics round robin.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*Quiz, error) {
	if len(req.TopicIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one topic is required", models.ErrValidation)
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: question count must be positive", models.ErrValidation)
	}
	topics := make([]*models.Topic, 0, len(req.TopicIDs))
	names := make([]string, 0, len(req.TopicIDs))
	for _, id := range req.TopicIDs {
		t, err := s.topics.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
		names = append(names, t.Name)
	}

	difficulty, err := s.mastery.DifficultyFor(ctx, req.UserID, topics[0].ID)
	if err != nil {
		return nil, err
	}
	set, cached, err := s.gen.Questions(ctx, ai.QuestionParams{
		Subject:      topics[0].Subject,
		Topic:        strings.Join(names, ", "),
		QuestionType: req.QuestionType,
		Difficulty:   difficulty,
		Count:        req.Count,
	})
	if err != nil {
		return nil, err
	}

	qs := set.Questions
	if len(qs) > req.Count {
		qs = qs[:req.Count]
	}
	quiz := &Quiz{
		ID:         ulid.Make().String(),
		UserID:     req.UserID,
		TopicIDs:   req.TopicIDs,
		Difficulty: difficulty,
		Questions:  make([]QuizQuestion, 0, len(qs)),
		WasCached:  cached,
		CreatedAt:  s.now(),
	}
	for i, q := range qs {
		t := topics[i%len(topics)]
		if q.Type == "" {
			q.Type = req.QuestionType
		}
		quiz.Questions = append(quiz.Questions, QuizQuestion{ID: i + 1, TopicID: t.ID, TopicName: t.Name, Question: q})
	}
	s.logger.Info("quiz built", "user_id", req.UserID, "questions", len(quiz.Questions),
		"difficulty", difficulty, "cached", cached)
	return quiz, nil
}

// Submit grades the answers (question id -> answer), updates mastery and
// the review schedule per topic and stores the attempts. Submitting the
// same quiz again changes nothing and reports Duplicate.
func (s *Service) Submit(ctx context.Context, quiz *Quiz, answers map[int]string, elapsed time.Duration) (*Result, error) {
	if quiz == nil || len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz has no questions", models.ErrValidation)
	}
	if elapsed < 0 {
		return nil, fmt.Errorf("%w: negative elapsed time", models.ErrValidation)
	}

	res := &Result{QuizID: quiz.ID, TotalQuestions: len(quiz.Questions)}
	for _, q := range quiz.Questions {
		qr := s.grade(ctx, q, answers[q.ID])
		res.Score += qr.Credit
		if qr.Correct {
			res.CorrectAnswers++
		}
		res.Questions = append(res.Questions, qr)
	}
	res.ScorePercentage = math.Round(res.Score/float64(res.TotalQuestions)*1000) / 10

	perQuestion := elapsed.Seconds() / float64(len(quiz.Questions))
	duplicates := 0
	attempts := s.attemptsByTopic(quiz, res, perQuestion)
	for _, a := range attempts {
		quality := spaced_repetition.QualityFromAccuracy(a.Accuracy())
		outcome, err := s.mastery.ReviewAttempt(ctx, *a, int(quality), a.ID)
		if err != nil {
			return nil, err
		}
		if outcome.Duplicate {
			duplicates++
			continue
		}
		if s.attempts != nil {
			if err := s.attempts.Create(ctx, a); err != nil {
				s.logger.Warn("saving attempt failed", "user_id", a.UserID, "topic_id", a.TopicID, "error", err)
			}
		}
	}
	res.Duplicate = duplicates == len(attempts)
	return res, nil
}

// attemptsByTopic groups graded questions into one attempt per topic, in
// the order topics first appear. Attempt ids derive from the quiz id so a
// resubmission is recognisable.
func (s *Service) attemptsByTopic(quiz *Quiz, res *Result, perQuestion float64) []*models.Attempt {
	byTopic := make(map[int64]*models.Attempt)
	var order []*models.Attempt
	for i, q := range quiz.Questions {
		a, ok := byTopic[q.TopicID]
		if !ok {
			a = &models.Attempt{
				ID:              fmt.Sprintf("%s-%d", quiz.ID, q.TopicID),
				UserID:          quiz.UserID,
				TopicID:         q.TopicID,
				Kind:            strings.ToLower(q.Type),
				ResponseSeconds: perQuestion,
				TakenAt:         s.now(),
			}
			byTopic[q.TopicID] = a
			order = append(order, a)
		}
		a.Total++
		qr := res.Questions[i]
		if qr.Correct {
			a.Correct++
		}
		if qr.Grading != nil {
			a.WeakConcepts = append(a.WeakConcepts, qr.Grading.MissingPoints...)
			a.MasteredConcepts = append(a.MasteredConcepts, qr.Grading.CorrectPoints...)
		}
	}
	return order
}

func (s *Service) grade(ctx context.Context, q QuizQuestion, answer string) QuestionResult {
	qr := QuestionResult{
		QuestionID:    q.ID,
		TopicID:       q.TopicID,
		UserAnswer:    answer,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}
	switch strings.ToUpper(q.Type) {
	case ai.QuestionNumeric:
		expected, err := ParseNumber(q.CorrectAnswer)
		given, gerr := ParseNumber(answer)
		if err == nil && gerr == nil {
			qr.Credit = s.Numeric.Credit(expected, given)
		}
	case ai.QuestionDescriptive:
		marks := q.Marks
		if marks <= 0 {
			marks = 4
		}
		g := s.GradeDescriptive(ctx, q.Question, answer, marks)
		qr.Grading = &g
		qr.Credit = g.MarksAwarded / g.TotalMarks
	default:
		want := ai.OptionLetter(q.CorrectAnswer, q.Options)
		if got := ai.OptionLetter(answer, q.Options); got != "" && got == want {
			qr.Credit = 1
		}
	}
	qr.Correct = qr.Credit >= 1
	return qr
}

// GradeDescriptive asks the model to grade; any provider or parsing
// failure falls back to keyword overlap so the quiz flow never aborts
func (s *Service) GradeDescriptive(ctx context.Context, q ai.Question, answer string, totalMarks float64) ai.GradingResult {
	if strings.TrimSpace(answer) == "" {
		return ai.GradingResult{TotalMarks: totalMarks, MissingPoints: q.KeyPoints, Feedback: "No answer given."}
	}
	res, _, err := s.gen.Grade(ctx, ai.GradingParams{
		Question:   q.Text,
		KeyPoints:  q.KeyPoints,
		Answer:     answer,
		TotalMarks: totalMarks,
	})
	if err == nil && res.TotalMarks == totalMarks {
		return res
	}
	if err != nil {
		s.logger.Warn("model grading failed, using keyword fallback", "error", err)
	} else {
		s.logger.Warn("model graded against wrong total, using keyword fallback", "want", totalMarks, "got", res.TotalMarks)
	}
	return KeywordScore(q.KeyPoints, q.CorrectAnswer, answer, totalMarks)
}
