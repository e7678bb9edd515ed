package spaced_repetition

import (
	"fmt"
	"math"
	"time"

	"github.com/example/mindmentor/pkg/models"
)

// SM2 implements the SuperMemo-2 algorithm for spaced repetition
type SM2 struct {
	// Ratings at or above this are successful recalls
	PassThreshold QualityResponse
	// Lowest ease factor the update may produce
	MinEaseFactor float64
	// Upper bound for the interval in days, 0 disables the cap
	MaxInterval int
}

// NewSM2 returns the engine with the classic SM-2 constants
func NewSM2() *SM2 {
	return &SM2{
		PassThreshold: QualityCorrectDifficult,
		MinEaseFactor: models.MinEaseFactor,
	}
}

// QualityResponse represents the quality of response in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect response but remembered upon seeing the correct answer
	QualityIncorrect QualityResponse = 1
	// Incorrect response but the correct answer felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct response but required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct response after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect response with no hesitation
	QualityPerfect QualityResponse = 5
)

// Valid reports whether q is on the 0..5 scale
func (q QualityResponse) Valid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// State is the per-topic repetition state
type State struct {
	EaseFactor       float64
	IntervalDays     int
	RepetitionNumber int
	NextReviewDate   time.Time
}

// StateOf extracts the repetition state from a mastery record
func StateOf(m *models.TopicMastery) State {
	ef := m.EaseFactor
	if ef == 0 {
		ef = models.DefaultEaseFactor
	}
	return State{
		EaseFactor:       ef,
		IntervalDays:     m.IntervalDays,
		RepetitionNumber: m.RepetitionNumber,
		NextReviewDate:   m.NextReviewDate,
	}
}

// Apply writes the state back into a mastery record
func (s State) Apply(m *models.TopicMastery) {
	m.EaseFactor = s.EaseFactor
	m.IntervalDays = s.IntervalDays
	m.RepetitionNumber = s.RepetitionNumber
	m.NextReviewDate = s.NextReviewDate
}

// Advance computes the state after one graded review. It is pure: call it
// exactly once per review, a second call for the same review advances the
// interval again.
func (sm *SM2) Advance(state State, quality QualityResponse, today time.Time) (State, error) {
	if !quality.Valid() {
		return state, fmt.Errorf("%w: quality %d outside 0..5", models.ErrValidation, quality)
	}
	ef := state.EaseFactor
	if ef == 0 {
		ef = models.DefaultEaseFactor
	}

	next := state
	if quality < sm.PassThreshold {
		// Forgotten, restart the curve
		next.RepetitionNumber = 0
		next.IntervalDays = 1
	} else {
		next.RepetitionNumber = state.RepetitionNumber + 1
		switch next.RepetitionNumber {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			prev := state.IntervalDays
			if prev < 1 {
				prev = 1
			}
			next.IntervalDays = int(math.Round(float64(prev) * ef))
		}
		if sm.MaxInterval > 0 && next.IntervalDays > sm.MaxInterval {
			next.IntervalDays = sm.MaxInterval
		}
	}

	next.EaseFactor = sm.nextEaseFactor(ef, quality)
	next.NextReviewDate = models.Day(today).AddDate(0, 0, next.IntervalDays)
	return next, nil
}

// nextEaseFactor applies EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02))
func (sm *SM2) nextEaseFactor(ef float64, quality QualityResponse) float64 {
	d := 5.0 - float64(quality)
	newEF := ef + (0.1 - d*(0.08+d*0.02))
	if newEF < sm.MinEaseFactor {
		newEF = sm.MinEaseFactor // Не опускаем ниже 1.3
	}
	return newEF
}

// IsMastered determines if a topic is considered long-term retained
func (sm *SM2) IsMastered(state State) bool {
	return state.RepetitionNumber >= 5 && state.IntervalDays >= 30
}

// QualityFromAccuracy maps an attempt accuracy (0.0 - 1.0) onto the 0..5 scale
func QualityFromAccuracy(accuracy float64) QualityResponse {
	if accuracy <= 0 {
		return QualityBlackout
	}
	q := int(math.Round(accuracy * 5))
	if q > 5 {
		q = 5
	}
	return QualityResponse(q)
}
