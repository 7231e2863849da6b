package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"team-quiz-service/internal/domain"
)

// QuizLoader reads quiz content from a JSON document on disk. The document is
// either a bare array of questions or an object carrying questions plus
// quiz-level metadata.
type QuizLoader struct {
	path              string
	fallbackTimeLimit int
}

// NewQuizLoader builds a loader for path. fallbackTimeLimit applies when the
// document does not set its own default (0 disables the countdown).
func NewQuizLoader(path string, fallbackTimeLimit int) *QuizLoader {
	return &QuizLoader{path: path, fallbackTimeLimit: fallbackTimeLimit}
}

type document struct {
	ID                      string            `json:"id"`
	Questions               []domain.Question `json:"questions"`
	DefaultTimeLimitSeconds int               `json:"defaultTimeLimitSeconds"`
	FinalImageURL           string            `json:"finalImageUrl"`
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("read quiz file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Fall back to the bare-array form.
		var questions []domain.Question
		if arrErr := json.Unmarshal(raw, &questions); arrErr != nil {
			return domain.Quiz{}, fmt.Errorf("parse quiz file: %w", err)
		}
		doc = document{Questions: questions}
	}

	quiz := domain.Quiz{
		ID:                      doc.ID,
		Questions:               doc.Questions,
		DefaultTimeLimitSeconds: doc.DefaultTimeLimitSeconds,
		FinalImageURL:           doc.FinalImageURL,
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	if quiz.DefaultTimeLimitSeconds == 0 {
		quiz.DefaultTimeLimitSeconds = l.fallbackTimeLimit
	}
	if err := Validate(quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// Validate enforces the content invariants: at least one question, two or
// more options each, unique question ids, and any correct index within
// option bounds.
func Validate(quiz domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions", quiz.ID)
	}
	seen := make(map[int]struct{}, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d needs at least two options", q.ID)
		}
		if q.CorrectIndex != nil && (*q.CorrectIndex < 0 || *q.CorrectIndex >= len(q.Options)) {
			return fmt.Errorf("question %d correct index %d out of bounds", q.ID, *q.CorrectIndex)
		}
	}
	return nil
}
