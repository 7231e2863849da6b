package app

import (
	"math"
	"sort"
	"strings"

	"team-quiz-service/internal/domain"
)

// Results counts answers per option index for every question. Counts are
// recomputed from the ledger on each call, so they are exact regardless of
// the order answers arrived in.
func (s *Session) Results() []domain.AggregateResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AggregateResult, 0, len(s.quiz.Questions))
	for i := range s.quiz.Questions {
		q := &s.quiz.Questions[i]
		counts := make([]int, len(q.Options))
		for key, answer := range s.answers {
			if key.questionID == q.ID && answer.OptionIndex < len(counts) {
				counts[answer.OptionIndex]++
			}
		}
		out = append(out, domain.AggregateResult{QuestionID: q.ID, Counts: counts})
	}
	return out
}

// Scoreboard ranks participants by correct answers over the gradable
// questions (those with a correct index). Ties break by case-insensitive
// name. The percentage is rounded to one decimal place.
func (s *Session) Scoreboard() []domain.ScoreboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gradable := make([]*domain.Question, 0, len(s.quiz.Questions))
	for i := range s.quiz.Questions {
		if s.quiz.Questions[i].CorrectIndex != nil {
			gradable = append(gradable, &s.quiz.Questions[i])
		}
	}
	total := len(gradable)

	entries := make([]domain.ScoreboardEntry, 0, len(s.participants))
	for id, p := range s.participants {
		correct, answered := 0, 0
		for _, q := range gradable {
			answer, ok := s.answers[answerKey{participantID: id, questionID: q.ID}]
			if !ok {
				continue
			}
			answered++
			if answer.OptionIndex == *q.CorrectIndex {
				correct++
			}
		}
		percentage := 0.0
		if total > 0 {
			percentage = math.Round(float64(correct)/float64(total)*1000) / 10
		}
		entries = append(entries, domain.ScoreboardEntry{
			ParticipantID:  id,
			Name:           p.Name,
			Correct:        correct,
			Answered:       answered,
			TotalQuestions: total,
			Percentage:     percentage,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Correct != entries[j].Correct {
			return entries[i].Correct > entries[j].Correct
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries
}

// ParticipantStatuses lists every participant with a flag for whether they
// answered the current question, sorted case-insensitively by name.
func (s *Session) ParticipantStatuses() []domain.ParticipantStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.currentQuestionLocked()
	out := make([]domain.ParticipantStatus, 0, len(s.participants))
	for id, p := range s.participants {
		answered := false
		if current != nil {
			_, answered = s.answers[answerKey{participantID: id, questionID: current.ID}]
		}
		out = append(out, domain.ParticipantStatus{
			ParticipantID:   id,
			Name:            p.Name,
			AnsweredCurrent: answered,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
