package app

import (
	"sort"

	"team-quiz-service/internal/domain"
)

// ArchivedState is the durable form of a session: everything needed to
// resume after a server restart. Snapshots are never archived; they are
// derived again from this state.
type ArchivedState struct {
	State        domain.SessionState  `json:"state"`
	Participants []domain.Participant `json:"participants"`
	Answers      []domain.Answer      `json:"answers"`
}

// Archive captures the session's durable state in a deterministic order.
func (s *Session) Archive() ArchivedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Name < participants[j].Name
	})

	answers := make([]domain.Answer, 0, len(s.answers))
	for _, a := range s.answers {
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool {
		if answers[i].ParticipantID != answers[j].ParticipantID {
			return answers[i].ParticipantID < answers[j].ParticipantID
		}
		return answers[i].QuestionID < answers[j].QuestionID
	})

	return ArchivedState{
		State:        s.state,
		Participants: participants,
		Answers:      answers,
	}
}

// Restore replaces the session's durable state with an archived one, used at
// startup. An archived index outside the loaded question set (the quiz file
// changed between runs) falls back to NotStarted. Answers referring to
// unknown participants or questions are dropped rather than failing the
// whole restore.
func (s *Session) Restore(archived ArchivedState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := archived.State
	if state.CurrentIndex >= len(s.quiz.Questions) {
		state = domain.SessionState{CurrentIndex: -1}
	}
	s.state = state

	s.participants = make(map[string]*domain.Participant, len(archived.Participants))
	s.nameIndex = make(map[string]string, len(archived.Participants))
	for i := range archived.Participants {
		p := archived.Participants[i]
		if p.ID == "" || p.Name == "" {
			continue
		}
		s.participants[p.ID] = &p
		s.nameIndex[p.Name] = p.ID
	}

	s.answers = make(map[answerKey]domain.Answer, len(archived.Answers))
	for _, a := range archived.Answers {
		if _, ok := s.participants[a.ParticipantID]; !ok {
			continue
		}
		if !s.questionExistsLocked(a.QuestionID) {
			continue
		}
		s.answers[answerKey{participantID: a.ParticipantID, questionID: a.QuestionID}] = a
	}
}
