package app

import (
	"strings"
	"sync"
	"time"

	"team-quiz-service/internal/domain"
)

// maxNameRunes caps stored display names.
const maxNameRunes = 40

type answerKey struct {
	participantID string
	questionID    int
}

// Session owns the authoritative state for one running quiz: the state
// machine, the participant set, and the answer ledger. All mutation funnels
// through the command methods below under a single mutex, and every legal
// command broadcasts a fresh StateSnapshot to all subscribers before it
// returns.
type Session struct {
	quiz domain.Quiz
	now  func() time.Time

	mu           sync.RWMutex
	state        domain.SessionState
	participants map[string]*domain.Participant
	nameIndex    map[string]string
	answers      map[answerKey]domain.Answer
	subscribers  map[chan domain.StateSnapshot]struct{}
}

func NewSession(quiz domain.Quiz) *Session {
	return NewSessionWithClock(quiz, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(quiz domain.Quiz, now func() time.Time) *Session {
	return &Session{
		quiz:         quiz,
		now:          now,
		state:        domain.SessionState{CurrentIndex: -1},
		participants: make(map[string]*domain.Participant),
		nameIndex:    make(map[string]string),
		answers:      make(map[answerKey]domain.Answer),
		subscribers:  make(map[chan domain.StateSnapshot]struct{}),
	}
}

// Start moves NotStarted to the first question.
func (s *Session) Start() (domain.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentIndex != -1 || s.state.Finished {
		return domain.StateSnapshot{}, domain.ErrInvalidTransition
	}
	s.state.CurrentIndex = 0
	s.state.Reveal = false
	s.anchorLocked()
	return s.broadcastLocked(), nil
}

// Next advances to the following question, or to Finished past the last one.
func (s *Session) Next() (domain.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentIndex < 0 || s.state.Finished {
		return domain.StateSnapshot{}, domain.ErrInvalidTransition
	}
	if s.state.CurrentIndex >= len(s.quiz.Questions)-1 {
		s.state.Finished = true
		s.state.Reveal = false
		s.state.StartedAt = nil
		s.state.TimeLimitSeconds = nil
	} else {
		s.state.CurrentIndex++
		s.state.Reveal = false
		s.anchorLocked()
	}
	return s.broadcastLocked(), nil
}

// Prev steps back one question. From Finished it re-enters the last question
// instead of decrementing, so the operator can recover a session that was
// advanced past the end by accident.
func (s *Session) Prev() (domain.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Finished {
		s.state.Finished = false
		s.state.Reveal = false
		s.anchorLocked()
		return s.broadcastLocked(), nil
	}
	if s.state.CurrentIndex <= 0 {
		return domain.StateSnapshot{}, domain.ErrInvalidTransition
	}
	s.state.CurrentIndex--
	s.state.Reveal = false
	s.anchorLocked()
	return s.broadcastLocked(), nil
}

// Reveal exposes the correct option for the current question. The countdown
// anchor is left untouched; remaining time simply stops applying.
func (s *Session) Reveal() (domain.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentIndex < 0 || s.state.Finished || s.state.Reveal {
		return domain.StateSnapshot{}, domain.ErrInvalidTransition
	}
	s.state.Reveal = true
	return s.broadcastLocked(), nil
}

// Extend adds seconds to the current question's time budget. The anchor
// timestamp is not moved; only the budget grows.
func (s *Session) Extend(extraSeconds int) (domain.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentIndex < 0 || s.state.Finished || s.state.Reveal {
		return domain.StateSnapshot{}, domain.ErrInvalidTransition
	}
	if s.state.TimeLimitSeconds == nil || *s.state.TimeLimitSeconds == 0 {
		return domain.StateSnapshot{}, domain.ErrNoActiveTimer
	}
	if extraSeconds < 1 {
		extraSeconds = 1
	}
	limit := *s.state.TimeLimitSeconds + extraSeconds
	s.state.TimeLimitSeconds = &limit
	return s.broadcastLocked(), nil
}

// Reset returns to NotStarted from any state and drops all participants and
// answers. It is always legal.
func (s *Session) Reset() domain.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.SessionState{CurrentIndex: -1}
	s.participants = make(map[string]*domain.Participant)
	s.nameIndex = make(map[string]string)
	s.answers = make(map[answerKey]domain.Answer)
	return s.broadcastLocked()
}

// Join registers a new participant. Display names are unique within the
// session (exact match, after trimming).
func (s *Session) Join(id, name string) (domain.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Participant{}, domain.ErrEmptyName
	}
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = string(runes[:maxNameRunes])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.nameIndex[name]; taken {
		return domain.Participant{}, domain.ErrNameTaken
	}
	p := domain.Participant{ID: id, Name: name, JoinedAt: s.now()}
	s.participants[id] = &p
	s.nameIndex[name] = id
	s.broadcastLocked()
	return p, nil
}

// Resume looks a participant up by id or display name.
func (s *Session) Resume(idOrName string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.participants[idOrName]; ok {
		return *p, nil
	}
	if id, ok := s.nameIndex[idOrName]; ok {
		return *s.participants[id], nil
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

// SubmitAnswer writes one immutable answer. All guards run under the same
// mutex as the admin commands, so a submission racing a reveal or next is
// strictly ordered against it: once the reveal or advance committed, the
// submission is rejected rather than recorded against the wrong question.
// Accepted answers do not trigger a broadcast; aggregation is pulled.
func (s *Session) SubmitAnswer(participantID string, questionID, optionIndex int) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[participantID]; !ok {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	q := s.currentQuestionLocked()
	if q == nil || q.ID != questionID {
		return domain.Answer{}, domain.ErrQuestionMismatch
	}
	if s.state.Reveal {
		return domain.Answer{}, domain.ErrAnswerClosed
	}
	if rem := s.remainingLocked(); rem != nil && *rem <= 0 {
		return domain.Answer{}, domain.ErrTimeExpired
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return domain.Answer{}, domain.ErrInvalidOption
	}
	key := answerKey{participantID: participantID, questionID: questionID}
	if _, exists := s.answers[key]; exists {
		return domain.Answer{}, domain.ErrAnswerLocked
	}
	answer := domain.Answer{
		ParticipantID: participantID,
		QuestionID:    questionID,
		OptionIndex:   optionIndex,
		AcceptedAt:    s.now(),
	}
	s.answers[key] = answer
	return answer, nil
}

// AnswerStatus reports whether the participant has a recorded answer for the
// question and, if so, which option. It reflects the ledger exactly, not any
// client-side memory.
func (s *Session) AnswerStatus(participantID string, questionID int) (*int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.participants[participantID]; !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if !s.questionExistsLocked(questionID) {
		return nil, domain.ErrQuestionNotFound
	}
	if a, ok := s.answers[answerKey{participantID: participantID, questionID: questionID}]; ok {
		opt := a.OptionIndex
		return &opt, nil
	}
	return nil, nil
}

// Snapshot builds the current StateSnapshot on demand.
func (s *Session) Snapshot() domain.StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives every broadcast snapshot,
// starting with the current one. The caller must invoke the returned cancel
// function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.StateSnapshot, func()) {
	ch := make(chan domain.StateSnapshot, 8)

	// The initial send happens under the same mutex as registration, so no
	// command can slip a newer snapshot in ahead of it. The fresh buffered
	// channel cannot block here.
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.StateSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// A full buffer means the client is behind; snapshots are total
			// replacements, so the stale one can be dropped.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.StateSnapshot {
	total := len(s.quiz.Questions)
	if s.state.Finished {
		return domain.StateSnapshot{
			State:          s.state,
			TotalQuestions: total,
			FinalImageURL:  s.quiz.FinalImageURL,
		}
	}
	var q *domain.Question
	if cur := s.currentQuestionLocked(); cur != nil {
		pub := cur.Public(s.state.Reveal)
		q = &pub
	}
	return domain.StateSnapshot{
		State:            s.state,
		Question:         q,
		TotalQuestions:   total,
		RemainingSeconds: s.remainingLocked(),
	}
}

// remainingLocked computes the countdown value once, at snapshot time. There
// is no remaining-time concept while revealed or finished.
func (s *Session) remainingLocked() *int {
	st := s.state
	if st.Finished || st.Reveal || st.TimeLimitSeconds == nil || *st.TimeLimitSeconds == 0 || st.StartedAt == nil {
		return nil
	}
	elapsed := int(s.now().Sub(*st.StartedAt).Seconds())
	rem := *st.TimeLimitSeconds - elapsed
	if rem < 0 {
		rem = 0
	}
	return &rem
}

// anchorLocked stamps the countdown start for the current question and
// resolves its effective time budget (question override, then quiz default,
// 0 disables).
func (s *Session) anchorLocked() {
	q := s.currentQuestionLocked()
	if q == nil {
		s.state.StartedAt = nil
		s.state.TimeLimitSeconds = nil
		return
	}
	limit := s.quiz.DefaultTimeLimitSeconds
	if q.TimeLimitSeconds != nil {
		limit = *q.TimeLimitSeconds
	}
	if limit > 0 {
		s.state.TimeLimitSeconds = &limit
	} else {
		s.state.TimeLimitSeconds = nil
	}
	t := s.now()
	s.state.StartedAt = &t
}

func (s *Session) currentQuestionLocked() *domain.Question {
	if s.state.Finished {
		return nil
	}
	idx := s.state.CurrentIndex
	if idx < 0 || idx >= len(s.quiz.Questions) {
		return nil
	}
	return &s.quiz.Questions[idx]
}

func (s *Session) questionExistsLocked(questionID int) bool {
	for i := range s.quiz.Questions {
		if s.quiz.Questions[i].ID == questionID {
			return true
		}
	}
	return false
}
