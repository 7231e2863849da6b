package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Archiver persists the session's durable state across restarts.
type Archiver interface {
	Save(ctx context.Context, state ArchivedState) error
	Load(ctx context.Context) (ArchivedState, bool, error)
}

// Service exposes the quiz use cases on top of the single authoritative
// session. Admin credential checks live in the transport layer; every method
// here assumes an already-authorized caller.
type Service struct {
	session  *Session
	archiver Archiver
	log      zerolog.Logger
	newID    func() string
}

func NewService(session *Session, archiver Archiver, logger zerolog.Logger) *Service {
	return &Service{
		session:  session,
		archiver: archiver,
		log:      logger,
		newID:    uuid.NewString,
	}
}

// RestoreFromArchive loads previously archived state, if any. Called once at
// startup before the service starts accepting requests.
func (s *Service) RestoreFromArchive(ctx context.Context) error {
	archived, found, err := s.archiver.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	s.session.Restore(archived)
	s.log.Info().
		Int("participants", len(archived.Participants)).
		Int("answers", len(archived.Answers)).
		Int("questionIndex", archived.State.CurrentIndex).
		Msg("restored session state from archive")
	return nil
}

// Join registers a new participant under a fresh id.
func (s *Service) Join(ctx context.Context, name string) (domain.Participant, error) {
	p, err := s.session.Join(s.newID(), name)
	if err != nil {
		return domain.Participant{}, err
	}
	s.persist(ctx)
	s.log.Info().Str("participant", p.ID).Str("name", p.Name).Msg("participant joined")
	return p, nil
}

// Resume returns the participant record for an id or display name.
func (s *Service) Resume(_ context.Context, idOrName string) (domain.Participant, error) {
	return s.session.Resume(idOrName)
}

// SubmitAnswer records a single answer; duplicates and late submissions are
// rejected by the session under its command mutex.
func (s *Service) SubmitAnswer(ctx context.Context, participantID string, questionID, optionIndex int) (domain.Answer, error) {
	answer, err := s.session.SubmitAnswer(participantID, questionID, optionIndex)
	if err != nil {
		return domain.Answer{}, err
	}
	s.persist(ctx)
	return answer, nil
}

// AnswerStatus reports the recorded option for (participant, question), or
// nil when unanswered.
func (s *Service) AnswerStatus(_ context.Context, participantID string, questionID int) (*int, error) {
	return s.session.AnswerStatus(participantID, questionID)
}

// Start begins the quiz at the first question.
func (s *Service) Start(ctx context.Context) (domain.StateSnapshot, error) {
	return s.command(ctx, "start", s.session.Start)
}

// Next advances the quiz, finishing it past the last question.
func (s *Service) Next(ctx context.Context) (domain.StateSnapshot, error) {
	return s.command(ctx, "next", s.session.Next)
}

// Prev steps back one question.
func (s *Service) Prev(ctx context.Context) (domain.StateSnapshot, error) {
	return s.command(ctx, "prev", s.session.Prev)
}

// Reveal exposes the correct answer for the current question.
func (s *Service) Reveal(ctx context.Context) (domain.StateSnapshot, error) {
	return s.command(ctx, "reveal", s.session.Reveal)
}

// Extend adds time to the current question's budget.
func (s *Service) Extend(ctx context.Context, extraSeconds int) (domain.StateSnapshot, error) {
	return s.command(ctx, "extend", func() (domain.StateSnapshot, error) {
		return s.session.Extend(extraSeconds)
	})
}

// Reset returns the session to NotStarted and clears participants and answers.
func (s *Service) Reset(ctx context.Context) domain.StateSnapshot {
	snap := s.session.Reset()
	s.persist(ctx)
	s.log.Info().Msg("session reset")
	return snap
}

// Snapshot returns the current state without mutating anything.
func (s *Service) Snapshot() domain.StateSnapshot {
	return s.session.Snapshot()
}

// Subscribe attaches a push-channel listener; the first value is the current
// snapshot. The cancel function must be called to release the subscription.
func (s *Service) Subscribe() (<-chan domain.StateSnapshot, func()) {
	return s.session.Subscribe()
}

// Results returns per-question option counts for the operator view.
func (s *Service) Results() []domain.AggregateResult {
	return s.session.Results()
}

// Scoreboard returns the ranked scoreboard. It is valid at any time; it only
// becomes meaningful once the session is finished.
func (s *Service) Scoreboard() []domain.ScoreboardEntry {
	return s.session.Scoreboard()
}

// Participants lists participants with their answered-current flag.
func (s *Service) Participants() []domain.ParticipantStatus {
	return s.session.ParticipantStatuses()
}

func (s *Service) command(ctx context.Context, name string, fn func() (domain.StateSnapshot, error)) (domain.StateSnapshot, error) {
	snap, err := fn()
	if err != nil {
		s.log.Warn().Err(err).Str("command", name).Msg("command rejected")
		return domain.StateSnapshot{}, err
	}
	s.persist(ctx)
	s.log.Info().
		Str("command", name).
		Int("questionIndex", snap.State.CurrentIndex).
		Bool("reveal", snap.State.Reveal).
		Bool("finished", snap.State.Finished).
		Msg("command applied")
	return snap, nil
}

// persist archives the session after a mutation. Failures are non-fatal: the
// in-memory state stays authoritative and the next mutation retries.
func (s *Service) persist(ctx context.Context) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Save(ctx, s.session.Archive()); err != nil {
		s.log.Warn().Err(err).Msg("failed to archive session state")
	}
}
