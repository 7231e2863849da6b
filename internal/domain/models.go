package domain

import "time"

// QuestionTranslation overrides the displayed text for one locale.
type QuestionTranslation struct {
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// Question is immutable for the lifetime of a session.
type Question struct {
	ID               int                            `json:"id"`
	Text             string                         `json:"text"`
	Options          []string                       `json:"options"`
	CorrectIndex     *int                           `json:"correctIndex,omitempty"`
	ImageURL         string                         `json:"imageUrl,omitempty"`
	RevealImageURL   string                         `json:"revealImageUrl,omitempty"`
	TimeLimitSeconds *int                           `json:"timeLimitSeconds,omitempty"`
	Translations     map[string]QuestionTranslation `json:"translations,omitempty"`
}

// Public returns the projection that is safe to send to participants.
// The correct index and the reveal-phase image stay hidden until revealed.
func (q Question) Public(revealed bool) Question {
	out := q
	if !revealed {
		out.CorrectIndex = nil
		out.RevealImageURL = ""
	}
	return out
}

// Quiz is the full question set plus session-level metadata.
type Quiz struct {
	ID                      string     `json:"id"`
	Questions               []Question `json:"questions"`
	DefaultTimeLimitSeconds int        `json:"defaultTimeLimitSeconds,omitempty"` // 0 disables
	FinalImageURL           string     `json:"finalImageUrl,omitempty"`
}

// SessionState holds the authoritative state machine fields.
// CurrentIndex is -1 before start. StartedAt anchors the countdown;
// TimeLimitSeconds is the effective budget for the current question,
// nil when the question has no limit.
type SessionState struct {
	CurrentIndex     int        `json:"currentQuestionIndex"`
	Reveal           bool       `json:"revealAnswer"`
	Finished         bool       `json:"isFinished"`
	StartedAt        *time.Time `json:"questionStartedAt,omitempty"`
	TimeLimitSeconds *int       `json:"questionTimeLimitSeconds,omitempty"`
}

// StateSnapshot is the full state broadcast to every connected client.
// It is derived at broadcast time and never stored.
type StateSnapshot struct {
	State            SessionState `json:"state"`
	Question         *Question    `json:"question"`
	TotalQuestions   int          `json:"totalQuestions"`
	RemainingSeconds *int         `json:"remainingSeconds,omitempty"`
	FinalImageURL    string       `json:"finalImageUrl,omitempty"`
}

// QuestionID returns the id of the snapshot's question, or -1 if none.
func (s StateSnapshot) QuestionID() int {
	if s.Question == nil {
		return -1
	}
	return s.Question.ID
}

// Participant is created by a join request and removed only by reset.
type Participant struct {
	ID       string    `json:"participantId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Answer records one accepted submission. At most one Answer exists
// per (participant, question) pair.
type Answer struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    int       `json:"questionId"`
	OptionIndex   int       `json:"optionIndex"`
	AcceptedAt    time.Time `json:"acceptedAt"`
}

// AggregateResult counts answers per option index for one question.
type AggregateResult struct {
	QuestionID int   `json:"questionId"`
	Counts     []int `json:"counts"`
}

// ScoreboardEntry is computed on demand from the answer ledger.
type ScoreboardEntry struct {
	ParticipantID  string  `json:"participantId"`
	Name           string  `json:"name"`
	Correct        int     `json:"correct"`
	Answered       int     `json:"answered"`
	TotalQuestions int     `json:"totalQuestions"`
	Percentage     float64 `json:"percentage"`
}

// ParticipantStatus is the operator-facing view of one participant.
type ParticipantStatus struct {
	ParticipantID   string `json:"participantId"`
	Name            string `json:"name"`
	AnsweredCurrent bool   `json:"answeredCurrent"`
}
