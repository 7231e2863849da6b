package domain

import "errors"

var (
	// ErrEmptyName is returned when a join request carries a blank display name.
	ErrEmptyName = errors.New("display name must not be empty")
	// ErrInvalidOption indicates a submitted option index is out of range.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrMalformedRequest indicates a request body that could not be parsed.
	ErrMalformedRequest = errors.New("malformed request body")

	// ErrNameTaken is returned when the requested display name is already in use.
	ErrNameTaken = errors.New("display name already in use")
	// ErrAnswerLocked indicates the participant already answered this question.
	ErrAnswerLocked = errors.New("answer already locked")
	// ErrQuestionMismatch indicates the submission does not target the server's current question.
	ErrQuestionMismatch = errors.New("submission does not match the current question")
	// ErrAnswerClosed indicates answering is closed because the answer was revealed.
	ErrAnswerClosed = errors.New("answering closed after reveal")
	// ErrTimeExpired indicates the question's time budget ran out.
	ErrTimeExpired = errors.New("time expired for the current question")

	// ErrInvalidTransition is returned for an admin command that is not legal
	// in the current session state. The state is left untouched.
	ErrInvalidTransition = errors.New("command not legal in current state")
	// ErrNoActiveTimer indicates extend was called while no countdown is running.
	ErrNoActiveTimer = errors.New("no active timer to extend")

	// ErrParticipantNotFound is returned when a participant id or name is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuestionNotFound indicates a referenced question id is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")

	// ErrUnauthorized is returned for a missing or mismatching admin credential.
	ErrUnauthorized = errors.New("invalid admin token")
)

// ErrorCode buckets an error into the wire-level taxonomy. Transport layers
// use it to pick status codes; clients use it to decide between rollback,
// rejoin, and re-authentication.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrInvalidOption),
		errors.Is(err, ErrMalformedRequest):
		return "validation"
	case errors.Is(err, ErrNameTaken), errors.Is(err, ErrAnswerLocked),
		errors.Is(err, ErrQuestionMismatch), errors.Is(err, ErrAnswerClosed),
		errors.Is(err, ErrTimeExpired):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoActiveTimer):
		return "invalid_transition"
	case errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrQuizNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
