package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/domain"
)

// Status tracks the push-channel connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// AnswerPhase tags the optimistic submission state for the current question.
type AnswerPhase string

const (
	AnswerUnanswered AnswerPhase = "unanswered"
	AnswerPending    AnswerPhase = "pending"
	AnswerAccepted   AnswerPhase = "accepted"
	AnswerRejected   AnswerPhase = "rejected"
)

// AnswerState is the client-side view of the submission pipeline. Rejected
// means the optimistic selection was rolled back and must not render as
// selected.
type AnswerState struct {
	Phase  AnswerPhase
	Option int
	Reason string
}

// View is everything a UI needs, derived purely from the mirrored snapshot
// and the local countdown.
type View struct {
	Status    Status
	Snapshot  *domain.StateSnapshot
	Remaining *int
	Answer    AnswerState
}

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// Options configures an Agent. BaseURL is the only required field.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Clock      clockwork.Clock
	Logger     zerolog.Logger
	// OnChange, when set, is invoked after every mirror replacement, local
	// tick, and submission-state change.
	OnChange func(View)
}

// Agent owns one push-channel connection and one mirrored StateSnapshot for
// a single client. All of its state transitions are serialized behind one
// mutex; network calls happen outside it so they can never block the local
// tick.
type Agent struct {
	baseURL   string
	wsURL     string
	http      *http.Client
	dialer    *websocket.Dialer
	clock     clockwork.Clock
	log       zerolog.Logger
	onChange  func(View)
	countdown *Countdown

	mu            sync.Mutex
	participantID string
	status        Status
	mirror        *domain.StateSnapshot
	answer        AnswerState
}

func New(opts Options) *Agent {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	return &Agent{
		baseURL:   base,
		wsURL:     wsEndpoint(base),
		http:      httpClient,
		dialer:    dialer,
		clock:     clock,
		log:       opts.Logger,
		onChange:  opts.OnChange,
		countdown: NewCountdown(),
		status:    StatusDisconnected,
		answer:    AnswerState{Phase: AnswerUnanswered},
	}
}

func wsEndpoint(base string) string {
	switch {
	case strings.HasPrefix(base, "https"):
		base = "wss" + base[len("https"):]
	case strings.HasPrefix(base, "http"):
		base = "ws" + base[len("http"):]
	}
	return base + "/ws"
}

// SetParticipant installs a previously stored identity (e.g., before Resume).
func (a *Agent) SetParticipant(id string) {
	a.mu.Lock()
	a.participantID = id
	a.mu.Unlock()
}

// ParticipantID returns the current identity, empty if not joined.
func (a *Agent) ParticipantID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.participantID
}

// Run connects to the push channel and keeps the mirror synchronized until
// ctx is canceled. Reconnects use capped exponential backoff and never
// silently stop. The local one-second tick runs for the whole lifetime of
// Run, independent of connection state.
func (a *Agent) Run(ctx context.Context) error {
	go a.tickLoop(ctx)

	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.setStatus(StatusConnecting)
		conn, _, err := a.dialer.DialContext(ctx, a.wsURL, nil)
		if err != nil {
			a.setStatus(StatusDisconnected)
			a.log.Debug().Err(err).Msg("push channel dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.clock.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff
		a.readLoop(ctx, conn)
		a.setStatus(StatusDisconnected)
	}
}

func (a *Agent) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var msg struct {
			Type    string               `json:"type"`
			Payload domain.StateSnapshot `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			a.log.Debug().Err(err).Msg("push channel read failed")
			return
		}
		if msg.Type != "state" {
			continue
		}
		a.apply(ctx, msg.Payload)
	}
}

// apply replaces the mirror with a new authoritative snapshot. Any locally
// advanced timer state is discarded in favor of the snapshot's value, and a
// question change clears the local submission state, then re-queries the
// ledger so the UI reflects recorded answers exactly (essential after a
// reconnect or reload).
func (a *Agent) apply(ctx context.Context, snap domain.StateSnapshot) {
	a.mu.Lock()
	prevID := -1
	if a.mirror != nil {
		prevID = a.mirror.QuestionID()
	}
	mirrored := snap
	a.mirror = &mirrored
	a.status = StatusConnected
	newID := snap.QuestionID()
	questionChanged := newID != prevID
	if questionChanged {
		a.answer = AnswerState{Phase: AnswerUnanswered}
	}
	pid := a.participantID
	a.mu.Unlock()

	a.countdown.Reanchor(newID, snap.RemainingSeconds, snap.State.Reveal)

	if questionChanged && newID >= 0 && pid != "" {
		go a.refreshAnswerStatus(ctx, newID)
	}
	a.notify()
}

func (a *Agent) refreshAnswerStatus(ctx context.Context, questionID int) {
	a.mu.Lock()
	pid := a.participantID
	a.mu.Unlock()
	if pid == "" {
		return
	}

	var resp struct {
		Answered    bool `json:"answered"`
		OptionIndex *int `json:"optionIndex"`
	}
	path := fmt.Sprintf("/answer_status/%s/%d", url.PathEscape(pid), questionID)
	if err := a.getJSON(ctx, path, &resp); err != nil {
		a.log.Debug().Err(err).Msg("answer status fetch failed")
		return
	}

	a.mu.Lock()
	if a.mirror != nil && a.mirror.QuestionID() == questionID && resp.Answered && resp.OptionIndex != nil {
		a.answer = AnswerState{Phase: AnswerAccepted, Option: *resp.OptionIndex}
	}
	a.mu.Unlock()
	a.notify()
}

// Join registers a new participant and installs the returned identity.
func (a *Agent) Join(ctx context.Context, name string) (domain.Participant, error) {
	var p domain.Participant
	err := a.postJSON(ctx, "/join", map[string]string{"name": name}, &p)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok {
			switch apiErr.Code {
			case "conflict":
				return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrNameTaken, apiErr.Message)
			case "validation":
				return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrEmptyName, apiErr.Message)
			}
		}
		return domain.Participant{}, err
	}
	a.SetParticipant(p.ID)
	return p, nil
}

// Resume validates a stored identity against the server. On not-found the
// cached identity is cleared so the caller falls back to rejoin.
func (a *Agent) Resume(ctx context.Context, idOrName string) (domain.Participant, error) {
	var p domain.Participant
	err := a.getJSON(ctx, "/participant/"+url.PathEscape(idOrName), &p)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Code == "not_found" {
			a.SetParticipant("")
			return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, apiErr.Message)
		}
		return domain.Participant{}, err
	}
	a.SetParticipant(p.ID)
	return p, nil
}

// Submit runs the client-side guard, optimistically marks the selection
// pending, and confirms or rolls it back with the server's verdict. The
// guard is advisory; the server's ledger is authoritative either way.
func (a *Agent) Submit(ctx context.Context, optionIndex int) error {
	a.mu.Lock()
	if a.participantID == "" {
		a.mu.Unlock()
		return domain.ErrParticipantNotFound
	}
	if a.mirror == nil || a.mirror.Question == nil {
		a.mu.Unlock()
		return domain.ErrQuestionMismatch
	}
	if a.mirror.State.Reveal {
		a.mu.Unlock()
		return domain.ErrAnswerClosed
	}
	if a.answer.Phase == AnswerPending || a.answer.Phase == AnswerAccepted {
		a.mu.Unlock()
		return domain.ErrAnswerLocked
	}
	if rem := a.countdown.Remaining(); rem != nil && *rem <= 0 {
		a.mu.Unlock()
		return domain.ErrTimeExpired
	}
	questionID := a.mirror.Question.ID
	pid := a.participantID
	a.answer = AnswerState{Phase: AnswerPending, Option: optionIndex}
	a.mu.Unlock()
	a.notify()

	body := map[string]any{
		"participantId": pid,
		"questionId":    questionID,
		"optionIndex":   optionIndex,
	}
	err := a.postJSON(ctx, "/answer", body, nil)

	a.mu.Lock()
	sameQuestion := a.mirror != nil && a.mirror.QuestionID() == questionID
	if err != nil {
		if sameQuestion {
			a.answer = AnswerState{Phase: AnswerRejected, Option: optionIndex, Reason: err.Error()}
		}
		a.mu.Unlock()
		a.notify()
		return err
	}
	if sameQuestion {
		a.answer = AnswerState{Phase: AnswerAccepted, Option: optionIndex}
	}
	a.mu.Unlock()
	a.notify()
	return nil
}

// View returns the render-ready state derived from the mirror.
func (a *Agent) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := View{
		Status:    a.status,
		Answer:    a.answer,
		Remaining: a.countdown.Remaining(),
	}
	if a.mirror != nil {
		mirrored := *a.mirror
		v.Snapshot = &mirrored
	}
	return v
}

func (a *Agent) tickLoop(ctx context.Context) {
	ticker := a.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.countdown.Tick()
			a.notify()
		}
	}
}

func (a *Agent) setStatus(status Status) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()
	a.notify()
}

func (a *Agent) notify() {
	if a.onChange != nil {
		a.onChange(a.View())
	}
}

// APIError carries the server's error code and message for a rejected
// one-shot request.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func (a *Agent) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *Agent) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	return a.do(req, out)
}

func (a *Agent) do(req *http.Request, out any) error {
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
